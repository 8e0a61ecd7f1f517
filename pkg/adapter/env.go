package adapter

import "strings"

// secretNamePatterns are substrings that mark an environment variable as a
// secret. Matching variables are stripped before the agent subprocess starts
// unless explicitly required.
//
//nolint:gochecknoglobals // Package-level pattern table
var secretNamePatterns = []string{
	"KEY",
	"SECRET",
	"TOKEN",
	"PASSWORD",
	"CREDENTIAL",
}

// FilterEnv returns environ with secret-shaped variables removed, except for
// names listed in required (e.g. the agent's own API key). Comparison of
// required names is exact; pattern matching is case-insensitive on the name.
func FilterEnv(environ, required []string) []string {
	requiredSet := make(map[string]bool, len(required))
	for _, name := range required {
		requiredSet[name] = true
	}

	filtered := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if requiredSet[name] || !isSecretName(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

func isSecretName(name string) bool {
	upper := strings.ToUpper(name)
	for _, pat := range secretNamePatterns {
		if strings.Contains(upper, pat) {
			return true
		}
	}
	return false
}
