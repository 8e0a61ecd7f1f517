package parser

import (
	"regexp"
	"strings"
)

// maxHeuristicSummaryLength bounds what the fallback will accept as a
// summary line; anything longer is treated as noise.
const maxHeuristicSummaryLength = 200

// logNoisePrefixes mark lines that look like log or CLI chatter rather than
// a human-readable summary.
//
//nolint:gochecknoglobals // Package-level prefix table
var logNoisePrefixes = []string{
	"DEBUG", "INFO", "WARN", "WARNING", "ERROR", "TRACE",
	"[", "#", "$", ">", "+", "---", "===",
	"npm ", "go: ", "git ",
}

// pathRe matches path-shaped tokens: at least one directory separator and a
// file extension.
//
//nolint:gochecknoglobals // Compiled once
var pathRe = regexp.MustCompile(`\b(?:[A-Za-z0-9_.-]+/)+[A-Za-z0-9_.-]+\.[A-Za-z0-9]{1,8}\b`)

// heuristicSummary picks the last non-empty line that does not look like log
// noise. Falls back to the whole trimmed text when every line is noisy.
func heuristicSummary(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || len(line) >= maxHeuristicSummaryLength {
			continue
		}
		if looksLikeLogNoise(line) {
			continue
		}
		return line
	}
	return strings.TrimSpace(text)
}

func looksLikeLogNoise(line string) bool {
	for _, prefix := range logNoisePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// extractPaths returns path-shaped tokens de-duplicated while preserving
// first-seen order.
func extractPaths(text string) []string {
	matches := pathRe.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var paths []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			paths = append(paths, m)
		}
	}
	return paths
}
