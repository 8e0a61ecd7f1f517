package plan

import "strings"

// MergedAllow returns the step's allow patterns merged with the plan-level
// allow patterns, de-duplicated while preserving order (step patterns first).
func (p *Plan) MergedAllow(step *PlanStep) []string {
	return mergePatterns(step.AllowPatterns, p.AllowPatterns)
}

// MergedDeny returns the step's deny patterns merged with the plan-level
// deny patterns, de-duplicated while preserving order (step patterns first).
func (p *Plan) MergedDeny(step *PlanStep) []string {
	return mergePatterns(step.DenyPatterns, p.DenyPatterns)
}

func mergePatterns(primary, secondary []string) []string {
	seen := make(map[string]bool, len(primary)+len(secondary))
	merged := make([]string, 0, len(primary)+len(secondary))
	for _, set := range [][]string{primary, secondary} {
		for _, pat := range set {
			if pat != "" && !seen[pat] {
				seen[pat] = true
				merged = append(merged, pat)
			}
		}
	}
	return merged
}

// ScopesOverlap reports whether two allow-glob scopes plausibly cover
// overlapping files. Advisory only: glob-vs-glob intersection is
// approximated by comparing the literal prefixes before the first
// wildcard, which is good enough to warn about parallel steps editing
// the same subtree.
func ScopesOverlap(a, b []string) bool {
	for _, pa := range a {
		for _, pb := range b {
			if patternsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

func patternsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	pa := literalPrefix(a)
	pb := literalPrefix(b)
	// An empty literal prefix means the pattern starts with a wildcard
	// and can match anything.
	if pa == "" || pb == "" {
		return true
	}
	return strings.HasPrefix(pa, pb) || strings.HasPrefix(pb, pa)
}

// literalPrefix returns the pattern text before the first glob metacharacter.
func literalPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
