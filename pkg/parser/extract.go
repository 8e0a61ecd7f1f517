// Package parser reconciles raw agent output into typed step results.
//
// Extraction is an ordered chain of pure extractor functions; the first one
// that yields valid JSON wins, and when none do a heuristic fallback takes
// over. Parsing never returns an error to the caller.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Extractor attempts to pull a JSON document out of raw agent output.
// Returns the candidate JSON and true, or "" and false.
type Extractor func(text string) (string, bool)

// fencedJSONRe matches a fenced code block, optionally tagged json.
//
//nolint:gochecknoglobals // Compiled once
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// ExtractFencedBlock returns the contents of the first fenced code block
// that holds a JSON object.
func ExtractFencedBlock(text string) (string, bool) {
	for _, match := range fencedJSONRe.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(match[1])
		if json.Valid([]byte(candidate)) && strings.HasPrefix(candidate, "{") {
			return candidate, true
		}
	}
	return "", false
}

// ExtractBracedObject returns the first balanced, valid JSON object found
// anywhere in the text. Brace matching tracks string and escape state so
// braces inside JSON strings do not confuse the scan.
func ExtractBracedObject(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := matchBrace(text, start)
		if !ok {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
		// An invalid balanced region can still enclose valid JSON (stray
		// braces in log noise around the real object), so keep scanning
		// the inner braces instead of skipping to end.
	}
	return "", false
}

// matchBrace finds the index of the brace closing the object opened at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// ExtractWholeOutput returns the entire trimmed text when it is itself a
// JSON object.
func ExtractWholeOutput(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}
	return "", false
}

// extractors is the ordered strategy chain: fenced block, embedded object,
// whole output.
//
//nolint:gochecknoglobals // Ordered strategy table
var extractors = []Extractor{
	ExtractFencedBlock,
	ExtractBracedObject,
	ExtractWholeOutput,
}

// extractFirst runs the strategy chain and returns the first JSON candidate.
func extractFirst(text string) (string, bool) {
	for _, extract := range extractors {
		if candidate, ok := extract(text); ok {
			return candidate, true
		}
	}
	return "", false
}
