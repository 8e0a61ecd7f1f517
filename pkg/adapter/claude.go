package adapter

import (
	"strings"
	"time"

	"conductor/pkg/agenterrors"
)

// ClaudeAdapter builds invocations for the Claude Code CLI in print mode.
type ClaudeAdapter struct{}

// NewClaudeAdapter creates a Claude Code adapter.
func NewClaudeAdapter() *ClaudeAdapter {
	return &ClaudeAdapter{}
}

// Capability returns CapabilityClaude.
func (a *ClaudeAdapter) Capability() Capability {
	return CapabilityClaude
}

// BuildCommand constructs the Claude Code command line.
// Print mode with non-interactive permission bypass; the prompt goes after
// a -- separator so prompts starting with - parse correctly.
func (a *ClaudeAdapter) BuildCommand(req Request) []string {
	cmd := []string{
		"claude",
		"--print",
		"--output-format", "json",
	}

	if req.Model != "" {
		cmd = append(cmd, "--model", req.Model)
	}

	// Permission checks are bypassed because execution is confined to an
	// isolated working directory; interactive approval would hang print mode.
	cmd = append(cmd, "--dangerously-skip-permissions")

	if req.SessionID != "" {
		cmd = append(cmd, "--session-id", req.SessionID)
	}

	cmd = append(cmd, "--", req.Prompt)
	return cmd
}

// DetectFailure scans for Claude-specific and shared error signatures.
func (a *ClaudeAdapter) DetectFailure(stdout, stderr string) string {
	combined := strings.ToLower(stdout + "\n" + stderr)
	if strings.Contains(combined, "overloaded_error") {
		return "overloaded_error"
	}
	if strings.Contains(combined, "invalid api key") {
		return "invalid api key"
	}
	return detectCommonFailure(stdout, stderr)
}

// ShouldRetry retries transient and rate-limit conditions, plus the
// Claude-specific overloaded signal.
func (a *ClaudeAdapter) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(strings.ToLower(err.Error()), "overloaded") {
		return true
	}
	return agenterrors.IsRetryable(err)
}

// DefaultTimeout returns the per-call timeout for Claude Code runs.
func (a *ClaudeAdapter) DefaultTimeout() time.Duration {
	return 10 * time.Minute
}
