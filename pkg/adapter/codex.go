package adapter

import (
	"time"

	"conductor/pkg/agenterrors"
)

// CodexAdapter builds invocations for the Codex CLI in non-interactive mode.
type CodexAdapter struct{}

// NewCodexAdapter creates a Codex adapter.
func NewCodexAdapter() *CodexAdapter {
	return &CodexAdapter{}
}

// Capability returns CapabilityCodex.
func (a *CodexAdapter) Capability() Capability {
	return CapabilityCodex
}

// BuildCommand constructs the Codex command line.
func (a *CodexAdapter) BuildCommand(req Request) []string {
	cmd := []string{
		"codex",
		"exec",
		"--json",
		"--skip-git-repo-check",
	}

	if req.Model != "" {
		cmd = append(cmd, "--model", req.Model)
	}

	cmd = append(cmd, "--", req.Prompt)
	return cmd
}

// DetectFailure scans for the shared error signatures.
func (a *CodexAdapter) DetectFailure(stdout, stderr string) string {
	return detectCommonFailure(stdout, stderr)
}

// ShouldRetry follows the default taxonomy classification.
func (a *CodexAdapter) ShouldRetry(err error) bool {
	return agenterrors.IsRetryable(err)
}

// DefaultTimeout returns the per-call timeout for Codex runs.
func (a *CodexAdapter) DefaultTimeout() time.Duration {
	return 10 * time.Minute
}
