package adapter

import (
	"time"

	"conductor/pkg/agenterrors"
)

// GenericAdapter wraps any CLI that accepts a prompt as its final argument.
type GenericAdapter struct {
	binary string
	args   []string
}

// NewGenericAdapter creates an adapter for an arbitrary agent binary with
// fixed leading arguments.
func NewGenericAdapter(binary string, args []string) *GenericAdapter {
	return &GenericAdapter{binary: binary, args: args}
}

// Capability returns CapabilityGeneric.
func (a *GenericAdapter) Capability() Capability {
	return CapabilityGeneric
}

// BuildCommand appends the prompt after the configured fixed arguments.
func (a *GenericAdapter) BuildCommand(req Request) []string {
	cmd := make([]string, 0, len(a.args)+2)
	cmd = append(cmd, a.binary)
	cmd = append(cmd, a.args...)
	cmd = append(cmd, req.Prompt)
	return cmd
}

// DetectFailure scans for the shared error signatures.
func (a *GenericAdapter) DetectFailure(stdout, stderr string) string {
	return detectCommonFailure(stdout, stderr)
}

// ShouldRetry follows the default taxonomy classification.
func (a *GenericAdapter) ShouldRetry(err error) bool {
	return agenterrors.IsRetryable(err)
}

// DefaultTimeout returns a conservative per-call timeout for unknown CLIs.
func (a *GenericAdapter) DefaultTimeout() time.Duration {
	return 5 * time.Minute
}
