// Package adapter maps agent capabilities to concrete CLI invocations.
//
// Selection is an explicit capability -> adapter mapping rather than
// substring matching on binary names, so each adapter's command shape,
// retry rules, and timeout defaults are independently testable.
package adapter

import (
	"fmt"
	"strings"
	"time"

	"conductor/pkg/agenterrors"
)

// Capability tags a class of agent CLI.
type Capability string

const (
	// CapabilityClaude targets the Claude Code CLI.
	CapabilityClaude Capability = "claude"
	// CapabilityCodex targets the Codex CLI.
	CapabilityCodex Capability = "codex"
	// CapabilityGeneric targets any CLI that accepts a prompt as its final argument.
	CapabilityGeneric Capability = "generic"
)

// Request carries everything an adapter needs to build one invocation.
type Request struct {
	// Prompt is the rendered instruction text. Treated as opaque data.
	Prompt string

	// Model selects the agent's model, when the CLI supports it.
	Model string

	// SessionID identifies this execution for CLIs with session support.
	SessionID string
}

// Adapter builds and interprets invocations for one agent CLI family.
type Adapter interface {
	// Capability returns the tag this adapter serves.
	Capability() Capability

	// BuildCommand constructs the argv for one invocation.
	BuildCommand(req Request) []string

	// DetectFailure scans output for error signatures that override a zero
	// exit code. Returns the matched signature, or "" when the output looks
	// clean. Exit code 0 is necessary but not sufficient for success.
	DetectFailure(stdout, stderr string) string

	// ShouldRetry reports whether an execution error is worth retrying.
	ShouldRetry(err error) bool

	// DefaultTimeout is the per-call timeout when the task specifies none.
	DefaultTimeout() time.Duration
}

// errorSignatures are output patterns that mark a run as failed even when
// the process exited 0.
//
//nolint:gochecknoglobals // Package-level signature table
var errorSignatures = []string{
	"internal error",
	"fatal error:",
	"panic:",
	"api error",
	"credit balance is too low",
}

// detectCommonFailure scans combined output for the shared signature table.
func detectCommonFailure(stdout, stderr string) string {
	combined := strings.ToLower(stdout + "\n" + stderr)
	for _, sig := range errorSignatures {
		if strings.Contains(combined, sig) {
			return sig
		}
	}
	return ""
}

// Registry is an explicit capability -> adapter mapping.
type Registry struct {
	adapters map[Capability]Adapter
}

// NewRegistry creates a registry with the built-in adapters registered.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[Capability]Adapter)}
	r.Register(NewClaudeAdapter())
	r.Register(NewCodexAdapter())
	r.Register(NewGenericAdapter("agent", nil))
	return r
}

// Register adds or replaces an adapter for its capability.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Capability()] = a
}

// ForCapability returns the adapter registered for cap.
func (r *Registry) ForCapability(cap Capability) (Adapter, error) {
	a, ok := r.adapters[cap]
	if !ok {
		return nil, agenterrors.NewError(agenterrors.ErrorTypeValidation,
			fmt.Sprintf("no adapter registered for capability %q", cap))
	}
	return a, nil
}
