// Package exec provides command execution for agent subprocesses with
// timeout enforcement and captured output.
package exec

import (
	"context"
	"time"
)

// ExecutorType represents the type of executor.
type ExecutorType string

// Executor type constants.
const (
	ExecutorTypeLocal ExecutorType = "local"
)

// Executor defines the interface for executing agent commands.
type Executor interface {
	// Run executes a command with the given options and returns the result.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor type name for logging/debugging.
	Name() ExecutorType

	// Available returns true if this executor can be used in the current environment.
	Available() bool
}

// Opts contains options for command execution.
type Opts struct {
	// Env is the complete environment (KEY=VALUE format). When non-nil it
	// replaces the process environment entirely, so callers control exactly
	// which variables the agent sees.
	Env []string

	// Timeout is the maximum duration for command execution. On expiry the
	// whole process group is terminated.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result contains the result of command execution.
type Result struct {
	// Stdout contains the standard output.
	Stdout string

	// Stderr contains the standard error output.
	Stderr string

	// ExecutorUsed indicates which executor was used (for debugging)
	ExecutorUsed string

	// Duration is how long the command took to execute.
	Duration time.Duration

	// ExitCode is the exit code of the command.
	ExitCode int

	// TimedOut is true when the command was terminated because its
	// timeout expired.
	TimedOut bool
}

// DefaultTimeout applies when Opts.Timeout is zero.
const DefaultTimeout = 5 * time.Minute
