// Package driver executes single tasks against an external coding agent
// subprocess, applying admission control, retry with exponential backoff,
// per-call timeouts, and isolated working directories.
package driver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"conductor/pkg/adapter"
	"conductor/pkg/agenterrors"
	"conductor/pkg/exec"
	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/parser"
	"conductor/pkg/plan"
	"conductor/pkg/resilience/ratelimit"
	"conductor/pkg/resilience/retry"
	"conductor/pkg/utils"
	"conductor/pkg/workspace"
)

// Options configure an AgentDriver.
type Options struct {
	// Capability selects the adapter used to build agent invocations.
	Capability adapter.Capability

	// Model is passed through to the agent CLI when it supports one.
	Model string

	// RequiredEnv lists environment variable names the agent CLI needs even
	// when they look secret-shaped (e.g. ANTHROPIC_API_KEY).
	RequiredEnv []string

	// RetryConfig controls backoff between attempts. Zero value uses
	// retry.DefaultConfig.
	RetryConfig retry.Config

	// RateKey is the admission-control key. Defaults to the capability name.
	RateKey string

	Registry  *adapter.Registry
	Executor  exec.Executor
	Workspace *workspace.Manager

	// Limiter is optional; nil disables admission control.
	Limiter *ratelimit.WindowLimiter

	// Recorder is optional; nil disables metrics.
	Recorder metrics.Recorder

	// Tokens is optional; nil disables instruction token-budget checks.
	Tokens *utils.TokenCounter
}

// Outcome pairs the result and error of one asynchronous execution.
type Outcome struct {
	Result plan.AgentResult
	Err    error
}

// AgentDriver runs tasks against one agent CLI family. Safe for concurrent
// use; all per-call state lives on the stack of each Execute call.
type AgentDriver struct {
	adapter     adapter.Adapter
	capability  adapter.Capability
	executor    exec.Executor
	ws          *workspace.Manager
	policy      *retry.Policy
	limiter     *ratelimit.WindowLimiter
	recorder    metrics.Recorder
	tokens      *utils.TokenCounter
	logger      *logx.Logger
	model       string
	requiredEnv []string
	rateKey     string

	// Injectable for tests.
	environ func() []string
	sleep   func(ctx context.Context, d time.Duration) error
}

// retryState tracks one Execute call's retry progress. Created on entry,
// destroyed when the call returns; never shared.
type retryState struct {
	attempt   int
	lastErr   error
	nextDelay time.Duration
}

// New creates an AgentDriver, validating its dependencies and retry config.
func New(opts Options) (*AgentDriver, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("adapter registry is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if opts.Workspace == nil {
		return nil, fmt.Errorf("workspace manager is required")
	}

	a, err := opts.Registry.ForCapability(opts.Capability)
	if err != nil {
		return nil, err
	}

	cfg := opts.RetryConfig
	if cfg == (retry.Config{}) {
		cfg = retry.DefaultConfig
	}
	policy, err := retry.NewPolicy(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NewNopRecorder()
	}
	rateKey := opts.RateKey
	if rateKey == "" {
		rateKey = string(opts.Capability)
	}

	return &AgentDriver{
		adapter:     a,
		capability:  opts.Capability,
		executor:    opts.Executor,
		ws:          opts.Workspace,
		policy:      policy,
		limiter:     opts.Limiter,
		recorder:    recorder,
		tokens:      opts.Tokens,
		logger:      logx.NewLogger("driver"),
		model:       opts.Model,
		requiredEnv: opts.RequiredEnv,
		rateKey:     rateKey,
		environ:     os.Environ,
		sleep:       sleepCtx,
	}, nil
}

// Execute runs one task to completion, blocking through all retries.
// The returned AgentResult is always the last attempt's result.
func (d *AgentDriver) Execute(ctx context.Context, task plan.TaskSpec) (plan.AgentResult, error) {
	result, _, err := d.execute(ctx, task, d.policy.MaxAttempts())
	return result, err
}

// ExecuteAsync runs one task in a goroutine and delivers the outcome on the
// returned channel. The channel is buffered and closed after one send.
func (d *AgentDriver) ExecuteAsync(ctx context.Context, task plan.TaskSpec) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		result, err := d.Execute(ctx, task)
		ch <- Outcome{Result: result, Err: err}
		close(ch)
	}()
	return ch
}

// ExecuteStep runs one plan step and reconciles the raw agent output into a
// typed StepResult. Never returns an error: validation failures, timeouts,
// and exhausted retries all surface as the step's status.
func (d *AgentDriver) ExecuteStep(ctx context.Context, step plan.PlanStep) plan.StepResult {
	if err := step.Validate(); err != nil {
		return plan.StepResult{
			StepID:  step.ID,
			Status:  plan.StepStatusError,
			Summary: plan.TruncateSummary(fmt.Sprintf("invalid step: %v", err)),
		}
	}

	if d.tokens != nil && step.Constraints.MaxTokens > 0 {
		if !d.tokens.WithinLimit(step.Description, step.Constraints.MaxTokens) {
			return plan.StepResult{
				StepID: step.ID,
				Status: plan.StepStatusError,
				Summary: fmt.Sprintf("instruction exceeds token budget of %d",
					step.Constraints.MaxTokens),
			}
		}
	}

	task := step.TaskSpec
	if budget := step.TimeBudget(); budget > 0 {
		task.Timeout = budget
	}

	attempts := step.MaxIterations
	if attempts < 1 {
		attempts = d.policy.MaxAttempts()
	}

	result, durations, err := d.execute(ctx, task, attempts)
	logRef := formatAttempts(durations)

	if err != nil {
		switch {
		case agenterrors.Is(err, agenterrors.ErrorTypeTimeout):
			return plan.StepResult{
				StepID:  step.ID,
				Status:  plan.StepStatusTimeout,
				Summary: plan.TruncateSummary(fmt.Sprintf("agent timed out after %s", result.Duration.Round(time.Millisecond))),
				Notes:   err.Error(),
				LogRef:  logRef,
			}
		case agenterrors.Is(err, agenterrors.ErrorTypeValidation):
			return plan.StepResult{
				StepID:  step.ID,
				Status:  plan.StepStatusError,
				Summary: plan.TruncateSummary(err.Error()),
				LogRef:  logRef,
			}
		case len(durations) == 0:
			// The subprocess never ran (admission rejected, workspace
			// failure). Infrastructure trouble, not an agent failure.
			return plan.StepResult{
				StepID:  step.ID,
				Status:  plan.StepStatusError,
				Summary: plan.TruncateSummary(err.Error()),
			}
		}
	}

	parsed := parser.ParseStep(step.ID, result.Stdout, result.Stderr, result.ExitCode)
	parsed.LogRef = logRef
	if err != nil {
		if parsed.Status == plan.StepStatusOK {
			// Error-signature scan overrode a clean exit.
			parsed.Status = plan.StepStatusFail
		}
		parsed.Notes = appendNote(parsed.Notes, err.Error())
	}
	return parsed
}

// execute is the shared retry loop. It returns the last attempt's result,
// the per-attempt durations, and the final classified error (nil on success).
func (d *AgentDriver) execute(ctx context.Context, task plan.TaskSpec, maxAttempts int) (plan.AgentResult, []time.Duration, error) {
	if err := task.Validate(); err != nil {
		return plan.AgentResult{}, nil, agenterrors.NewErrorWithCause(
			agenterrors.ErrorTypeValidation, err, "invalid task")
	}

	if d.limiter != nil {
		if err := d.limiter.Allow(d.rateKey); err != nil {
			d.recorder.IncThrottle(d.rateKey)
			return plan.AgentResult{}, nil, err
		}
	}

	sessionID := uuid.NewString()
	workDir, cleanup, err := d.ws.Acquire(sessionID)
	if err != nil {
		return plan.AgentResult{}, nil, agenterrors.NewErrorWithCause(
			agenterrors.ErrorTypeFatal, err, "failed to acquire working directory")
	}
	defer cleanup()

	cmd := d.adapter.BuildCommand(adapter.Request{
		Prompt:    renderPrompt(task),
		Model:     d.model,
		SessionID: sessionID,
	})
	env := adapter.FilterEnv(d.environ(), d.requiredEnv)

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = d.adapter.DefaultTimeout()
	}

	var (
		state     retryState
		last      plan.AgentResult
		durations []time.Duration
	)

	for state.attempt = 0; state.attempt < maxAttempts; state.attempt++ {
		d.logger.Debug("Attempt %d/%d for session %s", state.attempt+1, maxAttempts, sessionID)

		res, runErr := d.executor.Run(ctx, cmd, &exec.Opts{
			Env:     env,
			Timeout: timeout,
			WorkDir: workDir,
		})
		durations = append(durations, res.Duration)

		last = plan.AgentResult{
			ExitCode:  res.ExitCode,
			Stdout:    res.Stdout,
			Stderr:    res.Stderr,
			Duration:  res.Duration,
			Model:     d.model,
			SessionID: sessionID,
			TimedOut:  res.TimedOut,
		}

		// Timeout aborts the whole call. No further attempts.
		if res.TimedOut {
			return last, durations, agenterrors.NewErrorWithCause(
				agenterrors.ErrorTypeTimeout, runErr,
				fmt.Sprintf("agent timed out after %s", timeout))
		}
		if ctx.Err() != nil {
			return last, durations, agenterrors.Classify(ctx.Err())
		}

		state.lastErr = d.classifyAttempt(res, runErr)
		if state.lastErr == nil {
			last.Success = true
			return last, durations, nil
		}

		if !d.shouldRetry(state.lastErr) || state.attempt == maxAttempts-1 {
			return last, durations, state.lastErr
		}

		state.nextDelay = d.policy.Delay(state.attempt)
		d.recorder.IncRetry(string(d.capability), agenterrors.TypeOf(state.lastErr).String())
		d.logger.Info("Retrying session %s in %s: %v", sessionID, state.nextDelay, state.lastErr)

		if err := d.sleep(ctx, state.nextDelay); err != nil {
			return last, durations, agenterrors.Classify(err)
		}
	}

	return last, durations, state.lastErr
}

// classifyAttempt converts one attempt's outcome into a classified error,
// or nil when the attempt succeeded. Exit code 0 is necessary but not
// sufficient: known error signatures in output override it.
func (d *AgentDriver) classifyAttempt(res exec.Result, runErr error) error {
	if runErr != nil {
		return agenterrors.Classify(runErr)
	}

	if res.ExitCode == 0 {
		sig := d.adapter.DetectFailure(res.Stdout, res.Stderr)
		if sig == "" {
			return nil
		}
		return agenterrors.Classify(fmt.Errorf("agent output matched error signature %q", sig))
	}

	return agenterrors.Classify(fmt.Errorf("agent exited %d: %s", res.ExitCode, tailLine(res.Stderr)))
}

// shouldRetry combines the generic taxonomy with the adapter's CLI-specific
// retry rules.
func (d *AgentDriver) shouldRetry(err error) bool {
	return d.policy.ShouldRetry(err) || d.adapter.ShouldRetry(err)
}

// renderPrompt builds the instruction handed to the agent: the opaque task
// description followed by advisory context and file-scope notes.
func renderPrompt(task plan.TaskSpec) string {
	var b strings.Builder
	b.WriteString(task.Description)

	if len(task.ContextPaths) > 0 {
		b.WriteString("\n\nRead these files first:\n")
		for _, p := range task.ContextPaths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if len(task.AllowPatterns) > 0 {
		fmt.Fprintf(&b, "\nOnly modify files matching: %s\n", strings.Join(task.AllowPatterns, ", "))
	}
	if len(task.DenyPatterns) > 0 {
		fmt.Fprintf(&b, "Do not modify files matching: %s\n", strings.Join(task.DenyPatterns, ", "))
	}
	return b.String()
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// formatAttempts renders per-attempt durations for the step's log reference.
func formatAttempts(durations []time.Duration) string {
	if len(durations) == 0 {
		return ""
	}
	parts := make([]string, len(durations))
	for i, d := range durations {
		parts[i] = fmt.Sprintf("attempt %d: %s", i+1, d.Round(time.Millisecond))
	}
	return strings.Join(parts, "; ")
}

// tailLine returns the last non-empty line of s, bounded for log safety.
func tailLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			if len(line) > 200 {
				line = line[:200]
			}
			return line
		}
	}
	return ""
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
