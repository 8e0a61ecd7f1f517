// Package plan defines the shared data model for delegated task execution:
// task specs, plan steps, and the immutable result types produced by the
// driver and orchestrator.
package plan

import (
	"fmt"
	"time"
)

// MaxSummaryLength bounds StepResult summaries. Longer text is truncated.
const MaxSummaryLength = 500

// TaskSpec describes one unit of delegated work. Immutable once created;
// passed by value into the driver.
type TaskSpec struct {
	// Description is the instruction text handed to the agent. The
	// orchestrator treats it as opaque data.
	Description string `json:"description" yaml:"description"`

	// ContextPaths lists files or directories the agent should read first.
	ContextPaths []string `json:"context_paths,omitempty" yaml:"context_paths,omitempty"`

	// AllowPatterns and DenyPatterns are glob patterns describing the file
	// scope the agent may touch. Advisory only; never enforced.
	AllowPatterns []string `json:"allow_patterns,omitempty" yaml:"allow_patterns,omitempty"`
	DenyPatterns  []string `json:"deny_patterns,omitempty" yaml:"deny_patterns,omitempty"`

	// Timeout bounds each subprocess attempt. A timed-out attempt aborts
	// the whole execute call without further retries. Zero means the
	// adapter default applies.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// TestPlan lists verification commands for a step.
type TestPlan struct {
	Unit []string `json:"unit,omitempty" yaml:"unit,omitempty"`
	E2E  []string `json:"e2e,omitempty" yaml:"e2e,omitempty"`
}

// Constraints bounds a step's resource usage. Zero values mean unlimited.
type Constraints struct {
	MaxTokens         int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TimeBudgetSeconds int `json:"time_budget_seconds,omitempty" yaml:"time_budget_seconds,omitempty"`
}

// PlanStep extends TaskSpec with plan-level identity and budgets.
type PlanStep struct {
	TaskSpec `yaml:",inline"`

	// ID is unique within a plan (validated by Plan.Validate).
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// MaxIterations is the retry-iteration budget for the step (>= 1).
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`

	TestPlan    TestPlan    `json:"test_plan,omitempty" yaml:"test_plan,omitempty"`
	Constraints Constraints `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// ExecutionMode selects sequential or parallel step execution.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// Plan is an ordered set of steps plus plan-level scope patterns.
type Plan struct {
	Name  string        `json:"name,omitempty" yaml:"name,omitempty"`
	Mode  ExecutionMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Steps []PlanStep    `json:"steps" yaml:"steps"`

	// Fanout bounds concurrently running steps in parallel mode (>= 1).
	Fanout int `json:"fanout,omitempty" yaml:"fanout,omitempty"`

	// Plan-level scope patterns, merged into each step's instruction.
	AllowPatterns []string `json:"allow_patterns,omitempty" yaml:"allow_patterns,omitempty"`
	DenyPatterns  []string `json:"deny_patterns,omitempty" yaml:"deny_patterns,omitempty"`
}

// AgentResult is the raw outcome of one subprocess invocation. The driver
// returns the result of the last attempt.
type AgentResult struct {
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Duration  time.Duration `json:"duration"`
	Model     string        `json:"model,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
}

// StepStatus is the terminal status of one step.
type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusFail    StepStatus = "fail"
	StepStatusError   StepStatus = "error"
	StepStatusTimeout StepStatus = "timeout"
	// StepStatusUnknown marks a step that the agent mentioned in its
	// summaries without listing it as completed or failed.
	StepStatusUnknown StepStatus = "unknown"
)

// StepResult is the typed, immutable outcome of one step.
type StepResult struct {
	StepID       string     `json:"step_id"`
	Status       StepStatus `json:"status"`
	Summary      string     `json:"summary"`
	Notes        string     `json:"notes,omitempty"`
	TouchedPaths []string   `json:"touched_paths,omitempty"`
	LogRef       string     `json:"log_ref,omitempty"`
}

// PlanStatus is the aggregate status of a plan execution.
type PlanStatus string

const (
	PlanStatusOK      PlanStatus = "ok"
	PlanStatusPartial PlanStatus = "partial"
	PlanStatusError   PlanStatus = "error"
)

// PlanExecutionResult is the aggregate outcome of one plan invocation.
// Constructed once; never mutated afterward.
type PlanExecutionResult struct {
	Status  PlanStatus   `json:"status"`
	Results []StepResult `json:"results"`
	Files   []string     `json:"files,omitempty"`
	Notes   string       `json:"notes,omitempty"`
}

// TruncateSummary bounds a summary to MaxSummaryLength.
func TruncateSummary(s string) string {
	if len(s) <= MaxSummaryLength {
		return s
	}
	return s[:MaxSummaryLength-3] + "..."
}

// AggregateStatus computes the overall plan status from step statuses.
// Pure function: all ok -> ok, none ok -> error, mixed -> partial.
func AggregateStatus(results []StepResult) PlanStatus {
	if len(results) == 0 {
		return PlanStatusError
	}

	succeeded := 0
	for i := range results {
		if results[i].Status == StepStatusOK {
			succeeded++
		}
	}

	switch succeeded {
	case len(results):
		return PlanStatusOK
	case 0:
		return PlanStatusError
	default:
		return PlanStatusPartial
	}
}

// MergeFiles merges the touched-path lists of all step results,
// de-duplicated while preserving first-seen order.
func MergeFiles(results []StepResult) []string {
	seen := make(map[string]bool)
	var merged []string
	for i := range results {
		for _, p := range results[i].TouchedPaths {
			if !seen[p] {
				seen[p] = true
				merged = append(merged, p)
			}
		}
	}
	return merged
}

// Validate checks a TaskSpec before dispatch.
func (t *TaskSpec) Validate() error {
	if t.Description == "" {
		return fmt.Errorf("task description must not be empty")
	}
	if t.Timeout < 0 {
		return fmt.Errorf("task timeout must not be negative")
	}
	return nil
}

// Validate checks a PlanStep before dispatch.
func (s *PlanStep) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("step id must not be empty")
	}
	if err := s.TaskSpec.Validate(); err != nil {
		return fmt.Errorf("step %s: %w", s.ID, err)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("step %s: max_iterations must be >= 1", s.ID)
	}
	if s.Constraints.MaxTokens < 0 {
		return fmt.Errorf("step %s: max_tokens must be >= 0", s.ID)
	}
	if s.Constraints.TimeBudgetSeconds < 0 {
		return fmt.Errorf("step %s: time_budget_seconds must be >= 0", s.ID)
	}
	return nil
}

// Validate checks plan-level invariants: at least one step, unique step IDs,
// positive fanout in parallel mode, and per-step validity.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan must contain at least one step")
	}
	if p.Mode == ModeParallel && p.Fanout < 1 {
		return fmt.Errorf("parallel plan fanout must be >= 1")
	}

	seen := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		step := &p.Steps[i]
		if err := step.Validate(); err != nil {
			return err
		}
		if seen[step.ID] {
			return fmt.Errorf("duplicate step id: %s", step.ID)
		}
		seen[step.ID] = true
	}
	return nil
}

// TimeBudget returns the effective per-step timeout: the step's time budget
// if set, otherwise the TaskSpec timeout, otherwise zero (driver default).
func (s *PlanStep) TimeBudget() time.Duration {
	if s.Constraints.TimeBudgetSeconds > 0 {
		return time.Duration(s.Constraints.TimeBudgetSeconds) * time.Second
	}
	return s.Timeout
}
