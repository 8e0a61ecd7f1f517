// Package orchestrator turns multi-step plans into sequenced or fanned-out
// agent executions and aggregates the typed step results.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/persistence"
	"conductor/pkg/plan"
)

// StepExecutor runs one plan step to a terminal StepResult. Implemented by
// driver.AgentDriver; faked in tests.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step plan.PlanStep) plan.StepResult
}

// Options configure a PlanOrchestrator.
type Options struct {
	// Driver executes individual steps.
	Driver StepExecutor

	// Tool names the agent CLI family, used for metric labels.
	Tool string

	// Root is the project directory plans run against. When non-empty it is
	// checked on every ExecutePlan call; a missing root yields an error-status
	// result instead of a raised error.
	Root string

	// SessionID labels history records. Defaults to "adhoc".
	SessionID string

	// Recorder is optional; nil disables metrics.
	Recorder metrics.Recorder

	// Store is optional; nil disables execution history.
	Store *persistence.Store
}

// PlanOrchestrator executes plans. It is a plain value with injected
// dependencies; nothing here is process-global, so independent orchestrators
// can run side by side (tests, embedded use).
type PlanOrchestrator struct {
	driver    StepExecutor
	tool      string
	root      string
	sessionID string
	recorder  metrics.Recorder
	store     *persistence.Store
	logger    *logx.Logger
}

// New creates a PlanOrchestrator.
func New(opts Options) (*PlanOrchestrator, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("step executor is required")
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NewNopRecorder()
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = "adhoc"
	}

	return &PlanOrchestrator{
		driver:    opts.Driver,
		tool:      opts.Tool,
		root:      opts.Root,
		sessionID: sessionID,
		recorder:  recorder,
		store:     opts.Store,
		logger:    logx.NewLogger("orchestrator"),
	}, nil
}

// ExecutePlan runs every step of p and aggregates the results. It always
// returns a PlanExecutionResult: invalid plans and missing project roots
// yield an error-status result with empty step results, and step-level
// trouble (including panics in parallel mode) is captured per step.
func (o *PlanOrchestrator) ExecutePlan(ctx context.Context, p *plan.Plan) plan.PlanExecutionResult {
	started := time.Now()

	if p == nil {
		return errorResult("no plan provided")
	}
	if err := p.Validate(); err != nil {
		return errorResult(fmt.Sprintf("invalid plan: %v", err))
	}
	if o.root != "" {
		info, err := os.Stat(o.root)
		if err != nil || !info.IsDir() {
			return errorResult(fmt.Sprintf("project root not accessible: %s", o.root))
		}
	}

	steps := o.effectiveSteps(p)
	o.logger.Info("Executing plan %q: %d steps, mode=%s", p.Name, len(steps), p.Mode)

	var results []plan.StepResult
	if p.Mode == plan.ModeParallel {
		results = o.runParallel(ctx, p, steps)
	} else {
		results = o.runSequential(ctx, p, steps)
	}

	result := plan.PlanExecutionResult{
		Status:  plan.AggregateStatus(results),
		Results: results,
		Files:   plan.MergeFiles(results),
	}

	duration := time.Since(started)
	o.recorder.ObservePlan(p.Name, string(p.Mode), string(result.Status), len(results), duration)
	o.record(ctx, p, &result, started, duration)

	o.logger.Info("Plan %q finished: status=%s in %s", p.Name, result.Status, duration.Round(time.Millisecond))
	return result
}

// effectiveSteps folds plan-level scope patterns into each step's task.
func (o *PlanOrchestrator) effectiveSteps(p *plan.Plan) []plan.PlanStep {
	steps := make([]plan.PlanStep, len(p.Steps))
	for i := range p.Steps {
		step := p.Steps[i]
		step.AllowPatterns = p.MergedAllow(&p.Steps[i])
		step.DenyPatterns = p.MergedDeny(&p.Steps[i])
		steps[i] = step
	}
	return steps
}

// runSequential executes steps strictly in list order. Step N+1 is
// dispatched only after step N's result, including all of its retries, is
// available. A failing step never halts the plan.
func (o *PlanOrchestrator) runSequential(ctx context.Context, p *plan.Plan, steps []plan.PlanStep) []plan.StepResult {
	results := make([]plan.StepResult, 0, len(steps))
	for i := range steps {
		results = append(results, o.runStep(ctx, p.Name, steps[i]))
	}
	return results
}

// runParallel fans steps out through a channel semaphore bounded by the
// plan's fanout. Results keep plan order regardless of completion order.
func (o *PlanOrchestrator) runParallel(ctx context.Context, p *plan.Plan, steps []plan.PlanStep) []plan.StepResult {
	results := make([]plan.StepResult, len(steps))
	sem := make(chan struct{}, p.Fanout)
	done := make(chan int)

	for i := range steps {
		go func(idx int) {
			sem <- struct{}{}
			defer func() {
				<-sem
				done <- idx
			}()
			results[idx] = o.runStep(ctx, p.Name, steps[idx])
		}(i)
	}
	for range steps {
		<-done
	}

	o.attachOverlapAdvisories(steps, results)
	return results
}

// runStep executes one step, converting panics into error-status results so
// a misbehaving step can never take down the plan.
func (o *PlanOrchestrator) runStep(ctx context.Context, planName string, step plan.PlanStep) (result plan.StepResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Step %s panicked: %v", step.ID, r)
			result = plan.StepResult{
				StepID:  step.ID,
				Status:  plan.StepStatusError,
				Summary: plan.TruncateSummary(fmt.Sprintf("step panicked: %v", r)),
			}
		}
		o.observeStep(planName, step, result, time.Since(started))
	}()

	o.logger.Debug("Dispatching step %s", step.ID)
	result = o.driver.ExecuteStep(ctx, step)
	return result
}

func (o *PlanOrchestrator) observeStep(planName string, step plan.PlanStep, result plan.StepResult, duration time.Duration) {
	errorType := ""
	if result.Status != plan.StepStatusOK {
		errorType = string(result.Status)
	}
	o.recorder.ObserveStep(planName, step.ID, o.tool, string(result.Status), errorType,
		strings.Join(step.AllowPatterns, ","), duration)
}

// attachOverlapAdvisories notes pairs of parallel steps whose allow scopes
// plausibly cover the same files. Advisory only; overlapping steps are never
// serialized.
func (o *PlanOrchestrator) attachOverlapAdvisories(steps []plan.PlanStep, results []plan.StepResult) {
	for i := range steps {
		for j := i + 1; j < len(steps); j++ {
			if !plan.ScopesOverlap(steps[i].AllowPatterns, steps[j].AllowPatterns) {
				continue
			}
			addNote(&results[i], fmt.Sprintf("file scope overlaps with step %s", steps[j].ID))
			addNote(&results[j], fmt.Sprintf("file scope overlaps with step %s", steps[i].ID))
		}
	}
}

// record persists the plan outcome. History failures are logged and dropped;
// they never affect the returned result.
func (o *PlanOrchestrator) record(ctx context.Context, p *plan.Plan, result *plan.PlanExecutionResult, started time.Time, duration time.Duration) {
	if o.store == nil {
		return
	}
	if _, err := o.store.RecordPlan(ctx, o.sessionID, p.Name, string(p.Mode), result, started, duration); err != nil {
		o.logger.Warn("Failed to record plan execution: %v", err)
	}
}

func addNote(result *plan.StepResult, note string) {
	if result.Notes == "" {
		result.Notes = note
		return
	}
	result.Notes += "; " + note
}

func errorResult(note string) plan.PlanExecutionResult {
	return plan.PlanExecutionResult{
		Status:  plan.PlanStatusError,
		Results: []plan.StepResult{},
		Notes:   note,
	}
}
