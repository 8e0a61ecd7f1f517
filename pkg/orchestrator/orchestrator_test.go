package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/persistence"
	"conductor/pkg/plan"
)

// fakeDriver returns scripted step results and tracks dispatch concurrency.
type fakeDriver struct {
	mu         sync.Mutex
	order      []string
	running    int32
	maxRunning int32
	delay      time.Duration
	results    map[string]plan.StepResult
	panicOn    map[string]bool
}

func (f *fakeDriver) ExecuteStep(_ context.Context, step plan.PlanStep) plan.StepResult {
	running := atomic.AddInt32(&f.running, 1)
	defer atomic.AddInt32(&f.running, -1)
	for {
		max := atomic.LoadInt32(&f.maxRunning)
		if running <= max || atomic.CompareAndSwapInt32(&f.maxRunning, max, running) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, step.ID)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicOn[step.ID] {
		panic("scripted panic in " + step.ID)
	}
	if r, ok := f.results[step.ID]; ok {
		return r
	}
	return plan.StepResult{StepID: step.ID, Status: plan.StepStatusOK, Summary: "done"}
}

func newOrchestrator(t *testing.T, d StepExecutor, opts Options) *PlanOrchestrator {
	t.Helper()
	opts.Driver = d
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func sequentialPlan(ids ...string) *plan.Plan {
	p := &plan.Plan{Name: "test-plan", Mode: plan.ModeSequential}
	for _, id := range ids {
		p.Steps = append(p.Steps, plan.PlanStep{
			ID:            id,
			MaxIterations: 1,
			TaskSpec:      plan.TaskSpec{Description: "work for " + id},
		})
	}
	return p
}

func parallelPlan(fanout int, ids ...string) *plan.Plan {
	p := sequentialPlan(ids...)
	p.Mode = plan.ModeParallel
	p.Fanout = fanout
	return p
}

func TestExecutePlanSequentialOrder(t *testing.T) {
	fake := &fakeDriver{}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), sequentialPlan("s1", "s2", "s3"))

	assert.Equal(t, plan.PlanStatusOK, result.Status)
	assert.Equal(t, []string{"s1", "s2", "s3"}, fake.order)
	require.Len(t, result.Results, 3)
	for i, id := range []string{"s1", "s2", "s3"} {
		assert.Equal(t, id, result.Results[i].StepID)
	}
}

func TestExecutePlanSequentialContinuesPastFailure(t *testing.T) {
	fake := &fakeDriver{results: map[string]plan.StepResult{
		"s2": {StepID: "s2", Status: plan.StepStatusFail, Summary: "agent exited 1"},
	}}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), sequentialPlan("s1", "s2", "s3"))

	// A failing step does not halt the plan.
	assert.Equal(t, []string{"s1", "s2", "s3"}, fake.order)
	assert.Equal(t, plan.PlanStatusPartial, result.Status)
	assert.Equal(t, plan.StepStatusFail, result.Results[1].Status)
}

func TestExecutePlanParallelFanoutBound(t *testing.T) {
	fake := &fakeDriver{delay: 30 * time.Millisecond}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), parallelPlan(2, "a", "b", "c", "d", "e"))

	assert.Equal(t, plan.PlanStatusOK, result.Status)
	assert.LessOrEqual(t, fake.maxRunning, int32(2), "fanout bound exceeded")
	assert.Len(t, fake.order, 5)
}

func TestExecutePlanParallelResultsKeepPlanOrder(t *testing.T) {
	fake := &fakeDriver{delay: 5 * time.Millisecond}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), parallelPlan(3, "a", "b", "c", "d"))

	require.Len(t, result.Results, 4)
	for i, id := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, id, result.Results[i].StepID)
	}
}

func TestExecutePlanParallelPanicIsolated(t *testing.T) {
	fake := &fakeDriver{panicOn: map[string]bool{"b": true}}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), parallelPlan(2, "a", "b", "c"))

	assert.Equal(t, plan.PlanStatusPartial, result.Status)
	assert.Equal(t, plan.StepStatusOK, result.Results[0].Status)
	assert.Equal(t, plan.StepStatusError, result.Results[1].Status)
	assert.Contains(t, result.Results[1].Summary, "panicked")
	assert.Equal(t, plan.StepStatusOK, result.Results[2].Status)
}

func TestExecutePlanTimeoutIsolatedFromSiblings(t *testing.T) {
	fake := &fakeDriver{results: map[string]plan.StepResult{
		"slow": {StepID: "slow", Status: plan.StepStatusTimeout, Summary: "agent timed out"},
	}}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), parallelPlan(2, "slow", "ok1", "ok2"))

	assert.Equal(t, plan.PlanStatusPartial, result.Status)
	assert.Equal(t, plan.StepStatusTimeout, result.Results[0].Status)
	assert.Equal(t, plan.StepStatusOK, result.Results[1].Status)
	assert.Equal(t, plan.StepStatusOK, result.Results[2].Status)
}

func TestExecutePlanInvalidRootReturnsErrorResult(t *testing.T) {
	fake := &fakeDriver{}
	o := newOrchestrator(t, fake, Options{Root: filepath.Join(t.TempDir(), "does-not-exist")})

	result := o.ExecutePlan(context.Background(), sequentialPlan("s1"))

	assert.Equal(t, plan.PlanStatusError, result.Status)
	assert.Empty(t, result.Results)
	assert.Contains(t, result.Notes, "project root")
	assert.Empty(t, fake.order, "no step may be dispatched")
}

func TestExecutePlanInvalidPlanReturnsErrorResult(t *testing.T) {
	fake := &fakeDriver{}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), &plan.Plan{Name: "empty"})
	assert.Equal(t, plan.PlanStatusError, result.Status)
	assert.Empty(t, result.Results)

	result = o.ExecutePlan(context.Background(), nil)
	assert.Equal(t, plan.PlanStatusError, result.Status)
}

func TestExecutePlanAllStepsFail(t *testing.T) {
	fake := &fakeDriver{results: map[string]plan.StepResult{
		"s1": {StepID: "s1", Status: plan.StepStatusFail},
		"s2": {StepID: "s2", Status: plan.StepStatusError},
	}}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), sequentialPlan("s1", "s2"))
	assert.Equal(t, plan.PlanStatusError, result.Status)
}

func TestExecutePlanMergesTouchedFiles(t *testing.T) {
	fake := &fakeDriver{results: map[string]plan.StepResult{
		"s1": {StepID: "s1", Status: plan.StepStatusOK, TouchedPaths: []string{"a.go", "b.go"}},
		"s2": {StepID: "s2", Status: plan.StepStatusOK, TouchedPaths: []string{"b.go", "c.go"}},
	}}
	o := newOrchestrator(t, fake, Options{})

	result := o.ExecutePlan(context.Background(), sequentialPlan("s1", "s2"))
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, result.Files)
}

func TestExecutePlanOverlapAdvisory(t *testing.T) {
	fake := &fakeDriver{}
	o := newOrchestrator(t, fake, Options{})

	p := parallelPlan(2, "a", "b", "c")
	p.Steps[0].AllowPatterns = []string{"src/auth/**"}
	p.Steps[1].AllowPatterns = []string{"src/auth/token/**"}
	p.Steps[2].AllowPatterns = []string{"docs/**"}

	result := o.ExecutePlan(context.Background(), p)

	assert.Contains(t, result.Results[0].Notes, "overlaps with step b")
	assert.Contains(t, result.Results[1].Notes, "overlaps with step a")
	assert.Empty(t, result.Results[2].Notes)
}

func TestExecutePlanMergesPlanScopeIntoSteps(t *testing.T) {
	var got []plan.PlanStep
	fake := &recordingDriver{steps: &got}
	o := newOrchestrator(t, fake, Options{})

	p := sequentialPlan("s1")
	p.AllowPatterns = []string{"src/**"}
	p.DenyPatterns = []string{"vendor/**"}
	p.Steps[0].AllowPatterns = []string{"src/api/**"}

	o.ExecutePlan(context.Background(), p)

	require.Len(t, got, 1)
	assert.Equal(t, []string{"src/api/**", "src/**"}, got[0].AllowPatterns)
	assert.Equal(t, []string{"vendor/**"}, got[0].DenyPatterns)
}

// recordingDriver captures the effective steps handed to it.
type recordingDriver struct {
	mu    sync.Mutex
	steps *[]plan.PlanStep
}

func (r *recordingDriver) ExecuteStep(_ context.Context, step plan.PlanStep) plan.StepResult {
	r.mu.Lock()
	*r.steps = append(*r.steps, step)
	r.mu.Unlock()
	return plan.StepResult{StepID: step.ID, Status: plan.StepStatusOK}
}

func TestExecutePlanRecordsHistory(t *testing.T) {
	store, err := persistence.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	fake := &fakeDriver{}
	o := newOrchestrator(t, fake, Options{Store: store, SessionID: "sess-42"})

	o.ExecutePlan(context.Background(), sequentialPlan("s1", "s2"))

	plans, err := store.RecentPlans(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "test-plan", plans[0].PlanName)
	assert.Equal(t, "sess-42", plans[0].SessionID)
	assert.Equal(t, "ok", plans[0].Status)
	assert.Equal(t, 2, plans[0].Steps)

	steps, err := store.StepsForPlan(context.Background(), plans[0].ID)
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestNewRequiresDriver(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
