package plan

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStep(id string) PlanStep {
	return PlanStep{
		TaskSpec:      TaskSpec{Description: "do something"},
		ID:            id,
		MaxIterations: 1,
	}
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []StepStatus
		want     PlanStatus
	}{
		{"empty", nil, PlanStatusError},
		{"all ok", []StepStatus{StepStatusOK, StepStatusOK}, PlanStatusOK},
		{"none ok", []StepStatus{StepStatusFail, StepStatusError}, PlanStatusError},
		{"mixed", []StepStatus{StepStatusOK, StepStatusFail}, PlanStatusPartial},
		{"timeout counts as not ok", []StepStatus{StepStatusOK, StepStatusTimeout}, PlanStatusPartial},
		{"unknown counts as not ok", []StepStatus{StepStatusUnknown}, PlanStatusError},
		{"single ok", []StepStatus{StepStatusOK}, PlanStatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]StepResult, len(tt.statuses))
			for i, s := range tt.statuses {
				results[i] = StepResult{StepID: "s", Status: s}
			}
			assert.Equal(t, tt.want, AggregateStatus(results))
		})
	}
}

func TestMergeFiles(t *testing.T) {
	results := []StepResult{
		{TouchedPaths: []string{"src/a.go", "src/b.go"}},
		{TouchedPaths: []string{"src/b.go", "src/c.go"}},
	}
	assert.Equal(t, []string{"src/a.go", "src/b.go", "src/c.go"}, MergeFiles(results))
}

func TestTruncateSummary(t *testing.T) {
	short := "done"
	assert.Equal(t, short, TruncateSummary(short))

	long := strings.Repeat("x", MaxSummaryLength+100)
	truncated := TruncateSummary(long)
	assert.Len(t, truncated, MaxSummaryLength)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}

func TestPlanValidate(t *testing.T) {
	t.Run("valid sequential plan", func(t *testing.T) {
		p := &Plan{Mode: ModeSequential, Steps: []PlanStep{validStep("s1"), validStep("s2")}}
		assert.NoError(t, p.Validate())
	})

	t.Run("empty plan", func(t *testing.T) {
		p := &Plan{Mode: ModeSequential}
		assert.Error(t, p.Validate())
	})

	t.Run("duplicate step ids", func(t *testing.T) {
		p := &Plan{Mode: ModeSequential, Steps: []PlanStep{validStep("s1"), validStep("s1")}}
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate step id")
	})

	t.Run("parallel plan requires fanout", func(t *testing.T) {
		p := &Plan{Mode: ModeParallel, Steps: []PlanStep{validStep("s1")}}
		assert.Error(t, p.Validate())

		p.Fanout = 1
		assert.NoError(t, p.Validate())
	})

	t.Run("step validation", func(t *testing.T) {
		missingID := validStep("")
		p := &Plan{Mode: ModeSequential, Steps: []PlanStep{missingID}}
		assert.Error(t, p.Validate())

		noIterations := validStep("s1")
		noIterations.MaxIterations = 0
		p = &Plan{Mode: ModeSequential, Steps: []PlanStep{noIterations}}
		assert.Error(t, p.Validate())

		negativeTokens := validStep("s1")
		negativeTokens.Constraints.MaxTokens = -1
		p = &Plan{Mode: ModeSequential, Steps: []PlanStep{negativeTokens}}
		assert.Error(t, p.Validate())
	})
}

func TestStepTimeBudget(t *testing.T) {
	step := validStep("s1")
	assert.Equal(t, time.Duration(0), step.TimeBudget())

	step.Timeout = 30 * time.Second
	assert.Equal(t, 30*time.Second, step.TimeBudget())

	step.Constraints.TimeBudgetSeconds = 10
	assert.Equal(t, 10*time.Second, step.TimeBudget())
}

func TestParsePlanFile(t *testing.T) {
	doc := []byte(`
name: refactor-auth
mode: parallel
fanout: 3
allow_patterns: ["src/**"]
steps:
  - id: s1
    title: Extract token helpers
    description: Move token helpers into a shared package
    allow_patterns: ["src/auth/**"]
  - id: s2
    description: Update call sites
`)
	p, err := Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, "refactor-auth", p.Name)
	assert.Equal(t, ModeParallel, p.Mode)
	assert.Equal(t, 3, p.Fanout)
	require.Len(t, p.Steps, 2)
	// Defaults applied.
	assert.Equal(t, DefaultMaxIterations, p.Steps[0].MaxIterations)
	assert.Equal(t, DefaultMaxIterations, p.Steps[1].MaxIterations)
}

func TestParsePlanFileDefaults(t *testing.T) {
	doc := []byte(`
steps:
  - id: s1
    description: one step
`)
	p, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, p.Mode)
}

func TestParsePlanFileInvalid(t *testing.T) {
	_, err := Parse([]byte("steps: []"))
	assert.Error(t, err)

	_, err = Parse([]byte("{not yaml"))
	assert.Error(t, err)
}
