package parser

import (
	"encoding/json"
	"sort"
	"strings"

	"conductor/pkg/plan"
)

// Overall-status values accepted in plan-shaped agent output.
const (
	overallSuccess = "success"
	overallPartial = "partial"
	overallFailed  = "failed"
)

// taskShaped is the JSON schema for single-task agent results.
type taskShaped struct {
	Summary string   `json:"summary"`
	Status  string   `json:"status,omitempty"`
	Files   []string `json:"files,omitempty"`
	Notes   string   `json:"notes,omitempty"`
}

// planShaped is the JSON schema for plan-level agent results. Raw fields are
// kept so field shapes can be validated explicitly: a string where a list
// belongs is a schema violation, not a partial success.
type planShaped struct {
	OverallStatus  string          `json:"overall_status"`
	StepsCompleted json.RawMessage `json:"steps_completed"`
	StepsFailed    json.RawMessage `json:"steps_failed"`
	StepSummaries  json.RawMessage `json:"step_summaries"`
	Notes          string          `json:"notes,omitempty"`
}

// PlanOutcome is a validated plan-shaped agent result.
type PlanOutcome struct {
	OverallStatus plan.PlanStatus
	Steps         []plan.StepResult
	Notes         string
}

// ParseStep converts raw agent output into a StepResult for one task.
// Pure and side-effect-free; never returns an error. Malformed or missing
// JSON falls back to heuristic extraction.
func ParseStep(stepID, stdout, stderr string, exitCode int) plan.StepResult {
	combined := combineOutput(stdout, stderr)

	if candidate, ok := extractFirst(combined); ok {
		if result, ok := parseTaskShaped(stepID, candidate, exitCode); ok {
			return result
		}
		if result, ok := parsePlanShapedAsStep(stepID, candidate); ok {
			return result
		}
	}

	return heuristicStepResult(stepID, combined, exitCode)
}

// ParsePlan extracts a validated plan-shaped result from raw agent output.
// Returns false when no extraction strategy yields JSON that passes schema
// validation; callers then fall back to per-step parsing.
func ParsePlan(stdout, stderr string) (PlanOutcome, bool) {
	combined := combineOutput(stdout, stderr)

	candidate, ok := extractFirst(combined)
	if !ok {
		return PlanOutcome{}, false
	}
	return parsePlanCandidate(candidate)
}

// parsePlanCandidate validates one JSON candidate against the plan schema.
func parsePlanCandidate(candidate string) (PlanOutcome, bool) {
	var shaped planShaped
	if err := json.Unmarshal([]byte(candidate), &shaped); err != nil {
		return PlanOutcome{}, false
	}

	overall, ok := mapOverallStatus(shaped.OverallStatus)
	if !ok {
		return PlanOutcome{}, false
	}

	completed, ok := decodeStringList(shaped.StepsCompleted)
	if !ok || shaped.StepsCompleted == nil {
		// steps_completed is required and must be a list.
		return PlanOutcome{}, false
	}
	failed, ok := decodeStringList(shaped.StepsFailed)
	if !ok {
		return PlanOutcome{}, false
	}
	summaries, ok := decodeStringMap(shaped.StepSummaries)
	if !ok || shaped.StepSummaries == nil {
		// step_summaries is required and must be a mapping.
		return PlanOutcome{}, false
	}

	return PlanOutcome{
		OverallStatus: overall,
		Steps:         buildStepResults(completed, failed, summaries),
		Notes:         shaped.Notes,
	}, true
}

// buildStepResults orders results as completed, then failed, then steps that
// appear only in the summaries. A step mentioned in step_summaries but in
// neither id list is reported as unknown rather than silently successful.
func buildStepResults(completed, failed []string, summaries map[string]string) []plan.StepResult {
	listed := make(map[string]bool, len(completed)+len(failed))
	results := make([]plan.StepResult, 0, len(summaries))

	for _, id := range completed {
		listed[id] = true
		results = append(results, plan.StepResult{
			StepID:  id,
			Status:  plan.StepStatusOK,
			Summary: plan.TruncateSummary(summaries[id]),
		})
	}
	for _, id := range failed {
		if listed[id] {
			continue
		}
		listed[id] = true
		results = append(results, plan.StepResult{
			StepID:  id,
			Status:  plan.StepStatusFail,
			Summary: plan.TruncateSummary(summaries[id]),
		})
	}

	// Sorted for deterministic output; map iteration order is random.
	var orphaned []string
	for id := range summaries {
		if !listed[id] {
			orphaned = append(orphaned, id)
		}
	}
	sort.Strings(orphaned)
	for _, id := range orphaned {
		results = append(results, plan.StepResult{
			StepID:  id,
			Status:  plan.StepStatusUnknown,
			Summary: plan.TruncateSummary(summaries[id]),
			Notes:   "step reported in summaries but not in completed or failed lists",
		})
	}

	return results
}

func parseTaskShaped(stepID, candidate string, exitCode int) (plan.StepResult, bool) {
	var shaped taskShaped
	if err := json.Unmarshal([]byte(candidate), &shaped); err != nil {
		return plan.StepResult{}, false
	}
	if shaped.Summary == "" {
		// A summary field is required for single-task results.
		return plan.StepResult{}, false
	}

	status := statusFromExitCode(exitCode)
	switch shaped.Status {
	case overallSuccess:
		status = plan.StepStatusOK
	case overallFailed, "failure":
		status = plan.StepStatusFail
	}

	return plan.StepResult{
		StepID:       stepID,
		Status:       status,
		Summary:      plan.TruncateSummary(shaped.Summary),
		Notes:        shaped.Notes,
		TouchedPaths: dedupePaths(shaped.Files),
	}, true
}

// parsePlanShapedAsStep collapses a plan-shaped result into the StepResult
// of the step that produced it: some agents report their work as a mini-plan
// even when asked for a single task.
func parsePlanShapedAsStep(stepID, candidate string) (plan.StepResult, bool) {
	outcome, ok := parsePlanCandidate(candidate)
	if !ok {
		return plan.StepResult{}, false
	}

	status := plan.StepStatusFail
	if outcome.OverallStatus == plan.PlanStatusOK {
		status = plan.StepStatusOK
	}

	summary := outcome.Notes
	if summary == "" {
		parts := make([]string, 0, len(outcome.Steps))
		for i := range outcome.Steps {
			if outcome.Steps[i].Summary != "" {
				parts = append(parts, outcome.Steps[i].Summary)
			}
		}
		summary = strings.Join(parts, "; ")
	}

	return plan.StepResult{
		StepID:  stepID,
		Status:  status,
		Summary: plan.TruncateSummary(summary),
	}, true
}

func heuristicStepResult(stepID, combined string, exitCode int) plan.StepResult {
	return plan.StepResult{
		StepID:       stepID,
		Status:       statusFromExitCode(exitCode),
		Summary:      plan.TruncateSummary(heuristicSummary(combined)),
		TouchedPaths: extractPaths(combined),
	}
}

func statusFromExitCode(exitCode int) plan.StepStatus {
	if exitCode == 0 {
		return plan.StepStatusOK
	}
	return plan.StepStatusFail
}

func mapOverallStatus(s string) (plan.PlanStatus, bool) {
	switch s {
	case overallSuccess:
		return plan.PlanStatusOK, true
	case overallPartial:
		return plan.PlanStatusPartial, true
	case overallFailed:
		return plan.PlanStatusError, true
	default:
		return "", false
	}
}

func decodeStringList(raw json.RawMessage) ([]string, bool) {
	if raw == nil {
		return nil, true
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

func decodeStringMap(raw json.RawMessage) (map[string]string, bool) {
	if raw == nil {
		return nil, true
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func combineOutput(stdout, stderr string) string {
	if strings.TrimSpace(stderr) == "" {
		return stdout
	}
	return stdout + "\n" + stderr
}
