// Package metrics provides execution metrics recording and querying.
//
// Recording is strictly fire-and-forget: no Recorder method returns an
// error, so a misbehaving metrics backend can never affect the execution
// result returned to the caller.
package metrics

import "time"

// Recorder receives per-step and per-plan execution observations.
type Recorder interface {
	// ObserveStep records one completed step execution.
	ObserveStep(planName, stepID, tool, status, errorType, fileScope string, duration time.Duration)

	// ObservePlan records one completed plan execution.
	ObservePlan(planName, mode, status string, steps int, duration time.Duration)

	// IncRetry counts one retry attempt by tool and error type.
	IncRetry(tool, errorType string)

	// IncThrottle counts one rate-limit rejection for a key.
	IncThrottle(key string)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

// NewNopRecorder creates a recorder that discards everything.
func NewNopRecorder() *NopRecorder {
	return &NopRecorder{}
}

func (*NopRecorder) ObserveStep(planName, stepID, tool, status, errorType, fileScope string, duration time.Duration) {
}
func (*NopRecorder) ObservePlan(planName, mode, status string, steps int, duration time.Duration) {}
func (*NopRecorder) IncRetry(tool, errorType string)                                              {}
func (*NopRecorder) IncThrottle(key string)                                                       {}
