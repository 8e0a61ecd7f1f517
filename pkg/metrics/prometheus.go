package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	plansTotal    *prometheus.CounterVec
	planDuration  *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec
	throttleTotal *prometheus.CounterVec
}

var (
	// Singleton instance: promauto registers on the default registry, so
	// the metric vectors must only be created once per process.
	promInstance *PrometheusRecorder //nolint:gochecknoglobals
	promOnce     sync.Once           //nolint:gochecknoglobals
)

// NewPrometheusRecorder returns the process-wide Prometheus recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	promOnce.Do(func() {
		promInstance = &PrometheusRecorder{
			stepsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conductor_step_executions_total",
					Help: "Total number of step executions by plan, tool, status, and error type",
				},
				[]string{"plan", "tool", "status", "error_type"},
			),
			stepDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "conductor_step_duration_seconds",
					Help:    "Duration of step executions in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"plan", "tool"},
			),
			plansTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conductor_plan_executions_total",
					Help: "Total number of plan executions by mode and status",
				},
				[]string{"mode", "status"},
			),
			planDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "conductor_plan_duration_seconds",
					Help:    "Duration of plan executions in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			retriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conductor_retries_total",
					Help: "Total number of retry attempts by tool and error type",
				},
				[]string{"tool", "error_type"},
			),
			throttleTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "conductor_throttle_total",
					Help: "Total number of rate-limit rejections by key",
				},
				[]string{"key"},
			),
		}
	})
	return promInstance
}

// ObserveStep records one completed step execution.
func (p *PrometheusRecorder) ObserveStep(planName, stepID, tool, status, errorType, fileScope string, duration time.Duration) {
	// stepID and fileScope are unbounded; they go to logs and the history
	// store, not to metric labels.
	_ = stepID
	_ = fileScope

	p.stepsTotal.WithLabelValues(planName, tool, status, errorType).Inc()
	p.stepDuration.WithLabelValues(planName, tool).Observe(duration.Seconds())
}

// ObservePlan records one completed plan execution.
func (p *PrometheusRecorder) ObservePlan(planName, mode, status string, steps int, duration time.Duration) {
	_ = planName
	_ = steps

	p.plansTotal.WithLabelValues(mode, status).Inc()
	p.planDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// IncRetry counts one retry attempt.
func (p *PrometheusRecorder) IncRetry(tool, errorType string) {
	p.retriesTotal.WithLabelValues(tool, errorType).Inc()
}

// IncThrottle counts one rate-limit rejection.
func (p *PrometheusRecorder) IncThrottle(key string) {
	p.throttleTotal.WithLabelValues(key).Inc()
}
