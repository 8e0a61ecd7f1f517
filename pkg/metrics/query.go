package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PlanMetrics represents aggregated metrics for a plan's executions.
type PlanMetrics struct {
	PlanName        string  `json:"plan_name"`
	StepsTotal      int64   `json:"steps_total"`
	StepsFailed     int64   `json:"steps_failed"`
	TotalDurationS  float64 `json:"total_duration_seconds"`
	RetriesObserved int64   `json:"retries_observed"`
}

// QueryService provides methods to query execution metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetPlanMetrics retrieves aggregated step counts and durations for a plan
// across all of its recorded executions.
func (q *QueryService) GetPlanMetrics(ctx context.Context, planName string) (*PlanMetrics, error) {
	metrics := &PlanMetrics{PlanName: planName}

	stepsQuery := fmt.Sprintf(`sum(conductor_step_executions_total{plan=%q})`, planName)
	stepsResult, _, err := q.queryAPI.Query(ctx, stepsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query step executions: %w", err)
	}
	if vector, ok := stepsResult.(model.Vector); ok && len(vector) > 0 {
		metrics.StepsTotal = int64(vector[0].Value)
	}

	failedQuery := fmt.Sprintf(`sum(conductor_step_executions_total{plan=%q, status!="ok"})`, planName)
	failedResult, _, err := q.queryAPI.Query(ctx, failedQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query failed steps: %w", err)
	}
	if vector, ok := failedResult.(model.Vector); ok && len(vector) > 0 {
		metrics.StepsFailed = int64(vector[0].Value)
	}

	durationQuery := fmt.Sprintf(`sum(conductor_step_duration_seconds_sum{plan=%q})`, planName)
	durationResult, _, err := q.queryAPI.Query(ctx, durationQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query step durations: %w", err)
	}
	if vector, ok := durationResult.(model.Vector); ok && len(vector) > 0 {
		metrics.TotalDurationS = float64(vector[0].Value)
	}

	return metrics, nil
}

// GetRetriesByTool retrieves total retry counts broken down by tool.
func (q *QueryService) GetRetriesByTool(ctx context.Context) (map[string]int64, error) {
	result := make(map[string]int64)

	retriesQuery := `sum by (tool) (conductor_retries_total)`
	retriesResult, _, err := q.queryAPI.Query(ctx, retriesQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query retries: %w", err)
	}

	if vector, ok := retriesResult.(model.Vector); ok {
		for _, sample := range vector {
			if tool, ok := sample.Metric["tool"]; ok {
				result[string(tool)] = int64(sample.Value)
			}
		}
	}

	return result, nil
}
