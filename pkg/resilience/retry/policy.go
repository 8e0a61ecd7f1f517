// Package retry provides exponential backoff policies for resilient agent executions.
package retry

import (
	"fmt"
	"math"
	"time"

	"conductor/pkg/agenterrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`     // Additional attempts after the first (total = MaxRetries + 1)
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"` // Delay before the first retry
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`         // Cap on the delay between retries
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxRetries:   2,
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ComputeBackoff returns min(initial * 2^attempt, max). Attempt is 0-based,
// so the first retry always waits exactly initial.
func ComputeBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt)))
	// Guard against float overflow for large attempt counts.
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a retry policy, validating the configuration.
// Construction fails on negative retry counts, non-positive delays, or
// out-of-order initial/max delays.
func NewPolicy(config Config, classifier Classifier) (*Policy, error) {
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0, got %d", config.MaxRetries)
	}
	if config.InitialDelay <= 0 {
		return nil, fmt.Errorf("initial_delay must be positive, got %s", config.InitialDelay)
	}
	if config.MaxDelay < config.InitialDelay {
		return nil, fmt.Errorf("max_delay %s must be >= initial_delay %s", config.MaxDelay, config.InitialDelay)
	}
	if classifier == nil {
		classifier = agenterrors.IsRetryable
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}, nil
}

// Delay computes the backoff delay for the given 0-based retry attempt.
func (p *Policy) Delay(attempt int) time.Duration {
	return ComputeBackoff(attempt, p.Config.InitialDelay, p.Config.MaxDelay)
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// MaxAttempts returns the total number of attempts the policy allows.
func (p *Policy) MaxAttempts() int {
	return p.Config.MaxRetries + 1
}
