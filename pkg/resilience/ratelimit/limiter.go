// Package ratelimit provides per-key admission control for agent executions.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"conductor/pkg/agenterrors"
)

// ErrRateExceeded is returned when a key has used up its window budget.
// Pre-classified as fatal: admission rejections fail fast and are never
// retried or queued.
//
//nolint:gochecknoglobals // Sentinel error
var ErrRateExceeded = agenterrors.NewError(agenterrors.ErrorTypeFatal, "rate exceeded")

// WindowLimiter admits at most maxCalls per rolling window per logical key.
type WindowLimiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    map[string][]time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewWindowLimiter creates a rolling-window limiter.
// Construction fails on a non-positive rate or window.
func NewWindowLimiter(maxCalls int, window time.Duration) (*WindowLimiter, error) {
	if maxCalls <= 0 {
		return nil, fmt.Errorf("maxCalls must be positive, got %d", maxCalls)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", window)
	}
	return &WindowLimiter{
		maxCalls: maxCalls,
		window:   window,
		calls:    make(map[string][]time.Time),
		now:      time.Now,
	}, nil
}

// Allow admits one call for key, or returns ErrRateExceeded immediately.
// Rejected calls are never queued.
func (l *WindowLimiter) Allow(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(key, now)

	if len(recent) >= l.maxCalls {
		return fmt.Errorf("key %q: %w", key, ErrRateExceeded)
	}

	l.calls[key] = append(recent, now)
	return nil
}

// Remaining returns how many calls key may still make in the current window.
func (l *WindowLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, l.now())
	return l.maxCalls - len(recent)
}

// prune drops timestamps that have fallen out of the window and stores the
// compacted slice. Caller must hold the mutex.
func (l *WindowLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	recent := l.calls[key][:0]
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	l.calls[key] = recent
	return recent
}
