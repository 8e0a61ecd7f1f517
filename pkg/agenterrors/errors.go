// Package agenterrors provides structured error classification for agent subprocess executions.
package agenterrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of agent errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout-like network hiccups).
	ErrorTypeTransient ErrorType = iota
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit

	// Non-retryable error types.

	// ErrorTypeValidation represents bad input (malformed TaskSpec/PlanStep) rejected before dispatch.
	ErrorTypeValidation
	// ErrorTypeFatal represents non-retryable execution failures (bad credentials, unknown binary, ordinary non-zero exit).
	ErrorTypeFatal
	// ErrorTypeTimeout represents a subprocess that exceeded its time budget and was terminated.
	// A timeout aborts the whole execute call; it is never retried within the same call.
	ErrorTypeTimeout
	// ErrorTypeParse represents malformed agent output. Absorbed internally by the
	// parser's heuristic fallback and never propagated to callers.
	ErrorTypeParse
	// ErrorTypeUnknown represents unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeFatal:
		return "fatal"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeParse:
		return "parse"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified agent error with retry metadata.
type Error struct {
	Err     error     // Wrapped underlying error
	Message string    // Human-readable error message
	Type    ErrorType // Classified error type
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("agent error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("agent error (%s)", e.Type.String())
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether this error type should be retried.
// Only transient and rate-limit conditions are retried; everything else
// is surfaced immediately.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTransient, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// NewError creates a new classified agent error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new classified agent error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err should be retried, classifying it first if needed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.IsRetryable()
	}
	return Classify(err).IsRetryable()
}

// Classify maps an arbitrary error onto the taxonomy using message patterns.
// Connection/timeout/5xx/429-equivalent conditions classify as retryable;
// everything else is fatal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr
	}

	// Context timeouts are timeout-distinct; cancellation is fatal (caller gave up).
	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTimeout, err, "execution deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeFatal, err, "execution canceled")
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "429") {
		return NewErrorWithCause(ErrorTypeRateLimit, err, "")
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return NewErrorWithCause(ErrorTypeTransient, err, "")
	}

	return NewErrorWithCause(ErrorTypeFatal, err, "")
}
