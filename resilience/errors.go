package resilience

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for resilience operations. Each typed error below reports
// true for errors.Is against its sentinel.
var (
	// ErrAborted is matched by AbortError.
	ErrAborted = errors.New("resilience: operation aborted")

	// ErrTimeout is matched by TimeoutError.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrMaxRetriesExceeded is matched by RetryExhaustedError.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrQueueCleared is matched by QueueClearedError.
	ErrQueueCleared = errors.New("resilience: queue cleared")

	// ErrInvalidConfig is matched by ConfigError.
	ErrInvalidConfig = errors.New("resilience: invalid configuration")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrTaskPanicked is matched by PanicError.
	ErrTaskPanicked = errors.New("resilience: task panicked")
)

// AbortError reports that the caller's context ended before or while the
// operation was waiting.
type AbortError struct {
	// Cause is the context's cancellation cause.
	Cause error
}

func (e *AbortError) Error() string {
	if e.Cause != nil {
		return "resilience: operation aborted: " + e.Cause.Error()
	}
	return ErrAborted.Error()
}

func (e *AbortError) Unwrap() error        { return e.Cause }
func (e *AbortError) Is(target error) bool { return target == ErrAborted }

// IsAbort reports whether err or anything in its chain is an AbortError.
func IsAbort(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort)
}

// TimeoutError reports that a deadline race's timer fired first.
type TimeoutError struct {
	// Duration is the configured deadline.
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resilience: operation timed out after %s", e.Duration)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ExhaustReason says why a retry loop stopped.
type ExhaustReason int

const (
	// ExhaustAttempts means every allowed attempt failed.
	ExhaustAttempts ExhaustReason = iota
	// ExhaustFiltered means RetryIf declined to retry.
	ExhaustFiltered
	// ExhaustAborted means the context ended between attempts.
	ExhaustAborted
)

// String returns the string representation of the reason.
func (r ExhaustReason) String() string {
	switch r {
	case ExhaustAttempts:
		return "attempts exhausted"
	case ExhaustFiltered:
		return "not retryable"
	case ExhaustAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RetryExhaustedError aggregates every failure of one retried call.
type RetryExhaustedError struct {
	// Errors holds each attempt's error, oldest first. When the loop was
	// aborted the final entry is the AbortError.
	Errors []error

	// Attempts is the number of attempts that ran.
	Attempts int

	// Reason says why retrying stopped.
	Reason ExhaustReason
}

func (e *RetryExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resilience: %s after %d attempt(s)", e.Reason, e.Attempts)
	if last := e.Last(); last != nil {
		b.WriteString(": ")
		b.WriteString(last.Error())
	}
	return b.String()
}

// Last returns the most recent error, or nil.
func (e *RetryExhaustedError) Last() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

func (e *RetryExhaustedError) Unwrap() []error     { return e.Errors }
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrMaxRetriesExceeded }

// QueueClearedError is delivered to items still waiting when ClearQueue ran.
type QueueClearedError struct {
	ID string
}

func (e *QueueClearedError) Error() string {
	return fmt.Sprintf("resilience: queue cleared before %q started", e.ID)
}

func (e *QueueClearedError) Is(target error) bool { return target == ErrQueueCleared }

// ConfigError reports an invalid option. It is returned synchronously by the
// call that received the option.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("resilience: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("resilience: task panicked: %v", e.Value)
}

func (e *PanicError) Is(target error) bool { return target == ErrTaskPanicked }
