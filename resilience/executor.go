package resilience

import (
	"context"
	"time"
)

// Executor composes the limiter, rate gate, retry and timeout.
type Executor struct {
	limiter     *Limiter
	rateLimiter *RateLimiter
	retry       *Retry
	timeout     *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithLimiter runs operations through a concurrency limiter.
func WithLimiter(l *Limiter) ExecutorOption {
	return func(e *Executor) {
		e.limiter = l
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithTimeout adds timeout to the executor.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// WithTimeoutConfig adds timeout with custom config to the executor.
func WithTimeoutConfig(t *Timeout) ExecutorOption {
	return func(e *Executor) {
		e.timeout = t
	}
}

// Execute runs the operation through all configured patterns. Schedule
// options apply to the limiter.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error, opts ...ScheduleOption) error {
	_, err := Run(ctx, e, Op(op), opts...)
	return err
}

// Run executes task through all configured patterns and returns its value.
//
// The execution order is:
// 1. Limiter (if configured) - one slot for the whole retried call
// 2. Rate Limiter (if configured) - limits start rate
// 3. Retry (if configured) - retries on failure
// 4. Timeout (if configured) - bounds each attempt
func Run[T any](ctx context.Context, e *Executor, task Task[T], opts ...ScheduleOption) (T, error) {
	// Build the execution chain from inside out
	execute := task

	// Wrap with timeout (innermost)
	if e.timeout != nil {
		inner := execute
		deadline := deadlineOptions[T](e.timeout.config)
		execute = func(ctx context.Context) (T, error) {
			return RaceDeadline(ctx, inner, deadline)
		}
	}

	// Wrap with retry
	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) (T, error) {
			return RetryTask(ctx, e.retry, inner)
		}
	}

	// Wrap with rate limiter
	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) (T, error) {
			if err := e.rateLimiter.admit(ctx); err != nil {
				var zero T
				return zero, err
			}
			return inner(ctx)
		}
	}

	// Wrap with limiter (outermost)
	if e.limiter != nil {
		return Schedule(ctx, e.limiter, execute, opts...)
	}

	return execute(ctx)
}
