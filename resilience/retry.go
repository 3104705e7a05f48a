package resilience

import (
	"context"
	"time"
)

// DefaultAttempts is the total number of tries when RetryConfig.Attempts is
// zero: the first call plus three retries.
const DefaultAttempts = 4

// RetryState describes one in-flight retried call. It is created fresh for
// every call and never shared.
type RetryState struct {
	// Attempt is the 1-based number of the attempt that just failed.
	Attempt int

	// RemainingAttempts is how many tries are left after this one.
	RemainingAttempts int

	// NextDelay is the wait before the next attempt.
	NextDelay time.Duration

	// Errors holds every failure so far, oldest first.
	Errors []error
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// Attempts is the maximum number of attempts, including the first.
	// Default: 4
	Attempts int

	// Strategy computes the wait between attempts.
	// Default: ExponentialBackoff{Base: 100ms, Max: 30s}
	Strategy BackoffStrategy

	// RetryIf decides whether a failed attempt may be retried.
	// Default: every error is retried.
	RetryIf func(err error, attempt int) bool

	// OnRetry is called before waiting for the next attempt.
	OnRetry func(state RetryState, err error)

	// OnSuccess is called when an attempt succeeds.
	OnSuccess func(attempt int)

	// OnError is called after every failed attempt.
	OnError func(err error, attempt int)
}

// Validate checks the configuration.
func (c RetryConfig) Validate() error {
	if c.Attempts < 0 {
		return &ConfigError{Field: "Attempts", Value: c.Attempts, Reason: "must not be negative"}
	}
	return nil
}

// Retry re-runs failing operations with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) (*Retry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Apply defaults
	if config.Attempts == 0 {
		config.Attempts = DefaultAttempts
	}
	if config.Strategy == nil {
		config.Strategy = DefaultBackoff()
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error, _ int) bool { return err != nil }
	}

	return &Retry{config: config}, nil
}

// Execute runs the operation with retry logic.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := RetryTask(ctx, r, Op(op))
	return err
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// RetryTask runs task until it succeeds, the filter declines, attempts run
// out or ctx ends.
//
// Cancellation is observed before each attempt and during the wait between
// attempts. A running attempt is never interrupted by the loop itself; it only
// sees ctx.
func RetryTask[T any](ctx context.Context, r *Retry, task Task[T]) (T, error) {
	var zero T
	cfg := r.config
	state := RetryState{}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return zero, aborted(ctx, state, attempt-1)
		}

		value, err := runTask(ctx, task)
		if err == nil {
			if cfg.OnSuccess != nil {
				cfg.OnSuccess(attempt)
			}
			return value, nil
		}

		state.Attempt = attempt
		state.Errors = append(state.Errors, err)
		if cfg.OnError != nil {
			cfg.OnError(err, attempt)
		}

		if !cfg.RetryIf(err, attempt) {
			return zero, exhausted(state, attempt, ExhaustFiltered)
		}
		if attempt >= cfg.Attempts {
			return zero, exhausted(state, attempt, ExhaustAttempts)
		}
		if ctx.Err() != nil {
			return zero, aborted(ctx, state, attempt)
		}

		state.RemainingAttempts = cfg.Attempts - attempt
		state.NextDelay = cfg.Strategy.Delay(attempt, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(snapshot(state), err)
		}

		if !sleep(ctx, state.NextDelay) {
			return zero, aborted(ctx, state, attempt)
		}
	}
}

func aborted(ctx context.Context, state RetryState, attempts int) error {
	abort := abortError(ctx)
	if attempts == 0 {
		return abort
	}
	state.Errors = append(state.Errors, abort)
	return exhausted(state, attempts, ExhaustAborted)
}

func exhausted(state RetryState, attempts int, reason ExhaustReason) error {
	return &RetryExhaustedError{
		Errors:   state.Errors,
		Attempts: attempts,
		Reason:   reason,
	}
}

// snapshot copies the error slice so observers cannot alias loop state.
func snapshot(s RetryState) RetryState {
	s.Errors = append([]error(nil), s.Errors...)
	return s
}

// sleep waits for d or until ctx ends. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
