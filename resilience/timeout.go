package resilience

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DeadlineOptions configures one deadline race.
type DeadlineOptions[T any] struct {
	// Timeout bounds the task. Must be positive.
	Timeout time.Duration

	// Fallback, when set, is returned instead of a TimeoutError.
	Fallback *T

	// OnTimeout is called when the timer wins, before any fallback is used.
	OnTimeout func(timeout time.Duration)

	// Cleanup runs when the race ends without success: timeout without a
	// fallback, task error, or abort. Its error never replaces the original.
	Cleanup func(ctx context.Context) error

	// OnCleanupError receives errors returned by Cleanup.
	OnCleanupError func(err error)

	// OnSuccess is called with the elapsed time when the task wins.
	OnSuccess func(elapsed time.Duration)

	// OnError is called with the elapsed time when the race fails.
	OnError func(err error, elapsed time.Duration)
}

// Validate checks the options.
func (o DeadlineOptions[T]) Validate() error {
	if o.Timeout <= 0 {
		return &ConfigError{Field: "Timeout", Value: o.Timeout, Reason: "must be positive"}
	}
	return nil
}

type outcome[T any] struct {
	value T
	err   error
}

// RaceDeadline runs task against a timer. The first to finish decides the
// result and the timer is always released.
//
// The task receives a context that ends when the race ends, with a
// TimeoutError as its cause once the deadline passes, so a task that loses to
// the timer is asked to stop. If ctx itself ends first the result is an
// AbortError.
func RaceDeadline[T any](ctx context.Context, task Task[T], opts DeadlineOptions[T]) (T, error) {
	var zero T
	if err := opts.Validate(); err != nil {
		return zero, err
	}
	if ctx.Err() != nil {
		err := abortError(ctx)
		opts.cleanup(ctx)
		opts.failed(err, 0)
		return zero, err
	}

	timeoutErr := &TimeoutError{Duration: opts.Timeout}
	taskCtx, cancel := context.WithTimeoutCause(ctx, opts.Timeout, timeoutErr)
	defer cancel()

	start := time.Now()
	done := make(chan outcome[T], 1)
	go func() {
		v, err := runTask(taskCtx, task)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			if opts.OnSuccess != nil {
				opts.OnSuccess(time.Since(start))
			}
			return out.value, nil
		}
		if taskCtx.Err() == nil {
			opts.cleanup(ctx)
			opts.failed(out.err, time.Since(start))
			return zero, out.err
		}
		// The task gave up because the race was already lost.
		return lost(ctx, timeoutErr, opts, start)

	case <-taskCtx.Done():
		return lost(ctx, timeoutErr, opts, start)
	}
}

// lost settles a race whose task context ended first: an abort when the
// caller's context is done, otherwise a timeout.
func lost[T any](ctx context.Context, timeoutErr *TimeoutError, opts DeadlineOptions[T], start time.Time) (T, error) {
	var zero T
	if ctx.Err() != nil {
		err := abortError(ctx)
		opts.cleanup(ctx)
		opts.failed(err, time.Since(start))
		return zero, err
	}

	if opts.OnTimeout != nil {
		opts.OnTimeout(opts.Timeout)
	}
	if opts.Fallback != nil {
		return *opts.Fallback, nil
	}
	opts.cleanup(ctx)
	opts.failed(timeoutErr, time.Since(start))
	return zero, timeoutErr
}

// cleanup runs the cleanup hook, swallowing its failure. It gets a context
// detached from ctx's cancellation since ctx may already be done.
func (o DeadlineOptions[T]) cleanup(ctx context.Context) {
	if o.Cleanup == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r}
			}
		}()
		return o.Cleanup(context.WithoutCancel(ctx))
	}()
	if err != nil && o.OnCleanupError != nil {
		o.OnCleanupError(err)
	}
}

func (o DeadlineOptions[T]) failed(err error, elapsed time.Duration) {
	if o.OnError != nil {
		o.OnError(err, elapsed)
	}
}

// Settled is one outcome of RaceAllSettled.
type Settled[T any] struct {
	Value T
	Err   error
}

// OK reports whether the item succeeded.
func (s Settled[T]) OK() bool { return s.Err == nil }

// BatchOptions configures RaceAll and RaceAllSettled.
type BatchOptions[T any] struct {
	DeadlineOptions[T]

	// Concurrency bounds how many items race at once. Zero means unbounded.
	Concurrency int
}

// Validate checks the options.
func (o BatchOptions[T]) Validate() error {
	if err := o.DeadlineOptions.Validate(); err != nil {
		return err
	}
	if o.Concurrency < 0 {
		return &ConfigError{Field: "Concurrency", Value: o.Concurrency, Reason: "must not be negative"}
	}
	return nil
}

// RaceAll races every task against the same per-item deadline and returns all
// values in input order. The first failure cancels the remaining items and is
// returned.
func RaceAll[T any](ctx context.Context, tasks []Task[T], opts BatchOptions[T]) ([]T, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	values := make([]T, len(tasks))
	for i, task := range tasks {
		g.Go(func() error {
			v, err := RaceDeadline(gctx, task, opts.DeadlineOptions)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// RaceAllSettled races every task against the same per-item deadline and
// waits for all of them, collecting successes and failures in input order.
func RaceAllSettled[T any](ctx context.Context, tasks []Task[T], opts BatchOptions[T]) ([]Settled[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var g errgroup.Group
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	results := make([]Settled[T], len(tasks))
	for i, task := range tasks {
		g.Go(func() error {
			v, err := RaceDeadline(ctx, task, opts.DeadlineOptions)
			results[i] = Settled[T]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation.
	// Default: 30 seconds
	Timeout time.Duration

	// Cleanup and OnCleanupError behave as in DeadlineOptions.
	Cleanup        func(ctx context.Context) error
	OnCleanupError func(err error)

	// OnTimeout is called when an operation times out.
	OnTimeout func(timeout time.Duration)
}

// Timeout wraps error-only operations with a deadline race.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	// Apply defaults
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Timeout{config: config}
}

// Execute runs the operation with a timeout.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := RaceDeadline(ctx, Op(op), deadlineOptions[struct{}](t.config))
	return err
}

func deadlineOptions[T any](c TimeoutConfig) DeadlineOptions[T] {
	return DeadlineOptions[T]{
		Timeout:        c.Timeout,
		Cleanup:        c.Cleanup,
		OnCleanupError: c.OnCleanupError,
		OnTimeout:      c.OnTimeout,
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// ExecuteWithTimeout is a convenience function to run an operation with timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	t := NewTimeout(TimeoutConfig{Timeout: timeout})
	return t.Execute(ctx, op)
}
