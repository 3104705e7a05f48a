package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/taskguard/resilience"
)

// Hooks turns resilience observer callbacks into log lines. Callbacks
// already present on a config are kept and run first.
type Hooks struct {
	logger Logger
}

// NewHooks creates hooks that log through logger.
func NewHooks(logger Logger) *Hooks {
	if logger == nil {
		logger = NopLogger()
	}
	return &Hooks{logger: logger}
}

// Retry returns cfg with logging attached to OnRetry, OnSuccess and OnError.
func (h *Hooks) Retry(meta TaskMeta, cfg resilience.RetryConfig) resilience.RetryConfig {
	logger := h.logger.WithTask(meta)
	ctx := context.Background()

	onRetry := cfg.OnRetry
	cfg.OnRetry = func(state resilience.RetryState, err error) {
		if onRetry != nil {
			onRetry(state, err)
		}
		logger.Warn(ctx, "retrying task",
			Field{Key: "attempt", Value: state.Attempt},
			Field{Key: "remaining", Value: state.RemainingAttempts},
			Field{Key: "delay_ms", Value: state.NextDelay.Milliseconds()},
			Field{Key: "error", Value: err},
		)
	}

	onSuccess := cfg.OnSuccess
	cfg.OnSuccess = func(attempt int) {
		if onSuccess != nil {
			onSuccess(attempt)
		}
		if attempt > 1 {
			logger.Info(ctx, "task succeeded after retry", Field{Key: "attempt", Value: attempt})
		}
	}

	onError := cfg.OnError
	cfg.OnError = func(err error, attempt int) {
		if onError != nil {
			onError(err, attempt)
		}
		logger.Debug(ctx, "task attempt failed",
			Field{Key: "attempt", Value: attempt},
			Field{Key: "error", Value: err},
		)
	}

	return cfg
}

// Limiter returns cfg with logging attached to OnAdmit, OnSettle and
// OnCancel. Entries carry the limiter name and the task id.
func (h *Hooks) Limiter(cfg resilience.LimiterConfig) resilience.LimiterConfig {
	logger := h.logger
	ctx := context.Background()
	name := Field{Key: "limiter", Value: cfg.Name}

	onAdmit := cfg.OnAdmit
	cfg.OnAdmit = func(id string, waited time.Duration) {
		if onAdmit != nil {
			onAdmit(id, waited)
		}
		logger.Debug(ctx, "task admitted", name,
			Field{Key: "task.id", Value: id},
			Field{Key: "waited_ms", Value: waited.Milliseconds()},
		)
	}

	onSettle := cfg.OnSettle
	cfg.OnSettle = func(id string, elapsed time.Duration, err error) {
		if onSettle != nil {
			onSettle(id, elapsed, err)
		}
		fields := []Field{name,
			{Key: "task.id", Value: id},
			{Key: "duration_ms", Value: elapsed.Milliseconds()},
		}
		if err != nil {
			logger.Warn(ctx, "task settled with error", append(fields,
				Field{Key: "error", Value: err},
				Field{Key: "outcome", Value: Outcome(err)},
			)...)
			return
		}
		logger.Debug(ctx, "task settled", fields...)
	}

	onCancel := cfg.OnCancel
	cfg.OnCancel = func(id string, err error) {
		if onCancel != nil {
			onCancel(id, err)
		}
		logger.Info(ctx, "queued task cancelled", name,
			Field{Key: "task.id", Value: id},
			Field{Key: "outcome", Value: Outcome(err)},
		)
	}

	return cfg
}

// DeadlineHooks returns opts with logging attached to OnTimeout, OnError and
// OnCleanupError.
func DeadlineHooks[T any](h *Hooks, meta TaskMeta, opts resilience.DeadlineOptions[T]) resilience.DeadlineOptions[T] {
	logger := h.logger.WithTask(meta)
	ctx := context.Background()

	onTimeout := opts.OnTimeout
	fallback := opts.Fallback != nil
	opts.OnTimeout = func(timeout time.Duration) {
		if onTimeout != nil {
			onTimeout(timeout)
		}
		logger.Warn(ctx, "task deadline exceeded",
			Field{Key: "timeout_ms", Value: timeout.Milliseconds()},
			Field{Key: "fallback", Value: fallback},
		)
	}

	onError := opts.OnError
	opts.OnError = func(err error, elapsed time.Duration) {
		if onError != nil {
			onError(err, elapsed)
		}
		logger.Debug(ctx, "deadline race failed",
			Field{Key: "duration_ms", Value: elapsed.Milliseconds()},
			Field{Key: "outcome", Value: Outcome(err)},
			Field{Key: "error", Value: err},
		)
	}

	onCleanupError := opts.OnCleanupError
	opts.OnCleanupError = func(err error) {
		if onCleanupError != nil {
			onCleanupError(err)
		}
		logger.Error(ctx, "task cleanup failed", Field{Key: "error", Value: err})
	}

	return opts
}
