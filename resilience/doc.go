// Package resilience provides composable controls for asynchronous tasks.
//
// Three primitives can be used on their own or stacked:
//
//   - Limiter: runs at most N tasks at once and queues the rest by priority
//     (0-10, higher first), FIFO within a priority.
//
//   - Retry: re-runs a failing task with a pluggable backoff strategy, an
//     optional retry filter, and cancellation observed between attempts.
//
//   - RaceDeadline: races a task against a timer, with an optional fallback
//     value and a cleanup hook that runs when the race ends without success.
//
// RateLimiter gates how often tasks may start, and Executor composes all of
// them in a fixed order.
//
// # Usage
//
//	limiter, _ := resilience.NewLimiter(resilience.LimiterConfig{Concurrency: 4})
//	retry, _ := resilience.NewRetry(resilience.RetryConfig{
//	    Attempts: 3,
//	    Strategy: resilience.ExponentialBackoff{Base: 100 * time.Millisecond},
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithLimiter(limiter),
//	    resilience.WithRetry(retry),
//	    resilience.WithTimeout(5*time.Second),
//	)
//
//	body, err := resilience.Run(ctx, executor, fetch, resilience.WithPriority(8))
//
// # Errors
//
// Failures are reported as typed errors that match a sentinel with errors.Is:
// AbortError (ErrAborted), TimeoutError (ErrTimeout), RetryExhaustedError
// (ErrMaxRetriesExceeded), QueueClearedError (ErrQueueCleared), ConfigError
// (ErrInvalidConfig) and PanicError (ErrTaskPanicked).
package resilience
