package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/taskguard/resilience"
)

// Middleware wraps task execution with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: wrapped tasks are safe to run concurrently.
//   - Context: the span is propagated to the task through ctx.
//   - Errors: task errors are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware. Nil components are replaced by
// no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = &noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Wrap instruments an error-only operation, for use with Executor.Execute
// and Limiter.Execute.
func (m *Middleware) Wrap(meta TaskMeta, op func(context.Context) error) func(context.Context) error {
	task := WrapTask(m, meta, resilience.Op(op))
	return func(ctx context.Context) error {
		_, err := task(ctx)
		return err
	}
}

// WrapTask instruments task so each run produces one span, one set of
// task.exec measurements and one log line.
func WrapTask[T any](m *Middleware, meta TaskMeta, task resilience.Task[T]) resilience.Task[T] {
	logger := m.logger.WithTask(meta)

	return func(ctx context.Context) (T, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		v, err := task(ctx)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordExecution(ctx, meta, duration, err)

		fields := []Field{{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000}}
		if err != nil {
			fields = append(fields,
				Field{Key: "error", Value: err},
				Field{Key: "outcome", Value: Outcome(err)},
			)
			logger.Error(ctx, "task failed", fields...)
		} else {
			logger.Info(ctx, "task completed", fields...)
		}

		return v, err
	}
}
