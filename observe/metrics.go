package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/taskguard/resilience"
)

// Outcome values reported on failed runs.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeAborted   = "aborted"
	OutcomeExhausted = "exhausted"
	OutcomeCleared   = "cleared"
	OutcomePanic     = "panic"
	OutcomeError     = "error"
)

// Outcome classifies err by the resilience failure that produced it.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case resilience.IsAbort(err):
		return OutcomeAborted
	case errors.Is(err, resilience.ErrMaxRetriesExceeded):
		return OutcomeExhausted
	case errors.Is(err, resilience.ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, resilience.ErrQueueCleared):
		return OutcomeCleared
	case errors.Is(err, resilience.ErrTaskPanicked):
		return OutcomePanic
	default:
		return OutcomeError
	}
}

// Metrics records execution metrics for tasks.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records a task run with duration and error status.
	RecordExecution(ctx context.Context, meta TaskMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the task.exec.* instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"task.exec.total",
		metric.WithDescription("Total number of task runs"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"task.exec.errors",
		metric.WithDescription("Total number of failed task runs"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"task.exec.duration_ms",
		metric.WithDescription("Task run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta TaskMeta, duration time.Duration, err error) {
	attrs := meta.attributes()
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(
			append(attrs, attribute.String("task.outcome", Outcome(err)))...,
		))
	}

	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

type noopMetrics struct{}

func (m *noopMetrics) RecordExecution(ctx context.Context, meta TaskMeta, duration time.Duration, err error) {
}
