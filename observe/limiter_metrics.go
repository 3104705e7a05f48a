package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/taskguard/resilience"
)

// RegisterLimiterMetrics publishes a limiter's state as observable
// instruments, sampled on every collection:
//
//   - limiter.active, limiter.pending, limiter.limit (gauges)
//   - limiter.processed, limiter.cancelled, limiter.cleared (counters)
//
// Every point carries the limiter.name attribute. Unregister the returned
// registration when the limiter is retired.
func RegisterLimiterMetrics(meter metric.Meter, l *resilience.Limiter) (metric.Registration, error) {
	if l == nil {
		return nil, ErrNilLimiter
	}

	active, err := meter.Int64ObservableGauge("limiter.active",
		metric.WithDescription("Tasks currently running"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	pending, err := meter.Int64ObservableGauge("limiter.pending",
		metric.WithDescription("Tasks waiting in the queue"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	limit, err := meter.Int64ObservableGauge("limiter.limit",
		metric.WithDescription("Maximum concurrently running tasks"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	processed, err := meter.Int64ObservableCounter("limiter.processed",
		metric.WithDescription("Tasks that ran and settled"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	cancelled, err := meter.Int64ObservableCounter("limiter.cancelled",
		metric.WithDescription("Queued tasks whose context ended before they started"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	cleared, err := meter.Int64ObservableCounter("limiter.cleared",
		metric.WithDescription("Queued tasks rejected by ClearQueue"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}

	opt := metric.WithAttributes(attribute.String("limiter.name", l.Name()))

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := l.State()
		o.ObserveInt64(active, int64(s.Active), opt)
		o.ObserveInt64(pending, int64(s.Pending), opt)
		o.ObserveInt64(limit, int64(s.Limit), opt)
		o.ObserveInt64(processed, int64(s.Processed), opt)
		o.ObserveInt64(cancelled, int64(s.Cancelled), opt)
		o.ObserveInt64(cleared, int64(s.Cleared), opt)
		return nil
	}, active, pending, limit, processed, cancelled, cleared)
}
