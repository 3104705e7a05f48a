package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// TaskMeta describes a task for telemetry purposes.
type TaskMeta struct {
	ID      string   // Stable task identifier (optional)
	Name    string   // Task name (required)
	Limiter string   // Name of the limiter the task runs under (optional)
	Tags    []string // Free-form labels (optional)
}

// SpanName returns the deterministic span name for this task.
// Format: task.exec.<limiter>.<name> or task.exec.<name>
func (m TaskMeta) SpanName() string {
	if m.Limiter != "" {
		return "task.exec." + m.Limiter + "." + m.Name
	}
	return "task.exec." + m.Name
}

// TaskID returns the task identifier: ID when set, otherwise the qualified
// name.
func (m TaskMeta) TaskID() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Limiter != "" {
		return m.Limiter + "." + m.Name
	}
	return m.Name
}

// Validate checks that the metadata can label telemetry.
func (m TaskMeta) Validate() error {
	if m.Name == "" {
		return ErrMissingTaskName
	}
	return nil
}

func (m TaskMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("task.id", m.TaskID()),
		attribute.String("task.name", m.Name),
	}
	if m.Limiter != "" {
		attrs = append(attrs, attribute.String("task.limiter", m.Limiter))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with task span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a task run.
	StartSpan(ctx context.Context, meta TaskMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return newNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta TaskMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("task.error", false))
	if len(meta.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice("task.tags", meta.Tags))
	}

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span. Failures set an error status and the task.outcome
// attribute so timeouts and aborts can be told apart from task errors.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.Bool("task.error", true),
			attribute.String("task.outcome", Outcome(err)),
		)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta TaskMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
