package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/openfroyo/assembler/pkg/assembly"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown drains events and flushes spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending spans to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer serves metrics until ctx is done, if metrics are enabled.
func (t *Telemetry) StartMetricsServer(ctx context.Context) error {
	return t.Metrics.StartMetricsServer(ctx, func(err error) {
		t.Logger.WithError(err).Error("Metrics server failed")
	})
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

// AssemblyRun tracks one assembly run across logging, tracing, metrics and
// events.
type AssemblyRun struct {
	ID     string
	Ctx    context.Context
	Logger *Logger

	tel   *Telemetry
	span  trace.Span
	timer *Timer
}

// StartAssembly begins an assembly run. Without telemetry in ctx the run
// only carries an ID and the context logger.
func StartAssembly(ctx context.Context, requested []assembly.ID) *AssemblyRun {
	id := uuid.New().String()
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &AssemblyRun{
			ID:     id,
			Ctx:    ctx,
			Logger: FromContext(ctx).WithAssemblyID(id),
			timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartAssemblySpan(ctx, id, len(requested))
	logger := tel.Logger.WithAssemblyID(id)

	names := make([]string, len(requested))
	for i, r := range requested {
		names[i] = string(r)
	}

	tel.Metrics.RecordAssemblyStarted()
	if err := tel.Events.PublishAssemblyStarted(id, names); err != nil {
		logger.WithError(err).Warn("Failed to publish event")
	}

	return &AssemblyRun{
		ID:     id,
		Ctx:    logger.WithContext(spanCtx),
		Logger: logger,
		tel:    tel,
		span:   span,
		timer:  NewTimer(),
	}
}

// End completes the run with its result. A failed run is recorded under the
// kind of its first assembly problem, or "internal" for any other error.
func (r *AssemblyRun) End(asm *assembly.Assembly, err error) {
	if r.tel == nil {
		return
	}
	duration := r.timer.Duration()

	if err != nil {
		kind := "internal"
		for i, problem := range assembly.Problems(err) {
			if i == 0 {
				kind = string(problem.Kind)
			}
			for _, me := range problem.MergeErrors {
				r.tel.Metrics.RecordMergeError(string(me.Kind))
			}
		}

		r.span.SetAttributes(AttrErrorKind.String(kind))
		RecordError(r.span, err)
		r.span.End()

		r.tel.Metrics.RecordAssemblyCompleted(kind, duration)
		_ = r.tel.Events.PublishAssemblyFailed(r.ID, kind, err.Error())
		return
	}

	components := 0
	if asm != nil {
		components = len(asm.Config)
		r.tel.Metrics.SetComponentCounts(len(asm.Refs), len(asm.Config)-len(asm.Refs))
	}

	r.span.SetAttributes(AttrComponents.Int(components))
	RecordSuccess(r.span)
	r.span.End()

	r.tel.Metrics.RecordAssemblyCompleted("", duration)
	_ = r.tel.Events.PublishAssemblyCompleted(r.ID, components, duration)
}

// Stage runs fn inside a child span named after stage.
func (r *AssemblyRun) Stage(stage string, fn func(ctx context.Context) error) error {
	if r.tel == nil {
		return fn(r.Ctx)
	}

	ctx, span := r.tel.Tracer.StartStageSpan(r.Ctx, stage)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	return err
}

// RecordComponentOperation runs fn as a lifecycle operation on a component,
// recording a span, metrics and an event when telemetry is in ctx.
func RecordComponentOperation(ctx context.Context, id, createRef, operation string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	spanCtx, span := tel.Tracer.StartComponentSpan(ctx, id, createRef, operation)
	defer span.End()

	timer := NewTimer()
	err := fn(spanCtx)
	tel.Metrics.RecordComponentOperation(createRef, operation, timer.Duration(), err)

	if err != nil {
		RecordError(span, err)
		_ = tel.Events.PublishComponentFailed(id, createRef, operation, err.Error())
		return err
	}

	RecordSuccess(span)
	switch operation {
	case "start":
		_ = tel.Events.PublishComponentStarted(id, createRef)
	case "stop":
		_ = tel.Events.PublishComponentStopped(id, createRef)
	}
	return nil
}
