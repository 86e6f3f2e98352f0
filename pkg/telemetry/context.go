package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/draky-dev/draky/pkg/engine"
)

// Telemetry bundles logging, tracing and metrics for one dk invocation.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config

	// RunID identifies this invocation in logs and spans.
	RunID string
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

	runID := NewRunID()
	return &Telemetry{
		Logger:  logger.WithRunID(runID),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
		RunID:   runID,
	}, nil
}

// Discard returns a Telemetry that records nothing. Packages fall back to it when
// the caller did not configure one.
func Discard() *Telemetry {
	tracer, _ := NewTracer(TracingConfig{}, "draky", "dev", "")
	metrics, _ := NewMetrics(MetricsConfig{})
	return &Telemetry{
		Logger:  Nop(),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  DefaultConfig(),
	}
}

// WithContext adds the telemetry instance to the context.
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

// ObserveError counts err by its engine class and code. Errors that are not
// classified are counted as permanent.
func (t *Telemetry) ObserveError(err error) {
	if err == nil {
		return
	}
	var e *engine.Error
	if errors.As(err, &e) {
		t.Metrics.RecordError(string(e.Class), e.Code)
		return
	}
	t.Metrics.RecordError(string(engine.ErrorClassPermanent), "")
}

// Shutdown flushes spans and writes the metrics textfile when one is configured.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}
	return t.Metrics.WriteTextfile("")
}

// InstrumentedContext carries the context, span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	phase   string
	metrics *Metrics
}

// StartOperation begins an instrumented operation with logging, tracing and timing.
// Without telemetry in ctx it still times the operation but records nothing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Span:   trace.SpanFromContext(context.Background()),
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:     logger.WithContext(spanCtx),
		Span:    span,
		Logger:  logger,
		Timer:   NewTimer(),
		metrics: tel.Metrics,
	}
}

// StartPhase begins one phase of the build pipeline. Its duration is recorded
// under the phase label when the operation ends.
func StartPhase(ctx context.Context, phase string) *InstrumentedContext {
	ic := StartOperation(ctx, "build."+phase, AttrPhase.String(phase))
	ic.phase = phase
	return ic
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.phase != "" {
		ic.metrics.RecordPhase(ic.phase, ic.Timer.Duration())
		ic.Logger.WithField("duration", ic.Timer.Duration().String()).Debug("Phase finished")
	}
	if ic.Span == nil || !ic.Span.IsRecording() {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}
