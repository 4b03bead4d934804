package instrument

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ripplekit/ripple"
)

// Default tracer name for ripple graphs.
const defaultTracerName = "ripple"

// TracingConfig configures the OpenTelemetry graph observer.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "ripple").
	TracerName string

	// Provider is the tracer provider to use. If nil, the global
	// OpenTelemetry provider is used.
	Provider trace.TracerProvider
}

// TracingOption configures the OpenTelemetry graph observer.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets an explicit tracer provider instead of the global
// one.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = tp
	}
}

// Tracing is a ripple.Observer that emits one span per flush round. Callbacks
// between flushes accumulate into atomic counters which the flush span drains
// into attributes, so per-write overhead stays at a single atomic add.
//
// The span covers the flush interval: its start timestamp is backdated by the
// reported elapsed duration.
//
// Configure the global tracer provider in main() before creating graphs:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
type Tracing struct {
	tracer trace.Tracer

	writes     atomic.Int64
	recomputes atomic.Int64
	failures   atomic.Int64
	notifies   atomic.Int64
}

// NewTracing resolves the tracer and returns the observer.
func NewTracing(opts ...TracingOption) *Tracing {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}

	var tracer trace.Tracer
	if config.Provider != nil {
		tracer = config.Provider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}
	return &Tracing{tracer: tracer}
}

// SourceWrite implements ripple.Observer.
func (t *Tracing) SourceWrite() {
	t.writes.Add(1)
}

// Recompute implements ripple.Observer.
func (t *Tracing) Recompute(err error) {
	t.recomputes.Add(1)
	if err != nil && !errors.Is(err, ripple.ErrNotReady) && !errors.Is(err, ripple.ErrUnbound) {
		t.failures.Add(1)
	}
}

// Notify implements ripple.Observer.
func (t *Tracing) Notify(err error) {
	t.notifies.Add(1)
}

// Flush implements ripple.Observer.
func (t *Tracing) Flush(effects int, elapsed time.Duration) {
	end := time.Now()
	_, span := t.tracer.Start(
		context.Background(),
		"ripple.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(
			attribute.Int("ripple.effects", effects),
			attribute.Int64("ripple.writes", t.writes.Swap(0)),
			attribute.Int64("ripple.recomputes", t.recomputes.Swap(0)),
			attribute.Int64("ripple.recompute_failures", t.failures.Swap(0)),
			attribute.Int64("ripple.notifications", t.notifies.Swap(0)),
		),
	)
	span.End(trace.WithTimestamp(end))
}
