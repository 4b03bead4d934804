package instrument

import (
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ripplekit/ripple"
)

func TestTracingDrainsCountersPerFlush(t *testing.T) {
	tr := NewTracing(WithTracerProvider(noop.NewTracerProvider()))

	tr.SourceWrite()
	tr.SourceWrite()
	tr.Recompute(nil)
	tr.Recompute(fmt.Errorf("broken"))
	tr.Recompute(ripple.ErrNotReady)
	tr.Notify(nil)

	if got := tr.writes.Load(); got != 2 {
		t.Fatalf("writes = %d, want 2", got)
	}
	if got := tr.failures.Load(); got != 1 {
		t.Fatalf("failures = %d, want 1: not-ready must not count", got)
	}

	tr.Flush(3, 40*time.Microsecond)

	if got := tr.writes.Load(); got != 0 {
		t.Errorf("writes = %d after flush, want 0", got)
	}
	if got := tr.recomputes.Load(); got != 0 {
		t.Errorf("recomputes = %d after flush, want 0", got)
	}
	if got := tr.failures.Load(); got != 0 {
		t.Errorf("failures = %d after flush, want 0", got)
	}
	if got := tr.notifies.Load(); got != 0 {
		t.Errorf("notifies = %d after flush, want 0", got)
	}
}

func TestTracingAttachesToGraph(t *testing.T) {
	tr := NewTracing(WithTracerProvider(noop.NewTracerProvider()))
	g := ripple.NewGraph(ripple.WithObserver(tr))

	s := ripple.NewSignal(g, 1)
	cancel := s.Subscribe(func(int, error) {})
	defer cancel()

	s.Set(2)
	if got := tr.writes.Load(); got != 0 {
		t.Errorf("expected flush to drain the write counter, got %d", got)
	}
}
