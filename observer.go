package ripple

import "time"

// Observer receives engine-level events for instrumentation. All methods are
// called synchronously on the goroutine that triggered the event and may run
// concurrently with each other, so implementations must be safe for
// concurrent use and should be cheap.
//
// The graph holds at most one observer; pkg/instrument provides Prometheus
// and OpenTelemetry implementations plus a fan-out combinator.
type Observer interface {
	// SourceWrite is called once per accepted source mutation.
	SourceWrite()

	// Recompute is called after a derived node installs a recomputation
	// result. err is nil for a successful value and non-nil for a captured
	// transform failure.
	Recompute(err error)

	// Notify is called once per listener delivery round on a node. err is
	// non-nil when the round delivered a captured failure.
	Notify(err error)

	// Flush is called after the coordinator drains a pending-effect window,
	// with the number of effects executed and the drain duration.
	Flush(effects int, elapsed time.Duration)
}
