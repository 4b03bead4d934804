// Package instrument provides ready-made graph observers: Prometheus metrics
// and OpenTelemetry flush tracing. Attach one (or several, via Multi) with
// ripple.WithObserver:
//
//	m := instrument.NewMetrics()
//	g := ripple.NewGraph(ripple.WithObserver(m))
//
// Observer callbacks run synchronously on the mutating goroutine, so every
// implementation here is allocation-light and concurrency-safe.
package instrument
