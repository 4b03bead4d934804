package instrument

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ripplekit/ripple"
)

// MetricsConfig configures the Prometheus graph observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "ripple").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for flush duration in seconds.
	// Flushes are typically sub-millisecond, so the defaults span 1µs to
	// 100ms rather than prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus graph observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the flush duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "ripple",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1},
		Registry:    prometheus.DefaultRegisterer,
	}
}

// Metrics is a ripple.Observer that exports graph activity as Prometheus
// metrics:
//   - ripple_writes_total: Counter of accepted source writes
//   - ripple_recomputes_total: Counter of derived recomputations by status
//   - ripple_notifications_total: Counter of listener deliveries by status
//   - ripple_flushes_total: Counter of completed flush rounds
//   - ripple_flush_effects: Histogram of effects run per flush
//   - ripple_flush_duration_seconds: Histogram of flush duration
type Metrics struct {
	writesTotal        prometheus.Counter
	recomputesTotal    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	flushesTotal       prometheus.Counter
	flushEffects       prometheus.Histogram
	flushDuration      prometheus.Histogram
}

// NewMetrics registers the graph metrics and returns the observer.
// Registering two Metrics with the same namespace on one registry panics,
// as promauto does for any duplicate registration.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		writesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "writes_total",
			Help:        "Total number of accepted source signal writes",
			ConstLabels: config.ConstLabels,
		}),

		recomputesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputes_total",
			Help:        "Total number of derived recomputations by status",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of listener deliveries by status",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		flushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of completed flush rounds",
			ConstLabels: config.ConstLabels,
		}),

		flushEffects: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_effects",
			Help:        "Listener effects run per flush round",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1, 2, 5, 10, 25, 100, 500},
		}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Flush round duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

// SourceWrite implements ripple.Observer.
func (m *Metrics) SourceWrite() {
	m.writesTotal.Inc()
}

// Recompute implements ripple.Observer.
func (m *Metrics) Recompute(err error) {
	m.recomputesTotal.WithLabelValues(status(err)).Inc()
}

// Notify implements ripple.Observer.
func (m *Metrics) Notify(err error) {
	m.notificationsTotal.WithLabelValues(status(err)).Inc()
}

// Flush implements ripple.Observer.
func (m *Metrics) Flush(effects int, elapsed time.Duration) {
	m.flushesTotal.Inc()
	m.flushEffects.Observe(float64(effects))
	m.flushDuration.Observe(elapsed.Seconds())
}

// status buckets an outcome error into a metric label.
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ripple.ErrNotReady) || errors.Is(err, ripple.ErrUnbound):
		return "not_ready"
	default:
		return "error"
	}
}
