package ripple

import "log/slog"

// GraphOption configures a Graph.
type GraphOption func(*graphOptions)

// graphOptions holds configuration applied by NewGraph.
type graphOptions struct {
	logger   *slog.Logger
	observer Observer
}

// WithLogger sets the logger the graph uses for diagnostics such as
// recovered listener panics. If unset, slog.Default() is used.
func WithLogger(logger *slog.Logger) GraphOption {
	return func(o *graphOptions) {
		o.logger = logger
	}
}

// WithObserver attaches an instrumentation observer to the graph.
// The graph carries no observer by default and skips all observer calls.
func WithObserver(obs Observer) GraphOption {
	return func(o *graphOptions) {
		o.observer = obs
	}
}

// NodeOption configures a source signal at creation time.
type NodeOption[T any] func(*nodeOptions[T])

// nodeOptions holds per-node configuration.
type nodeOptions[T any] struct {
	equals func(T, T) bool
}

// WithEquals sets a custom equality function for a source signal's no-op
// suppression check. Use it for types where reflect.DeepEqual is too
// expensive or has the wrong semantics.
//
// Example:
//
//	user := ripple.NewSignal(g, u, ripple.WithEquals(func(a, b User) bool {
//	    return a.ID == b.ID && a.Rev == b.Rev
//	}))
func WithEquals[T any](fn func(T, T) bool) NodeOption[T] {
	return func(o *nodeOptions[T]) {
		o.equals = fn
	}
}

// applyNodeOptions applies the given options and returns the resulting config.
func applyNodeOptions[T any](opts []NodeOption[T]) nodeOptions[T] {
	var options nodeOptions[T]
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// BindOption configures a BindTo call.
type BindOption func(*bindOptions)

// bindOptions holds per-bind configuration.
type bindOptions struct {
	takeOwnership bool
}

// TakeOwnership makes the bindable signal own the upstream it is being bound
// to: rebinding away from it or closing the bindable signal also closes it.
func TakeOwnership() BindOption {
	return func(o *bindOptions) {
		o.takeOwnership = true
	}
}

// applyBindOptions applies the given options and returns the resulting config.
func applyBindOptions(opts []BindOption) bindOptions {
	var options bindOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
