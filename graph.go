package ripple

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ripplekit/ripple/internal/atomicx"
)

// effect is a deferred unit of work: "notify the listeners of node X".
// Each node owns exactly one effect and schedules it at most once per
// pending window.
type effect interface {
	// effectID keys the pending set.
	effectID() uint64

	// runEffect clears the node's scheduled flag and delivers the node's
	// current value (or captured failure) to its listeners.
	runEffect()
}

// Graph is the propagation coordinator: it owns the process-wide batch
// depth, the global version counter, and the pending-effect set.
//
// A Graph is an explicitly constructed handle, not a package global. Tests
// build their own instances so batch nesting and pending-effect state never
// leak between tests; applications typically create one per process and
// thread it through their signal constructors.
//
// All Graph methods are safe for concurrent use and lock-free.
type Graph struct {
	logger *slog.Logger
	obs    Observer

	// depth is the batch nesting depth, shared by all goroutines. Only the
	// End call that returns it to zero drains pending effects.
	depth atomic.Int64

	// version is the global version counter bumped on every accepted source
	// write. Derived caches consult it as a cheap staleness check.
	version atomic.Uint64

	// pending holds the effects scheduled for the current window.
	pending atomicx.Registry[effect]
}

// NewGraph creates a propagation coordinator.
//
// Example:
//
//	g := ripple.NewGraph()
//	count := ripple.NewSignal(g, 0)
//	doubled := ripple.Map(count, func(n int) (int, error) { return n * 2, nil })
func NewGraph(opts ...GraphOption) *Graph {
	var options graphOptions
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		logger: logger,
		obs:    options.observer,
	}
}

// Version returns the global version counter. It advances on every accepted
// source write anywhere in the graph.
func (g *Graph) Version() uint64 {
	return g.version.Load()
}

// bumpVersion advances the global version counter.
func (g *Graph) bumpVersion() uint64 {
	return g.version.Add(1)
}

// Begin opens a batch. Batches nest: effects scheduled while any batch is
// open stay pending until the outermost batch ends. Begin/End pair across
// goroutines because the depth is process-wide; prefer Batch unless the
// begin and end sites are necessarily separate.
func (g *Graph) Begin() {
	g.depth.Add(1)
}

// End closes a batch. Only the End that returns the depth to zero drains
// the pending-effect set, on the calling goroutine.
func (g *Graph) End() {
	if g.depth.Add(-1) == 0 {
		g.flush()
	}
}

// Batch runs fn inside a batch. All mutations issued by fn, however nested
// and from however many goroutines, collapse into one notification round:
// each affected listener fires at most once and sees only the final
// post-batch value. The batch is closed even if fn panics.
//
// Example:
//
//	g.Batch(func() {
//	    first.Set("John")
//	    last.Set("Doe")
//	})
//	// fullName's listener fires once, with both changes applied.
func (g *Graph) Batch(fn func()) {
	g.Begin()
	defer g.End()
	fn()
}

// schedule registers e for the current pending window. Scheduling an effect
// that is already pending is a no-op; the caller guards with the node's
// scheduled flag, and the registry's id dedupe backstops races.
func (g *Graph) schedule(e effect) {
	g.pending.Add(e.effectID(), e)
}

// flush drains the pending-effect set. Listener callbacks may mutate
// sources, which opens fresh implicit batches and schedules new effects;
// the loop keeps draining until no effects remain. Each drained effect runs
// at most once per window because its scheduled flag cleared when it ran.
//
// The drain stops when it observes an open batch: effects scheduled under
// that batch belong to its closing End, not to this window. Like Close,
// the check is best-effort; a Begin landing between the depth load and the
// clear can still see one of its effects run early.
func (g *Graph) flush() {
	start := time.Now()
	total := 0
	for {
		if g.depth.Load() > 0 {
			break
		}
		batch := g.pending.Clear()
		if len(batch) == 0 {
			break
		}
		total += len(batch)
		for _, e := range batch {
			e.runEffect()
		}
	}
	if g.obs != nil && total > 0 {
		g.obs.Flush(total, time.Since(start))
	}
}
