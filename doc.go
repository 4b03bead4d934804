// Package ripple provides observable value cells ("signals") composable
// into acyclic derivation graphs that stay consistent under concurrent
// mutation from multiple goroutines, without a central event loop.
//
// The engine is built entirely from non-blocking, lock-free primitives: an
// atomic versioned cell and a copy-on-write registry. No node ever takes a
// lock, and no dedicated goroutine runs the graph: transform evaluation
// and listener delivery happen synchronously on the mutating goroutine.
//
// # Core Types
//
// A Graph coordinates batching and effect execution. It is an explicit
// handle, created once and threaded through the constructors:
//
//	g := ripple.NewGraph()
//
// Signal[T] is a source node holding a directly mutable value:
//
//	count := ripple.NewSignal(g, 0)
//	count.Set(5)
//	count.Update(func(n int) int { return n + 1 })
//
// Derived signals are built with free functions and compute lazily:
// construction performs no subscription, and a derived node holds a live
// upstream subscription only while it has listeners or dependents itself:
//
//	doubled := ripple.Map(count, func(n int) (int, error) { return n * 2, nil })
//	evens := ripple.Filter(count, func(n int) (bool, error) { return n%2 == 0, nil })
//	sum := ripple.Combine2(a, b, func(x, y int) (int, error) { return x + y, nil })
//
// # Glitch Freedom
//
// Mutations propagate as dirty marks; values are pulled on demand. A batch
// collapses any number of mutations, however nested and from however many
// goroutines, into one notification round in which each affected listener fires at
// most once and sees only the final post-batch state:
//
//	g.Batch(func() {
//	    first.Set("Ada")
//	    last.Set("Lovelace")
//	})
//	// fullName notifies once, never with a torn intermediate.
//
// An unbatched mutation behaves as an implicit single-mutation batch.
// Diamond-shaped graphs (one source feeding a combine through two branches)
// recombine exactly once per round from both post-batch branches.
//
// # Error Capture
//
// Every transform call is wrapped: a returned error or panic becomes a
// captured failure, delivered to listeners alongside values and re-returned
// from Value reads until the inputs next change. A failure never terminates
// the mutating goroutine and never corrupts upstream state; recovery is
// automatic on the next successful value.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Writes to a single
// source are linearizable; Update retry loops lose no increments under any
// contention. Progress is guaranteed per successful compare-and-swap; there
// is no starvation guarantee under adversarial contention and no
// bounded-latency guarantee. Delivery is eventual and consistent.
package ripple
