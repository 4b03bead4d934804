package ripple

import (
	"sync/atomic"

	"github.com/ripplekit/ripple/internal/atomicx"
)

// Listener receives a node's value-or-failure on each accepted notification.
// A nil err means value carries a successful value; a non-nil err carries a
// captured transform failure (or ErrNotReady family, which is never
// delivered, only returned from Value).
type Listener[T any] func(value T, err error)

// Target is the type-erased dependent half of the node protocol: a node or
// internal effect that is informed when an upstream changes, without
// necessarily receiving the value. Derived and bindable signals implement it
// to participate in dirty-mark propagation.
type Target interface {
	// MarkDirty notifies the target that an upstream changed. It must be
	// cheap and non-blocking; value computation is pulled later.
	MarkDirty()

	// ID returns a unique identifier for deduplication in registries.
	ID() uint64
}

// Node is the full signal node protocol. Source, derived, and bindable
// signals all implement it; an external adapter may implement it to
// participate in glitch-free batching as a source, or implement only
// Listener consumption via Subscribe and forgo batching participation.
type Node[T any] interface {
	// Value returns the node's current value. It is a lock-free pull read
	// and always reflects one internally consistent combination of the
	// node's inputs. It returns a captured transform failure until the
	// inputs next change, and ErrNotReady (or ErrUnbound) while the node
	// has no value yet.
	Value() (T, error)

	// Version returns the node's emission version. It advances exactly when
	// the node accepts a new value or captures a new failure.
	Version() uint64

	// Subscribe registers a listener and synchronously delivers the current
	// value or captured failure before returning, unless the node is not
	// ready yet, in which case the initial delivery is withheld until a
	// first value arrives. A listener panic during this initial delivery
	// propagates to the caller and the subscription is discarded; panics
	// during later deliveries are isolated so sibling listeners still run.
	// The returned cancel func is idempotent and safe after Close.
	Subscribe(fn Listener[T]) (cancel func())

	// IsClosed reports whether Close has been called.
	IsClosed() bool

	// Close marks the node closed and clears its registries. It is
	// best-effort: an add racing a concurrent Close may receive one extra
	// notification after Close returns. The close path stays lock-free.
	Close()

	// AddTarget registers a dependent for dirty-mark propagation.
	AddTarget(t Target)

	// RemoveTarget unregisters a dependent. Idempotent.
	RemoveTarget(t Target)

	// ID returns the node's unique id.
	ID() uint64

	// Graph returns the coordinator this node belongs to.
	Graph() *Graph
}

// MutableNode is the write-capable refinement of the node protocol,
// implemented by Signal, BiMap, and MutableBindable. Binding a
// mutable-capable proxy requires a MutableNode, which makes mutability a
// compile-time capability instead of a runtime check.
type MutableNode[T any] interface {
	Node[T]

	// Set replaces the value. Equal values are suppressed: no version bump,
	// no notification.
	Set(v T)

	// Update applies fn to the current value in a CAS retry loop. fn may
	// run more than once under contention; no update is lost.
	Update(fn func(T) T)
}

// listenerEntry is a subscribed listener plus its delivery bookkeeping.
type listenerEntry[T any] struct {
	id uint64
	fn Listener[T]

	// active flips false on cancel; a self-unsubscribe from inside the
	// listener's own callback halts further delivery to that listener.
	active atomic.Bool

	// seen is the highest node version delivered to this listener. The CAS
	// on it makes delivery per-listener at-most-once per version even when
	// effect windows overlap.
	seen atomic.Uint64
}

// valuer is the read half a nodeCore needs from its concrete node.
type valuer[T any] interface {
	Value() (T, error)
	Version() uint64
}

// snapshotter is implemented by nodes whose value, failure, and emission
// version live in one atomic cell and can be read as a single unit.
type snapshotter[T any] interface {
	snapshot() (T, error, uint64)
}

// nodeCore is the shared node machinery embedded by source, derived, and
// bindable signals: the listener and target registries, the closed flag,
// the scheduled-effect flag, and lazy-activation refcounting. All state is
// held in the atomicx primitives; the core takes no locks.
type nodeCore[T any] struct {
	graph *Graph
	id    uint64

	// self points back at the concrete node for value pulls during effect
	// execution. Set once at construction.
	self valuer[T]

	listeners atomicx.Registry[*listenerEntry[T]]
	targets   atomicx.Registry[Target]

	closed atomic.Bool

	// sched guards effect scheduling and dirty-mark propagation: one
	// schedule and one target-mark sweep per pending window.
	sched atomic.Bool

	// deps counts listeners plus targets; the 0->1 and 1->0 transitions
	// drive lazy upstream activation through the hooks below.
	deps atomic.Int64

	// attach serializes the activation hook bodies; attachRev orders
	// reconcile requests so a transition that lands while a hook body runs
	// is applied by the current holder instead of being lost. attached is
	// the hook-level state and is only touched under the attach flag.
	attach    atomic.Bool
	attachRev atomic.Uint64
	attached  bool

	// onActive runs when deps goes 0->1, onIdle when it returns to 0.
	// Derived and bindable nodes use them to attach to and detach from
	// their upstreams; sources leave them nil.
	onActive func()
	onIdle   func()
}

// initCore wires the core to its graph and concrete node.
func (n *nodeCore[T]) initCore(g *Graph, self valuer[T]) {
	n.graph = g
	n.id = nextID()
	n.self = self
}

// ID returns the node's unique id.
func (n *nodeCore[T]) ID() uint64 {
	return n.id
}

// Graph returns the coordinator this node belongs to.
func (n *nodeCore[T]) Graph() *Graph {
	return n.graph
}

// IsClosed reports whether the node has been closed.
func (n *nodeCore[T]) IsClosed() bool {
	return n.closed.Load()
}

// Close marks the node closed, clears both registries, and detaches from
// upstreams if the node was active. Best-effort: a subscribe racing Close
// may slip one extra notification through.
func (n *nodeCore[T]) Close() {
	if !n.closed.CompareAndSwap(false, true) {
		return
	}
	n.listeners.Clear()
	n.targets.Clear()
	n.reconcile()
}

// retain records a new listener or target; the first one activates the node.
func (n *nodeCore[T]) retain() {
	if n.deps.Add(1) == 1 {
		n.reconcile()
	}
}

// release records a departed listener or target; the last one deactivates.
func (n *nodeCore[T]) release() {
	if n.deps.Add(-1) == 0 {
		n.reconcile()
	}
}

// reconcile converges the upstream attachment with the dependent count.
// Hook bodies run one at a time under the attach flag. Running the hooks
// directly at the counter edges would let a 1->0 body race a 0->1 body and
// finish second, detaching a node that still has a listener; here the flag
// holder re-reads the request counter after every pass and applies any
// transition that landed meanwhile, while the loser of the flag race simply
// leaves its request behind.
func (n *nodeCore[T]) reconcile() {
	n.attachRev.Add(1)
	for {
		if !n.attach.CompareAndSwap(false, true) {
			return
		}
		seen := n.attachRev.Load()
		want := n.deps.Load() > 0 && !n.closed.Load()
		if want != n.attached {
			n.attached = want
			if want {
				if n.onActive != nil {
					n.onActive()
				}
			} else if n.onIdle != nil {
				n.onIdle()
			}
		}
		n.attach.Store(false)
		if n.attachRev.Load() == seen {
			return
		}
	}
}

// AddTarget registers a dependent for dirty-mark propagation.
func (n *nodeCore[T]) AddTarget(t Target) {
	n.retain()
	n.targets.Add(t.ID(), t)
}

// RemoveTarget unregisters a dependent. Idempotent.
func (n *nodeCore[T]) RemoveTarget(t Target) {
	if _, removed := n.targets.Remove(t.ID()); removed {
		n.release()
	}
}

// Subscribe registers fn and synchronously delivers the current value unless
// the node is not ready. See Node.Subscribe for the full contract.
func (n *nodeCore[T]) Subscribe(fn Listener[T]) (cancel func()) {
	e := &listenerEntry[T]{id: nextID(), fn: fn}
	e.active.Store(true)

	n.retain()
	n.listeners.Add(e.id, e)

	cancel = func() {
		if e.active.CompareAndSwap(true, false) {
			n.listeners.Remove(e.id)
			n.release()
		}
	}

	v, err, ver := n.valueVersion()
	if !notReady(err) && e.claim(ver) {
		func() {
			defer func() {
				// Fail fast at wiring time: discard the subscription and
				// let the panic reach the caller.
				if r := recover(); r != nil {
					cancel()
					panic(r)
				}
			}()
			fn(v, err)
		}()
	}
	return cancel
}

// claim advances the listener's delivered-version watermark to ver. It
// returns false when ver has already been delivered, which makes delivery
// per-listener at-most-once per version even when windows overlap.
func (e *listenerEntry[T]) claim(ver uint64) bool {
	for {
		seen := e.seen.Load()
		if ver <= seen {
			return false
		}
		if e.seen.CompareAndSwap(seen, ver) {
			return true
		}
	}
}

// propagate marks the node's targets dirty and schedules its listener
// effect, at most once per pending window.
func (n *nodeCore[T]) propagate() {
	if !n.sched.CompareAndSwap(false, true) {
		return
	}
	n.graph.schedule(n)
	for _, t := range n.targets.Snapshot() {
		t.MarkDirty()
	}
}

// effectID implements effect.
func (n *nodeCore[T]) effectID() uint64 {
	return n.id
}

// runEffect implements effect: it pulls the node's current value and
// delivers it to every listener that has not yet seen this version.
func (n *nodeCore[T]) runEffect() {
	n.sched.Store(false)
	if n.closed.Load() || n.listeners.Len() == 0 {
		return
	}

	v, err, ver := n.valueVersion()
	if notReady(err) {
		return
	}

	delivered := false
	for _, e := range n.listeners.Snapshot() {
		if !e.active.Load() {
			continue
		}
		if e.claim(ver) {
			delivered = true
			n.notify(e, v, err)
		}
	}
	if delivered && n.graph.obs != nil {
		n.graph.obs.Notify(err)
	}
}

// valueVersion reads the node's (value, failure, version) as one consistent
// snapshot, so a delivery is always claimed under the version of the value
// it actually carries. Reading value and version in two independent loads
// would let a concurrent write slip between them; the stale value would then
// claim the newer version and suppress that version's own delivery. Nodes
// backed by a single cell expose the snapshot directly; for the rest the
// version is sampled around the pull and the read retried on movement, the
// same discipline readUpstream uses.
func (n *nodeCore[T]) valueVersion() (T, error, uint64) {
	if s, ok := n.self.(snapshotter[T]); ok {
		return s.snapshot()
	}
	for {
		before := n.self.Version()
		v, err := n.self.Value()
		if ver := n.self.Version(); ver == before {
			return v, err, ver
		}
	}
}

// notify invokes one listener, isolating panics so sibling listeners in the
// same round still run.
func (n *nodeCore[T]) notify(e *listenerEntry[T], v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			n.graph.logger.Warn("ripple: listener panic recovered",
				"node", n.id, "listener", e.id, "panic", r)
		}
	}()
	e.fn(v, err)
}

// listenerCount returns the number of subscribed listeners. Test hook.
func (n *nodeCore[T]) listenerCount() int {
	return n.listeners.Len()
}

// targetCount returns the number of registered targets. Test hook.
func (n *nodeCore[T]) targetCount() int {
	return n.targets.Len()
}
