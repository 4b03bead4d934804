package ripple

import (
	"errors"
	"sync/atomic"
)

// memoState is one immutable recomputation result: the derived value or its
// captured failure, the upstream version signature it was computed from, and
// the bookkeeping the operators fold through it. Replacement is a single CAS
// in derived.resolve, so readers always see one consistent combination.
type memoState[T any] struct {
	value T

	// err is non-nil for a captured failure or while the node is not ready.
	err error

	// sig holds the upstream versions this state was computed from. A nil
	// sig never matches, which forces the first computation.
	sig []uint64

	// version is the node's emission version: it advances exactly when a
	// new value is accepted or a new failure captured, never on declines.
	version uint64

	// stamp is the global graph version at computation time; when it still
	// matches, nothing anywhere has changed and the state is valid as-is.
	stamp uint64

	// seen counts successfully observed upstream values. Pairwise and
	// RunningReduce use it to tell a first value from later ones.
	seen uint64

	// accepted reports that value holds a previously accepted value, so
	// decline-style operators can compare against real state rather than a
	// zero value.
	accepted bool

	// srcs maps transitive root-source ids to the versions this state was
	// computed from. Multi-upstream operators intersect their inputs' maps:
	// two branches of a diamond disagreeing on a shared root means a write
	// landed between the branch reads, and the computation retries. The map
	// is immutable after installation and may be shared between states.
	srcs map[uint64]uint64
}

// sigIs reports whether the state was computed from exactly these upstream
// versions.
func (st *memoState[T]) sigIs(vers ...uint64) bool {
	if len(st.sig) != len(vers) {
		return false
	}
	for i, v := range vers {
		if st.sig[i] != v {
			return false
		}
	}
	return true
}

// neverStamp is the initial stamp; it matches no graph version, so the
// first read always computes.
const neverStamp = ^uint64(0)

// derived is the shared engine behind every combinator: 1..N upstream refs,
// a kind-specific step closure, and a memoized state cell. Derived nodes are
// lazy twice over: construction performs no subscription (the first listener
// or target activates the upstream registration), and values are computed
// only on pull.
type derived[T any] struct {
	nodeCore[T]

	memo atomic.Pointer[memoState[T]]

	// step computes a candidate successor state from prev. It returns prev
	// itself when the upstream signature is unchanged, and nil when a
	// concurrent upstream change invalidated the computation mid-flight
	// (resolve retries).
	step func(prev *memoState[T]) *memoState[T]
}

// newDerived wires the shared machinery; the caller fills in step and the
// activation hooks.
func newDerived[T any](g *Graph) *derived[T] {
	d := &derived[T]{}
	d.initCore(g, d)
	d.memo.Store(&memoState[T]{err: ErrNotReady, stamp: neverStamp})
	return d
}

// MarkDirty implements Target: propagate the dirty mark downstream and
// schedule this node's listener effect, once per pending window. The cached
// state needs no explicit invalidation; the graph-version stamp in resolve
// already misses.
func (d *derived[T]) MarkDirty() {
	d.propagate()
}

// Value returns the derived value, recomputing only when an input version
// signature differs from the cached one. A captured failure is returned on
// every read until the inputs next change.
func (d *derived[T]) Value() (T, error) {
	st := d.resolve()
	if st.err != nil {
		var zero T
		return zero, st.err
	}
	return st.value, nil
}

// Version returns the emission version of the current cached state.
func (d *derived[T]) Version() uint64 {
	return d.memo.Load().version
}

// snapshot resolves and returns the value-or-failure together with its
// emission version from the same installed state.
func (d *derived[T]) snapshot() (T, error, uint64) {
	st := d.resolve()
	if st.err != nil {
		var zero T
		return zero, st.err, st.version
	}
	return st.value, nil, st.version
}

// resolve is the optimistic recompute loop. Each iteration reads the
// upstream snapshot through step, which revalidates the upstream versions
// after the transform ran; interference restarts the iteration, so an
// installed state always corresponds to one consistent combination of
// inputs, never a torn old-and-new mix. A lost CAS means another goroutine
// installed an equal or newer result, and the loop re-reads.
func (d *derived[T]) resolve() *memoState[T] {
	for {
		cur := d.memo.Load()
		gv := d.graph.Version()
		if cur.stamp == gv {
			return cur
		}

		next := d.step(cur)
		if next == nil {
			// An upstream moved mid-computation.
			continue
		}
		if next == cur {
			// Inputs unchanged; refresh the stamp so the fast path hits.
			refreshed := *cur
			refreshed.stamp = gv
			if d.memo.CompareAndSwap(cur, &refreshed) {
				return &refreshed
			}
			continue
		}

		next.stamp = gv
		if d.memo.CompareAndSwap(cur, next) {
			if next.version != cur.version && d.graph.obs != nil {
				d.graph.obs.Recompute(next.err)
			}
			return next
		}
	}
}

// readUpstream reads one upstream's (value, version) as a consistent pair.
// The version is sampled before and after the pull; a mismatch means the
// upstream moved and the read must be retried.
func readUpstream[T any](up Node[T]) (v T, err error, ver uint64, ok bool) {
	before := up.Version()
	v, err = up.Value()
	ver = up.Version()
	return v, err, ver, ver == before
}

// nodeSources returns the transitive root-source versions behind an upstream
// read at the given emission version. Nodes that do not expose internal state,
// or whose state already moved past ver, count as root sources themselves.
func nodeSources[T any](up Node[T], ver uint64) map[uint64]uint64 {
	if st, ok := any(up).(interface {
		sourcesAt(ver uint64) map[uint64]uint64
	}); ok {
		if m := st.sourcesAt(ver); m != nil {
			return m
		}
	}
	return map[uint64]uint64{up.ID(): ver}
}

// sourcesAt returns the source map of the cached state when it still carries
// the given emission version.
func (d *derived[T]) sourcesAt(ver uint64) map[uint64]uint64 {
	st := d.memo.Load()
	if st.version != ver {
		return nil
	}
	return st.srcs
}

// mergeSources combines the inputs' source maps, rejecting the merge when two
// inputs disagree on a shared root's version. Disagreement means the input
// reads straddled a source write and the caller must retry; once the write's
// version bump lands, the stale branch recomputes and the maps reconcile.
func mergeSources(maps ...map[uint64]uint64) (map[uint64]uint64, bool) {
	n := 0
	for _, m := range maps {
		n += len(m)
	}
	merged := make(map[uint64]uint64, n)
	for _, m := range maps {
		for id, ver := range m {
			if prev, seen := merged[id]; seen && prev != ver {
				return nil, false
			}
			merged[id] = ver
		}
	}
	return merged, true
}

// capture runs a transform, converting a panic into a captured failure so it
// flows through the graph like any other transform error.
func capture[U any](fn func() (U, error)) (out U, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Recovered: r}
		}
	}()
	return fn()
}

// errStash is an internal sentinel: the transform wants its output recorded
// as operator state without emitting it. Pairwise uses it to remember the
// first upstream value.
var errStash = errors.New("ripple: stash without emission")

// derive1 builds a single-upstream derived node around apply, which embodies
// the operator's semantics: return a value to emit it, ErrSkip to decline
// and keep the previous state, errStash to record state silently, or any
// other error to capture a failure.
func derive1[T, U any](up Node[T], op string, apply func(prev *memoState[U], v T) (U, error)) *derived[U] {
	d := newDerived[U](up.Graph())
	d.onActive = func() { up.AddTarget(d) }
	d.onIdle = func() { up.RemoveTarget(d) }

	d.step = func(prev *memoState[U]) *memoState[U] {
		v, uerr, uver, ok := readUpstream(up)
		if !ok {
			return nil
		}
		if prev.sigIs(uver) {
			return prev
		}

		next := &memoState[U]{sig: []uint64{uver}, srcs: nodeSources(up, uver)}
		if uerr != nil {
			inheritUpstreamErr(prev, next, uerr)
		} else {
			next.seen = prev.seen + 1
			out, err := capture(func() (U, error) { return apply(prev, v) })
			applyOutcome(prev, next, out, err, op, d.id)
		}

		if up.Version() != uver {
			return nil
		}
		return next
	}
	return d
}

// inheritUpstreamErr fills next when an upstream read returned an error: the
// failure (or not-ready state) propagates as-is, and only a real failure
// counts as an emission.
func inheritUpstreamErr[T any](prev, next *memoState[T], uerr error) {
	next.value = prev.value
	next.err = uerr
	next.seen = prev.seen
	next.accepted = prev.accepted
	if notReady(uerr) {
		next.version = prev.version
	} else {
		next.version = prev.version + 1
	}
}

// applyOutcome fills next from a transform result: an accepted value or a
// captured failure advances the emission version; ErrSkip keeps the previous
// state standing (stale but valid); errStash records operator state without
// emitting.
func applyOutcome[T any](prev, next *memoState[T], out T, err error, op string, nodeID uint64) {
	switch {
	case errors.Is(err, ErrSkip):
		next.value = prev.value
		next.err = prev.err
		next.version = prev.version
		next.accepted = prev.accepted
	case errors.Is(err, errStash):
		next.value = out
		next.err = ErrNotReady
		next.version = prev.version
		next.accepted = prev.accepted
	case err != nil:
		next.value = prev.value
		next.err = &ComputeError{Op: op, NodeID: nodeID, Err: err}
		next.version = prev.version + 1
		next.accepted = prev.accepted
	default:
		next.value = out
		next.err = nil
		next.version = prev.version + 1
		next.accepted = true
	}
}
