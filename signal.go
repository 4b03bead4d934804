package ripple

import (
	"sync"

	"github.com/ripplekit/ripple/internal/atomicx"
)

// sourceState is the payload of a source signal's value cell. A deferred
// source starts with ready=false and flips on the first Set.
type sourceState[T any] struct {
	value T
	ready bool
}

// Signal is a source signal: a leaf node holding a directly mutable value.
// Writes are lock-free CAS loops; reads never block. Writes to one Signal
// are linearizable through its value cell.
//
// Example:
//
//	g := ripple.NewGraph()
//	count := ripple.NewSignal(g, 0)
//	count.Set(5)
//	count.Update(func(n int) int { return n + 1 })
type Signal[T any] struct {
	nodeCore[T]

	cell *atomicx.Cell[sourceState[T]]

	// equal is the no-op suppression check. Nil means defaultEquals.
	equal func(T, T) bool
}

// NewSignal creates a source signal holding initial.
func NewSignal[T any](g *Graph, initial T, opts ...NodeOption[T]) *Signal[T] {
	options := applyNodeOptions(opts)
	s := &Signal[T]{
		cell:  atomicx.NewCell(sourceState[T]{value: initial, ready: true}),
		equal: options.equals,
	}
	s.initCore(g, s)
	return s
}

// NewDeferredSignal creates a source signal with no initial value, for
// externally fed boundaries. Value returns ErrNotReady until the first Set;
// Subscribe withholds the initial synchronous delivery until a first value
// arrives, without raising.
func NewDeferredSignal[T any](g *Graph, opts ...NodeOption[T]) *Signal[T] {
	options := applyNodeOptions(opts)
	s := &Signal[T]{
		cell:  atomicx.NewCell(sourceState[T]{}),
		equal: options.equals,
	}
	s.initCore(g, s)
	return s
}

// Value returns the current value, or ErrNotReady before the first Set of a
// deferred signal. Lock-free.
func (s *Signal[T]) Value() (T, error) {
	st, _ := s.cell.Load()
	if !st.ready {
		var zero T
		return zero, ErrNotReady
	}
	return st.value, nil
}

// Version returns the value cell's version.
func (s *Signal[T]) Version() uint64 {
	return s.cell.Version()
}

// snapshot returns the value-or-not-ready state and its version in one cell
// load.
func (s *Signal[T]) snapshot() (T, error, uint64) {
	st, ver := s.cell.Load()
	if !st.ready {
		var zero T
		return zero, ErrNotReady, ver
	}
	return st.value, nil, ver
}

// sourcesAt reports this signal as a root source at the observed version.
// Derived nodes fold these maps downstream to detect reads that straddled a
// concurrent write to a shared source.
func (s *Signal[T]) sourcesAt(ver uint64) map[uint64]uint64 {
	return map[uint64]uint64{s.id: ver}
}

// Set replaces the signal's value. A write of an equal value is a no-op:
// no version bump, no notification. An accepted write bumps the global
// version and runs as an implicit batch, so unbatched mutations behave as
// single-mutation batches.
func (s *Signal[T]) Set(v T) {
	for {
		st, ver := s.cell.Load()
		if st.ready && s.equals(st.value, v) {
			return
		}
		if _, ok := s.cell.CompareAndSwap(ver, sourceState[T]{value: v, ready: true}); ok {
			break
		}
	}
	s.accepted()
}

// Update applies fn to the current value in a CAS retry loop. fn may run
// more than once under contention, but no update is ever lost: T goroutines
// performing K increments each land exactly T*K increments. Update on a
// deferred signal that has not received a first value is a no-op.
func (s *Signal[T]) Update(fn func(T) T) {
	for {
		st, ver := s.cell.Load()
		if !st.ready {
			return
		}
		next := fn(st.value)
		if s.equals(st.value, next) {
			return
		}
		if _, ok := s.cell.CompareAndSwap(ver, sourceState[T]{value: next, ready: true}); ok {
			break
		}
	}
	s.accepted()
}

// accepted runs the post-write protocol for an accepted mutation: bump the
// global version, then mark targets and schedule the listener effect inside
// an implicit batch.
func (s *Signal[T]) accepted() {
	s.graph.bumpVersion()
	if s.graph.obs != nil {
		s.graph.obs.SourceWrite()
	}
	s.graph.Begin()
	s.propagate()
	s.graph.End()
}

// equals applies the configured equality function.
func (s *Signal[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return defaultEquals(a, b)
}

// FromChannel feeds a deferred signal from ch on a dedicated goroutine: the
// stdlib push boundary. The returned stop func halts the feed and is
// idempotent; it does not close the signal. The feed also halts when ch is
// closed, leaving the signal holding its last value.
func FromChannel[T any](g *Graph, ch <-chan T, opts ...NodeOption[T]) (*Signal[T], func()) {
	s := NewDeferredSignal(g, opts...)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() { close(done) })
	}
	go func() {
		for {
			select {
			case <-done:
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				s.Set(v)
			}
		}
	}()
	return s, stop
}
