package atomicx

import "sync/atomic"

// box pairs a payload with the version it was installed under.
// Boxes are immutable after publication; replacement is a pointer swap.
type box[T any] struct {
	value   T
	version uint64
}

// Cell is an atomically replaceable box pairing a value with a monotonically
// increasing version. The version advances by exactly one on every accepted
// replacement, so readers can use it both as a staleness check and as the
// expected-state token for compare-and-swap.
//
// Go's atomic pointer operations are sequentially consistent, which subsumes
// the acquire/release ordering a CAS retry loop needs. Loads never block and
// never observe a torn (value, version) pair.
type Cell[T any] struct {
	p atomic.Pointer[box[T]]
}

// NewCell creates a cell holding initial at version 1.
func NewCell[T any](initial T) *Cell[T] {
	c := &Cell[T]{}
	c.p.Store(&box[T]{value: initial, version: 1})
	return c
}

// Load returns the current value and its version as one consistent snapshot.
func (c *Cell[T]) Load() (T, uint64) {
	b := c.p.Load()
	return b.value, b.version
}

// Version returns the current version without reading the value.
func (c *Cell[T]) Version() uint64 {
	return c.p.Load().version
}

// Store unconditionally replaces the value and returns the new version.
// Concurrent Stores serialize through the internal CAS loop; every accepted
// replacement gets its own version.
func (c *Cell[T]) Store(v T) uint64 {
	for {
		cur := c.p.Load()
		next := &box[T]{value: v, version: cur.version + 1}
		if c.p.CompareAndSwap(cur, next) {
			return next.version
		}
	}
}

// CompareAndSwap installs v at version oldVersion+1 if and only if the cell
// is still at oldVersion. It returns the cell's version after the attempt and
// whether the swap was accepted.
func (c *Cell[T]) CompareAndSwap(oldVersion uint64, v T) (uint64, bool) {
	for {
		cur := c.p.Load()
		if cur.version != oldVersion {
			return cur.version, false
		}
		next := &box[T]{value: v, version: oldVersion + 1}
		if c.p.CompareAndSwap(cur, next) {
			return next.version, true
		}
	}
}

// Swap replaces the value and returns the previous value along with the new
// version.
func (c *Cell[T]) Swap(v T) (old T, newVersion uint64) {
	for {
		cur := c.p.Load()
		next := &box[T]{value: v, version: cur.version + 1}
		if c.p.CompareAndSwap(cur, next) {
			return cur.value, next.version
		}
	}
}
