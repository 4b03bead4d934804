package atomicx

import "sync/atomic"

// regEntry pairs a registered value with its caller-assigned id.
type regEntry[T any] struct {
	id uint64
	v  T
}

// Registry is an insertion-ordered copy-on-write set keyed by uint64 id.
//
// Add and Remove build a fresh backing slice and install it with a single
// compare-and-swap; readers always iterate a point-in-time snapshot and can
// never observe a torn read or a concurrent-modification fault. Iteration
// order is insertion order, which is what gives listeners their
// first-registered, first-notified delivery order.
type Registry[T any] struct {
	p atomic.Pointer[[]regEntry[T]]
}

// load returns the current backing slice, which may be nil.
func (r *Registry[T]) load() []regEntry[T] {
	if p := r.p.Load(); p != nil {
		return *p
	}
	return nil
}

// Add registers v under id and returns the registry length after the add.
// Adding an id that is already present is a no-op.
func (r *Registry[T]) Add(id uint64, v T) int {
	for {
		old := r.p.Load()
		var cur []regEntry[T]
		if old != nil {
			cur = *old
		}
		for _, e := range cur {
			if e.id == id {
				return len(cur)
			}
		}
		next := make([]regEntry[T], len(cur)+1)
		copy(next, cur)
		next[len(cur)] = regEntry[T]{id: id, v: v}
		if r.p.CompareAndSwap(old, &next) {
			return len(next)
		}
	}
}

// Remove deletes the entry registered under id. It returns the registry
// length after the removal and whether an entry was actually removed.
// Removing an absent id is a no-op, so cancellation is idempotent.
func (r *Registry[T]) Remove(id uint64) (int, bool) {
	for {
		old := r.p.Load()
		var cur []regEntry[T]
		if old != nil {
			cur = *old
		}
		idx := -1
		for i, e := range cur {
			if e.id == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return len(cur), false
		}
		next := make([]regEntry[T], 0, len(cur)-1)
		next = append(next, cur[:idx]...)
		next = append(next, cur[idx+1:]...)
		if r.p.CompareAndSwap(old, &next) {
			return len(next), true
		}
	}
}

// Snapshot returns the registered values as a point-in-time slice in
// insertion order. The slice is owned by the registry's immutable backing
// array history; callers must not mutate it.
func (r *Registry[T]) Snapshot() []T {
	cur := r.load()
	if len(cur) == 0 {
		return nil
	}
	out := make([]T, len(cur))
	for i, e := range cur {
		out[i] = e.v
	}
	return out
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	return len(r.load())
}

// Clear atomically empties the registry and returns the values that were
// present. Used by node close and by the coordinator's drain loop.
func (r *Registry[T]) Clear() []T {
	for {
		old := r.p.Load()
		if old == nil || len(*old) == 0 {
			return nil
		}
		if r.p.CompareAndSwap(old, nil) {
			out := make([]T, len(*old))
			for i, e := range *old {
				out[i] = e.v
			}
			return out
		}
	}
}
