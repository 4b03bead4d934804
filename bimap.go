package ripple

// biMap is a mutable lens over an upstream mutable node: reads apply
// forward, writes apply reverse and push the result upstream.
type biMap[T, U any] struct {
	*derived[U]

	up      MutableNode[T]
	forward func(T) (U, error)
	reverse func(U) (T, error)
}

// BiMap derives a mutable lens node. Reads apply forward to the upstream
// value; Set and Update apply reverse and write the result to the upstream,
// so the change flows back down through forward like any other mutation.
// A forward or reverse failure is captured on the lens node; the upstream
// stays untouched.
//
// Example:
//
//	celsius := ripple.NewSignal(g, 0.0)
//	fahrenheit := ripple.BiMap(celsius,
//	    func(c float64) (float64, error) { return c*9/5 + 32, nil },
//	    func(f float64) (float64, error) { return (f - 32) * 5 / 9, nil },
//	)
//	fahrenheit.Set(212) // celsius becomes 100
func BiMap[T, U any](up MutableNode[T], forward func(T) (U, error), reverse func(U) (T, error)) MutableNode[U] {
	b := &biMap[T, U]{
		up:      up,
		forward: forward,
		reverse: reverse,
	}
	b.derived = derive1(Node[T](up), "bimap", func(_ *memoState[U], v T) (U, error) {
		return forward(v)
	})
	return b
}

// Set applies reverse and writes the result upstream. An equal upstream
// value is suppressed by the upstream's own no-op gate. A reverse failure
// is captured on the lens node and the upstream is not written.
func (b *biMap[T, U]) Set(v U) {
	t, err := capture(func() (T, error) { return b.reverse(v) })
	if err != nil {
		b.failLocal(err)
		return
	}
	b.up.Set(t)
}

// Update applies fn to the lens view inside the upstream's own CAS retry
// loop, so concurrent lens updates compose without losing writes. A forward
// or reverse failure aborts the attempt, leaves the upstream untouched, and
// is captured on the lens node.
func (b *biMap[T, U]) Update(fn func(U) U) {
	var failed error
	b.up.Update(func(t T) T {
		u, err := capture(func() (U, error) { return b.forward(t) })
		if err != nil {
			failed = err
			return t
		}
		t2, err := capture(func() (T, error) { return b.reverse(fn(u)) })
		if err != nil {
			failed = err
			return t
		}
		failed = nil
		return t2
	})
	if failed != nil {
		b.failLocal(failed)
	}
}

// failLocal installs a captured failure on the lens node itself and runs a
// notification round, without disturbing the upstream. The failure stays
// cached until the upstream next changes.
func (b *biMap[T, U]) failLocal(err error) {
	d := b.derived
	for {
		cur := d.memo.Load()
		next := &memoState[U]{
			value:    cur.value,
			err:      &ComputeError{Op: "bimap", NodeID: d.id, Err: err},
			sig:      cur.sig,
			version:  cur.version + 1,
			stamp:    cur.stamp,
			seen:     cur.seen,
			accepted: cur.accepted,
			srcs:     cur.srcs,
		}
		if d.memo.CompareAndSwap(cur, next) {
			break
		}
	}
	d.graph.bumpVersion()
	d.graph.Begin()
	d.propagate()
	d.graph.End()
}
