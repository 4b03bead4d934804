package ripple

// Combine2 derives a signal recomputed from two upstreams whenever either
// changes. Mutating both inside one batch yields exactly one recombination
// using each source's final post-batch value, the canonical diamond case.
//
// Example:
//
//	full := ripple.Combine2(first, last, func(f, l string) (string, error) {
//	    return f + " " + l, nil
//	})
func Combine2[A, B, R any](a Node[A], b Node[B], fn func(A, B) (R, error)) Node[R] {
	d := newDerived[R](a.Graph())
	d.onActive = func() {
		a.AddTarget(d)
		b.AddTarget(d)
	}
	d.onIdle = func() {
		a.RemoveTarget(d)
		b.RemoveTarget(d)
	}
	d.step = func(prev *memoState[R]) *memoState[R] {
		av, aerr, aver, aok := readUpstream(a)
		bv, berr, bver, bok := readUpstream(b)
		if !aok || !bok {
			return nil
		}
		if prev.sigIs(aver, bver) {
			return prev
		}
		srcs, agree := mergeSources(nodeSources(a, aver), nodeSources(b, bver))
		if !agree {
			return nil
		}

		next := &memoState[R]{sig: []uint64{aver, bver}, srcs: srcs}
		if uerr := firstErr(aerr, berr); uerr != nil {
			inheritUpstreamErr(prev, next, uerr)
		} else {
			next.seen = prev.seen + 1
			out, err := capture(func() (R, error) { return fn(av, bv) })
			applyOutcome(prev, next, out, err, "combine", d.id)
		}

		if a.Version() != aver || b.Version() != bver {
			return nil
		}
		return next
	}
	return d
}

// Combine3 is Combine2 over three upstreams.
func Combine3[A, B, C, R any](a Node[A], b Node[B], c Node[C], fn func(A, B, C) (R, error)) Node[R] {
	d := newDerived[R](a.Graph())
	d.onActive = func() {
		a.AddTarget(d)
		b.AddTarget(d)
		c.AddTarget(d)
	}
	d.onIdle = func() {
		a.RemoveTarget(d)
		b.RemoveTarget(d)
		c.RemoveTarget(d)
	}
	d.step = func(prev *memoState[R]) *memoState[R] {
		av, aerr, aver, aok := readUpstream(a)
		bv, berr, bver, bok := readUpstream(b)
		cv, cerr, cver, cok := readUpstream(c)
		if !aok || !bok || !cok {
			return nil
		}
		if prev.sigIs(aver, bver, cver) {
			return prev
		}
		srcs, agree := mergeSources(nodeSources(a, aver), nodeSources(b, bver), nodeSources(c, cver))
		if !agree {
			return nil
		}

		next := &memoState[R]{sig: []uint64{aver, bver, cver}, srcs: srcs}
		if uerr := firstErr(aerr, berr, cerr); uerr != nil {
			inheritUpstreamErr(prev, next, uerr)
		} else {
			next.seen = prev.seen + 1
			out, err := capture(func() (R, error) { return fn(av, bv, cv) })
			applyOutcome(prev, next, out, err, "combine", d.id)
		}

		if a.Version() != aver || b.Version() != bver || c.Version() != cver {
			return nil
		}
		return next
	}
	return d
}

// CombineN derives a signal recomputed from a homogeneous slice of upstreams
// whenever any of them changes. fn receives the inputs in slice order and
// must not retain the slice.
func CombineN[T, R any](nodes []Node[T], fn func([]T) (R, error)) Node[R] {
	if len(nodes) == 0 {
		panic("ripple: CombineN requires at least one node")
	}
	d := newDerived[R](nodes[0].Graph())
	d.onActive = func() {
		for _, n := range nodes {
			n.AddTarget(d)
		}
	}
	d.onIdle = func() {
		for _, n := range nodes {
			n.RemoveTarget(d)
		}
	}
	d.step = func(prev *memoState[R]) *memoState[R] {
		vals := make([]T, len(nodes))
		vers := make([]uint64, len(nodes))
		var uerr error
		for i, n := range nodes {
			v, err, ver, ok := readUpstream(n)
			if !ok {
				return nil
			}
			vals[i] = v
			vers[i] = ver
			if uerr == nil {
				uerr = err
			}
		}
		if prev.sigIs(vers...) {
			return prev
		}
		maps := make([]map[uint64]uint64, len(nodes))
		for i, n := range nodes {
			maps[i] = nodeSources(n, vers[i])
		}
		srcs, agree := mergeSources(maps...)
		if !agree {
			return nil
		}

		next := &memoState[R]{sig: vers, srcs: srcs}
		if uerr != nil {
			inheritUpstreamErr(prev, next, uerr)
		} else {
			next.seen = prev.seen + 1
			out, err := capture(func() (R, error) { return fn(vals) })
			applyOutcome(prev, next, out, err, "combine", d.id)
		}

		for i, n := range nodes {
			if n.Version() != vers[i] {
				return nil
			}
		}
		return next
	}
	return d
}

// WithLatestFrom derives a signal that emits only when main changes,
// sampling other's current value at recompute time. A change of other alone
// never emits: the node is not even a target of other, and other's version
// is deliberately excluded from the signature.
func WithLatestFrom[A, B, R any](main Node[A], other Node[B], fn func(A, B) (R, error)) Node[R] {
	d := newDerived[R](main.Graph())
	d.onActive = func() { main.AddTarget(d) }
	d.onIdle = func() { main.RemoveTarget(d) }
	d.step = func(prev *memoState[R]) *memoState[R] {
		av, aerr, aver, aok := readUpstream(main)
		if !aok {
			return nil
		}
		if prev.sigIs(aver) {
			return prev
		}
		bv, berr := other.Value()

		// Only main's sources are recorded: the sampled other value is a
		// point-in-time read that later other writes legitimately outdate.
		next := &memoState[R]{sig: []uint64{aver}, srcs: nodeSources(main, aver)}
		if uerr := firstErr(aerr, berr); uerr != nil {
			inheritUpstreamErr(prev, next, uerr)
		} else {
			next.seen = prev.seen + 1
			out, err := capture(func() (R, error) { return fn(av, bv) })
			applyOutcome(prev, next, out, err, "withlatest", d.id)
		}

		if main.Version() != aver {
			return nil
		}
		return next
	}
	return d
}

// firstErr returns the first non-nil error, preferring real failures over
// not-ready states so a captured failure is not masked by a slow sibling.
func firstErr(errs ...error) error {
	var pending error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !notReady(err) {
			return err
		}
		if pending == nil {
			pending = err
		}
	}
	return pending
}
