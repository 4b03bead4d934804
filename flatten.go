package ripple

import "sync/atomic"

// innerRef records which inner signal is currently followed and the outer
// version that selected it. Replaced wholesale on a switch.
type innerRef[U any] struct {
	node     Node[U]
	selErr   error
	outerVer uint64
}

// Flatten derives a signal from a signal-of-signals, following only the
// latest inner signal. Switching unsubscribes from the previous inner (it
// is never closed) and immediately emits the new inner's current value.
func Flatten[U any](outer Node[Node[U]]) Node[U] {
	return flattenNode(outer, "flatten", func(n Node[U]) (Node[U], error) {
		return n, nil
	})
}

// SwitchMap maps each upstream value to an inner signal via fn and follows
// only the latest one. A failing fn is captured like any other transform
// failure. The previous inner is unsubscribed, never closed.
func SwitchMap[T, U any](up Node[T], fn func(T) (Node[U], error)) Node[U] {
	return flattenNode(up, "switchmap", fn)
}

// flattenNode is the shared engine behind Flatten and SwitchMap: a derived
// node whose upstream set is the outer signal plus whichever inner signal
// the latest outer value selected.
func flattenNode[T, U any](outer Node[T], op string, sel func(T) (Node[U], error)) *derived[U] {
	d := newDerived[U](outer.Graph())

	var inner atomic.Pointer[innerRef[U]]
	var active atomic.Bool

	d.onActive = func() {
		active.Store(true)
		outer.AddTarget(d)
		if ref := inner.Load(); ref != nil && ref.node != nil {
			ref.node.AddTarget(d)
		}
	}
	d.onIdle = func() {
		active.Store(false)
		outer.RemoveTarget(d)
		if ref := inner.Load(); ref != nil && ref.node != nil {
			ref.node.RemoveTarget(d)
		}
	}

	d.step = func(prev *memoState[U]) *memoState[U] {
		ov, oerr, over, ook := readUpstream(outer)
		if !ook {
			return nil
		}

		if oerr != nil {
			if prev.sigIs(over) {
				return prev
			}
			next := &memoState[U]{sig: []uint64{over}, srcs: nodeSources(outer, over)}
			inheritUpstreamErr(prev, next, oerr)
			if outer.Version() != over {
				return nil
			}
			return next
		}

		// Select the inner signal for this outer version, switching target
		// registration to it if it changed.
		cur := inner.Load()
		if cur == nil || cur.outerVer != over {
			node, selErr := capture(func() (Node[U], error) { return sel(ov) })
			ref := &innerRef[U]{node: node, selErr: selErr, outerVer: over}
			if !inner.CompareAndSwap(cur, ref) {
				// A concurrent switch won; recompute from its choice.
				return nil
			}
			if active.Load() {
				if cur != nil && cur.node != nil {
					cur.node.RemoveTarget(d)
				}
				if node != nil && selErr == nil {
					node.AddTarget(d)
				}
			}
			cur = ref
		}

		if cur.selErr != nil || cur.node == nil {
			if prev.sigIs(over) {
				return prev
			}
			next := &memoState[U]{sig: []uint64{over}, srcs: nodeSources(outer, over), seen: prev.seen, accepted: prev.accepted}
			next.value = prev.value
			selErr := cur.selErr
			if selErr == nil {
				selErr = ErrNotReady
			}
			if notReady(selErr) {
				next.err = selErr
				next.version = prev.version
			} else {
				next.err = &ComputeError{Op: op, NodeID: d.id, Err: selErr}
				next.version = prev.version + 1
			}
			if outer.Version() != over {
				return nil
			}
			return next
		}

		iv, ierr, iver, iok := readUpstream(cur.node)
		if !iok {
			return nil
		}
		if prev.sigIs(over, iver) {
			return prev
		}
		srcs, agree := mergeSources(nodeSources(outer, over), nodeSources(cur.node, iver))
		if !agree {
			return nil
		}

		next := &memoState[U]{sig: []uint64{over, iver}, srcs: srcs}
		if ierr != nil {
			inheritUpstreamErr(prev, next, ierr)
		} else {
			next.seen = prev.seen + 1
			applyOutcome(prev, next, iv, nil, op, d.id)
		}

		if outer.Version() != over || cur.node.Version() != iver || inner.Load() != cur {
			return nil
		}
		return next
	}
	return d
}
