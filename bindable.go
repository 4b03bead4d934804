package ripple

import "sync/atomic"

// binding records a bindable signal's current upstream and whether the
// bindable owns it. Replaced wholesale on rebind.
type binding[T any] struct {
	up    Node[T]
	owned bool
}

// bindableCore holds the shared rebindable-proxy machinery behind Bindable
// and MutableBindable: the current binding, activation plumbing, and the
// local emission version that advances whenever the bound upstream moves or
// the binding itself changes.
type bindableCore[T any] struct {
	nodeCore[T]

	bound  atomic.Pointer[binding[T]]
	active atomic.Bool

	// ver is the proxy's own emission version; upSeen is the last upstream
	// version folded into it. Refreshing is a CAS so concurrent observers
	// bump once per distinct upstream version.
	ver    atomic.Uint64
	upSeen atomic.Uint64
}

// init wires the core and its activation hooks.
func (b *bindableCore[T]) init(g *Graph) {
	b.initCore(g, b)
	b.onActive = func() {
		b.active.Store(true)
		if bd := b.bound.Load(); bd != nil {
			bd.up.AddTarget(b)
		}
	}
	b.onIdle = func() {
		b.active.Store(false)
		if bd := b.bound.Load(); bd != nil {
			bd.up.RemoveTarget(b)
		}
	}
}

// MarkDirty implements Target: the bound upstream changed, so propagate to
// this node's own dependents and schedule its listener effect.
func (b *bindableCore[T]) MarkDirty() {
	b.propagate()
}

// Value proxies the read to the current upstream. Reads while unbound
// return ErrUnbound.
func (b *bindableCore[T]) Value() (T, error) {
	bd := b.bound.Load()
	if bd == nil {
		var zero T
		return zero, ErrUnbound
	}
	v, err := bd.up.Value()
	b.refresh(bd)
	return v, err
}

// Version returns the proxy's emission version, folding in any upstream
// movement observed so far.
func (b *bindableCore[T]) Version() uint64 {
	if bd := b.bound.Load(); bd != nil {
		b.refresh(bd)
	}
	return b.ver.Load()
}

// refresh advances the local emission version once per distinct upstream
// version observed.
func (b *bindableCore[T]) refresh(bd *binding[T]) {
	uv := bd.up.Version()
	for {
		seen := b.upSeen.Load()
		if uv == seen {
			return
		}
		if b.upSeen.CompareAndSwap(seen, uv) {
			b.ver.Add(1)
			return
		}
	}
}

// Current returns the currently bound upstream, or nil while unbound.
// WouldCreateCycle walks upstream chains through it.
func (b *bindableCore[T]) Current() Node[T] {
	if bd := b.bound.Load(); bd != nil {
		return bd.up
	}
	return nil
}

// bindTo swaps the binding: detach from (and close, if owned) the previous
// upstream, attach to the new one, and deliver its current value to this
// node's own listeners through an implicit batch.
//
// The swap itself is atomic, but the surrounding target bookkeeping is
// best-effort: concurrent rebinds may briefly leave a stale target
// registration, which at worst costs one spurious dirty mark.
func (b *bindableCore[T]) bindTo(up Node[T], owned bool) {
	if b.closed.Load() {
		return
	}
	old := b.bound.Swap(&binding[T]{up: up, owned: owned})
	if b.active.Load() {
		if old != nil {
			old.up.RemoveTarget(b)
		}
		up.AddTarget(b)
	}
	if old != nil && old.owned {
		old.up.Close()
	}

	b.upSeen.Store(up.Version())
	b.ver.Add(1)
	b.graph.bumpVersion()
	b.graph.Begin()
	b.propagate()
	b.graph.End()
}

// Close closes the owned upstream, if any, then performs the ordinary node
// close.
func (b *bindableCore[T]) Close() {
	if b.closed.Load() {
		return
	}
	if bd := b.bound.Load(); bd != nil && bd.owned {
		bd.up.Close()
	}
	b.nodeCore.Close()
}

// Bindable is a proxy node redirectable to a different upstream at runtime.
// It starts unbound: Value returns ErrUnbound and Subscribe withholds the
// initial delivery until a first bind.
//
// Bindable does not check for cycles itself; callers that rebind across
// graph layers should gate BindTo behind WouldCreateCycle.
type Bindable[T any] struct {
	bindableCore[T]
}

// NewBindable creates an unbound bindable signal.
func NewBindable[T any](g *Graph) *Bindable[T] {
	b := &Bindable[T]{}
	b.init(g)
	return b
}

// BindTo redirects the proxy to up: the previous upstream is unsubscribed
// (and closed, if owned), and up's current value is delivered to this
// node's listeners immediately.
func (b *Bindable[T]) BindTo(up Node[T], opts ...BindOption) {
	options := applyBindOptions(opts)
	b.bindTo(up, options.takeOwnership)
}

// MutableBindable is a bindable proxy that additionally forwards Set and
// Update to its bound target. Its BindTo accepts only a MutableNode, so
// binding a mutable-capable proxy to a non-mutable signal is rejected at
// compile time rather than checked at runtime.
type MutableBindable[T any] struct {
	bindableCore[T]
}

// NewMutableBindable creates an unbound mutable bindable signal.
func NewMutableBindable[T any](g *Graph) *MutableBindable[T] {
	m := &MutableBindable[T]{}
	m.init(g)
	return m
}

// BindTo redirects the proxy to a mutable upstream.
func (m *MutableBindable[T]) BindTo(up MutableNode[T], opts ...BindOption) {
	options := applyBindOptions(opts)
	m.bindTo(up, options.takeOwnership)
}

// Set forwards the write to the bound target. Writing while unbound is a
// usage error and panics with ErrUnbound.
func (m *MutableBindable[T]) Set(v T) {
	m.target().Set(v)
}

// Update forwards the CAS-loop update to the bound target. Updating while
// unbound is a usage error and panics with ErrUnbound.
func (m *MutableBindable[T]) Update(fn func(T) T) {
	m.target().Update(fn)
}

// target returns the bound mutable upstream or panics while unbound.
func (m *MutableBindable[T]) target() MutableNode[T] {
	bd := m.bound.Load()
	if bd == nil {
		panic(ErrUnbound)
	}
	return bd.up.(MutableNode[T])
}

// WouldCreateCycle reports whether binding source into target's position
// would close a loop: it walks target's upstream chain, following bound
// upstreams for as long as nodes remain rebindable, and returns true if
// source appears in that chain.
//
// The check is caller-invoked rather than automatic inside BindTo: making
// it atomic with the bind would require locking the whole chain, and the
// engine stays lock-free. Concurrent rebinds racing the check can
// therefore still form a cycle; callers that rebind concurrently must
// serialize their rebind decisions themselves.
func WouldCreateCycle[T any](source, target Node[T]) bool {
	for cur := target; cur != nil; {
		if cur == source {
			return true
		}
		rb, ok := cur.(interface{ Current() Node[T] })
		if !ok {
			return false
		}
		cur = rb.Current()
	}
	return false
}
