package ripple

import "sync/atomic"

// Demand is an atomic outstanding-demand counter for request/demand-based
// external consumers. The core graph never blocks or buffers; an adapter
// bridging signal values to a demand-driven protocol tracks its outstanding
// demand here and forwards a value only when TryTake succeeds.
//
// Example:
//
//	var d ripple.Demand
//	cancel := node.Subscribe(func(v Frame, err error) {
//	    if err == nil && d.TryTake() {
//	        conn.Send(v)
//	    }
//	})
type Demand struct {
	outstanding atomic.Int64
}

// Request adds n to the outstanding demand. A non-positive n is malformed
// demand and returns ErrBadDemand without changing the counter.
func (d *Demand) Request(n int64) error {
	if n <= 0 {
		return ErrBadDemand
	}
	d.outstanding.Add(n)
	return nil
}

// TryTake consumes one unit of demand. It returns false when no demand is
// outstanding; the caller then drops or defers the value.
func (d *Demand) TryTake() bool {
	for {
		cur := d.outstanding.Load()
		if cur <= 0 {
			return false
		}
		if d.outstanding.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Outstanding returns the current outstanding demand.
func (d *Demand) Outstanding() int64 {
	return d.outstanding.Load()
}

// Cancel zeroes the outstanding demand.
func (d *Demand) Cancel() {
	d.outstanding.Store(0)
}
