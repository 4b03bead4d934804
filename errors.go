package ripple

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when an operation targets a node that has been
// closed. Reads of a closed node keep returning the last value; ErrClosed
// surfaces only on operations that need a live node, such as rebinding.
var ErrClosed = errors.New("ripple: node closed")

// ErrNotReady is returned from Value when a node has not produced a first
// value yet: a deferred source before its first Set, a Filter whose upstream
// has never passed the predicate, or a Pairwise with fewer than two observed
// values. Subscribe on a not-ready node withholds the initial synchronous
// delivery instead of raising; the listener fires once a first value arrives.
var ErrNotReady = errors.New("ripple: signal not ready")

// ErrUnbound is returned from Value when a bindable signal has no current
// upstream. It belongs to the same not-ready family as ErrNotReady.
var ErrUnbound = errors.New("ripple: bindable signal not bound")

// ErrSkip is the sentinel a transform returns to decline a value. The
// derived node keeps its previous value and version; listeners are not
// notified. Filter and DistinctBy are built on it, and any Map transform may
// return it to drop a value (the map-not-null shape).
var ErrSkip = errors.New("ripple: value skipped")

// ErrBadDemand is returned by Demand.Request when the requested amount is
// not positive. Malformed demand is a usage error and raises synchronously
// at the violating call.
var ErrBadDemand = errors.New("ripple: demand must be positive")

// ComputeError is a captured transform failure. It is delivered to listeners
// in place of a value and returned from Value reads until the node's inputs
// next change. A transform failure never terminates the mutating goroutine
// and never corrupts upstream state.
type ComputeError struct {
	// Op names the operator whose transform failed ("map", "scan", ...).
	Op string

	// NodeID is the id of the derived node that captured the failure.
	NodeID uint64

	// Err is the underlying failure: the transform's returned error, or a
	// *PanicError if the transform panicked.
	Err error
}

// Error implements the error interface.
func (e *ComputeError) Error() string {
	return fmt.Sprintf("ripple: %s node %d: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying failure for errors.Is / errors.As.
func (e *ComputeError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking transform. The panic
// is converted into an ordinary captured failure so it flows through the
// graph like any other transform error.
type PanicError struct {
	// Recovered is the value the transform panicked with.
	Recovered any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("ripple: transform panic: %v", e.Recovered)
}

// notReady reports whether err belongs to the not-ready family: the node has
// no value to deliver yet, as opposed to having captured a failure.
func notReady(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrUnbound)
}
