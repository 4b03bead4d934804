package ripple

// Map derives a 1-to-1 transformed signal. fn runs lazily on pull and its
// result is memoized against the upstream version. Returning ErrSkip
// declines the value (the map-not-null shape); any other error, or a panic,
// is captured and delivered to listeners as a failure.
//
// Example:
//
//	doubled := ripple.Map(count, func(n int) (int, error) { return n * 2, nil })
func Map[T, U any](up Node[T], fn func(T) (U, error)) Node[U] {
	return derive1(up, "map", func(_ *memoState[U], v T) (U, error) {
		return fn(v)
	})
}

// Filter derives a signal that passes only values satisfying pred. A
// declined value leaves the node's previous value standing: stale but
// valid. While the upstream has never produced a passing value the node is
// not ready: Value returns ErrNotReady and Subscribe withholds the initial
// delivery, exactly like a deferred source.
func Filter[T any](up Node[T], pred func(T) (bool, error)) Node[T] {
	return derive1(up, "filter", func(_ *memoState[T], v T) (T, error) {
		ok, err := pred(v)
		if err != nil {
			var zero T
			return zero, err
		}
		if !ok {
			var zero T
			return zero, ErrSkip
		}
		return v, nil
	})
}

// Scan derives a stateful fold: the node holds the accumulator, seeded with
// initial, and applies fn to each observed upstream value. A failing
// accumulator call captures the failure and leaves the accumulator state
// untouched; the fold resumes from the prior state on the next value.
func Scan[T, A any](up Node[T], initial A, fn func(A, T) (A, error)) Node[A] {
	return derive1(up, "scan", func(prev *memoState[A], v T) (A, error) {
		acc := initial
		if prev.accepted {
			acc = prev.value
		}
		return fn(acc, v)
	})
}

// RunningReduce is Scan seeded by the first upstream value: the first
// observed value is emitted as-is and later values fold through fn.
func RunningReduce[T any](up Node[T], fn func(T, T) (T, error)) Node[T] {
	return derive1(up, "reduce", func(prev *memoState[T], v T) (T, error) {
		if !prev.accepted {
			return v, nil
		}
		return fn(prev.value, v)
	})
}

// Pair is the (previous, current) emission of Pairwise.
type Pair[T any] struct {
	Previous T
	Current  T
}

// Pairwise derives a signal of (previous, current) pairs. It needs at least
// one prior value: the node stays not ready until a second upstream value
// has been observed.
func Pairwise[T any](up Node[T]) Node[Pair[T]] {
	return derive1(up, "pairwise", func(prev *memoState[Pair[T]], v T) (Pair[T], error) {
		if prev.seen == 0 {
			// Remember the first value without emitting.
			return Pair[T]{Current: v}, errStash
		}
		return Pair[T]{Previous: prev.value.Current, Current: v}, nil
	})
}

// DistinctBy suppresses re-emission while the key derived from the value is
// unchanged, retaining the last accepted value. A failing key selector is
// captured like any other transform failure.
func DistinctBy[T any, K comparable](up Node[T], key func(T) (K, error)) Node[T] {
	return derive1(up, "distinct", func(prev *memoState[T], v T) (T, error) {
		k, err := key(v)
		if err != nil {
			var zero T
			return zero, err
		}
		if prev.accepted {
			pk, err := key(prev.value)
			if err == nil && pk == k {
				var zero T
				return zero, ErrSkip
			}
		}
		return v, nil
	})
}
