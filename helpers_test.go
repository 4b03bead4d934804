package ripple

import (
	"sync"
	"testing"
)

// recorder is a test listener that logs every delivery.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
	errs   []error
}

func (r *recorder[T]) listen(v T, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	r.errs = append(r.errs, err)
}

// log returns the recorded values.
func (r *recorder[T]) log() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// errors returns the recorded errors, positionally matching log().
func (r *recorder[T]) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

func (r *recorder[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// lastErr returns the error of the most recent delivery.
func (r *recorder[T]) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

// expectLog fails the test unless the recorded values equal want.
func expectLog[T comparable](t *testing.T, r *recorder[T], want []T) {
	t.Helper()
	got := r.log()
	if len(got) != len(want) {
		t.Fatalf("expected log %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected log %v, got %v", want, got)
		}
	}
}

// testTarget is a minimal Target that counts dirty marks.
type testTarget struct {
	id uint64
	n  int
	mu sync.Mutex
}

func newTestTarget() *testTarget {
	return &testTarget{id: nextID()}
}

func (tt *testTarget) MarkDirty() {
	tt.mu.Lock()
	tt.n++
	tt.mu.Unlock()
}

func (tt *testTarget) ID() uint64 { return tt.id }

func (tt *testTarget) dirtyCount() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.n
}
