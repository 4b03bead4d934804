package atomicx

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistryAddRemove(t *testing.T) {
	var r Registry[string]

	if n := r.Add(1, "a"); n != 1 {
		t.Errorf("expected length 1 after add, got %d", n)
	}
	if n := r.Add(2, "b"); n != 2 {
		t.Errorf("expected length 2 after add, got %d", n)
	}

	// Duplicate id is a no-op.
	if n := r.Add(1, "a2"); n != 2 {
		t.Errorf("expected duplicate add to be a no-op, got length %d", n)
	}

	n, removed := r.Remove(1)
	if !removed || n != 1 {
		t.Errorf("expected (1, true), got (%d, %v)", n, removed)
	}

	// Removing an absent id is idempotent.
	n, removed = r.Remove(1)
	if removed || n != 1 {
		t.Errorf("expected (1, false), got (%d, %v)", n, removed)
	}
}

func TestRegistrySnapshotInsertionOrder(t *testing.T) {
	var r Registry[int]
	for i := 0; i < 5; i++ {
		r.Add(uint64(i), i*10)
	}
	r.Remove(2)

	want := []int{0, 10, 30, 40}
	got := r.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot[%d]: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestRegistryClear(t *testing.T) {
	var r Registry[int]
	r.Add(1, 100)
	r.Add(2, 200)

	cleared := r.Clear()
	if len(cleared) != 2 {
		t.Errorf("expected 2 cleared values, got %d", len(cleared))
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry after Clear, got %d", r.Len())
	}
	if r.Clear() != nil {
		t.Error("expected Clear on empty registry to return nil")
	}
}

func TestRegistryConcurrentAddRemove(t *testing.T) {
	var r Registry[int]
	var nextID atomic.Uint64

	const goroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			ids := make([]uint64, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				id := nextID.Add(1)
				ids = append(ids, id)
				r.Add(id, int(id))
			}
			// Remove half; the other half stays registered.
			for j := 0; j < perGoroutine/2; j++ {
				r.Remove(ids[j])
			}
		}()
	}
	wg.Wait()

	want := goroutines * perGoroutine / 2
	if r.Len() != want {
		t.Errorf("expected %d entries, got %d", want, r.Len())
	}
}

func TestRegistrySnapshotStableUnderMutation(t *testing.T) {
	var r Registry[int]
	for i := 0; i < 100; i++ {
		r.Add(uint64(i), i)
	}

	snap := r.Snapshot()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			r.Remove(uint64(i))
		}
	}()

	// The snapshot taken before the removals must stay intact.
	for i, v := range snap {
		if v != i {
			t.Errorf("snapshot[%d] changed under mutation: got %d", i, v)
		}
	}
	<-done
}
