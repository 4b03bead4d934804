package atomicx

import (
	"sync"
	"testing"
)

func TestCellLoadStore(t *testing.T) {
	c := NewCell(10)

	v, ver := c.Load()
	if v != 10 || ver != 1 {
		t.Errorf("expected (10, 1), got (%d, %d)", v, ver)
	}

	newVer := c.Store(20)
	if newVer != 2 {
		t.Errorf("expected version 2 after Store, got %d", newVer)
	}
	v, ver = c.Load()
	if v != 20 || ver != 2 {
		t.Errorf("expected (20, 2), got (%d, %d)", v, ver)
	}
}

func TestCellCompareAndSwap(t *testing.T) {
	c := NewCell("a")

	_, ver := c.Load()
	newVer, ok := c.CompareAndSwap(ver, "b")
	if !ok || newVer != ver+1 {
		t.Errorf("expected accepted swap to version %d, got (%d, %v)", ver+1, newVer, ok)
	}

	// Stale version must be rejected and report the live version.
	gotVer, ok := c.CompareAndSwap(ver, "c")
	if ok {
		t.Error("expected stale CompareAndSwap to be rejected")
	}
	if gotVer != newVer {
		t.Errorf("expected rejected swap to report version %d, got %d", newVer, gotVer)
	}

	v, _ := c.Load()
	if v != "b" {
		t.Errorf("expected value %q, got %q", "b", v)
	}
}

func TestCellSwap(t *testing.T) {
	c := NewCell(1)
	old, ver := c.Swap(2)
	if old != 1 || ver != 2 {
		t.Errorf("expected (1, 2), got (%d, %d)", old, ver)
	}
}

func TestCellConcurrentCASRetry(t *testing.T) {
	// T goroutines x K increments through a CAS retry loop must lose nothing.
	const goroutines = 8
	const increments = 1000

	c := NewCell(0)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				for {
					v, ver := c.Load()
					if _, ok := c.CompareAndSwap(ver, v+1); ok {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	v, ver := c.Load()
	if v != goroutines*increments {
		t.Errorf("expected %d, got %d", goroutines*increments, v)
	}
	if ver != goroutines*increments+1 {
		t.Errorf("expected version %d, got %d", goroutines*increments+1, ver)
	}
}

func TestCellVersionMonotonic(t *testing.T) {
	c := NewCell(0)
	last := c.Version()
	for i := 0; i < 100; i++ {
		ver := c.Store(i)
		if ver <= last {
			t.Fatalf("version went backwards: %d after %d", ver, last)
		}
		last = ver
	}
}
