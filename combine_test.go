package ripple

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCombine2Recombines(t *testing.T) {
	g := NewGraph()
	first := NewSignal(g, "Ada")
	last := NewSignal(g, "Lovelace")
	full := Combine2(first, last, func(f, l string) (string, error) {
		return f + " " + l, nil
	})

	if v, err := full.Value(); err != nil || v != "Ada Lovelace" {
		t.Fatalf("expected Ada Lovelace, got %q, %v", v, err)
	}

	rec := &recorder[string]{}
	cancel := full.Subscribe(rec.listen)
	defer cancel()

	first.Set("Grace")
	last.Set("Hopper")
	expectLog(t, rec, []string{"Ada Lovelace", "Grace Lovelace", "Grace Hopper"})
}

func TestCombine2BatchedWritesRecombineOnce(t *testing.T) {
	g := NewGraph()
	a := NewSignal(g, 1)
	b := NewSignal(g, 2)
	sum := Combine2(a, b, func(x, y int) (int, error) { return x + y, nil })

	rec := &recorder[int]{}
	cancel := sum.Subscribe(rec.listen)
	defer cancel()

	g.Batch(func() {
		a.Set(10)
		b.Set(20)
	})
	expectLog(t, rec, []int{3, 30})
}

func TestCombine2NotReadyUntilAllInputs(t *testing.T) {
	g := NewGraph()
	a := NewSignal(g, 1)
	b := NewDeferredSignal[int](g)
	sum := Combine2(a, b, func(x, y int) (int, error) { return x + y, nil })

	if _, err := sum.Value(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady with a deferred input, got %v", err)
	}

	rec := &recorder[int]{}
	cancel := sum.Subscribe(rec.listen)
	defer cancel()
	if got := rec.count(); got != 0 {
		t.Fatalf("expected initial delivery withheld, got %d deliveries", got)
	}

	b.Set(9)
	expectLog(t, rec, []int{10})
}

func TestCombine2FailurePreferredOverNotReady(t *testing.T) {
	g := NewGraph()
	a := NewSignal(g, 1)
	b := NewDeferredSignal[int](g)
	boom := fmt.Errorf("no such value")
	broken := Map(a, func(int) (int, error) { return 0, boom })
	sum := Combine2[int, int, int](broken, b, func(x, y int) (int, error) { return x + y, nil })

	if _, err := sum.Value(); !errors.Is(err, boom) {
		t.Errorf("expected the captured failure to win over not-ready, got %v", err)
	}
}

func TestCombine3(t *testing.T) {
	g := NewGraph()
	a := NewSignal(g, 1)
	b := NewSignal(g, 2)
	c := NewSignal(g, 3)
	sum := Combine3(a, b, c, func(x, y, z int) (int, error) { return x + y + z, nil })

	rec := &recorder[int]{}
	cancel := sum.Subscribe(rec.listen)
	defer cancel()

	c.Set(30)
	expectLog(t, rec, []int{6, 33})
}

func TestCombineN(t *testing.T) {
	g := NewGraph()
	parts := []Node[string]{
		NewSignal(g, "a"),
		NewSignal(g, "b"),
		NewSignal(g, "c"),
	}
	joined := CombineN(parts, func(vs []string) (string, error) {
		return strings.Join(vs, "-"), nil
	})

	rec := &recorder[string]{}
	cancel := joined.Subscribe(rec.listen)
	defer cancel()

	parts[1].(*Signal[string]).Set("B")
	expectLog(t, rec, []string{"a-b-c", "a-B-c"})
}

func TestCombineNEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an empty node slice")
		}
	}()
	CombineN(nil, func([]int) (int, error) { return 0, nil })
}

func TestWithLatestFromSamplesOther(t *testing.T) {
	g := NewGraph()
	main := NewSignal(g, 1)
	other := NewSignal(g, 100)
	sampled := WithLatestFrom(main, other, func(m, o int) (int, error) {
		return m + o, nil
	})

	rec := &recorder[int]{}
	cancel := sampled.Subscribe(rec.listen)
	defer cancel()

	// A change of other alone never emits.
	other.Set(200)
	if got := rec.count(); got != 1 {
		t.Fatalf("expected no emission on other-only change, got %d deliveries", got)
	}

	// The next main change samples other's latest value.
	main.Set(2)
	expectLog(t, rec, []int{101, 202})
}
