package ripple

import (
	"sync"
	"testing"
)

func TestBatchIdempotence(t *testing.T) {
	// 999 writes inside one batch collapse to a single delivery of the
	// final derived value.
	g := NewGraph()
	s := NewSignal(g, 0)
	d := Map(s, func(n int) (int, error) { return n * 2, nil })

	rec := &recorder[int]{}
	cancel := d.Subscribe(rec.listen)
	defer cancel()

	g.Batch(func() {
		for i := 1; i <= 999; i++ {
			s.Set(i)
		}
	})

	// Excluding the initial delivery, exactly one notification: 999*2.
	expectLog(t, rec, []int{0, 1998})
}

func TestBatchNesting(t *testing.T) {
	g := NewGraph()
	s := NewSignal(g, 0)

	rec := &recorder[int]{}
	cancel := s.Subscribe(rec.listen)
	defer cancel()

	g.Batch(func() {
		s.Set(1)
		g.Batch(func() {
			s.Set(2)
		})
		// Inner batch end must not flush: depth is still positive.
		if rec.count() != 1 {
			t.Errorf("inner batch flushed early: %d deliveries", rec.count())
		}
		s.Set(3)
	})

	expectLog(t, rec, []int{0, 3})
}

func TestBatchClosesOnPanic(t *testing.T) {
	g := NewGraph()
	s := NewSignal(g, 0)

	rec := &recorder[int]{}
	cancel := s.Subscribe(rec.listen)
	defer cancel()

	func() {
		defer func() { _ = recover() }()
		g.Batch(func() {
			s.Set(1)
			panic("boom")
		})
	}()

	// The batch closed despite the panic, so the pending effect flushed.
	expectLog(t, rec, []int{0, 1})

	// And the graph is still usable.
	s.Set(2)
	expectLog(t, rec, []int{0, 1, 2})
}

func TestUnbatchedMutationIsImplicitBatch(t *testing.T) {
	g := NewGraph()
	s := NewSignal(g, 0)
	b := Map(s, func(n int) (int, error) { return n + 1, nil })
	c := Map(s, func(n int) (int, error) { return n + 2, nil })
	d := Combine2(b, c, func(x, y int) (int, error) { return x + y, nil })

	rec := &recorder[int]{}
	cancel := d.Subscribe(rec.listen)
	defer cancel()

	// A bare Set behaves as a single-mutation batch: one delivery.
	s.Set(10)
	expectLog(t, rec, []int{3, 23})
}

func TestBatchAcrossGoroutines(t *testing.T) {
	g := NewGraph()
	s := NewSignal(g, 0)
	d := Map(s, func(n int) (int, error) { return n, nil })

	rec := &recorder[int]{}
	cancel := d.Subscribe(rec.listen)
	defer cancel()

	g.Batch(func() {
		var wg sync.WaitGroup
		wg.Add(4)
		for i := 1; i <= 4; i++ {
			go func(n int) {
				defer wg.Done()
				s.Update(func(cur int) int { return cur + n })
			}(i)
		}
		wg.Wait()
	})

	// All four updates landed (1+2+3+4) and flushed as one round.
	expectLog(t, rec, []int{0, 10})
}

func TestFlushYieldsToBatchOpenedMidDrain(t *testing.T) {
	// A listener opens a batch and leaves it open when it returns. The
	// in-flight drain must not steal the batch's pending effects; they
	// flush when the batch ends.
	g := NewGraph()
	a := NewSignal(g, 0)
	b := NewSignal(g, 0)

	recB := &recorder[int]{}
	cancelB := b.Subscribe(recB.listen)
	defer cancelB()

	cancelA := a.Subscribe(func(v int, err error) {
		if err == nil && v == 1 {
			g.Begin()
			b.Set(10)
		}
	})
	defer cancelA()

	a.Set(1)

	// The batch the listener opened is still pending; b's write must not
	// have been delivered mid-batch.
	expectLog(t, recB, []int{0})

	g.End()
	expectLog(t, recB, []int{0, 10})
}

func TestListenerMutationDuringFlush(t *testing.T) {
	// A listener that writes a source re-schedules effects; the drain loop
	// must keep going until the graph settles.
	g := NewGraph()
	a := NewSignal(g, 0)
	b := NewSignal(g, 0)

	recB := &recorder[int]{}
	cancelB := b.Subscribe(recB.listen)
	defer cancelB()

	cancelA := a.Subscribe(func(v int, err error) {
		if err == nil && v > 0 {
			b.Set(v * 100)
		}
	})
	defer cancelA()

	a.Set(3)

	expectLog(t, recB, []int{0, 300})
}

func TestGraphVersionAdvancesOnWrites(t *testing.T) {
	g := NewGraph()
	s := NewSignal(g, 0)

	before := g.Version()
	s.Set(1)
	s.Set(2)
	if got := g.Version(); got != before+2 {
		t.Errorf("expected graph version %d, got %d", before+2, got)
	}
}
