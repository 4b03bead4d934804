package ripple

import (
	"errors"
	"sync"
	"testing"
)

func TestSignalBasic(t *testing.T) {
	g := NewGraph()
	count := NewSignal(g, 0)

	v, err := count.Value()
	if err != nil || v != 0 {
		t.Errorf("expected initial (0, nil), got (%d, %v)", v, err)
	}

	count.Set(5)
	if v, _ := count.Value(); v != 5 {
		t.Errorf("expected 5, got %d", v)
	}

	count.Update(func(n int) int { return n * 2 })
	if v, _ := count.Value(); v != 10 {
		t.Errorf("expected 10, got %d", v)
	}
}

func TestSignalSubscribeInitialDelivery(t *testing.T) {
	g := NewGraph()
	count := NewSignal(g, 42)

	rec := &recorder[int]{}
	cancel := count.Subscribe(rec.listen)
	defer cancel()

	// Current value arrives synchronously at subscribe time.
	expectLog(t, rec, []int{42})

	count.Set(43)
	expectLog(t, rec, []int{42, 43})
}

func TestSignalNoOpSuppression(t *testing.T) {
	g := NewGraph()
	count := NewSignal(g, 7)

	rec := &recorder[int]{}
	cancel := count.Subscribe(rec.listen)
	defer cancel()

	verBefore := count.Version()
	graphBefore := g.Version()

	count.Set(7)

	if count.Version() != verBefore {
		t.Errorf("equal Set bumped node version: %d -> %d", verBefore, count.Version())
	}
	if g.Version() != graphBefore {
		t.Errorf("equal Set bumped graph version: %d -> %d", graphBefore, g.Version())
	}
	// Only the initial delivery is in the log.
	expectLog(t, rec, []int{7})
}

func TestSignalWithEquals(t *testing.T) {
	type user struct {
		ID  int
		Rev int
	}
	g := NewGraph()
	u := NewSignal(g, user{ID: 1, Rev: 1}, WithEquals(func(a, b user) bool {
		return a.ID == b.ID
	}))

	rec := &recorder[user]{}
	cancel := u.Subscribe(rec.listen)
	defer cancel()

	// Same ID: suppressed despite a different Rev.
	u.Set(user{ID: 1, Rev: 2})
	if rec.count() != 1 {
		t.Errorf("expected custom equality to suppress the write, got %d deliveries", rec.count())
	}

	u.Set(user{ID: 2, Rev: 2})
	if rec.count() != 2 {
		t.Errorf("expected delivery for new ID, got %d deliveries", rec.count())
	}
}

func TestSignalContendedUpdate(t *testing.T) {
	// T goroutines x K Update(+1) calls with no external synchronization
	// must land exactly T*K increments.
	const goroutines = 8
	const increments = 500

	g := NewGraph()
	count := NewSignal(g, 0)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				count.Update(func(n int) int { return n + 1 })
			}
		}()
	}
	wg.Wait()

	if v, _ := count.Value(); v != goroutines*increments {
		t.Errorf("expected %d, got %d", goroutines*increments, v)
	}
}

func TestConcurrentWritesDeliverFinalValue(t *testing.T) {
	// Racing writers must never leave the final accepted value undelivered.
	// A delivery is claimed under the version of the value it carries, so
	// the effect that observes the last write always gets its claim through
	// with that write's value.
	for iter := 0; iter < 300; iter++ {
		g := NewGraph()
		s := NewSignal(g, 0)
		rec := &recorder[int]{}
		cancel := s.Subscribe(rec.listen)

		var wg sync.WaitGroup
		wg.Add(4)
		for w := 1; w <= 4; w++ {
			go func(v int) {
				defer wg.Done()
				s.Set(v)
			}(w)
		}
		wg.Wait()

		final, err := s.Value()
		if err != nil {
			t.Fatalf("iteration %d: unexpected read error: %v", iter, err)
		}
		seen := false
		for _, v := range rec.log() {
			if v == final {
				seen = true
				break
			}
		}
		if !seen {
			t.Fatalf("iteration %d: final value %d never delivered, log %v",
				iter, final, rec.log())
		}
		cancel()
	}
}

func TestDeferredSignalNotReady(t *testing.T) {
	g := NewGraph()
	s := NewDeferredSignal[string](g)

	if _, err := s.Value(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}

	// Subscribe withholds the initial delivery instead of raising.
	rec := &recorder[string]{}
	cancel := s.Subscribe(rec.listen)
	defer cancel()
	if rec.count() != 0 {
		t.Errorf("expected no initial delivery on a deferred signal, got %d", rec.count())
	}

	s.Set("first")
	expectLog(t, rec, []string{"first"})

	if v, err := s.Value(); err != nil || v != "first" {
		t.Errorf("expected (first, nil), got (%q, %v)", v, err)
	}
}

func TestDeferredSignalUpdateBeforeFirstSet(t *testing.T) {
	g := NewGraph()
	s := NewDeferredSignal[int](g)

	// Update before the first value is a no-op.
	s.Update(func(n int) int { return n + 1 })
	if _, err := s.Value(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady after Update on unready signal, got %v", err)
	}
}

func TestSignalCloseStopsDelivery(t *testing.T) {
	g := NewGraph()
	s := NewSignal(g, 1)

	rec := &recorder[int]{}
	cancel := s.Subscribe(rec.listen)

	s.Close()
	if !s.IsClosed() {
		t.Error("expected IsClosed after Close")
	}

	s.Set(2)
	if rec.count() != 1 {
		t.Errorf("expected no delivery after Close, got %d", rec.count())
	}

	// Cancel after close is safe and idempotent.
	cancel()
	cancel()
}

func TestSignalUnsubscribeIdempotent(t *testing.T) {
	g := NewGraph()
	s := NewSignal(g, 0)

	rec := &recorder[int]{}
	cancel := s.Subscribe(rec.listen)
	cancel()
	cancel()

	s.Set(1)
	if rec.count() != 1 {
		t.Errorf("expected only the initial delivery, got %d", rec.count())
	}
}

func TestFromChannel(t *testing.T) {
	g := NewGraph()
	ch := make(chan int)

	s, stop := FromChannel(g, ch)
	defer stop()

	if _, err := s.Value(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady before first item, got %v", err)
	}

	delivered := make(chan int, 8)
	cancel := s.Subscribe(func(v int, err error) {
		if err == nil {
			delivered <- v
		}
	})
	defer cancel()

	ch <- 10
	if got := <-delivered; got != 10 {
		t.Errorf("expected 10, got %d", got)
	}

	ch <- 20
	if got := <-delivered; got != 20 {
		t.Errorf("expected 20, got %d", got)
	}

	// Closing the channel halts the feed but leaves the last value standing.
	close(ch)
	if v, err := s.Value(); err != nil || v != 20 {
		t.Errorf("expected (20, nil) after channel close, got (%d, %v)", v, err)
	}
}
