package watch

import (
	"testing"
	"time"
)

func waitSettle(t *testing.T, debouncer *Debouncer, timeout time.Duration) Burst {
	t.Helper()
	select {
	case <-debouncer.C():
		return debouncer.Settle()
	case <-time.After(timeout):
		t.Fatal("timed out waiting for settle")
	}
	return Burst{}
}

func TestDebouncerOneSettlePerBurst(t *testing.T) {
	debouncer := NewDebouncer(25 * time.Millisecond)
	defer debouncer.Stop()

	now := time.Now()
	debouncer.Observe("b.go", now)
	debouncer.Observe("a.go", now)
	debouncer.Observe("a.go", now)

	burst := waitSettle(t, debouncer, 500*time.Millisecond)
	if burst.Events != 3 {
		t.Fatalf("expected 3 events in burst, got %d", burst.Events)
	}
	if len(burst.Paths) != 2 || burst.Paths[0] != "a.go" || burst.Paths[1] != "b.go" {
		t.Fatalf("expected sorted deduped paths, got %v", burst.Paths)
	}

	if debouncer.C() != nil {
		t.Fatal("expected nil timer channel while idle")
	}
}

func TestDebouncerExtendsDeadline(t *testing.T) {
	debouncer := NewDebouncer(60 * time.Millisecond)
	defer debouncer.Stop()

	debouncer.Observe("a.go", time.Now())
	time.Sleep(40 * time.Millisecond)
	debouncer.Observe("a.go", time.Now())

	select {
	case <-debouncer.C():
		t.Fatal("settled before the extended deadline")
	case <-time.After(30 * time.Millisecond):
	}

	burst := waitSettle(t, debouncer, 500*time.Millisecond)
	if burst.Events != 2 {
		t.Fatalf("expected 2 events, got %d", burst.Events)
	}
}

func TestDebouncerSeparateBursts(t *testing.T) {
	debouncer := NewDebouncer(30 * time.Millisecond)
	defer debouncer.Stop()

	debouncer.Observe("a.go", time.Now())
	first := waitSettle(t, debouncer, 500*time.Millisecond)
	if first.Events != 1 {
		t.Fatalf("expected 1 event in first burst, got %d", first.Events)
	}

	debouncer.Observe("b.go", time.Now())
	second := waitSettle(t, debouncer, 500*time.Millisecond)
	if second.Events != 1 || second.Paths[0] != "b.go" {
		t.Fatalf("unexpected second burst: %+v", second)
	}
}

func TestDebouncerZeroInterval(t *testing.T) {
	debouncer := NewDebouncer(0)
	defer debouncer.Stop()

	debouncer.Observe("a.go", time.Now())
	burst := waitSettle(t, debouncer, 500*time.Millisecond)
	if burst.Events != 1 {
		t.Fatalf("expected immediate settle, got %+v", burst)
	}
}

func TestDebouncerStopCancelsPendingBurst(t *testing.T) {
	debouncer := NewDebouncer(20 * time.Millisecond)

	debouncer.Observe("a.go", time.Now())
	debouncer.Stop()

	if debouncer.C() != nil {
		t.Fatal("expected nil timer channel after stop")
	}

	// A stopped debouncer must rearm cleanly.
	debouncer.Observe("b.go", time.Now())
	burst := waitSettle(t, debouncer, 500*time.Millisecond)
	if len(burst.Paths) != 1 || burst.Paths[0] != "b.go" {
		t.Fatalf("unexpected burst after rearm: %+v", burst)
	}
	debouncer.Stop()
}

func TestDebouncerTracksBurstTimes(t *testing.T) {
	debouncer := NewDebouncer(25 * time.Millisecond)
	defer debouncer.Stop()

	first := time.Now()
	last := first.Add(10 * time.Millisecond)
	debouncer.Observe("a.go", first)
	debouncer.Observe("b.go", last)

	burst := waitSettle(t, debouncer, 500*time.Millisecond)
	if !burst.FirstAt.Equal(first) {
		t.Fatalf("expected first at %v, got %v", first, burst.FirstAt)
	}
	if !burst.LastAt.Equal(last) {
		t.Fatalf("expected last at %v, got %v", last, burst.LastAt)
	}
}
