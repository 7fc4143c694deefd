package gate

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAcquire_Exclusive(t *testing.T) {
	g := New()

	if err := g.Acquire(); err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}
	if err := g.Acquire(); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire() error = %v, want ErrBusy", err)
	}

	g.Release()

	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire() after Release() error: %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	g := New()

	// Release on an open gate must not fail or corrupt the count.
	g.Release()
	g.Release()
	if n := g.HolderCount(); n != 0 {
		t.Fatalf("HolderCount() = %d, want 0", n)
	}

	if err := g.Acquire(); err != nil {
		t.Fatalf("Acquire() after stray releases error: %v", err)
	}
	if n := g.HolderCount(); n != 1 {
		t.Fatalf("HolderCount() = %d, want 1", n)
	}

	g.Release()
	g.Release()
	if n := g.HolderCount(); n != 0 {
		t.Fatalf("HolderCount() after double release = %d, want 0", n)
	}
}

func TestHeld(t *testing.T) {
	g := New()
	if g.Held() {
		t.Error("new gate reports held")
	}
	if err := g.Acquire(); err != nil {
		t.Fatal(err)
	}
	if !g.Held() {
		t.Error("acquired gate reports open")
	}
	g.Release()
	if g.Held() {
		t.Error("released gate reports held")
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	g := New()

	const racers = 32
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)

	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.Acquire() == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if n := wins.Load(); n != 1 {
		t.Fatalf("%d concurrent acquirers succeeded, want exactly 1", n)
	}
	if n := g.HolderCount(); n != 1 {
		t.Fatalf("HolderCount() = %d, want 1", n)
	}
}
