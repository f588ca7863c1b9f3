package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLimiter_AdmitUpToLimit(t *testing.T) {
	l := New(3, true)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.Admit("client-a", now) {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if l.Admit("client-a", now) {
		t.Error("request past the limit should be rejected")
	}
	if l.Admit("client-a", now.Add(time.Second)) {
		t.Error("later request in the same window should stay rejected")
	}
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	l := New(1, true)
	now := time.Now()

	if !l.Admit("client-a", now) {
		t.Fatal("first request for client-a should be admitted")
	}
	if l.Admit("client-a", now) {
		t.Error("second request for client-a should be rejected")
	}
	if !l.Admit("client-b", now) {
		t.Error("client-b must not be affected by client-a's usage")
	}
}

func TestLimiter_WindowRollover(t *testing.T) {
	l := New(2, true)
	start := time.Now()

	l.Admit("client-a", start)
	l.Admit("client-a", start)
	if l.Admit("client-a", start.Add(30*time.Second)) {
		t.Error("mid-window request past the limit should be rejected")
	}

	// Exactly Window elapsed is still the same window.
	if l.Admit("client-a", start.Add(Window)) {
		t.Error("request at exactly the window length should be rejected")
	}

	// Past the window the count resets.
	if !l.Admit("client-a", start.Add(Window+time.Second)) {
		t.Error("request after the window elapsed should start a fresh window")
	}
}

func TestLimiter_DisabledAdmitsEverything(t *testing.T) {
	now := time.Now()

	t.Run("enabled false", func(t *testing.T) {
		l := New(1, false)
		for i := 0; i < 100; i++ {
			if !l.Admit("client-a", now) {
				t.Fatal("disabled limiter must admit everything")
			}
		}
		if l.Size() != 0 {
			t.Errorf("disabled limiter should track nothing, got %d entries", l.Size())
		}
	})

	t.Run("zero limit", func(t *testing.T) {
		l := New(0, true)
		for i := 0; i < 100; i++ {
			if !l.Admit("client-a", now) {
				t.Fatal("zero-limit limiter must admit everything")
			}
		}
	})
}

func TestLimiter_Sweep(t *testing.T) {
	l := New(5, true)
	start := time.Now()

	l.Admit("stale-1", start)
	l.Admit("stale-2", start)
	l.Admit("fresh", start.Add(90*time.Second))

	if got := l.Sweep(start.Add(100 * time.Second)); got != 0 {
		t.Errorf("nothing older than twice the window yet, removed %d", got)
	}

	removed := l.Sweep(start.Add(2*Window + time.Second))
	if removed != 2 {
		t.Errorf("expected 2 stale entries removed, got %d", removed)
	}
	if l.Size() != 1 {
		t.Errorf("expected 1 entry to remain, got %d", l.Size())
	}

	// A swept identity starts over as if never seen.
	if !l.Admit("stale-1", start.Add(2*Window+2*time.Second)) {
		t.Error("swept identity should be admitted like a new one")
	}
}

func TestLimiter_ConcurrentAdmit(t *testing.T) {
	const limit = 50
	const attempts = 200

	l := New(limit, true)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("shared", now) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("expected exactly %d admissions, got %d", limit, admitted)
	}
}

func BenchmarkLimiter_Admit(b *testing.B) {
	l := New(1000, true)
	now := time.Now()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		l.Admit(fmt.Sprintf("client-%d", i%100), now)
	}
}
