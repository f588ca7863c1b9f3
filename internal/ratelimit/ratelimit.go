// Package ratelimit implements the per-identity request ceiling.
//
// The window is fixed, not sliding: a burst straddling a window boundary
// can momentarily admit up to twice the nominal rate. That approximation
// is part of the observable contract and is kept deliberately.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window is the fixed admission window length.
const Window = 60 * time.Second

// sweepAge is how stale an entry must be before the sweep removes it.
// Removal is a memory optimization only: an elapsed entry already
// behaves as new on its next Admit.
const sweepAge = 2 * Window

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter tracks request counts per identity over fixed windows. All
// methods are safe for concurrent use; Admit is atomic per call, so two
// racing requests from one identity can never lose an increment.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	enabled bool
}

// New creates a limiter admitting up to limit requests per identity per
// window. A zero limit or enabled=false admits everything.
func New(limit int, enabled bool) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		enabled: enabled,
	}
}

// Admit reports whether a request from identity at time now is within
// the ceiling. The first call past the limit and every later call in the
// same window are rejected; the window rolls over once more than Window
// has elapsed since it started.
func (l *Limiter) Admit(identity string, now time.Time) bool {
	if !l.enabled || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identity]
	if !ok || now.Sub(e.windowStart) > Window {
		l.entries[identity] = &entry{count: 1, windowStart: now}
		return true
	}

	e.count++
	return e.count <= l.limit
}

// Sweep removes entries whose window started more than twice the window
// length ago. The lock is released between removals so Admit is never
// blocked for longer than a single delete.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	stale := make([]string, 0)
	for id, e := range l.entries {
		if now.Sub(e.windowStart) > sweepAge {
			stale = append(stale, id)
		}
	}
	l.mu.Unlock()

	removed := 0
	for _, id := range stale {
		l.mu.Lock()
		if e, ok := l.entries[id]; ok && now.Sub(e.windowStart) > sweepAge {
			delete(l.entries, id)
			removed++
		}
		l.mu.Unlock()
	}
	return removed
}

// Run sweeps on the given interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// Size returns the number of tracked identities.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
