// Package ratelimit provides fixed-window admission control keyed by an
// arbitrary string (client IP inbound, upstream host outbound).
//
// The window accounting is an approximation: counts reset at a fixed boundary
// rather than sliding continuously. The drift is acceptable for both callers
// and matches how upstream forum APIs meter their own limits.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of an admission check. TryAcquire always returns a
// decision; it never blocks and never fails.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// window tracks request volume for one key within the current fixed window.
type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a capacity-bounded table of per-key fixed windows.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	// maxKeys caps the table; when exceeded, windows closest to expiry are
	// evicted first since they carry the least remaining state.
	maxKeys int
	now     func() time.Time
}

// New creates a Limiter tracking at most maxKeys keys.
func New(maxKeys int) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

// NewWithClock creates a Limiter with an injectable clock. Intended for tests.
func NewWithClock(maxKeys int, now func() time.Time) *Limiter {
	l := New(maxKeys)
	l.now = now
	return l
}

// TryAcquire records a request against key and reports whether it is allowed
// within the current window of windowDur and max requests.
func (l *Limiter) TryAcquire(key string, windowDur time.Duration, max int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		if !ok && len(l.windows) >= l.maxKeys {
			l.evictSoonest(now)
		}
		w = &window{resetAt: now.Add(windowDur)}
		l.windows[key] = w
	}

	if w.count >= max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Decision{Allowed: true, Remaining: max - w.count, ResetAt: w.resetAt}
}

// evictSoonest removes expired windows, and if the table is still full,
// the tracked window with the soonest resetAt. Callers must hold mu.
func (l *Limiter) evictSoonest(now time.Time) {
	var (
		soonestKey string
		soonestAt  time.Time
	)
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
			continue
		}
		if soonestKey == "" || w.resetAt.Before(soonestAt) {
			soonestKey = key
			soonestAt = w.resetAt
		}
	}
	if len(l.windows) >= l.maxKeys && soonestKey != "" {
		delete(l.windows, soonestKey)
	}
}

// WaitUntilAllowed blocks until an acquisition for key succeeds or ctx is
// done. The wait is bounded by the window reset; a caller-supplied deadline
// on ctx converts a long wait into a fail-fast error.
func (l *Limiter) WaitUntilAllowed(ctx context.Context, key string, windowDur time.Duration, max int) error {
	for {
		d := l.TryAcquire(key, windowDur, max)
		if d.Allowed {
			return nil
		}

		wait := d.ResetAt.Sub(l.now())
		if wait < 0 {
			wait = 0
		}

		if deadline, ok := ctx.Deadline(); ok && l.now().Add(wait).After(deadline) {
			return context.DeadlineExceeded
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TrackedKeys returns the number of keys currently tracked.
func (l *Limiter) TrackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
