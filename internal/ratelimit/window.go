// Package ratelimit implements a per-caller fixed-window request counter.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter allows at most limit requests per caller in each window.
// Windows open on a caller's first request and reset lazily once expired.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	length  time.Duration
	now     func() time.Time
	windows map[string]*window
}

func New(limit int, length time.Duration) *Limiter {
	return NewWithClock(limit, length, time.Now)
}

// NewWithClock is New with an injected clock.
func NewWithClock(limit int, length time.Duration, now func() time.Time) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		length = time.Minute
	}
	return &Limiter{
		limit:   limit,
		length:  length,
		now:     now,
		windows: make(map[string]*window),
	}
}

// Allow records a request for callerID and reports whether it is within the cap.
// A rejected request leaves the window untouched.
func (l *Limiter) Allow(callerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[callerID]
	if !ok || !now.Before(w.resetAt) {
		l.windows[callerID] = &window{count: 1, resetAt: now.Add(l.length)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// Count returns the requests recorded in callerID's live window, 0 if none.
func (l *Limiter) Count(callerID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[callerID]
	if !ok || !l.now().Before(w.resetAt) {
		return 0
	}
	return w.count
}

// ResetAt returns when callerID's window closes. Zero if there is no live window.
func (l *Limiter) ResetAt(callerID string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[callerID]
	if !ok || !l.now().Before(w.resetAt) {
		return time.Time{}
	}
	return w.resetAt
}

// RetryAfter returns how long until callerID's window closes, 0 if there is no live window.
func (l *Limiter) RetryAfter(callerID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[callerID]
	if !ok {
		return 0
	}
	if d := w.resetAt.Sub(l.now()); d > 0 {
		return d
	}
	return 0
}

// Limit returns the per-window cap.
func (l *Limiter) Limit() int { return l.limit }

// Sweep drops expired windows and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}
