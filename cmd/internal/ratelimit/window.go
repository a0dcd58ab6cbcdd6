// Package ratelimit holds the sliding-window limiter shared by the dev
// server's request quota and the realtime watcher's reconnect guard.
package ratelimit

import (
	"sync"
	"time"
)

// Window admits at most limit events in any trailing window.
type Window struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// Quota is the limiter state after one Allow call.
type Quota struct {
	Limit     int
	Remaining int
	// Reset is when the oldest counted event leaves the window.
	Reset time.Time
}

// New returns a limiter admitting limit events per window. Non-positive
// inputs fall back to 1 event per second.
func New(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Window{
		events: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
	}
}

// Allow records an event at now when the window has room.
func (w *Window) Allow(now time.Time) (bool, Quota) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict(now)
	ok := len(w.events) < w.limit
	if ok {
		w.events = append(w.events, now)
	}
	return ok, w.quota(now)
}

func (w *Window) evict(now time.Time) {
	cut := now.Add(-w.window)
	dst := w.events[:0]
	for _, t := range w.events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	w.events = dst
}

func (w *Window) quota(now time.Time) Quota {
	q := Quota{Limit: w.limit, Remaining: w.limit - len(w.events), Reset: now.Add(w.window)}
	if len(w.events) > 0 {
		q.Reset = w.events[0].Add(w.window)
	}
	return q
}
