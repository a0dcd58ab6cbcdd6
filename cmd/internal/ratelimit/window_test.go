package ratelimit

import (
	"testing"
	"time"
)

func TestWindow_AllowAndSlide(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(2, 10*time.Second)

	if ok, q := w.Allow(t0); !ok || q.Remaining != 1 {
		t.Fatalf("first: ok=%v q=%+v", ok, q)
	}
	if ok, q := w.Allow(t0.Add(time.Second)); !ok || q.Remaining != 0 {
		t.Fatalf("second: ok=%v q=%+v", ok, q)
	}
	ok, q := w.Allow(t0.Add(2 * time.Second))
	if ok {
		t.Fatalf("third should be rejected")
	}
	if !q.Reset.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("reset = %v", q.Reset)
	}

	// The first event leaves the window.
	if ok, _ := w.Allow(t0.Add(10*time.Second + time.Millisecond)); !ok {
		t.Fatalf("expected room after the window slid")
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(0, 0)
	if ok, q := w.Allow(time.Now()); !ok || q.Limit != 1 {
		t.Fatalf("defaults: ok=%v q=%+v", ok, q)
	}
}
