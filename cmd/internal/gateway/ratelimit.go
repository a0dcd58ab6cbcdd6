package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	apiv1 "arcsync/shared/contracts/api/v1"
)

// RateLimit is the last server-reported quota. It is advisory: the gateway
// never delays or rejects a request because of it.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
	UpdatedAt time.Time
}

// Known reports whether any response carried rate-limit headers yet.
func (r RateLimit) Known() bool { return !r.UpdatedAt.IsZero() }

// Exhausted reports a known zero quota whose reset lies after now.
func (r RateLimit) Exhausted(now time.Time) bool {
	return r.Known() && r.Remaining <= 0 && r.Reset.After(now)
}

type rateTracker struct {
	cur atomic.Pointer[RateLimit]
}

func (t *rateTracker) load() RateLimit {
	if p := t.cur.Load(); p != nil {
		return *p
	}
	return RateLimit{}
}

// observe folds the headers of one response into the snapshot. Headers
// missing from the response keep their previous value.
func (t *rateTracker) observe(h http.Header, now time.Time) (RateLimit, bool) {
	limit, okL := headerInt(h, apiv1.HeaderRateLimitLimit)
	remaining, okR := headerInt(h, apiv1.HeaderRateLimitRemaining)
	reset, okT := headerInt(h, apiv1.HeaderRateLimitReset)
	if !okL && !okR && !okT {
		return RateLimit{}, false
	}

	for {
		prev := t.cur.Load()
		next := RateLimit{UpdatedAt: now}
		if prev != nil {
			next.Limit, next.Remaining, next.Reset = prev.Limit, prev.Remaining, prev.Reset
		}
		if okL {
			next.Limit = limit
		}
		if okR {
			next.Remaining = remaining
		}
		if okT {
			next.Reset = resetTime(reset, now)
		}
		if t.cur.CompareAndSwap(prev, &next) {
			return next, true
		}
	}
}

// resetTime accepts unix seconds or, for small values, seconds from now.
func resetTime(v int, now time.Time) time.Time {
	if v < 1_000_000_000 {
		return now.Add(time.Duration(v) * time.Second).UTC()
	}
	return time.Unix(int64(v), 0).UTC()
}

func headerInt(h http.Header, key string) (int, bool) {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
