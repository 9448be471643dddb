package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// limiter is a fixed-window counter per client IP. Expired windows are swept
// at most once per window length.
type limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     int
	per       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newLimiter(limit int, per time.Duration) *limiter {
	return &limiter{buckets: make(map[string]*bucket), limit: limit, per: per, now: time.Now}
}

// RateLimit allows limit requests per client IP in each window of length per.
// A non-positive limit disables it.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	l := newLimiter(limit, per)
	return func(next http.Handler) http.Handler {
		if limit <= 0 || per <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retry := l.allow(ClientIP(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *limiter) allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.per {
		for key, b := range l.buckets {
			if now.After(b.until) {
				delete(l.buckets, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[ip]
	if !ok || now.After(b.until) {
		b = &bucket{until: now.Add(l.per)}
		l.buckets[ip] = b
	}
	if b.count >= l.limit {
		return false, b.until.Sub(now)
	}
	b.count++
	return true, 0
}
