package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "single ip",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "multiple ips use first",
			header:     " 203.0.113.1 , 198.51.100.2 ",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "invalid forwarded falls back",
			header:     "invalid",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "empty forwarded uses remote host",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "ipv6 forwarded",
			header:     "2001:db8::1",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::1",
		},
		{
			name:       "ipv6 remote fallback",
			header:     "invalid",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::2",
		},
		{
			name:       "remote without port",
			header:     "invalid",
			remoteAddr: "203.0.113.1",
			want:       "203.0.113.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("203.0.113.1"); !ok {
			t.Fatalf("request %d rejected", i)
		}
	}
	ok, retry := l.allow("203.0.113.1")
	if ok {
		t.Fatalf("third request allowed")
	}
	if retry != time.Minute {
		t.Fatalf("retry = %s, want 1m", retry)
	}
	if ok, _ := l.allow("203.0.113.2"); !ok {
		t.Fatalf("other client rejected")
	}

	now = now.Add(time.Minute + time.Second)
	if ok, _ := l.allow("203.0.113.1"); !ok {
		t.Fatalf("request after window rejected")
	}
	if _, exists := l.buckets["203.0.113.2"]; exists {
		t.Fatalf("expired bucket was not swept")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	open := RateLimit(0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}
