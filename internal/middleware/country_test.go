package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

type assertError string

func (e assertError) Error() string { return string(e) }

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		resolver CountryLookup
		want     string
	}{
		{
			name: "header precedence",
			setup: func(r *http.Request) {
				r.Header.Set("X-Country-Code", "ru")
				r.Header.Set("CF-IPCountry", "kz")
			},
			want: "RU",
		},
		{
			name: "unknown cloudflare country is skipped",
			setup: func(r *http.Request) {
				r.Header.Set("CF-IPCountry", "XX")
			},
			resolver: func(string) (string, error) { return "de", nil },
			want:     "DE",
		},
		{
			name: "resolver fallback",
			resolver: func(ip string) (string, error) {
				if ip != "203.0.113.4" {
					t.Fatalf("unexpected ip: %s", ip)
				}
				return "ru", nil
			},
			want: "RU",
		},
		{
			name: "resolver error returns empty",
			resolver: func(ip string) (string, error) {
				return "", assertError("boom")
			},
			want: "",
		},
		{
			name: "no resolver",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:80"
			if tc.setup != nil {
				tc.setup(req)
			}
			got := ResolveCountry(req, tc.resolver)
			if got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCountryMiddlewareStoresCode(t *testing.T) {
	var got string
	handler := Country(func(string) (string, error) { return "ru", nil })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CountryFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if got != "RU" {
		t.Fatalf("CountryFromContext() = %q, want RU", got)
	}
	if CountryFromContext(context.Background()) != "" {
		t.Fatalf("expected empty country for bare context")
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	var seenID string
	var ctxLogger *zerolog.Logger
	handler := RequestID(Logger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestIDFromContext(r.Context())
		ctxLogger = zerolog.Ctx(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seenID != "abc-123" || rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("request id not propagated: ctx=%q header=%q", seenID, rec.Header().Get("X-Request-ID"))
	}
	if ctxLogger == nil || ctxLogger.GetLevel() == zerolog.Disabled {
		t.Fatalf("expected request logger in context")
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode access log: %v (%s)", err, buf.String())
	}
	if line["status"] != float64(http.StatusTeapot) || line["bytes"] != float64(3) || line["request_id"] != "abc-123" {
		t.Fatalf("unexpected access log: %v", line)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("X-Request-ID", "has spaces and\nnewlines")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, bad)
	if got := rec.Header().Get("X-Request-ID"); got == "" || got == bad.Header.Get("X-Request-ID") {
		t.Fatalf("malformed request id was echoed: %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	handler := BearerToken("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, tc := range []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Basic s3cret", http.StatusUnauthorized},
		{"Bearer s3cret", http.StatusOK},
		{"bearer  s3cret ", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("Authorization %q: status = %d, want %d", tc.header, rec.Code, tc.want)
		}
	}

	open := BearerToken("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("open route status = %d", rec.Code)
	}
}
