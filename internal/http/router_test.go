package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"genbot/internal/http/handlers"
	"genbot/internal/metrics"
	"genbot/internal/payments"
)

type stubProcessor struct {
	country string
}

func (s *stubProcessor) Process(_ context.Context, n payments.Notification) payments.Result {
	s.country = n.Country
	return payments.Result{HTTPStatus: http.StatusOK, Reply: payments.ReplyIgnored}
}

func newTestRouter(t *testing.T, proc handlers.PaymentProcessor, opts RouterOptions) http.Handler {
	t.Helper()
	opts.Logger = zerolog.Nop()
	return NewRouter(handlers.NewApp(proc, nil), opts)
}

func TestRouterRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.PaymentNotification("success")

	proc := &stubProcessor{}
	router := newTestRouter(t, proc, RouterOptions{
		CountryLookup:   func(string) (string, error) { return "ru", nil },
		RateLimitPerMin: 1,
		MetricsToken:    "tok",
		Gatherer:        reg,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "genbot_payment_notifications_total")

	webhook := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/prodamus", strings.NewReader(url.Values{"payment_status": {"pending"}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	rec = webhook()
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Ignored", rec.Body.String())
	require.Equal(t, "RU", proc.country)

	require.Equal(t, http.StatusTooManyRequests, webhook().Code)
}
