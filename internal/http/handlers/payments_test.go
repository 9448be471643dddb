package handlers

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"genbot/internal/domain"
	"genbot/internal/ledger"
	"genbot/internal/payments"
)

type recordingProcessor struct {
	got    []payments.Notification
	result payments.Result
}

func (p *recordingProcessor) Process(_ context.Context, n payments.Notification) payments.Result {
	p.got = append(p.got, n)
	return p.result
}

func postForm(t *testing.T, app *App, form url.Values, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/prodamus", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "198.51.100.7:4431"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	app.ProdamusWebhook(rec, req)
	return rec
}

func TestProdamusWebhookMapsFields(t *testing.T) {
	proc := &recordingProcessor{result: payments.Result{HTTPStatus: http.StatusOK, Reply: payments.ReplyOK}}
	app := NewApp(proc, nil)

	rec := postForm(t, app, url.Values{
		"order_num":      {"123_10"},
		"order_id":       {"P-991"},
		"payment_status": {"success"},
		"sum":            {"149.00"},
	}, http.Header{"Sign": {"abcd"}})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.Len(t, proc.got, 1)
	n := proc.got[0]
	require.Equal(t, "123_10", n.OrderReference)
	require.Equal(t, "P-991", n.ProviderOrderID)
	require.Equal(t, "success", n.Status)
	require.Equal(t, "149.00", n.Sum)
	require.Equal(t, "abcd", n.Signature)
	require.Equal(t, "198.51.100.7", n.RemoteIP)
	require.Contains(t, string(n.Body), "order_num=123_10")
	require.Equal(t, "P-991", n.Raw["order_id"])
}

func TestProdamusWebhookAcceptsJSON(t *testing.T) {
	proc := &recordingProcessor{result: payments.Result{HTTPStatus: http.StatusOK, Reply: payments.ReplyIgnored}}
	app := NewApp(proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/prodamus",
		strings.NewReader(`{"order_num":"5_25","payment_status":"pending","sum":375,"products":[{"name":"x"}]}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	app.ProdamusWebhook(rec, req)

	require.Equal(t, "Ignored", rec.Body.String())
	n := proc.got[0]
	require.Equal(t, "5_25", n.OrderReference)
	require.Equal(t, "375", n.Sum)
	require.Equal(t, `[{"name":"x"}]`, n.Raw["products"])
}

func TestProdamusWebhookAuditsMalformedBodies(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		wantRef     string
	}{
		{"bad form escape", "application/x-www-form-urlencoded", "order_num=1_10&payment_status=%zz", "1_10"},
		{"bad json", "application/json", "{not json", ""},
		{"oversized", "application/x-www-form-urlencoded", strings.Repeat("a", maxWebhookBody+10), ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := ledger.NewMemoryStore()
			intake, err := payments.NewIntake(payments.Options{Store: store})
			require.NoError(t, err)
			app := NewApp(intake, nil)

			req := httptest.NewRequest(http.MethodPost, "/payments/prodamus", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			app.ProdamusWebhook(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, payments.ReplyWrongFormat, rec.Body.String())

			logs := store.Payments()
			require.Len(t, logs, 1)
			require.Equal(t, domain.DispositionFailedFormat, logs[0].Disposition)
			require.Equal(t, tc.wantRef, logs[0].OrderReference)
			require.NotEmpty(t, logs[0].RawPayload["_error"])
			require.LessOrEqual(t, len(logs[0].RawPayload["_body"]), auditPreview)

			_, err = store.GetAccount(context.Background(), 1)
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestProdamusWebhookPassesDecodeErrorToIntake(t *testing.T) {
	proc := &recordingProcessor{result: payments.Result{HTTPStatus: http.StatusOK, Reply: payments.ReplyWrongFormat}}
	app := NewApp(proc, nil)

	req := httptest.NewRequest(http.MethodPost, "/payments/prodamus", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.ProdamusWebhook(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proc.got, 1)
	require.Error(t, proc.got[0].DecodeErr)
	require.Equal(t, "{not json", proc.got[0].Raw["_body"])
}

// The webhook end to end against a real intake and in-memory ledger.
func TestProdamusWebhookCreditsOnceAgainstLedger(t *testing.T) {
	store := ledger.NewMemoryStore()
	intake, err := payments.NewIntake(payments.Options{Store: store, Verifier: payments.NewVerifier("secret")})
	require.NoError(t, err)
	app := NewApp(intake, nil)

	form := url.Values{"order_num": {"77_10"}, "order_id": {"P-1"}, "payment_status": {"success"}, "sum": {"149"}}
	sign := hex.EncodeToString(payments.Sign([]byte("secret"), []byte(form.Encode())))

	for i := 0; i < 2; i++ {
		rec := postForm(t, app, form, http.Header{"Sign": {sign}})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "OK", rec.Body.String())
	}
	acct, err := store.GetAccount(context.Background(), 77)
	require.NoError(t, err)
	require.Equal(t, int64(10), acct.Balance)

	rec := postForm(t, app, form, http.Header{"Sign": {"00"}})
	require.Equal(t, http.StatusForbidden, rec.Code)

	bad := url.Values{"order_num": {"garbage"}, "payment_status": {"success"}}
	badSign := hex.EncodeToString(payments.Sign([]byte("secret"), []byte(bad.Encode())))
	rec = postForm(t, app, bad, http.Header{"Sign": {badSign}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Wrong order format", rec.Body.String())

	logs := store.Payments()
	require.Len(t, logs, 4)
	require.Equal(t, domain.DispositionSuccess, logs[0].Disposition)
	require.Equal(t, domain.DispositionDuplicate, logs[1].Disposition)
	require.Equal(t, domain.DispositionFailedSignature, logs[2].Disposition)
	require.Equal(t, domain.DispositionFailedFormat, logs[3].Disposition)
}

func TestHealth(t *testing.T) {
	app := NewApp(nil, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	app.Checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	rec = httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"degraded","checks":{"redis":"connection refused"}}`, rec.Body.String())
}
