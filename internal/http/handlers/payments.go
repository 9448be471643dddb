package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"genbot/internal/middleware"
	"genbot/internal/payments"
)

const maxWebhookBody = 1 << 20

// signatureHeader carries the provider's HMAC of the raw body.
const signatureHeader = "Sign"

// ProdamusWebhook accepts payment notifications. The provider retries anything
// that is not a 2xx, so only store failures answer 500.
func (a *App) ProdamusWebhook(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	var fields map[string]string
	var decodeErr error
	switch {
	case err != nil:
		decodeErr = fmt.Errorf("read body: %w", err)
	case len(body) > maxWebhookBody:
		decodeErr = fmt.Errorf("body exceeds %d bytes", maxWebhookBody)
		body = body[:maxWebhookBody]
	default:
		fields, decodeErr = decodeFields(r.Header.Get("Content-Type"), body)
	}
	if decodeErr != nil {
		log.Warn().Err(decodeErr).Int("bytes", len(body)).Msg("payments webhook: malformed body")
		fields = auditFields(fields, body, decodeErr)
	}

	res := a.Payments.Process(r.Context(), payments.Notification{
		OrderReference:  fields["order_num"],
		Status:          fields["payment_status"],
		ProviderOrderID: fields["order_id"],
		Sum:             fields["sum"],
		Raw:             fields,
		Body:            body,
		Signature:       r.Header.Get(signatureHeader),
		RemoteIP:        middleware.ClientIP(r),
		Country:         middleware.CountryFromContext(r.Context()),
		DecodeErr:       decodeErr,
	})
	log.Info().
		Str("disposition", string(res.Disposition)).
		Int("status", res.HTTPStatus).
		Int64("user_id", res.UserID).
		Msg("payments webhook: processed")
	a.text(w, res.HTTPStatus, res.Reply)
}

// auditPreview caps how much of an undecodable body is kept in the audit row.
const auditPreview = 2048

// auditFields keeps whatever decoded before the failure, plus the error and a
// printable prefix of the body.
func auditFields(partial map[string]string, body []byte, decodeErr error) map[string]string {
	fields := make(map[string]string, len(partial)+2)
	for k, v := range partial {
		fields[k] = v
	}
	if len(body) > auditPreview {
		body = body[:auditPreview]
	}
	raw := strings.ToValidUTF8(string(body), "\uFFFD")
	fields["_body"] = strings.ReplaceAll(raw, "\x00", "")
	fields["_error"] = decodeErr.Error()
	return fields
}

// decodeFields flattens a form or JSON body into single string values. Nested
// JSON values are kept as their JSON text. On error the fields decoded so far
// are still returned.
func decodeFields(contentType string, body []byte) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	fields := map[string]string{}

	if mediaType == "application/json" {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return fields, fmt.Errorf("decode json: %w", err)
		}
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
				fields[k] = ""
			case string:
				fields[k] = val
			case float64:
				fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
			case bool:
				fields[k] = strconv.FormatBool(val)
			default:
				encoded, err := json.Marshal(val)
				if err != nil {
					return fields, fmt.Errorf("encode %s: %w", k, err)
				}
				fields[k] = string(encoded)
			}
		}
		return fields, nil
	}

	values, err := url.ParseQuery(string(body))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	if err != nil {
		return fields, fmt.Errorf("decode form: %w", err)
	}
	return fields, nil
}
