package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verifier authenticates a webhook body against the signature header.
type Verifier interface {
	Verify(body []byte, signature string) error
}

// NewVerifier returns an HMAC-SHA256 verifier, or one that accepts everything
// when secret is empty.
func NewVerifier(secret string) Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return acceptAll{}
	}
	return HMACVerifier{secret: []byte(secret)}
}

type acceptAll struct{}

func (acceptAll) Verify([]byte, string) error { return nil }

// HMACVerifier expects the lowercase hex HMAC-SHA256 of the raw body.
type HMACVerifier struct {
	secret []byte
}

func (v HMACVerifier) Verify(body []byte, signature string) error {
	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, Sign(v.secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the raw HMAC-SHA256 of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
