package domain

import "time"

// PaymentDisposition records what the intake did with a notification.
type PaymentDisposition string

const (
	DispositionSuccess         PaymentDisposition = "success"
	DispositionDuplicate       PaymentDisposition = "duplicate"
	DispositionFailedFormat    PaymentDisposition = "failed_format"
	DispositionFailedSignature PaymentDisposition = "failed_signature"
	DispositionFailedSum       PaymentDisposition = "failed_sum"
)

// IgnoredDisposition labels a notification whose status is not a success.
func IgnoredDisposition(status string) PaymentDisposition {
	return PaymentDisposition("ignored_" + status)
}

// ErrorDisposition labels a notification that failed while being applied.
func ErrorDisposition(err error) PaymentDisposition {
	return PaymentDisposition("error: " + err.Error())
}

// PaymentLog is the audit record written for every payment notification.
type PaymentLog struct {
	UserID          *int64
	Amount          int64
	Disposition     PaymentDisposition
	OrderReference  string
	ProviderOrderID string
	RawPayload      map[string]string
	RemoteIP        string
	Country         string
	CreatedAt       time.Time
}
