package domain

import "context"

// LedgerStore persists per-user balances. Every mutating method must be atomic
// with respect to concurrent callers for the same user.
type LedgerStore interface {
	GetAccount(ctx context.Context, userID int64) (Account, error)
	Credit(ctx context.Context, userID, amount int64, reference string) (int64, error)
	Debit(ctx context.Context, userID, amount int64, reference string) (int64, error)
	CreateHold(ctx context.Context, hold Hold) (Hold, error)
	CaptureHold(ctx context.Context, holdID string) (int64, error)
	ReleaseHold(ctx context.Context, holdID string) error
}

// PaymentStore persists payment notifications and applies their credits.
type PaymentStore interface {
	// CreditOnce credits the account unless orderKey was already applied. It
	// returns ErrDuplicateOperation for a replayed order.
	CreditOnce(ctx context.Context, orderKey string, userID, amount int64) (int64, error)
	LogPayment(ctx context.Context, entry PaymentLog) error
}

// ReferralStore remembers who invited whom.
type ReferralStore interface {
	// RecordReferral links userID to referrerID on the user's first contact.
	// It reports false when the user already has a referrer or an account, or
	// when the two ids are equal.
	RecordReferral(ctx context.Context, userID, referrerID int64) (bool, error)
	ReferralCount(ctx context.Context, referrerID int64) (int64, error)
	// ReferrerOf returns the user's referrer, if any.
	ReferrerOf(ctx context.Context, userID int64) (int64, bool, error)
}
