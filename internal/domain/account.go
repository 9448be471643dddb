package domain

import "time"

// Account is a user's prepaid credit balance. Held credits are reserved by
// in-flight generations and are not available for new ones.
type Account struct {
	UserID    int64
	Balance   int64
	Held      int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available returns the credits that can still be reserved.
func (a Account) Available() int64 {
	return a.Balance - a.Held
}

// HoldStatus enumerates the lifecycle of a credit reservation.
type HoldStatus string

const (
	HoldStatusHeld     HoldStatus = "HELD"
	HoldStatusCaptured HoldStatus = "CAPTURED"
	HoldStatusReleased HoldStatus = "RELEASED"
)

// Hold reserves credits for a single generation attempt. It is captured only
// after the provider delivered a result and released otherwise.
type Hold struct {
	ID        string
	UserID    int64
	Amount    int64
	ModelKey  string
	Status    HoldStatus
	CreatedAt time.Time
}

// EntryType labels a ledger audit row.
type EntryType string

const (
	EntryCredit  EntryType = "CREDIT"
	EntryDebit   EntryType = "DEBIT"
	EntryCapture EntryType = "CAPTURE"
)

// LedgerEntry is an append-only record of a balance change.
type LedgerEntry struct {
	UserID       int64
	Type         EntryType
	Amount       int64
	BalanceAfter int64
	Reference    string
	CreatedAt    time.Time
}
