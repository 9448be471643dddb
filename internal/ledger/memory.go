package ledger

import (
	"context"
	"sync"
	"time"

	"genbot/internal/domain"
)

// MemoryStore is an in-process LedgerStore and PaymentStore for local runs
// and tests. State is lost on restart.
type MemoryStore struct {
	mu        sync.Mutex
	accounts  map[int64]*domain.Account
	holds     map[string]*domain.Hold
	processed map[string]struct{}
	entries   []domain.LedgerEntry
	payments  []domain.PaymentLog
	referrers map[int64]int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[int64]*domain.Account),
		holds:     make(map[string]*domain.Hold),
		processed: make(map[string]struct{}),
		referrers: make(map[int64]int64),
		now:       time.Now,
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, userID int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return *acct, nil
}

func (s *MemoryStore) Credit(_ context.Context, userID, amount int64, reference string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditLocked(userID, amount, reference), nil
}

func (s *MemoryStore) Debit(_ context.Context, userID, amount int64, reference string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accountLocked(userID)
	if acct.Available() < amount {
		return 0, domain.ErrInsufficientBalance
	}
	acct.Balance -= amount
	acct.UpdatedAt = s.now()
	s.appendEntryLocked(userID, domain.EntryDebit, amount, acct.Balance, reference)
	return acct.Balance, nil
}

func (s *MemoryStore) CreateHold(_ context.Context, hold domain.Hold) (domain.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.accountLocked(hold.UserID)
	if acct.Available() < hold.Amount {
		return domain.Hold{}, domain.ErrInsufficientBalance
	}
	acct.Held += hold.Amount
	acct.UpdatedAt = s.now()
	hold.Status = domain.HoldStatusHeld
	hold.CreatedAt = s.now()
	stored := hold
	s.holds[hold.ID] = &stored
	return hold, nil
}

func (s *MemoryStore) CaptureHold(_ context.Context, holdID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[holdID]
	if !ok || hold.Status != domain.HoldStatusHeld {
		return 0, domain.ErrHoldClosed
	}
	hold.Status = domain.HoldStatusCaptured
	acct := s.accountLocked(hold.UserID)
	acct.Balance -= hold.Amount
	acct.Held -= hold.Amount
	acct.UpdatedAt = s.now()
	s.appendEntryLocked(hold.UserID, domain.EntryCapture, hold.Amount, acct.Balance, "hold:"+hold.ID)
	return acct.Balance, nil
}

func (s *MemoryStore) ReleaseHold(_ context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[holdID]
	if !ok || hold.Status != domain.HoldStatusHeld {
		return domain.ErrHoldClosed
	}
	s.releaseLocked(hold)
	return nil
}

// ReleaseStale releases holds created more than olderThan ago.
func (s *MemoryStore) ReleaseStale(_ context.Context, olderThan time.Duration, limit int) ([]domain.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	var released []domain.Hold
	for _, hold := range s.holds {
		if limit > 0 && len(released) >= limit {
			break
		}
		if hold.Status != domain.HoldStatusHeld || !hold.CreatedAt.Before(cutoff) {
			continue
		}
		s.releaseLocked(hold)
		released = append(released, *hold)
	}
	return released, nil
}

func (s *MemoryStore) CreditOnce(_ context.Context, orderKey string, userID, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.processed[orderKey]; seen {
		return 0, domain.ErrDuplicateOperation
	}
	s.processed[orderKey] = struct{}{}
	return s.creditLocked(userID, amount, "payment:"+orderKey), nil
}

func (s *MemoryStore) LogPayment(_ context.Context, entry domain.PaymentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.payments = append(s.payments, entry)
	return nil
}

func (s *MemoryStore) RecordReferral(_ context.Context, userID, referrerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == referrerID {
		return false, nil
	}
	if _, ok := s.referrers[userID]; ok {
		return false, nil
	}
	if _, ok := s.accounts[userID]; ok {
		return false, nil
	}
	s.referrers[userID] = referrerID
	return true, nil
}

func (s *MemoryStore) ReferralCount(_ context.Context, referrerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, ref := range s.referrers {
		if ref == referrerID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ReferrerOf(_ context.Context, userID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.referrers[userID]
	return ref, ok, nil
}

// Entries returns a copy of the audit trail.
func (s *MemoryStore) Entries() []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LedgerEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Payments returns a copy of the payment audit log.
func (s *MemoryStore) Payments() []domain.PaymentLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PaymentLog, len(s.payments))
	copy(out, s.payments)
	return out
}

func (s *MemoryStore) creditLocked(userID, amount int64, reference string) int64 {
	acct := s.accountLocked(userID)
	acct.Balance += amount
	acct.UpdatedAt = s.now()
	s.appendEntryLocked(userID, domain.EntryCredit, amount, acct.Balance, reference)
	return acct.Balance
}

func (s *MemoryStore) releaseLocked(hold *domain.Hold) {
	hold.Status = domain.HoldStatusReleased
	acct := s.accountLocked(hold.UserID)
	acct.Held -= hold.Amount
	acct.UpdatedAt = s.now()
}

func (s *MemoryStore) accountLocked(userID int64) *domain.Account {
	acct, ok := s.accounts[userID]
	if !ok {
		now := s.now()
		acct = &domain.Account{UserID: userID, CreatedAt: now, UpdatedAt: now}
		s.accounts[userID] = acct
	}
	return acct
}

func (s *MemoryStore) appendEntryLocked(userID int64, typ domain.EntryType, amount, balanceAfter int64, reference string) {
	s.entries = append(s.entries, domain.LedgerEntry{
		UserID:       userID,
		Type:         typ,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Reference:    reference,
		CreatedAt:    s.now(),
	})
}

var (
	_ domain.LedgerStore   = (*MemoryStore)(nil)
	_ domain.PaymentStore  = (*MemoryStore)(nil)
	_ domain.ReferralStore = (*MemoryStore)(nil)
)
