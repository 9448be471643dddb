package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/sqlinline"
)

// PGStore keeps accounts, holds and payment records in PostgreSQL. Every
// mutation is a single statement so the floor check and the write cannot race.
type PGStore struct {
	sql infra.SQLExecutor
}

func NewPGStore(sql infra.SQLExecutor) *PGStore {
	return &PGStore{sql: sql}
}

func (s *PGStore) GetAccount(ctx context.Context, userID int64) (domain.Account, error) {
	var acct domain.Account
	err := s.sql.QueryRow(ctx, sqlinline.QSelectAccount, userID).
		Scan(&acct.UserID, &acct.Balance, &acct.Held, &acct.CreatedAt, &acct.UpdatedAt)
	if infra.IsNoRows(err) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

func (s *PGStore) Credit(ctx context.Context, userID, amount int64, reference string) (int64, error) {
	var balance int64
	if err := s.sql.QueryRow(ctx, sqlinline.QCreditAccount, userID, amount, reference).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PGStore) Debit(ctx context.Context, userID, amount int64, reference string) (int64, error) {
	var balance int64
	err := s.sql.QueryRow(ctx, sqlinline.QDebitAccount, userID, amount, reference).Scan(&balance)
	if infra.IsNoRows(err) {
		return 0, domain.ErrInsufficientBalance
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PGStore) CreateHold(ctx context.Context, hold domain.Hold) (domain.Hold, error) {
	var createdAt time.Time
	err := s.sql.QueryRow(ctx, sqlinline.QCreateHold, hold.ID, hold.UserID, hold.Amount, hold.ModelKey).Scan(&createdAt)
	if infra.IsNoRows(err) {
		return domain.Hold{}, domain.ErrInsufficientBalance
	}
	if err != nil {
		return domain.Hold{}, err
	}
	hold.Status = domain.HoldStatusHeld
	hold.CreatedAt = createdAt
	return hold, nil
}

func (s *PGStore) CaptureHold(ctx context.Context, holdID string) (int64, error) {
	var balance int64
	err := s.sql.QueryRow(ctx, sqlinline.QCaptureHold, holdID).Scan(&balance)
	if infra.IsNoRows(err) {
		return 0, domain.ErrHoldClosed
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PGStore) ReleaseHold(ctx context.Context, holdID string) error {
	var userID int64
	err := s.sql.QueryRow(ctx, sqlinline.QReleaseHold, holdID).Scan(&userID)
	if infra.IsNoRows(err) {
		return domain.ErrHoldClosed
	}
	return err
}

// ReleaseStale releases up to limit holds older than olderThan and returns them.
func (s *PGStore) ReleaseStale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Hold, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QReleaseStaleHolds, int64(olderThan/time.Second), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var released []domain.Hold
	for rows.Next() {
		hold := domain.Hold{Status: domain.HoldStatusReleased}
		if err := rows.Scan(&hold.ID, &hold.UserID, &hold.Amount); err != nil {
			return nil, err
		}
		released = append(released, hold)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return released, nil
}

func (s *PGStore) CreditOnce(ctx context.Context, orderKey string, userID, amount int64) (int64, error) {
	var balance int64
	err := s.sql.QueryRow(ctx, sqlinline.QCreditPaymentOnce, orderKey, userID, amount).Scan(&balance)
	if infra.IsNoRows(err) {
		return 0, domain.ErrDuplicateOperation
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PGStore) LogPayment(ctx context.Context, entry domain.PaymentLog) error {
	payload, err := json.Marshal(entry.RawPayload)
	if err != nil {
		return fmt.Errorf("encode payment payload: %w", err)
	}
	_, err = s.sql.Exec(ctx, sqlinline.QInsertPaymentLog,
		entry.UserID,
		entry.Amount,
		string(entry.Disposition),
		entry.OrderReference,
		entry.ProviderOrderID,
		json.RawMessage(payload),
		entry.RemoteIP,
		entry.Country,
	)
	return err
}

func (s *PGStore) RecordReferral(ctx context.Context, userID, referrerID int64) (bool, error) {
	var linked int64
	err := s.sql.QueryRow(ctx, sqlinline.QInsertReferral, userID, referrerID).Scan(&linked)
	if infra.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) ReferralCount(ctx context.Context, referrerID int64) (int64, error) {
	var n int64
	if err := s.sql.QueryRow(ctx, sqlinline.QCountReferrals, referrerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PGStore) ReferrerOf(ctx context.Context, userID int64) (int64, bool, error) {
	var referrer int64
	err := s.sql.QueryRow(ctx, sqlinline.QSelectReferrer, userID).Scan(&referrer)
	if infra.IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return referrer, true, nil
}

// PaymentsByReference lists the most recent audit rows for an order reference.
func (s *PGStore) PaymentsByReference(ctx context.Context, reference string, limit int) ([]domain.PaymentLog, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectPaymentLogsByReference, reference, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.PaymentLog
	for rows.Next() {
		var (
			entry       domain.PaymentLog
			amount      *int64
			disposition string
		)
		if err := rows.Scan(&entry.UserID, &amount, &disposition, &entry.OrderReference, &entry.ProviderOrderID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if amount != nil {
			entry.Amount = *amount
		}
		entry.Disposition = domain.PaymentDisposition(disposition)
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var (
	_ domain.LedgerStore   = (*PGStore)(nil)
	_ domain.PaymentStore  = (*PGStore)(nil)
	_ domain.ReferralStore = (*PGStore)(nil)
)
