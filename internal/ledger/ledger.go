package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/metrics"
)

// Ledger is the single authority over user balances. Generations never debit
// directly: they Reserve a hold and later Settle or Release it.
type Ledger struct {
	store   domain.LedgerStore
	logger  *infra.Logger
	metrics *metrics.Metrics
}

type Options struct {
	Store   domain.LedgerStore
	Logger  *infra.Logger
	Metrics *metrics.Metrics
}

func New(opts Options) (*Ledger, error) {
	if opts.Store == nil {
		return nil, errors.New("ledger: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Ledger{store: opts.Store, logger: logger, metrics: opts.Metrics}, nil
}

// BalanceOf returns the user's balance. Unknown users have a zero balance.
func (l *Ledger) BalanceOf(ctx context.Context, userID int64) (int64, error) {
	acct, err := l.account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Available returns the balance minus credits held by in-flight generations.
func (l *Ledger) Available(ctx context.Context, userID int64) (int64, error) {
	acct, err := l.account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return acct.Available(), nil
}

// IsAffordable reports whether the available balance covers cost.
func (l *Ledger) IsAffordable(ctx context.Context, userID, cost int64) (bool, error) {
	if cost <= 0 {
		return false, domain.ErrInvalidAmount
	}
	available, err := l.Available(ctx, userID)
	if err != nil {
		return false, err
	}
	return available >= cost, nil
}

func (l *Ledger) Credit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	balance, err := l.store.Credit(ctx, userID, amount, strings.TrimSpace(reason))
	l.metrics.LedgerOp("credit", err)
	if err != nil {
		return 0, fmt.Errorf("ledger: credit: %w", err)
	}
	l.logger.Info().Int64("user_id", userID).Int64("amount", amount).Int64("balance", balance).Str("reason", reason).Msg("ledger: credited")
	return balance, nil
}

// Debit removes amount from the available balance or fails with
// domain.ErrInsufficientBalance, leaving the account untouched.
func (l *Ledger) Debit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	balance, err := l.store.Debit(ctx, userID, amount, strings.TrimSpace(reason))
	l.metrics.LedgerOp("debit", err)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return 0, err
		}
		return 0, fmt.Errorf("ledger: debit: %w", err)
	}
	l.logger.Info().Int64("user_id", userID).Int64("amount", amount).Int64("balance", balance).Str("reason", reason).Msg("ledger: debited")
	return balance, nil
}

// Reserve holds cost credits for one generation attempt.
func (l *Ledger) Reserve(ctx context.Context, userID, cost int64, modelKey string) (domain.Hold, error) {
	if cost <= 0 {
		return domain.Hold{}, domain.ErrInvalidAmount
	}
	hold, err := l.store.CreateHold(ctx, domain.Hold{
		ID:       uuid.NewString(),
		UserID:   userID,
		Amount:   cost,
		ModelKey: modelKey,
		Status:   domain.HoldStatusHeld,
	})
	l.metrics.LedgerOp("reserve", err)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return domain.Hold{}, err
		}
		return domain.Hold{}, fmt.Errorf("ledger: reserve: %w", err)
	}
	l.logger.Debug().Int64("user_id", userID).Str("hold_id", hold.ID).Int64("amount", cost).Str("model", modelKey).Msg("ledger: hold reserved")
	return hold, nil
}

// Settle captures a hold and returns the new balance. A hold can be settled
// or released once; later calls fail with domain.ErrHoldClosed.
func (l *Ledger) Settle(ctx context.Context, hold domain.Hold) (int64, error) {
	balance, err := l.store.CaptureHold(ctx, hold.ID)
	l.metrics.LedgerOp("settle", err)
	if err != nil {
		if errors.Is(err, domain.ErrHoldClosed) {
			return 0, err
		}
		return 0, fmt.Errorf("ledger: settle: %w", err)
	}
	l.logger.Info().Int64("user_id", hold.UserID).Str("hold_id", hold.ID).Int64("amount", hold.Amount).Int64("balance", balance).Msg("ledger: hold captured")
	return balance, nil
}

// Release returns the held credits to the available balance.
func (l *Ledger) Release(ctx context.Context, hold domain.Hold) error {
	err := l.store.ReleaseHold(ctx, hold.ID)
	l.metrics.LedgerOp("release", err)
	if err != nil {
		if errors.Is(err, domain.ErrHoldClosed) {
			return err
		}
		return fmt.Errorf("ledger: release: %w", err)
	}
	l.logger.Debug().Int64("user_id", hold.UserID).Str("hold_id", hold.ID).Msg("ledger: hold released")
	return nil
}

func (l *Ledger) account(ctx context.Context, userID int64) (domain.Account, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Account{UserID: userID}, nil
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("ledger: load account: %w", err)
	}
	return acct, nil
}
