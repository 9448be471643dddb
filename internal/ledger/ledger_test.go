package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genbot/internal/domain"
)

func newTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	l, err := New(Options{Store: store})
	require.NoError(t, err)
	return l, store
}

func TestBalanceOfUnknownUserIsZero(t *testing.T) {
	l, _ := newTestLedger(t)
	balance, err := l.BalanceOf(context.Background(), 42)
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestIsAffordable(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, 1, 5, "seed")
	require.NoError(t, err)

	ok, err := l.IsAffordable(ctx, 1, 5)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.IsAffordable(ctx, 1, 6)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = l.IsAffordable(ctx, 1, 0)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCreditIsAdditive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, 7, 10, "a")
	require.NoError(t, err)
	balance, err := l.Credit(ctx, 7, 25, "b")
	require.NoError(t, err)
	require.Equal(t, int64(35), balance)

	_, err = l.Credit(ctx, 7, -1, "bad")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDebitRefusesToGoNegative(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, 3, 2, "seed")
	require.NoError(t, err)

	_, err = l.Debit(ctx, 3, 5, "too much")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	balance, err := l.BalanceOf(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(2), balance)

	balance, err = l.Debit(ctx, 3, 2, "exact")
	require.NoError(t, err)
	require.Zero(t, balance)
	require.Len(t, store.Entries(), 2)
}

func TestReserveSettleCapturesOnce(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, 9, 10, "seed")
	require.NoError(t, err)

	hold, err := l.Reserve(ctx, 9, CostFor("nanabanana_pro"), "nanabanana_pro")
	require.NoError(t, err)
	require.Equal(t, int64(5), hold.Amount)

	balance, err := l.BalanceOf(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, int64(10), balance, "reserve must not change the balance")
	available, err := l.Available(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, int64(5), available)

	balance, err = l.Settle(ctx, hold)
	require.NoError(t, err)
	require.Equal(t, int64(5), balance)

	_, err = l.Settle(ctx, hold)
	require.ErrorIs(t, err, domain.ErrHoldClosed)
	require.ErrorIs(t, l.Release(ctx, hold), domain.ErrHoldClosed)

	var captures int
	for _, e := range store.Entries() {
		if e.Type == domain.EntryCapture {
			captures++
		}
	}
	require.Equal(t, 1, captures)
}

func TestReserveReleasePreservesBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, 4, 3, "seed")
	require.NoError(t, err)

	hold, err := l.Reserve(ctx, 4, 2, "seadream")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, hold))

	balance, err := l.BalanceOf(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, int64(3), balance)
	available, err := l.Available(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, int64(3), available)
}

func TestReserveInsufficient(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, 5, 1, "seed")
	require.NoError(t, err)

	_, err = l.Reserve(ctx, 5, 5, "nanabanana_pro")
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Credit(ctx, 11, 5, "seed")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hold, err := l.Reserve(ctx, 11, 1, "nanabanana")
			if err != nil {
				return
			}
			granted.Add(1)
			_, _ = l.Settle(ctx, hold)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(5), granted.Load())
	balance, err := l.BalanceOf(ctx, 11)
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestMemoryStoreReleaseStale(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := store.Credit(ctx, 1, 10, "seed")
	require.NoError(t, err)
	_, err = store.CreateHold(ctx, domain.Hold{ID: "old", UserID: 1, Amount: 3})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = store.CreateHold(ctx, domain.Hold{ID: "fresh", UserID: 1, Amount: 2})
	require.NoError(t, err)

	released, err := store.ReleaseStale(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, released, 1)
	require.Equal(t, "old", released[0].ID)

	acct, err := store.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), acct.Held)
	require.Equal(t, int64(10), acct.Balance)
}

func TestCreditOnceRejectsReplay(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	balance, err := store.CreditOnce(ctx, "order-1", 8, 25)
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)

	_, err = store.CreditOnce(ctx, "order-1", 8, 25)
	require.ErrorIs(t, err, domain.ErrDuplicateOperation)

	acct, err := store.GetAccount(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, int64(25), acct.Balance)
}

func TestMemoryStoreReferralsOnFirstContactOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	linked, err := store.RecordReferral(ctx, 21, 20)
	require.NoError(t, err)
	require.True(t, linked)

	linked, err = store.RecordReferral(ctx, 21, 30)
	require.NoError(t, err)
	require.False(t, linked, "a second referrer must not replace the first")

	linked, err = store.RecordReferral(ctx, 20, 20)
	require.NoError(t, err)
	require.False(t, linked, "self referral")

	_, err = store.Credit(ctx, 22, 5, "test")
	require.NoError(t, err)
	linked, err = store.RecordReferral(ctx, 22, 20)
	require.NoError(t, err)
	require.False(t, linked, "existing customers cannot be referred")

	n, err := store.ReferralCount(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	ref, ok, err := store.ReferrerOf(ctx, 21)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(20), ref)

	_, ok, err = store.ReferrerOf(ctx, 22)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCostFor(t *testing.T) {
	require.Equal(t, int64(1), CostFor("nanabanana"))
	require.Equal(t, int64(5), CostFor("nanabanana_pro"))
	require.Equal(t, int64(2), CostFor("seadream"))
	require.Equal(t, int64(5), CostFor("kling_5"))
	require.Equal(t, int64(10), CostFor("kling_10"))
	require.Equal(t, DefaultCost, CostFor("unknown"))
}
