package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"genbot/internal/domain"
	"genbot/internal/metrics"
)

func TestSweepOnceDrainsInBatches(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := store.Credit(ctx, 1, 10, "seed")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := store.CreateHold(ctx, domain.Hold{ID: fmt.Sprintf("h%d", i), UserID: 1, Amount: 1})
		require.NoError(t, err)
	}
	now = now.Add(time.Hour)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sweeper, err := NewSweeper(SweeperOptions{Store: store, StaleAfter: 30 * time.Minute, BatchSize: 2, Metrics: m})
	require.NoError(t, err)

	n, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	expected := `
# HELP genbot_stale_holds_released_total Holds released by the sweeper after exceeding the stale threshold.
# TYPE genbot_stale_holds_released_total counter
genbot_stale_holds_released_total 5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "genbot_stale_holds_released_total"))

	acct, err := store.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, acct.Held)
	require.Equal(t, int64(10), acct.Balance)

	n, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

type failingReleaser struct{}

func (failingReleaser) ReleaseStale(context.Context, time.Duration, int) ([]domain.Hold, error) {
	return nil, errors.New("db down")
}

func TestSweeperErrorsAndOptions(t *testing.T) {
	_, err := NewSweeper(SweeperOptions{StaleAfter: time.Minute})
	require.Error(t, err)
	_, err = NewSweeper(SweeperOptions{Store: failingReleaser{}})
	require.Error(t, err)

	sweeper, err := NewSweeper(SweeperOptions{Store: failingReleaser{}, StaleAfter: time.Minute, Interval: time.Millisecond})
	require.NoError(t, err)
	_, err = sweeper.SweepOnce(context.Background())
	require.ErrorContains(t, err, "db down")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sweeper.Run(ctx), context.DeadlineExceeded)
}
