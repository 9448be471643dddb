package ledger

import (
	"context"
	"errors"
	"time"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/metrics"
)

// StaleReleaser releases holds nobody settled, e.g. after a crash mid-generation.
// PGStore and MemoryStore satisfy it.
type StaleReleaser interface {
	ReleaseStale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Hold, error)
}

type SweeperOptions struct {
	Store      StaleReleaser
	StaleAfter time.Duration
	Interval   time.Duration
	BatchSize  int
	Logger     *infra.Logger
	Metrics    *metrics.Metrics
}

// Sweeper periodically returns stale holds to their owners' available balance.
type Sweeper struct {
	store      StaleReleaser
	staleAfter time.Duration
	interval   time.Duration
	batch      int
	logger     *infra.Logger
	metrics    *metrics.Metrics
}

func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, errors.New("ledger: sweeper store is required")
	}
	if opts.StaleAfter <= 0 {
		return nil, errors.New("ledger: stale-after must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		store:      opts.Store,
		staleAfter: opts.StaleAfter,
		interval:   interval,
		batch:      batch,
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("ledger: sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce releases stale holds in batches until a short batch comes back.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		released, err := s.store.ReleaseStale(ctx, s.staleAfter, s.batch)
		if err != nil {
			return total, err
		}
		for _, h := range released {
			s.logger.Warn().
				Str("hold_id", h.ID).
				Int64("user_id", h.UserID).
				Int64("amount", h.Amount).
				Time("created_at", h.CreatedAt).
				Msg("ledger: released stale hold")
		}
		total += len(released)
		s.metrics.StaleHoldsReleased(len(released))
		if len(released) < s.batch {
			return total, nil
		}
	}
}
