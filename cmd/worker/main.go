package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"genbot/internal/infra"
	"genbot/internal/ledger"
	"genbot/internal/metrics"
	"genbot/internal/storage"
)

const archivePruneInterval = time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if cfg.LedgerBackend != infra.LedgerBackendPostgres {
		logger.Fatal().Str("backend", cfg.LedgerBackend).Msg("worker: the hold sweeper needs the postgres ledger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DBAutoMigrate {
		version, err := infra.Migrate(cfg.DatabaseURL, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: migrations failed")
		}
		logger.Info().Uint("schema_version", version).Msg("worker: schema up to date")
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	sweeper, err := ledger.NewSweeper(ledger.SweeperOptions{
		Store:      ledger.NewPGStore(infra.NewConfiguredSQLRunner(pool, logger, cfg)),
		StaleAfter: cfg.HoldStaleAfter,
		Interval:   cfg.SweepInterval,
		Logger:     &logger,
		Metrics:    metrics.Default(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure sweeper")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })

	if cfg.ArchivePath != "" {
		archivePath := cfg.ArchivePath
		if abs, err := filepath.Abs(archivePath); err == nil {
			archivePath = abs
		}
		archive, err := storage.NewFileStore(archivePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: failed to configure archive")
		}
		g.Go(func() error { return pruneArchive(gctx, archive, cfg.ArchiveKeep, logger) })
	}

	logger.Info().
		Dur("stale_after", cfg.HoldStaleAfter).
		Dur("interval", cfg.SweepInterval).
		Msg("worker: started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func pruneArchive(ctx context.Context, archive *storage.FileStore, retention time.Duration, logger infra.Logger) error {
	ticker := time.NewTicker(archivePruneInterval)
	defer ticker.Stop()
	for {
		removed, err := archive.Prune(ctx, retention)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			logger.Error().Err(err).Msg("worker: archive prune failed")
		case removed > 0:
			logger.Info().Int("removed", removed).Msg("worker: archive pruned")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
