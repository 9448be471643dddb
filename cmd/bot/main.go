package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"genbot/internal/domain"
	"genbot/internal/flow"
	httpapi "genbot/internal/http"
	"genbot/internal/http/handlers"
	"genbot/internal/infra"
	"genbot/internal/infra/geoip"
	"genbot/internal/ledger"
	"genbot/internal/lock"
	"genbot/internal/metrics"
	"genbot/internal/payments"
	"genbot/internal/providers/polza"
	"genbot/internal/session"
	"genbot/internal/storage"
	"genbot/internal/telegram"
)

// accountStore is what both ledger backends provide.
type accountStore interface {
	domain.LedgerStore
	domain.PaymentStore
	domain.ReferralStore
	ledger.StaleReleaser
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireBot(); err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.Default()
	checks := map[string]handlers.HealthCheck{}

	var store accountStore
	switch cfg.LedgerBackend {
	case infra.LedgerBackendMemory:
		logger.Warn().Msg("bot: in-memory ledger, balances are lost on restart")
		store = ledger.NewMemoryStore()
	default:
		if cfg.DBAutoMigrate {
			version, err := infra.Migrate(cfg.DatabaseURL, nil)
			if err != nil {
				logger.Fatal().Err(err).Msg("bot: migrations failed")
			}
			logger.Info().Uint("schema_version", version).Msg("bot: schema up to date")
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: failed to connect database")
		}
		defer pool.Close()
		store = ledger.NewPGStore(infra.NewConfiguredSQLRunner(pool, logger, cfg))
		checks["postgres"] = pool.Ping
	}

	var (
		sessions session.Store = session.NewMemoryStore(cfg.SessionIdleTTL)
		locker   lock.Locker   = lock.NewMemoryLocker()
	)
	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to connect redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = session.NewRedisStore(redisClient, cfg.SessionIdleTTL)
		locker = lock.NewRedisLocker(redisClient)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		logger.Warn().Msg("bot: REDIS_URL not set, sessions and generation locks are process-local")
	}

	book, err := ledger.New(ledger.Options{Store: store, Logger: &logger, Metrics: m})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to configure ledger")
	}

	generator, err := polza.NewClient(polza.Options{
		APIKey:  cfg.PolzaAPIKey,
		BaseURL: cfg.PolzaBaseURL,
		Logger:  &logger,
		Metrics: m,
		ImagePolicy: polza.Policy{
			Interval:        cfg.ImagePollInterval,
			MaxAttempts:     cfg.ImagePollAttempts,
			DownloadTimeout: cfg.ImageDownloadTimeout,
		},
		VideoPolicy: polza.Policy{
			Interval:        cfg.VideoPollInterval,
			MaxAttempts:     cfg.VideoPollAttempts,
			DownloadTimeout: cfg.VideoDownloadTimeout,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to configure polza client")
	}

	botAPI, err := telegram.NewBotAPI(cfg.BotToken, cfg.BotAPIEndpoint, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to connect telegram")
	}
	chat, err := telegram.NewClient(botAPI, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to configure telegram client")
	}

	flowOpts := flow.Options{
		Sessions:    sessions,
		Ledger:      book,
		Generator:   generator,
		Files:       chat,
		Messenger:   chat,
		Locker:      locker,
		LockTTL:     cfg.GenerationLock,
		Links:       payments.NewLinkBuilder(cfg.PaymentFormURL),
		Referrals:   store,
		BotUsername: botAPI.Self.UserName,
		Logger:      &logger,
	}
	if cfg.ArchivePath != "" {
		archivePath := cfg.ArchivePath
		if abs, err := filepath.Abs(archivePath); err == nil {
			archivePath = abs
		}
		archive, err := storage.NewFileStore(archivePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: failed to configure archive")
		}
		flowOpts.Archive = archive
	}
	conversation, err := flow.New(flowOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to configure conversation flow")
	}

	intake, err := payments.NewIntake(payments.Options{
		Store:     store,
		Verifier:  payments.NewVerifier(cfg.PaymentSecret),
		Notifier:  conversation,
		Referrals: store,
		Logger:    &logger,
		Metrics:   m,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to configure payment intake")
	}
	if cfg.PaymentSecret == "" {
		logger.Warn().Msg("bot: PAYMENT_SECRET not set, webhook signatures are not verified")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("bot: geoip disabled")
	}
	defer resolver.Close()

	router := httpapi.NewRouter(handlers.NewApp(intake, checks), httpapi.RouterOptions{
		Logger:          logger,
		CountryLookup:   resolver.Lookup(),
		RateLimitPerMin: cfg.RateLimitPerMin,
		MetricsToken:    cfg.MetricsToken,
	})
	server := infra.NewHTTPServer(cfg, router)

	poller, err := telegram.NewPoller(telegram.PollerOptions{
		API:         botAPI,
		Handler:     conversation,
		Logger:      &logger,
		PollTimeout: cfg.BotPollTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: failed to configure update poller")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("bot: http listening")
		return server.Run(gctx)
	})
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if cfg.LedgerBackend == infra.LedgerBackendMemory {
		// No separate worker can reach an in-process ledger.
		sweeper, err := ledger.NewSweeper(ledger.SweeperOptions{
			Store:      store,
			StaleAfter: cfg.HoldStaleAfter,
			Interval:   cfg.SweepInterval,
			Logger:     &logger,
			Metrics:    m,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: failed to configure hold sweeper")
		}
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("bot: stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("bot: stopped")
}
