package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	LedgerBackend string
	RedisURL      string

	DBMaxConns         int
	DBStatementTimeout time.Duration
	DBSlowQuery        time.Duration
	DBAutoMigrate      bool

	BotToken       string
	BotAPIEndpoint string
	BotPollTimeout int

	PolzaAPIKey          string
	PolzaBaseURL         string
	ImagePollInterval    time.Duration
	ImagePollAttempts    int
	ImageDownloadTimeout time.Duration
	VideoPollInterval    time.Duration
	VideoPollAttempts    int
	VideoDownloadTimeout time.Duration

	SessionIdleTTL time.Duration
	GenerationLock time.Duration
	ArchivePath    string
	ArchiveKeep    time.Duration

	PaymentFormURL string
	PaymentSecret  string
	GeoIPDBPath    string

	HoldStaleAfter time.Duration
	SweepInterval  time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	MetricsToken     string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LedgerBackend: strings.ToLower(getEnv("LEDGER_BACKEND", LedgerBackendPostgres)),
		RedisURL:      os.Getenv("REDIS_URL"),

		DBMaxConns:         getEnvInt("DB_MAX_CONNS", 10),
		DBStatementTimeout: getEnvDuration("DB_STATEMENT_TIMEOUT", 15*time.Second),
		DBSlowQuery:        getEnvDuration("DB_SLOW_QUERY", 500*time.Millisecond),
		DBAutoMigrate:      getEnvBool("DB_AUTO_MIGRATE", false),

		BotToken:       os.Getenv("BOT_TOKEN"),
		BotAPIEndpoint: os.Getenv("BOT_API_ENDPOINT"),
		BotPollTimeout: getEnvInt("BOT_POLL_TIMEOUT_SECONDS", 60),

		PolzaAPIKey:          os.Getenv("POLZA_API_KEY"),
		PolzaBaseURL:         getEnv("POLZA_BASE_URL", "https://api.polza.ai/api/v1"),
		ImagePollInterval:    getEnvDuration("IMAGE_POLL_INTERVAL", 4*time.Second),
		ImagePollAttempts:    getEnvInt("IMAGE_POLL_ATTEMPTS", 60),
		ImageDownloadTimeout: getEnvDuration("IMAGE_DOWNLOAD_TIMEOUT", 120*time.Second),
		VideoPollInterval:    getEnvDuration("VIDEO_POLL_INTERVAL", 5*time.Second),
		VideoPollAttempts:    getEnvInt("VIDEO_POLL_ATTEMPTS", 240),
		VideoDownloadTimeout: getEnvDuration("VIDEO_DOWNLOAD_TIMEOUT", 300*time.Second),

		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute),
		GenerationLock: getEnvDuration("GENERATION_LOCK_TTL", 30*time.Minute),
		ArchivePath:    os.Getenv("ARCHIVE_PATH"),
		ArchiveKeep:    getEnvDuration("ARCHIVE_RETENTION", 30*24*time.Hour),

		PaymentFormURL: getEnv("PAYMENT_FORM_URL", "https://ai-photo-nano.payform.ru"),
		PaymentSecret:  os.Getenv("PAYMENT_SECRET"),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		HoldStaleAfter: getEnvDuration("HOLD_STALE_AFTER", 45*time.Minute),
		SweepInterval:  getEnvDuration("HOLD_SWEEP_INTERVAL", time.Minute),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsToken:     os.Getenv("METRICS_TOKEN"),
	}

	switch cfg.LedgerBackend {
	case LedgerBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case LedgerBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	if cfg.DBMaxConns <= 0 {
		cfg.DBMaxConns = 10
	}
	if cfg.ImagePollAttempts <= 0 || cfg.VideoPollAttempts <= 0 {
		return nil, fmt.Errorf("poll attempts must be positive")
	}
	// A hold or lock that expires under a running job lets the sweeper release
	// a hold whose result is still on its way.
	window := cfg.GenerationWindow()
	if cfg.GenerationLock <= window {
		return nil, fmt.Errorf("GENERATION_LOCK_TTL %s must exceed the longest generation %s", cfg.GenerationLock, window)
	}
	if cfg.HoldStaleAfter <= window {
		return nil, fmt.Errorf("HOLD_STALE_AFTER %s must exceed the longest generation %s", cfg.HoldStaleAfter, window)
	}

	return cfg, nil
}

// GenerationWindow is the longest a single image or video job may run: every
// poll interval, one poll call of slack and the download.
func (c *Config) GenerationWindow() time.Duration {
	image := pollWindow(c.ImagePollInterval, c.ImagePollAttempts, c.ImageDownloadTimeout)
	video := pollWindow(c.VideoPollInterval, c.VideoPollAttempts, c.VideoDownloadTimeout)
	if video > image {
		return video
	}
	return image
}

func pollWindow(interval time.Duration, attempts int, download time.Duration) time.Duration {
	slack := interval
	if slack < time.Second {
		slack = time.Second
	}
	if slack > time.Minute {
		slack = time.Minute
	}
	return time.Duration(attempts)*interval + slack + download
}

// RequireBot validates the settings only the chat bot process needs.
func (c *Config) RequireBot() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if strings.TrimSpace(c.PolzaAPIKey) == "" {
		return fmt.Errorf("POLZA_API_KEY is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("4s", "2m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return time.Duration(i) * time.Second
	}
	return fallback
}
