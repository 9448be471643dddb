package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is what stores need to run queries; SQLRunner and test doubles
// implement it.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// defaultSlowQuery is used when SlowQuery is zero.
const defaultSlowQuery = 500 * time.Millisecond

// SQLRunner executes marker-tagged inline queries against the pool. Logs carry
// the marker, never the statement text or its arguments.
type SQLRunner struct {
	Pool      *pgxpool.Pool
	Logger    zerolog.Logger
	SlowQuery time.Duration
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger, SlowQuery: defaultSlowQuery}
}

// NewConfiguredSQLRunner applies the slow query threshold from cfg.
func NewConfiguredSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger, cfg *Config) *SQLRunner {
	r := NewSQLRunner(pool, logger)
	if cfg != nil && cfg.DBSlowQuery > 0 {
		r.SlowQuery = cfg.DBSlowQuery
	}
	return r
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.Pool.Exec(ctx, body, args...)
	r.observe(marker, "exec", start, err).Int64("rows", tag.RowsAffected()).Send()
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{row: r.Pool.QueryRow(ctx, body, args...), runner: r, marker: marker, start: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.Pool.Query(ctx, body, args...)
	if err != nil {
		r.observe(marker, "query", start, err).Send()
		return nil, err
	}
	return &loggingRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

// observe picks the log level for a finished call: error for failures, warn
// for slow calls, debug otherwise. An empty result set is not a failure.
func (r *SQLRunner) observe(marker, op string, start time.Time, err error) *zerolog.Event {
	elapsed := time.Since(start)
	slow := r.SlowQuery
	if slow <= 0 {
		slow = defaultSlowQuery
	}
	var evt *zerolog.Event
	switch {
	case err != nil && !IsNoRows(err):
		evt = r.Logger.Error().Err(err)
	case elapsed >= slow:
		evt = r.Logger.Warn().Bool("slow", true)
	default:
		evt = r.Logger.Debug()
	}
	return evt.Str("sql", marker).Str("op", op).Dur("elapsed", elapsed)
}

// IsNoRows reports whether err signals an empty result set.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

type loggingRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.observe(l.marker, "query_row", l.start, err).Bool("no_rows", IsNoRows(err)).Send()
	return err
}

type loggingRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
	count  int
}

func (l *loggingRows) Next() bool {
	ok := l.Rows.Next()
	if ok {
		l.count++
	}
	return ok
}

func (l *loggingRows) Close() {
	l.Rows.Close()
	l.runner.observe(l.marker, "query", l.start, l.Rows.Err()).Int("rows", l.count).Send()
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(...any) error {
	return e.err
}

// extractMarker splits a query into its "--sql <uuid>" marker and the statement.
func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", errors.New("empty query")
	}
	first, rest, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	body := strings.TrimSpace(rest)
	if body == "" {
		return "", "", errors.New("sql statement missing after marker")
	}
	return strings.TrimPrefix(first, "--sql "), body, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
