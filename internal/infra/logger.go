package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger constructs a zerolog.Logger for the given environment. Development
// gets debug level and a console writer; everything else logs JSON at info.
func NewLogger(appEnv string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv)
}

func newLogger(out io.Writer, appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("env", appEnv).
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}

// NopLogger returns a logger that discards everything. Clients fall back to it
// when the caller does not inject one.
func NopLogger() *Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// Logger aliases the zerolog.Logger so callers outside the infra package can
// depend on the logging contract without importing the third-party module
// directly.
type Logger = zerolog.Logger
