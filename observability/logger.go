// Package observability provides the logger and Prometheus metrics shared
// by the server, the scheduler and the admin CLI.
package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. JSON goes to stderr; env
// "development" switches to a human-readable console writer. Unknown
// levels fall back to info.
func NewLogger(level, env string) zerolog.Logger {
	return newLogger(os.Stderr, level, env)
}

func newLogger(out io.Writer, level, env string) zerolog.Logger {
	// Cloud Logging parses "severity".
	zerolog.LevelFieldName = "severity"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out}
	}

	return zerolog.New(out).With().Timestamp().Str("service", "club-dues").Logger().Level(lvl)
}
