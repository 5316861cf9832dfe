// Package logging builds the zerolog loggers used across the service.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a logger with the given level. Development mode writes
// human readable console output, anything else writes JSON lines.
func New(level, environment string) zerolog.Logger {
	var out io.Writer = os.Stderr
	if environment == "development" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}
	return NewWithOutput(level, out)
}

// NewWithOutput creates a logger writing to w.
func NewWithOutput(level string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewSilent creates a logger that discards all output.
func NewSilent() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Truncate shortens provider response bodies before they are logged.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
