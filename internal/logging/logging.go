// Package logging constructs the application's zerolog loggers.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger with the given level and format ("console" or
// "json"). Unknown levels fall back to info rather than failing startup.
func New(level, format string, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = out
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component derives a logger tagged with a component name, so every line
// states which subsystem emitted it.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
