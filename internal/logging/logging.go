// Package logging configures the engine's zerolog logger from the
// LogLevel/LogFormat settings config.Config already carries, in the style
// of goresearch's cmd/goresearch/main.go setup.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/config"
)

// New builds a zerolog.Logger honoring cfg.LogLevel and cfg.LogFormat.
// LogFormat "json" writes structured lines straight to stderr; anything
// else (including the default "console") writes zerolog's human-readable
// ConsoleWriter.
func New(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = os.Stderr
	if cfg.LogFormat != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(w).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
