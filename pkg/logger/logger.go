// Package logger configures the process-wide zerolog logger.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the behaviour of the constructed logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error" (case-insensitive).
	// Unknown values fall back to "info".
	Level string
	// Pretty enables the human-readable console writer instead of JSON lines.
	Pretty bool
}

// New builds a zerolog.Logger writing to stderr.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer = os.Stderr
	if cfg.Pretty {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(console).Level(level).With().Timestamp().Logger()
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
