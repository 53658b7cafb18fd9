// Package logging builds the zerolog loggers used by the engine and CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration options.
type Config struct {
	// Format is "json" or "console". Empty means json.
	Format string
	// Level is the minimum level: "debug", "info", "warn", "error" or
	// "disabled". Empty means info.
	Level string
	// Output is where records are written. Defaults to os.Stderr so that
	// result output on stdout stays clean.
	Output io.Writer
}

// DefaultConfig returns json logging at info level on stderr.
func DefaultConfig() Config {
	return Config{Format: "json", Level: "info", Output: os.Stderr}
}

// New creates a zerolog logger from cfg.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Nop returns a logger that discards everything. It is the engine default.
func Nop() zerolog.Logger { return zerolog.Nop() }

// ParseLevel converts a level name to a zerolog.Level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}
