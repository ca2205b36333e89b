package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (text, json).
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Output: os.Stderr}
}

var level = new(slog.LevelVar)

// New builds a logger from cfg. An empty level or format selects the
// default; unknown values are an error.
func New(cfg Config) (*slog.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactAttr(a)
		},
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text", "console":
		h = slog.NewTextHandler(out, opts)
	case "json":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}

	level.Set(lvl)
	return slog.New(h), nil
}

// ParseLevel converts a level name to slog.Level. "" means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

// SetLevel changes the level of every logger built by New.
func SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.Set(lvl)
	return nil
}

// Level returns the current level name.
func Level() string {
	return strings.ToLower(level.Level().String())
}
