// Package logging provides the slog.Logger factory used by all snapsync apps.
//
// Log format is controlled by the LOG_FORMAT environment variable:
//
//	LOG_FORMAT=json    structured JSON, suitable for log aggregators (default)
//	LOG_FORMAT=text    human-readable key=value pairs, for local development
//
// Log level is controlled by LOG_LEVEL (debug, info, warn, error; default info).
//
// Setup additionally fans records out to an append-mode log file, which is how
// pipeline runs keep a durable record of every stage transition.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options configures Setup. Empty fields fall back to LOG_FORMAT / LOG_LEVEL.
type Options struct {
	Level  string
	Format string
	// File is appended to when set. Parent directories are created.
	File string
}

// New returns a stdout logger configured from environment variables.
func New() *slog.Logger {
	return slog.New(newHandler(os.Stdout, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL")))
}

// Setup returns a logger writing to stdout and, when opts.File is set, to that
// file as well. The returned closer releases the file and is never nil.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	format := opts.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	if opts.File == "" {
		return slog.New(newHandler(os.Stdout, format, level)), nopCloser{}, nil
	}

	if dir := filepath.Dir(opts.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", opts.File, err)
	}
	return slog.New(newHandler(io.MultiWriter(os.Stdout, f), format, level)), f, nil
}

// ReadLog returns the full contents of a log file written by Setup.
func ReadLog(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read log file %s: %w", path, err)
	}
	return string(b), nil
}

func newHandler(w io.Writer, format, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	switch strings.ToLower(format) {
	case "text", "console":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
