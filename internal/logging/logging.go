// Package logging builds the process slog.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a text slog.Logger at the given level. When file is set, output
// is also appended to that file.
func New(level, file string) (*slog.Logger, error) {
	return newLogger(os.Stdout, level, file)
}

func newLogger(out io.Writer, level, file string) (*slog.Logger, error) {
	writers := []io.Writer{out}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler), nil
}

// ParseLevel maps debug|info|warn|error to a slog level. Unknown values are info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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

// ValidLevel reports whether value names a known level.
func ValidLevel(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
