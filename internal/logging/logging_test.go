package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rss7.log")
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "info", path)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("hello", "feed", "https://example.com")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line written at info level")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(buf.String(), "hello") {
		t.Errorf("log line missing: stdout=%q file=%q", buf.String(), data)
	}
}

func TestNewBadFile(t *testing.T) {
	if _, err := New("info", filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}
