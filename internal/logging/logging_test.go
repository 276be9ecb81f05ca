package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsdeck/console/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) should fail")
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsdeck.log")
	logger, closer, err := New(config.LogConfig{Level: "info", File: path}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("channel open", "host", "10.0.0.5:9000")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %q", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "channel open" || rec["host"] != "10.0.0.5:9000" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewInteractiveDiscards(t *testing.T) {
	logger, _, err := New(config.LogConfig{Level: "debug"}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Enabled(t.Context(), slog.LevelError) {
		t.Error("interactive logger without a file should discard everything")
	}
}

func TestNewHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(&buf, true, nil)).Info("hi")
	if strings.HasPrefix(buf.String(), "{") {
		t.Errorf("tty handler wrote JSON: %q", buf.String())
	}
	buf.Reset()
	slog.New(newHandler(&buf, false, nil)).Info("hi")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("pipe handler wrote text: %q", buf.String())
	}
}
