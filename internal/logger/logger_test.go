package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/examacademy/academy-server/internal/ctxutil"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"Valid debug level", "debug", slog.LevelDebug},
		{"Valid info level", "info", slog.LevelInfo},
		{"Valid warn level", "warn", slog.LevelWarn},
		{"Upper case warning", "WARNING", slog.LevelWarn},
		{"Valid error level", "error", slog.LevelError},
		{"Invalid level defaults to info", "invalid", slog.LevelInfo},
		{"Empty level defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseLevel(tt.level); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
			log := New(tt.level)
			if !log.Enabled(context.Background(), tt.want) || log.Enabled(context.Background(), tt.want-1) {
				t.Errorf("New(%q) should log from %v up", tt.level, tt.want)
			}
		})
	}
}

func TestNewWithWriter_RenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	log.Warn("slow query")

	entry := decodeLine(t, &buf)
	if entry["message"] != "slow query" {
		t.Errorf("message = %v, want %q", entry["message"], "slow query")
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want warning", entry["level"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
	if _, ok := entry["msg"]; ok {
		t.Error("raw msg key should be renamed")
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("error", &buf)
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below level, got %q", buf.String())
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf).
		WithModule("lookup").
		WithField("course_id", "cma-final-test5mP").
		WithFields(map[string]any{"strategy": "paper_number"}).
		WithError(errors.New("boom"))
	log.Debug("attempt 2")

	entry := decodeLine(t, &buf)
	want := map[string]any{
		"module":    "lookup",
		"course_id": "cma-final-test5mP",
		"strategy":  "paper_number",
		"error":     "boom",
		"message":   "attempt 2",
		"level":     "debug",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLogger_ContextValues(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	ctx := ctxutil.WithRequestID(context.Background(), "req-42")
	ctx = ctxutil.WithClientIP(ctx, "192.0.2.7")
	log.InfoContext(ctx, "lookup served")

	entry := decodeLine(t, &buf)
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
	if entry["client_ip"] != "192.0.2.7" {
		t.Errorf("client_ip = %v", entry["client_ip"])
	}
}

func TestLogger_ShutdownWithoutRemote(t *testing.T) {
	log := NewWithWriter("info", &bytes.Buffer{})
	if err := log.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
	var nilLogger *Logger
	if err := nilLogger.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown() = %v", err)
	}
}
