package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"nonsense", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New(Options{Level: "warn", Console: zapcore.AddSync(&buf)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("visible", zap.String("path", "/tmp/x"))
	cleanup()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "/tmp/x") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestNewWithFile(t *testing.T) {
	var console bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "shred.log")

	logger, cleanup, err := New(Options{Level: "info", File: logFile, Console: zapcore.AddSync(&console)})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("file shredded", zap.String("path", "/data/a"), zap.Int("passes", 7))
	cleanup()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, data)
	}
	if entry["msg"] != "file shredded" || entry["path"] != "/data/a" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if console.Len() == 0 {
		t.Error("console core received nothing")
	}
}

func TestRotateLogsIfNeeded(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "shred.log")
	if err := os.WriteFile(logPath, []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(logPath, old, old); err != nil {
		t.Fatal(err)
	}

	// Stale rotated file that should be cleaned up
	stale := logPath + ".20000101-000000"
	if err := os.WriteFile(stale, []byte("stale\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	if err := rotateLogsIfNeeded(logPath, 5); err != nil {
		t.Fatalf("rotateLogsIfNeeded failed: %v", err)
	}

	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("current log should have been rotated away")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale rotated log should have been removed")
	}
}

func TestRotateLogsFresh(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "shred.log")
	if err := os.WriteFile(logPath, []byte("fresh\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := rotateLogsIfNeeded(logPath, 5); err != nil {
		t.Fatalf("rotateLogsIfNeeded failed: %v", err)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Error("fresh log should not be rotated")
	}
}
