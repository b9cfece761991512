package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, zapcore.DebugLevel)

	log.With("component", "importer").Info("scan finished",
		"session_id", "abc",
		"api_key", "rahma.s3cret",
		"db_dsn", "postgres://u:p@h/db",
		"duplicates", 3,
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["msg"] != "scan finished" || line["component"] != "importer" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["api_key"] != "[REDACTED]" || line["db_dsn"] != "[REDACTED]" {
		t.Fatalf("expected secrets to be redacted: %v", line)
	}
	if line["session_id"] != "abc" || line["duplicates"] != float64(3) {
		t.Fatalf("unexpected plain fields: %v", line)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, zapcore.WarnLevel)
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %s", buf.String())
	}
	log.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected warn to be written")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("development", "chatty"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
