// Package logging tests for the structured logger.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Logger{out: buf, minLevel: level}, buf
}

func TestLoggerWritesJSON(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.Info("queue drained", map[string]interface{}{"synced": 3})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	if entry.Level != "INFO" {
		t.Errorf("level = %s, want INFO", entry.Level)
	}
	if entry.Message != "queue drained" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Context["synced"].(float64) != 3 {
		t.Errorf("context synced = %v, want 3", entry.Context["synced"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	l, buf := newTestLogger(LevelWarn)

	l.Debug("hidden")
	l.Info("also hidden")
	l.Warn("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "visible") {
		t.Errorf("unexpected line: %s", lines[0])
	}
}

func TestLoggerErrorField(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.Error("remote call failed", errors.New("connection refused"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Error != "connection refused" {
		t.Errorf("error field = %q", entry.Error)
	}
}

func TestWithComponent(t *testing.T) {
	l, buf := newTestLogger(LevelDebug)

	l.WithComponent("engine").Info("pass started")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Component != "engine" {
		t.Errorf("component = %q, want engine", entry.Component)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"error":   LevelError,
		"unknown": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
