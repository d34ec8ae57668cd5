package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected LogLevel
	}{
		{name: "Debug", input: "debug", expected: LevelDebug},
		{name: "Info", input: "info", expected: LevelInfo},
		{name: "Warn", input: "warn", expected: LevelWarn},
		{name: "Warning alias", input: "warning", expected: LevelWarn},
		{name: "Error", input: "error", expected: LevelError},
		{name: "Case insensitive", input: "DEBUG", expected: LevelDebug},
		{name: "Unknown defaults to info", input: "verbose", expected: LevelInfo},
		{name: "Empty defaults to info", input: "", expected: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be less than LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be less than LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be less than LevelError")
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestConfigureJSONFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "warn", Format: "json", Output: &buf})
	defer Configure(Options{Level: "info"})

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["level"] != "warn" || entry["message"] != "shown 2" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if GetLevel() != LevelWarn {
		t.Errorf("GetLevel() = %v, want warn", GetLevel())
	}
	if IsDebugEnabled() {
		t.Error("debug should be disabled at warn level")
	}
}

func TestWithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "debug", Format: "json", Output: &buf})
	defer Configure(Options{Level: "info"})

	With("fileId", 42).With("track", 3).Debug("extracting")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["fileId"] != float64(42) || entry["track"] != float64(3) {
		t.Errorf("fields missing from entry: %v", entry)
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "error", Format: "json", Output: &buf})
	defer Configure(Options{Level: "info"})

	Info("before")
	SetLevel(LevelInfo)
	Info("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("message below level was written")
	}
	if !strings.Contains(out, "after") {
		t.Error("message at new level was not written")
	}
}
