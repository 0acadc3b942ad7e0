package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/nerrad567/storefront-telemetry/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		logger := New(config.LoggingConfig{Level: "info", Format: format, Output: "stderr"}, "1.0.0")
		if logger == nil {
			t.Fatalf("New(format=%q) returned nil", format)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"info+2", slog.LevelInfo + 2},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "2.3.4", &buf)

	logger.Info("reading accepted", "device_id", "TEMP_001")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["service"] != "storefront-telemetry" {
		t.Errorf("service = %v, want storefront-telemetry", entry["service"])
	}
	if entry["version"] != "2.3.4" {
		t.Errorf("version = %v, want 2.3.4", entry["version"])
	}
	if entry["device_id"] != "TEMP_001" {
		t.Errorf("device_id = %v, want TEMP_001", entry["device_id"])
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "dev", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written despite warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn record missing")
	}
}

func TestComponent_AddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "debug"}, "dev", &buf).Component("broadcast")

	logger.Debug("subscriber added")

	if !strings.Contains(buf.String(), `"component":"broadcast"`) {
		t.Errorf("component attribute missing: %s", buf.String())
	}
}

func TestSetLevel_SharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "dev", &buf)
	child := root.Component("ingestion")

	child.Info("before")
	root.SetLevel("debug")
	child.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("info record written at error level")
	}
	if !strings.Contains(out, "after") {
		t.Error("child did not pick up the new level")
	}
}

func TestWriterFor(t *testing.T) {
	if writerFor("discard") != io.Discard {
		t.Error("discard output should drop records")
	}
	if writerFor("stderr") != os.Stderr || writerFor("") != os.Stdout {
		t.Error("stdout/stderr selection wrong")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing to see")
}
