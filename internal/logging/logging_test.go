package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "DEBUG", Format: "json"})

	logger.Debug().Str("domain", "yahoo.com").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line should be JSON: %v (%s)", err, buf.String())
	}
	if entry["level"] != "debug" || entry["domain"] != "yahoo.com" || entry["message"] != "hello" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("entry should carry a timestamp")
	}
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Level: "nonsense"})

	logger.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %s", buf.String())
	}

	logger.Info().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatal("info should be written")
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, Config{Format: "console"})

	logger.Info().Msg("pretty")
	if json.Valid(buf.Bytes()) {
		t.Fatal("console format should not emit JSON")
	}
	if !strings.Contains(buf.String(), "pretty") {
		t.Fatal("message missing from console output")
	}
}
