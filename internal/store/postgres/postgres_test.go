package postgres

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestGooseLoggerFatalfLogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	gl := gooseLogger{log: zerolog.New(&buf)}

	gl.Fatalf("migration %d failed: %s", 3, "syntax error")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["level"] != "error" {
		t.Errorf("level = %q, want %q", entry["level"], "error")
	}
	if entry["message"] != "migration 3 failed: syntax error" {
		t.Errorf("message = %q, want %q", entry["message"], "migration 3 failed: syntax error")
	}
}

func TestGooseLoggerPrintfLogsAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	gl := gooseLogger{log: zerolog.New(&buf)}

	gl.Printf("applied migration %d", 9)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	if entry["level"] != "info" {
		t.Errorf("level = %q, want %q", entry["level"], "info")
	}
	if entry["message"] != "applied migration 9" {
		t.Errorf("message = %q, want %q", entry["message"], "applied migration 9")
	}
}
