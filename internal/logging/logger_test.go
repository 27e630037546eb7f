package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatsyncd.log")

	logger, err := New(path, "debug", "work")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line %q is not JSON: %v", line, err)
	}
	if entry["profile"] != "work" || entry["msg"] != "hello" || entry["ts"] == nil {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsyncd.log")

	logger, err := New(path, "warn", "main")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("quiet")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("info entry written at warn level: %s", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "x.log"), "loud", "main"); err == nil {
		t.Error("expected error for unknown level")
	}
}
