package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, LevelWarn)
	log.Debugf("hidden %d", 1)
	log.Infof("hidden %d", 2)
	log.Warnf("soft stop sent to %s", "woodcutting")
	log.Errorf("boom\n")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("lines below level leaked: %q", out)
	}
	if !strings.Contains(out, "WARN  soft stop sent to woodcutting") || !strings.Contains(out, "ERROR boom\n") {
		t.Fatalf("unexpected output: %q", out)
	}
	log.SetLevel(LevelDebug)
	log.Debugf("visible")
	if !strings.Contains(buf.String(), "DEBUG visible") {
		t.Fatalf("expected debug line after lowering level")
	}
}

func TestNewWritesUnderWardenDir(t *testing.T) {
	dir := t.TempDir()
	log, err := New(dir, LevelInfo)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Printf("hello")
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".warden", "logs", "warden.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "INFO  hello") {
		t.Fatalf("unexpected log contents %q", data)
	}
}

func TestNopAndNilAreSafe(t *testing.T) {
	Nop().Errorf("ignored")
	var log *Logger
	log.Warnf("ignored")
	if err := log.Close(); err != nil {
		t.Fatalf("close nil: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]Level{"debug": LevelDebug, "": LevelInfo, "WARN": LevelWarn, "error": LevelError} {
		got, err := ParseLevel(input)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
