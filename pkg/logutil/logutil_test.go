package logutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	log "github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"":        log.InfoLevel,
		"info":    log.InfoLevel,
		" DEBUG ": log.DebugLevel,
		"trace":   log.DebugLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestConfigureJSONFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(nil)
		_ = Configure("info", "text")
	})
	if err := Configure("warn", "json"); err != nil {
		t.Fatal(err)
	}

	log.Info("dropped")
	log.Warn("kept", "project", "demo")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line is not json: %v", err)
	}
	if rec["msg"] != "kept" || rec["project"] != "demo" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	if err := Configure("info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
