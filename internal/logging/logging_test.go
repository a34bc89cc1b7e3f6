package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestDiscardDropsEverything(t *testing.T) {
	logger := Discard()
	// Must not panic and must not be enabled at any level.
	logger.Info("hello", "k", "v")
	logger.Error("boom")
	if logger.Enabled(t.Context(), slog.LevelError) {
		t.Fatal("discard logger reports enabled")
	}
}

func TestDefaultNilYieldsDiscard(t *testing.T) {
	logger := Default(nil)
	if logger == nil {
		t.Fatal("Default(nil) returned nil")
	}
	if logger.Enabled(t.Context(), slog.LevelError) {
		t.Fatal("Default(nil) logger reports enabled")
	}
}

func TestDefaultPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logger := Default(base)
	if logger != base {
		t.Fatal("Default did not return the provided logger")
	}
	logger.Info("scoped message", "component", "test")
	if !strings.Contains(buf.String(), "scoped message") {
		t.Fatalf("expected log output, got %q", buf.String())
	}
}
