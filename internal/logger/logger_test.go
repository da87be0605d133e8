package logger

import (
	"log/slog"
	"testing"
)

func TestNewWithNilConfigUsesDefaults(t *testing.T) {
	l := New(nil)
	if l == nil || l.Logger == nil {
		t.Fatal("New(nil) should return a usable logger")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg := ConfigFromEnv()
	if cfg.Level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Level)
	}
	if cfg.Format != "text" {
		t.Errorf("expected text format, got %s", cfg.Format)
	}
}

func TestWithErrorNilIsNoop(t *testing.T) {
	l := New(DefaultConfig())
	if l.WithError(nil) != l {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestSetDefaultIgnoresNil(t *testing.T) {
	before := Default()
	SetDefault(nil)
	if Default() != before {
		t.Error("SetDefault(nil) should keep the existing default")
	}
}
