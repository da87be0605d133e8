package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if !cfg.Backtest.InitialCapital.Equal(decimal.NewFromInt(10_000)) {
		t.Errorf("default capital should be 10000, got %s", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.ProgressInterval != 100 {
		t.Errorf("default progress interval should be 100, got %d", cfg.Backtest.ProgressInterval)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("default redis addr wrong: %s", cfg.Redis.Addr)
	}
	if cfg.Database.Enabled {
		t.Error("database should be disabled without DATABASE_URL")
	}
	if cfg.SyntheticSeed != 42 {
		t.Errorf("default synthetic seed should be 42, got %d", cfg.SyntheticSeed)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://cache:5432/candles")
	t.Setenv("BACKTEST_INITIAL_CAPITAL", "25000")
	t.Setenv("BACKTEST_COMMISSION_PERCENT", "0.2")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.Database.Enabled || cfg.Database.URL == "" {
		t.Error("database should be enabled with DATABASE_URL set")
	}
	if !cfg.Backtest.InitialCapital.Equal(decimal.NewFromInt(25_000)) {
		t.Errorf("capital override wrong: %s", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.CommissionPercent != 0.2 {
		t.Errorf("commission override wrong: %v", cfg.Backtest.CommissionPercent)
	}
	if !cfg.Redis.Enabled {
		t.Error("redis should be enabled")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("BACKTEST_INITIAL_CAPITAL", "-5")
	if _, err := Load(); err == nil {
		t.Error("negative capital should fail validation")
	}
}
