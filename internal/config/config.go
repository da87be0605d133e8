// Package config loads process configuration from the environment, with
// optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// DatabaseConfig points at the candle cache.
type DatabaseConfig struct {
	URL     string
	Enabled bool
}

// RedisConfig points at the optional progress event bus.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	Enabled       bool
}

// ExchangeConfig holds the exchange client settings. Keys stay empty for
// public market-data reads.
type ExchangeConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// BacktestDefaults seeds new run configurations.
type BacktestDefaults struct {
	InitialCapital    decimal.Decimal
	Currency          string
	CommissionPercent float64
	SlippagePercent   float64
	ProgressInterval  int
	ATRPeriod         int
}

// Config is the full process configuration.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Exchange ExchangeConfig
	Backtest BacktestDefaults

	// SyntheticSeed drives the fallback data generator.
	SyntheticSeed uint32
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			Enabled: os.Getenv("DATABASE_URL") != "",
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            parseIntEnv("REDIS_DB", 0),
			ChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "tidewave"),
			Enabled:       os.Getenv("REDIS_ENABLED") == "true",
		},
		Exchange: ExchangeConfig{
			APIKey:    os.Getenv("BINANCE_API_KEY"),
			APISecret: os.Getenv("BINANCE_API_SECRET"),
			Testnet:   os.Getenv("BINANCE_TESTNET") == "true",
		},
		Backtest: BacktestDefaults{
			InitialCapital:    decimal.NewFromFloat(parseFloatEnv("BACKTEST_INITIAL_CAPITAL", 10_000)),
			Currency:          getEnv("BACKTEST_CURRENCY", "USDT"),
			CommissionPercent: parseFloatEnv("BACKTEST_COMMISSION_PERCENT", 0.1),
			SlippagePercent:   parseFloatEnv("BACKTEST_SLIPPAGE_PERCENT", 0.05),
			ProgressInterval:  parseIntEnv("BACKTEST_PROGRESS_INTERVAL", 100),
			ATRPeriod:         parseIntEnv("BACKTEST_ATR_PERIOD", 14),
		},
		SyntheticSeed: uint32(parseIntEnv("SYNTHETIC_SEED", 42)),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Backtest.InitialCapital.IsPositive() {
		return fmt.Errorf("initial capital must be positive")
	}
	if c.Backtest.CommissionPercent < 0 || c.Backtest.SlippagePercent < 0 {
		return fmt.Errorf("commission and slippage must not be negative")
	}
	if c.Backtest.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable.
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseFloatEnv parses a float environment variable.
func parseFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
