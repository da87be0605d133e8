// Package engine orchestrates one backtest run: it clips the candle range,
// drives the executor and simulator candle by candle, samples the equity
// curve, reports progress, and assembles the final result.
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/metrics"
	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/simulator"
)

// Status of a backtest run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Data sources a run can draw candles from.
const (
	DataSourceLocal    = "local"
	DataSourceExchange = "exchange"
)

// Config is the account and run configuration of one backtest.
type Config struct {
	StartDate ohlcv.TimeMs `json:"startDate"`
	EndDate   ohlcv.TimeMs `json:"endDate"`

	InitialCapital    decimal.Decimal `json:"initialCapital"`
	Currency          string          `json:"currency"`
	CommissionPercent float64         `json:"commissionPercent"`
	SlippagePercent   float64         `json:"slippagePercent"`
	FillModel         string          `json:"fillModel"`
	DataSource        string          `json:"dataSource"`

	// ATRPeriod drives the ATR series used for atr_multiple exits.
	ATRPeriod int `json:"atrPeriod,omitempty"`

	// ProgressInterval is the candle cadence of progress events.
	ProgressInterval int `json:"progressInterval,omitempty"`
}

// DefaultConfig returns a run configuration with common account settings.
func DefaultConfig() Config {
	return Config{
		InitialCapital:    decimal.NewFromInt(10_000),
		Currency:          "USDT",
		CommissionPercent: 0.1,
		SlippagePercent:   0.05,
		FillModel:         simulator.FillRealistic,
		DataSource:        DataSourceLocal,
		ATRPeriod:         14,
		ProgressInterval:  100,
	}
}

// ProgressEvent is emitted while a run is processing candles.
type ProgressEvent struct {
	BacktestID       string        `json:"backtestId"`
	Progress         float64       `json:"progress"` // percent in [0, 100]
	ProcessedCandles int           `json:"processedCandles"`
	TotalCandles     int           `json:"totalCandles"`
	CurrentDate      ohlcv.TimeMs  `json:"currentDate,omitempty"`
	ETA              time.Duration `json:"eta,omitempty"`
}

// Result is the complete outcome of one run. Metrics is nil unless the run
// completed; Error is set for failed and cancelled runs.
type Result struct {
	ID               string                `json:"id"`
	StrategyID       string                `json:"strategyId"`
	StrategyVersion  string                `json:"strategyVersion"`
	Config           Config                `json:"config"`
	Status           Status                `json:"status"`
	Trades           []simulator.Trade     `json:"trades"`
	EquityCurve      []metrics.EquityPoint `json:"equityCurve"`
	Metrics          *metrics.Metrics      `json:"metrics,omitempty"`
	StartedAt        time.Time             `json:"startedAt"`
	CompletedAt      time.Time             `json:"completedAt"`
	Error            string                `json:"error,omitempty"`
	TotalCandles     int                   `json:"totalCandles"`
	ProcessedCandles int                   `json:"processedCandles"`
}
