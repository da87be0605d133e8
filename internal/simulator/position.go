// Package simulator owns portfolio and position state during a backtest:
// order fills with slippage and commission, stop-loss / take-profit /
// trailing-stop checks, risk-based sizing and the trade log.
package simulator

import (
	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// Side of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Exit reasons recorded on trades.
const (
	ReasonStopLoss     = "stop_loss"
	ReasonTakeProfit   = "take_profit"
	ReasonTrailingStop = "trailing_stop"
	ReasonSignal       = "signal"
	ReasonManual       = "manual"
	ReasonTimeout      = "timeout"
)

// TrailingState is the trailing-stop state machine for one position. It
// activates once profit since entry reaches ActivationPercent; the stop then
// follows the peak at TrailPercent distance and never moves against the
// position nor past breakeven.
type TrailingState struct {
	ActivationPercent decimal.Decimal
	TrailPercent      decimal.Decimal
	Activated         bool
	PeakPrice         decimal.Decimal
	Stop              decimal.Decimal
}

// Position is one open position.
type Position struct {
	ID         string
	Symbol     string
	Side       Side
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	EntryTime  ohlcv.TimeMs

	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	Trailing   *TrailingState

	// ExpiresAt closes the position by timeout once a candle reaches it.
	// Zero means no timeout.
	ExpiresAt ohlcv.TimeMs

	UnrealizedPnL decimal.Decimal

	// Commission already charged on the entry fill; folded into the trade's
	// total commission at close.
	entryCommission decimal.Decimal
}

// Trade is one closed round trip.
type Trade struct {
	ID              string
	Symbol          string
	Side            Side
	EntryPrice      decimal.Decimal
	ExitPrice       decimal.Decimal
	Size            decimal.Decimal
	EntryTime       ohlcv.TimeMs
	ExitTime        ohlcv.TimeMs
	GrossPnL        decimal.Decimal
	GrossPnLPercent decimal.Decimal
	Commission      decimal.Decimal
	NetPnL          decimal.Decimal
	ExitReason      string
	HoldingTimeMs   int64
}
