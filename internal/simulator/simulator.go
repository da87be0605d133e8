package simulator

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/logger"
	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/strategy"
	"github.com/tidewave/tidewave/pkg/utils"
)

// Fill models. Only realistic (one slippage tick at the close) is normative;
// the others are reserved.
const (
	FillOptimistic  = "optimistic"
	FillPessimistic = "pessimistic"
	FillRealistic   = "realistic"
)

// Config holds the account parameters of one simulation.
type Config struct {
	InitialCapital    decimal.Decimal
	CommissionPercent decimal.Decimal // of notional, per fill
	SlippagePercent   decimal.Decimal // of price, per fill
	FillModel         string
}

// DefaultConfig returns a simulation account with common retail parameters.
func DefaultConfig() Config {
	return Config{
		InitialCapital:    decimal.NewFromInt(10_000),
		CommissionPercent: decimal.NewFromFloat(0.1),
		SlippagePercent:   decimal.NewFromFloat(0.05),
		FillModel:         FillRealistic,
	}
}

// OpenRequest carries everything needed to open a position off a signal
// candle. ATR is consumed by atr_multiple exits and may be NaN when the
// strategy does not use them.
type OpenRequest struct {
	Symbol           string
	Side             Side
	StopLoss         *strategy.StopLossConfig
	TakeProfit       *strategy.TakeProfitConfig
	Trailing         *strategy.TrailingStopConfig
	Timeout          *strategy.TimeoutConfig
	RiskPercent      float64
	MaxOpenPositions int
	ATR              float64
}

// Simulator executes fills and tracks positions deterministically.
type Simulator struct {
	config    Config
	portfolio *Portfolio
	positions []*Position // in open order
	trades    []Trade
	log       *logger.Logger
}

// New creates a simulator with a fresh portfolio.
func New(config Config, log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.Default()
	}
	return &Simulator{
		config:    config,
		portfolio: NewPortfolio(config.InitialCapital),
		log:       log.Component("simulator"),
	}
}

// Reset discards all state for a new run.
func (s *Simulator) Reset() {
	s.portfolio = NewPortfolio(s.config.InitialCapital)
	s.positions = nil
	s.trades = nil
}

var hundred = decimal.NewFromInt(100)

// pctOf returns value * pct / 100.
func pctOf(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Div(hundred)
}

// slip applies one slippage tick against the trader: buys fill higher,
// sells fill lower.
func (s *Simulator) slip(price decimal.Decimal, buying bool) decimal.Decimal {
	adj := pctOf(price, s.config.SlippagePercent)
	if buying {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

// OpenPosition fills an entry at the candle close. It returns nil when the
// position cannot be opened (limits, sizing, capital).
func (s *Simulator) OpenPosition(req OpenRequest, candle ohlcv.Candle) *Position {
	if req.MaxOpenPositions > 0 && len(s.positions) >= req.MaxOpenPositions {
		return nil
	}
	if req.RiskPercent <= 0 {
		return nil
	}

	entry := s.slip(decimal.NewFromFloat(candle.Close), req.Side == SideLong)

	stopLoss := s.stopLossFor(req, entry)
	if stopLoss.Valid {
		wrongSide := stopLoss.Decimal.GreaterThanOrEqual(entry)
		if req.Side == SideShort {
			wrongSide = stopLoss.Decimal.LessThanOrEqual(entry)
		}
		if wrongSide {
			s.log.Debug("Rejecting entry, stop level on the wrong side",
				"symbol", req.Symbol, "entry", entry.String(), "stop", stopLoss.Decimal.String())
			return nil
		}
	}
	takeProfit := s.takeProfitFor(req, entry, stopLoss)

	// Risk-based sizing off the stop distance; a 2% nominal risk stands in
	// when the strategy runs without a stop.
	var riskPerUnit decimal.Decimal
	if stopLoss.Valid {
		riskPerUnit = entry.Sub(stopLoss.Decimal).Abs()
	} else {
		riskPerUnit = pctOf(entry, decimal.NewFromInt(2))
	}
	if riskPerUnit.IsZero() {
		return nil
	}

	riskAmount := pctOf(s.portfolio.CurrentCapital, decimal.NewFromFloat(req.RiskPercent))
	size := riskAmount.Div(riskPerUnit)
	if !size.IsPositive() {
		return nil
	}

	positionValue := size.Mul(entry)
	if positionValue.GreaterThan(s.portfolio.AvailableCapital) {
		s.log.Debug("Rejecting entry, insufficient available capital",
			"symbol", req.Symbol,
			"required", positionValue.String(),
			"available", s.portfolio.AvailableCapital.String(),
		)
		return nil
	}

	commission := pctOf(positionValue, s.config.CommissionPercent)
	s.portfolio.AvailableCapital = s.portfolio.AvailableCapital.Sub(positionValue)
	s.portfolio.CumulativeCommission = s.portfolio.CumulativeCommission.Add(commission)

	pos := &Position{
		ID:              uuid.New().String(),
		Symbol:          req.Symbol,
		Side:            req.Side,
		EntryPrice:      entry,
		Size:            size,
		EntryTime:       candle.Timestamp,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		entryCommission: commission,
	}

	if req.Trailing != nil {
		pos.Trailing = &TrailingState{
			ActivationPercent: decimal.NewFromFloat(req.Trailing.ActivationPercent),
			TrailPercent:      decimal.NewFromFloat(req.Trailing.TrailPercent),
			PeakPrice:         entry,
		}
	}
	if req.Timeout != nil && req.Timeout.MaxDurationMinutes > 0 {
		pos.ExpiresAt = candle.Timestamp + ohlcv.TimeMs(int64(req.Timeout.MaxDurationMinutes)*60_000)
	}

	s.positions = append(s.positions, pos)
	return pos
}

// stopLossFor derives the stop level for an entry, invalid when unset.
func (s *Simulator) stopLossFor(req OpenRequest, entry decimal.Decimal) decimal.NullDecimal {
	cfg := req.StopLoss
	if cfg == nil {
		return decimal.NullDecimal{}
	}

	if cfg.Type == strategy.ExitFixedPrice {
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(cfg.Value), Valid: true}
	}

	var distance decimal.Decimal
	switch cfg.Type {
	case strategy.ExitFixedPercent:
		distance = pctOf(entry, decimal.NewFromFloat(cfg.Value))
	case strategy.ExitATRMultiple:
		if math.IsNaN(req.ATR) || req.ATR <= 0 {
			return decimal.NullDecimal{}
		}
		distance = decimal.NewFromFloat(req.ATR * cfg.Value)
	default:
		return decimal.NullDecimal{}
	}

	level := entry.Sub(distance)
	if req.Side == SideShort {
		level = entry.Add(distance)
	}
	return decimal.NullDecimal{Decimal: level, Valid: true}
}

// takeProfitFor derives the target level for an entry, invalid when unset.
func (s *Simulator) takeProfitFor(req OpenRequest, entry decimal.Decimal, stopLoss decimal.NullDecimal) decimal.NullDecimal {
	cfg := req.TakeProfit
	if cfg == nil {
		return decimal.NullDecimal{}
	}

	if cfg.Type == strategy.ExitFixedPrice {
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(cfg.Value), Valid: true}
	}

	var distance decimal.Decimal
	switch cfg.Type {
	case strategy.ExitFixedPercent:
		distance = pctOf(entry, decimal.NewFromFloat(cfg.Value))
	case strategy.ExitATRMultiple:
		if math.IsNaN(req.ATR) || req.ATR <= 0 {
			return decimal.NullDecimal{}
		}
		distance = decimal.NewFromFloat(req.ATR * cfg.Value)
	case strategy.ExitRiskReward:
		if !stopLoss.Valid {
			return decimal.NullDecimal{}
		}
		distance = entry.Sub(stopLoss.Decimal).Abs().Mul(decimal.NewFromFloat(cfg.Value))
	default:
		return decimal.NullDecimal{}
	}

	level := entry.Add(distance)
	if req.Side == SideShort {
		level = entry.Sub(distance)
	}
	return decimal.NullDecimal{Decimal: level, Valid: true}
}

// ProcessCandle checks exits for every open position of the symbol in the
// order they were opened. Exit priority is stop loss, then trailing stop,
// then take profit, then timeout; positions that survive get their trailing
// state and unrealized P&L updated from the candle.
func (s *Simulator) ProcessCandle(candle ohlcv.Candle, symbol string) []Trade {
	var closed []Trade

	high := decimal.NewFromFloat(candle.High)
	low := decimal.NewFromFloat(candle.Low)
	closePrice := decimal.NewFromFloat(candle.Close)

	remaining := s.positions[:0]
	for _, pos := range s.positions {
		if pos.Symbol != symbol {
			remaining = append(remaining, pos)
			continue
		}

		if level, reason, hit := s.exitLevel(pos, high, low, candle.Timestamp, closePrice); hit {
			closed = append(closed, s.closeLocked(pos, level, candle.Timestamp, reason))
			continue
		}

		s.updateTrailing(pos, high, low)
		pos.UnrealizedPnL = unrealized(pos, closePrice)
		remaining = append(remaining, pos)
	}
	s.positions = remaining

	return closed
}

// exitLevel finds the first triggered mechanical exit for the candle.
func (s *Simulator) exitLevel(pos *Position, high, low decimal.Decimal, ts ohlcv.TimeMs, closePrice decimal.Decimal) (decimal.Decimal, string, bool) {
	if pos.Side == SideLong {
		if pos.StopLoss.Valid && low.LessThanOrEqual(pos.StopLoss.Decimal) {
			return pos.StopLoss.Decimal, ReasonStopLoss, true
		}
		if pos.Trailing != nil && pos.Trailing.Activated && low.LessThanOrEqual(pos.Trailing.Stop) {
			return pos.Trailing.Stop, ReasonTrailingStop, true
		}
		if pos.TakeProfit.Valid && high.GreaterThanOrEqual(pos.TakeProfit.Decimal) {
			return pos.TakeProfit.Decimal, ReasonTakeProfit, true
		}
	} else {
		if pos.StopLoss.Valid && high.GreaterThanOrEqual(pos.StopLoss.Decimal) {
			return pos.StopLoss.Decimal, ReasonStopLoss, true
		}
		if pos.Trailing != nil && pos.Trailing.Activated && high.GreaterThanOrEqual(pos.Trailing.Stop) {
			return pos.Trailing.Stop, ReasonTrailingStop, true
		}
		if pos.TakeProfit.Valid && low.LessThanOrEqual(pos.TakeProfit.Decimal) {
			return pos.TakeProfit.Decimal, ReasonTakeProfit, true
		}
	}

	if pos.ExpiresAt > 0 && ts >= pos.ExpiresAt {
		return closePrice, ReasonTimeout, true
	}
	return decimal.Zero, "", false
}

// updateTrailing advances the trailing-stop state machine for one candle.
// The stop only ever moves in the favourable direction and never past the
// breakeven level.
func (s *Simulator) updateTrailing(pos *Position, high, low decimal.Decimal) {
	t := pos.Trailing
	if t == nil {
		return
	}

	if pos.Side == SideLong {
		t.PeakPrice = utils.MaxDecimal(t.PeakPrice, high)
		if !t.Activated {
			profitPct := utils.PercentChange(pos.EntryPrice, t.PeakPrice)
			if profitPct.GreaterThanOrEqual(t.ActivationPercent) {
				t.Activated = true
				t.Stop = pos.EntryPrice // breakeven floor until the trail takes over
			}
		}
		if t.Activated {
			stop := t.PeakPrice.Mul(decimal.NewFromInt(1).Sub(t.TrailPercent.Div(hundred)))
			if stop.LessThan(pos.EntryPrice) {
				stop = pos.EntryPrice
			}
			if stop.GreaterThan(t.Stop) {
				t.Stop = stop
			}
		}
	} else {
		if t.PeakPrice.IsZero() || low.LessThan(t.PeakPrice) {
			t.PeakPrice = low
		}
		if !t.Activated {
			profitPct := utils.PercentChange(pos.EntryPrice, t.PeakPrice).Neg()
			if profitPct.GreaterThanOrEqual(t.ActivationPercent) {
				t.Activated = true
				t.Stop = pos.EntryPrice
			}
		}
		if t.Activated {
			stop := t.PeakPrice.Mul(decimal.NewFromInt(1).Add(t.TrailPercent.Div(hundred)))
			if stop.GreaterThan(pos.EntryPrice) {
				stop = pos.EntryPrice
			}
			if t.Stop.IsZero() || stop.LessThan(t.Stop) {
				t.Stop = stop
			}
		}
	}
}

// unrealized marks a position to the given price.
func unrealized(pos *Position, price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(pos.EntryPrice)
	if pos.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Size)
}

// ClosePosition closes an open position at the requested price, applying
// exit slippage and commission, and returns the finished trade.
func (s *Simulator) ClosePosition(pos *Position, price decimal.Decimal, ts ohlcv.TimeMs, reason string) Trade {
	trade := s.closeLocked(pos, price, ts, reason)
	s.removePosition(pos)
	return trade
}

// closeLocked performs the close bookkeeping without touching the position
// list; callers manage the list themselves.
func (s *Simulator) closeLocked(pos *Position, price decimal.Decimal, ts ohlcv.TimeMs, reason string) Trade {
	// Selling to close a long fills lower, buying to close a short higher.
	exit := s.slip(price, pos.Side == SideShort)

	gross := exit.Sub(pos.EntryPrice).Mul(pos.Size)
	grossPct := exit.Div(pos.EntryPrice).Sub(decimal.NewFromInt(1)).Mul(hundred)
	if pos.Side == SideShort {
		gross = gross.Neg()
		grossPct = grossPct.Neg()
	}

	exitCommission := pctOf(exit.Mul(pos.Size), s.config.CommissionPercent)
	commission := pos.entryCommission.Add(exitCommission)
	net := gross.Sub(commission)

	s.portfolio.CurrentCapital = s.portfolio.CurrentCapital.Add(net)
	s.portfolio.CumulativePnL = s.portfolio.CumulativePnL.Add(net)
	s.portfolio.CumulativeCommission = s.portfolio.CumulativeCommission.Add(exitCommission)
	s.portfolio.AvailableCapital = s.portfolio.AvailableCapital.Add(pos.Size.Mul(exit))

	trade := Trade{
		ID:              uuid.New().String(),
		Symbol:          pos.Symbol,
		Side:            pos.Side,
		EntryPrice:      pos.EntryPrice,
		ExitPrice:       exit,
		Size:            pos.Size,
		EntryTime:       pos.EntryTime,
		ExitTime:        ts,
		GrossPnL:        gross,
		GrossPnLPercent: grossPct,
		Commission:      commission,
		NetPnL:          net,
		ExitReason:      reason,
		HoldingTimeMs:   int64(ts) - int64(pos.EntryTime),
	}
	s.trades = append(s.trades, trade)
	return trade
}

// ForceCloseAll closes every open position at the given price with reason
// manual, in open order.
func (s *Simulator) ForceCloseAll(price decimal.Decimal, ts ohlcv.TimeMs) []Trade {
	var closed []Trade
	for _, pos := range s.positions {
		closed = append(closed, s.closeLocked(pos, price, ts, ReasonManual))
	}
	s.positions = nil
	return closed
}

func (s *Simulator) removePosition(target *Position) {
	for i, pos := range s.positions {
		if pos == target {
			s.positions = append(s.positions[:i], s.positions[i+1:]...)
			return
		}
	}
}

// OpenPositionFor returns the oldest open position for a symbol, or nil.
func (s *Simulator) OpenPositionFor(symbol string) *Position {
	for _, pos := range s.positions {
		if pos.Symbol == symbol {
			return pos
		}
	}
	return nil
}

// HasOpenPosition reports whether a symbol has any open position.
func (s *Simulator) HasOpenPosition(symbol string) bool {
	return s.OpenPositionFor(symbol) != nil
}

// OpenPositions returns the open positions in open order.
func (s *Simulator) OpenPositions() []*Position {
	return s.positions
}

// Trades returns the closed trades in close order.
func (s *Simulator) Trades() []Trade {
	return s.trades
}

// Portfolio returns the live portfolio state.
func (s *Simulator) Portfolio() *Portfolio {
	return s.portfolio
}

// UnrealizedTotal sums the unrealized P&L of all open positions.
func (s *Simulator) UnrealizedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range s.positions {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}
