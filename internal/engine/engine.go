package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/executor"
	"github.com/tidewave/tidewave/internal/indicators"
	"github.com/tidewave/tidewave/internal/logger"
	"github.com/tidewave/tidewave/internal/metrics"
	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/simulator"
	"github.com/tidewave/tidewave/internal/strategy"
)

// ProgressFunc receives progress events during a run.
type ProgressFunc func(ProgressEvent)

// Engine runs one strategy against one candle series. It owns its executor
// and simulator for the duration of a run; nothing is shared between
// concurrent engines except read access to the indicator registry.
type Engine struct {
	schema   *strategy.Schema
	registry *indicators.Registry
	config   Config
	exec     *executor.Executor
	sim      *simulator.Simulator
	log      *logger.Logger
}

// New builds an engine for a strategy. The executor compiles the strategy's
// computed variables here, so malformed strategies fail fast.
func New(schema *strategy.Schema, registry *indicators.Registry, config Config, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.Default()
	}
	log = log.Component("engine").Strategy(schema.ID, schema.Version)

	exec, err := executor.New(schema, registry, log)
	if err != nil {
		return nil, fmt.Errorf("building executor: %w", err)
	}

	if config.ATRPeriod <= 0 {
		config.ATRPeriod = 14
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 100
	}
	if config.FillModel == "" {
		config.FillModel = simulator.FillRealistic
	}

	sim := simulator.New(simulator.Config{
		InitialCapital:    config.InitialCapital,
		CommissionPercent: decimal.NewFromFloat(config.CommissionPercent),
		SlippagePercent:   decimal.NewFromFloat(config.SlippagePercent),
		FillModel:         config.FillModel,
	}, log)

	return &Engine{
		schema:   schema,
		registry: registry,
		config:   config,
		exec:     exec,
		sim:      sim,
		log:      log,
	}, nil
}

// Run executes the backtest. Domain failures never surface as errors: the
// returned result's status and error field encode the outcome.
func (e *Engine) Run(ctx context.Context, series []ohlcv.Candle, symbol string, mtf map[ohlcv.Timeframe][]ohlcv.Candle, onProgress ProgressFunc) *Result {
	result := &Result{
		ID:              uuid.New().String(),
		StrategyID:      e.schema.ID,
		StrategyVersion: e.schema.Version,
		Config:          e.config,
		Status:          StatusRunning,
		StartedAt:       time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusFailed
			result.Error = fmt.Sprintf("runtime error: %v", r)
			result.CompletedAt = time.Now()
			e.log.Error("Backtest panicked", "panic", r)
		}
	}()

	clipped := clipSeries(series, e.config.StartDate, e.config.EndDate)
	if len(clipped) == 0 {
		return e.fail(result, "No data in the requested range")
	}

	warmup := e.schema.RequiredWarmup(e.registry)
	if len(clipped) < warmup {
		return e.fail(result, fmt.Sprintf(
			"Insufficient data: strategy requires %d candles, got %d", warmup, len(clipped)))
	}

	e.sim.Reset()
	e.exec.SetPosition(symbol, "")

	atr := atrSeries(clipped, e.config.ATRPeriod)

	execution, err := e.exec.Execute(clipped, symbol, mtf)
	if err != nil {
		return e.fail(result, err.Error())
	}

	total := len(clipped) - warmup
	result.TotalCandles = total
	peakEquity := e.config.InitialCapital
	started := time.Now()

	for i := warmup; i < len(clipped); i++ {
		if ctx.Err() != nil {
			prev := clipped[max(i-1, 0)]
			e.closeAll(decimal.NewFromFloat(prev.Close), prev.Timestamp, symbol, result)
			result.Status = StatusCancelled
			result.Error = "cancelled"
			result.CompletedAt = time.Now()
			e.log.Warn("Backtest cancelled", "processed", result.ProcessedCandles)
			return result
		}

		candle := clipped[i]

		// Mechanical exits first, then this candle's signal.
		if closed := e.sim.ProcessCandle(candle, symbol); len(closed) > 0 {
			result.Trades = append(result.Trades, closed...)
			e.exec.SetPosition(symbol, "")
		}

		e.applySignal(e.exec.SignalFor(execution[i], symbol), candle, symbol, atr[i], result)

		equity := e.sim.Portfolio().Equity(e.sim.UnrealizedTotal())
		drawdown := peakEquity.Sub(equity)
		if drawdown.IsNegative() {
			drawdown = decimal.Zero
		}
		ddPct := 0.0
		if peakEquity.IsPositive() {
			ddPct, _ = drawdown.Div(peakEquity).Mul(decimal.NewFromInt(100)).Float64()
		}
		result.EquityCurve = append(result.EquityCurve, metrics.EquityPoint{
			Timestamp:       candle.Timestamp,
			Equity:          equity,
			DrawdownAbs:     drawdown,
			DrawdownPercent: ddPct,
			OpenPositions:   len(e.sim.OpenPositions()),
		})
		if equity.GreaterThan(peakEquity) {
			peakEquity = equity
		}

		result.ProcessedCandles = i - warmup + 1
		if onProgress != nil {
			processed := result.ProcessedCandles
			if processed == 1 || processed == total || processed%e.config.ProgressInterval == 0 {
				onProgress(progressEvent(result.ID, processed, total, candle.Timestamp, started))
			}
		}
	}

	last := clipped[len(clipped)-1]
	e.closeAll(decimal.NewFromFloat(last.Close), last.Timestamp, symbol, result)

	// The forced closes realize exit friction after the last in-loop sample;
	// refresh the final equity point so the curve ends on settled capital.
	if n := len(result.EquityCurve); n > 0 {
		equity := e.sim.Portfolio().CurrentCapital
		point := &result.EquityCurve[n-1]
		point.Equity = equity
		point.OpenPositions = 0
		point.DrawdownAbs = peakEquity.Sub(equity)
		if point.DrawdownAbs.IsNegative() {
			point.DrawdownAbs = decimal.Zero
		}
		point.DrawdownPercent = 0
		if peakEquity.IsPositive() {
			point.DrawdownPercent, _ = point.DrawdownAbs.Div(peakEquity).Mul(decimal.NewFromInt(100)).Float64()
		}
	}

	result.Metrics = metrics.Calculate(
		result.Trades, result.EquityCurve, e.config.InitialCapital,
		clipped[0].Timestamp, last.Timestamp)
	result.Status = StatusCompleted
	result.CompletedAt = time.Now()

	e.log.Info("Backtest completed",
		"trades", len(result.Trades),
		"candles", result.ProcessedCandles,
		"finalEquity", result.Metrics.FinalCapital,
	)
	return result
}

// applySignal opens or closes positions per the executor's decision for the
// candle and keeps the executor's position view in sync.
func (e *Engine) applySignal(sig executor.Signal, candle ohlcv.Candle, symbol string, atr float64, result *Result) {
	switch sig.Type {
	case executor.SignalExitLong, executor.SignalExitShort:
		if pos := e.sim.OpenPositionFor(symbol); pos != nil {
			trade := e.sim.ClosePosition(pos,
				decimal.NewFromFloat(candle.Close), candle.Timestamp, simulator.ReasonSignal)
			result.Trades = append(result.Trades, trade)
			e.exec.SetPosition(symbol, "")
		}

	case executor.SignalEntryLong, executor.SignalEntryShort:
		side := simulator.SideLong
		execSide := executor.SideLong
		if sig.Type == executor.SignalEntryShort {
			side = simulator.SideShort
			execSide = executor.SideShort
		}
		pos := e.sim.OpenPosition(simulator.OpenRequest{
			Symbol:           symbol,
			Side:             side,
			StopLoss:         e.schema.Exits.StopLoss,
			TakeProfit:       e.schema.Exits.TakeProfit,
			Trailing:         e.schema.Exits.TrailingStop,
			Timeout:          e.schema.Exits.Timeout,
			RiskPercent:      e.schema.Risk.RiskPerTradePercent,
			MaxOpenPositions: maxPositions(e.schema.Risk.MaxOpenPositions),
			ATR:              atr,
		}, candle)
		if pos != nil {
			e.exec.SetPosition(symbol, execSide)
		}
	}
}

// closeAll force-closes open positions with reason manual and clears the
// executor's position view.
func (e *Engine) closeAll(price decimal.Decimal, ts ohlcv.TimeMs, symbol string, result *Result) {
	if closed := e.sim.ForceCloseAll(price, ts); len(closed) > 0 {
		result.Trades = append(result.Trades, closed...)
	}
	e.exec.SetPosition(symbol, "")
}

func (e *Engine) fail(result *Result, msg string) *Result {
	result.Status = StatusFailed
	result.Error = msg
	result.CompletedAt = time.Now()
	e.log.Warn("Backtest failed", "reason", msg)
	return result
}

func maxPositions(configured int) int {
	if configured <= 0 {
		return 1
	}
	return configured
}

// clipSeries keeps candles inside [start, end]. Zero bounds are open.
func clipSeries(series []ohlcv.Candle, start, end ohlcv.TimeMs) []ohlcv.Candle {
	var out []ohlcv.Candle
	for _, c := range series {
		if start > 0 && c.Timestamp < start {
			continue
		}
		if end > 0 && c.Timestamp > end {
			continue
		}
		out = append(out, c)
	}
	return out
}

// atrSeries precomputes the ATR used for atr_multiple stops and targets.
func atrSeries(series []ohlcv.Candle, period int) []float64 {
	out, err := (&indicators.ATR{}).Calculate(series, indicators.Params{"period": period})
	if err != nil {
		return make([]float64, len(series))
	}
	return out.Values
}

func progressEvent(id string, processed, total int, current ohlcv.TimeMs, started time.Time) ProgressEvent {
	event := ProgressEvent{
		BacktestID:       id,
		ProcessedCandles: processed,
		TotalCandles:     total,
		CurrentDate:      current,
	}
	if total > 0 {
		event.Progress = float64(processed) / float64(total) * 100
	}
	if processed > 0 && processed < total {
		elapsed := time.Since(started)
		event.ETA = time.Duration(float64(elapsed) / float64(processed) * float64(total-processed))
	}
	return event
}
