package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/indicators"
	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/simulator"
	"github.com/tidewave/tidewave/internal/strategy"
)

// hourlySeries builds a gently oscillating hourly series starting 2024-01-01.
func hourlySeries(n int) []ohlcv.Candle {
	start := ohlcv.MsFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	series := make([]ohlcv.Candle, n)
	price := 100.0
	for i := range series {
		drift := 0.2
		if i%7 >= 4 {
			drift = -0.15
		}
		open := price
		price += drift
		high := open
		if price > high {
			high = price
		}
		low := open
		if price < low {
			low = price
		}
		series[i] = ohlcv.Candle{
			Timestamp: start + ohlcv.TimeMs(int64(i)*3_600_000),
			Open:      open,
			High:      high + 0.05,
			Low:       low - 0.05,
			Close:     price,
			Volume:    1_000,
		}
	}
	return series
}

func alwaysLongSchema() *strategy.Schema {
	return &strategy.Schema{
		ID:      "always-long",
		Name:    "Always Long",
		Version: "1.0.0",
		Status:  strategy.StatusActive,
		Data:    strategy.DataRequirements{PrimaryTimeframe: ohlcv.TF1h, Lookback: 1},
		Entry: strategy.EntrySignals{
			Long: &strategy.SignalDef{
				Conditions: &strategy.ConditionNode{
					Relation: strategy.RelGreaterThan, Left: "close", Right: "0",
				},
			},
		},
		Risk: strategy.RiskManagement{RiskPerTradePercent: 1, MaxOpenPositions: 1},
	}
}

func frictionlessConfig() Config {
	cfg := DefaultConfig()
	cfg.CommissionPercent = 0
	cfg.SlippagePercent = 0
	return cfg
}

func runBacktest(t *testing.T, schema *strategy.Schema, cfg Config, series []ohlcv.Candle) *Result {
	t.Helper()
	eng, err := New(schema, indicators.NewRegistry(), cfg, nil)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return eng.Run(context.Background(), series, "BTCUSDT", nil, nil)
}

func TestInsufficientDataFails(t *testing.T) {
	schema := alwaysLongSchema()
	schema.Indicators = []strategy.IndicatorDef{
		{ID: "sma20", Type: "SMA", Params: indicators.Params{"period": 20}},
		{ID: "sma50", Type: "SMA", Params: indicators.Params{"period": 50}},
		{ID: "rsi14", Type: "RSI", Params: indicators.Params{"period": 14}},
	}

	result := runBacktest(t, schema, frictionlessConfig(), hourlySeries(10))

	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "Insufficient") {
		t.Errorf("error should mention Insufficient, got %q", result.Error)
	}
	if !strings.Contains(result.Error, "50") {
		t.Errorf("error should carry the dominant warmup 50, got %q", result.Error)
	}
	if result.Metrics != nil {
		t.Error("failed run should not carry metrics")
	}
}

func TestNoDataInRangeFails(t *testing.T) {
	cfg := frictionlessConfig()
	cfg.StartDate = ohlcv.MsFromTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg.EndDate = ohlcv.MsFromTime(time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC))

	result := runBacktest(t, alwaysLongSchema(), cfg, hourlySeries(500))

	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "No data") {
		t.Errorf("error should mention No data, got %q", result.Error)
	}
}

func TestAlwaysLongForceClosesAtRangeEnd(t *testing.T) {
	series := hourlySeries(100)
	result := runBacktest(t, alwaysLongSchema(), frictionlessConfig(), series)

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}
	if len(result.Trades) == 0 {
		t.Fatal("always-long strategy should produce at least one trade")
	}

	final := result.Trades[len(result.Trades)-1]
	if final.ExitReason != simulator.ReasonManual {
		t.Errorf("final trade should be force-closed manual, got %s", final.ExitReason)
	}
	if final.ExitTime != series[len(series)-1].Timestamp {
		t.Errorf("final trade should close on the last candle")
	}
	if result.Metrics == nil {
		t.Fatal("completed run should carry metrics")
	}
}

func TestNetPnLSumMatchesCapitalChange(t *testing.T) {
	cfg := DefaultConfig() // with commission and slippage on
	result := runBacktest(t, alwaysLongSchema(), cfg, hourlySeries(200))

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}

	sum := decimal.Zero
	for _, trade := range result.Trades {
		if !trade.NetPnL.Equal(trade.GrossPnL.Sub(trade.Commission)) {
			t.Error("netPnL must equal grossPnL minus commission")
		}
		if trade.HoldingTimeMs < 0 {
			t.Error("holding time must not be negative")
		}
		sum = sum.Add(trade.NetPnL)
	}

	final := result.EquityCurve[len(result.EquityCurve)-1].Equity
	diff := sum.Sub(final.Sub(cfg.InitialCapital)).Abs()
	tolerance := cfg.InitialCapital.Mul(decimal.NewFromFloat(1e-6))
	if diff.GreaterThan(tolerance) {
		t.Errorf("sum of net PnL (%s) should match capital change (%s)", sum, final.Sub(cfg.InitialCapital))
	}
}

func TestEquityCurveInvariants(t *testing.T) {
	result := runBacktest(t, alwaysLongSchema(), frictionlessConfig(), hourlySeries(150))

	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if len(result.EquityCurve) != result.ProcessedCandles {
		t.Errorf("one equity point per processed candle: %d vs %d",
			len(result.EquityCurve), result.ProcessedCandles)
	}

	for i, p := range result.EquityCurve {
		if p.Equity.IsNegative() {
			t.Errorf("equity[%d] must not be negative", i)
		}
		if p.DrawdownPercent < 0 || p.DrawdownPercent > 100 {
			t.Errorf("drawdown percent out of [0,100] at %d: %v", i, p.DrawdownPercent)
		}
		if p.DrawdownAbs.IsNegative() {
			t.Errorf("drawdown abs must not be negative at %d", i)
		}
		if p.OpenPositions > 1 {
			t.Errorf("open positions above the limit at %d: %d", i, p.OpenPositions)
		}
	}
}

func TestProgressEventsMonotonic(t *testing.T) {
	schema := alwaysLongSchema()
	cfg := frictionlessConfig()
	cfg.ProgressInterval = 25

	eng, err := New(schema, indicators.NewRegistry(), cfg, nil)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}

	var events []ProgressEvent
	result := eng.Run(context.Background(), hourlySeries(120), "BTCUSDT", nil, func(e ProgressEvent) {
		events = append(events, e)
	})
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	if len(events) == 0 {
		t.Fatal("progress events expected")
	}
	for i := 1; i < len(events); i++ {
		if events[i].ProcessedCandles < events[i-1].ProcessedCandles {
			t.Error("processed counts must be monotonic non-decreasing")
		}
	}
	last := events[len(events)-1]
	if last.Progress != 100 || last.ProcessedCandles != last.TotalCandles {
		t.Errorf("final event should report completion, got %+v", last)
	}
}

func TestCancellationYieldsCancelledResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng, err := New(alwaysLongSchema(), indicators.NewRegistry(), frictionlessConfig(), nil)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}

	result := eng.Run(ctx, hourlySeries(100), "BTCUSDT", nil, nil)
	if result.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", result.Status)
	}
	if result.Metrics != nil {
		t.Error("cancelled run should not carry metrics")
	}
}

func TestDeterminism(t *testing.T) {
	series := hourlySeries(200)

	run := func() *Result {
		return runBacktest(t, alwaysLongSchema(), DefaultConfig(), series)
	}
	a, b := run(), run()

	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		ta, tb := a.Trades[i], b.Trades[i]
		if !ta.EntryPrice.Equal(tb.EntryPrice) || !ta.ExitPrice.Equal(tb.ExitPrice) ||
			!ta.NetPnL.Equal(tb.NetPnL) || ta.ExitReason != tb.ExitReason {
			t.Errorf("trade %d differs between identical runs", i)
		}
	}
	for i := range a.EquityCurve {
		if !a.EquityCurve[i].Equity.Equal(b.EquityCurve[i].Equity) {
			t.Errorf("equity point %d differs between identical runs", i)
		}
	}
}

func TestSignalExitClosesWithSignalReason(t *testing.T) {
	schema := alwaysLongSchema()
	// Exit whenever the close dips below the open.
	schema.Exits.SignalExit = &strategy.ConditionNode{
		Relation: strategy.RelLessThan, Left: "close", Right: "open",
	}

	result := runBacktest(t, schema, frictionlessConfig(), hourlySeries(100))
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}

	foundSignal := false
	for _, tr := range result.Trades {
		if tr.ExitReason == simulator.ReasonSignal {
			foundSignal = true
		}
	}
	if !foundSignal {
		t.Error("oscillating series should produce at least one signal exit")
	}
}
