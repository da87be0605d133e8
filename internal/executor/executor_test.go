package executor

import (
	"testing"

	"github.com/tidewave/tidewave/internal/indicators"
	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/strategy"
)

func minuteSeries(closes ...float64) []ohlcv.Candle {
	series := make([]ohlcv.Candle, len(closes))
	for i, c := range closes {
		series[i] = ohlcv.Candle{
			Timestamp: ohlcv.TimeMs(int64(i) * 60_000),
			Open:      c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 10,
		}
	}
	return series
}

func alwaysLongSchema() *strategy.Schema {
	return &strategy.Schema{
		Name:    "always long",
		Version: "1.0.0",
		Data:    strategy.DataRequirements{PrimaryTimeframe: ohlcv.TF1m, Lookback: 1},
		Entry: strategy.EntrySignals{
			Long: &strategy.SignalDef{
				Conditions: &strategy.ConditionNode{Relation: strategy.RelGreaterThan, Left: "close", Right: "0"},
			},
		},
		Risk: strategy.RiskManagement{RiskPerTradePercent: 1, MaxOpenPositions: 1},
	}
}

func TestSignalsFollowPositionState(t *testing.T) {
	exec, err := New(alwaysLongSchema(), indicators.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("executor construction failed: %v", err)
	}

	series := minuteSeries(10, 11, 12)
	results, err := exec.Execute(series, "BTCUSDT", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(results) != len(series) {
		t.Fatalf("expected %d results, got %d", len(series), len(results))
	}

	// Flat: the first candle signals an entry.
	sig := exec.SignalFor(results[0], "BTCUSDT")
	if sig.Type != SignalEntryLong {
		t.Errorf("flat state should signal entry_long, got %s", sig.Type)
	}
	if sig.Price != series[0].Close || sig.Timestamp != series[0].Timestamp {
		t.Error("signal should carry the candle close and timestamp")
	}

	// With a position open entries stop.
	exec.SetPosition("BTCUSDT", SideLong)
	if sig := exec.SignalFor(results[1], "BTCUSDT"); sig.Type != SignalNone {
		t.Errorf("open position should suppress entries, got %s", sig.Type)
	}

	// Cleared again: entries resume.
	exec.SetPosition("BTCUSDT", "")
	if sig := exec.SignalFor(results[2], "BTCUSDT"); sig.Type != SignalEntryLong {
		t.Errorf("cleared position should re-enable entries, got %s", sig.Type)
	}
}

func TestSignalExitForOpenPosition(t *testing.T) {
	schema := alwaysLongSchema()
	schema.Exits.SignalExit = &strategy.ConditionNode{
		Relation: strategy.RelGreaterThan, Left: "close", Right: "11.5",
	}

	exec, err := New(schema, indicators.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("executor construction failed: %v", err)
	}
	results, err := exec.Execute(minuteSeries(10, 11, 12), "BTCUSDT", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	exec.SetPosition("BTCUSDT", SideLong)
	if sig := exec.SignalFor(results[0], "BTCUSDT"); sig.Type != SignalNone {
		t.Errorf("candle 0 should not exit, got %s", sig.Type)
	}
	if sig := exec.SignalFor(results[2], "BTCUSDT"); sig.Type != SignalExitLong {
		t.Errorf("candle 2 should signal exit_long, got %s", sig.Type)
	}

	// A short position exits as exit_short.
	exec.SetPosition("BTCUSDT", SideShort)
	if sig := exec.SignalFor(results[2], "BTCUSDT"); sig.Type != SignalExitShort {
		t.Errorf("short position should signal exit_short, got %s", sig.Type)
	}
}

func TestUnknownIndicatorTypeIsSkipped(t *testing.T) {
	schema := alwaysLongSchema()
	schema.Indicators = []strategy.IndicatorDef{
		{ID: "mystery", Type: "SUPERTREND"},
	}

	exec, err := New(schema, indicators.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("executor construction failed: %v", err)
	}

	results, err := exec.Execute(minuteSeries(10, 11), "BTCUSDT", nil)
	if err != nil {
		t.Fatalf("execute should tolerate unknown indicator types: %v", err)
	}
	if _, ok := results[0].Context.Indicators["mystery"]; ok {
		t.Error("skipped indicator should not appear in the context")
	}
	// Conditions referencing it resolve to null, not crash.
	if _, ok := results[0].Context.Resolve("mystery"); ok {
		t.Error("skipped indicator should resolve to null")
	}
}

func TestComputedVariablesInContext(t *testing.T) {
	schema := alwaysLongSchema()
	schema.Variables = []strategy.VariableDef{
		{ID: "doubled", Expression: "close * 2"},
	}

	exec, err := New(schema, indicators.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("executor construction failed: %v", err)
	}

	results, err := exec.Execute(minuteSeries(10), "BTCUSDT", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if v, ok := results[0].Context.Resolve("doubled"); !ok || v != 20 {
		t.Errorf("variable doubled should be 20, got %v (ok=%v)", v, ok)
	}
}

func TestPreviousContextChains(t *testing.T) {
	exec, err := New(alwaysLongSchema(), indicators.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("executor construction failed: %v", err)
	}

	results, err := exec.Execute(minuteSeries(10, 11), "BTCUSDT", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if results[0].Context.Prev != nil {
		t.Error("first candle has no previous context")
	}
	if results[1].Context.Prev != results[0].Context {
		t.Error("second candle should link back to the first context")
	}
}

func TestBrokenVariableFailsConstruction(t *testing.T) {
	schema := alwaysLongSchema()
	schema.Variables = []strategy.VariableDef{{ID: "bad", Expression: "close +"}}

	if _, err := New(schema, indicators.NewRegistry(), nil); err == nil {
		t.Error("unparseable variable should fail executor construction")
	}
}

func TestMultiTimeframeAlignment(t *testing.T) {
	// Primary 1m over 15 minutes, additional 5m series. A 5m candle starting
	// at T is only visible from primary candles at T+5m onwards.
	primary := make([]ohlcv.Candle, 15)
	for i := range primary {
		c := 100 + float64(i)
		primary[i] = ohlcv.Candle{
			Timestamp: ohlcv.TimeMs(int64(i) * 60_000),
			Open:      c, High: c + 1, Low: c - 1, Close: c, Volume: 5,
		}
	}
	htf := []ohlcv.Candle{
		{Timestamp: 0, Open: 100, High: 105, Low: 99, Close: 104, Volume: 25},
		{Timestamp: 300_000, Open: 105, High: 110, Low: 104, Close: 109, Volume: 25},
		{Timestamp: 600_000, Open: 110, High: 115, Low: 109, Close: 114, Volume: 25},
	}

	index := alignToClosed(primary, htf, ohlcv.TF1m, ohlcv.TF5m)

	for i := 0; i < 5; i++ {
		if index[i] != -1 {
			t.Errorf("primary %d: no closed 5m candle yet, got index %d", i, index[i])
		}
	}
	for i := 5; i < 10; i++ {
		if index[i] != 0 {
			t.Errorf("primary %d should see 5m candle 0, got %d", i, index[i])
		}
	}
	for i := 10; i < 15; i++ {
		if index[i] != 1 {
			t.Errorf("primary %d should see 5m candle 1, got %d", i, index[i])
		}
	}
}

func TestExecuteWithHigherTimeframeIndicator(t *testing.T) {
	schema := alwaysLongSchema()
	schema.Data.AdditionalTimeframes = []ohlcv.Timeframe{ohlcv.TF5m}
	schema.Indicators = []strategy.IndicatorDef{
		{ID: "sma_htf", Type: "SMA", Params: indicators.Params{"period": 2}, Timeframe: ohlcv.TF5m},
	}

	primary := minuteSeries(100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113, 114)
	htf := []ohlcv.Candle{
		{Timestamp: 0, Open: 100, High: 105, Low: 99, Close: 104, Volume: 25},
		{Timestamp: 300_000, Open: 105, High: 110, Low: 104, Close: 109, Volume: 25},
		{Timestamp: 600_000, Open: 110, High: 115, Low: 109, Close: 114, Volume: 25},
	}

	exec, err := New(schema, indicators.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("executor construction failed: %v", err)
	}

	results, err := exec.Execute(primary, "BTCUSDT", map[ohlcv.Timeframe][]ohlcv.Candle{ohlcv.TF5m: htf})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	// Before the second 5m candle closes the SMA(2) has no value anywhere.
	if _, ok := results[9].Context.Resolve("sma_htf"); ok {
		t.Error("sma_htf should still be null while only one 5m candle is closed")
	}
	// From minute 10 the closed candle is index 1 where SMA(2) = (104+109)/2.
	if v, ok := results[10].Context.Resolve("sma_htf"); !ok || v != 106.5 {
		t.Errorf("sma_htf should be 106.5 from minute 10, got %v (ok=%v)", v, ok)
	}
}
