package metrics

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/simulator"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func trade(side simulator.Side, netPnL, grossPct float64, holdMinutes int64) simulator.Trade {
	gross := netPnL + 1 // commission of 1 per trade
	return simulator.Trade{
		Side:            side,
		GrossPnL:        dec(gross),
		GrossPnLPercent: dec(grossPct),
		NetPnL:          dec(netPnL),
		Commission:      dec(1),
		HoldingTimeMs:   holdMinutes * 60_000,
	}
}

func equityCurve(values ...float64) []EquityPoint {
	points := make([]EquityPoint, len(values))
	for i, v := range values {
		points[i] = EquityPoint{
			Timestamp: ohlcv.TimeMs(int64(i) * 3_600_000),
			Equity:    dec(v),
		}
	}
	return points
}

func TestZeroTradesZeroMetrics(t *testing.T) {
	m := Calculate(nil, equityCurve(10_000, 10_000), dec(10_000), 0, 3_600_000)

	if m.TotalTrades != 0 || m.WinRate != 0 || float64(m.ProfitFactor) != 0 {
		t.Errorf("trade metrics should be zero, got %+v", m)
	}
	if m.SharpeRatio != 0 || m.MaxDrawdownPercent != 0 {
		t.Error("risk metrics should be zero with no trades")
	}
	if m.InitialCapital != 10_000 || m.FinalCapital != 10_000 {
		t.Error("capital facts should still be reported")
	}
}

func TestTradeStatistics(t *testing.T) {
	trades := []simulator.Trade{
		trade(simulator.SideLong, 100, 2, 60),
		trade(simulator.SideLong, -50, -1, 30),
		trade(simulator.SideShort, 80, 1.5, 90),
		trade(simulator.SideLong, 40, 0.8, 60),
		trade(simulator.SideLong, 60, 1.2, 60),
	}
	equity := equityCurve(10_000, 10_100, 10_050, 10_130, 10_170, 10_230)

	m := Calculate(trades, equity, dec(10_000), 0, ohlcv.TimeMs(5*3_600_000))

	if m.TotalTrades != 5 || m.WinningTrades != 4 || m.LosingTrades != 1 {
		t.Errorf("counts wrong: %+v", m)
	}
	if m.WinRate != 80 {
		t.Errorf("win rate should be 80, got %v", m.WinRate)
	}
	if m.LongTrades != 4 || m.ShortTrades != 1 {
		t.Errorf("side counts wrong: long=%d short=%d", m.LongTrades, m.ShortTrades)
	}
	if m.LongWinRate != 75 || m.ShortWinRate != 100 {
		t.Errorf("side win rates wrong: long=%v short=%v", m.LongWinRate, m.ShortWinRate)
	}
	// Streaks: W L W W W.
	if m.MaxConsecutiveWins != 3 || m.MaxConsecutiveLosses != 1 {
		t.Errorf("streaks wrong: wins=%d losses=%d", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
	}
	if m.LargestWinPercent != 2 || m.LargestLossPercent != -1 {
		t.Errorf("largest trades wrong: win=%v loss=%v", m.LargestWinPercent, m.LargestLossPercent)
	}
	if m.TotalCommission != 5 {
		t.Errorf("commission should be 5, got %v", m.TotalCommission)
	}
	// Average holding: (60+30+90+60+60)/5 = 60 minutes.
	if m.AvgHoldingTimeMinutes != 60 {
		t.Errorf("avg holding should be 60, got %v", m.AvgHoldingTimeMinutes)
	}
	// Time in market: 300 minutes held over a 300 minute range.
	if m.TimeInMarketPercent != 100 {
		t.Errorf("time in market should be 100, got %v", m.TimeInMarketPercent)
	}
}

func TestProfitFactorInfinity(t *testing.T) {
	trades := []simulator.Trade{
		trade(simulator.SideLong, 100, 2, 60),
		trade(simulator.SideLong, 50, 1, 60),
	}
	m := Calculate(trades, equityCurve(10_000, 10_100, 10_150), dec(10_000), 0, 7_200_000)

	if !math.IsInf(float64(m.ProfitFactor), 1) {
		t.Errorf("profit factor with no losses should be +Inf, got %v", m.ProfitFactor)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(raw), `"profitFactor":"Infinity"`) {
		t.Errorf("infinity should serialize as sentinel, got %s", raw)
	}

	var back Metrics
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !math.IsInf(float64(back.ProfitFactor), 1) {
		t.Error("sentinel should round-trip to +Inf")
	}
}

func TestDrawdownTracking(t *testing.T) {
	// Peak 11000, trough 9900: abs 1100, pct 10.
	equity := equityCurve(10_000, 11_000, 9_900, 10_500, 11_200)
	trades := []simulator.Trade{trade(simulator.SideLong, 10, 1, 1)}

	m := Calculate(trades, equity, dec(10_000), 0, ohlcv.TimeMs(4*3_600_000))

	if math.Abs(m.MaxDrawdownAbs-1_100) > 1e-9 {
		t.Errorf("max drawdown abs should be 1100, got %v", m.MaxDrawdownAbs)
	}
	if math.Abs(m.MaxDrawdownPercent-10) > 1e-9 {
		t.Errorf("max drawdown pct should be 10, got %v", m.MaxDrawdownPercent)
	}
	// Underwater from hour 2 to hour 3 (new high at hour 4).
	if m.MaxDrawdownDurationDays <= 0 {
		t.Error("drawdown duration should be positive")
	}
}

func TestTotalReturnAndCAGR(t *testing.T) {
	trades := []simulator.Trade{trade(simulator.SideLong, 2_000, 20, 60)}
	equity := []EquityPoint{
		{Timestamp: 0, Equity: dec(10_000)},
		{Timestamp: ohlcv.TimeMs(msPerYear), Equity: dec(12_000)},
	}

	m := Calculate(trades, equity, dec(10_000), 0, ohlcv.TimeMs(msPerYear))

	if math.Abs(m.TotalReturnPercent-20) > 1e-9 {
		t.Errorf("total return should be 20%%, got %v", m.TotalReturnPercent)
	}
	if math.Abs(m.TotalReturnAbs-2_000) > 1e-9 {
		t.Errorf("total return abs should be 2000, got %v", m.TotalReturnAbs)
	}
	// Over exactly one year CAGR equals the total return.
	if math.Abs(m.CAGR-20) > 1e-6 {
		t.Errorf("CAGR over one year should be 20%%, got %v", m.CAGR)
	}
}

func TestSharpeDefinedForSingleTrade(t *testing.T) {
	trades := []simulator.Trade{trade(simulator.SideLong, 100, 1, 60)}

	// Varying equity: stddev > 0, Sharpe defined.
	m := Calculate(trades, equityCurve(10_000, 10_050, 10_020, 10_100), dec(10_000), 0, ohlcv.TimeMs(3*3_600_000))
	if m.SharpeRatio == 0 {
		t.Error("Sharpe should be defined for a varying curve")
	}

	// Flat curve: stddev 0, Sharpe 0 by convention.
	m = Calculate(trades, equityCurve(10_000, 10_000, 10_000), dec(10_000), 0, ohlcv.TimeMs(2*3_600_000))
	if m.SharpeRatio != 0 {
		t.Errorf("Sharpe with zero stddev should be 0, got %v", m.SharpeRatio)
	}
}

func TestSortinoUsesOnlyNegativeReturns(t *testing.T) {
	trades := []simulator.Trade{trade(simulator.SideLong, 100, 1, 60)}

	// Monotonic rise: no negative returns, Sortino 0 by convention.
	m := Calculate(trades, equityCurve(10_000, 10_100, 10_200), dec(10_000), 0, ohlcv.TimeMs(2*3_600_000))
	if m.SortinoRatio != 0 {
		t.Errorf("Sortino without downside should be 0, got %v", m.SortinoRatio)
	}

	// With a dip both ratios are defined and Sortino differs from Sharpe.
	m = Calculate(trades, equityCurve(10_000, 9_900, 10_200), dec(10_000), 0, ohlcv.TimeMs(2*3_600_000))
	if m.SortinoRatio == 0 {
		t.Error("Sortino should be defined with downside returns")
	}
}

func TestCalmarZeroWithoutDrawdown(t *testing.T) {
	trades := []simulator.Trade{trade(simulator.SideLong, 100, 1, 60)}
	m := Calculate(trades, equityCurve(10_000, 10_100, 10_200), dec(10_000), 0, ohlcv.TimeMs(2*3_600_000))
	if m.CalmarRatio != 0 {
		t.Errorf("Calmar with zero drawdown should be 0, got %v", m.CalmarRatio)
	}
}
