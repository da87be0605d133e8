// Package metrics turns a trade log and equity curve into the performance
// report of a backtest: returns, drawdown, risk-adjusted ratios, trade and
// exposure statistics.
package metrics

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"github.com/tidewave/tidewave/internal/ohlcv"
	"github.com/tidewave/tidewave/internal/simulator"
)

const (
	msPerDay  = 86_400_000.0
	msPerYear = 365.25 * msPerDay
)

// EquityPoint is one sample of the equity curve, emitted per processed
// primary candle.
type EquityPoint struct {
	Timestamp       ohlcv.TimeMs    `json:"timestamp"`
	Equity          decimal.Decimal `json:"equity"`
	DrawdownAbs     decimal.Decimal `json:"drawdown"`
	DrawdownPercent float64         `json:"drawdownPercent"`
	OpenPositions   int             `json:"openPositions"`
}

// JSONFloat is a float64 that serializes infinities as sentinel strings so
// a profit factor of +Inf survives the JSON boundary.
type JSONFloat float64

// MarshalJSON encodes infinities as "Infinity" / "-Infinity".
func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 1) {
		return json.Marshal("Infinity")
	}
	if math.IsInf(v, -1) {
		return json.Marshal("-Infinity")
	}
	return json.Marshal(v)
}

// UnmarshalJSON accepts both the sentinel strings and plain numbers.
func (f *JSONFloat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*f = JSONFloat(math.Inf(1))
		case "-Infinity":
			*f = JSONFloat(math.Inf(-1))
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = JSONFloat(v)
	return nil
}

// Metrics is the full performance report. Percentages are expressed in
// percent, ratios are plain numbers.
type Metrics struct {
	// Returns
	TotalReturnPercent float64 `json:"totalReturnPercent"`
	TotalReturnAbs     float64 `json:"totalReturnAbs"`
	CAGR               float64 `json:"cagr"`
	MonthlyAvgReturn   float64 `json:"monthlyAvgReturn"`

	// Drawdown
	MaxDrawdownPercent      float64 `json:"maxDrawdownPercent"`
	MaxDrawdownAbs          float64 `json:"maxDrawdownAbs"`
	MaxDrawdownDurationDays float64 `json:"maxDrawdownDurationDays"`

	// Risk-adjusted
	SharpeRatio  float64 `json:"sharpeRatio"`
	SortinoRatio float64 `json:"sortinoRatio"`
	CalmarRatio  float64 `json:"calmarRatio"`

	// Trade statistics
	TotalTrades          int       `json:"totalTrades"`
	WinningTrades        int       `json:"winningTrades"`
	LosingTrades         int       `json:"losingTrades"`
	WinRate              float64   `json:"winRate"`
	ProfitFactor         JSONFloat `json:"profitFactor"`
	AvgWinPercent        float64   `json:"avgWinPercent"`
	AvgLossPercent       float64   `json:"avgLossPercent"`
	AvgTradePercent      float64   `json:"avgTradePercent"`
	LargestWinPercent    float64   `json:"largestWinPercent"`
	LargestLossPercent   float64   `json:"largestLossPercent"`
	MaxConsecutiveWins   int       `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int       `json:"maxConsecutiveLosses"`

	// Exposure
	LongTrades            int     `json:"longTrades"`
	ShortTrades           int     `json:"shortTrades"`
	LongWinRate           float64 `json:"longWinRate"`
	ShortWinRate          float64 `json:"shortWinRate"`
	AvgHoldingTimeMinutes float64 `json:"avgHoldingTimeMinutes"`
	TimeInMarketPercent   float64 `json:"timeInMarketPercent"`

	// Capital
	InitialCapital  float64 `json:"initialCapital"`
	FinalCapital    float64 `json:"finalCapital"`
	PeakCapital     float64 `json:"peakCapital"`
	TotalCommission float64 `json:"totalCommission"`
}

// Calculate builds the report for the covered range [t0, t1]. With no trades
// every trade metric is zero by convention.
func Calculate(trades []simulator.Trade, equity []EquityPoint, initialCapital decimal.Decimal, t0, t1 ohlcv.TimeMs) *Metrics {
	m := &Metrics{InitialCapital: initialCapital.InexactFloat64()}

	final := initialCapital.InexactFloat64()
	if len(equity) > 0 {
		final = equity[len(equity)-1].Equity.InexactFloat64()
	}
	m.FinalCapital = final
	m.PeakCapital = peakEquity(equity, m.InitialCapital)

	if len(trades) == 0 {
		return m
	}

	m.computeReturns(equity, final, t0, t1)
	m.computeDrawdown(equity)
	m.computeRisk(equity)
	m.computeTradeStats(trades)
	m.computeExposure(trades, t0, t1)

	for _, t := range trades {
		m.TotalCommission += t.Commission.InexactFloat64()
	}

	return m
}

func peakEquity(equity []EquityPoint, initial float64) float64 {
	peak := initial
	for _, p := range equity {
		if e := p.Equity.InexactFloat64(); e > peak {
			peak = e
		}
	}
	return peak
}

func (m *Metrics) computeReturns(equity []EquityPoint, final float64, t0, t1 ohlcv.TimeMs) {
	initial := m.InitialCapital
	if initial == 0 {
		return
	}
	m.TotalReturnPercent = (final/initial - 1) * 100
	m.TotalReturnAbs = final - initial

	years := float64(t1-t0) / msPerYear
	if years > 0 && final > 0 {
		m.CAGR = (math.Pow(final/initial, 1/years) - 1) * 100
	} else {
		m.CAGR = m.TotalReturnPercent
	}

	m.MonthlyAvgReturn = monthlyAverageReturn(equity)
}

// monthlyAverageReturn averages the month-over-month change of each month's
// closing equity.
func monthlyAverageReturn(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}

	type bucket struct {
		key int
		end float64
	}
	var buckets []bucket
	for _, p := range equity {
		t := p.Timestamp.Time()
		key := t.Year()*12 + int(t.Month())
		e := p.Equity.InexactFloat64()
		if len(buckets) > 0 && buckets[len(buckets)-1].key == key {
			buckets[len(buckets)-1].end = e
		} else {
			buckets = append(buckets, bucket{key: key, end: e})
		}
	}
	if len(buckets) < 2 {
		return 0
	}

	sum := 0.0
	for i := 1; i < len(buckets); i++ {
		prev := buckets[i-1].end
		if prev != 0 {
			sum += (buckets[i].end - prev) / prev * 100
		}
	}
	return sum / float64(len(buckets)-1)
}

func (m *Metrics) computeDrawdown(equity []EquityPoint) {
	peak := m.InitialCapital
	var ddStart ohlcv.TimeMs
	inDrawdown := false

	for _, p := range equity {
		e := p.Equity.InexactFloat64()
		if e > peak {
			peak = e
		}

		dd := peak - e
		if dd > m.MaxDrawdownAbs {
			m.MaxDrawdownAbs = dd
		}
		if peak > 0 {
			if pct := dd / peak * 100; pct > m.MaxDrawdownPercent {
				m.MaxDrawdownPercent = pct
			}
		}

		if dd > 0 {
			if !inDrawdown {
				inDrawdown = true
				ddStart = p.Timestamp
			}
			if days := float64(p.Timestamp-ddStart) / msPerDay; days > m.MaxDrawdownDurationDays {
				m.MaxDrawdownDurationDays = days
			}
		} else {
			inDrawdown = false
		}
	}
}

func (m *Metrics) computeRisk(equity []EquityPoint) {
	if len(equity) < 2 {
		return
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity.InexactFloat64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (equity[i].Equity.InexactFloat64()-prev)/prev)
	}
	if len(returns) == 0 {
		return
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance, downside := 0.0, 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
		if r < 0 {
			downside += r * r
		}
	}
	stddev := math.Sqrt(variance / float64(len(returns)))
	downsideDev := math.Sqrt(downside / float64(len(returns)))

	annualReturn := mean * 365
	if stddev > 0 {
		m.SharpeRatio = annualReturn / (stddev * math.Sqrt(365))
	}
	if downsideDev > 0 {
		m.SortinoRatio = annualReturn / (downsideDev * math.Sqrt(365))
	}
	if m.MaxDrawdownPercent > 0 {
		m.CalmarRatio = m.CAGR / m.MaxDrawdownPercent
	}
}

func (m *Metrics) computeTradeStats(trades []simulator.Trade) {
	m.TotalTrades = len(trades)

	var grossProfit, grossLoss float64
	var winPctSum, lossPctSum, tradePctSum float64
	var streak int
	var lastWin bool

	for i, t := range trades {
		net := t.NetPnL.InexactFloat64()
		gross := t.GrossPnL.InexactFloat64()
		pct := t.GrossPnLPercent.InexactFloat64()
		tradePctSum += pct

		win := net > 0
		switch {
		case win:
			m.WinningTrades++
			winPctSum += pct
			if pct > m.LargestWinPercent {
				m.LargestWinPercent = pct
			}
		case net < 0:
			m.LosingTrades++
			lossPctSum += pct
			if pct < m.LargestLossPercent {
				m.LargestLossPercent = pct
			}
		}

		if gross > 0 {
			grossProfit += gross
		} else {
			grossLoss += -gross
		}

		if i == 0 || win != lastWin {
			streak = 1
		} else {
			streak++
		}
		lastWin = win
		if win && streak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = streak
		}
		if !win && streak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = streak
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100

	switch {
	case grossLoss > 0:
		m.ProfitFactor = JSONFloat(grossProfit / grossLoss)
	case grossProfit > 0:
		m.ProfitFactor = JSONFloat(math.Inf(1))
	default:
		m.ProfitFactor = 0
	}

	if m.WinningTrades > 0 {
		m.AvgWinPercent = winPctSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLossPercent = lossPctSum / float64(m.LosingTrades)
	}
	m.AvgTradePercent = tradePctSum / float64(m.TotalTrades)
}

func (m *Metrics) computeExposure(trades []simulator.Trade, t0, t1 ohlcv.TimeMs) {
	var longWins, shortWins int
	var holdingMs float64

	for _, t := range trades {
		holdingMs += float64(t.HoldingTimeMs)
		win := t.NetPnL.IsPositive()
		if t.Side == simulator.SideLong {
			m.LongTrades++
			if win {
				longWins++
			}
		} else {
			m.ShortTrades++
			if win {
				shortWins++
			}
		}
	}

	if m.LongTrades > 0 {
		m.LongWinRate = float64(longWins) / float64(m.LongTrades) * 100
	}
	if m.ShortTrades > 0 {
		m.ShortWinRate = float64(shortWins) / float64(m.ShortTrades) * 100
	}
	m.AvgHoldingTimeMinutes = holdingMs / float64(len(trades)) / 60_000
	if t1 > t0 {
		m.TimeInMarketPercent = holdingMs / float64(t1-t0) * 100
	}
}
