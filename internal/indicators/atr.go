package indicators

import (
	"fmt"
	"math"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// trueRange computes the true range at index i (needs i >= 1).
func trueRange(series []ohlcv.Candle, i int) float64 {
	hl := series[i].High - series[i].Low
	hc := math.Abs(series[i].High - series[i-1].Close)
	lc := math.Abs(series[i].Low - series[i-1].Close)
	return math.Max(hl, math.Max(hc, lc))
}

// ATR is the Average True Range with Wilder smoothing. Warmup is period+1
// candles since the first true range needs a previous close.
type ATR struct{}

func (*ATR) Name() string { return "ATR" }

func (*ATR) Params() []Param {
	return []Param{{Name: "period", Type: "int", Default: 14, Min: 1, Max: 500, Step: 1}}
}

func (a *ATR) Validate(params Params) error {
	return validateParams(a.Params(), params)
}

func (*ATR) RequiredWarmup(params Params) int {
	return params.Int("period", 14) + 1
}

func (a *ATR) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := a.Validate(params); err != nil {
		return nil, fmt.Errorf("ATR: %w", err)
	}

	period := params.Int("period", 14)
	out := nullValues(len(series))
	if len(series) < period+1 {
		return &Output{Values: out}, nil
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(series, i)
	}
	atr := sum / float64(period)
	out[period] = atr

	n := float64(period)
	for i := period + 1; i < len(series); i++ {
		atr = (atr*(n-1) + trueRange(series, i)) / n
		out[i] = atr
	}

	return &Output{Values: out}, nil
}
