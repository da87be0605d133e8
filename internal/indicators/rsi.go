package indicators

import (
	"fmt"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// RSI is the Relative Strength Index with Wilder smoothing of average gains
// and losses. Warmup is period+1 candles: the first change consumes one.
type RSI struct{}

func (*RSI) Name() string { return "RSI" }

func (*RSI) Params() []Param {
	return []Param{
		{Name: "period", Type: "int", Default: 14, Min: 2, Max: 500, Step: 1},
		sourceParam,
	}
}

func (r *RSI) Validate(params Params) error {
	return validateParams(r.Params(), params)
}

func (*RSI) RequiredWarmup(params Params) int {
	return params.Int("period", 14) + 1
}

func (r *RSI) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := r.Validate(params); err != nil {
		return nil, fmt.Errorf("RSI: %w", err)
	}

	period := params.Int("period", 14)
	values := SourceValues(series, params.Source())
	out := nullValues(len(values))
	if len(values) < period+1 {
		return &Output{Values: out}, nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	n := float64(period)
	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(n-1) + gain) / n
		avgLoss = (avgLoss*(n-1) + loss) / n
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return &Output{Values: out}, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
