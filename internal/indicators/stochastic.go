package indicators

import (
	"fmt"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// Stochastic is the stochastic oscillator: raw %K located inside the rolling
// high/low range, smoothed into %K, then averaged into %D.
type Stochastic struct{}

func (*Stochastic) Name() string { return "STOCHASTIC" }

func (*Stochastic) Params() []Param {
	return []Param{
		{Name: "kPeriod", Type: "int", Default: 14, Min: 1, Max: 500, Step: 1},
		{Name: "dPeriod", Type: "int", Default: 3, Min: 1, Max: 500, Step: 1},
		{Name: "smooth", Type: "int", Default: 3, Min: 1, Max: 500, Step: 1},
	}
}

func (s *Stochastic) Validate(params Params) error {
	return validateParams(s.Params(), params)
}

func (*Stochastic) RequiredWarmup(params Params) int {
	return params.Int("kPeriod", 14) + params.Int("smooth", 3) + params.Int("dPeriod", 3) - 2
}

func (s *Stochastic) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := s.Validate(params); err != nil {
		return nil, fmt.Errorf("STOCHASTIC: %w", err)
	}

	kPeriod := params.Int("kPeriod", 14)
	raw := nullValues(len(series))
	for i := kPeriod - 1; i < len(series); i++ {
		maxHigh := series[i].High
		minLow := series[i].Low
		for j := i - kPeriod + 1; j < i; j++ {
			if series[j].High > maxHigh {
				maxHigh = series[j].High
			}
			if series[j].Low < minLow {
				minLow = series[j].Low
			}
		}
		if maxHigh == minLow {
			raw[i] = 50
		} else {
			raw[i] = (series[i].Close - minLow) / (maxHigh - minLow) * 100
		}
	}

	k := smaOver(raw, params.Int("smooth", 3))
	d := smaOver(k, params.Int("dPeriod", 3))

	records := make([]map[string]float64, len(series))
	for i := range series {
		if IsNull(k[i]) {
			continue
		}
		records[i] = map[string]float64{"k": k[i], "d": d[i]}
	}

	return &Output{Records: records, Lines: []string{"k", "d"}}, nil
}
