package indicators

import (
	"fmt"
	"math"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// Bollinger produces the upper, middle and lower bands plus bandwidth and %B.
// The middle band is an SMA, the bands sit k population standard deviations
// away. %B locates the source price inside the band.
type Bollinger struct{}

func (*Bollinger) Name() string { return "BOLLINGER" }

func (*Bollinger) Params() []Param {
	return []Param{
		{Name: "period", Type: "int", Default: 20, Min: 2, Max: 500, Step: 1},
		{Name: "stddev", Type: "float", Default: 2.0, Min: 0.1, Max: 10, Step: 0.1},
		sourceParam,
	}
}

func (b *Bollinger) Validate(params Params) error {
	return validateParams(b.Params(), params)
}

func (*Bollinger) RequiredWarmup(params Params) int {
	return params.Int("period", 20)
}

func (b *Bollinger) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := b.Validate(params); err != nil {
		return nil, fmt.Errorf("BOLLINGER: %w", err)
	}

	period := params.Int("period", 20)
	k := params.Float("stddev", 2.0)
	values := SourceValues(series, params.Source())
	middle := smaOver(values, period)

	records := make([]map[string]float64, len(values))
	for i := range values {
		if IsNull(middle[i]) {
			continue
		}

		// Population stddev over the trailing window.
		varSum := 0.0
		for j := i - period + 1; j <= i; j++ {
			diff := values[j] - middle[i]
			varSum += diff * diff
		}
		sigma := math.Sqrt(varSum / float64(period))

		upper := middle[i] + k*sigma
		lower := middle[i] - k*sigma

		bandwidth := Null()
		if middle[i] != 0 {
			bandwidth = (upper - lower) / middle[i] * 100
		}
		percentB := Null()
		if upper != lower {
			percentB = (values[i] - lower) / (upper - lower)
		}

		records[i] = map[string]float64{
			"upper":     upper,
			"middle":    middle[i],
			"lower":     lower,
			"bandwidth": bandwidth,
			"percentB":  percentB,
		}
	}

	return &Output{
		Records: records,
		Lines:   []string{"middle", "upper", "lower", "bandwidth", "percentB"},
	}, nil
}
