package indicators

import (
	"fmt"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// OBV is on-balance volume: the cumulative sum of volume signed by the close
// direction. An optional signal line is an SMA of the OBV itself
// (signalPeriod 0 disables it).
type OBV struct{}

func (*OBV) Name() string { return "OBV" }

func (*OBV) Params() []Param {
	return []Param{
		{Name: "signalPeriod", Type: "int", Default: 0, Min: 0, Max: 500, Step: 1},
	}
}

func (o *OBV) Validate(params Params) error {
	return validateParams(o.Params(), params)
}

func (*OBV) RequiredWarmup(params Params) int {
	if p := params.Int("signalPeriod", 0); p > 0 {
		return p
	}
	return 1
}

func (o *OBV) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := o.Validate(params); err != nil {
		return nil, fmt.Errorf("OBV: %w", err)
	}

	obv := make([]float64, len(series))
	cum := 0.0
	for i := range series {
		if i > 0 {
			switch {
			case series[i].Close > series[i-1].Close:
				cum += series[i].Volume
			case series[i].Close < series[i-1].Close:
				cum -= series[i].Volume
			}
		}
		obv[i] = cum
	}

	signalPeriod := params.Int("signalPeriod", 0)
	var signal []float64
	if signalPeriod > 0 {
		signal = smaOver(obv, signalPeriod)
	} else {
		signal = nullValues(len(series))
	}

	records := make([]map[string]float64, len(series))
	for i := range series {
		records[i] = map[string]float64{"obv": obv[i], "signal": signal[i]}
	}

	return &Output{Records: records, Lines: []string{"obv", "signal"}}, nil
}
