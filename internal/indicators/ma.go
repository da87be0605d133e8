package indicators

import (
	"fmt"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// firstFinite returns the index of the first non-null value, or len(values).
func firstFinite(values []float64) int {
	for i, v := range values {
		if !IsNull(v) {
			return i
		}
	}
	return len(values)
}

// smaOver computes an aligned simple moving average. Leading nulls in the
// input shift the warmup accordingly; the first period-1 computable entries
// stay null.
func smaOver(values []float64, period int) []float64 {
	out := nullValues(len(values))
	if period <= 0 {
		return out
	}
	start := firstFinite(values)
	sum := 0.0
	for i := start; i < len(values); i++ {
		sum += values[i]
		if i-start >= period {
			sum -= values[i-period]
		}
		if i-start >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// emaOver computes an aligned exponential moving average seeded by the SMA of
// the first period values.
func emaOver(values []float64, period int) []float64 {
	out := nullValues(len(values))
	if period <= 0 {
		return out
	}
	start := firstFinite(values)
	if len(values)-start < period {
		return out
	}

	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	seed := start + period - 1
	out[seed] = sum / float64(period)

	alpha := 2.0 / float64(period+1)
	for i := seed + 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// smmaOver computes an aligned smoothed (Wilder) moving average, seeded by
// SMA like emaOver.
func smmaOver(values []float64, period int) []float64 {
	out := nullValues(len(values))
	if period <= 0 {
		return out
	}
	start := firstFinite(values)
	if len(values)-start < period {
		return out
	}

	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	seed := start + period - 1
	out[seed] = sum / float64(period)

	n := float64(period)
	for i := seed + 1; i < len(values); i++ {
		out[i] = (out[i-1]*(n-1) + values[i]) / n
	}
	return out
}

// SMA is the simple moving average of the chosen price source.
type SMA struct{}

func (*SMA) Name() string { return "SMA" }

func (*SMA) Params() []Param {
	return []Param{
		{Name: "period", Type: "int", Default: 20, Min: 1, Max: 1000, Step: 1},
		sourceParam,
	}
}

func (s *SMA) Validate(params Params) error {
	return validateParams(s.Params(), params)
}

func (*SMA) RequiredWarmup(params Params) int {
	return params.Int("period", 20)
}

func (s *SMA) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := s.Validate(params); err != nil {
		return nil, fmt.Errorf("SMA: %w", err)
	}
	values := SourceValues(series, params.Source())
	return &Output{Values: smaOver(values, params.Int("period", 20))}, nil
}

// EMA is the exponential moving average of the chosen price source.
type EMA struct{}

func (*EMA) Name() string { return "EMA" }

func (*EMA) Params() []Param {
	return []Param{
		{Name: "period", Type: "int", Default: 20, Min: 1, Max: 1000, Step: 1},
		sourceParam,
	}
}

func (e *EMA) Validate(params Params) error {
	return validateParams(e.Params(), params)
}

func (*EMA) RequiredWarmup(params Params) int {
	return params.Int("period", 20)
}

func (e *EMA) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := e.Validate(params); err != nil {
		return nil, fmt.Errorf("EMA: %w", err)
	}
	values := SourceValues(series, params.Source())
	return &Output{Values: emaOver(values, params.Int("period", 20))}, nil
}

// SMMA is the smoothed (Wilder) moving average of the chosen price source.
type SMMA struct{}

func (*SMMA) Name() string { return "SMMA" }

func (*SMMA) Params() []Param {
	return []Param{
		{Name: "period", Type: "int", Default: 14, Min: 1, Max: 1000, Step: 1},
		sourceParam,
	}
}

func (s *SMMA) Validate(params Params) error {
	return validateParams(s.Params(), params)
}

func (*SMMA) RequiredWarmup(params Params) int {
	return params.Int("period", 14)
}

func (s *SMMA) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := s.Validate(params); err != nil {
		return nil, fmt.Errorf("SMMA: %w", err)
	}
	values := SourceValues(series, params.Source())
	return &Output{Values: smmaOver(values, params.Int("period", 14))}, nil
}

// VolumeSMA is the simple moving average of volume.
type VolumeSMA struct{}

func (*VolumeSMA) Name() string { return "VOLUME_SMA" }

func (*VolumeSMA) Params() []Param {
	return []Param{{Name: "period", Type: "int", Default: 20, Min: 1, Max: 1000, Step: 1}}
}

func (v *VolumeSMA) Validate(params Params) error {
	return validateParams(v.Params(), params)
}

func (*VolumeSMA) RequiredWarmup(params Params) int {
	return params.Int("period", 20)
}

func (v *VolumeSMA) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := v.Validate(params); err != nil {
		return nil, fmt.Errorf("VOLUME_SMA: %w", err)
	}
	values := SourceValues(series, SourceVolume)
	return &Output{Values: smaOver(values, params.Int("period", 20))}, nil
}
