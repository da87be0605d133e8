package indicators

import (
	"fmt"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// ADX is the Average Directional Index with +DI / -DI lines. Directional
// movement and true range are Wilder-smoothed over the period, DX is
// smoothed again into ADX, so full warmup is 2n candles.
type ADX struct{}

func (*ADX) Name() string { return "ADX" }

func (*ADX) Params() []Param {
	return []Param{{Name: "period", Type: "int", Default: 14, Min: 2, Max: 500, Step: 1}}
}

func (a *ADX) Validate(params Params) error {
	return validateParams(a.Params(), params)
}

func (*ADX) RequiredWarmup(params Params) int {
	return 2 * params.Int("period", 14)
}

func (a *ADX) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := a.Validate(params); err != nil {
		return nil, fmt.Errorf("ADX: %w", err)
	}

	period := params.Int("period", 14)
	records := make([]map[string]float64, len(series))
	if len(series) < period+1 {
		return &Output{Records: records, Lines: []string{"adx", "plusDI", "minusDI"}}, nil
	}

	n := float64(period)

	// Wilder-smoothed sums seeded over the first period movements.
	var smTR, smPlusDM, smMinusDM float64
	for i := 1; i <= period; i++ {
		tr, plusDM, minusDM := directionalMovement(series, i)
		smTR += tr
		smPlusDM += plusDM
		smMinusDM += minusDM
	}

	dx := nullValues(len(series))
	writeDI := func(i int) float64 {
		plusDI, minusDI := 0.0, 0.0
		if smTR > 0 {
			plusDI = smPlusDM / smTR * 100
			minusDI = smMinusDM / smTR * 100
		}
		records[i] = map[string]float64{"adx": Null(), "plusDI": plusDI, "minusDI": minusDI}
		sum := plusDI + minusDI
		if sum == 0 {
			return 0
		}
		diff := plusDI - minusDI
		if diff < 0 {
			diff = -diff
		}
		return diff / sum * 100
	}

	dx[period] = writeDI(period)
	for i := period + 1; i < len(series); i++ {
		tr, plusDM, minusDM := directionalMovement(series, i)
		smTR = smTR - smTR/n + tr
		smPlusDM = smPlusDM - smPlusDM/n + plusDM
		smMinusDM = smMinusDM - smMinusDM/n + minusDM
		dx[i] = writeDI(i)
	}

	// Second Wilder pass: ADX is the smoothed DX.
	if len(series) >= 2*period {
		sum := 0.0
		for i := period; i < 2*period; i++ {
			sum += dx[i]
		}
		adx := sum / n
		records[2*period-1]["adx"] = adx
		for i := 2 * period; i < len(series); i++ {
			adx = (adx*(n-1) + dx[i]) / n
			records[i]["adx"] = adx
		}
	}

	return &Output{Records: records, Lines: []string{"adx", "plusDI", "minusDI"}}, nil
}

// directionalMovement returns (trueRange, +DM, -DM) at index i.
func directionalMovement(series []ohlcv.Candle, i int) (tr, plusDM, minusDM float64) {
	upMove := series[i].High - series[i-1].High
	downMove := series[i-1].Low - series[i].Low
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}
	return trueRange(series, i), plusDM, minusDM
}
