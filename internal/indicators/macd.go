package indicators

import (
	"fmt"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// MACD produces the macd, signal and histogram lines. The macd line is
// EMA(fast) - EMA(slow); the signal line is an EMA of the macd line.
type MACD struct{}

func (*MACD) Name() string { return "MACD" }

func (*MACD) Params() []Param {
	return []Param{
		{Name: "fast", Type: "int", Default: 12, Min: 1, Max: 500, Step: 1},
		{Name: "slow", Type: "int", Default: 26, Min: 1, Max: 500, Step: 1},
		{Name: "signal", Type: "int", Default: 9, Min: 1, Max: 500, Step: 1},
		sourceParam,
	}
}

func (m *MACD) Validate(params Params) error {
	if err := validateParams(m.Params(), params); err != nil {
		return err
	}
	if params.Int("fast", 12) >= params.Int("slow", 26) {
		return fmt.Errorf("fast period must be below slow period")
	}
	return nil
}

func (*MACD) RequiredWarmup(params Params) int {
	return params.Int("slow", 26) + params.Int("signal", 9) - 1
}

func (m *MACD) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := m.Validate(params); err != nil {
		return nil, fmt.Errorf("MACD: %w", err)
	}

	values := SourceValues(series, params.Source())
	fast := emaOver(values, params.Int("fast", 12))
	slow := emaOver(values, params.Int("slow", 26))

	macdLine := nullValues(len(values))
	for i := range values {
		if !IsNull(fast[i]) && !IsNull(slow[i]) {
			macdLine[i] = fast[i] - slow[i]
		}
	}

	signalLine := emaOver(macdLine, params.Int("signal", 9))

	records := make([]map[string]float64, len(values))
	for i := range values {
		if IsNull(macdLine[i]) {
			continue
		}
		rec := map[string]float64{"macd": macdLine[i], "signal": Null(), "histogram": Null()}
		if !IsNull(signalLine[i]) {
			rec["signal"] = signalLine[i]
			rec["histogram"] = macdLine[i] - signalLine[i]
		}
		records[i] = rec
	}

	return &Output{Records: records, Lines: []string{"macd", "signal", "histogram"}}, nil
}
