package indicators

import (
	"fmt"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// PivotPoints computes classic floor-trader pivot levels from the previous
// candle. Five variants are supported; all but demark expose R1..R5 / S1..S5,
// extending past their textbook levels by continuing the last level spacing.
// DeMark defines only PP, R1 and S1.
type PivotPoints struct{}

var pivotLineNames = []string{
	"PP",
	"R1", "R2", "R3", "R4", "R5",
	"S1", "S2", "S3", "S4", "S5",
}

func (*PivotPoints) Name() string { return "PIVOT_POINTS" }

func (*PivotPoints) Params() []Param {
	return []Param{
		{
			Name: "variant", Type: "string", Default: "traditional",
			Options: []string{"traditional", "fibonacci", "camarilla", "woodie", "demark"},
		},
	}
}

func (p *PivotPoints) Validate(params Params) error {
	return validateParams(p.Params(), params)
}

func (*PivotPoints) RequiredWarmup(params Params) int {
	// The first candle has no predecessor to derive levels from.
	return 2
}

func (p *PivotPoints) Calculate(series []ohlcv.Candle, params Params) (*Output, error) {
	if err := p.Validate(params); err != nil {
		return nil, fmt.Errorf("PIVOT_POINTS: %w", err)
	}

	variant := params.String("variant", "traditional")
	records := make([]map[string]float64, len(series))
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		records[i] = pivotLevels(variant, prev)
	}

	return &Output{Records: records, Lines: pivotLineNames}, nil
}

// pivotLevels derives the level record for one candle from its predecessor.
func pivotLevels(variant string, prev ohlcv.Candle) map[string]float64 {
	h, l, c, o := prev.High, prev.Low, prev.Close, prev.Open
	rng := h - l

	var pp float64
	var resistances, supports []float64

	switch variant {
	case "fibonacci":
		pp = (h + l + c) / 3
		resistances = []float64{pp + 0.382*rng, pp + 0.618*rng, pp + rng}
		supports = []float64{pp - 0.382*rng, pp - 0.618*rng, pp - rng}

	case "camarilla":
		pp = (h + l + c) / 3
		resistances = []float64{
			c + rng*1.1/12,
			c + rng*1.1/6,
			c + rng*1.1/4,
			c + rng*1.1/2,
		}
		supports = []float64{
			c - rng*1.1/12,
			c - rng*1.1/6,
			c - rng*1.1/4,
			c - rng*1.1/2,
		}

	case "woodie":
		pp = (h + l + 2*c) / 4
		resistances = []float64{2*pp - l, pp + rng}
		supports = []float64{2*pp - h, pp - rng}

	case "demark":
		var x float64
		switch {
		case c < o:
			x = h + 2*l + c
		case c > o:
			x = 2*h + l + c
		default:
			x = h + l + 2*c
		}
		pp = x / 4
		rec := map[string]float64{"PP": pp, "R1": x/2 - l, "S1": x/2 - h}
		for _, name := range pivotLineNames[2:] {
			if name != "R1" && name != "S1" {
				rec[name] = Null()
			}
		}
		return rec

	default: // traditional
		pp = (h + l + c) / 3
		resistances = []float64{2*pp - l, pp + rng, h + 2*(pp-l)}
		supports = []float64{2*pp - h, pp - rng, l - 2*(h-pp)}
	}

	resistances = extendLevels(resistances, pp, 5)
	supports = extendLevels(supports, pp, 5)

	rec := map[string]float64{"PP": pp}
	for i := 0; i < 5; i++ {
		rec[fmt.Sprintf("R%d", i+1)] = resistances[i]
		rec[fmt.Sprintf("S%d", i+1)] = supports[i]
	}
	return rec
}

// extendLevels continues a level ladder out to n entries by repeating the
// spacing between the last two defined levels.
func extendLevels(levels []float64, pp float64, n int) []float64 {
	for len(levels) < n {
		var step float64
		if len(levels) >= 2 {
			step = levels[len(levels)-1] - levels[len(levels)-2]
		} else {
			step = levels[len(levels)-1] - pp
		}
		levels = append(levels, levels[len(levels)-1]+step)
	}
	return levels
}
