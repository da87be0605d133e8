package marketdata

import (
	"fmt"
	"math"
	"sort"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// Aggregate groups 1m candles into the target timeframe: open of the first,
// close of the last, extreme high/low and summed volume per period, with the
// period start as the candle timestamp.
func Aggregate(oneMinute []ohlcv.Candle, target ohlcv.Timeframe) ([]ohlcv.Candle, error) {
	if !target.IsValid() || target.DurationMs()%ohlcv.TF1m.DurationMs() != 0 {
		return nil, fmt.Errorf("timeframe %q is not a multiple of one minute", target)
	}
	if len(oneMinute) == 0 {
		return nil, nil
	}

	groups := groupByPeriod(oneMinute, target)

	out := make([]ohlcv.Candle, 0, len(groups))
	for _, g := range groups {
		candle := ohlcv.Candle{
			Timestamp: g.start,
			Open:      g.members[0].Open,
			High:      g.members[0].High,
			Low:       g.members[0].Low,
			Close:     g.members[len(g.members)-1].Close,
		}
		for _, c := range g.members {
			if c.High > candle.High {
				candle.High = c.High
			}
			if c.Low < candle.Low {
				candle.Low = c.Low
			}
			candle.Volume += c.Volume
		}
		out = append(out, candle)
	}
	return out, nil
}

// Dynamics is the optional per-group intrabar context block computed by
// AggregateWithDynamics. Filters can consume it as extra signal input.
type Dynamics struct {
	Timestamp            ohlcv.TimeMs `json:"timestamp"`
	Velocity             float64      `json:"velocity"`             // price change per minute
	VelocityAcceleration float64      `json:"velocityAcceleration"` // change vs previous group
	VolumeSpike          bool         `json:"volumeSpike"`
	VolumeAboveMidPct    float64      `json:"volumeAboveMidPct"` // volume share traded above the period midprice
	BodyToWickRatio      float64      `json:"bodyToWickRatio"`
	ClosePositionInRange float64      `json:"closePositionInRange"`
	ConsecutiveDirection int          `json:"consecutiveDirection"` // trailing same-direction minute count
	IntrabarVolatility   float64      `json:"intrabarVolatility"`   // stddev of minute returns
	VolatilityClustering float64      `json:"volatilityClustering"` // second-half vs first-half volatility
	Reversals            int          `json:"reversals"`
	MaxIntrabarDrawdown  float64      `json:"maxIntrabarDrawdown"` // percent, off minute closes
	AvgCandleSize        float64      `json:"avgCandleSize"`
}

// AggregateWithDynamics aggregates like Aggregate and additionally derives
// the dynamics block for each group.
func AggregateWithDynamics(oneMinute []ohlcv.Candle, target ohlcv.Timeframe) ([]ohlcv.Candle, []Dynamics, error) {
	candles, err := Aggregate(oneMinute, target)
	if err != nil || len(candles) == 0 {
		return candles, nil, err
	}

	groups := groupByPeriod(oneMinute, target)
	minutes := float64(target.DurationMs()) / 60_000

	dynamics := make([]Dynamics, len(groups))
	var prevVelocity float64
	var prevVolumes []float64

	for i, g := range groups {
		agg := candles[i]
		d := Dynamics{Timestamp: g.start}

		d.Velocity = (agg.Close - agg.Open) / minutes
		if i > 0 {
			d.VelocityAcceleration = d.Velocity - prevVelocity
		}
		prevVelocity = d.Velocity

		// Volume spike: above twice the mean of preceding group volumes.
		if len(prevVolumes) > 0 {
			mean := 0.0
			for _, v := range prevVolumes {
				mean += v
			}
			mean /= float64(len(prevVolumes))
			d.VolumeSpike = agg.Volume > 2*mean
		}
		prevVolumes = append(prevVolumes, agg.Volume)

		mid := (agg.High + agg.Low) / 2
		var aboveMid float64
		for _, c := range g.members {
			if (c.High+c.Low)/2 > mid {
				aboveMid += c.Volume
			}
		}
		if agg.Volume > 0 {
			d.VolumeAboveMidPct = aboveMid / agg.Volume * 100
		}

		body := agg.Body()
		wick := agg.Range() - body
		if wick > 0 {
			d.BodyToWickRatio = body / wick
		} else if body > 0 {
			d.BodyToWickRatio = math.Inf(1)
		}

		if r := agg.Range(); r > 0 {
			d.ClosePositionInRange = (agg.Close - agg.Low) / r
		} else {
			d.ClosePositionInRange = 0.5
		}

		d.ConsecutiveDirection = trailingDirection(g.members)
		d.IntrabarVolatility, d.VolatilityClustering = intrabarVolatility(g.members)
		d.Reversals = reversalCount(g.members)
		d.MaxIntrabarDrawdown = maxCloseDrawdown(g.members)

		var sizeSum float64
		for _, c := range g.members {
			sizeSum += c.Range()
		}
		d.AvgCandleSize = sizeSum / float64(len(g.members))

		dynamics[i] = d
	}

	return candles, dynamics, nil
}

type periodGroup struct {
	start   ohlcv.TimeMs
	members []ohlcv.Candle
}

// groupByPeriod buckets sorted-or-unsorted 1m candles by aligned period
// start, returning groups in chronological order.
func groupByPeriod(oneMinute []ohlcv.Candle, target ohlcv.Timeframe) []periodGroup {
	sorted := make([]ohlcv.Candle, len(oneMinute))
	copy(sorted, oneMinute)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	var groups []periodGroup
	for _, c := range sorted {
		start := target.Align(c.Timestamp)
		if len(groups) == 0 || groups[len(groups)-1].start != start {
			groups = append(groups, periodGroup{start: start})
		}
		last := &groups[len(groups)-1]
		last.members = append(last.members, c)
	}
	return groups
}

// trailingDirection counts how many candles at the end of the group closed
// in the same direction, signed (+up, -down).
func trailingDirection(members []ohlcv.Candle) int {
	count := 0
	for i := len(members) - 1; i >= 0; i-- {
		c := members[i]
		if c.Close == c.Open {
			break
		}
		up := c.IsBullish()
		if count == 0 {
			if up {
				count = 1
			} else {
				count = -1
			}
			continue
		}
		if up && count > 0 {
			count++
		} else if !up && count < 0 {
			count--
		} else {
			break
		}
	}
	return count
}

// intrabarVolatility returns the stddev of minute close returns plus the
// second-half to first-half volatility ratio.
func intrabarVolatility(members []ohlcv.Candle) (vol, clustering float64) {
	if len(members) < 2 {
		return 0, 0
	}

	returns := make([]float64, 0, len(members)-1)
	for i := 1; i < len(members); i++ {
		prev := members[i-1].Close
		if prev != 0 {
			returns = append(returns, (members[i].Close-prev)/prev)
		}
	}

	vol = stddev(returns)
	half := len(returns) / 2
	if half > 0 {
		first := stddev(returns[:half])
		second := stddev(returns[half:])
		if first > 0 {
			clustering = second / first
		}
	}
	return vol, clustering
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	varSum := 0.0
	for _, v := range values {
		d := v - mean
		varSum += d * d
	}
	return math.Sqrt(varSum / float64(len(values)))
}

// reversalCount counts direction changes across minute closes.
func reversalCount(members []ohlcv.Candle) int {
	count := 0
	lastDir := 0
	for i := 1; i < len(members); i++ {
		diff := members[i].Close - members[i-1].Close
		dir := 0
		if diff > 0 {
			dir = 1
		} else if diff < 0 {
			dir = -1
		}
		if dir != 0 && lastDir != 0 && dir != lastDir {
			count++
		}
		if dir != 0 {
			lastDir = dir
		}
	}
	return count
}

// maxCloseDrawdown returns the largest peak-to-trough decline of minute
// closes inside the group, in percent.
func maxCloseDrawdown(members []ohlcv.Candle) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, c := range members {
		if c.Close > peak {
			peak = c.Close
		}
		if peak > 0 {
			if dd := (peak - c.Close) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
