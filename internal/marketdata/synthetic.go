package marketdata

import (
	"math"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// SyntheticGenerator generates deterministic 1m candles when no exchange is
// reachable and for tests. The same seed always produces the same series.
//
// A linear congruential generator drives a regime-switching geometric random
// walk: volatility regimes with their own bands, plus occasional changes of
// trend strength.
type SyntheticGenerator struct {
	seed      uint32
	basePrice float64
}

// NewSyntheticGenerator creates a generator with the given seed and a base
// price for fresh series.
func NewSyntheticGenerator(seed uint32, basePrice float64) *SyntheticGenerator {
	if basePrice <= 0 {
		basePrice = 50_000
	}
	return &SyntheticGenerator{seed: seed, basePrice: basePrice}
}

// lcg is the per-series random state.
type lcg struct {
	state uint32
}

// next advances the generator: state <- state*1664525 + 1013904223 mod 2^32.
func (r *lcg) next() uint32 {
	r.state = r.state*1_664_525 + 1_013_904_223
	return r.state
}

// float returns a uniform value in [0, 1).
func (r *lcg) float() float64 {
	return float64(r.next()) / float64(1<<32)
}

// gaussian draws a standard normal value via Box-Muller.
func (r *lcg) gaussian() float64 {
	u1 := r.float()
	u2 := r.float()
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Volatility bands per regime, as fractional per-minute moves.
var regimeVolatility = []float64{0.0004, 0.0012, 0.0035}

// Generate produces the aligned 1m series covering [from, to] inclusive.
func (s *SyntheticGenerator) Generate(symbol string, from, to ohlcv.TimeMs) []ohlcv.Candle {
	from = ohlcv.TF1m.Align(from)
	to = ohlcv.TF1m.Align(to)
	if to < from {
		return nil
	}

	// Mix the symbol into the seed so different symbols diverge while each
	// stays deterministic.
	state := s.seed
	for _, b := range []byte(symbol) {
		state = state*31 + uint32(b)
	}
	rng := &lcg{state: state}

	n := ohlcv.TF1m.PeriodCount(from, to)
	series := make([]ohlcv.Candle, 0, n)

	price := s.basePrice * (0.8 + 0.4*rng.float())
	regime := int(rng.next() % uint32(len(regimeVolatility)))
	trend := (rng.float() - 0.5) * 0.0004

	for ts := from; ts <= to; ts += ohlcv.TimeMs(ohlcv.TF1m.DurationMs()) {
		// Occasional regime switches and trend-strength changes.
		if rng.float() < 0.005 {
			regime = int(rng.next() % uint32(len(regimeVolatility)))
		}
		if rng.float() < 0.002 {
			trend = (rng.float() - 0.5) * 0.0004
		}

		vol := regimeVolatility[regime]
		ret := trend + vol*rng.gaussian()

		open := price
		price = open * (1 + ret)
		if price <= 0 {
			price = open
		}

		high := math.Max(open, price) * (1 + vol*rng.float())
		low := math.Min(open, price) * (1 - vol*rng.float())
		volume := 10 + 990*rng.float()*(1+50*math.Abs(ret))

		series = append(series, ohlcv.Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    volume,
		})
	}
	return series
}
