// Package ohlcv defines the candlestick primitives shared by every layer:
// the Candle record, the Timeframe enum and period-alignment helpers.
package ohlcv

import "time"

// TimeMs is a Unix epoch timestamp in milliseconds. Keeping the unit in the
// type avoids silent seconds/milliseconds mixups at the cache and exchange
// boundaries.
type TimeMs int64

// MsFromTime converts a time.Time to TimeMs.
func MsFromTime(t time.Time) TimeMs {
	return TimeMs(t.UnixMilli())
}

// Time converts the timestamp back to a time.Time in UTC.
func (ts TimeMs) Time() time.Time {
	return time.UnixMilli(int64(ts)).UTC()
}

// Candle is one OHLCV bar. Timestamp is the period start, aligned to the
// candle's timeframe.
type Candle struct {
	Timestamp TimeMs
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// IsValid reports whether the bar satisfies low <= open,close <= high and has
// non-negative volume.
func (c Candle) IsValid() bool {
	if c.Volume < 0 {
		return false
	}
	if c.Low > c.High {
		return false
	}
	if c.Open < c.Low || c.Open > c.High {
		return false
	}
	if c.Close < c.Low || c.Close > c.High {
		return false
	}
	return true
}

// Range returns high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	d := c.Close - c.Open
	if d < 0 {
		return -d
	}
	return d
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}
