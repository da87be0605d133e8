package ohlcv

import (
	"fmt"
	"time"
)

// Timeframe is the period length of a candle, e.g. "4h".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF6h  Timeframe = "6h"
	TF12h Timeframe = "12h"
	TF1d  Timeframe = "1d"
	TF1w  Timeframe = "1w"
	TF1M  Timeframe = "1M"
)

const (
	minuteMs = int64(60 * 1000)
	hourMs   = 60 * minuteMs
	dayMs    = 24 * hourMs
)

// timeframeDurations maps every supported timeframe to its length in ms.
// 1M is treated as 30 days for alignment purposes.
var timeframeDurations = map[Timeframe]int64{
	TF1m:  minuteMs,
	TF3m:  3 * minuteMs,
	TF5m:  5 * minuteMs,
	TF15m: 15 * minuteMs,
	TF30m: 30 * minuteMs,
	TF1h:  hourMs,
	TF2h:  2 * hourMs,
	TF4h:  4 * hourMs,
	TF6h:  6 * hourMs,
	TF12h: 12 * hourMs,
	TF1d:  dayMs,
	TF1w:  7 * dayMs,
	TF1M:  30 * dayMs,
}

// Timeframes lists the supported timeframes in ascending order.
var Timeframes = []Timeframe{
	TF1m, TF3m, TF5m, TF15m, TF30m,
	TF1h, TF2h, TF4h, TF6h, TF12h,
	TF1d, TF1w, TF1M,
}

// ParseTimeframe validates a timeframe tag.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// IsValid reports whether the timeframe is one of the supported tags.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// DurationMs returns the timeframe length in milliseconds. Zero for unknown
// timeframes.
func (tf Timeframe) DurationMs() int64 {
	return timeframeDurations[tf]
}

// Duration returns the timeframe length as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.DurationMs()) * time.Millisecond
}

// Align floors a timestamp to the start of its period on this timeframe.
func (tf Timeframe) Align(ts TimeMs) TimeMs {
	d := tf.DurationMs()
	if d == 0 {
		return ts
	}
	return TimeMs(int64(ts) / d * d)
}

// PeriodCount returns the number of period starts of this timeframe inside
// the inclusive range [from, to]. Both bounds are aligned first.
func (tf Timeframe) PeriodCount(from, to TimeMs) int {
	d := tf.DurationMs()
	if d == 0 || to < from {
		return 0
	}
	start := int64(tf.Align(from))
	end := int64(tf.Align(to))
	return int((end-start)/d) + 1
}
