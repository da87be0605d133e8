// Package marketdata turns "give me 1m candles for a symbol and range" into
// the minimum exchange work possible: a persistent candle cache with
// missing-range detection, an incremental fetcher, timeframe aggregation and
// a deterministic synthetic fallback.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// Metadata summarises what the cache holds per (symbol, timeframe).
type Metadata struct {
	Symbol         string
	Timeframe      ohlcv.Timeframe
	FirstTimestamp ohlcv.TimeMs
	LastTimestamp  ohlcv.TimeMs
	CandleCount    int64
	UpdatedAt      time.Time
}

// DeleteFilter selects candles to delete. Empty fields match everything.
type DeleteFilter struct {
	Symbol    string
	Timeframe ohlcv.Timeframe
}

// Store is the persistent candle cache contract. Implementations keep one
// row per (symbol, timeframe, timestamp) and maintain the per-pair metadata
// record alongside every upsert.
type Store interface {
	// ReadRange returns candles inside [from, to], sorted by timestamp.
	ReadRange(ctx context.Context, symbol string, tf ohlcv.Timeframe, from, to ohlcv.TimeMs) ([]ohlcv.Candle, error)
	// Timestamps returns only the timestamps inside [from, to], sorted.
	Timestamps(ctx context.Context, symbol string, tf ohlcv.Timeframe, from, to ohlcv.TimeMs) ([]ohlcv.TimeMs, error)
	// Upsert stores candles idempotently and updates metadata. Returns the
	// number of candles written.
	Upsert(ctx context.Context, symbol string, tf ohlcv.Timeframe, candles []ohlcv.Candle) (int, error)
	// DeleteMany removes candles matching the filter, along with stale
	// metadata. Returns the number of candles removed.
	DeleteMany(ctx context.Context, filter DeleteFilter) (int64, error)
	// Count returns the number of cached candles for the pair.
	Count(ctx context.Context, symbol string, tf ohlcv.Timeframe) (int64, error)
	// GetMetadata returns the metadata record, or nil when nothing is cached.
	GetMetadata(ctx context.Context, symbol string, tf ohlcv.Timeframe) (*Metadata, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// TimeRange is a contiguous inclusive range of period-aligned timestamps.
type TimeRange struct {
	From ohlcv.TimeMs
	To   ohlcv.TimeMs
}

// MissingRanges collapses the timestamps absent from existing within
// [from, to] (stepped by stepMs) into contiguous ranges. existing must be
// sorted ascending.
func MissingRanges(existing []ohlcv.TimeMs, from, to ohlcv.TimeMs, stepMs int64) []TimeRange {
	if stepMs <= 0 || to < from {
		return nil
	}

	have := make(map[ohlcv.TimeMs]bool, len(existing))
	for _, ts := range existing {
		have[ts] = true
	}

	var ranges []TimeRange
	var open *TimeRange
	for ts := from; ts <= to; ts += ohlcv.TimeMs(stepMs) {
		if have[ts] {
			if open != nil {
				ranges = append(ranges, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &TimeRange{From: ts, To: ts}
		} else {
			open.To = ts
		}
	}
	if open != nil {
		ranges = append(ranges, *open)
	}
	return ranges
}

// sortDedupe returns candles sorted by timestamp with duplicates removed
// (last write wins).
func sortDedupe(candles []ohlcv.Candle) []ohlcv.Candle {
	byTs := make(map[ohlcv.TimeMs]ohlcv.Candle, len(candles))
	for _, c := range candles {
		byTs[c.Timestamp] = c
	}
	out := make([]ohlcv.Candle, 0, len(byTs))
	for _, c := range byTs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
