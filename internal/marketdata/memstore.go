package marketdata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// MemStore is an in-memory Store used by tests and as a last-resort cache
// when no database is configured. It satisfies the same contract as PgStore.
type MemStore struct {
	mu      sync.RWMutex
	candles map[pairKey]map[ohlcv.TimeMs]ohlcv.Candle
	now     func() time.Time
}

type pairKey struct {
	symbol    string
	timeframe ohlcv.Timeframe
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		candles: make(map[pairKey]map[ohlcv.TimeMs]ohlcv.Candle),
		now:     time.Now,
	}
}

// ReadRange implements Store.
func (m *MemStore) ReadRange(_ context.Context, symbol string, tf ohlcv.Timeframe, from, to ohlcv.TimeMs) ([]ohlcv.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ohlcv.Candle
	for ts, c := range m.candles[pairKey{symbol, tf}] {
		if ts >= from && ts <= to {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// Timestamps implements Store.
func (m *MemStore) Timestamps(_ context.Context, symbol string, tf ohlcv.Timeframe, from, to ohlcv.TimeMs) ([]ohlcv.TimeMs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ohlcv.TimeMs
	for ts := range m.candles[pairKey{symbol, tf}] {
		if ts >= from && ts <= to {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Upsert implements Store.
func (m *MemStore) Upsert(_ context.Context, symbol string, tf ohlcv.Timeframe, candles []ohlcv.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{symbol, tf}
	bucket := m.candles[key]
	if bucket == nil {
		bucket = make(map[ohlcv.TimeMs]ohlcv.Candle)
		m.candles[key] = bucket
	}
	for _, c := range candles {
		bucket[c.Timestamp] = c
	}
	return len(candles), nil
}

// DeleteMany implements Store.
func (m *MemStore) DeleteMany(_ context.Context, filter DeleteFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, bucket := range m.candles {
		if filter.Symbol != "" && key.symbol != filter.Symbol {
			continue
		}
		if filter.Timeframe != "" && key.timeframe != filter.Timeframe {
			continue
		}
		removed += int64(len(bucket))
		delete(m.candles, key)
	}
	return removed, nil
}

// Count implements Store.
func (m *MemStore) Count(_ context.Context, symbol string, tf ohlcv.Timeframe) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.candles[pairKey{symbol, tf}])), nil
}

// GetMetadata implements Store.
func (m *MemStore) GetMetadata(_ context.Context, symbol string, tf ohlcv.Timeframe) (*Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.candles[pairKey{symbol, tf}]
	if len(bucket) == 0 {
		return nil, nil
	}

	meta := &Metadata{
		Symbol:      symbol,
		Timeframe:   tf,
		CandleCount: int64(len(bucket)),
		UpdatedAt:   m.now(),
	}
	first := false
	for ts := range bucket {
		if !first {
			meta.FirstTimestamp, meta.LastTimestamp = ts, ts
			first = true
			continue
		}
		if ts < meta.FirstTimestamp {
			meta.FirstTimestamp = ts
		}
		if ts > meta.LastTimestamp {
			meta.LastTimestamp = ts
		}
	}
	return meta, nil
}

// Ping implements Store.
func (m *MemStore) Ping(context.Context) error { return nil }
