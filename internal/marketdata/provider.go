package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/tidewave/tidewave/internal/logger"
	"github.com/tidewave/tidewave/internal/ohlcv"
)

// Source is the abstract exchange read the provider consumes: one page of
// 1m candles from `since` onwards, at most `limit` entries.
type Source interface {
	FetchOHLCV(ctx context.Context, symbol string, tf ohlcv.Timeframe, since ohlcv.TimeMs, limit int) ([]ohlcv.Candle, error)
}

// FetchStats describes where the candles of one fetch came from.
type FetchStats struct {
	FromCache    int   `json:"fromCache"`
	FromAPI      int   `json:"fromApi"`
	SavedToCache int   `json:"savedToCache"`
	TotalTimeMs  int64 `json:"totalTimeMs"`
}

// ProgressFunc receives per-batch progress while a download runs. loaded and
// total may be -1 when unknown.
type ProgressFunc func(message string, loaded, total int)

// Download states.
const (
	DownloadRunning   = "running"
	DownloadCompleted = "completed"
	DownloadFailed    = "failed"
)

// DownloadStatus is the queryable state of a symbol's in-flight download.
type DownloadStatus struct {
	State   string `json:"state"`
	Loaded  int    `json:"loaded"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	fetchBatchLimit  = 200
	upsertBufferSize = 1_000
	interPageDelay   = 100 * time.Millisecond
	fetchAttempts    = 3
)

// Provider serves 1m candle ranges, reading the cache first and filling the
// gaps from the exchange. The cache is best effort: when it is unavailable
// the provider streams straight from the exchange.
type Provider struct {
	store  Store
	source Source
	log    *logger.Logger

	// DisableCache bypasses the store entirely (dataSource=exchange).
	DisableCache bool

	// pageDelay can be shortened in tests. Never below zero.
	pageDelay time.Duration

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
	statuses map[string]*DownloadStatus
}

// NewProvider builds a provider. store may be nil when no cache exists.
func NewProvider(store Store, source Source, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Default()
	}
	return &Provider{
		store:     store,
		source:    source,
		log:       log.Component("data-provider"),
		pageDelay: interPageDelay,
		inflight:  make(map[string]*sync.Mutex),
		statuses:  make(map[string]*DownloadStatus),
	}
}

// Status returns the last known download status for a symbol.
func (p *Provider) Status(symbol string) (DownloadStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.statuses[symbol]
	if !ok {
		return DownloadStatus{}, false
	}
	return *st, true
}

// symbolLock serialises fetches per symbol: a second request for a symbol
// with a download in flight attaches behind it instead of fetching in
// parallel, and then finds its ranges already cached.
func (p *Provider) symbolLock(symbol string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.inflight[symbol]
	if !ok {
		lock = &sync.Mutex{}
		p.inflight[symbol] = lock
	}
	return lock
}

func (p *Provider) setStatus(symbol string, update DownloadStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[symbol] = &update
}

// FetchCandles returns the 1m candles for [from, to], downloading only the
// missing ranges. The returned stats describe the cache/API split.
func (p *Provider) FetchCandles(ctx context.Context, symbol string, from, to ohlcv.TimeMs, onProgress ProgressFunc) ([]ohlcv.Candle, FetchStats, error) {
	started := time.Now()
	from = ohlcv.TF1m.Align(from)
	to = ohlcv.TF1m.Align(to)

	lock := p.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	stats := FetchStats{}
	cacheUp := !p.DisableCache && p.store != nil && p.store.Ping(ctx) == nil

	if !cacheUp {
		candles, err := p.streamDirect(ctx, symbol, from, to, onProgress)
		if err != nil {
			return nil, stats, err
		}
		stats.FromAPI = len(candles)
		stats.TotalTimeMs = time.Since(started).Milliseconds()
		return candles, stats, nil
	}

	existing, err := p.store.Timestamps(ctx, symbol, ohlcv.TF1m, from, to)
	if err != nil {
		// Degrade to a direct fetch; the caller still gets candles.
		p.log.WithError(err).Warn("Cache read failed, fetching directly")
		candles, err := p.streamDirect(ctx, symbol, from, to, onProgress)
		if err != nil {
			return nil, stats, err
		}
		stats.FromAPI = len(candles)
		stats.TotalTimeMs = time.Since(started).Milliseconds()
		return candles, stats, nil
	}
	stats.FromCache = len(existing)

	missing := MissingRanges(existing, from, to, ohlcv.TF1m.DurationMs())
	if len(missing) > 0 {
		total := 0
		for _, r := range missing {
			total += ohlcv.TF1m.PeriodCount(r.From, r.To)
		}
		p.setStatus(symbol, DownloadStatus{State: DownloadRunning, Total: total})

		saved, fetched, err := p.downloadRanges(ctx, symbol, missing, total, onProgress)
		stats.FromAPI = fetched
		stats.SavedToCache = saved
		if err != nil {
			p.setStatus(symbol, DownloadStatus{State: DownloadFailed, Loaded: fetched, Total: total, Error: err.Error()})
			return nil, stats, err
		}
		p.setStatus(symbol, DownloadStatus{State: DownloadCompleted, Loaded: fetched, Total: total})
	}

	// The cache read yields a sorted, de-duplicated result.
	candles, err := p.store.ReadRange(ctx, symbol, ohlcv.TF1m, from, to)
	if err != nil {
		return nil, stats, fmt.Errorf("re-reading cached range: %w", err)
	}
	stats.TotalTimeMs = time.Since(started).Milliseconds()
	return candles, stats, nil
}

// downloadRanges pages the exchange over every missing range, buffering
// candles and flushing them to the cache in blocks.
func (p *Provider) downloadRanges(ctx context.Context, symbol string, missing []TimeRange, total int, onProgress ProgressFunc) (saved, fetched int, err error) {
	buffer := make([]ohlcv.Candle, 0, upsertBufferSize)

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		n, err := p.store.Upsert(ctx, symbol, ohlcv.TF1m, buffer)
		if err != nil {
			// Cache writes are best effort; the consumer still gets the data.
			p.log.WithError(err).Warn("Cache write failed, continuing without persistence")
		} else {
			saved += n
		}
		buffer = buffer[:0]
	}

	for _, r := range missing {
		err := p.pageRange(ctx, symbol, r, func(batch []ohlcv.Candle) {
			buffer = append(buffer, batch...)
			fetched += len(batch)
			p.setStatus(symbol, DownloadStatus{State: DownloadRunning, Loaded: fetched, Total: total})
			if onProgress != nil {
				onProgress(fmt.Sprintf("Downloaded %d/%d candles", fetched, total), fetched, total)
			}
			if len(buffer) >= upsertBufferSize {
				flush()
			}
		})
		if err != nil {
			flush()
			return saved, fetched, err
		}
	}
	flush()
	return saved, fetched, nil
}

// pageRange walks one missing range in fetch batches, advancing since past
// the last received candle and resting between pages.
func (p *Provider) pageRange(ctx context.Context, symbol string, r TimeRange, onBatch func([]ohlcv.Candle)) error {
	step := ohlcv.TF1m.DurationMs()
	since := r.From
	for since <= r.To {
		batch, err := p.fetchWithRetry(ctx, symbol, since, fetchBatchLimit)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil // exchange has nothing further
		}

		inRange := batch[:0:0]
		for _, c := range batch {
			if c.Timestamp >= r.From && c.Timestamp <= r.To {
				inRange = append(inRange, c)
			}
		}
		if len(inRange) > 0 {
			onBatch(inRange)
		}

		last := batch[len(batch)-1].Timestamp
		if last < since {
			return nil // no forward progress, stop paging
		}
		since = last + ohlcv.TimeMs(step)

		if since <= r.To && p.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pageDelay):
			}
		}
	}
	return nil
}

// fetchWithRetry retries transient exchange errors with exponential backoff
// before surfacing the failure.
func (p *Provider) fetchWithRetry(ctx context.Context, symbol string, since ohlcv.TimeMs, limit int) ([]ohlcv.Candle, error) {
	retry := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 2 * time.Second, Factor: 2}

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := p.source.FetchOHLCV(ctx, symbol, ohlcv.TF1m, since, limit)
		if err == nil {
			return batch, nil
		}
		lastErr = err
		p.log.WithError(err).Warn("Exchange fetch failed, retrying",
			"symbol", symbol, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry.Duration()):
		}
	}
	return nil, fmt.Errorf("exchange fetch failed after %d attempts: %w", fetchAttempts, lastErr)
}

// streamDirect fetches the whole range from the exchange without touching
// the cache.
func (p *Provider) streamDirect(ctx context.Context, symbol string, from, to ohlcv.TimeMs, onProgress ProgressFunc) ([]ohlcv.Candle, error) {
	total := ohlcv.TF1m.PeriodCount(from, to)
	p.setStatus(symbol, DownloadStatus{State: DownloadRunning, Total: total})

	var collected []ohlcv.Candle
	err := p.pageRange(ctx, symbol, TimeRange{From: from, To: to}, func(batch []ohlcv.Candle) {
		collected = append(collected, batch...)
		p.setStatus(symbol, DownloadStatus{State: DownloadRunning, Loaded: len(collected), Total: total})
		if onProgress != nil {
			onProgress(fmt.Sprintf("Downloaded %d/%d candles", len(collected), total), len(collected), total)
		}
	})
	if err != nil {
		p.setStatus(symbol, DownloadStatus{State: DownloadFailed, Loaded: len(collected), Total: total, Error: err.Error()})
		return nil, err
	}

	p.setStatus(symbol, DownloadStatus{State: DownloadCompleted, Loaded: len(collected), Total: total})
	return sortDedupe(collected), nil
}
