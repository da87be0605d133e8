package marketdata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"

	"github.com/tidewave/tidewave/internal/logger"
	"github.com/tidewave/tidewave/internal/ohlcv"
)

// BinanceSource reads historical klines from Binance spot. Only market-data
// reads are used; no keys are required for them.
type BinanceSource struct {
	client *binance.Client
	log    *logger.Logger
}

// NewBinanceSource creates the exchange source. Keys may be empty for
// public kline reads; testnet flips the SDK to the sandbox endpoints.
func NewBinanceSource(apiKey, secretKey string, testnet bool, log *logger.Logger) *BinanceSource {
	if log == nil {
		log = logger.Default()
	}
	if testnet {
		binance.UseTestnet = true
	}
	return &BinanceSource{
		client: binance.NewClient(apiKey, secretKey),
		log:    log.Component("binance"),
	}
}

// FetchOHLCV implements Source: one page of candles from since onwards.
func (b *BinanceSource) FetchOHLCV(ctx context.Context, symbol string, tf ohlcv.Timeframe, since ohlcv.TimeMs, limit int) ([]ohlcv.Candle, error) {
	if limit <= 0 || limit > fetchBatchLimit {
		limit = fetchBatchLimit
	}

	svc := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(string(tf)).
		Limit(limit)
	if since > 0 {
		svc = svc.StartTime(int64(since))
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s klines: %w", symbol, tf, err)
	}

	out := make([]ohlcv.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := klineToCandle(k)
		if err != nil {
			b.log.WithError(err).Warn("Skipping malformed kline", "symbol", symbol)
			continue
		}
		out = append(out, candle)
	}
	return out, nil
}

func klineToCandle(k *binance.Kline) (ohlcv.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return ohlcv.Candle{}, fmt.Errorf("invalid open %q", k.Open)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return ohlcv.Candle{}, fmt.Errorf("invalid high %q", k.High)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return ohlcv.Candle{}, fmt.Errorf("invalid low %q", k.Low)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return ohlcv.Candle{}, fmt.Errorf("invalid close %q", k.Close)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return ohlcv.Candle{}, fmt.Errorf("invalid volume %q", k.Volume)
	}

	return ohlcv.Candle{
		Timestamp: ohlcv.TimeMs(k.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
