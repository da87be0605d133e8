package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/tidewave/tidewave/internal/ohlcv"
)

// LoadCSV reads candles from a CSV file with rows of
// timestamp,open,high,low,close,volume. Timestamps may be Unix seconds,
// Unix milliseconds or RFC3339; a header row is skipped automatically.
// Rows that do not parse are dropped.
func LoadCSV(path string) ([]ohlcv.Candle, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var candles []ohlcv.Candle
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading candle file: %w", err)
		}
		if len(record) < 6 {
			continue
		}

		candle, err := parseCSVRecord(record)
		if err != nil {
			continue // header or malformed row
		}
		candles = append(candles, candle)
	}

	return sortDedupe(candles), nil
}

func parseCSVRecord(record []string) (ohlcv.Candle, error) {
	ts, err := parseCSVTimestamp(record[0])
	if err != nil {
		return ohlcv.Candle{}, err
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return ohlcv.Candle{}, fmt.Errorf("invalid field %q", record[i+1])
		}
		fields[i] = v
	}

	return ohlcv.Candle{
		Timestamp: ts,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

func parseCSVTimestamp(s string) (ohlcv.TimeMs, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Heuristic: 13-digit values are already milliseconds.
		if ts > 10_000_000_000 {
			return ohlcv.TimeMs(ts), nil
		}
		return ohlcv.TimeMs(ts * 1000), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return ohlcv.MsFromTime(t), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ohlcv.MsFromTime(t), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return ohlcv.MsFromTime(t), nil
	}
	return 0, fmt.Errorf("unable to parse timestamp %q", s)
}
