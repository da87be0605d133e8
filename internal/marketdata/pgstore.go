package marketdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidewave/tidewave/internal/logger"
	"github.com/tidewave/tidewave/internal/ohlcv"
)

// PgStore is the Postgres-backed candle cache. One row per
// (symbol, timeframe, timestamp); a candle_metadata row per pair is
// maintained in the same transaction as every upsert.
type PgStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// Schema is the DDL the store expects. Applied by EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT             NOT NULL,
	timeframe  TEXT             NOT NULL,
	timestamp  BIGINT           NOT NULL,
	open       DOUBLE PRECISION NOT NULL,
	high       DOUBLE PRECISION NOT NULL,
	low        DOUBLE PRECISION NOT NULL,
	close      DOUBLE PRECISION NOT NULL,
	volume     DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	PRIMARY KEY (symbol, timeframe, timestamp)
);

CREATE TABLE IF NOT EXISTS candle_metadata (
	symbol          TEXT        NOT NULL,
	timeframe       TEXT        NOT NULL,
	first_timestamp BIGINT      NOT NULL,
	last_timestamp  BIGINT      NOT NULL,
	candle_count    BIGINT      NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (symbol, timeframe)
);
`

// NewPgStore connects a pool to the cache database.
func NewPgStore(ctx context.Context, dsn string, log *logger.Logger) (*PgStore, error) {
	if log == nil {
		log = logger.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting candle cache: %w", err)
	}
	return &PgStore{pool: pool, log: log.Component("candle-cache")}, nil
}

// EnsureSchema creates the cache tables when absent.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensuring cache schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PgStore) Close() {
	s.pool.Close()
}

// Ping implements Store.
func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ReadRange implements Store.
func (s *PgStore) ReadRange(ctx context.Context, symbol string, tf ohlcv.Timeframe, from, to ohlcv.TimeMs) ([]ohlcv.Candle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, open, high, low, close, volume
		 FROM candles
		 WHERE symbol = $1 AND timeframe = $2 AND timestamp BETWEEN $3 AND $4
		 ORDER BY timestamp ASC`,
		symbol, string(tf), int64(from), int64(to),
	)
	if err != nil {
		return nil, fmt.Errorf("querying candles: %w", err)
	}
	defer rows.Close()

	var out []ohlcv.Candle
	for rows.Next() {
		var ts int64
		var c ohlcv.Candle
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scanning candle row: %w", err)
		}
		c.Timestamp = ohlcv.TimeMs(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Timestamps implements Store.
func (s *PgStore) Timestamps(ctx context.Context, symbol string, tf ohlcv.Timeframe, from, to ohlcv.TimeMs) ([]ohlcv.TimeMs, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp
		 FROM candles
		 WHERE symbol = $1 AND timeframe = $2 AND timestamp BETWEEN $3 AND $4
		 ORDER BY timestamp ASC`,
		symbol, string(tf), int64(from), int64(to),
	)
	if err != nil {
		return nil, fmt.Errorf("querying candle timestamps: %w", err)
	}
	defer rows.Close()

	var out []ohlcv.TimeMs
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scanning timestamp row: %w", err)
		}
		out = append(out, ohlcv.TimeMs(ts))
	}
	return out, rows.Err()
}

// Upsert implements Store. Candles and the metadata record are written in
// one transaction; conflicting rows are replaced so re-fetches are
// idempotent.
func (s *PgStore) Upsert(ctx context.Context, symbol string, tf ohlcv.Timeframe, candles []ohlcv.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	first, last := candles[0].Timestamp, candles[0].Timestamp
	for _, c := range candles {
		if c.Timestamp < first {
			first = c.Timestamp
		}
		if c.Timestamp > last {
			last = c.Timestamp
		}
		batch.Queue(
			`INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE
			 SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			     close = EXCLUDED.close, volume = EXCLUDED.volume`,
			symbol, string(tf), int64(c.Timestamp),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range candles {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("upserting candle batch: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing candle batch: %w", err)
	}
	s.log.Debug("Upserted candle batch",
		"symbol", symbol, "timeframe", tf, "written", len(candles), "new", inserted)

	// Refresh metadata from the table itself; counting via insert tags
	// cannot distinguish updates from inserts.
	if _, err := tx.Exec(ctx,
		`INSERT INTO candle_metadata (symbol, timeframe, first_timestamp, last_timestamp, candle_count, updated_at)
		 SELECT $1, $2, MIN(timestamp), MAX(timestamp), COUNT(*), NOW()
		 FROM candles WHERE symbol = $1 AND timeframe = $2
		 ON CONFLICT (symbol, timeframe) DO UPDATE
		 SET first_timestamp = EXCLUDED.first_timestamp,
		     last_timestamp  = EXCLUDED.last_timestamp,
		     candle_count    = EXCLUDED.candle_count,
		     updated_at      = NOW()`,
		symbol, string(tf),
	); err != nil {
		return 0, fmt.Errorf("updating candle metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing upsert: %w", err)
	}
	return len(candles), nil
}

// DeleteMany implements Store.
func (s *PgStore) DeleteMany(ctx context.Context, filter DeleteFilter) (int64, error) {
	var conditions []string
	var args []any
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		conditions = append(conditions, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if filter.Timeframe != "" {
		args = append(args, string(filter.Timeframe))
		conditions = append(conditions, fmt.Sprintf("timeframe = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM candles"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting candles: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM candle_metadata"+where, args...); err != nil {
		return 0, fmt.Errorf("deleting candle metadata: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count implements Store.
func (s *PgStore) Count(ctx context.Context, symbol string, tf ohlcv.Timeframe) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM candles WHERE symbol = $1 AND timeframe = $2`,
		symbol, string(tf),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting candles: %w", err)
	}
	return count, nil
}

// GetMetadata implements Store.
func (s *PgStore) GetMetadata(ctx context.Context, symbol string, tf ohlcv.Timeframe) (*Metadata, error) {
	meta := &Metadata{Symbol: symbol, Timeframe: tf}
	var first, last int64
	err := s.pool.QueryRow(ctx,
		`SELECT first_timestamp, last_timestamp, candle_count, updated_at
		 FROM candle_metadata WHERE symbol = $1 AND timeframe = $2`,
		symbol, string(tf),
	).Scan(&first, &last, &meta.CandleCount, &meta.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying candle metadata: %w", err)
	}
	meta.FirstTimestamp = ohlcv.TimeMs(first)
	meta.LastTimestamp = ohlcv.TimeMs(last)
	return meta, nil
}
