package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPriceSampleSQL = `INSERT INTO price_samples (
        sample_ts,
        pair,
        price,
        source,
        tick_id
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (pair, sample_ts) DO UPDATE
    SET
        price   = EXCLUDED.price,
        source  = EXCLUDED.source,
        tick_id = EXCLUDED.tick_id;`

	listSamplesBetweenSQL = `SELECT
        sample_ts,
        pair,
        price::text,
        source,
        tick_id,
        created_at
    FROM price_samples
    WHERE pair = $1
      AND sample_ts >= $2
      AND sample_ts < $3
    ORDER BY sample_ts;`

	listRecentSamplesSQL = `SELECT
        sample_ts,
        pair,
        price::text,
        source,
        tick_id,
        created_at
    FROM price_samples
    WHERE pair = $1
    ORDER BY sample_ts DESC
    LIMIT $2;`

	countSamplesSQL = `SELECT COUNT(*) FROM price_samples WHERE pair = $1;`

	insertAlertSQL = `INSERT INTO alerts (
        tick_id,
        sample_ts,
        pair,
        horizon,
        direction,
        change_pct,
        threshold_pct,
        reference_price,
        reference_ts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (pair, sample_ts, horizon) DO UPDATE
    SET direction       = EXCLUDED.direction,
        change_pct      = EXCLUDED.change_pct,
        threshold_pct   = EXCLUDED.threshold_pct,
        reference_price = EXCLUDED.reference_price,
        reference_ts    = EXCLUDED.reference_ts
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        tick_id,
        sample_ts,
        pair,
        horizon,
        direction,
        change_pct::text,
        threshold_pct::text,
        reference_price::text,
        reference_ts,
        created_at
    FROM alerts
    WHERE pair = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore persists tick observations. Stored samples are an audit log
// and are never loaded back into the rolling window.
type SampleStore interface {
	UpsertPriceSample(ctx context.Context, sample PriceSample) error
}

// AlertStore persists emitted alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to price samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres session advisory lock and
// returns a release func. The lock pins one pooled connection until release.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock dies with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertPriceSample persists or updates a price sample.
func (s *Store) UpsertPriceSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPriceSampleSQL,
		sample.SampleTS,
		sample.Pair,
		sample.Price.String(),
		sample.Source,
		sample.TickID,
	)
	if execErr != nil {
		return fmt.Errorf("upsert price sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples of pair within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, pair string, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, pair, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered by descending time.
func (s *Store) ListRecentSamples(ctx context.Context, pair string, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, pair, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// CountSamples counts stored samples of pair.
func (s *Store) CountSamples(ctx context.Context, pair string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL, pair).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert, returning it with id and created_at set.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.TickID,
		alert.SampleTS,
		alert.Pair,
		alert.Horizon,
		alert.Direction,
		alert.ChangePct.String(),
		alert.ThresholdPct.String(),
		alert.ReferencePrice.String(),
		alert.ReferenceTS,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts of pair.
func (s *Store) ListRecentAlerts(ctx context.Context, pair string, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, pair, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var changeStr, thresholdStr, referenceStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.TickID,
			&rec.SampleTS,
			&rec.Pair,
			&rec.Horizon,
			&rec.Direction,
			&changeStr,
			&thresholdStr,
			&referenceStr,
			&rec.ReferenceTS,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		if rec.ChangePct, err = parseDecimal("change pct", changeStr); err != nil {
			return nil, err
		}
		if rec.ThresholdPct, err = parseDecimal("threshold pct", thresholdStr); err != nil {
			return nil, err
		}
		if rec.ReferencePrice, err = parseDecimal("reference price", referenceStr); err != nil {
			return nil, err
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectSamples(rows pgx.Rows, capacity int) ([]PriceSample, error) {
	samples := make([]PriceSample, 0, capacity)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanPriceSample(rows pgx.Rows) (PriceSample, error) {
	var (
		sample   PriceSample
		priceStr string
	)

	if err := rows.Scan(
		&sample.SampleTS,
		&sample.Pair,
		&priceStr,
		&sample.Source,
		&sample.TickID,
		&sample.CreatedAt,
	); err != nil {
		return PriceSample{}, err
	}

	price, err := parseDecimal("price", priceStr)
	if err != nil {
		return PriceSample{}, err
	}
	sample.Price = price
	return sample, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}
