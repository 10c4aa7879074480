package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("history: pool not configured")

const (
	upsertRecordSQL = `INSERT INTO aggregations (
        category,
        period_start,
        series
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (category, period_start) DO UPDATE
    SET series = EXCLUDED.series;`

	getRecordSQL = `SELECT series
    FROM aggregations
    WHERE category = $1
      AND period_start = $2;`

	listRecentRecordsSQL = `SELECT category, period_start, series
    FROM aggregations
    WHERE category = $1
    ORDER BY period_start DESC
    LIMIT $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RecordStore defines read and idempotent-upsert access to history records.
type RecordStore interface {
	GetRecord(ctx context.Context, category string, periodStart int64) (*Record, error)
	PutRecord(ctx context.Context, rec Record) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists history records in PostgreSQL.
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

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetRecord fetches the record for the key, or nil when absent.
func (s *Store) GetRecord(ctx context.Context, category string, periodStart int64) (*Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var raw []byte
	scanErr := pool.QueryRow(ctx, getRecordSQL, category, periodStart).Scan(&raw)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("get record (%s, %d): %w", category, periodStart, scanErr)
	}

	rec := Record{Category: category, PeriodStart: periodStart}
	if err := json.Unmarshal(raw, &rec.Series); err != nil {
		return nil, fmt.Errorf("decode series (%s, %d): %w", category, periodStart, err)
	}
	return &rec, nil
}

// PutRecord upserts the whole record under its key. No partial update.
func (s *Store) PutRecord(ctx context.Context, rec Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(rec.Series)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}

	if _, execErr := pool.Exec(ctx, upsertRecordSQL, rec.Category, rec.PeriodStart, raw); execErr != nil {
		return fmt.Errorf("upsert record (%s, %d): %w", rec.Category, rec.PeriodStart, execErr)
	}
	return nil
}

// ListRecentRecords returns the newest records of a category, newest first.
func (s *Store) ListRecentRecords(ctx context.Context, category string, limit int) ([]Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRecordsSQL, category, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent records: %w", queryErr)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec Record
			raw []byte
		)
		if err := rows.Scan(&rec.Category, &rec.PeriodStart, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rec.Series); err != nil {
			return nil, fmt.Errorf("decode series (%s, %d): %w", rec.Category, rec.PeriodStart, err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in history package
		}
		conn.Release()
	}
	return unlock, true, nil
}

var _ RecordStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
