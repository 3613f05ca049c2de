// Package ledger provides the Postgres-backed progress ledger: one row per
// known identifier, tracking what has been attempted.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmei/steamscout/internal/catalog"
)

// seedChunkSize bounds how many ids one seed statement carries.
const seedChunkSize = 10_000

// querier is the subset of pgxpool.Pool the store needs; pgxmock satisfies
// it for tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the Postgres connection pool backing the ledger.
type Config struct {
	DSN          string
	MaxConns     int32
	MinConns     int32
	RetryCeiling int
}

// Store implements catalog.Ledger on Postgres.
type Store struct {
	pool    querier
	ceiling int
	clock   catalog.Clock
}

// New connects a pool and returns a Store. Run Migrate first.
func New(ctx context.Context, cfg Config, clock catalog.Clock) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.RetryCeiling, clock)
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool querier, retryCeiling int, clock catalog.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if retryCeiling <= 0 {
		retryCeiling = 3
	}
	return &Store{pool: pool, ceiling: retryCeiling, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Seed inserts previously unknown ids, leaving existing rows untouched.
// Returns the number of rows added.
func (s *Store) Seed(ctx context.Context, ids []catalog.AppID) (int, error) {
	const query = `
INSERT INTO apps (appid)
SELECT unnest($1::bigint[])
ON CONFLICT (appid) DO NOTHING`

	added := 0
	for start := 0; start < len(ids); start += seedChunkSize {
		end := start + seedChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := make([]int64, 0, end-start)
		for _, id := range ids[start:end] {
			chunk = append(chunk, int64(id))
		}
		tag, err := s.pool.Exec(ctx, query, chunk)
		if err != nil {
			return added, fmt.Errorf("seed apps: %w: %w", catalog.ErrPersistence, err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// Count returns the number of known identifiers.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM apps`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count apps: %w: %w", catalog.ErrPersistence, err)
	}
	return n, nil
}

// SelectDiscoveryBatch returns up to n never-fetched ids, ascending.
// Rows force-closed by the retry ceiling carry classified = TRUE and are
// excluded even though they were never fetched.
func (s *Store) SelectDiscoveryBatch(ctx context.Context, n int) ([]catalog.AppID, error) {
	const query = `
SELECT appid FROM apps
WHERE fetched = FALSE AND classified = FALSE
ORDER BY appid ASC
LIMIT $1`

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("select discovery batch: %w: %w", catalog.ErrPersistence, err)
	}
	return scanIDs(rows)
}

// SelectClassifyBatch returns up to n fetched game ids with a missing or
// stale classification, ascending. retry_count = 0 restricts the staleness
// re-check to genuine successes, so ceiling-closed rows never reappear.
func (s *Store) SelectClassifyBatch(ctx context.Context, n int, staleBefore time.Time) ([]catalog.AppID, error) {
	const query = `
SELECT appid FROM apps
WHERE fetched = TRUE AND is_game = TRUE
  AND (classified = FALSE OR (retry_count = 0 AND last_updated < $2))
ORDER BY appid ASC
LIMIT $1`

	rows, err := s.pool.Query(ctx, query, n, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("select classify batch: %w: %w", catalog.ErrPersistence, err)
	}
	return scanIDs(rows)
}

// MarkFetched records a successful detail fetch for id.
func (s *Store) MarkFetched(ctx context.Context, id catalog.AppID, isGame bool) error {
	const query = `
UPDATE apps SET fetched = TRUE, is_game = $2, last_updated = $3
WHERE appid = $1`

	if _, err := s.pool.Exec(ctx, query, int64(id), isGame, s.clock.Now()); err != nil {
		return fmt.Errorf("mark fetched %d: %w: %w", id, catalog.ErrPersistence, err)
	}
	return nil
}

// MarkClassified records a successful classification and resets the retry
// counter.
func (s *Store) MarkClassified(ctx context.Context, id catalog.AppID, isGame bool) error {
	const query = `
UPDATE apps SET fetched = TRUE, classified = TRUE, is_game = $2,
	retry_count = 0, last_updated = $3
WHERE appid = $1`

	if _, err := s.pool.Exec(ctx, query, int64(id), isGame, s.clock.Now()); err != nil {
		return fmt.Errorf("mark classified %d: %w: %w", id, catalog.ErrPersistence, err)
	}
	return nil
}

// RecordFailure bumps the retry counter; reaching the ceiling forces the
// row closed so total work per identifier stays bounded. classified never
// transitions back to FALSE here.
func (s *Store) RecordFailure(ctx context.Context, id catalog.AppID) (int, bool, error) {
	const query = `
UPDATE apps SET retry_count = retry_count + 1,
	classified = classified OR (retry_count + 1 >= $2),
	last_updated = $3
WHERE appid = $1
RETURNING retry_count, classified`

	var retries int
	var closed bool
	err := s.pool.QueryRow(ctx, query, int64(id), s.ceiling, s.clock.Now()).Scan(&retries, &closed)
	if err != nil {
		return 0, false, fmt.Errorf("record failure %d: %w: %w", id, catalog.ErrPersistence, err)
	}
	return retries, closed, nil
}

func scanIDs(rows pgx.Rows) ([]catalog.AppID, error) {
	defer rows.Close()

	var ids []catalog.AppID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan appid: %w: %w", catalog.ErrPersistence, err)
		}
		ids = append(ids, catalog.AppID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch rows: %w: %w", catalog.ErrPersistence, err)
	}
	return ids, nil
}
