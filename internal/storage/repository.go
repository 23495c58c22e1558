// Package storage keeps cached per-day emissions in PostgreSQL so they
// survive restarts and are shared between instances.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adcarbon/internal/cache"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createCacheTableSQL = `CREATE TABLE IF NOT EXISTS emission_cache (
        cache_key  TEXT PRIMARY KEY,
        payload    JSONB NOT NULL,
        expires_at TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createExpiryIndexSQL = `CREATE INDEX IF NOT EXISTS emission_cache_expires_at_idx
    ON emission_cache (expires_at);`

	getEntrySQL = `SELECT payload
    FROM emission_cache
    WHERE cache_key = $1
      AND expires_at > $2;`

	upsertEntrySQL = `INSERT INTO emission_cache (
        cache_key,
        payload,
        expires_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (cache_key) DO UPDATE
    SET
        payload    = EXCLUDED.payload,
        expires_at = EXCLUDED.expires_at,
        created_at = now();`

	purgeExpiredSQL = `DELETE FROM emission_cache WHERE expires_at <= $1;`

	countLiveSQL = `SELECT COUNT(*) FROM emission_cache WHERE expires_at > $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is a cache.Store backed by the emission_cache table.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
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

// EnsureSchema creates the cache table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createCacheTableSQL); err != nil {
		return fmt.Errorf("create emission_cache: %w", err)
	}
	if _, err := pool.Exec(ctx, createExpiryIndexSQL); err != nil {
		return fmt.Errorf("create emission_cache index: %w", err)
	}
	return nil
}

// Get returns the payload of a live row.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	if scanErr := pool.QueryRow(ctx, getEntrySQL, key, s.now().UTC()).Scan(&payload); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cache entry: %w", scanErr)
	}
	return payload, true, nil
}

// Set upserts a row expiring after ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	expiresAt := s.now().UTC().Add(ttl)
	if _, execErr := pool.Exec(ctx, upsertEntrySQL, key, value, expiresAt); execErr != nil {
		return fmt.Errorf("upsert cache entry: %w", execErr)
	}
	return nil
}

// Purge deletes expired rows.
func (s *Store) Purge(ctx context.Context) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, purgeExpiredSQL, s.now().UTC())
	if execErr != nil {
		return 0, fmt.Errorf("purge expired entries: %w", execErr)
	}
	return int(cmdTag.RowsAffected()), nil
}

// CountEntries counts live rows.
func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countLiveSQL, s.now().UTC()).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count cache entries: %w", scanErr)
	}
	return count, nil
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
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ cache.Store    = (*Store)(nil)
	_ cache.Purger   = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
