package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DefaultCacheTTL is how long a cached search result stays valid.
const DefaultCacheTTL = 600 * time.Second

// CacheRepo stores search results keyed by the raw query text.
// Entries expire after a fixed TTL; size control belongs to the retention sweep.
type CacheRepo struct {
	db  *DB
	ttl time.Duration
}

// Cache returns the cache repository backed by db. A non-positive ttl
// selects DefaultCacheTTL.
func (db *DB) Cache(ttl time.Duration) *CacheRepo {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheRepo{db: db, ttl: ttl}
}

// TTL returns the validity window of cache entries.
func (c *CacheRepo) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached result for key. An entry whose age has reached the
// TTL is deleted and reported as absent.
func (c *CacheRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var result string
	var ts int64
	err := c.db.QueryRowContext(ctx, `
		SELECT result, timestamp FROM cache WHERE query = ?
	`, key).Scan(&result, &ts)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cache: %w", err)
	}

	if c.db.now().Sub(time.UnixMilli(ts)) >= c.ttl {
		if err := c.Delete(ctx, key); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return result, true, nil
}

// Put inserts or replaces the entry for key, resetting its timestamp.
func (c *CacheRepo) Put(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache (query, result, timestamp) VALUES (?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET result = excluded.result, timestamp = excluded.timestamp
	`, key, value, c.db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put cache: %w", err)
	}
	return nil
}

// Delete removes the entry for key. Missing keys are not an error.
func (c *CacheRepo) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM cache WHERE query = ?", key); err != nil {
		return fmt.Errorf("delete cache: %w", err)
	}
	return nil
}

// ClearExpired deletes every entry whose age has reached the TTL.
func (c *CacheRepo) ClearExpired(ctx context.Context) (int64, error) {
	cutoff := c.db.now().Add(-c.ttl).UnixMilli()
	result, err := c.db.ExecContext(ctx, "DELETE FROM cache WHERE timestamp <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear expired cache: %w", err)
	}
	return result.RowsAffected()
}

// ClearAll empties the cache.
func (c *CacheRepo) ClearAll(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx, "DELETE FROM cache")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return result.RowsAffected()
}

// PruneBefore deletes every entry written strictly before cutoff.
func (c *CacheRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := c.db.ExecContext(ctx, "DELETE FROM cache WHERE timestamp < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return result.RowsAffected()
}
