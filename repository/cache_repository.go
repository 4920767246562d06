// ABOUTME: Generic expiring key/value cache table used by the entity-scoped caches
// ABOUTME: Expiry is enforced by the caller; this layer only stores and sweeps rows

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mindbody-mcp/models"
)

// CacheRepository interface for the generic expiring cache
type CacheRepository interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Touch(ctx context.Context, key string) error
	Set(ctx context.Context, entry *models.CacheEntry) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLCacheRepository implements CacheRepository over database/sql
type SQLCacheRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(conn *Connection, logger *slog.Logger) *SQLCacheRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLCacheRepository{conn: conn, logger: logger}
}

// Get returns the entry for key or ErrNotFound
func (r *SQLCacheRepository) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	var (
		e                    models.CacheEntry
		value                string
		expiresAt, createdAt string
	)
	err := r.conn.DB().QueryRowContext(ctx,
		r.conn.Rebind(`SELECT key, value, expires_at, created_at, hit_count FROM cache WHERE key = ?`), key,
	).Scan(&e.Key, &value, &expiresAt, &createdAt, &e.HitCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	e.Value = []byte(value)
	if e.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("failed to parse cache expiry: %w", err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse cache creation time: %w", err)
	}
	return &e, nil
}

// Touch increments the hit count of key
func (r *SQLCacheRepository) Touch(ctx context.Context, key string) error {
	if _, err := r.conn.DB().ExecContext(ctx, r.conn.Rebind(`UPDATE cache SET hit_count = hit_count + 1 WHERE key = ?`), key); err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

// Set upserts entry, resetting its hit count
func (r *SQLCacheRepository) Set(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO cache (key, value, expires_at, created_at, hit_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at,
			hit_count = 0`

	if _, err := r.conn.DB().ExecContext(ctx, r.conn.Rebind(query),
		entry.Key, string(entry.Value), formatTime(entry.ExpiresAt), formatTime(entry.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// Delete removes key if present
func (r *SQLCacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.conn.DB().ExecContext(ctx, r.conn.Rebind(`DELETE FROM cache WHERE key = ?`), key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteExpired removes every entry whose expiry is at or before now
func (r *SQLCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.conn.DB().ExecContext(ctx, r.conn.Rebind(`DELETE FROM cache WHERE expires_at <= ?`), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	return res.RowsAffected()
}
