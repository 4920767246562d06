// ABOUTME: Content-addressed store of upstream responses keyed by request-shape hash
// ABOUTME: Reads bump the hit count in the same statement; writes reset it

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

// ResponseCacheRepository interface for the response cache table
type ResponseCacheRepository interface {
	GetAndTouch(ctx context.Context, cacheKey string) (*models.CachedResponse, error)
	Upsert(ctx context.Context, entry *models.CachedResponse) error
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (models.CacheStats, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SQLResponseCacheRepository implements ResponseCacheRepository over database/sql
type SQLResponseCacheRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewResponseCacheRepository creates a new response cache repository
func NewResponseCacheRepository(conn *Connection, logger *slog.Logger) *SQLResponseCacheRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLResponseCacheRepository{conn: conn, logger: logger}
}

// GetAndTouch increments the hit count of cacheKey and returns the updated row, or ErrNotFound
func (r *SQLResponseCacheRepository) GetAndTouch(ctx context.Context, cacheKey string) (*models.CachedResponse, error) {
	query := `
		UPDATE api_cache SET hit_count = hit_count + 1
		WHERE cache_key = ?
		RETURNING cache_key, endpoint, params, response, created_at, expires_at, hit_count`

	var (
		e                    models.CachedResponse
		params, response     string
		createdAt, expiresAt string
	)
	err := r.conn.DB().QueryRowContext(ctx, r.conn.Rebind(query), cacheKey).
		Scan(&e.CacheKey, &e.Endpoint, &params, &response, &createdAt, &expiresAt, &e.HitCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached response: %w", err)
	}

	e.Params = []byte(params)
	e.Response = []byte(response)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse cache creation time: %w", err)
	}
	if e.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("failed to parse cache expiry: %w", err)
	}
	return &e, nil
}

// Upsert writes entry as a fresh row: created_at is replaced and hit_count reset to zero
func (r *SQLResponseCacheRepository) Upsert(ctx context.Context, entry *models.CachedResponse) error {
	query := `
		INSERT INTO api_cache (cache_key, endpoint, params, response, created_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (cache_key) DO UPDATE SET
			endpoint = excluded.endpoint,
			params = excluded.params,
			response = excluded.response,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hit_count = 0`

	if _, err := r.conn.DB().ExecContext(ctx, r.conn.Rebind(query),
		entry.CacheKey, entry.Endpoint, string(entry.Params), string(entry.Response),
		formatTime(entry.CreatedAt), formatTime(entry.ExpiresAt),
	); err != nil {
		return fmt.Errorf("failed to store cached response: %w", err)
	}
	return nil
}

// Clear removes every cached response
func (r *SQLResponseCacheRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.conn.DB().ExecContext(ctx, `DELETE FROM api_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear response cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats summarizes entry count, total hits and payload bytes
func (r *SQLResponseCacheRepository) Stats(ctx context.Context) (models.CacheStats, error) {
	var (
		stats        models.CacheStats
		entries      int64
		hits, volume int64
	)
	err := r.conn.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0), COALESCE(SUM(LENGTH(response)), 0) FROM api_cache`,
	).Scan(&entries, &hits, &volume)
	if err != nil {
		return stats, fmt.Errorf("failed to read cache stats: %w", err)
	}

	stats.TotalEntries = int(entries)
	stats.TotalHits = int(hits)
	stats.CacheSize = volume
	return stats, nil
}

// DeleteExpired removes responses whose expiry has passed; rows without expiry are kept
func (r *SQLResponseCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.conn.DB().ExecContext(ctx,
		r.conn.Rebind(`DELETE FROM api_cache WHERE expires_at <> '' AND expires_at <= ?`), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to prune response cache: %w", err)
	}
	return res.RowsAffected()
}
