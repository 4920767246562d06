// ABOUTME: Content-addressed cache of upstream responses keyed by endpoint and sorted parameters
// ABOUTME: Get does not enforce expiry; callers check ExpiresAt, and PruneExpired sweeps in bulk

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mindbody-mcp/metrics"
	"mindbody-mcp/models"
	"mindbody-mcp/repository"
)

// DefaultResponseTTL is the expiry stamped on entries written without an explicit TTL
const DefaultResponseTTL = time.Hour

// GenerateCacheKey hashes the endpoint with the parameters serialized in sorted-key order.
// Parameter maps that differ only in insertion order or in absent values produce the same key.
func GenerateCacheKey(endpoint string, params map[string]any) (string, error) {
	// encoding/json writes map keys in sorted order, including nested maps
	canonical, err := json.Marshal(models.PresentParams(params))
	if err != nil {
		return "", fmt.Errorf("failed to serialize cache params: %w", err)
	}

	sum := sha256.Sum256(append([]byte(endpoint+"\x00"), canonical...))
	return hex.EncodeToString(sum[:]), nil
}

// ResponseCache manages the response cache table
type ResponseCache struct {
	repo       repository.ResponseCacheRepository
	defaultTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewResponseCache creates a response cache; a non-positive ttl falls back to DefaultResponseTTL
func NewResponseCache(repo repository.ResponseCacheRepository, defaultTTL time.Duration, logger *slog.Logger) *ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultResponseTTL
	}

	return &ResponseCache{
		repo:       repo,
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (c *ResponseCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the cached entry and counts a hit, or nil on a miss. Expired entries are returned as-is.
func (c *ResponseCache) Get(ctx context.Context, endpoint string, params map[string]any) (*models.CachedResponse, error) {
	key, err := GenerateCacheKey(endpoint, params)
	if err != nil {
		return nil, err
	}

	entry, err := c.repo.GetAndTouch(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordCacheLookup("response", "miss")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordCacheLookup("response", "hit")
	c.logger.Debug("Response cache hit", "endpoint", endpoint, "hit_count", entry.HitCount)
	return entry, nil
}

// Set stores payload with the default TTL, replacing any previous entry and resetting its hit count
func (c *ResponseCache) Set(ctx context.Context, endpoint string, params map[string]any, payload json.RawMessage) error {
	return c.SetWithTTL(ctx, endpoint, params, payload, c.defaultTTL)
}

// SetWithTTL stores payload expiring after ttl; a non-positive ttl stores an entry that never expires
func (c *ResponseCache) SetWithTTL(ctx context.Context, endpoint string, params map[string]any, payload json.RawMessage, ttl time.Duration) error {
	key, err := GenerateCacheKey(endpoint, params)
	if err != nil {
		return err
	}
	encodedParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to serialize cache params: %w", err)
	}

	now := c.now()
	entry := &models.CachedResponse{
		CacheKey:  key,
		Endpoint:  endpoint,
		Params:    encodedParams,
		Response:  payload,
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	return c.repo.Upsert(ctx, entry)
}

// Clear removes every entry and returns how many were dropped
func (c *ResponseCache) Clear(ctx context.Context) (int64, error) {
	n, err := c.repo.Clear(ctx)
	if err != nil {
		return 0, err
	}
	c.logger.Info("Response cache cleared", "entries", n)
	return n, nil
}

// GetStats returns entry count, total hits and stored payload size
func (c *ResponseCache) GetStats(ctx context.Context) (models.CacheStats, error) {
	return c.repo.Stats(ctx)
}

// PruneExpired deletes entries whose expiry has passed
func (c *ResponseCache) PruneExpired(ctx context.Context) (int64, error) {
	n, err := c.repo.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Info("Pruned expired cached responses", "entries", n)
	}
	return n, nil
}
