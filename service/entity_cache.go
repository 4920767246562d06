// ABOUTME: Entity-scoped cache for appointment and bookable item listings
// ABOUTME: TTL and filters are part of the key and expiry is enforced on read

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"mindbody-mcp/metrics"
	"mindbody-mcp/models"
	"mindbody-mcp/repository"
)

// EntityCacheKey builds "<scope>:ttl=<seconds>:<k=v&...>" with parameters in sorted order.
// Absent values are skipped so that an omitted filter and an empty filter share a key.
func EntityCacheKey(scope string, ttl time.Duration, params map[string]any) string {
	params = models.PresentParams(params)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		encoded, err := json.Marshal(params[k])
		if err != nil {
			encoded = []byte(fmt.Sprint(params[k]))
		}
		parts = append(parts, k+"="+string(encoded))
	}

	return fmt.Sprintf("%s:ttl=%d:%s", scope, int64(ttl/time.Second), strings.Join(parts, "&"))
}

// EntityCache wraps the generic expiring cache table
type EntityCache struct {
	repo   repository.CacheRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewEntityCache creates a new entity cache
func NewEntityCache(repo repository.CacheRepository, logger *slog.Logger) *EntityCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityCache{repo: repo, logger: logger, now: time.Now}
}

// SetClock replaces the time source
func (c *EntityCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the cached value for the scope and filters. An expired entry is deleted and reported as a miss.
func (c *EntityCache) Get(ctx context.Context, scope string, ttl time.Duration, params map[string]any) (json.RawMessage, bool, error) {
	key := EntityCacheKey(scope, ttl, params)

	entry, err := c.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordCacheLookup(scope, "miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if entry.IsExpiredAt(c.now()) {
		metrics.RecordCacheLookup(scope, "expired")
		if err := c.repo.Delete(ctx, key); err != nil {
			c.logger.Warn("Failed to delete expired cache entry", "key", key, "error", err)
		}
		return nil, false, nil
	}

	if err := c.repo.Touch(ctx, key); err != nil {
		c.logger.Warn("Failed to count cache hit", "key", key, "error", err)
	}
	metrics.RecordCacheLookup(scope, "hit")
	return entry.Value, true, nil
}

// Set stores value under the scope and filters, expiring after ttl
func (c *EntityCache) Set(ctx context.Context, scope string, ttl time.Duration, params map[string]any, value json.RawMessage) error {
	now := c.now()
	return c.repo.Set(ctx, &models.CacheEntry{
		Key:       EntityCacheKey(scope, ttl, params),
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
}

// PruneExpired deletes every expired entry
func (c *EntityCache) PruneExpired(ctx context.Context) (int64, error) {
	n, err := c.repo.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Info("Pruned expired entity cache entries", "entries", n)
	}
	return n, nil
}
