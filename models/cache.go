package models

import (
	"encoding/json"
	"time"
)

// CachedResponse is a row of the content-addressed response cache
type CachedResponse struct {
	CacheKey  string          `json:"cache_key"`
	Endpoint  string          `json:"endpoint"`
	Params    json.RawMessage `json:"params"`
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	HitCount  int             `json:"hit_count"`
}

// IsExpiredAt reports whether the entry has passed its expiry. A zero ExpiresAt never expires.
func (c *CachedResponse) IsExpiredAt(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// CacheEntry is a row of the generic expiring key/value cache
type CacheEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
	HitCount  int             `json:"hit_count"`
}

// IsExpiredAt reports whether the entry has passed its expiry.
func (c *CacheEntry) IsExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CacheStats summarizes the response cache
type CacheStats struct {
	TotalEntries int   `json:"total_entries"`
	TotalHits    int   `json:"total_hits"`
	CacheSize    int64 `json:"cache_size"` // bytes of stored payloads
}
