package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"mindbody-mcp/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityCacheKey(t *testing.T) {
	tests := map[string]struct {
		params   map[string]any
		expected string
	}{
		"sorted_params": {
			params:   map[string]any{"b": 2, "a": "x"},
			expected: `appointments:ttl=300:a="x"&b=2`,
		},
		"nil_params_skipped": {
			params:   map[string]any{"a": 1, "staff": nil},
			expected: `appointments:ttl=300:a=1`,
		},
		"empty_values_skipped": {
			params:   map[string]any{"a": 1, "client": "", "ids": []int{}},
			expected: `appointments:ttl=300:a=1`,
		},
		"slices": {
			params:   map[string]any{"ids": []int{3, 1}},
			expected: `appointments:ttl=300:ids=[3,1]`,
		},
		"empty": {
			params:   nil,
			expected: `appointments:ttl=300:`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EntityCacheKey("appointments", 5*time.Minute, tc.params))
		})
	}
}

func TestEntityCache_ExpiryEnforcedOnRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newFakeClock(testEpoch)
	c := NewEntityCache(store.cache, nil)
	c.SetClock(clock.Now)

	params := map[string]any{"request.startDate": "2024-03-10T00:00:00"}
	require.NoError(t, c.Set(ctx, "appointments", time.Minute, params, json.RawMessage(`{"Appointments":[]}`)))

	value, hit, err := c.Get(ctx, "appointments", time.Minute, params)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"Appointments":[]}`, string(value))

	// a different TTL is a different key
	_, hit, err = c.Get(ctx, "appointments", 2*time.Minute, params)
	require.NoError(t, err)
	assert.False(t, hit)

	clock.Advance(time.Minute)
	_, hit, err = c.Get(ctx, "appointments", time.Minute, params)
	require.NoError(t, err)
	assert.False(t, hit)

	// the expired read removed the row
	_, err = store.cache.Get(ctx, EntityCacheKey("appointments", time.Minute, params))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEntityCache_PruneExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	clock := newFakeClock(testEpoch)
	c := NewEntityCache(store.cache, nil)
	c.SetClock(clock.Now)

	require.NoError(t, c.Set(ctx, "appointments", time.Minute, nil, json.RawMessage(`{}`)))
	require.NoError(t, c.Set(ctx, "bookable_items", time.Hour, nil, json.RawMessage(`{}`)))

	clock.Advance(10 * time.Minute)
	n, err := c.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, hit, err := c.Get(ctx, "bookable_items", time.Hour, nil)
	require.NoError(t, err)
	assert.True(t, hit)
}
