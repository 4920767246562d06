package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"mindbody-mcp/mocks"
	"mindbody-mcp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestQuotaGuard(t *testing.T, limit int, clock *fakeClock) (*QuotaGuard, *testStore) {
	t.Helper()
	store := newTestStore(t)
	q := NewQuotaGuard(store.usage, limit, nil)
	q.SetClock(clock.Now)
	return q, store
}

func TestQuotaGuard_CheckLimitTracksRecordedCalls(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQuotaGuard(t, 5, newFakeClock(testEpoch))

	for n := 0; n <= 7; n++ {
		err := q.CheckLimit(ctx, false)
		if n >= 5 {
			assert.ErrorIs(t, err, models.ErrQuotaExceeded, "after %d calls", n)
		} else {
			assert.NoError(t, err, "after %d calls", n)
		}

		stats, err := q.GetUsageStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, n, stats.CallsMade)

		q.RecordCall(ctx)
	}
}

func TestQuotaGuard_LimitReachedScenario(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQuotaGuard(t, 10, newFakeClock(testEpoch))

	for i := 0; i < 10; i++ {
		q.RecordCall(ctx)
	}

	err := q.CheckLimit(ctx, false)
	require.Error(t, err)

	var quotaErr *models.QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, 10, quotaErr.CallsMade)
	assert.Equal(t, 10, quotaErr.Limit)
	assert.Contains(t, err.Error(), "10/10")
	assert.Contains(t, err.Error(), "force=true")

	// force passes without touching the counter
	require.NoError(t, q.CheckLimit(ctx, true))
	calls, err := store.usage.GetUsage(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 10, calls)
}

func TestQuotaGuard_GetUsageStats(t *testing.T) {
	tests := map[string]struct {
		limit             int
		calls             int
		expectedRemaining int
		expectApproaching bool
	}{
		"fresh_day": {
			limit:             10,
			calls:             0,
			expectedRemaining: 10,
		},
		"below_eighty_percent": {
			limit:             10,
			calls:             7,
			expectedRemaining: 3,
		},
		"at_eighty_percent": {
			limit:             10,
			calls:             8,
			expectedRemaining: 2,
			expectApproaching: true,
		},
		"forced_past_the_limit": {
			limit:             10,
			calls:             12,
			expectedRemaining: 0,
			expectApproaching: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			q, _ := newTestQuotaGuard(t, tc.limit, newFakeClock(testEpoch))
			for i := 0; i < tc.calls; i++ {
				q.RecordCall(ctx)
			}

			stats, err := q.GetUsageStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, "2024-03-10", stats.Date)
			assert.Equal(t, tc.calls, stats.CallsMade)
			assert.Equal(t, tc.limit, stats.Limit)
			assert.Equal(t, tc.expectedRemaining, stats.CallsRemaining)
			assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), stats.ResetTime)

			approaching, err := q.IsApproachingLimit(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.expectApproaching, approaching)
		})
	}
}

func TestQuotaGuard_NewDayStartsAtZero(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC))
	q, _ := newTestQuotaGuard(t, 3, clock)

	for i := 0; i < 3; i++ {
		q.RecordCall(ctx)
	}
	require.ErrorIs(t, q.CheckLimit(ctx, false), models.ErrQuotaExceeded)

	clock.Advance(2 * time.Minute)
	require.NoError(t, q.CheckLimit(ctx, false))

	report, err := q.Report(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11", report.Date)
	assert.Zero(t, report.CallsMade)
	require.Len(t, report.History, 1)
	assert.Equal(t, "2024-03-10", report.History[0].Date)
	assert.Equal(t, 3, report.History[0].Calls)
}

func TestQuotaGuard_RecordCallSwallowsStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	usage := mocks.NewMockUsageRepository(ctrl)
	q := NewQuotaGuard(usage, 10, nil)
	q.SetClock(newFakeClock(testEpoch).Now)

	usage.EXPECT().IncrementUsage(gomock.Any(), "2024-03-10").Return(0, errors.New("disk full"))

	assert.NotPanics(t, func() { q.RecordCall(context.Background()) })
}

func TestQuotaGuard_CheckLimitSurfacesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	usage := mocks.NewMockUsageRepository(ctrl)
	q := NewQuotaGuard(usage, 10, nil)

	usage.EXPECT().GetUsage(gomock.Any(), gomock.Any()).Return(0, errors.New("database is locked"))

	err := q.CheckLimit(context.Background(), false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestQuotaGuard_DefaultLimit(t *testing.T) {
	q := NewQuotaGuard(newTestStore(t).usage, 0, nil)
	assert.Equal(t, DefaultDailyLimit, q.DailyLimit())
}

func TestQuotaGuard_RecordCallIgnoresCancellation(t *testing.T) {
	q, store := newTestQuotaGuard(t, 10, newFakeClock(testEpoch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.RecordCall(ctx)

	calls, err := store.usage.GetUsage(context.Background(), "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
