package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mindbody-mcp/mocks"
	"mindbody-mcp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestTokenManager(t *testing.T, issuer *mocks.MockTokenIssuer, clock *fakeClock) *TokenManager {
	t.Helper()
	m := NewTokenManager(issuer, "staff", "secret", nil)
	m.SetClock(clock.Now)
	return m
}

func TestTokenManager_GetToken_RenewsAtEightyPercentOfLifetime(t *testing.T) {
	ctrl := gomock.NewController(t)
	issuer := mocks.NewMockTokenIssuer(ctrl)
	clock := newFakeClock(testEpoch)
	m := newTestTokenManager(t, issuer, clock)
	ctx := context.Background()

	issuer.EXPECT().IssueToken(gomock.Any(), "staff", "secret").
		Return(&models.UserTokenResponse{AccessToken: "first", ExpiresIn: 1000}, nil).
		Times(1)

	token, err := m.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	expiresAt, ok := m.ExpiresAt()
	require.True(t, ok)
	assert.Equal(t, testEpoch.Add(800*time.Second), expiresAt)

	// Inside the 800s window every call is served from memory
	for _, offset := range []time.Duration{0, 300 * time.Second, 499 * time.Second} {
		clock.Advance(offset)
		token, err = m.GetToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first", token)
	}

	clock.Advance(time.Second) // exactly 800s after issuance
	issuer.EXPECT().IssueToken(gomock.Any(), "staff", "secret").
		Return(&models.UserTokenResponse{AccessToken: "second", ExpiresIn: 1000}, nil).
		Times(1)

	token, err = m.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}

func TestTokenManager_Invalidate(t *testing.T) {
	ctrl := gomock.NewController(t)
	issuer := mocks.NewMockTokenIssuer(ctrl)
	m := newTestTokenManager(t, issuer, newFakeClock(testEpoch))
	ctx := context.Background()

	issuer.EXPECT().IssueToken(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&models.UserTokenResponse{AccessToken: "a", ExpiresIn: 3600}, nil)
	issuer.EXPECT().IssueToken(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&models.UserTokenResponse{AccessToken: "b", ExpiresIn: 3600}, nil)

	assert.False(t, m.HasValidToken())

	first, err := m.GetToken(ctx)
	require.NoError(t, err)
	assert.True(t, m.HasValidToken())

	m.Invalidate()
	assert.False(t, m.HasValidToken())

	second, err := m.GetToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "b", second)
}

func TestTokenManager_LifetimeFallbacks(t *testing.T) {
	tests := map[string]struct {
		response models.UserTokenResponse
		expected time.Duration
	}{
		"expires_in": {
			response: models.UserTokenResponse{AccessToken: "t", ExpiresIn: 100},
			expected: 80 * time.Second,
		},
		"absolute_expiry": {
			response: models.UserTokenResponse{AccessToken: "t", Expires: testEpoch.Add(50 * time.Minute).Format(time.RFC3339)},
			expected: 40 * time.Minute,
		},
		"no_lifetime_defaults_to_one_hour": {
			response: models.UserTokenResponse{AccessToken: "t"},
			expected: 48 * time.Minute,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			issuer := mocks.NewMockTokenIssuer(ctrl)
			m := newTestTokenManager(t, issuer, newFakeClock(testEpoch))

			resp := tc.response
			issuer.EXPECT().IssueToken(gomock.Any(), gomock.Any(), gomock.Any()).Return(&resp, nil)

			_, err := m.GetToken(context.Background())
			require.NoError(t, err)

			expiresAt, ok := m.ExpiresAt()
			require.True(t, ok)
			assert.Equal(t, tc.expected, expiresAt.Sub(testEpoch))
		})
	}
}

func TestTokenManager_IssuanceFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	issuer := mocks.NewMockTokenIssuer(ctrl)
	m := newTestTokenManager(t, issuer, newFakeClock(testEpoch))

	issuer.EXPECT().IssueToken(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &models.AuthenticationError{StatusCode: 401, Body: "bad credentials"})

	token, err := m.GetToken(context.Background())
	require.Error(t, err)
	assert.Empty(t, token)
	assert.True(t, errors.Is(err, models.ErrAuthentication))
	assert.False(t, m.HasValidToken())

	_, ok := m.ExpiresAt()
	assert.False(t, ok)
}

func TestTokenManager_ConcurrentCallersShareOneIssuance(t *testing.T) {
	ctrl := gomock.NewController(t)
	issuer := mocks.NewMockTokenIssuer(ctrl)
	m := newTestTokenManager(t, issuer, newFakeClock(testEpoch))

	var issued int32
	issuer.EXPECT().IssueToken(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, username, password string) (*models.UserTokenResponse, error) {
			atomic.AddInt32(&issued, 1)
			time.Sleep(50 * time.Millisecond)
			return &models.UserTokenResponse{AccessToken: "shared", ExpiresIn: 3600}, nil
		}).
		Times(1)

	const callers = 10
	var wg sync.WaitGroup
	tokens := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := m.GetToken(context.Background())
			assert.NoError(t, err)
			tokens <- token
		}()
	}
	wg.Wait()
	close(tokens)

	for token := range tokens {
		assert.Equal(t, "shared", token)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&issued))
}

func TestTokenManager_CancelledCallerDoesNotFailSharedIssuance(t *testing.T) {
	ctrl := gomock.NewController(t)
	issuer := mocks.NewMockTokenIssuer(ctrl)
	m := newTestTokenManager(t, issuer, newFakeClock(testEpoch))

	started := make(chan struct{})
	release := make(chan struct{})
	issuer.EXPECT().IssueToken(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, username, password string) (*models.UserTokenResponse, error) {
			close(started)
			select {
			case <-release:
				return &models.UserTokenResponse{AccessToken: "shared", ExpiresIn: 3600}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}).
		Times(1)

	type outcome struct {
		token string
		err   error
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	first := make(chan outcome, 1)
	go func() {
		token, err := m.GetToken(firstCtx)
		first <- outcome{token, err}
	}()
	<-started

	second := make(chan outcome, 1)
	go func() {
		token, err := m.GetToken(context.Background())
		second <- outcome{token, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	got := <-first
	assert.ErrorIs(t, got.err, context.Canceled)
	assert.Empty(t, got.token)

	close(release)
	got = <-second
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.token)
	assert.True(t, m.HasValidToken())
}
