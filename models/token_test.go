// ABOUTME: This file tests user token models and the safety-margin expiry
// ABOUTME: Ensures lifetimes are taken from ExpiresIn, then Expires, then the default

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserToken(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		response       UserTokenResponse
		expectedWindow time.Duration
	}{
		"expires_in_seconds": {
			response:       UserTokenResponse{AccessToken: "tok", TokenType: "Bearer", ExpiresIn: 1000},
			expectedWindow: 800 * time.Second,
		},
		"absolute_expires": {
			response:       UserTokenResponse{AccessToken: "tok", Expires: now.Add(100 * time.Second).Format(time.RFC3339)},
			expectedWindow: 80 * time.Second,
		},
		"expires_in_wins_over_expires": {
			response:       UserTokenResponse{AccessToken: "tok", ExpiresIn: 10, Expires: now.Add(time.Hour).Format(time.RFC3339)},
			expectedWindow: 8 * time.Second,
		},
		"no_lifetime_uses_default": {
			response:       UserTokenResponse{AccessToken: "tok"},
			expectedWindow: 48 * time.Minute,
		},
		"expires_in_past_uses_default": {
			response:       UserTokenResponse{AccessToken: "tok", Expires: now.Add(-time.Minute).Format(time.RFC3339)},
			expectedWindow: 48 * time.Minute,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			token := NewUserToken(tc.response, now)
			require.NotNil(t, token)
			assert.Equal(t, "tok", token.Value)
			assert.Equal(t, now, token.IssuedAt)
			assert.Equal(t, tc.expectedWindow, token.TimeUntilExpiry(now))
		})
	}
}

func TestUserToken_IsValidAt(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	token := NewUserToken(UserTokenResponse{AccessToken: "tok", ExpiresIn: 1000}, now)

	tests := map[string]struct {
		token    *UserToken
		at       time.Time
		expected bool
	}{
		"fresh":             {token: token, at: now, expected: true},
		"inside_window":     {token: token, at: now.Add(799 * time.Second), expected: true},
		"at_safety_expiry":  {token: token, at: now.Add(800 * time.Second), expected: false},
		"past_safety":       {token: token, at: now.Add(900 * time.Second), expected: false},
		"nil_token":         {token: nil, at: now, expected: false},
		"empty_token_value": {token: &UserToken{ExpiresAt: now.Add(time.Hour)}, at: now, expected: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.token.IsValidAt(tc.at))
		})
	}
}
