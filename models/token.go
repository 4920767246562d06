// ABOUTME: This file defines the in-memory bearer credential issued by the upstream identity endpoint
// ABOUTME: Handles safety-margin expiry so a token never lapses in the middle of a bulk sync

package models

import (
	"time"
)

// TokenSafetyFactor is the share of the provider-declared lifetime we trust.
const TokenSafetyFactor = 0.8

// DefaultTokenLifetime is used when the issuance response carries no lifetime at all.
const DefaultTokenLifetime = time.Hour

// UserToken represents a staff user token issued by the upstream API
type UserToken struct {
	Value     string    `json:"-"`
	TokenType string    `json:"token_type"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"` // IssuedAt + 80% of the declared lifetime
}

// UserTokenResponse represents the token issuance response body
type UserTokenResponse struct {
	TokenType   string `json:"TokenType"`
	AccessToken string `json:"AccessToken"`
	ExpiresIn   int    `json:"ExpiresIn,omitempty"` // Seconds
	Expires     string `json:"Expires,omitempty"`   // Absolute expiry, RFC3339
}

// Lifetime returns the provider-declared token lifetime relative to now
func (r UserTokenResponse) Lifetime(now time.Time) time.Duration {
	if r.ExpiresIn > 0 {
		return time.Duration(r.ExpiresIn) * time.Second
	}
	if r.Expires != "" {
		if expires, err := time.Parse(time.RFC3339, r.Expires); err == nil && expires.After(now) {
			return expires.Sub(now)
		}
	}
	return DefaultTokenLifetime
}

// NewUserToken creates a UserToken from an issuance response with the safety margin applied
func NewUserToken(response UserTokenResponse, now time.Time) *UserToken {
	lifetime := response.Lifetime(now)
	scaled := time.Duration(float64(lifetime) * TokenSafetyFactor)

	return &UserToken{
		Value:     response.AccessToken,
		TokenType: response.TokenType,
		IssuedAt:  now,
		ExpiresAt: now.Add(scaled),
	}
}

// IsValidAt reports whether the token can still be used at the given instant
func (t *UserToken) IsValidAt(now time.Time) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt)
}

// TimeUntilExpiry returns the duration until the safety-margin expiry
func (t *UserToken) TimeUntilExpiry(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}
