// ABOUTME: This file implements the staff user token lifecycle for upstream calls
// ABOUTME: Holds one token in memory, renews it at 80% of its lifetime and collapses concurrent issuance

package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mindbody-mcp/metrics"
	"mindbody-mcp/models"

	"golang.org/x/sync/singleflight"
)

// TokenManager acquires and caches the bearer credential. The token is never persisted.
type TokenManager struct {
	issuer   TokenIssuer
	username string
	password string
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	token *models.UserToken

	// Single-flight group prevents concurrent issuance
	issueGroup singleflight.Group
}

// NewTokenManager creates a token manager for one set of staff credentials
func NewTokenManager(issuer TokenIssuer, username, password string, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenManager{
		issuer:   issuer,
		username: username,
		password: password,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (m *TokenManager) SetClock(now func() time.Time) {
	m.now = now
}

// tokenIssueTimeout bounds one shared issuance, which no longer follows any single caller's context
const tokenIssueTimeout = 30 * time.Second

// GetToken returns a valid token, issuing a new one when none is cached or it passed its safety expiry.
// A cancelled caller stops waiting without failing other callers sharing the same issuance.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	if value, ok := m.cachedValue(); ok {
		return value, nil
	}

	ch := m.issueGroup.DoChan("issue", func() (interface{}, error) {
		// Another caller may have finished issuing while we waited
		if value, ok := m.cachedValue(); ok {
			return value, nil
		}
		issueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenIssueTimeout)
		defer cancel()
		return m.issue(issueCtx)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for user token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.logger.Debug("Token issuance shared between concurrent callers")
		}
		return res.Val.(string), nil
	}
}

func (m *TokenManager) issue(ctx context.Context) (string, error) {
	start := m.now()
	resp, err := m.issuer.IssueToken(ctx, m.username, m.password)
	metrics.RecordTokenIssuance(err == nil)
	if err != nil {
		m.logger.Error("Failed to issue staff user token", "error", err)
		return "", fmt.Errorf("failed to issue user token: %w", err)
	}

	token := models.NewUserToken(*resp, start)

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	m.logger.Info("Staff user token issued",
		"expires_at", token.ExpiresAt,
		"valid_for", token.TimeUntilExpiry(start))

	return token.Value, nil
}

func (m *TokenManager) cachedValue() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token.IsValidAt(m.now()) {
		return m.token.Value, true
	}
	return "", false
}

// Invalidate drops the cached token unconditionally
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()

	m.logger.Info("Staff user token invalidated")
}

// HasValidToken reports whether a cached token is usable right now, without issuing one
func (m *TokenManager) HasValidToken() bool {
	_, ok := m.cachedValue()
	return ok
}

// ExpiresAt returns the safety-margin expiry of the cached token
func (m *TokenManager) ExpiresAt() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == nil {
		return time.Time{}, false
	}
	return m.token.ExpiresAt, true
}
