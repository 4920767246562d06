// ABOUTME: Upstream access client composing the quota guard, the token manager and the HTTP driver
// ABOUTME: Retries exactly once on 401/403 with a fresh token and records every physical attempt

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mindbody-mcp/driver"
	"mindbody-mcp/metrics"
	"mindbody-mcp/models"

	"golang.org/x/time/rate"
)

// APIClient performs quota-gated, authenticated upstream calls
type APIClient struct {
	driver  UpstreamDriver
	tokens  TokenProvider
	quota   QuotaGate
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAPIClient creates a new upstream access client
func NewAPIClient(upstream UpstreamDriver, tokens TokenProvider, quota QuotaGate, logger *slog.Logger) *APIClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIClient{
		driver: upstream,
		tokens: tokens,
		quota:  quota,
		logger: logger,
	}
}

// SetRequestsPerSecond paces physical attempts; zero or less disables pacing
func (c *APIClient) SetRequestsPerSecond(rps float64) {
	if rps <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// Request runs one logical call: quota check, token, attempt, and a single retry on auth failure
func (c *APIClient) Request(ctx context.Context, req models.APIRequest) (json.RawMessage, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	// Quota is checked before any network I/O
	if err := c.quota.CheckLimit(ctx, req.Force); err != nil {
		return nil, err
	}

	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.attempt(ctx, req, token)
	if err != nil {
		return nil, err
	}

	retried := false
	if resp.IsAuthFailure() {
		c.logger.Warn("Upstream rejected token, retrying with a fresh one",
			"method", req.Method,
			"endpoint", req.Endpoint,
			"status_code", resp.StatusCode)

		c.tokens.Invalidate()
		token, err = c.tokens.GetToken(ctx)
		if err != nil {
			return nil, err
		}

		resp, err = c.attempt(ctx, req, token)
		if err != nil {
			return nil, err
		}
		retried = true
	}

	if !resp.IsSuccess() {
		upstreamErr := &models.UpstreamError{
			Method:     req.Method,
			Endpoint:   req.Endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Retried:    retried,
		}
		c.logger.Error("Upstream request failed",
			"method", req.Method,
			"endpoint", req.Endpoint,
			"status_code", resp.StatusCode,
			"retried", retried)
		return nil, upstreamErr
	}

	if len(resp.Body) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%s %s returned a non-JSON body", req.Method, req.Endpoint)
	}
	return json.RawMessage(resp.Body), nil
}

// attempt performs one physical HTTP call and records it against the quota
func (c *APIClient) attempt(ctx context.Context, req models.APIRequest, token string) (*driver.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request pacing interrupted: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.driver.Do(ctx, req, token)
	c.quota.RecordCall(ctx)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	metrics.RecordUpstreamRequest(req.Endpoint, status, time.Since(start))

	if err != nil {
		return nil, err
	}
	return resp, nil
}
