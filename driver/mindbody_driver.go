// ABOUTME: HTTP driver for the Mindbody public API: staff token issuance and authenticated calls
// ABOUTME: Performs exactly one physical request per call; retry and quota policy live one layer up

package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mindbody-mcp/models"
)

const (
	// DefaultBaseURL is the production v6 API root
	DefaultBaseURL = "https://api.mindbodyonline.com/public/v6"

	TokenIssueEndpoint = "/usertoken/issue"

	userAgent = "mindbody-mcp/1.0"

	// maxBodySize caps how much of a response body is kept for diagnostics and parsing
	maxBodySize = 32 << 20
)

// Config holds the static credentials sent with every request
type Config struct {
	BaseURL string
	APIKey  string
	SiteID  string
	Timeout time.Duration
}

// Response is the raw outcome of one HTTP attempt
type Response struct {
	StatusCode int
	Body       []byte
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsAuthFailure reports a status that means the bearer token was rejected
func (r *Response) IsAuthFailure() bool {
	return r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden
}

// MindbodyDriver handles HTTP communication with the Mindbody API
type MindbodyDriver struct {
	baseURL    string
	apiKey     string
	siteID     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMindbodyDriver creates a new driver for the Mindbody API
func NewMindbodyDriver(cfg Config, logger *slog.Logger) *MindbodyDriver {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &MindbodyDriver{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		siteID:  cfg.SiteID,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   2,
			},
		},
	}
}

// IssueToken exchanges staff credentials for a user token
func (d *MindbodyDriver) IssueToken(ctx context.Context, username, password string) (*models.UserTokenResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"Username": username,
		"Password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+TokenIssueEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	d.setStaticHeaders(req)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	// Check for HTTP errors first before parsing JSON
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Error("Token issuance failed",
			"status_code", resp.StatusCode,
			"response_body", truncate(string(body), 512))
		return nil, &models.AuthenticationError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResponse models.UserTokenResponse
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, &models.AuthenticationError{StatusCode: resp.StatusCode, Body: "token response carried no AccessToken"}
	}

	d.logger.Info("Issued staff user token",
		"token_type", tokenResponse.TokenType,
		"access_token_length", len(tokenResponse.AccessToken),
		"expires_in_seconds", tokenResponse.ExpiresIn)

	return &tokenResponse, nil
}

// Do performs one authenticated request. Non-2xx statuses are returned, not turned into errors.
func (d *MindbodyDriver) Do(ctx context.Context, apiReq models.APIRequest, token string) (*Response, error) {
	method := apiReq.Method
	if method == "" {
		method = http.MethodGet
	}

	endpoint := d.baseURL + apiReq.Endpoint
	if q := apiReq.Query(); len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var body io.Reader
	if apiReq.Body != nil {
		payload, err := json.Marshal(apiReq.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	d.setStaticHeaders(req)
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s %s: %w", method, apiReq.Endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	d.logger.Debug("Upstream request completed",
		"method", method,
		"endpoint", apiReq.Endpoint,
		"status_code", resp.StatusCode,
		"duration", time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func (d *MindbodyDriver) setStaticHeaders(req *http.Request) {
	req.Header.Set("Api-Key", d.apiKey)
	req.Header.Set("SiteId", d.siteID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
