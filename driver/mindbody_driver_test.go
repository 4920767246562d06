package driver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mindbody-mcp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(url string) *MindbodyDriver {
	return NewMindbodyDriver(Config{BaseURL: url, APIKey: "test_api_key", SiteID: "-99", Timeout: 5 * time.Second}, nil)
}

func TestNewMindbodyDriver_Defaults(t *testing.T) {
	d := NewMindbodyDriver(Config{}, nil)
	assert.Equal(t, DefaultBaseURL, d.baseURL)
	assert.Equal(t, 30*time.Second, d.httpClient.Timeout)

	d = NewMindbodyDriver(Config{BaseURL: "https://example.com/api/"}, nil)
	assert.Equal(t, "https://example.com/api", d.baseURL)
}

func TestMindbodyDriver_IssueToken(t *testing.T) {
	tests := map[string]struct {
		handler         http.HandlerFunc
		expectAuthError bool
		expectError     bool
		expectToken     string
	}{
		"success": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, TokenIssueEndpoint, r.URL.Path)
				assert.Equal(t, "test_api_key", r.Header.Get("Api-Key"))
				assert.Equal(t, "-99", r.Header.Get("SiteId"))
				assert.Empty(t, r.Header.Get("Authorization"))

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "staff", body["Username"])
				assert.Equal(t, "secret", body["Password"])

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{"AccessToken": "tok_123", "TokenType": "Bearer", "ExpiresIn": 3600})
			},
			expectToken: "tok_123",
		},
		"rejected_credentials": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"Error":{"Message":"Invalid credentials"}}`)
			},
			expectAuthError: true,
			expectError:     true,
		},
		"missing_access_token": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"TokenType":"Bearer"}`)
			},
			expectAuthError: true,
			expectError:     true,
		},
		"malformed_json": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `not json`)
			},
			expectError: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			resp, err := newTestDriver(server.URL).IssueToken(context.Background(), "staff", "secret")
			if tc.expectError {
				require.Error(t, err)
				assert.Equal(t, tc.expectAuthError, errors.Is(err, models.ErrAuthentication))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectToken, resp.AccessToken)
			assert.Equal(t, 3600, resp.ExpiresIn)
		})
	}
}

func TestMindbodyDriver_IssueToken_AuthErrorCarriesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "bad site")
	}))
	defer server.Close()

	_, err := newTestDriver(server.URL).IssueToken(context.Background(), "staff", "secret")
	var authErr *models.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Equal(t, "bad site", authErr.Body)
}

func TestMindbodyDriver_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok_abc", r.Header.Get("Authorization"))
		assert.Equal(t, "test_api_key", r.Header.Get("Api-Key"))
		assert.Equal(t, "-99", r.Header.Get("SiteId"))

		switch r.URL.Path {
		case "/client/clients":
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "100", r.URL.Query().Get("request.limit"))
			assert.Equal(t, "0", r.URL.Query().Get("request.offset"))
			assert.False(t, r.URL.Query().Has("request.clientStatus"))
			io.WriteString(w, `{"Clients":[]}`)
		case "/client/updateclient":
			assert.Equal(t, http.MethodPost, r.Method)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, false, body["CrossRegionalUpdate"])
			io.WriteString(w, `{"Client":{"Id":"1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, "no such endpoint")
		}
	}))
	defer server.Close()

	d := newTestDriver(server.URL)
	ctx := context.Background()

	resp, err := d.Do(ctx, models.APIRequest{
		Endpoint: "/client/clients",
		Params:   map[string]any{"request.limit": 100, "request.offset": 0, "request.clientStatus": nil},
	}, "tok_abc")
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
	assert.JSONEq(t, `{"Clients":[]}`, string(resp.Body))

	resp, err = d.Do(ctx, models.APIRequest{
		Method:   http.MethodPost,
		Endpoint: "/client/updateclient",
		Body:     map[string]any{"Client": map[string]any{"Id": "1"}, "CrossRegionalUpdate": false},
	}, "tok_abc")
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())

	// non-2xx is reported, not raised
	resp, err = d.Do(ctx, models.APIRequest{Endpoint: "/nope"}, "tok_abc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no such endpoint", string(resp.Body))
}

func TestResponse_StatusHelpers(t *testing.T) {
	tests := map[string]struct {
		status      int
		success     bool
		authFailure bool
	}{
		"ok":           {status: 200, success: true},
		"no_content":   {status: 204, success: true},
		"unauthorized": {status: 401, authFailure: true},
		"forbidden":    {status: 403, authFailure: true},
		"server_error": {status: 500},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := &Response{StatusCode: tc.status}
			assert.Equal(t, tc.success, r.IsSuccess())
			assert.Equal(t, tc.authFailure, r.IsAuthFailure())
		})
	}
}
