//go:generate mockgen -source=interfaces.go -destination=../mocks/service_mock.go -package=mocks

// ABOUTME: Collaborator interfaces of the access layer and the services built on it
// ABOUTME: The concrete driver, token manager and quota guard satisfy them; tests substitute mocks

package service

import (
	"context"
	"encoding/json"

	"mindbody-mcp/driver"
	"mindbody-mcp/models"
)

// TokenIssuer issues staff user tokens
type TokenIssuer interface {
	IssueToken(ctx context.Context, username, password string) (*models.UserTokenResponse, error)
}

// UpstreamDriver performs one physical authenticated HTTP attempt
type UpstreamDriver interface {
	Do(ctx context.Context, req models.APIRequest, token string) (*driver.Response, error)
}

// TokenProvider hands out a currently valid bearer token
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
	Invalidate()
}

// QuotaGate gates and records outbound calls against the daily ceiling
type QuotaGate interface {
	CheckLimit(ctx context.Context, force bool) error
	RecordCall(ctx context.Context)
}

// APIRequester performs a logical upstream call with quota, auth and retry handled
type APIRequester interface {
	Request(ctx context.Context, req models.APIRequest) (json.RawMessage, error)
}
