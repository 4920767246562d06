// ABOUTME: Error taxonomy shared by the driver, the access layer and the sync orchestrator
// ABOUTME: Every typed error matches a sentinel so callers can branch with errors.Is

package models

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication = errors.New("authentication failed")
	ErrQuotaExceeded  = errors.New("daily API quota exceeded")
	ErrUpstream       = errors.New("upstream API error")
	ErrValidation     = errors.New("validation error")
	ErrTransientSync  = errors.New("transient sync error")
)

// AuthenticationError is returned when token issuance is rejected upstream
type AuthenticationError struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// QuotaExceededError is returned by the quota guard before any network I/O
type QuotaExceededError struct {
	CallsMade int
	Limit     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily API limit reached (%d/%d calls used); pass force=true to override", e.CallsMade, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// UpstreamError is a non-2xx response that the access layer could not absorb
type UpstreamError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Retried    bool
}

func (e *UpstreamError) Error() string {
	if e.Retried {
		return fmt.Sprintf("%s %s failed after retry: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// ValidationError reports malformed caller input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// SyncPageError wraps a failure of a single page (or chunk page) during bulk sync
type SyncPageError struct {
	Operation string
	Offset    int
	Chunk     string
	Err       error
}

func (e *SyncPageError) Error() string {
	if e.Chunk != "" {
		return fmt.Sprintf("%s chunk %s offset %d: %v", e.Operation, e.Chunk, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s offset %d: %v", e.Operation, e.Offset, e.Err)
}

func (e *SyncPageError) Unwrap() error {
	return e.Err
}

func (e *SyncPageError) Is(target error) bool {
	return target == ErrTransientSync && !errors.Is(e.Err, ErrQuotaExceeded)
}
