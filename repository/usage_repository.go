//go:generate mockgen -source=usage_repository.go -destination=../mocks/usage_repository_mock.go -package=mocks UsageRepository

// ABOUTME: This file persists the per-day upstream call counter behind the quota guard
// ABOUTME: Increments are a single insert-or-add statement, never read-then-write

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"mindbody-mcp/models"
)

// UsageRepository interface for daily API usage counters
type UsageRepository interface {
	IncrementUsage(ctx context.Context, date string) (int, error)
	GetUsage(ctx context.Context, date string) (int, error)
	ListUsage(ctx context.Context, days int) ([]models.DailyUsage, error)
}

// SQLUsageRepository implements UsageRepository over database/sql
type SQLUsageRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(conn *Connection, logger *slog.Logger) *SQLUsageRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLUsageRepository{conn: conn, logger: logger}
}

// IncrementUsage atomically adds one call to the counter for date and returns the new count
func (r *SQLUsageRepository) IncrementUsage(ctx context.Context, date string) (int, error) {
	query := `
		INSERT INTO api_usage (date, calls) VALUES (?, 1)
		ON CONFLICT (date) DO UPDATE SET calls = api_usage.calls + 1
		RETURNING calls`

	var calls int
	if err := r.conn.DB().QueryRowContext(ctx, r.conn.Rebind(query), date).Scan(&calls); err != nil {
		return 0, fmt.Errorf("failed to increment usage for %s: %w", date, err)
	}
	return calls, nil
}

// GetUsage returns the counter for date; a missing row is zero
func (r *SQLUsageRepository) GetUsage(ctx context.Context, date string) (int, error) {
	var calls int
	err := r.conn.DB().QueryRowContext(ctx, r.conn.Rebind(`SELECT calls FROM api_usage WHERE date = ?`), date).Scan(&calls)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage for %s: %w", date, err)
	}
	return calls, nil
}

// ListUsage returns the most recent days with recorded calls, newest first
func (r *SQLUsageRepository) ListUsage(ctx context.Context, days int) ([]models.DailyUsage, error) {
	if days <= 0 {
		days = 7
	}

	rows, err := r.conn.DB().QueryContext(ctx, r.conn.Rebind(`SELECT date, calls FROM api_usage ORDER BY date DESC LIMIT ?`), days)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var usage []models.DailyUsage
	for rows.Next() {
		var u models.DailyUsage
		if err := rows.Scan(&u.Date, &u.Calls); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
