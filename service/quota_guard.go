// ABOUTME: Daily quota guard for upstream API usage
// ABOUTME: Refuses calls at the configured ceiling unless forced and records every physical attempt

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mindbody-mcp/metrics"
	"mindbody-mcp/models"
	"mindbody-mcp/repository"
)

// DefaultDailyLimit leaves a margin below the provider's 1000 free calls per day
const DefaultDailyLimit = 950

// UsageReport is the quota snapshot plus recent history
type UsageReport struct {
	models.UsageStats
	ApproachingLimit bool                `json:"approaching_limit"`
	History          []models.DailyUsage `json:"history,omitempty"`
}

// QuotaGuard manages the daily call ceiling
type QuotaGuard struct {
	usageRepo  repository.UsageRepository
	dailyLimit int
	logger     *slog.Logger
	now        func() time.Time
}

// NewQuotaGuard creates a new quota guard
func NewQuotaGuard(usageRepo repository.UsageRepository, dailyLimit int, logger *slog.Logger) *QuotaGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}

	return &QuotaGuard{
		usageRepo:  usageRepo,
		dailyLimit: dailyLimit,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (q *QuotaGuard) SetClock(now func() time.Time) {
	q.now = now
}

// DailyLimit returns the configured ceiling
func (q *QuotaGuard) DailyLimit() int {
	return q.dailyLimit
}

// CheckLimit fails with a QuotaExceededError when today's usage is at or above the ceiling.
// force always passes and leaves the counter untouched.
func (q *QuotaGuard) CheckLimit(ctx context.Context, force bool) error {
	if force {
		q.logger.Debug("Quota check bypassed by force flag")
		return nil
	}

	today := models.DayOf(q.now())
	calls, err := q.usageRepo.GetUsage(ctx, today.String())
	if err != nil {
		return fmt.Errorf("failed to read API usage: %w", err)
	}

	if calls >= q.dailyLimit {
		metrics.RecordQuotaRejection()
		q.logger.Warn("Daily API limit reached",
			"date", today.String(),
			"calls_made", calls,
			"daily_limit", q.dailyLimit)
		return &models.QuotaExceededError{CallsMade: calls, Limit: q.dailyLimit}
	}

	if q.approaching(calls) {
		q.logger.Warn("Approaching daily API limit",
			"calls_made", calls,
			"daily_limit", q.dailyLimit)
	}
	return nil
}

// RecordCall adds one call to today's counter. It never fails; store errors are logged.
// The increment survives cancellation of ctx because the upstream attempt already happened.
func (q *QuotaGuard) RecordCall(ctx context.Context) {
	today := models.DayOf(q.now())
	calls, err := q.usageRepo.IncrementUsage(context.WithoutCancel(ctx), today.String())
	if err != nil {
		q.logger.Error("Failed to record API call", "date", today.String(), "error", err)
		return
	}
	metrics.SetQuotaUsed(calls)
}

// GetUsageStats returns today's usage snapshot
func (q *QuotaGuard) GetUsageStats(ctx context.Context) (models.UsageStats, error) {
	today := models.DayOf(q.now())
	calls, err := q.usageRepo.GetUsage(ctx, today.String())
	if err != nil {
		return models.UsageStats{}, fmt.Errorf("failed to read API usage: %w", err)
	}
	return models.NewUsageStats(today, calls, q.dailyLimit), nil
}

// IsApproachingLimit reports usage at or above 80% of the ceiling
func (q *QuotaGuard) IsApproachingLimit(ctx context.Context) (bool, error) {
	stats, err := q.GetUsageStats(ctx)
	if err != nil {
		return false, err
	}
	return q.approaching(stats.CallsMade), nil
}

// Report returns today's snapshot with up to historyDays days of recorded usage
func (q *QuotaGuard) Report(ctx context.Context, historyDays int) (*UsageReport, error) {
	stats, err := q.GetUsageStats(ctx)
	if err != nil {
		return nil, err
	}

	report := &UsageReport{
		UsageStats:       stats,
		ApproachingLimit: q.approaching(stats.CallsMade),
	}
	if historyDays > 0 {
		history, err := q.usageRepo.ListUsage(ctx, historyDays)
		if err != nil {
			return nil, fmt.Errorf("failed to read usage history: %w", err)
		}
		report.History = history
	}
	return report, nil
}

func (q *QuotaGuard) approaching(calls int) bool {
	return float64(calls) >= float64(q.dailyLimit)*models.ApproachingLimitRatio
}
