package models

import "time"

// ApproachingLimitRatio is the share of the daily ceiling at which usage is reported as close to the limit.
const ApproachingLimitRatio = 0.8

// UsageStats is the quota snapshot for the current UTC day
type UsageStats struct {
	Date           string    `json:"date"`
	CallsMade      int       `json:"calls_made"`
	Limit          int       `json:"limit"`
	CallsRemaining int       `json:"calls_remaining"`
	ResetTime      time.Time `json:"reset_time"`
}

// NewUsageStats builds a snapshot; CallsRemaining is floored at zero.
func NewUsageStats(day CalendarDay, callsMade, limit int) UsageStats {
	return UsageStats{
		Date:           day.String(),
		CallsMade:      callsMade,
		Limit:          limit,
		CallsRemaining: max(0, limit-callsMade),
		ResetTime:      day.Next().Start(),
	}
}

// DailyUsage is one row of the per-date counter table
type DailyUsage struct {
	Date  string `json:"date"`
	Calls int    `json:"calls"`
}
