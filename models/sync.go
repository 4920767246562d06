// ABOUTME: Sync run outcomes and the append-only sync audit log entry
// ABOUTME: A run ends COMPLETED, PARTIAL or RATE_LIMITED; the log status is success, warning or error

package models

import (
	"encoding/json"
	"time"
)

// SyncState is the terminal state of one bulk sync run
type SyncState string

const (
	SyncStateCompleted   SyncState = "COMPLETED"
	SyncStatePartial     SyncState = "PARTIAL"
	SyncStateRateLimited SyncState = "RATE_LIMITED"
)

// Sync log statuses
const (
	SyncStatusStarted = "started"
	SyncStatusSuccess = "success"
	SyncStatusWarning = "warning"
	SyncStatusError   = "error"
)

// SyncResult is returned by every bulk sync. A non-empty Errors list with TotalSynced > 0
// is a successful partial sync.
type SyncResult struct {
	RunID       string        `json:"run_id"`
	Operation   string        `json:"operation"`
	TotalSynced int           `json:"total_synced"`
	Errors      []string      `json:"errors"`
	State       SyncState     `json:"state"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// LogStatus maps the run outcome onto the audit log status
func (r *SyncResult) LogStatus() string {
	if len(r.Errors) > 0 {
		return SyncStatusWarning
	}
	return SyncStatusSuccess
}

// SyncLogEntry is one append-only audit record
type SyncLogEntry struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Operation string          `json:"operation"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
}
