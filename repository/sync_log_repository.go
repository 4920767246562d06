// ABOUTME: Append-only audit trail of bulk sync runs
// ABOUTME: Entries are inserted and listed; nothing here updates or deletes them

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"mindbody-mcp/models"
)

// SyncLogRepository interface for sync audit log operations
type SyncLogRepository interface {
	Append(ctx context.Context, entry *models.SyncLogEntry) error
	List(ctx context.Context, operation string, limit int) ([]*models.SyncLogEntry, error)
}

// SQLSyncLogRepository implements SyncLogRepository over database/sql
type SQLSyncLogRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(conn *Connection, logger *slog.Logger) *SQLSyncLogRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLSyncLogRepository{conn: conn, logger: logger}
}

// Append inserts entry and fills in its id
func (r *SQLSyncLogRepository) Append(ctx context.Context, entry *models.SyncLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	var details sql.NullString
	if len(entry.Details) > 0 {
		details = sql.NullString{String: string(entry.Details), Valid: true}
	}

	query := `
		INSERT INTO sync_log (timestamp, operation, status, message, details)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	err := r.conn.DB().QueryRowContext(ctx, r.conn.Rebind(query),
		formatTime(entry.Timestamp), entry.Operation, entry.Status, entry.Message, details,
	).Scan(&entry.ID)
	if err != nil {
		r.logger.Error("Failed to append sync log entry", "operation", entry.Operation, "error", err)
		return fmt.Errorf("failed to append sync log entry: %w", err)
	}
	return nil
}

// List returns the newest entries first, optionally filtered by operation
func (r *SQLSyncLogRepository) List(ctx context.Context, operation string, limit int) ([]*models.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, timestamp, operation, status, message, details FROM sync_log`
	args := []any{}
	if operation != "" {
		query += ` WHERE operation = ?`
		args = append(args, operation)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.conn.DB().QueryContext(ctx, r.conn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		var (
			e       models.SyncLogEntry
			ts      string
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Operation, &e.Status, &e.Message, &details); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("failed to parse sync log timestamp: %w", err)
		}
		if details.Valid {
			e.Details = []byte(details.String)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
