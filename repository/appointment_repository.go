// ABOUTME: This file persists staff appointments and bookable availability slots
// ABOUTME: Both are refreshed from listing calls and upserted by id without merging

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"mindbody-mcp/models"
)

// AppointmentRepository interface for appointment and bookable item operations
type AppointmentRepository interface {
	SaveAppointments(ctx context.Context, appointments []*models.Appointment) error
	SaveBookableItems(ctx context.Context, items []*models.BookableItem) error
	CountAppointments(ctx context.Context) (int, error)
	CountBookableItems(ctx context.Context) (int, error)
}

// SQLAppointmentRepository implements AppointmentRepository over database/sql
type SQLAppointmentRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(conn *Connection, logger *slog.Logger) *SQLAppointmentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLAppointmentRepository{conn: conn, logger: logger}
}

const upsertAppointmentQuery = `
	INSERT INTO appointments (
		id, client_id, staff_id, location_id, session_type_id, status,
		start_datetime, end_datetime, raw, last_synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		client_id = excluded.client_id,
		staff_id = excluded.staff_id,
		location_id = excluded.location_id,
		session_type_id = excluded.session_type_id,
		status = excluded.status,
		start_datetime = excluded.start_datetime,
		end_datetime = excluded.end_datetime,
		raw = excluded.raw,
		last_synced_at = excluded.last_synced_at`

const upsertBookableItemQuery = `
	INSERT INTO bookable_items (
		id, staff_id, location_id, session_type_id,
		start_datetime, end_datetime, raw, last_synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		staff_id = excluded.staff_id,
		location_id = excluded.location_id,
		session_type_id = excluded.session_type_id,
		start_datetime = excluded.start_datetime,
		end_datetime = excluded.end_datetime,
		raw = excluded.raw,
		last_synced_at = excluded.last_synced_at`

// SaveAppointments upserts a batch of appointments in one transaction
func (r *SQLAppointmentRepository) SaveAppointments(ctx context.Context, appointments []*models.Appointment) error {
	if len(appointments) == 0 {
		return nil
	}

	err := r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.conn.Rebind(upsertAppointmentQuery))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, a := range appointments {
			if _, err := stmt.ExecContext(ctx,
				a.ID, a.ClientID, a.StaffID, a.LocationID, a.SessionTypeID, a.Status,
				formatTime(a.StartDateTime), formatTime(a.EndDateTime), string(a.Raw), formatTime(a.LastSyncedAt),
			); err != nil {
				return fmt.Errorf("failed to upsert appointment %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save appointments", "count", len(appointments), "error", err)
	}
	return err
}

// SaveBookableItems upserts a batch of bookable items in one transaction
func (r *SQLAppointmentRepository) SaveBookableItems(ctx context.Context, items []*models.BookableItem) error {
	if len(items) == 0 {
		return nil
	}

	err := r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.conn.Rebind(upsertBookableItemQuery))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, it := range items {
			if _, err := stmt.ExecContext(ctx,
				it.ID, it.StaffID, it.LocationID, it.SessionTypeID,
				formatTime(it.StartDateTime), formatTime(it.EndDateTime), string(it.Raw), formatTime(it.LastSyncedAt),
			); err != nil {
				return fmt.Errorf("failed to upsert bookable item %s: %w", it.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save bookable items", "count", len(items), "error", err)
	}
	return err
}

// CountAppointments returns the number of stored appointments
func (r *SQLAppointmentRepository) CountAppointments(ctx context.Context) (int, error) {
	return countRows(ctx, r.conn, "appointments")
}

// CountBookableItems returns the number of stored bookable items
func (r *SQLAppointmentRepository) CountBookableItems(ctx context.Context) (int, error) {
	return countRows(ctx, r.conn, "bookable_items")
}
