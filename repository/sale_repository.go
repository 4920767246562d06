// ABOUTME: This file handles sale persistence for date-chunked sales synchronization
// ABOUTME: Sales are upserted by id and read back by sale datetime range for export

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"mindbody-mcp/models"
)

// SaleRepository interface for sale data operations
type SaleRepository interface {
	SaveSales(ctx context.Context, sales []*models.Sale) error
	ListSalesBetween(ctx context.Context, start, end time.Time) ([]*models.Sale, error)
	CountSales(ctx context.Context) (int, error)
}

// SQLSaleRepository implements SaleRepository over database/sql
type SQLSaleRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(conn *Connection, logger *slog.Logger) *SQLSaleRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLSaleRepository{conn: conn, logger: logger}
}

const upsertSaleQuery = `
	INSERT INTO sales (
		id, client_id, sale_datetime, location_id, total_amount, raw, last_synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		client_id = excluded.client_id,
		sale_datetime = excluded.sale_datetime,
		location_id = excluded.location_id,
		total_amount = excluded.total_amount,
		raw = excluded.raw,
		last_synced_at = excluded.last_synced_at`

// SaveSales upserts a batch of sales in one transaction
func (r *SQLSaleRepository) SaveSales(ctx context.Context, sales []*models.Sale) error {
	if len(sales) == 0 {
		return nil
	}

	err := r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.conn.Rebind(upsertSaleQuery))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, s := range sales {
			if _, err := stmt.ExecContext(ctx,
				s.ID, s.ClientID, formatTime(s.SaleDateTime), s.LocationID,
				s.TotalAmount, string(s.Raw), formatTime(s.LastSyncedAt),
			); err != nil {
				return fmt.Errorf("failed to upsert sale %s: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save sales", "count", len(sales), "error", err)
		return err
	}
	return nil
}

// ListSalesBetween returns sales whose datetime falls in the half-open range [start, end), oldest first
func (r *SQLSaleRepository) ListSalesBetween(ctx context.Context, start, end time.Time) ([]*models.Sale, error) {
	query := `
		SELECT id, client_id, sale_datetime, location_id, total_amount, raw, last_synced_at
		FROM sales
		WHERE sale_datetime >= ? AND sale_datetime < ?
		ORDER BY sale_datetime, id`

	rows, err := r.conn.DB().QueryContext(ctx, r.conn.Rebind(query), formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		var (
			s                models.Sale
			saleAt, syncedAt string
			raw              string
		)
		if err := rows.Scan(&s.ID, &s.ClientID, &saleAt, &s.LocationID, &s.TotalAmount, &raw, &syncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		if s.SaleDateTime, err = parseTime(saleAt); err != nil {
			return nil, fmt.Errorf("failed to parse sale datetime: %w", err)
		}
		if s.LastSyncedAt, err = parseTime(syncedAt); err != nil {
			return nil, fmt.Errorf("failed to parse sync time: %w", err)
		}
		s.Raw = []byte(raw)
		sales = append(sales, &s)
	}
	return sales, rows.Err()
}

// CountSales returns the number of stored sales
func (r *SQLSaleRepository) CountSales(ctx context.Context) (int, error) {
	return countRows(ctx, r.conn, "sales")
}
