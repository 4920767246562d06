// ABOUTME: This file handles client profile persistence for synchronized upstream clients
// ABOUTME: Saves are full-row upserts keyed by the upstream id; batches commit atomically

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"mindbody-mcp/models"
)

// ErrNotFound is returned when a lookup by id matches no row
var ErrNotFound = errors.New("record not found")

// ClientRepository interface for client data operations
type ClientRepository interface {
	SaveClient(ctx context.Context, client *models.Client) error
	SaveClients(ctx context.Context, clients []*models.Client) error
	GetClient(ctx context.Context, id string) (*models.Client, error)
	ListClients(ctx context.Context, status string, limit int) ([]*models.Client, error)
	CountClients(ctx context.Context) (int, error)
}

// SQLClientRepository implements ClientRepository over database/sql
type SQLClientRepository struct {
	conn   *Connection
	logger *slog.Logger
}

// NewClientRepository creates a new client repository
func NewClientRepository(conn *Connection, logger *slog.Logger) *SQLClientRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLClientRepository{conn: conn, logger: logger}
}

const upsertClientQuery = `
	INSERT INTO clients (
		id, first_name, last_name, email, mobile_phone,
		status, active, raw, last_synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		email = excluded.email,
		mobile_phone = excluded.mobile_phone,
		status = excluded.status,
		active = excluded.active,
		raw = excluded.raw,
		last_synced_at = excluded.last_synced_at`

// SaveClient upserts a single client
func (r *SQLClientRepository) SaveClient(ctx context.Context, client *models.Client) error {
	return r.SaveClients(ctx, []*models.Client{client})
}

// SaveClients upserts a batch of clients in one transaction
func (r *SQLClientRepository) SaveClients(ctx context.Context, clients []*models.Client) error {
	if len(clients) == 0 {
		return nil
	}

	err := r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, r.conn.Rebind(upsertClientQuery))
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range clients {
			if _, err := stmt.ExecContext(ctx,
				c.ID, c.FirstName, c.LastName, c.Email, c.MobilePhone,
				c.Status, boolToInt(c.Active), string(c.Raw), formatTime(c.LastSyncedAt),
			); err != nil {
				return fmt.Errorf("failed to upsert client %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save clients", "count", len(clients), "error", err)
		return err
	}

	r.logger.Debug("Saved clients", "count", len(clients))
	return nil
}

const selectClientColumns = `SELECT id, first_name, last_name, email, mobile_phone, status, active, raw, last_synced_at FROM clients`

// GetClient returns the stored client or ErrNotFound
func (r *SQLClientRepository) GetClient(ctx context.Context, id string) (*models.Client, error) {
	row := r.conn.DB().QueryRowContext(ctx, r.conn.Rebind(selectClientColumns+` WHERE id = ?`), id)
	client, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client %s: %w", id, err)
	}
	return client, nil
}

// ListClients returns stored clients ordered by name, optionally filtered by status
func (r *SQLClientRepository) ListClients(ctx context.Context, status string, limit int) ([]*models.Client, error) {
	query := selectClientColumns
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY last_name, first_name, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.conn.DB().QueryContext(ctx, r.conn.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// CountClients returns the number of stored clients
func (r *SQLClientRepository) CountClients(ctx context.Context) (int, error) {
	return countRows(ctx, r.conn, "clients")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(s rowScanner) (*models.Client, error) {
	var (
		c        models.Client
		active   int
		raw      string
		syncedAt string
	)
	if err := s.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.MobilePhone, &c.Status, &active, &raw, &syncedAt); err != nil {
		return nil, err
	}
	c.Active = active != 0
	c.Raw = []byte(raw)

	t, err := parseTime(syncedAt)
	if err != nil {
		return nil, err
	}
	c.LastSyncedAt = t
	return &c, nil
}

func countRows(ctx context.Context, conn *Connection, table string) (int, error) {
	var n int
	if err := conn.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
