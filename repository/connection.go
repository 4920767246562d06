// ABOUTME: Database connection wrapper for the embedded SQLite store and the optional PostgreSQL store
// ABOUTME: Owns schema migration, placeholder rebinding and the shared transaction helper

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavor of the underlying store
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLiteFileName is the database file created inside the data directory
const SQLiteFileName = "mindbody.db"

// timestamps are stored as fixed-width UTC text so they sort lexicographically
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Connection represents a database connection wrapper
type Connection struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open connects to the store selected by driver. For sqlite, dsn is a file path or ":memory:".
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Connection, error) {
	switch Dialect(driver) {
	case DialectSQLite, "":
		return OpenSQLite(ctx, dsn, logger)
	case DialectPostgres:
		return OpenPostgres(ctx, dsn, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens (and creates) the embedded store
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	return newConnection(ctx, db, DialectSQLite, logger.With("component", "database", "driver", "sqlite", "path", path))
}

// OpenPostgres opens a PostgreSQL store shared between several server instances
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres driver requires a DSN")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return newConnection(ctx, db, DialectPostgres, logger.With("component", "database", "driver", "postgres"))
}

func newConnection(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) (*Connection, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn := &Connection{db: db, dialect: dialect, logger: logger}
	if err := conn.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return conn, nil
}

func (c *Connection) migrate(ctx context.Context) error {
	autoID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if c.dialect == DialectPostgres {
		autoID = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			mobile_phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 0,
			raw TEXT NOT NULL,
			last_synced_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clients_status ON clients(status)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL DEFAULT '',
			sale_datetime TEXT NOT NULL DEFAULT '',
			location_id TEXT NOT NULL DEFAULT '',
			total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			raw TEXT NOT NULL,
			last_synced_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_datetime ON sales(sale_datetime)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL DEFAULT '',
			staff_id TEXT NOT NULL DEFAULT '',
			location_id TEXT NOT NULL DEFAULT '',
			session_type_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			start_datetime TEXT NOT NULL DEFAULT '',
			end_datetime TEXT NOT NULL DEFAULT '',
			raw TEXT NOT NULL,
			last_synced_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_start ON appointments(start_datetime)`,
		`CREATE TABLE IF NOT EXISTS bookable_items (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL DEFAULT '',
			location_id TEXT NOT NULL DEFAULT '',
			session_type_id TEXT NOT NULL DEFAULT '',
			start_datetime TEXT NOT NULL DEFAULT '',
			end_datetime TEXT NOT NULL DEFAULT '',
			raw TEXT NOT NULL,
			last_synced_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_usage (
			date TEXT PRIMARY KEY,
			calls INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sync_log (
			id ` + autoID + `,
			timestamp TEXT NOT NULL,
			operation TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			details TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_log_timestamp ON sync_log(timestamp)`,
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS api_cache (
			cache_key TEXT PRIMARY KEY,
			endpoint TEXT NOT NULL,
			params TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL DEFAULT '',
			hit_count INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DB returns the underlying *sql.DB instance
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Dialect returns the SQL flavor of the connection
func (c *Connection) Dialect() Dialect {
	return c.dialect
}

// Close closes the database connection
func (c *Connection) Close() error {
	if c.db != nil {
		c.logger.Info("Closing database connection")
		return c.db.Close()
	}
	return nil
}

// Rebind rewrites ? placeholders into the dialect's placeholder style
func (c *Connection) Rebind(query string) string {
	if c.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WithTransaction executes fn within a database transaction
func (c *Connection) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
