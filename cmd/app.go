package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"mindbody-mcp/config"
	"mindbody-mcp/driver"
	"mindbody-mcp/handler"
	"mindbody-mcp/repository"
	"mindbody-mcp/service"
)

// app holds the wired store and services for one command invocation
type app struct {
	conn *repository.Connection

	clients      *repository.SQLClientRepository
	sales        *repository.SQLSaleRepository
	appointments *repository.SQLAppointmentRepository
	usage        *repository.SQLUsageRepository
	syncLog      *repository.SQLSyncLogRepository

	quota         *service.QuotaGuard
	responseCache *service.ResponseCache
	entityCache   *service.EntityCache

	// set only when upstream access was requested
	tokens   *service.TokenManager
	api      *service.APIClient
	sync     *service.SyncService
	notes    *service.NotesService
	updates  *service.ClientUpdateService
	schedule *service.AppointmentService
	export   *service.ExportService
}

// openStore connects to the configured store and runs migrations
func openStore(ctx context.Context, c *config.Config) (*repository.Connection, error) {
	dsn := c.Database.DSN
	if c.Database.Driver == string(repository.DialectSQLite) {
		dsn = filepath.Join(c.Data.Dir, repository.SQLiteFileName)
	}
	return repository.Open(ctx, c.Database.Driver, dsn, appLogger)
}

// newApp wires the store-backed components; withUpstream also builds the authenticated API stack
func newApp(ctx context.Context, c *config.Config, withUpstream bool) (*app, error) {
	if withUpstream {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	conn, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	a := &app{
		conn:         conn,
		clients:      repository.NewClientRepository(conn, appLogger),
		sales:        repository.NewSaleRepository(conn, appLogger),
		appointments: repository.NewAppointmentRepository(conn, appLogger),
		usage:        repository.NewUsageRepository(conn, appLogger),
		syncLog:      repository.NewSyncLogRepository(conn, appLogger),
	}
	a.quota = service.NewQuotaGuard(a.usage, c.Quota.DailyLimit, appLogger)
	a.responseCache = service.NewResponseCache(repository.NewResponseCacheRepository(conn, appLogger), c.Cache.ResponseTTL, appLogger)
	a.entityCache = service.NewEntityCache(repository.NewCacheRepository(conn, appLogger), appLogger)

	if !withUpstream {
		return a, nil
	}

	upstream := driver.NewMindbodyDriver(driver.Config{
		BaseURL: c.Mindbody.BaseURL,
		APIKey:  c.Mindbody.APIKey,
		SiteID:  c.Mindbody.SiteID,
		Timeout: c.Mindbody.Timeout,
	}, appLogger)

	a.tokens = service.NewTokenManager(upstream, c.Mindbody.StaffUsername, c.Mindbody.StaffPassword, appLogger)
	a.api = service.NewAPIClient(upstream, a.tokens, a.quota, appLogger)
	a.api.SetRequestsPerSecond(c.Mindbody.RequestsPerSecond)

	a.sync = service.NewSyncService(a.api, a.clients, a.sales, a.syncLog, service.SyncConfig{
		PageSize:  c.Sync.PageSize,
		ChunkDays: c.Sync.ChunkDays,
	}, appLogger)
	a.notes = service.NewNotesService(a.api, a.responseCache, c.Cache.ResponseTTL, appLogger)
	a.updates = service.NewClientUpdateService(a.api, a.clients, appLogger)
	a.schedule = service.NewAppointmentService(a.api, a.entityCache, a.appointments, c.Cache.AppointmentTTL, c.Cache.BookableTTL, appLogger)
	a.export = service.NewExportService(a.sync, a.sales, appLogger)
	return a, nil
}

// mcpHandler exposes the wired services as MCP tools and resources
func (a *app) mcpHandler() *handler.MCPHandler {
	return handler.NewMCPHandler(handler.Dependencies{
		Sync:     a.sync,
		Export:   a.export,
		Notes:    a.notes,
		Updates:  a.updates,
		Schedule: a.schedule,
		Usage:    a.quota,
		Cache:    a.responseCache,
	}, appLogger)
}

func (a *app) Close() error {
	return a.conn.Close()
}
