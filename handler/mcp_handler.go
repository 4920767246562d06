// ABOUTME: MCP tool and resource surface over the sync, notes, update, schedule and export services
// ABOUTME: Failures are returned as flagged tool results with a readable message and never cross the protocol boundary

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"mindbody-mcp/models"
	"mindbody-mcp/service"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs
const (
	ResourceQuotaUsage = "mindbody://quota/usage"
	ResourceCacheStats = "mindbody://cache/stats"
	ResourceSyncLogs   = "mindbody://sync/logs"

	usageHistoryDays = 7
	syncLogLimit     = 50
)

// ClientSyncer runs bulk client syncs
type ClientSyncer interface {
	SyncClients(ctx context.Context, opts service.ClientSyncOptions) (*models.SyncResult, error)
	ListSyncLogs(ctx context.Context, operation string, limit int) ([]*models.SyncLogEntry, error)
}

// SalesExporter refreshes and renders sales
type SalesExporter interface {
	ExportSales(ctx context.Context, startDate, endDate, format string, force bool) (*service.SalesExport, error)
}

// NotesFetcher retrieves client formula notes
type NotesFetcher interface {
	FetchClientNotes(ctx context.Context, clientIDs []string, force bool) (*service.NotesReport, error)
}

// ClientUpdater edits client profiles
type ClientUpdater interface {
	UpdateClient(ctx context.Context, clientID string, fields map[string]any, dryRun, force bool) (*service.ClientUpdateResult, error)
}

// ScheduleLister lists appointments and bookable availability
type ScheduleLister interface {
	GetAppointments(ctx context.Context, q service.AppointmentQuery) (*service.AppointmentsResult, error)
	GetBookableItems(ctx context.Context, q service.BookableItemQuery) (*service.BookableItemsResult, error)
}

// UsageReporter reports quota usage
type UsageReporter interface {
	Report(ctx context.Context, historyDays int) (*service.UsageReport, error)
}

// CacheStatsProvider reports response cache statistics
type CacheStatsProvider interface {
	GetStats(ctx context.Context) (models.CacheStats, error)
}

// Dependencies groups the services behind the tool surface
type Dependencies struct {
	Sync     ClientSyncer
	Export   SalesExporter
	Notes    NotesFetcher
	Updates  ClientUpdater
	Schedule ScheduleLister
	Usage    UsageReporter
	Cache    CacheStatsProvider
}

// MCPHandler adapts services to MCP tools and resources
type MCPHandler struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewMCPHandler creates a new MCP handler
func NewMCPHandler(deps Dependencies, logger *slog.Logger) *MCPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPHandler{deps: deps, logger: logger}
}

// NewServer creates an MCP server with every tool and resource registered
func (h *MCPHandler) NewServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	h.Register(server)
	return server
}

// Register adds the tools and resources to server
func (h *MCPHandler) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_clients",
		Description: "Synchronize client profiles from Mindbody into the local store, page by page. Stops early with partial results when the daily API limit is reached.",
	}, guardTool(h, "sync_clients", h.SyncClients))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_sales",
		Description: "Sync sales for an inclusive date range in 7-day chunks, then export the stored sales as JSON or CSV.",
	}, guardTool(h, "export_sales", h.ExportSales))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_client_notes",
		Description: "Fetch formula notes for one or more clients. Each client costs one API call unless cached.",
	}, guardTool(h, "get_client_notes", h.GetClientNotes))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_client",
		Description: "Update fields on a client profile. Use dry_run to preview the change against the locally stored profile without calling the API.",
	}, guardTool(h, "update_client", h.UpdateClient))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_appointments",
		Description: "List staff appointments between two dates (YYYY-MM-DD), optionally filtered by client, staff or location.",
	}, guardTool(h, "get_appointments", h.GetAppointments))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_bookable_items",
		Description: "List bookable availability for the given session types, optionally filtered by location, staff and date range.",
	}, guardTool(h, "get_bookable_items", h.GetBookableItems))

	server.AddResource(&mcp.Resource{
		URI:         ResourceQuotaUsage,
		Name:        "quota_usage",
		Description: "Today's API call count, remaining calls, reset time and the last week of usage",
		MIMEType:    "application/json",
	}, h.guardResource(ResourceQuotaUsage, h.ReadQuotaUsage))

	server.AddResource(&mcp.Resource{
		URI:         ResourceCacheStats,
		Name:        "cache_stats",
		Description: "Response cache entry count, total hits and stored size",
		MIMEType:    "application/json",
	}, h.guardResource(ResourceCacheStats, h.ReadCacheStats))

	server.AddResource(&mcp.Resource{
		URI:         ResourceSyncLogs,
		Name:        "sync_logs",
		Description: "The most recent sync audit log entries",
		MIMEType:    "application/json",
	}, h.guardResource(ResourceSyncLogs, h.ReadSyncLogs))
}

// SyncClientsInput is the sync_clients argument set
type SyncClientsInput struct {
	Status string `json:"status,omitempty" jsonschema:"client status filter such as Active"`
	Since  string `json:"since,omitempty" jsonschema:"only clients modified on or after this date (YYYY-MM-DD)"`
	Force  bool   `json:"force,omitempty" jsonschema:"bypass the daily API limit"`
}

// SyncClients handles the sync_clients tool
func (h *MCPHandler) SyncClients(ctx context.Context, _ *mcp.CallToolRequest, in SyncClientsInput) (*mcp.CallToolResult, any, error) {
	result, err := h.deps.Sync.SyncClients(ctx, service.ClientSyncOptions{Status: in.Status, Since: in.Since, Force: in.Force})
	if err != nil {
		return h.toolError("sync_clients", err), nil, nil
	}
	return h.toolJSON("sync_clients", result), nil, nil
}

// ExportSalesInput is the export_sales argument set
type ExportSalesInput struct {
	StartDate string `json:"start_date" jsonschema:"first day of the range (YYYY-MM-DD)"`
	EndDate   string `json:"end_date" jsonschema:"last day of the range, inclusive (YYYY-MM-DD)"`
	Format    string `json:"format,omitempty" jsonschema:"json (default) or csv"`
	Force     bool   `json:"force,omitempty" jsonschema:"bypass the daily API limit"`
}

// ExportSales handles the export_sales tool
func (h *MCPHandler) ExportSales(ctx context.Context, _ *mcp.CallToolRequest, in ExportSalesInput) (*mcp.CallToolResult, any, error) {
	export, err := h.deps.Export.ExportSales(ctx, in.StartDate, in.EndDate, in.Format, in.Force)
	if err != nil {
		return h.toolError("export_sales", err), nil, nil
	}

	summary := map[string]any{
		"start_date": export.StartDate,
		"end_date":   export.EndDate,
		"format":     export.Format,
		"count":      export.Count,
		"sync":       export.Sync,
	}
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return h.toolError("export_sales", err), nil, nil
	}

	// the export body goes in its own block so CSV stays readable
	return &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: string(encoded)},
		&mcp.TextContent{Text: export.Data},
	}}, nil, nil
}

// ClientNotesInput is the get_client_notes argument set
type ClientNotesInput struct {
	ClientIDs []string `json:"client_ids" jsonschema:"client ids to fetch notes for"`
	Force     bool     `json:"force,omitempty" jsonschema:"bypass the daily API limit"`
}

// GetClientNotes handles the get_client_notes tool
func (h *MCPHandler) GetClientNotes(ctx context.Context, _ *mcp.CallToolRequest, in ClientNotesInput) (*mcp.CallToolResult, any, error) {
	report, err := h.deps.Notes.FetchClientNotes(ctx, in.ClientIDs, in.Force)
	if err != nil {
		return h.toolError("get_client_notes", err), nil, nil
	}
	return h.toolJSON("get_client_notes", report), nil, nil
}

// UpdateClientInput is the update_client argument set
type UpdateClientInput struct {
	ClientID string         `json:"client_id" jsonschema:"id of the client to update"`
	Fields   map[string]any `json:"fields" jsonschema:"client fields to set, using Mindbody field names such as Email or MobilePhone"`
	DryRun   bool           `json:"dry_run,omitempty" jsonschema:"preview the change without calling the API"`
	Force    bool           `json:"force,omitempty" jsonschema:"bypass the daily API limit"`
}

// UpdateClient handles the update_client tool
func (h *MCPHandler) UpdateClient(ctx context.Context, _ *mcp.CallToolRequest, in UpdateClientInput) (*mcp.CallToolResult, any, error) {
	result, err := h.deps.Updates.UpdateClient(ctx, in.ClientID, in.Fields, in.DryRun, in.Force)
	if err != nil {
		return h.toolError("update_client", err), nil, nil
	}
	return h.toolJSON("update_client", result), nil, nil
}

// AppointmentsInput is the get_appointments argument set
type AppointmentsInput struct {
	StartDate   string `json:"start_date" jsonschema:"first day (YYYY-MM-DD)"`
	EndDate     string `json:"end_date" jsonschema:"last day, inclusive (YYYY-MM-DD)"`
	ClientID    string `json:"client_id,omitempty" jsonschema:"only appointments for this client"`
	StaffIDs    []int  `json:"staff_ids,omitempty" jsonschema:"only appointments with these staff members"`
	LocationIDs []int  `json:"location_ids,omitempty" jsonschema:"only appointments at these locations"`
	Limit       int    `json:"limit,omitempty" jsonschema:"page size between 1 and 200, default 100"`
	Offset      int    `json:"offset,omitempty" jsonschema:"records to skip"`
	Force       bool   `json:"force,omitempty" jsonschema:"bypass the daily API limit"`
}

// GetAppointments handles the get_appointments tool
func (h *MCPHandler) GetAppointments(ctx context.Context, _ *mcp.CallToolRequest, in AppointmentsInput) (*mcp.CallToolResult, any, error) {
	result, err := h.deps.Schedule.GetAppointments(ctx, service.AppointmentQuery{
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		ClientID:    in.ClientID,
		StaffIDs:    in.StaffIDs,
		LocationIDs: in.LocationIDs,
		Limit:       in.Limit,
		Offset:      in.Offset,
		Force:       in.Force,
	})
	if err != nil {
		return h.toolError("get_appointments", err), nil, nil
	}
	return h.toolJSON("get_appointments", result), nil, nil
}

// BookableItemsInput is the get_bookable_items argument set
type BookableItemsInput struct {
	SessionTypeIDs []int  `json:"session_type_ids" jsonschema:"session types to list availability for"`
	LocationIDs    []int  `json:"location_ids,omitempty" jsonschema:"only these locations"`
	StaffIDs       []int  `json:"staff_ids,omitempty" jsonschema:"only these staff members"`
	StartDate      string `json:"start_date,omitempty" jsonschema:"first day (YYYY-MM-DD); requires end_date"`
	EndDate        string `json:"end_date,omitempty" jsonschema:"last day, inclusive (YYYY-MM-DD); requires start_date"`
	Limit          int    `json:"limit,omitempty" jsonschema:"page size between 1 and 200, default 100"`
	Offset         int    `json:"offset,omitempty" jsonschema:"records to skip"`
	Force          bool   `json:"force,omitempty" jsonschema:"bypass the daily API limit"`
}

// GetBookableItems handles the get_bookable_items tool
func (h *MCPHandler) GetBookableItems(ctx context.Context, _ *mcp.CallToolRequest, in BookableItemsInput) (*mcp.CallToolResult, any, error) {
	result, err := h.deps.Schedule.GetBookableItems(ctx, service.BookableItemQuery{
		SessionTypeIDs: in.SessionTypeIDs,
		LocationIDs:    in.LocationIDs,
		StaffIDs:       in.StaffIDs,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Limit:          in.Limit,
		Offset:         in.Offset,
		Force:          in.Force,
	})
	if err != nil {
		return h.toolError("get_bookable_items", err), nil, nil
	}
	return h.toolJSON("get_bookable_items", result), nil, nil
}

// ReadQuotaUsage serves the quota usage resource
func (h *MCPHandler) ReadQuotaUsage(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	report, err := h.deps.Usage.Report(ctx, usageHistoryDays)
	if err != nil {
		return nil, h.resourceError(ResourceQuotaUsage, err)
	}
	return jsonResource(ResourceQuotaUsage, report)
}

// ReadCacheStats serves the cache statistics resource
func (h *MCPHandler) ReadCacheStats(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := h.deps.Cache.GetStats(ctx)
	if err != nil {
		return nil, h.resourceError(ResourceCacheStats, err)
	}
	return jsonResource(ResourceCacheStats, stats)
}

// ReadSyncLogs serves the sync log resource
func (h *MCPHandler) ReadSyncLogs(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	logs, err := h.deps.Sync.ListSyncLogs(ctx, "", syncLogLimit)
	if err != nil {
		return nil, h.resourceError(ResourceSyncLogs, err)
	}
	if logs == nil {
		logs = []*models.SyncLogEntry{}
	}
	return jsonResource(ResourceSyncLogs, logs)
}

// guardTool converts a panic in fn into a flagged error result
func guardTool[In any](
	h *MCPHandler,
	tool string,
	fn func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error),
) func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (result *mcp.CallToolResult, out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Tool handler panicked", "tool", tool, "panic", r, "stack", string(debug.Stack()))
				result, out, err = h.toolError(tool, fmt.Errorf("internal error: %v", r)), nil, nil
			}
		}()
		return fn(ctx, req, in)
	}
}

// guardResource converts a panic in fn into a read error
func (h *MCPHandler) guardResource(uri string, fn mcp.ResourceHandler) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (result *mcp.ReadResourceResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Resource handler panicked", "uri", uri, "panic", r, "stack", string(debug.Stack()))
				result, err = nil, fmt.Errorf("failed to read %s: internal error", uri)
			}
		}()
		return fn(ctx, req)
	}
}

func (h *MCPHandler) toolJSON(tool string, v any) *mcp.CallToolResult {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return h.toolError(tool, fmt.Errorf("failed to encode result: %w", err))
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(encoded)}}}
}

func (h *MCPHandler) toolError(tool string, err error) *mcp.CallToolResult {
	level := slog.LevelError
	if errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrQuotaExceeded) {
		level = slog.LevelWarn
	}
	h.logger.Log(context.Background(), level, "Tool call failed", "tool", tool, "error", err)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}
}

func (h *MCPHandler) resourceError(uri string, err error) error {
	h.logger.Error("Resource read failed", "uri", uri, "error", err)
	return fmt.Errorf("failed to read %s: %w", uri, err)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(encoded),
		}},
	}, nil
}
