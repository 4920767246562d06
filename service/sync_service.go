// ABOUTME: Bulk synchronization of clients and sales from the upstream API into the local store
// ABOUTME: Pages are fetched and upserted one at a time; quota exhaustion stops the run with partial results

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mindbody-mcp/driver"
	"mindbody-mcp/metrics"
	"mindbody-mcp/models"
	"mindbody-mcp/repository"

	"github.com/google/uuid"
)

// Sync operation names used in the audit log
const (
	OperationSyncClients = "sync_clients"
	OperationSyncSales   = "sync_sales"
)

const (
	DefaultPageSize  = 100
	DefaultChunkDays = 7

	// maxConsecutivePageFailures ends a client sync that has no known total
	maxConsecutivePageFailures = 3
)

// SyncConfig holds paging parameters
type SyncConfig struct {
	PageSize  int
	ChunkDays int
}

// ClientSyncOptions filters a client sync
type ClientSyncOptions struct {
	Status string `json:"status,omitempty"`
	Since  string `json:"since,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Force  bool   `json:"force,omitempty"`
}

// SalesSyncOptions bounds a sales sync; both days are inclusive
type SalesSyncOptions struct {
	Start models.CalendarDay
	End   models.CalendarDay
	Force bool
}

// SyncService orchestrates paginated and date-chunked bulk retrieval
type SyncService struct {
	api       APIRequester
	clients   repository.ClientRepository
	sales     repository.SaleRepository
	syncLog   repository.SyncLogRepository
	pageSize  int
	chunkDays int
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncService creates a new sync orchestrator
func NewSyncService(
	api APIRequester,
	clients repository.ClientRepository,
	sales repository.SaleRepository,
	syncLog repository.SyncLogRepository,
	cfg SyncConfig,
	logger *slog.Logger,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = DefaultChunkDays
	}

	return &SyncService{
		api:       api,
		clients:   clients,
		sales:     sales,
		syncLog:   syncLog,
		pageSize:  cfg.PageSize,
		chunkDays: cfg.ChunkDays,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source
func (s *SyncService) SetClock(now func() time.Time) {
	s.now = now
}

// pageOutcome is what one fetched and upserted page contributed
type pageOutcome struct {
	fetched    int
	saved      int
	pagination models.PaginationResponse
	recordErrs []string
}

// SyncClients pages through the client listing and upserts each page as it arrives
func (s *SyncService) SyncClients(ctx context.Context, opts ClientSyncOptions) (*models.SyncResult, error) {
	if err := validateInput(opts); err != nil {
		return nil, err
	}
	var since *models.CalendarDay
	if opts.Since != "" {
		day, err := models.ParseDay(opts.Since)
		if err != nil {
			return nil, err
		}
		since = &day
	}

	result := s.begin(ctx, OperationSyncClients, map[string]any{
		"status": opts.Status,
		"since":  opts.Since,
		"force":  opts.Force,
	})

	offset := 0
	total := -1
	consecutiveFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			return result, s.abort(ctx, result, err)
		}

		params := map[string]any{
			"request.limit":  s.pageSize,
			"request.offset": offset,
		}
		if opts.Status != "" {
			params["request.clientStatus"] = opts.Status
		}
		if since != nil {
			params["request.lastModifiedDate"] = since.Start().Format(driver.UpstreamDateTimeLayout)
		}

		page, err := s.fetchPage(ctx, models.APIRequest{
			Endpoint: driver.EndpointClients,
			Params:   params,
			Force:    opts.Force,
		}, "Clients", s.saveClients)
		if err != nil {
			pageErr := &models.SyncPageError{Operation: OperationSyncClients, Offset: offset, Err: err}
			result.Errors = append(result.Errors, pageErr.Error())

			if errors.Is(err, models.ErrQuotaExceeded) {
				s.logger.Warn("Client sync stopped by daily quota", "offset", offset, "total_synced", result.TotalSynced)
				result.State = models.SyncStateRateLimited
				break
			}

			s.logger.Warn("Client page failed, continuing", "offset", offset, "error", err)
			consecutiveFailures++
			offset += s.pageSize
			if total < 0 && consecutiveFailures >= maxConsecutivePageFailures {
				break
			}
			if total >= 0 && offset >= total {
				break
			}
			continue
		}

		consecutiveFailures = 0
		result.TotalSynced += page.saved
		result.Errors = append(result.Errors, page.recordErrs...)
		if page.pagination.TotalResults > 0 {
			total = page.pagination.TotalResults
		}

		s.logger.Debug("Client page synced", "offset", offset, "fetched", page.fetched, "total", total)

		if page.fetched == 0 {
			break
		}
		if total >= 0 && result.TotalSynced >= total {
			break
		}
		if page.fetched < s.pageSize {
			break
		}
		offset += s.pageSize
		if total >= 0 && offset >= total {
			break
		}
	}

	s.finish(ctx, result)
	return result, nil
}

// SyncSales splits the range into contiguous chunks and pages through each one in order
func (s *SyncService) SyncSales(ctx context.Context, opts SalesSyncOptions) (*models.SyncResult, error) {
	chunks, err := models.ChunkDateRange(opts.Start, opts.End, s.chunkDays)
	if err != nil {
		return nil, err
	}

	result := s.begin(ctx, OperationSyncSales, map[string]any{
		"start_date": opts.Start.String(),
		"end_date":   opts.End.String(),
		"chunks":     len(chunks),
		"force":      opts.Force,
	})

chunkLoop:
	for _, chunk := range chunks {
		offset := 0
		total := -1
		chunkSynced := 0

		for {
			if err := ctx.Err(); err != nil {
				return result, s.abort(ctx, result, err)
			}

			page, err := s.fetchPage(ctx, models.APIRequest{
				Endpoint: driver.EndpointSales,
				Params: map[string]any{
					"request.startSaleDateTime": chunk.Start.Start().Format(driver.UpstreamDateTimeLayout),
					"request.endSaleDateTime":   chunk.End.End().Format(driver.UpstreamDateTimeLayout),
					"request.limit":             s.pageSize,
					"request.offset":            offset,
				},
				Force: opts.Force,
			}, "Sales", s.saveSales)
			if err != nil {
				pageErr := &models.SyncPageError{Operation: OperationSyncSales, Chunk: chunk.String(), Offset: offset, Err: err}
				result.Errors = append(result.Errors, pageErr.Error())

				if errors.Is(err, models.ErrQuotaExceeded) {
					s.logger.Warn("Sales sync stopped by daily quota", "chunk", chunk.String(), "total_synced", result.TotalSynced)
					result.State = models.SyncStateRateLimited
					break chunkLoop
				}

				// a bad page only abandons its own chunk
				s.logger.Warn("Sales page failed, skipping rest of chunk", "chunk", chunk.String(), "offset", offset, "error", err)
				continue chunkLoop
			}

			chunkSynced += page.saved
			result.TotalSynced += page.saved
			result.Errors = append(result.Errors, page.recordErrs...)
			if page.pagination.TotalResults > 0 {
				total = page.pagination.TotalResults
			}

			if page.fetched == 0 || page.fetched < s.pageSize {
				break
			}
			if total >= 0 && chunkSynced >= total {
				break
			}
			offset += s.pageSize
			if total >= 0 && offset >= total {
				break
			}
		}

		s.logger.Debug("Sales chunk synced", "chunk", chunk.String(), "synced", chunkSynced)
	}

	s.finish(ctx, result)
	return result, nil
}

// ListSyncLogs returns the newest audit entries, optionally for one operation
func (s *SyncService) ListSyncLogs(ctx context.Context, operation string, limit int) ([]*models.SyncLogEntry, error) {
	return s.syncLog.List(ctx, operation, limit)
}

// fetchPage requests one listing page, decodes the records under field and upserts them with save
func (s *SyncService) fetchPage(
	ctx context.Context,
	req models.APIRequest,
	field string,
	save func(context.Context, []json.RawMessage) (int, []string, error),
) (*pageOutcome, error) {
	body, err := s.api.Request(ctx, req)
	if err != nil {
		return nil, err
	}

	listing, err := models.DecodeListPage(body, field)
	if err != nil {
		return nil, err
	}

	saved, recordErrs, err := save(ctx, listing.Records)
	if err != nil {
		return nil, err
	}

	offset, _ := req.Params["request.offset"].(int)
	for i := range recordErrs {
		recordErrs[i] = fmt.Sprintf("offset %d: %s", offset, recordErrs[i])
	}

	return &pageOutcome{
		fetched:    len(listing.Records),
		saved:      saved,
		pagination: listing.Pagination,
		recordErrs: recordErrs,
	}, nil
}

func (s *SyncService) saveClients(ctx context.Context, records []json.RawMessage) (int, []string, error) {
	syncedAt := s.now()
	clients := make([]*models.Client, 0, len(records))
	var recordErrs []string
	for _, raw := range records {
		c, err := models.ParseClient(raw, syncedAt)
		if err != nil {
			recordErrs = append(recordErrs, err.Error())
			continue
		}
		clients = append(clients, c)
	}

	if err := s.clients.SaveClients(ctx, clients); err != nil {
		return 0, nil, err
	}
	metrics.RecordSyncRecords(OperationSyncClients, len(clients))
	return len(clients), recordErrs, nil
}

func (s *SyncService) saveSales(ctx context.Context, records []json.RawMessage) (int, []string, error) {
	syncedAt := s.now()
	sales := make([]*models.Sale, 0, len(records))
	var recordErrs []string
	for _, raw := range records {
		sale, err := models.ParseSale(raw, syncedAt)
		if err != nil {
			recordErrs = append(recordErrs, err.Error())
			continue
		}
		sales = append(sales, sale)
	}

	if err := s.sales.SaveSales(ctx, sales); err != nil {
		return 0, nil, err
	}
	metrics.RecordSyncRecords(OperationSyncSales, len(sales))
	return len(sales), recordErrs, nil
}

// begin creates the run result and writes the start entry
func (s *SyncService) begin(ctx context.Context, operation string, details map[string]any) *models.SyncResult {
	result := &models.SyncResult{
		RunID:     uuid.NewString(),
		Operation: operation,
		Errors:    []string{},
		StartedAt: s.now(),
	}

	details["run_id"] = result.RunID
	s.logger.Info("Starting sync", "operation", operation, "run_id", result.RunID)
	s.appendLog(ctx, operation, models.SyncStatusStarted, "Starting "+operation, details)
	return result
}

// finish settles the terminal state and writes the finish entry
func (s *SyncService) finish(ctx context.Context, result *models.SyncResult) {
	result.Duration = s.now().Sub(result.StartedAt)
	if result.State == "" {
		result.State = models.SyncStateCompleted
		if len(result.Errors) > 0 {
			result.State = models.SyncStatePartial
		}
	}

	status := result.LogStatus()
	message := fmt.Sprintf("Synced %d records", result.TotalSynced)
	if len(result.Errors) > 0 {
		message = fmt.Sprintf("Synced %d records with %d errors", result.TotalSynced, len(result.Errors))
	}

	s.logger.Info("Sync finished",
		"operation", result.Operation,
		"run_id", result.RunID,
		"state", result.State,
		"total_synced", result.TotalSynced,
		"errors", len(result.Errors),
		"duration", result.Duration)

	s.appendLog(ctx, result.Operation, status, message, map[string]any{
		"run_id":       result.RunID,
		"state":        result.State,
		"total_synced": result.TotalSynced,
		"errors":       result.Errors,
		"duration_ms":  result.Duration.Milliseconds(),
	})
}

// abort records an error that escaped the page loop
func (s *SyncService) abort(ctx context.Context, result *models.SyncResult, err error) error {
	result.Duration = s.now().Sub(result.StartedAt)
	result.State = models.SyncStatePartial

	s.logger.Error("Sync aborted", "operation", result.Operation, "run_id", result.RunID, "error", err)
	// the audit entry is written even when ctx is already cancelled
	s.appendLog(context.WithoutCancel(ctx), result.Operation, models.SyncStatusError, err.Error(), map[string]any{
		"run_id":       result.RunID,
		"total_synced": result.TotalSynced,
		"errors":       result.Errors,
	})
	return fmt.Errorf("%s aborted: %w", result.Operation, err)
}

func (s *SyncService) appendLog(ctx context.Context, operation, status, message string, details map[string]any) {
	encoded, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("Failed to encode sync log details", "error", err)
		encoded = nil
	}

	entry := &models.SyncLogEntry{
		Timestamp: s.now(),
		Operation: operation,
		Status:    status,
		Message:   message,
		Details:   encoded,
	}
	if err := s.syncLog.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to write sync log entry", "operation", operation, "status", status, "error", err)
	}
}
