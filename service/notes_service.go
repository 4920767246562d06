// ABOUTME: Fetches client formula notes one client at a time through the response cache
// ABOUTME: Expiry of cached note lookups is enforced here since the response cache does not

package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"mindbody-mcp/driver"
	"mindbody-mcp/models"
)

// FormulaNote is one structured note entry
type FormulaNote struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	EntryDate     string          `json:"entry_date,omitempty"`
	Note          string          `json:"note"`
	Raw           json.RawMessage `json:"-"`
}

// ClientNotes groups the notes of one client
type ClientNotes struct {
	ClientID string        `json:"client_id"`
	Notes    []FormulaNote `json:"notes"`
	Cached   bool          `json:"cached"`
	Error    string        `json:"error,omitempty"`
}

// NotesReport is the outcome of a multi-client lookup
type NotesReport struct {
	Clients     []ClientNotes `json:"clients"`
	TotalNotes  int           `json:"total_notes"`
	RateLimited bool          `json:"rate_limited"`
	Errors      []string      `json:"errors,omitempty"`
}

// NotesService retrieves client formula notes
type NotesService struct {
	api    APIRequester
	cache  *ResponseCache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewNotesService creates a notes service; cached lookups older than ttl are refetched
func NewNotesService(api APIRequester, cache *ResponseCache, ttl time.Duration, logger *slog.Logger) *NotesService {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	return &NotesService{api: api, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// SetClock replaces the time source
func (s *NotesService) SetClock(now func() time.Time) {
	s.now = now
}

type notesRequest struct {
	ClientIDs []string `json:"client_ids" validate:"required,min=1,dive,required"`
}

// FetchClientNotes looks up notes for each distinct id in order. Quota exhaustion stops the lookup
// and the ids fetched so far are still returned.
func (s *NotesService) FetchClientNotes(ctx context.Context, clientIDs []string, force bool) (*NotesReport, error) {
	ids := dedupeIDs(clientIDs)
	if err := validateInput(notesRequest{ClientIDs: ids}); err != nil {
		return nil, err
	}

	report := &NotesReport{Clients: make([]ClientNotes, 0, len(ids))}
	for _, id := range ids {
		notes, cached, err := s.fetchOne(ctx, id, force)
		if err != nil {
			report.Errors = append(report.Errors, id+": "+err.Error())
			if errors.Is(err, models.ErrQuotaExceeded) {
				report.RateLimited = true
				break
			}
			report.Clients = append(report.Clients, ClientNotes{ClientID: id, Notes: []FormulaNote{}, Error: err.Error()})
			continue
		}

		report.Clients = append(report.Clients, ClientNotes{ClientID: id, Notes: notes, Cached: cached})
		report.TotalNotes += len(notes)
	}

	s.logger.Info("Fetched client notes",
		"clients", len(report.Clients),
		"notes", report.TotalNotes,
		"errors", len(report.Errors))
	return report, nil
}

func (s *NotesService) fetchOne(ctx context.Context, clientID string, force bool) ([]FormulaNote, bool, error) {
	params := map[string]any{"request.clientId": clientID}

	entry, err := s.cache.Get(ctx, driver.EndpointClientFormulaNotes, params)
	if err != nil {
		s.logger.Warn("Response cache lookup failed", "client_id", clientID, "error", err)
	}
	if entry != nil && !s.isStale(entry) {
		notes, err := decodeFormulaNotes(clientID, entry.Response)
		if err == nil {
			return notes, true, nil
		}
		s.logger.Warn("Discarding undecodable cached notes", "client_id", clientID, "error", err)
	}

	body, err := s.api.Request(ctx, models.APIRequest{
		Endpoint: driver.EndpointClientFormulaNotes,
		Params:   params,
		Force:    force,
	})
	if err != nil {
		return nil, false, err
	}

	notes, err := decodeFormulaNotes(clientID, body)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.SetWithTTL(ctx, driver.EndpointClientFormulaNotes, params, body, s.ttl); err != nil {
		s.logger.Warn("Failed to cache client notes", "client_id", clientID, "error", err)
	}
	return notes, false, nil
}

func (s *NotesService) isStale(entry *models.CachedResponse) bool {
	now := s.now()
	if entry.IsExpiredAt(now) {
		return true
	}
	return !now.Before(entry.CreatedAt.Add(s.ttl))
}

func decodeFormulaNotes(clientID string, body json.RawMessage) ([]FormulaNote, error) {
	listing, err := models.DecodeListPage(body, "FormulaNotes")
	if err != nil {
		return nil, err
	}

	notes := make([]FormulaNote, 0, len(listing.Records))
	for _, raw := range listing.Records {
		var wire struct {
			ID            models.FlexibleID `json:"Id"`
			ClientID      models.FlexibleID `json:"ClientId"`
			AppointmentID models.FlexibleID `json:"AppointmentId"`
			EntryDate     string            `json:"EntryDate"`
			Note          string            `json:"Note"`
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		note := FormulaNote{
			ID:            string(wire.ID),
			ClientID:      string(wire.ClientID),
			AppointmentID: string(wire.AppointmentID),
			EntryDate:     wire.EntryDate,
			Note:          wire.Note,
			Raw:           raw,
		}
		if note.ClientID == "" {
			note.ClientID = clientID
		}
		notes = append(notes, note)
	}
	return notes, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
