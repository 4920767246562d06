// ABOUTME: Staff appointment lookups with validated filters and a short-lived entity cache
// ABOUTME: Fetched appointments are upserted into the local store

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"mindbody-mcp/driver"
	"mindbody-mcp/models"
	"mindbody-mcp/repository"
)

const (
	DefaultAppointmentTTL = 5 * time.Minute
	DefaultBookableTTL    = 15 * time.Minute

	appointmentCacheScope = "appointments"
	bookableCacheScope    = "bookable_items"
)

// AppointmentQuery filters a staff appointment listing
type AppointmentQuery struct {
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02,not_before=StartDate"`
	ClientID    string `json:"client_id,omitempty"`
	StaffIDs    []int  `json:"staff_ids,omitempty" validate:"omitempty,dive,gt=0"`
	LocationIDs []int  `json:"location_ids,omitempty" validate:"omitempty,dive,gt=0"`
	Limit       int    `json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	Offset      int    `json:"offset,omitempty" validate:"min=0"`
	Force       bool   `json:"force,omitempty"`
}

// AppointmentsResult is one page of appointments
type AppointmentsResult struct {
	Appointments []*models.Appointment     `json:"appointments"`
	Pagination   models.PaginationResponse `json:"pagination"`
	Cached       bool                      `json:"cached"`
	Errors       []string                  `json:"errors,omitempty"`
}

// AppointmentService serves appointment and bookable item listings
type AppointmentService struct {
	api            APIRequester
	cache          *EntityCache
	store          repository.AppointmentRepository
	appointmentTTL time.Duration
	bookableTTL    time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewAppointmentService creates a new appointment service
func NewAppointmentService(
	api APIRequester,
	cache *EntityCache,
	store repository.AppointmentRepository,
	appointmentTTL, bookableTTL time.Duration,
	logger *slog.Logger,
) *AppointmentService {
	if logger == nil {
		logger = slog.Default()
	}
	if appointmentTTL <= 0 {
		appointmentTTL = DefaultAppointmentTTL
	}
	if bookableTTL <= 0 {
		bookableTTL = DefaultBookableTTL
	}

	return &AppointmentService{
		api:            api,
		cache:          cache,
		store:          store,
		appointmentTTL: appointmentTTL,
		bookableTTL:    bookableTTL,
		logger:         logger,
		now:            time.Now,
	}
}

// SetClock replaces the time source
func (s *AppointmentService) SetClock(now func() time.Time) {
	s.now = now
}

// GetAppointments returns one page of staff appointments in the inclusive date range
func (s *AppointmentService) GetAppointments(ctx context.Context, q AppointmentQuery) (*AppointmentsResult, error) {
	if err := validateInput(q); err != nil {
		return nil, err
	}
	start, end, err := dayRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	limit := listLimit(q.Limit)

	params := map[string]any{
		"request.startDate":   start.Start().Format(driver.UpstreamDateTimeLayout),
		"request.endDate":     end.End().Format(driver.UpstreamDateTimeLayout),
		"request.clientId":    optionalParam(q.ClientID),
		"request.staffIds":    optionalSlice(q.StaffIDs),
		"request.locationIds": optionalSlice(q.LocationIDs),
		"request.limit":       limit,
		"request.offset":      q.Offset,
	}

	body, cached, err := s.fetchListing(ctx, appointmentCacheScope, s.appointmentTTL, driver.EndpointStaffAppointments, params, q.Force)
	if err != nil {
		return nil, err
	}

	listing, err := models.DecodeListPage(body, "Appointments")
	if err != nil {
		return nil, err
	}

	syncedAt := s.now()
	result := &AppointmentsResult{
		Appointments: make([]*models.Appointment, 0, len(listing.Records)),
		Pagination:   listing.Pagination,
		Cached:       cached,
	}
	for _, raw := range listing.Records {
		appt, err := models.ParseAppointment(raw, syncedAt)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Appointments = append(result.Appointments, appt)
	}

	if !cached {
		if err := s.store.SaveAppointments(ctx, result.Appointments); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Fetched appointments",
		"start_date", start.String(),
		"end_date", end.String(),
		"count", len(result.Appointments),
		"cached", cached)
	return result, nil
}

// fetchListing serves a listing body from the entity cache or the upstream, caching fresh bodies
func (s *AppointmentService) fetchListing(
	ctx context.Context,
	scope string,
	ttl time.Duration,
	endpoint string,
	params map[string]any,
	force bool,
) (json.RawMessage, bool, error) {
	body, hit, err := s.cache.Get(ctx, scope, ttl, params)
	if err != nil {
		s.logger.Warn("Entity cache lookup failed", "scope", scope, "error", err)
	}
	if hit {
		return body, true, nil
	}

	body, err = s.api.Request(ctx, models.APIRequest{
		Endpoint: endpoint,
		Params:   params,
		Force:    force,
	})
	if err != nil {
		return nil, false, err
	}

	if err := s.cache.Set(ctx, scope, ttl, params, body); err != nil {
		s.logger.Warn("Failed to cache listing", "scope", scope, "error", err)
	}
	return body, false, nil
}
