package service

import (
	"context"

	"mindbody-mcp/driver"
	"mindbody-mcp/models"
)

// BookableItemQuery filters an availability listing; SessionTypeIDs is required
type BookableItemQuery struct {
	SessionTypeIDs []int  `json:"session_type_ids" validate:"required,min=1,dive,gt=0"`
	LocationIDs    []int  `json:"location_ids,omitempty" validate:"omitempty,dive,gt=0"`
	StaffIDs       []int  `json:"staff_ids,omitempty" validate:"omitempty,dive,gt=0"`
	StartDate      string `json:"start_date,omitempty" validate:"required_with=EndDate,omitempty,datetime=2006-01-02"`
	EndDate        string `json:"end_date,omitempty" validate:"required_with=StartDate,omitempty,datetime=2006-01-02,not_before=StartDate"`
	Limit          int    `json:"limit,omitempty" validate:"omitempty,min=1,max=200"`
	Offset         int    `json:"offset,omitempty" validate:"min=0"`
	Force          bool   `json:"force,omitempty"`
}

// BookableItemsResult is one page of availability slots
type BookableItemsResult struct {
	Items      []*models.BookableItem    `json:"items"`
	Pagination models.PaginationResponse `json:"pagination"`
	Cached     bool                      `json:"cached"`
	Errors     []string                  `json:"errors,omitempty"`
}

// GetBookableItems returns one page of bookable availability for the given session types
func (s *AppointmentService) GetBookableItems(ctx context.Context, q BookableItemQuery) (*BookableItemsResult, error) {
	if err := validateInput(q); err != nil {
		return nil, err
	}
	limit := listLimit(q.Limit)

	params := map[string]any{
		"request.sessionTypeIds": q.SessionTypeIDs,
		"request.locationIds":    optionalSlice(q.LocationIDs),
		"request.staffIds":       optionalSlice(q.StaffIDs),
		"request.limit":          limit,
		"request.offset":         q.Offset,
	}

	// Dates are optional here; validation guarantees they come as a pair
	if q.StartDate != "" {
		start, end, err := dayRange(q.StartDate, q.EndDate)
		if err != nil {
			return nil, err
		}
		params["request.startDate"] = start.Start().Format(driver.UpstreamDateTimeLayout)
		params["request.endDate"] = end.End().Format(driver.UpstreamDateTimeLayout)
	}

	body, cached, err := s.fetchListing(ctx, bookableCacheScope, s.bookableTTL, driver.EndpointBookableItems, params, q.Force)
	if err != nil {
		return nil, err
	}

	listing, err := models.DecodeListPage(body, "Availabilities")
	if err != nil {
		return nil, err
	}

	syncedAt := s.now()
	result := &BookableItemsResult{
		Items:      make([]*models.BookableItem, 0, len(listing.Records)),
		Pagination: listing.Pagination,
		Cached:     cached,
	}
	for _, raw := range listing.Records {
		item, err := models.ParseBookableItem(raw, syncedAt)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Items = append(result.Items, item)
	}

	if !cached {
		if err := s.store.SaveBookableItems(ctx, result.Items); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Fetched bookable items",
		"session_types", len(q.SessionTypeIDs),
		"count", len(result.Items),
		"cached", cached)
	return result, nil
}
