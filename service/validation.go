package service

import (
	"mindbody-mcp/models"
	"mindbody-mcp/utils/validator"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 200
)

// validateInput runs the struct tag rules; failures satisfy errors.Is(err, models.ErrValidation)
func validateInput(input any) error {
	return validator.Struct(input)
}

// listLimit applies the default page size to a validated limit
func listLimit(limit int) int {
	if limit == 0 {
		return DefaultListLimit
	}
	return limit
}

// dayRange converts validated YYYY-MM-DD bounds
func dayRange(start, end string) (models.CalendarDay, models.CalendarDay, error) {
	startDay, err := models.ParseDay(start)
	if err != nil {
		return models.CalendarDay{}, models.CalendarDay{}, err
	}
	endDay, err := models.ParseDay(end)
	if err != nil {
		return models.CalendarDay{}, models.CalendarDay{}, err
	}
	return startDay, endDay, nil
}

// optionalParam returns nil for empty values so they are dropped from the query
func optionalParam[T comparable](v T) any {
	var zero T
	if v == zero {
		return nil
	}
	return v
}

func optionalSlice[T any](v []T) any {
	if len(v) == 0 {
		return nil
	}
	return v
}
