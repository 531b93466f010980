// Package service implements the event lifecycle: event moderation,
// registrations and account administration. Every operation passes the
// access gate before touching a store, and notification failures never
// fail the operation that triggered them.
package service

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/store"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"total_pages"`
}

func newPage[T any](items []T, total int64, page, limit int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + int64(limit) - 1) / int64(limit),
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// parseTime parses an RFC 3339 instant; field names the input on failure.
func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperr.Validation(field, "must be an RFC 3339 timestamp")
	}
	return t, nil
}

// parseOptionalTime returns nil for an empty value.
func parseOptionalTime(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := parseTime(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDay accepts either an RFC 3339 instant or a plain date.
func parseDay(field, value string, loc *time.Location) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return &t, nil
	}
	return parseOptionalTime(field, value)
}

// parseDayEnd parses an exclusive upper bound. A plain date covers that
// whole day, so it resolves to the following midnight.
func parseDayEnd(field, value string, loc *time.Location) (*time.Time, error) {
	day, err := parseDay(field, value, loc)
	if err != nil || day == nil {
		return day, err
	}
	if _, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), loc); err == nil {
		end := day.AddDate(0, 0, 1)
		return &end, nil
	}
	return day, nil
}

// storeErr maps store failures onto the error taxonomy.
func storeErr(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(notFound)
	}
	return apperr.Internal("database error", err)
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
