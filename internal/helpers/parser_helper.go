package helpers

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/apperr"
)

func StringToInt(s string) (int, error) {
	return strconv.Atoi(s)
}

// QueryInt parses an optional positive integer query value.
func QueryInt(field, value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	n, err := StringToInt(value)
	if err != nil || n < 0 {
		return 0, apperr.Validation(field, "must be a non-negative integer")
	}
	return n, nil
}

// ParseUUID parses a path or query id, naming the field on failure.
func ParseUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, apperr.Validation(field, "must be a valid UUID")
	}
	return id, nil
}

// ParseOptionalUUID returns nil for an empty value.
func ParseOptionalUUID(field, value string) (*uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := ParseUUID(field, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ParseOptionalBool returns nil for an empty value.
func ParseOptionalBool(field, value string) (*bool, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, apperr.Validation(field, "must be true or false")
	}
	return &b, nil
}
