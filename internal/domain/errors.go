package domain

import "errors"

var (
	// ErrMissingField is returned when a record lacks a field its product type requires.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidRecord is returned when a record is present but malformed.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrDuplicateID is returned when an event ID is admitted twice in one session.
	ErrDuplicateID = errors.New("duplicate event id")

	// ErrUnknownProductType is returned for product type names outside the fixed set.
	ErrUnknownProductType = errors.New("unknown product type")
)
