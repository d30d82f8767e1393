package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// presence mirrors the numeric location fields as pointers so that an absent
// key can be told apart from a literal zero.
type presence struct {
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Depth *float64 `json:"depth"`
}

// DecodeEvent deserializes one JSON event record. Location fields must be
// present; everything else is checked later by Normalize.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: decode event: %w", ErrInvalidRecord, err)
	}
	var p presence
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("%w: decode event: %w", ErrInvalidRecord, err)
	}

	var missing []string
	if p.Lat == nil {
		missing = append(missing, "lat")
	}
	if p.Lon == nil {
		missing = append(missing, "lon")
	}
	if p.Depth == nil {
		missing = append(missing, "depth")
	}
	if len(missing) > 0 {
		return Event{}, fmt.Errorf("%w: %s (event %q)", ErrMissingField, strings.Join(missing, ", "), ev.ID)
	}
	return ev, nil
}
