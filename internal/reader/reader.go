// Package reader turns catalog files into normalized-ready events. Each
// format yields events in file order; a malformed record is reported as a
// *RecordError and reading continues with the next one.
package reader

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// Format names an input file format.
type Format string

const (
	FormatJSONLines Format = "jsonl"
	FormatISC       Format = "isc"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSONLines, FormatISC:
		return f, nil
	case "json", "ndjson":
		return FormatJSONLines, nil
	case "csv":
		return FormatISC, nil
	}
	return "", fmt.Errorf("unknown input format %q", s)
}

// Window bounds event origin times, inclusive at both ends. A zero bound is open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// RecordError describes one rejected input record.
type RecordError struct {
	Line int
	ID   string
	Err  error
}

func (e *RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("line %d (%s): %v", e.Line, e.ID, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsRecordError reports whether err rejects a single record rather than the
// whole input.
func IsRecordError(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}

// Read yields the events of r in format f that fall inside w.
func Read(r io.Reader, f Format, w Window) iter.Seq2[domain.Event, error] {
	switch f {
	case FormatISC:
		return ISC(r, w)
	case FormatJSONLines:
		return JSONLines(r, w)
	}
	return func(yield func(domain.Event, error) bool) {
		yield(domain.Event{}, fmt.Errorf("unknown input format %q", f))
	}
}
