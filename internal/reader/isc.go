package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// iscTimeLayout matches "1900-07-29 06:59:00.00"; the fraction is optional.
const iscTimeLayout = "2006-01-02 15:04:05"

// ISC-GEM catalog columns.
const (
	iscTime       = 0
	iscLat        = 1
	iscLon        = 2
	iscSemiMajor  = 3 // km
	iscDepth      = 7 // km
	iscDepthError = 8 // km
	iscMw         = 10
	iscEventID    = 23
	iscMinColumns = 24
)

// ISC reads the ISC-GEM comma-separated catalog. Lines starting with '#'
// are comments. Every event carries one reviewed, manual Mw magnitude.
func ISC(r io.Reader, w Window) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		cr := csv.NewReader(r)
		cr.Comment = '#'
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true

		for {
			row, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					if !yield(domain.Event{}, &RecordError{Line: pe.Line, Err: fmt.Errorf("%w: %w", domain.ErrInvalidRecord, err)}) {
						return
					}
					continue
				}
				yield(domain.Event{}, fmt.Errorf("read isc: %w", err))
				return
			}

			line, _ := cr.FieldPos(0)
			ev, keep, err := parseISC(row, w)
			switch {
			case err != nil:
				if !yield(domain.Event{}, &RecordError{Line: line, ID: ev.ID, Err: err}) {
					return
				}
			case keep:
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

// parseISC converts one row. The time is checked against w before the rest
// of the row is parsed.
func parseISC(row []string, w Window) (domain.Event, bool, error) {
	if len(row) < iscMinColumns {
		return domain.Event{}, false, fmt.Errorf("%w: %d columns, want %d", domain.ErrInvalidRecord, len(row), iscMinColumns)
	}
	ev := domain.Event{
		ID:         strings.TrimSpace(row[iscEventID]),
		EvalStatus: "reviewed",
		EvalMode:   "manual",
	}

	t, err := time.Parse(iscTimeLayout, strings.TrimSpace(row[iscTime]))
	if err != nil {
		return ev, false, fmt.Errorf("%w: time: %w", domain.ErrInvalidRecord, err)
	}
	if !w.Contains(t) {
		return ev, false, nil
	}
	ev.Time = t

	var p iscParser
	ev.Lat = p.float(row, iscLat, "lat")
	ev.Lon = p.float(row, iscLon, "lon")
	ev.Depth = p.float(row, iscDepth, "depth") * 1000
	mw := p.float(row, iscMw, "mw")
	if p.err != nil {
		return ev, false, p.err
	}

	ev.HorizontalError = optionalKm(row[iscSemiMajor])
	ev.DepthError = optionalKm(row[iscDepthError])
	ev.Magnitudes = []domain.Magnitude{{
		Value:      mw,
		Scale:      "Mw",
		EvalStatus: "reviewed",
		EvalMode:   "manual",
	}}
	return ev, true, nil
}

// iscParser keeps the first conversion error.
type iscParser struct {
	err error
}

func (p *iscParser) float(row []string, col int, name string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	switch {
	case err != nil:
		p.err = fmt.Errorf("%w: %s: %w", domain.ErrInvalidRecord, name, err)
	case math.IsNaN(v) || math.IsInf(v, 0):
		p.err = fmt.Errorf("%w: %s: not finite", domain.ErrInvalidRecord, name)
	}
	return v
}

// optionalKm parses a kilometre value into meters; blanks and junk are absent.
func optionalKm(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	v *= 1000
	return &v
}
