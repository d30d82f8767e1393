package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

const maxLineBytes = 1 << 20

// JSONLines reads one JSON event per line. Blank lines are ignored.
func JSONLines(r io.Reader, w Window) iter.Seq2[domain.Event, error] {
	return func(yield func(domain.Event, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)

		for line := 1; sc.Scan(); line++ {
			data := bytes.TrimSpace(sc.Bytes())
			if len(data) == 0 {
				continue
			}
			ev, err := domain.DecodeEvent(data)
			if err != nil {
				if !yield(domain.Event{}, &RecordError{Line: line, ID: ev.ID, Err: err}) {
					return
				}
				continue
			}
			if !w.Contains(ev.Time) {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(domain.Event{}, fmt.Errorf("read json lines: %w", err))
		}
	}
}
