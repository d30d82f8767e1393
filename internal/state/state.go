// Package state persists the last-processed timestamps of the loader's
// run cadences in a small key=value file.
package state

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used in the state file.
const TimeLayout = "2006-01-02T15:04:05"

// Cadence names a run schedule with its own last-processed mark.
type Cadence string

const (
	Reviewed    Cadence = "reviewed"
	Preliminary Cadence = "preliminary"
)

// ParseCadence validates a cadence name.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case Reviewed, Preliminary:
		return c, nil
	}
	return "", fmt.Errorf("unknown cadence %q", s)
}

func (c Cadence) key() string { return "last" + string(c) }

// File is the state file. A missing file reads as empty state.
type File struct {
	path   string
	values map[string]string
}

// Open reads the state file at path.
func Open(path string) (*File, error) {
	f := &File{path: path, values: make(map[string]string)}

	fh, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("state %s line %d: expected key=value", path, n)
		}
		f.values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	return f, nil
}

// Last returns the last-processed time of a cadence, if recorded.
func (f *File) Last(c Cadence) (time.Time, bool, error) {
	v, ok := f.values[c.key()]
	if !ok || v == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("state %s: %w", c.key(), err)
	}
	return t, true, nil
}

// SetLast records the last-processed time of a cadence. Call Save to persist.
func (f *File) SetLast(c Cadence, t time.Time) {
	f.values[c.key()] = t.UTC().Format(TimeLayout)
}

// Save writes the state atomically.
func (f *File) Save() error {
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, f.values[k])
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("save state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
