package product

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrAlreadyRendered is returned when a document for the id already exists.
var ErrAlreadyRendered = errors.New("document already rendered")

const documentExt = ".xml"

// Store is the output folder of one run. Each event gets <id>.xml.
type Store struct {
	dir string
}

// NewStore opens dir, creating it when missing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir is the output folder path.
func (s *Store) Dir() string { return s.dir }

// Path is where the document for id lives.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+documentExt)
}

// Exists reports whether a document for id has been written.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Write stores doc atomically and returns its path. Existing documents are
// never overwritten.
func (s *Store) Write(doc Document) (string, error) {
	dst := s.Path(doc.ID)
	if s.Exists(doc.ID) {
		return dst, fmt.Errorf("%w: %s", ErrAlreadyRendered, dst)
	}

	tmp, err := os.CreateTemp(s.dir, "."+doc.ID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.XML); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("publish document: %w", err)
	}
	return dst, nil
}

// Clear removes every rendered document from the folder and returns how
// many were deleted. Other files are left alone.
func (s *Store) Clear() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read output folder: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), documentExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return n, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}
