// Package association admits events into a run, tracks which of them are
// near each other, and links each to an existing catalog origin.
package association

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/proximity"
)

// Config is fixed for the lifetime of a session.
type Config struct {
	ProductType      domain.ProductType
	DistanceWindowKm float64
	TimeWindow       time.Duration
	Catalog          string
	Provenance       domain.Provenance
}

// Resolution is the result of resolving one admitted event.
type Resolution struct {
	Event      domain.Event
	Candidates []domain.CandidateOrigin
	Siblings   []domain.Event
}

// Session owns the admitted events of one run. It is safe for concurrent
// use; remote lookups run without holding the lock.
type Session struct {
	cfg        Config
	finder     domain.CandidateFinder
	decomposer domain.Decomposer

	mu     sync.RWMutex
	events []domain.Event
	ids    map[string]int
	index  *proximity.Index
}

// NewSession creates an empty session.
func NewSession(cfg Config, finder domain.CandidateFinder, decomposer domain.Decomposer) *Session {
	return &Session{
		cfg:        cfg,
		finder:     finder,
		decomposer: decomposer,
		ids:        make(map[string]int),
		index:      proximity.New(cfg.DistanceWindowKm, cfg.TimeWindow),
	}
}

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Add validates and normalizes ev, then admits it. It returns the event's
// position and the positions of earlier events it is near.
func (s *Session) Add(ev domain.Event) (int, []int, error) {
	norm, err := domain.Normalize(ev, s.cfg.ProductType, s.cfg.Provenance, s.decomposer)
	if err != nil {
		return -1, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[norm.ID]; dup {
		return -1, nil, fmt.Errorf("%w: %s", domain.ErrDuplicateID, norm.ID)
	}

	pos, near := s.index.Record(norm.Lat, norm.Lon, norm.Time)
	s.events = append(s.events, norm)
	s.ids[norm.ID] = pos
	return pos, near, nil
}

// Len is the number of admitted events.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Event returns a copy of the event at pos.
func (s *Session) Event(pos int) domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events[pos].Clone()
}

// NearPairs returns every near pair found so far.
func (s *Session) NearPairs() []proximity.Pair {
	return s.index.Pairs()
}

// Siblings returns copies of the events near pos, in admission order.
func (s *Session) Siblings(pos int) []domain.Event {
	near := s.index.Neighbors(pos)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0, len(near))
	for _, i := range near {
		out = append(out, s.events[i].Clone())
	}
	return out
}

// Resolve gathers everything needed to decide the association of the event
// at pos. Product types that stand alone skip the catalog lookup.
func (s *Session) Resolve(ctx context.Context, pos int) (Resolution, error) {
	ev := s.Event(pos)
	res := Resolution{Event: ev, Siblings: s.Siblings(pos)}
	if !s.cfg.ProductType.RequiresAssociation() || s.finder == nil {
		return res, nil
	}

	cands, err := s.finder.FindCandidates(ctx, ev, domain.SearchWindow{
		DistanceKm: s.cfg.DistanceWindowKm,
		Time:       s.cfg.TimeWindow,
		Catalog:    s.cfg.Catalog,
	})
	if err != nil {
		return res, fmt.Errorf("find candidates for %s: %w", ev.ID, err)
	}
	res.Candidates = cands
	return res, nil
}

// Associate links the event at pos to c and returns the updated copy.
func (s *Session) Associate(pos int, c domain.CandidateOrigin) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	cand := c
	if c.Magnitude != nil {
		m := *c.Magnitude
		cand.Magnitude = &m
	}
	s.events[pos].Association = &cand
	return s.events[pos].Clone()
}
