// Package proximity tracks which admitted events lie within each other's
// space-time window.
package proximity

import (
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// Pair is two positions judged near, with A < B.
type Pair struct {
	A, B int
}

// Index records event positions in admission order and the near pairs
// between them. It is safe for concurrent use.
type Index struct {
	mu               sync.RWMutex
	distanceWindowKm float64
	timeWindow       time.Duration

	lats  []float64
	lons  []float64
	times []time.Time
	pairs []Pair
}

// New creates an empty index with the given windows.
func New(distanceWindowKm float64, timeWindow time.Duration) *Index {
	return &Index{distanceWindowKm: distanceWindowKm, timeWindow: timeWindow}
}

// Record appends an event and returns its position along with the earlier
// positions it is near. Every earlier entry is compared exactly once.
func (x *Index) Record(lat, lon float64, t time.Time) (int, []int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	pos := len(x.lats)
	var near []int
	for i := range pos {
		dist := domain.SurfaceDistanceKm(lat, lon, x.lats[i], x.lons[i])
		dt := t.Sub(x.times[i]).Seconds()
		if domain.Metric(dist, dt, x.distanceWindowKm, x.timeWindow) <= domain.NearThreshold {
			near = append(near, i)
			x.pairs = append(x.pairs, Pair{A: i, B: pos})
		}
	}

	x.lats = append(x.lats, lat)
	x.lons = append(x.lons, lon)
	x.times = append(x.times, t)
	return pos, near
}

// Len is the number of recorded positions.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.lats)
}

// Pairs returns every near pair in discovery order.
func (x *Index) Pairs() []Pair {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.pairs)
}

// Neighbors returns the positions near pos, ascending.
func (x *Index) Neighbors(pos int) []int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []int
	for _, p := range x.pairs {
		switch pos {
		case p.A:
			out = append(out, p.B)
		case p.B:
			out = append(out, p.A)
		}
	}
	slices.Sort(out)
	return out
}
