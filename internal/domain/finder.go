package domain

import (
	"context"
	"time"
)

// SearchWindow bounds a candidate lookup around an event.
type SearchWindow struct {
	DistanceKm float64
	Time       time.Duration
	Catalog    string // restrict to one contributing catalog; empty means all
}

// CandidateFinder queries a remote catalog for origins near an event.
type CandidateFinder interface {
	// FindCandidates returns origins inside the window around ev, anchored at
	// ev.Association's time when one is set, sorted by ascending Metric.
	FindCandidates(ctx context.Context, ev Event, w SearchWindow) ([]CandidateOrigin, error)
}

// TensorSolution is everything derived from a moment tensor.
type TensorSolution struct {
	ScalarMoment float64
	Axes         PrincipalAxes
	NP1          NodalPlane
	NP2          NodalPlane
}

// Decomposer derives principal axes and nodal planes.
type Decomposer interface {
	Decompose(mt MomentTensor) (TensorSolution, error)
	AuxiliaryPlane(np NodalPlane) NodalPlane
}
