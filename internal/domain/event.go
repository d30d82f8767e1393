package domain

import (
	"context"
	"slices"
	"strings"
	"time"
)

// RawMessage represents an unprocessed message from the source topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Magnitude is one magnitude estimate for an event.
type Magnitude struct {
	Value      float64 `json:"value"`
	Scale      string  `json:"scale"` // e.g. "Mww", "mb", "Ml"
	EvalStatus string  `json:"evalstatus,omitempty"`
	EvalMode   string  `json:"evalmode,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// MomentTensor holds the six independent components in newton-meters.
type MomentTensor struct {
	Mrr float64 `json:"mrr"`
	Mtt float64 `json:"mtt"`
	Mpp float64 `json:"mpp"`
	Mrt float64 `json:"mrt"`
	Mrp float64 `json:"mrp"`
	Mtp float64 `json:"mtp"`
}

// Axis is a principal axis of the moment tensor. Azimuth and plunge are in
// degrees; plunge is positive downward.
type Axis struct {
	Azimuth float64 `json:"azimuth"`
	Plunge  float64 `json:"plunge"`
	Value   float64 `json:"value"`
}

// PrincipalAxes are the tension, null and pressure axes.
type PrincipalAxes struct {
	T Axis `json:"t"`
	N Axis `json:"n"`
	P Axis `json:"p"`
}

// NodalPlane is a fault plane in Aki-Richards convention, all angles in degrees.
type NodalPlane struct {
	Strike float64 `json:"strike"`
	Dip    float64 `json:"dip"`
	Rake   float64 `json:"rake"`
}

// NodalPlanes holds the preferred plane and its auxiliary.
type NodalPlanes struct {
	NP1 NodalPlane  `json:"np1"`
	NP2 *NodalPlane `json:"np2,omitempty"`
}

// CandidateOrigin is an existing catalog origin near an event.
type CandidateOrigin struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Depth      float64   `json:"depth"` // meters
	Magnitude  *float64  `json:"mag,omitempty"`
	DistanceKm float64   `json:"distance_km"`
	TimeDelta  float64   `json:"time_delta"` // seconds, signed: candidate minus anchor
	Metric     float64   `json:"metric"`
}

// Event is a normalized seismic solution.
type Event struct {
	ID         string      `json:"id"`
	Time       time.Time   `json:"time"`
	Lat        float64     `json:"lat"`
	Lon        float64     `json:"lon"`
	Depth      float64     `json:"depth"` // meters
	Magnitudes []Magnitude `json:"magnitudes,omitempty"`

	// Optional location quality.
	DepthError      *float64 `json:"depth_error,omitempty"`      // meters
	HorizontalError *float64 `json:"horizontal_error,omitempty"` // meters
	Gap             *float64 `json:"gap,omitempty"`              // degrees
	NumStations     *int     `json:"num_stations,omitempty"`
	EvalStatus      string   `json:"evalstatus,omitempty"`
	EvalMode        string   `json:"evalmode,omitempty"`

	// Moment tensor and its derived quantities.
	Tensor       *MomentTensor  `json:"tensor,omitempty"`
	ScalarMoment *float64       `json:"moment,omitempty"`
	Axes         *PrincipalAxes `json:"axes,omitempty"`
	Planes       *NodalPlanes   `json:"planes,omitempty"`

	// Provenance.
	Source        string `json:"source,omitempty"` // catalog code, e.g. "us"
	Contributor   string `json:"contributor,omitempty"`
	Agency        string `json:"agency,omitempty"`
	Author        string `json:"author,omitempty"`
	Method        string `json:"method,omitempty"` // preferred magnitude scale
	TriggerSource string `json:"trigger_source,omitempty"`

	Association *CandidateOrigin `json:"association,omitempty"`
}

// Clone returns a deep copy so callers can hand events across goroutines
// without sharing pointer fields.
func (e Event) Clone() Event {
	out := e
	out.Magnitudes = slices.Clone(e.Magnitudes)
	out.DepthError = clonePtr(e.DepthError)
	out.HorizontalError = clonePtr(e.HorizontalError)
	out.Gap = clonePtr(e.Gap)
	out.NumStations = clonePtr(e.NumStations)
	out.Tensor = clonePtr(e.Tensor)
	out.ScalarMoment = clonePtr(e.ScalarMoment)
	out.Axes = clonePtr(e.Axes)
	if e.Planes != nil {
		p := *e.Planes
		p.NP2 = clonePtr(e.Planes.NP2)
		out.Planes = &p
	}
	if e.Association != nil {
		a := *e.Association
		a.Magnitude = clonePtr(e.Association.Magnitude)
		out.Association = &a
	}
	return out
}

// PreferredMagnitude returns the magnitude on the preferred method, or the
// first magnitude when Method is unset. ok is false when nothing matches.
func (e Event) PreferredMagnitude() (Magnitude, bool) {
	if len(e.Magnitudes) == 0 {
		return Magnitude{}, false
	}
	if e.Method == "" {
		return e.Magnitudes[0], true
	}
	idx := e.PreferredMagnitudeIndexes()
	if len(idx) == 0 {
		return Magnitude{}, false
	}
	return e.Magnitudes[idx[0]], true
}

// PreferredMagnitudeIndexes returns the positions of the magnitudes whose
// scale matches Method, ignoring case. When several share the scale only
// those from the event's own source are kept, unless none of them is.
func (e Event) PreferredMagnitudeIndexes() []int {
	if e.Method == "" {
		return nil
	}
	var all, own []int
	for i, m := range e.Magnitudes {
		if !strings.EqualFold(m.Scale, e.Method) {
			continue
		}
		all = append(all, i)
		if strings.EqualFold(m.Source, e.Source) {
			own = append(own, i)
		}
	}
	if len(all) > 1 && len(own) > 0 {
		return own
	}
	return all
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
