package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Provenance is the run-wide attribution stamped onto every admitted event.
// Empty fields leave the record's own value in place.
type Provenance struct {
	Source        string
	Contributor   string
	Agency        string
	Author        string
	Method        string
	TriggerSource string
}

// Normalize validates ev for the product type and returns the admitted copy:
// longitude folded into range, time in UTC at microsecond precision,
// provenance stamped, tensor quantities derived, and magnitude defaults filled.
func Normalize(ev Event, pt ProductType, prov Provenance, dec Decomposer) (Event, error) {
	ev = ev.Clone()
	if err := checkRequired(ev, pt); err != nil {
		return Event{}, err
	}
	if err := validate(ev); err != nil {
		return Event{}, err
	}

	ev.Lon = NormalizeLongitude(ev.Lon)
	ev.Time = ev.Time.UTC().Truncate(time.Microsecond)
	stamp(&ev, prov)

	if ev.Tensor != nil {
		if err := deriveTensor(&ev, dec); err != nil {
			return Event{}, err
		}
	}
	if ev.Planes != nil && ev.Planes.NP2 == nil && dec != nil {
		aux := dec.AuxiliaryPlane(ev.Planes.NP1)
		ev.Planes.NP2 = &aux
	}

	if ev.Method == "" && len(ev.Magnitudes) > 0 {
		ev.Method = ev.Magnitudes[0].Scale
	}
	for i := range ev.Magnitudes {
		m := &ev.Magnitudes[i]
		if m.EvalStatus == "" {
			m.EvalStatus = ev.EvalStatus
		}
		if m.EvalMode == "" {
			m.EvalMode = ev.EvalMode
		}
		if m.Source == "" {
			m.Source = ev.Source
		}
	}
	if err := uniqueMagnitudes(ev.Magnitudes); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// uniqueMagnitudes rejects two estimates on the same scale from the same source.
func uniqueMagnitudes(mags []Magnitude) error {
	seen := make(map[[2]string]bool, len(mags))
	for _, m := range mags {
		key := [2]string{strings.ToLower(m.Scale), strings.ToLower(m.Source)}
		if seen[key] {
			return fmt.Errorf("%w: duplicate %s magnitude from %q", ErrInvalidRecord, m.Scale, m.Source)
		}
		seen[key] = true
	}
	return nil
}

func checkRequired(ev Event, pt ProductType) error {
	var missing []string
	if strings.TrimSpace(ev.ID) == "" {
		missing = append(missing, "id")
	}
	if ev.Time.IsZero() {
		missing = append(missing, "time")
	}
	switch pt {
	case ProductMomentTensor:
		if ev.Tensor == nil {
			missing = append(missing, "mrr", "mtt", "mpp", "mrt", "mrp", "mtp")
		}
	case ProductFocalMechanism:
		if len(ev.Magnitudes) == 0 {
			missing = append(missing, "magnitudes")
		}
		if ev.Planes == nil {
			missing = append(missing, "np1.strike", "np1.dip", "np1.rake")
		}
	default:
		if len(ev.Magnitudes) == 0 {
			missing = append(missing, "magnitudes")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}

func validate(ev Event) error {
	if strings.ContainsAny(ev.ID, `/\`) || strings.Contains(ev.ID, "..") {
		return fmt.Errorf("%w: id %q contains path characters", ErrInvalidRecord, ev.ID)
	}
	if math.IsNaN(ev.Lat) || ev.Lat < -90 || ev.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidRecord, ev.Lat)
	}
	if math.IsNaN(ev.Lon) || math.IsInf(ev.Lon, 0) {
		return fmt.Errorf("%w: longitude %v", ErrInvalidRecord, ev.Lon)
	}
	if math.IsNaN(ev.Depth) || ev.Depth < 0 {
		return fmt.Errorf("%w: depth %v is negative", ErrInvalidRecord, ev.Depth)
	}
	for _, m := range ev.Magnitudes {
		if m.Scale == "" {
			return fmt.Errorf("%w: magnitude %.1f has no scale", ErrInvalidRecord, m.Value)
		}
	}
	return nil
}

func stamp(ev *Event, prov Provenance) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&ev.Source, prov.Source)
	set(&ev.Contributor, prov.Contributor)
	set(&ev.Agency, prov.Agency)
	set(&ev.Author, prov.Author)
	set(&ev.Method, prov.Method)
	set(&ev.TriggerSource, prov.TriggerSource)
}

// deriveTensor fills the scalar moment, axes and planes, and adds a moment
// magnitude when the record carries no magnitude for the preferred method.
func deriveTensor(ev *Event, dec Decomposer) error {
	if dec == nil {
		return fmt.Errorf("%w: no tensor decomposer configured", ErrInvalidRecord)
	}
	sol, err := dec.Decompose(*ev.Tensor)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	m0 := sol.ScalarMoment
	np2 := sol.NP2
	ev.ScalarMoment = &m0
	ev.Axes = &sol.Axes
	ev.Planes = &NodalPlanes{NP1: sol.NP1, NP2: &np2}

	if ev.Method == "" {
		ev.Method = DefaultMomentMethod
	}
	for _, m := range ev.Magnitudes {
		if m.Scale == ev.Method {
			return nil
		}
	}
	ev.Magnitudes = append(ev.Magnitudes, Magnitude{Value: MomentMagnitude(m0), Scale: ev.Method})
	return nil
}
