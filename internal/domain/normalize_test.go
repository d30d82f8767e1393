package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEventID = "us2000abcd"

type stubDecomposer struct {
	sol TensorSolution
	err error
}

func (s stubDecomposer) Decompose(MomentTensor) (TensorSolution, error) { return s.sol, s.err }

func (s stubDecomposer) AuxiliaryPlane(np NodalPlane) NodalPlane {
	return NodalPlane{Strike: np.Strike + 90, Dip: np.Dip, Rake: -np.Rake}
}

func originEvent() Event {
	return Event{
		ID:         testEventID,
		Time:       time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.FixedZone("x", 3600)),
		Lat:        34,
		Lon:        200,
		Depth:      10000,
		Magnitudes: []Magnitude{{Value: 5.1, Scale: "mb"}},
		EvalStatus: "reviewed",
		EvalMode:   "manual",
	}
}

func TestNormalize_Origin(t *testing.T) {
	ev, err := Normalize(originEvent(), ProductOrigin, Provenance{Source: "us", Agency: "us"}, nil)
	require.NoError(t, err)

	assert.InDelta(t, -160.0, ev.Lon, 1e-9)
	assert.Equal(t, time.UTC, ev.Time.Location())
	assert.Equal(t, 123456000, ev.Time.Nanosecond())
	assert.Equal(t, "us", ev.Source)
	assert.Equal(t, "us", ev.Agency)
	assert.Equal(t, "mb", ev.Method)
	assert.Equal(t, "reviewed", ev.Magnitudes[0].EvalStatus)
	assert.Equal(t, "manual", ev.Magnitudes[0].EvalMode)
	assert.Equal(t, "us", ev.Magnitudes[0].Source)
}

func TestNormalize_DoesNotAliasInput(t *testing.T) {
	in := originEvent()
	ev, err := Normalize(in, ProductOrigin, Provenance{}, nil)
	require.NoError(t, err)

	ev.Magnitudes[0].Value = 9
	assert.Equal(t, 5.1, in.Magnitudes[0].Value)
}

func TestNormalize_ProvenanceKeepsRecordValues(t *testing.T) {
	in := originEvent()
	in.Source = "ci"
	ev, err := Normalize(in, ProductOrigin, Provenance{Agency: "us"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ci", ev.Source)
}

func TestNormalize_MissingFields(t *testing.T) {
	t.Run("origin without magnitudes", func(t *testing.T) {
		in := originEvent()
		in.Magnitudes = nil
		_, err := Normalize(in, ProductOrigin, Provenance{}, nil)
		require.ErrorIs(t, err, ErrMissingField)
		assert.Contains(t, err.Error(), "magnitudes")
	})

	t.Run("tensor without components", func(t *testing.T) {
		_, err := Normalize(originEvent(), ProductMomentTensor, Provenance{}, stubDecomposer{})
		require.ErrorIs(t, err, ErrMissingField)
		assert.Contains(t, err.Error(), "mrr")
	})

	t.Run("no id or time", func(t *testing.T) {
		_, err := Normalize(Event{Magnitudes: []Magnitude{{Value: 4, Scale: "ml"}}}, ProductOrigin, Provenance{}, nil)
		require.ErrorIs(t, err, ErrMissingField)
		assert.Contains(t, err.Error(), "id, time")
	})
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Event)
	}{
		{"latitude above 90", func(e *Event) { e.Lat = 91 }},
		{"negative depth", func(e *Event) { e.Depth = -5 }},
		{"path in id", func(e *Event) { e.ID = "../etc" }},
		{"magnitude without scale", func(e *Event) { e.Magnitudes[0].Scale = "" }},
		{"same scale and source twice", func(e *Event) {
			e.Magnitudes = append(e.Magnitudes, Magnitude{Value: 5.2, Scale: "MB"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := originEvent()
			tt.mutate(&in)
			_, err := Normalize(in, ProductOrigin, Provenance{}, nil)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestNormalize_SameScaleFromTwoSources(t *testing.T) {
	in := originEvent()
	in.Magnitudes = append(in.Magnitudes, Magnitude{Value: 5.0, Scale: "mb", Source: "isc"})
	ev, err := Normalize(in, ProductOrigin, Provenance{Source: "us"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "us", ev.Magnitudes[0].Source)
	assert.Equal(t, "isc", ev.Magnitudes[1].Source)
}

func TestPreferredMagnitudeIndexes(t *testing.T) {
	ev := Event{
		Source: "us",
		Method: "mb",
		Magnitudes: []Magnitude{
			{Value: 5.3, Scale: "Mww", Source: "us"},
			{Value: 5.1, Scale: "mb", Source: "isc"},
			{Value: 5.0, Scale: "MB", Source: "us"},
		},
	}
	assert.Equal(t, []int{2}, ev.PreferredMagnitudeIndexes())

	m, ok := ev.PreferredMagnitude()
	require.True(t, ok)
	assert.Equal(t, 5.0, m.Value)

	ev.Source = "at"
	assert.Equal(t, []int{1, 2}, ev.PreferredMagnitudeIndexes(), "no estimate from the event source")

	ev.Method = "Ml"
	assert.Empty(t, ev.PreferredMagnitudeIndexes())
	_, ok = ev.PreferredMagnitude()
	assert.False(t, ok)
}

func TestNormalize_TensorDerivation(t *testing.T) {
	sol := TensorSolution{
		ScalarMoment: 3.98e19,
		Axes:         PrincipalAxes{T: Axis{Azimuth: 10, Plunge: 80, Value: 3.98e19}},
		NP1:          NodalPlane{Strike: 30, Dip: 60, Rake: 90},
		NP2:          NodalPlane{Strike: 210, Dip: 30, Rake: 90},
	}
	in := originEvent()
	in.Magnitudes = nil
	in.Tensor = &MomentTensor{Mrr: 1}

	ev, err := Normalize(in, ProductMomentTensor, Provenance{}, stubDecomposer{sol: sol})
	require.NoError(t, err)

	require.NotNil(t, ev.ScalarMoment)
	require.NotNil(t, ev.Axes)
	require.NotNil(t, ev.Planes)
	require.NotNil(t, ev.Planes.NP2)
	assert.Equal(t, 3.98e19, *ev.ScalarMoment)
	assert.Equal(t, sol.NP2, *ev.Planes.NP2)
	assert.Equal(t, DefaultMomentMethod, ev.Method)
	require.Len(t, ev.Magnitudes, 1)
	assert.Equal(t, Magnitude{Value: 7.0, Scale: "Mwc", Source: "", EvalStatus: "reviewed", EvalMode: "manual"}, ev.Magnitudes[0])
}

func TestNormalize_FocalAuxiliaryPlane(t *testing.T) {
	in := originEvent()
	in.Planes = &NodalPlanes{NP1: NodalPlane{Strike: 10, Dip: 45, Rake: 30}}

	ev, err := Normalize(in, ProductFocalMechanism, Provenance{}, stubDecomposer{})
	require.NoError(t, err)
	require.NotNil(t, ev.Planes.NP2)
	assert.Equal(t, NodalPlane{Strike: 100, Dip: 45, Rake: -30}, *ev.Planes.NP2)
}

func TestDecodeEvent(t *testing.T) {
	t.Run("complete record", func(t *testing.T) {
		ev, err := DecodeEvent([]byte(`{"id":"us1","time":"2024-03-01T12:00:00Z","lat":0,"lon":0,"depth":0,"magnitudes":[{"value":4.2,"scale":"mb"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "us1", ev.ID)
		assert.Equal(t, 4.2, ev.Magnitudes[0].Value)
	})

	t.Run("missing coordinates", func(t *testing.T) {
		_, err := DecodeEvent([]byte(`{"id":"us1","time":"2024-03-01T12:00:00Z","depth":1}`))
		require.ErrorIs(t, err, ErrMissingField)
		assert.Contains(t, err.Error(), "lat, lon")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := DecodeEvent([]byte("{invalid"))
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestParseProductType(t *testing.T) {
	pt, err := ParseProductType("Moment-Tensor")
	require.NoError(t, err)
	assert.Equal(t, ProductMomentTensor, pt)
	assert.True(t, pt.RequiresAssociation())
	assert.False(t, ProductOrigin.RequiresAssociation())

	_, err = ParseProductType("shakemap")
	assert.ErrorIs(t, err, ErrUnknownProductType)
}

func TestEventClone(t *testing.T) {
	mag := 4.5
	in := originEvent()
	in.Association = &CandidateOrigin{ID: "ci1", Magnitude: &mag}
	out := in.Clone()

	*out.Association.Magnitude = 6
	out.Magnitudes[0].Scale = "Ml"
	assert.Equal(t, 4.5, *in.Association.Magnitude)
	assert.Equal(t, "mb", in.Magnitudes[0].Scale)
}
