package association

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/proximity"
	"github.com/couchcryptid/quake-catalog-loader/internal/tensor"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type mockFinder struct {
	mu     sync.Mutex
	calls  int
	result map[string][]domain.CandidateOrigin
	err    error
}

func (m *mockFinder) FindCandidates(_ context.Context, ev domain.Event, _ domain.SearchWindow) ([]domain.CandidateOrigin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result[ev.ID], nil
}

func originConfig() Config {
	return Config{
		ProductType:      domain.ProductOrigin,
		DistanceWindowKm: 100,
		TimeWindow:       16 * time.Second,
		Provenance:       domain.Provenance{Source: "us"},
	}
}

func tensorConfig() Config {
	cfg := originConfig()
	cfg.ProductType = domain.ProductMomentTensor
	return cfg
}

func quake(id string, lat, lon float64, offset time.Duration) domain.Event {
	return domain.Event{
		ID:         id,
		Time:       base.Add(offset),
		Lat:        lat,
		Lon:        lon,
		Depth:      10000,
		Magnitudes: []domain.Magnitude{{Value: 5, Scale: "mb"}},
	}
}

func tensorQuake(id string, lat, lon float64, offset time.Duration) domain.Event {
	ev := quake(id, lat, lon, offset)
	ev.Magnitudes = nil
	mt := tensor.DoubleCouple(domain.NodalPlane{Strike: 30, Dip: 60, Rake: 90}, 3.98e19)
	ev.Tensor = &mt
	return ev
}

func TestSession_AddAndNearPairs(t *testing.T) {
	s := NewSession(originConfig(), nil, nil)

	pos, near, err := s.Add(quake("a", 34.0, -118.0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.Empty(t, near)

	pos, near, err = s.Add(quake("b", 34.05, -118.0, 5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, []int{0}, near)

	_, _, err = s.Add(quake("c", -20, 170, 0))
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []proximity.Pair{{A: 0, B: 1}}, s.NearPairs())

	sib := s.Siblings(0)
	require.Len(t, sib, 1)
	assert.Equal(t, "b", sib[0].ID)
	assert.Empty(t, s.Siblings(2))
}

func TestSession_AddRejects(t *testing.T) {
	s := NewSession(originConfig(), nil, nil)
	_, _, err := s.Add(quake("a", 34, -118, 0))
	require.NoError(t, err)

	_, _, err = s.Add(quake("a", 10, 10, time.Hour))
	require.ErrorIs(t, err, domain.ErrDuplicateID)

	bad := quake("b", 34, -118, 0)
	bad.Magnitudes = nil
	_, _, err = s.Add(bad)
	require.ErrorIs(t, err, domain.ErrMissingField)

	assert.Equal(t, 1, s.Len(), "rejected records are not admitted")
}

func TestSession_AddDerivesTensor(t *testing.T) {
	s := NewSession(tensorConfig(), nil, tensor.New())
	pos, _, err := s.Add(tensorQuake("mt1", 34, -118, 0))
	require.NoError(t, err)

	ev := s.Event(pos)
	require.NotNil(t, ev.ScalarMoment)
	require.NotNil(t, ev.Axes)
	require.NotNil(t, ev.Planes)
	require.NotNil(t, ev.Planes.NP2)
	assert.Equal(t, "Mwc", ev.Method)
	require.Len(t, ev.Magnitudes, 1)
	assert.InDelta(t, 7.0, ev.Magnitudes[0].Value, 1e-9)
}

func TestSession_ResolveOriginSkipsLookup(t *testing.T) {
	finder := &mockFinder{}
	s := NewSession(originConfig(), finder, nil)
	pos, _, err := s.Add(quake("a", 34, -118, 0))
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), pos)
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, finder.calls)
}

func TestSession_ResolveTensor(t *testing.T) {
	finder := &mockFinder{result: map[string][]domain.CandidateOrigin{
		"mt1": {{ID: "ci1", Metric: 0.2}, {ID: "us1", Metric: 0.9}},
	}}
	s := NewSession(tensorConfig(), finder, tensor.New())
	pos, _, err := s.Add(tensorQuake("mt1", 34, -118, 0))
	require.NoError(t, err)
	_, _, err = s.Add(tensorQuake("mt2", 34.05, -118, 5*time.Second))
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, "mt1", res.Event.ID)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "ci1", res.Candidates[0].ID)
	require.Len(t, res.Siblings, 1)
	assert.Equal(t, "mt2", res.Siblings[0].ID)
	assert.Equal(t, Ambiguous, Classify(res.Candidates))
}

func TestSession_ResolveError(t *testing.T) {
	finder := &mockFinder{err: errors.New("catalog down")}
	s := NewSession(tensorConfig(), finder, tensor.New())
	pos, _, err := s.Add(tensorQuake("mt1", 34, -118, 0))
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), pos)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mt1")
}

func TestSession_Associate(t *testing.T) {
	s := NewSession(tensorConfig(), nil, tensor.New())
	pos, _, err := s.Add(tensorQuake("mt1", 34, -118, 0))
	require.NoError(t, err)

	mag := 7.1
	c := domain.CandidateOrigin{ID: "ci1", Time: base, Magnitude: &mag}
	ev := s.Associate(pos, c)
	require.NotNil(t, ev.Association)
	assert.Equal(t, "ci1", ev.Association.ID)

	mag = 3
	assert.Equal(t, 7.1, *s.Event(pos).Association.Magnitude)
}

func TestSession_ConcurrentResolve(t *testing.T) {
	finder := &mockFinder{result: map[string][]domain.CandidateOrigin{}}
	s := NewSession(tensorConfig(), finder, tensor.New())
	for i := range 20 {
		_, _, err := s.Add(tensorQuake(string(rune('a'+i)), 34, -118, time.Duration(i)*time.Second))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := range s.Len() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Resolve(context.Background(), i)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, finder.calls)
}
