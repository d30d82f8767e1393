package comcat

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
	"github.com/couchcryptid/quake-catalog-loader/internal/observability"
)

// --- mock for cache tests ---

type countingFinder struct {
	calls  int
	result []domain.CandidateOrigin
	err    error
}

func (m *countingFinder) FindCandidates(_ context.Context, _ domain.Event, _ domain.SearchWindow) ([]domain.CandidateOrigin, error) {
	m.calls++
	return m.result, m.err
}

// --- CachedFinder tests ---

func TestCachedFinder_CacheHit(t *testing.T) {
	inner := &countingFinder{result: []domain.CandidateOrigin{{ID: "ci1", Time: eventTime.Add(2e9), Lat: 34.1, Lon: -118}}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedFinder(inner, 10, metrics)
	ev := domain.Event{ID: "x", Time: eventTime, Lat: 34, Lon: -118}

	r1, err := cached.FindCandidates(context.Background(), ev, window)
	require.NoError(t, err)
	r2, err := cached.FindCandidates(context.Background(), ev, window)
	require.NoError(t, err)

	require.Len(t, r2, 1)
	assert.Equal(t, r1[0].ID, r2[0].ID)
	assert.InDelta(t, 11.1, r2[0].DistanceKm, 0.1)
	assert.InDelta(t, 2.0, r2[0].TimeDelta, 1e-9)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CatalogCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CatalogCache.WithLabelValues("miss")))
}

func TestCachedFinder_ReturnsCopies(t *testing.T) {
	inner := &countingFinder{result: []domain.CandidateOrigin{{ID: "ci1"}}}
	cached := NewCachedFinder(inner, 10, observability.NewMetricsForTesting())
	ev := domain.Event{ID: "x", Time: eventTime}

	r1, err := cached.FindCandidates(context.Background(), ev, window)
	require.NoError(t, err)
	r1[0].ID = "mutated"

	r2, err := cached.FindCandidates(context.Background(), ev, window)
	require.NoError(t, err)
	assert.Equal(t, "ci1", r2[0].ID)
}

func TestCachedFinder_HitRemeasuresForNearbyEvent(t *testing.T) {
	inner := &countingFinder{result: []domain.CandidateOrigin{
		{ID: "south", Time: eventTime.Add(1e9), Lat: 33.99999, Lon: -118},
		{ID: "north", Time: eventTime.Add(1e9), Lat: 34.00003, Lon: -118},
	}}
	cached := NewCachedFinder(inner, 10, observability.NewMetricsForTesting())

	first := domain.Event{ID: "a", Time: eventTime, Lat: 34, Lon: -118}
	_, err := cached.FindCandidates(context.Background(), first, window)
	require.NoError(t, err)

	// Same key after rounding, but closer to the northern origin.
	second := domain.Event{ID: "b", Time: eventTime, Lat: 34.00004, Lon: -118}
	got, err := cached.FindCandidates(context.Background(), second, window)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls, "second lookup should be served from cache")

	require.Len(t, got, 2)
	assert.Equal(t, "north", got[0].ID, "candidates should be re-sorted for the second event")
	assert.InDelta(t, domain.SurfaceDistanceKm(34.00004, -118, 34.00003, -118), got[0].DistanceKm, 1e-12)
	assert.InDelta(t, domain.SurfaceDistanceKm(34.00004, -118, 33.99999, -118), got[1].DistanceKm, 1e-12)
	assert.InDelta(t, 1.0, got[0].TimeDelta, 1e-9)
	assert.Less(t, got[0].Metric, got[1].Metric)
}

func TestCachedFinder_ReturnsDeepCopies(t *testing.T) {
	mag := 4.2
	inner := &countingFinder{result: []domain.CandidateOrigin{{ID: "ci1", Magnitude: &mag}}}
	cached := NewCachedFinder(inner, 10, observability.NewMetricsForTesting())
	ev := domain.Event{ID: "x", Time: eventTime}

	r1, err := cached.FindCandidates(context.Background(), ev, window)
	require.NoError(t, err)
	*r1[0].Magnitude = 9.9
	mag = 7.7

	r2, err := cached.FindCandidates(context.Background(), ev, window)
	require.NoError(t, err)
	require.NotNil(t, r2[0].Magnitude)
	assert.InDelta(t, 4.2, *r2[0].Magnitude, 1e-9)

	*r2[0].Magnitude = 1.0
	r3, err := cached.FindCandidates(context.Background(), ev, window)
	require.NoError(t, err)
	assert.InDelta(t, 4.2, *r3[0].Magnitude, 1e-9)
}

func TestCachedFinder_EmptyNotCached(t *testing.T) {
	inner := &countingFinder{}
	cached := NewCachedFinder(inner, 10, observability.NewMetricsForTesting())
	ev := domain.Event{ID: "x", Time: eventTime}

	_, _ = cached.FindCandidates(context.Background(), ev, window)
	_, _ = cached.FindCandidates(context.Background(), ev, window)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedFinder_ErrorNotCached(t *testing.T) {
	inner := &countingFinder{err: errors.New("boom")}
	cached := NewCachedFinder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.FindCandidates(context.Background(), domain.Event{}, window)
	require.Error(t, err)
	assert.Equal(t, 0, cached.cache.size())
}

func TestCachedFinder_KeyIncludesAnchor(t *testing.T) {
	inner := &countingFinder{result: []domain.CandidateOrigin{{ID: "ci1"}}}
	cached := NewCachedFinder(inner, 10, observability.NewMetricsForTesting())
	ev := domain.Event{ID: "x", Time: eventTime}

	_, _ = cached.FindCandidates(context.Background(), ev, window)
	ev.Association = &domain.CandidateOrigin{Time: eventTime.Add(-20e9)}
	_, _ = cached.FindCandidates(context.Background(), ev, window)
	assert.Equal(t, 2, inner.calls)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", []domain.CandidateOrigin{{ID: "a"}})
	c.put("b", []domain.CandidateOrigin{{ID: "b"}})

	// Touch "a" so "b" becomes least recently used.
	_, ok := c.get("a")
	require.True(t, ok)
	c.put("c", []domain.CandidateOrigin{{ID: "c"}})

	_, ok = c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", []domain.CandidateOrigin{{ID: "1"}})
	c.put("a", []domain.CandidateOrigin{{ID: "2"}})

	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, 1, c.size())
}
