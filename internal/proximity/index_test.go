package proximity

import (
	"slices"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestIndex_Record(t *testing.T) {
	x := New(100, 16*time.Second)

	pos, near := x.Record(34.0, -118.0, base)
	assert.Equal(t, 0, pos)
	assert.Empty(t, near)

	pos, near = x.Record(34.05, -118.0, base.Add(5*time.Second))
	assert.Equal(t, 1, pos)
	assert.Equal(t, []int{0}, near)

	// Same place, an hour later.
	pos, near = x.Record(34.0, -118.0, base.Add(time.Hour))
	assert.Equal(t, 2, pos)
	assert.Empty(t, near)

	assert.Equal(t, 3, x.Len())
	assert.Equal(t, []Pair{{A: 0, B: 1}}, x.Pairs())
	assert.Equal(t, []int{1}, x.Neighbors(0))
	assert.Equal(t, []int{0}, x.Neighbors(1))
	assert.Empty(t, x.Neighbors(2))
}

func TestIndex_TimeSeparation(t *testing.T) {
	x := New(100, 16*time.Second)
	x.Record(0, 0, base)
	_, near := x.Record(0, 0, base.Add(16*time.Second))
	assert.Equal(t, []int{0}, near)

	// 17s from the first event, 33s from the second.
	_, near = x.Record(0, 0, base.Add(-17*time.Second))
	assert.Equal(t, []int{0}, near)
}

func TestIndex_AntimeridianNeighbors(t *testing.T) {
	x := New(100, 16*time.Second)
	x.Record(-15, 179.9, base)
	_, near := x.Record(-15, -179.9, base)
	assert.Equal(t, []int{0}, near)
}

func TestIndex_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("neighbors are symmetric and pairs are ordered", prop.ForAll(
		func(lats []float64, lons []float64, offsets []int64) bool {
			n := min(len(lats), len(lons), len(offsets))
			x := New(100, 16*time.Second)
			for i := range n {
				x.Record(lats[i], lons[i], base.Add(time.Duration(offsets[i])*time.Second))
			}
			for _, p := range x.Pairs() {
				if p.A >= p.B {
					return false
				}
				if !slices.Contains(x.Neighbors(p.A), p.B) || !slices.Contains(x.Neighbors(p.B), p.A) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(33.5, 34.5)),
		gen.SliceOf(gen.Float64Range(-118.5, -117.5)),
		gen.SliceOf(gen.Int64Range(-30, 30)),
	))

	properties.TestingRun(t)
}
