package jitter

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/geodensity/internal/model"
)

func newJitter(t *testing.T, radius float64, seed uint64) *Jitter {
	t.Helper()
	j, err := New(radius, rand.New(rand.NewPCG(seed, 2)))
	require.NoError(t, err)
	return j
}

func TestNew_Invalid(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for _, r := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		_, err := New(r, rng)
		assert.Error(t, err, "radius %v", r)
	}
	_, err := New(0.01, nil)
	assert.Error(t, err)
}

func TestPoint_StaysWithinRadius(t *testing.T) {
	j := newJitter(t, 0.01, 42)
	orig := model.Point{Lat: 40.000, Lon: -74.000}

	for i := 0; i < 10000; i++ {
		p := j.Point(orig)
		require.GreaterOrEqual(t, p.Lat, 39.99)
		require.LessOrEqual(t, p.Lat, 40.01)
		require.GreaterOrEqual(t, p.Lon, -74.01)
		require.LessOrEqual(t, p.Lon, -73.99)
	}
}

func TestOffset_Bounds(t *testing.T) {
	for _, eps := range []float64{0, 0.001, 0.5, 3} {
		j := newJitter(t, eps, 7)
		for i := 0; i < 2000; i++ {
			o := j.Offset()
			require.LessOrEqual(t, math.Abs(o), eps)
		}
	}
}

func TestApply_IndependentOffsets(t *testing.T) {
	const n = 5000
	j := newJitter(t, 0.01, 3)

	origin := model.Point{Lat: 30.27, Lon: -97.74}
	dest := model.Point{Lat: 30.30, Lon: -97.70}
	recs := make([]model.GeocodedRecord, n)
	for i := range recs {
		recs[i] = model.GeocodedRecord{Record: model.Record{Index: int64(i)}, Points: []model.Point{origin, dest}}
	}

	fuzzed := j.Apply(recs)
	require.Len(t, fuzzed, n)

	offsets := make([][]float64, 4)
	for i := range offsets {
		offsets[i] = make([]float64, n)
	}
	shared := 0
	for i, f := range fuzzed {
		assert.Equal(t, int64(i), f.Record.Index)
		require.Len(t, f.Points, 2)
		o := []float64{
			f.Points[0].Lat - origin.Lat,
			f.Points[0].Lon - origin.Lon,
			f.Points[1].Lat - dest.Lat,
			f.Points[1].Lon - dest.Lon,
		}
		for k, v := range o {
			require.LessOrEqual(t, math.Abs(v), 0.01+1e-12)
			offsets[k][i] = v
		}
		if o[0] == o[2] || o[1] == o[3] || o[0] == o[1] {
			shared++
		}
	}
	assert.Zero(t, shared, "axes must not share an offset")

	for a := 0; a < 4; a++ {
		for b := a + 1; b < 4; b++ {
			r := stat.Correlation(offsets[a], offsets[b], nil)
			assert.Less(t, math.Abs(r), 0.1, "offsets %d and %d correlate: %v", a, b, r)
		}
	}

	// Input is untouched; output carries only fuzzed points.
	assert.Equal(t, origin, recs[0].Points[0])
	assert.NotEqual(t, origin, fuzzed[0].Points[0])
}

func TestApply_Reproducible(t *testing.T) {
	recs := []model.GeocodedRecord{
		{Points: []model.Point{{Lat: 40, Lon: -74}}},
		{Points: []model.Point{{Lat: 41, Lon: -73}, {Lat: 42, Lon: -72}}},
	}
	a := newJitter(t, 0.01, 9).Apply(recs)
	b := newJitter(t, 0.01, 9).Apply(recs)
	c := newJitter(t, 0.01, 10).Apply(recs)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPoint_Clamped(t *testing.T) {
	j := newJitter(t, 1, 1)
	for i := 0; i < 1000; i++ {
		p := j.Point(model.Point{Lat: 89.9, Lon: 179.9})
		require.LessOrEqual(t, p.Lat, 90.0)
		require.LessOrEqual(t, p.Lon, 180.0)
		require.True(t, p.Valid())
	}
}

func TestPassthrough(t *testing.T) {
	recs := []model.GeocodedRecord{{Record: model.Record{Index: 4}, Points: []model.Point{{Lat: 1, Lon: 2}}}}
	out := Passthrough(recs)
	require.Len(t, out, 1)
	assert.Equal(t, recs[0].Points, out[0].Points)

	out[0].Points[0].Lat = 9
	assert.Equal(t, 1.0, recs[0].Points[0].Lat)
}
