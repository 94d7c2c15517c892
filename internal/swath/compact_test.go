package swath_test

import (
	"math/rand/v2"
	"testing"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/swath"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDomain = domain.Bounds{MinLon: -110, MinLat: 35, MaxLon: -75, MaxLat: 36}

// makeScan builds a scan whose points all lie outside testDomain, with every
// point's elevations equal to shared and values v(p, l) = p*100 + l.
func makeScan(points int, shared []float64, withThickness bool) *domain.Scan {
	levels := len(shared)
	s := &domain.Scan{}
	s.Reset(points, levels, withThickness)
	for p := 0; p < points; p++ {
		s.Timestamps[p] = float64(20061840000 + p)
		s.Longitudes[p] = 10
		s.Latitudes[p] = 10
		for l := 0; l < levels; l++ {
			s.Elevation.Set(p, l, shared[l])
			s.Value.Set(p, l, float64(p*100+l))
			if withThickness {
				s.Thickness.Set(p, l, 50)
			}
		}
	}
	return s
}

func place(s *domain.Scan, p int, lon, lat float64) {
	s.Longitudes[p], s.Latitudes[p] = lon, lat
}

func TestCompact_Scenario(t *testing.T) {
	shared := []float64{-100, 500, 4000, 9000, 15000}
	s := makeScan(10, shared, false)
	place(s, 2, -100, 35.5)
	place(s, 5, -80, 35.1)
	place(s, 9, -75, 36)

	q := swath.Query{Domain: testDomain, MinElevation: 0, MaxElevation: 16000}
	grid, ok, err := swath.Compact(s, q, shared)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, s.Points)
	assert.Equal(t, 4, s.Levels)
	assert.Len(t, s.Value.Data, 12)
	assert.Equal(t, []float64{500, 4000, 9000, 15000}, grid)
	assert.Equal(t, []float64{-100, -80, -75}, s.Longitudes)
	assert.Equal(t, []float64{201, 202, 203, 204}, s.Value.Row(0))
	assert.Equal(t, []float64{501, 502, 503, 504}, s.Value.Row(1))
	assert.Equal(t, []float64{901, 902, 903, 904}, s.Value.Row(2))
}

func TestCompact_Invariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	shared := []float64{0, 1000, 2000, 3000, 4000, 5000, 6000, 7000}
	s := makeScan(200, shared, true)
	for p := 0; p < s.Points; p++ {
		place(s, p, -130+rng.Float64()*80, 30+rng.Float64()*10)
	}
	place(s, 0, -100, 35.5)
	q := swath.Query{Domain: testDomain, MinElevation: 1500, MaxElevation: 6500}

	_, ok, err := swath.Compact(s, q, shared)
	require.NoError(t, err)
	require.True(t, ok)

	assert.LessOrEqual(t, s.Points, 200)
	assert.Equal(t, 5, s.Levels)
	for p := 0; p < s.Points; p++ {
		assert.True(t, testDomain.Contains(s.Longitudes[p], s.Latitudes[p]))
		for l := 0; l < s.Levels; l++ {
			e := s.Elevation.At(p, l)
			assert.True(t, e >= 1500 && e <= 6500, "elevation %v", e)
			assert.Equal(t, 50.0, s.Thickness.At(p, l))
		}
	}
}

func TestCompact_Idempotent(t *testing.T) {
	shared := []float64{-100, 500, 4000, 9000, 15000}
	s := makeScan(10, shared, false)
	place(s, 0, -90, 35.5)
	place(s, 7, -76, 35.9)
	q := swath.Query{Domain: testDomain, MinElevation: 0, MaxElevation: 10000}

	grid, ok, err := swath.Compact(s, q, shared)
	require.NoError(t, err)
	require.True(t, ok)
	first := snapshot(s)

	grid2, ok, err := swath.Compact(s, q, grid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, grid, grid2)
	if diff := cmp.Diff(first, snapshot(s)); diff != "" {
		t.Errorf("second compaction changed the scan (-first +second):\n%s", diff)
	}
}

func TestCompact_NoLevelInRange(t *testing.T) {
	shared := []float64{100, 200, 300}
	s := makeScan(4, shared, false)
	place(s, 1, -100, 35.5)

	_, ok, err := swath.Compact(s, swath.Query{Domain: testDomain, MinElevation: 5000, MaxElevation: 6000}, shared)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Points)
}

func TestCompact_NoPointInDomain(t *testing.T) {
	shared := []float64{100, 200, 300}
	s := makeScan(4, shared, false)

	_, ok, err := swath.Compact(s, swath.Query{Domain: testDomain, MinElevation: 0, MaxElevation: 6000}, shared)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Points)
}

func TestCompact_SharedGridMismatch(t *testing.T) {
	s := makeScan(2, []float64{1, 2, 3}, false)
	_, _, err := swath.Compact(s, swath.Query{Domain: testDomain}, []float64{1, 2})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestCompact_TimeWindow(t *testing.T) {
	shared := []float64{100, 200}
	s := makeScan(5, shared, false)
	for p := 0; p < 5; p++ {
		place(s, p, -100, 35.5)
	}
	q := swath.Query{
		Domain:       testDomain,
		MinElevation: 0,
		MaxElevation: 1000,
		FirstTime:    20061840001,
		LastTime:     20061840003,
	}

	_, ok, err := swath.Compact(s, q, shared)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{20061840001, 20061840002, 20061840003}, s.Timestamps)
}

func TestCompact_PerCellWithoutSharedGrid(t *testing.T) {
	s := makeScan(4, []float64{0, 0, 0}, true)
	for p := 0; p < 4; p++ {
		place(s, p, -100, 35.5)
	}
	// Point 0: all layers too high. Point 2: one layer in range.
	s.Elevation.Set(0, 0, 20000)
	s.Elevation.Set(0, 1, 20000)
	s.Elevation.Set(0, 2, 20000)
	s.Elevation.Set(2, 0, 20000)
	s.Elevation.Set(2, 1, 3000)
	s.Elevation.Set(2, 2, 20000)
	s.Thickness.Set(2, 1, 120)

	grid, ok, err := swath.Compact(s, swath.Query{Domain: testDomain, MinElevation: 0, MaxElevation: 16000}, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, grid)
	assert.Equal(t, 3, s.Points)
	assert.Equal(t, 3, s.Levels)
	assert.Equal(t, []float64{100, 101, 102}, s.Value.Row(0))
	assert.Equal(t, []float64{domain.Missing, 201, domain.Missing}, s.Value.Row(1))
	assert.Equal(t, 120.0, s.Thickness.At(1, 1))
	assert.Equal(t, []float64{300, 301, 302}, s.Value.Row(2))
}

func TestLevelWindow(t *testing.T) {
	first, last, ok := swath.LevelWindow([]float64{-100, 500, 4000, 9000, 15000}, 0, 16000)
	require.True(t, ok)
	assert.Equal(t, 1, first)
	assert.Equal(t, 4, last)

	_, _, ok = swath.LevelWindow([]float64{100, 200}, 300, 400)
	assert.False(t, ok)
	_, _, ok = swath.LevelWindow(nil, 0, 1)
	assert.False(t, ok)
}

type scanSnapshot struct {
	Points, Levels                    int
	Timestamps, Longitudes, Latitudes []float64
	Elevation, Value                  []float64
}

func snapshot(s *domain.Scan) scanSnapshot {
	return scanSnapshot{
		Points:     s.Points,
		Levels:     s.Levels,
		Timestamps: append([]float64(nil), s.Timestamps...),
		Longitudes: append([]float64(nil), s.Longitudes...),
		Latitudes:  append([]float64(nil), s.Latitudes...),
		Elevation:  append([]float64(nil), s.Elevation.Data...),
		Value:      append([]float64(nil), s.Value.Data...),
	}
}
