package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

// Valid coordinate and elevation ranges.
const (
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinElevation = -500.0
	MaxElevation = 1e5
)

// Bounds is a longitude/latitude box in degrees.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// GlobalBounds spans the whole globe.
var GlobalBounds = Bounds{MinLon: MinLongitude, MinLat: MinLatitude, MaxLon: MaxLongitude, MaxLat: MaxLatitude}

func IsValidLongitude(x float64) bool { return x >= MinLongitude && x <= MaxLongitude }
func IsValidLatitude(x float64) bool  { return x >= MinLatitude && x <= MaxLatitude }
func IsValidElevation(x float64) bool { return x >= MinElevation && x <= MaxElevation }

// Valid reports whether b satisfies the ordering and range invariants.
func (b Bounds) Valid() bool {
	return IsValidLongitude(b.MinLon) && IsValidLongitude(b.MaxLon) &&
		IsValidLatitude(b.MinLat) && IsValidLatitude(b.MaxLat) &&
		b.MinLon <= b.MaxLon && b.MinLat <= b.MaxLat
}

// Overlaps reports whether b and other share at least one point.
func (b Bounds) Overlaps(other Bounds) bool {
	return b.geom().Overlaps(other.geom())
}

// Contains reports whether the point lies inside b, edges included.
func (b Bounds) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

func (b Bounds) String() string {
	return fmt.Sprintf("%g %g %g %g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

func (b Bounds) geom() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.MinLon, Y: b.MinLat},
		Max: geom.Point{X: b.MaxLon, Y: b.MaxLat},
	}
}

func boundsFromGeom(g *geom.Bounds) Bounds {
	return Bounds{
		MinLon: clamp(g.Min.X, MinLongitude, MaxLongitude),
		MinLat: clamp(g.Min.Y, MinLatitude, MaxLatitude),
		MaxLon: clamp(g.Max.X, MinLongitude, MaxLongitude),
		MaxLat: clamp(g.Max.Y, MinLatitude, MaxLatitude),
	}
}

// ComputeBounds returns the extent of the given coordinates in a single pass.
// The result is clamped to the valid coordinate ranges.
func ComputeBounds(longitudes, latitudes []float64) (Bounds, error) {
	if len(longitudes) == 0 || len(latitudes) == 0 {
		return Bounds{}, ErrNoData
	}
	if len(longitudes) != len(latitudes) {
		return Bounds{}, fmt.Errorf("%w: %d longitudes, %d latitudes",
			ErrDimensionMismatch, len(longitudes), len(latitudes))
	}
	g := geom.NewBoundsPoint(geom.Point{X: floats.Min(longitudes), Y: floats.Min(latitudes)})
	g.Extend(geom.NewBoundsPoint(geom.Point{X: floats.Max(longitudes), Y: floats.Max(latitudes)}))
	return boundsFromGeom(g), nil
}

// TrackBounds computes the bounds of a satellite ground track. A track that
// crosses the antimeridian is widened to the full longitude range rather
// than represented as a wrapped interval.
func TrackBounds(longitudes, latitudes []float64) (Bounds, error) {
	b, err := ComputeBounds(longitudes, latitudes)
	if err != nil {
		return Bounds{}, err
	}
	for i := 1; i < len(longitudes); i++ {
		if math.Abs(longitudes[i]-longitudes[i-1]) > 180 {
			b.MinLon, b.MaxLon = MinLongitude, MaxLongitude
			break
		}
	}
	return b, nil
}

// ClampInvalidCoordinates replaces every out-of-range coordinate pair with
// its nearest valid neighbour, filling forward and then backward from the
// first valid point. It returns false if no point is valid.
func ClampInvalidCoordinates(longitudes, latitudes []float64) bool {
	n := min(len(longitudes), len(latitudes))
	valid := func(i int) bool {
		return IsValidLongitude(longitudes[i]) && IsValidLatitude(latitudes[i])
	}

	first := -1
	for i := 0; i < n; i++ {
		if valid(i) {
			first = i
			break
		}
	}
	if first < 0 {
		return false
	}

	for i := first + 1; i < n; i++ {
		if !valid(i) {
			longitudes[i], latitudes[i] = longitudes[i-1], latitudes[i-1]
		}
	}
	for i := first - 1; i >= 0; i-- {
		longitudes[i], latitudes[i] = longitudes[i+1], latitudes[i+1]
	}
	return true
}

// ParseDomain parses "minLon minLat maxLon maxLat".
func ParseDomain(s string) (Bounds, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return Bounds{}, fmt.Errorf("parse domain %q: %w", s, err)
	}
	b := Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if !b.Valid() {
		return Bounds{}, fmt.Errorf("invalid domain %q", s)
	}
	return b, nil
}

// ParseElevationRange parses "min max" in meters above mean sea level.
func ParseElevationRange(s string) (lo, hi float64, err error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return 0, 0, fmt.Errorf("parse elevation range %q: %w", s, err)
	}
	if !IsValidElevation(v[0]) || !IsValidElevation(v[1]) || v[0] > v[1] {
		return 0, 0, fmt.Errorf("invalid elevation range %q", s)
	}
	return v[0], v[1], nil
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("non-finite value")
		}
		out[i] = v
	}
	return out, nil
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
