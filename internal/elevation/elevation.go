// Package elevation reconstructs absolute elevations (meters above mean sea
// level, surface to sky) from CALIPSO altitude fields.
package elevation

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Variable names read by the reconstruction.
const (
	LayerTop  = "Layer_Top_Altitude"
	LayerBase = "Layer_Base_Altitude"
)

// SurfaceSources lists surface elevation variables in order of preference.
var SurfaceSources = []string{
	"Surface_Elevation_Statistics",
	"DEM_Surface_Elevation",
	"Surface_Elevation",
}

// ErrNoSurface is returned when a profile product has no surface elevation.
var ErrNoSurface = errors.New("no surface elevation variable")

// Result carries what later stages need from the reconstruction.
type Result struct {
	// Shared is the common vertical grid in meters, surface to sky. Nil for
	// products without one.
	Shared []float64
	// Surface is the per-point surface elevation in meters. Nil unless the
	// product has a shared grid.
	Surface []float64
}

// Reconstruct fills s.Elevation (and s.Thickness for layered products).
// s must already be shaped to the data variable.
func Reconstruct(f domain.File, p domain.Product, s *domain.Scan) (Result, error) {
	switch {
	case p.Layered:
		return Result{}, Layered(f, s)
	case p.OmitsElevation:
		s.Elevation.Fill(0)
		return Result{}, nil
	}

	shared, err := ReadShared(f, p, s.Levels)
	if err != nil {
		return Result{}, err
	}
	surface, err := Profile(f, s, shared)
	if err != nil {
		return Result{}, err
	}
	return Result{Shared: shared, Surface: surface}, nil
}

// Layered computes layer mid-point elevation and thickness from the top and
// base altitudes (km). Levels are flipped to surface to sky. A layer with a
// negative base or a top not above its base gets zero elevation and
// thickness.
func Layered(f domain.File, s *domain.Scan) error {
	top, err := readLevels(f, LayerTop, s)
	if err != nil {
		return err
	}
	base, err := readLevels(f, LayerBase, s)
	if err != nil {
		return err
	}
	top.ReverseLevels()
	base.ReverseLevels()

	if !s.HasThickness {
		return fmt.Errorf("layered scan has no thickness buffer")
	}
	for i := range s.Elevation.Data {
		t, b := top.Data[i], base.Data[i]
		if b < 0 || t <= b {
			s.Elevation.Data[i] = 0
			s.Thickness.Data[i] = 0
			continue
		}
		s.Elevation.Data[i] = (t + b) * 0.5 * 1000
		s.Thickness.Data[i] = (t - b) * 1000
	}
	return nil
}

// ReadShared reads the product's altitude table (km, sky to surface) and
// returns it in meters, surface to sky.
func ReadShared(f domain.File, p domain.Product, levels int) ([]float64, error) {
	if p.AltitudeVData == "" {
		return nil, fmt.Errorf("product %s has no altitude table", p.Name)
	}
	km, err := f.ReadVData(p.AltitudeVData, levels)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.AltitudeVData, err)
	}
	return SharedLevels(km), nil
}

// SharedLevels converts an altitude table in km, sky to surface, to meters,
// surface to sky.
func SharedLevels(km []float64) []float64 {
	out := make([]float64, len(km))
	for i, a := range km {
		out[len(km)-1-i] = a * 1000
	}
	return out
}

// Profile sets elevation(p, l) = max(shared[l], surface[p]) and returns the
// per-point surface elevation in meters.
func Profile(f domain.File, s *domain.Scan, shared []float64) ([]float64, error) {
	if len(shared) != s.Levels {
		return nil, fmt.Errorf("%w: %d shared levels for %d scan levels",
			domain.ErrDimensionMismatch, len(shared), s.Levels)
	}
	surface, err := Surface(f, s.Points)
	if err != nil {
		return nil, err
	}
	for p := 0; p < s.Points; p++ {
		row := s.Elevation.Row(p)
		for l := range row {
			row[l] = max(shared[l], surface[p])
		}
	}
	return surface, nil
}

// Surface reads the first available surface elevation source and reduces it
// to one value per point in meters: a single component as is, the mean of
// two, or the third of three or more (the mean column of the statistics
// variables). Values outside the valid elevation range become zero.
func Surface(f domain.File, points int) ([]float64, error) {
	name := ""
	for _, n := range SurfaceSources {
		if f.VariableExists(n) {
			name = n
			break
		}
	}
	if name == "" {
		return nil, ErrNoSurface
	}

	v, err := f.ReadVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	g, err := v.Grid()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if g.Points != points {
		return nil, fmt.Errorf("%s: %w: %d points, want %d", name, domain.ErrDimensionMismatch, g.Points, points)
	}

	out := make([]float64, points)
	for p := range out {
		row := g.Row(p)
		var km float64
		switch {
		case len(row) == 1:
			km = row[0]
		case len(row) == 2:
			km = stat.Mean(row, nil)
		default:
			km = row[2]
		}
		m := km * 1000
		if !domain.IsValidElevation(m) {
			m = 0
		}
		out[p] = m
	}
	return out, nil
}

func readLevels(f domain.File, name string, s *domain.Scan) (domain.Grid, error) {
	v, err := f.ReadVariable(name)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read %s: %w", name, err)
	}
	g, err := v.Grid()
	if err != nil {
		return domain.Grid{}, fmt.Errorf("read %s: %w", name, err)
	}
	if g.Points != s.Points || g.Levels != s.Levels {
		return domain.Grid{}, fmt.Errorf("%s: %w: %dx%d, want %dx%d", name, domain.ErrDimensionMismatch,
			g.Points, g.Levels, s.Points, s.Levels)
	}
	return g, nil
}
