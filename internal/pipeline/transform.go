package pipeline

import (
	"fmt"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/adapter/cdf"
	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/elevation"
	"github.com/couchcryptid/calipso-subset/internal/swath"
)

// ProfileTimeVar holds per-point acquisition times (yymmdd.fffffff).
const ProfileTimeVar = "Profile_UTC_Time"

// stageError tags an error with the pipeline stage it came from, used as the
// file_errors_total label.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func atStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

// readScan loads the variable, geolocation and per-point times of f into
// p.scan and reconstructs elevations. Levels are surface to sky afterwards.
func (p *Pipeline) readScan(f domain.File, product domain.Product, start time.Time) (elevation.Result, error) {
	dims, err := f.Dimensions(p.opts.Variable)
	if err != nil {
		return elevation.Result{}, atStage("dimensions", err)
	}
	if len(dims) == 0 || dims[0] == 0 {
		return elevation.Result{}, atStage("dimensions", domain.ErrNoData)
	}
	points, levels := dims[0], 1
	for _, n := range dims[1:] {
		levels *= n
	}
	if p.opts.MaxCells > 0 && points*levels > p.opts.MaxCells {
		return elevation.Result{}, atStage("allocate",
			fmt.Errorf("%w: %d x %d cells, limit %d", ErrTooLarge, points, levels, p.opts.MaxCells))
	}
	if p.scan.Points != points || p.scan.Levels != levels {
		p.logger.Debug("reallocating scan buffers", "file", f.Name(), "points", points, "levels", levels)
	}
	s := &p.scan
	s.Reset(points, levels, product.Layered)

	v, err := f.ReadVariable(p.opts.Variable)
	if err != nil {
		return elevation.Result{}, atStage("read", err)
	}
	g, err := v.Grid()
	if err != nil {
		return elevation.Result{}, atStage("read", err)
	}
	if g.Points != points || g.Levels != levels {
		return elevation.Result{}, atStage("read", fmt.Errorf("%w: %s is %dx%d, dimensions say %dx%d",
			domain.ErrDimensionMismatch, p.opts.Variable, g.Points, g.Levels, points, levels))
	}
	copy(s.Value.Data, g.Data)
	if levels > 1 {
		s.Value.ReverseLevels()
	}
	p.fileUnits = v.Units

	if err := p.readGeolocation(f, start); err != nil {
		return elevation.Result{}, atStage("geolocation", err)
	}

	res, err := elevation.Reconstruct(f, product, s)
	if err != nil {
		return elevation.Result{}, atStage("elevation", err)
	}
	return res, nil
}

// readGeolocation fills longitudes, latitudes and timestamps. Files without
// per-point times stamp every point with the granule start.
func (p *Pipeline) readGeolocation(f domain.File, start time.Time) error {
	s := &p.scan
	for _, c := range []struct {
		name string
		dst  []float64
	}{
		{cdf.LongitudeVar, s.Longitudes},
		{cdf.LatitudeVar, s.Latitudes},
	} {
		values, err := p.component(f, c.name)
		if err != nil {
			return err
		}
		copy(c.dst, values)
	}
	if !domain.ClampInvalidCoordinates(s.Longitudes, s.Latitudes) {
		return fmt.Errorf("%w: no valid coordinates", domain.ErrNoData)
	}

	if !f.VariableExists(ProfileTimeVar) {
		stamp := float64(domain.FormatTimestamp(start))
		for i := range s.Timestamps {
			s.Timestamps[i] = stamp
		}
		return nil
	}
	times, err := p.component(f, ProfileTimeVar)
	if err != nil {
		return err
	}
	for i, v := range times {
		t, err := domain.ProfileUTCTime(v)
		if err != nil {
			t = start
		}
		s.Timestamps[i] = float64(domain.FormatTimestamp(t))
	}
	return nil
}

func (p *Pipeline) component(f domain.File, name string) ([]float64, error) {
	v, err := f.ReadVariable(name)
	if err != nil {
		return nil, err
	}
	g, err := v.Grid()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if g.Points != p.scan.Points {
		return nil, fmt.Errorf("%w: %s has %d points, want %d",
			domain.ErrDimensionMismatch, name, g.Points, p.scan.Points)
	}
	return domain.GeolocationComponent(g), nil
}

// query is the compaction query for the run.
func (p *Pipeline) query() swath.Query {
	return swath.Query{
		Domain:       p.opts.Domain,
		MinElevation: p.opts.MinElevation,
		MaxElevation: p.opts.MaxElevation,
		FirstTime:    p.opts.Range.FirstStamp(),
		LastTime:     p.opts.Range.LastStamp(),
	}
}
