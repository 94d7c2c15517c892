// Package cdf reads and writes CALIPSO-shaped swath files in the netCDF-3
// classic format.
package cdf

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	ncdf "github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Geolocation variable names.
const (
	LongitudeVar = "Longitude"
	LatitudeVar  = "Latitude"
)

const (
	unitsAttr = "units"
	scaleAttr = "scale_factor"
)

// Opener opens netCDF-3 files from the local filesystem.
type Opener struct{}

// Open reads the header of the named file. The returned File must be closed.
func (Opener) Open(name string) (domain.File, error) {
	fh, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	nc, err := ncdf.Open(fh)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("read header %s: %w", name, err), fh.Close())
	}
	return &File{name: name, fh: fh, nc: nc}, nil
}

// File is an open netCDF-3 file.
type File struct {
	name string
	fh   *os.File
	nc   *ncdf.File
}

func (f *File) Name() string { return f.name }

func (f *File) VariableExists(name string) bool {
	return f.nc.Header.Lengths(name) != nil
}

func (f *File) Dimensions(name string) ([]int, error) {
	lengths := f.nc.Header.Lengths(name)
	if lengths == nil {
		return nil, fmt.Errorf("variable %s: %w", name, domain.ErrNotFound)
	}
	return append([]int(nil), lengths...), nil
}

// ReadVariable reads the whole variable as float64. Integer storage is
// widened and a scale_factor attribute, when present, is divided out.
// Missing cells are left as they are.
func (f *File) ReadVariable(name string) (domain.Variable, error) {
	shape, err := f.Dimensions(name)
	if err != nil {
		return domain.Variable{}, err
	}
	if len(shape) == 0 {
		return domain.Variable{}, fmt.Errorf("variable %s: %w: scalar", name, domain.ErrNoData)
	}

	values, err := f.read(name)
	if err != nil {
		return domain.Variable{}, err
	}
	d := sparse.ZerosDense(shape...)
	if len(values) != len(d.Elements) {
		return domain.Variable{}, fmt.Errorf("variable %s: %w: read %d values for shape %v",
			name, domain.ErrDimensionMismatch, len(values), shape)
	}
	copy(d.Elements, values)

	if scale, ok := attrFloat(f.nc.Header.GetAttribute(name, scaleAttr)); ok && scale != 0 && scale != 1 {
		for i, v := range d.Elements {
			if v != domain.Missing {
				d.Elements[i] = v / scale
			}
		}
	}

	units, _ := f.nc.Header.GetAttribute(name, unitsAttr).(string)
	return domain.Variable{Name: name, Units: units, Data: d}, nil
}

// ReadVData reads a metadata table: a global attribute of that name or,
// failing that, a one-dimensional variable.
func (f *File) ReadVData(name string, count int) ([]float64, error) {
	var (
		values []float64
		err    error
	)
	if attr := f.nc.Header.GetAttribute("", name); attr != nil {
		values, err = toFloat64(attr)
	} else if lengths := f.nc.Header.Lengths(name); len(lengths) == 1 {
		values, err = f.read(name)
	} else {
		return nil, fmt.Errorf("vdata %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("vdata %s: %w", name, err)
	}
	if len(values) < count {
		return nil, fmt.Errorf("vdata %s: %w: %d values, want %d",
			name, domain.ErrDimensionMismatch, len(values), count)
	}
	return values[:count], nil
}

// Bounds reads the ground track and returns its extent. Invalid
// coordinates are replaced by their nearest valid neighbour first.
func (f *File) Bounds() (domain.Bounds, error) {
	lons, err := f.geolocation(LongitudeVar)
	if err != nil {
		return domain.Bounds{}, err
	}
	lats, err := f.geolocation(LatitudeVar)
	if err != nil {
		return domain.Bounds{}, err
	}
	if len(lons) != len(lats) {
		return domain.Bounds{}, fmt.Errorf("%w: %d longitudes, %d latitudes",
			domain.ErrDimensionMismatch, len(lons), len(lats))
	}
	if !domain.ClampInvalidCoordinates(lons, lats) {
		return domain.Bounds{}, fmt.Errorf("%s: %w: no valid coordinates", f.name, domain.ErrNoData)
	}
	return domain.TrackBounds(lons, lats)
}

func (f *File) Close() error {
	return f.fh.Close()
}

func (f *File) geolocation(name string) ([]float64, error) {
	v, err := f.ReadVariable(name)
	if err != nil {
		return nil, err
	}
	g, err := v.Grid()
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return domain.GeolocationComponent(g), nil
}

func (f *File) read(name string) ([]float64, error) {
	r := f.nc.Reader(name, nil, nil)
	if r == nil {
		return nil, fmt.Errorf("variable %s: %w", name, domain.ErrNotFound)
	}
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	values, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", name, err)
	}
	return values, nil
}

func toFloat64(v any) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return append([]float64(nil), s...), nil
	case []float32:
		return widen(s), nil
	case []int32:
		return widen(s), nil
	case []int16:
		return widen(s), nil
	case []uint8:
		return widen(s), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %T", v)
	}
}

func widen[T float32 | int32 | int16 | uint8](s []T) []float64 {
	out := make([]float64, len(s))
	for i, x := range s {
		out[i] = float64(x)
	}
	return out
}

func attrFloat(v any) (float64, bool) {
	values, err := toFloat64(v)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	return values[0], true
}
