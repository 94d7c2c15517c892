// Package domaintest provides an in-memory domain.File for tests.
package domaintest

import (
	"fmt"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/ctessum/sparse"
)

// File is an in-memory domain.File.
type File struct {
	FileName string
	Box      domain.Bounds
	BoxErr   error
	Vars     map[string]domain.Variable
	VData    map[string][]float64
	Closed   bool
}

// NewFile returns an empty file covering the whole globe.
func NewFile(name string) *File {
	return &File{
		FileName: name,
		Box:      domain.GlobalBounds,
		Vars:     make(map[string]domain.Variable),
		VData:    make(map[string][]float64),
	}
}

// Add stores a points x levels variable (points only when levels is 0).
func (f *File) Add(name, units string, points, levels int, data []float64) *File {
	shape := []int{points}
	if levels > 0 {
		shape = append(shape, levels)
	}
	d := sparse.ZerosDense(shape...)
	copy(d.Elements, data)
	f.Vars[name] = domain.Variable{Name: name, Units: units, Data: d}
	return f
}

// AddConst stores a points x levels variable filled with v.
func (f *File) AddConst(name, units string, points, levels int, v float64) *File {
	n := points * max(levels, 1)
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	return f.Add(name, units, points, levels, data)
}

// AddVData stores a metadata table.
func (f *File) AddVData(name string, v []float64) *File {
	f.VData[name] = v
	return f
}

func (f *File) Name() string { return f.FileName }

func (f *File) Bounds() (domain.Bounds, error) { return f.Box, f.BoxErr }

func (f *File) VariableExists(name string) bool {
	_, ok := f.Vars[name]
	return ok
}

func (f *File) Dimensions(name string) ([]int, error) {
	v, ok := f.Vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %s: %w", name, domain.ErrNotFound)
	}
	return append([]int(nil), v.Data.Shape...), nil
}

// ReadVariable returns a copy so callers may mutate the data.
func (f *File) ReadVariable(name string) (domain.Variable, error) {
	v, ok := f.Vars[name]
	if !ok {
		return domain.Variable{}, fmt.Errorf("variable %s: %w", name, domain.ErrNotFound)
	}
	c := sparse.ZerosDense(v.Data.Shape...)
	copy(c.Elements, v.Data.Elements)
	return domain.Variable{Name: v.Name, Units: v.Units, Data: c}, nil
}

func (f *File) ReadVData(name string, count int) ([]float64, error) {
	v, ok := f.VData[name]
	if !ok {
		return nil, fmt.Errorf("vdata %s: %w", name, domain.ErrNotFound)
	}
	if len(v) < count {
		return nil, fmt.Errorf("vdata %s: %w: %d values, want %d", name, domain.ErrDimensionMismatch, len(v), count)
	}
	return append([]float64(nil), v[:count]...), nil
}

func (f *File) Close() error {
	f.Closed = true
	return nil
}

// Opener serves Files by name.
type Opener map[string]*File

func (o Opener) Open(name string) (domain.File, error) {
	f, ok := o[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, domain.ErrNotFound)
	}
	f.Closed = false
	return f, nil
}
