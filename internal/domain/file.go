package domain

import (
	"errors"

	"github.com/ctessum/sparse"
)

var (
	// ErrNoData is returned when a variable or coordinate set is empty.
	ErrNoData = errors.New("no data")
	// ErrDimensionMismatch is returned when related arrays disagree in shape.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNotFound is returned for a variable or table missing from a file.
	ErrNotFound = errors.New("not found")
)

// Variable is a named array read from a file, scaled to physical units.
type Variable struct {
	Name  string
	Units string
	Data  *sparse.DenseArray
}

// Grid views the variable as a point-major grid.
func (v Variable) Grid() (Grid, error) {
	return GridFromDense(v.Data)
}

// File is an open input file exposing named variables. Dimensions()[0] is
// always the ground point count.
type File interface {
	Name() string
	Bounds() (Bounds, error)
	VariableExists(name string) bool
	Dimensions(name string) ([]int, error)
	ReadVariable(name string) (Variable, error)
	// ReadVData reads a flat metadata table of count values.
	ReadVData(name string, count int) ([]float64, error)
	Close() error
}

// Opener opens input files by path.
type Opener interface {
	Open(name string) (File, error)
}
