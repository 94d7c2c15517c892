package cdf

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"

	ncdf "github.com/ctessum/cdf"
)

// Type is the on-disk storage type of a written variable.
type Type int

const (
	Float Type = iota
	Double
	Short
	Int
	Byte
)

// Var is one variable to write. Data is in physical units, point-major.
type Var struct {
	Name  string
	Units string
	Shape []int
	Type  Type
	// Scale, when non-zero, is stored as scale_factor and multiplied into
	// the stored values.
	Scale float64
	Data  []float64
}

// Write creates a netCDF-3 file at path holding vars and, as global
// attributes, the given metadata tables.
func Write(path string, vars []Var, tables map[string][]float64) (err error) {
	h, err := header(vars, tables)
	if err != nil {
		return err
	}

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { err = errors.Join(err, fh.Close()) }()

	nc, err := ncdf.Create(fh, h)
	if err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}
	for _, v := range vars {
		w := nc.Writer(v.Name, nil, nil)
		if _, err := w.Write(encode(v)); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("write %s: %w", v.Name, err)
		}
	}
	return nil
}

func header(vars []Var, tables map[string][]float64) (*ncdf.Header, error) {
	var (
		dims    []string
		lengths []int
	)
	for _, v := range vars {
		n := 1
		for i, l := range v.Shape {
			if l <= 0 {
				return nil, fmt.Errorf("variable %s: dimension %d has length %d", v.Name, i, l)
			}
			dims = append(dims, dimName(v.Name, i))
			lengths = append(lengths, l)
			n *= l
		}
		if n != len(v.Data) {
			return nil, fmt.Errorf("variable %s: shape %v holds %d values, got %d", v.Name, v.Shape, n, len(v.Data))
		}
	}

	h := ncdf.NewHeader(dims, lengths)
	for _, v := range vars {
		names := make([]string, len(v.Shape))
		for i := range names {
			names[i] = dimName(v.Name, i)
		}
		h.AddVariable(v.Name, names, zero(v.Type))
		if v.Units != "" {
			h.AddAttribute(v.Name, unitsAttr, v.Units)
		}
		if v.Scale != 0 {
			h.AddAttribute(v.Name, scaleAttr, []float32{float32(v.Scale)})
		}
	}
	for _, name := range slices.Sorted(maps.Keys(tables)) {
		h.AddAttribute("", name, append([]float64(nil), tables[name]...))
	}
	h.Define()
	return h, nil
}

func dimName(variable string, i int) string {
	return fmt.Sprintf("%s_%d", variable, i)
}

func zero(t Type) any {
	switch t {
	case Double:
		return []float64{0}
	case Short:
		return []int16{0}
	case Int:
		return []int32{0}
	case Byte:
		return []uint8{0}
	default:
		return []float32{0}
	}
}

func encode(v Var) any {
	scaled := make([]float64, len(v.Data))
	for i, x := range v.Data {
		if v.Scale != 0 {
			x *= v.Scale
		}
		scaled[i] = x
	}
	switch v.Type {
	case Double:
		return scaled
	case Short:
		return narrow[int16](scaled)
	case Int:
		return narrow[int32](scaled)
	case Byte:
		return narrow[uint8](scaled)
	default:
		out := make([]float32, len(scaled))
		for i, x := range scaled {
			out[i] = float32(x)
		}
		return out
	}
}

func narrow[T int16 | int32 | uint8](s []float64) []T {
	out := make([]T, len(s))
	for i, x := range s {
		out[i] = T(math.Round(x))
	}
	return out
}
