package domain

import (
	"fmt"

	"github.com/ctessum/sparse"
)

// Missing marks a cell that has no valid value.
const Missing = -9999.0

// Grid is a point-major 2-D array: cell (p, l) lives at p*Levels + l.
// Level 0 is nearest the surface once a grid has been oriented.
type Grid struct {
	Points int
	Levels int
	Data   []float64
}

// NewGrid allocates a zeroed points x levels grid.
func NewGrid(points, levels int) Grid {
	return Grid{Points: points, Levels: levels, Data: make([]float64, points*levels)}
}

// Resize sets the grid shape, reusing the backing array when it is large enough.
// Cell contents are unspecified after a resize.
func (g *Grid) Resize(points, levels int) {
	n := points * levels
	if cap(g.Data) >= n {
		g.Data = g.Data[:n]
	} else {
		g.Data = make([]float64, n)
	}
	g.Points, g.Levels = points, levels
}

// Len is the number of cells.
func (g Grid) Len() int { return g.Points * g.Levels }

// Empty reports whether the grid has no cells.
func (g Grid) Empty() bool { return g.Len() == 0 }

func (g Grid) index(point, level int) int {
	if point < 0 || point >= g.Points || level < 0 || level >= g.Levels {
		panic(fmt.Sprintf("grid index (%d, %d) out of range %dx%d", point, level, g.Points, g.Levels))
	}
	return point*g.Levels + level
}

func (g Grid) At(point, level int) float64 { return g.Data[g.index(point, level)] }

func (g Grid) Set(point, level int, v float64) { g.Data[g.index(point, level)] = v }

// Row returns the levels of one point. The slice aliases the grid.
func (g Grid) Row(point int) []float64 {
	start := g.index(point, 0)
	return g.Data[start : start+g.Levels : start+g.Levels]
}

// Fill sets every cell to v.
func (g Grid) Fill(v float64) {
	for i := range g.Data[:g.Len()] {
		g.Data[i] = v
	}
}

// ReverseLevels flips each point's level order in place.
func (g Grid) ReverseLevels() {
	for p := 0; p < g.Points; p++ {
		row := g.Row(p)
		for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
			row[i], row[j] = row[j], row[i]
		}
	}
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	c := Grid{Points: g.Points, Levels: g.Levels, Data: make([]float64, g.Len())}
	copy(c.Data, g.Data)
	return c
}

// GridFromDense views a 1-, 2- or 3-D array as a grid. Trailing dimensions
// beyond the first are folded into levels.
func GridFromDense(d *sparse.DenseArray) (Grid, error) {
	if d == nil || len(d.Shape) == 0 {
		return Grid{}, ErrNoData
	}
	points, levels := d.Shape[0], 1
	for _, n := range d.Shape[1:] {
		levels *= n
	}
	if len(d.Shape) > 3 {
		return Grid{}, fmt.Errorf("%w: rank %d", ErrDimensionMismatch, len(d.Shape))
	}
	if points*levels != len(d.Elements) {
		return Grid{}, fmt.Errorf("%w: shape %v holds %d elements", ErrDimensionMismatch, d.Shape, len(d.Elements))
	}
	return Grid{Points: points, Levels: levels, Data: d.Elements}, nil
}

// Dense copies the grid into a 2-D sparse.DenseArray.
func (g Grid) Dense() *sparse.DenseArray {
	d := sparse.ZerosDense(g.Points, g.Levels)
	copy(d.Elements, g.Data[:g.Len()])
	return d
}

// GeolocationComponent reduces a per-point variable with one or more
// components (CALIPSO stores first/middle/last footprint values) to one value
// per point: the middle of three, otherwise the first.
func GeolocationComponent(g Grid) []float64 {
	component := 0
	if g.Levels == 3 {
		component = 1
	}
	out := make([]float64, g.Points)
	for p := range out {
		out[p] = g.At(p, component)
	}
	return out
}
