package domain

import (
	"testing"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_IndexingIsPointMajor(t *testing.T) {
	g := NewGrid(2, 3)
	g.Set(1, 2, 7)
	assert.Equal(t, 7.0, g.Data[1*3+2])
	assert.Equal(t, 7.0, g.At(1, 2))
	assert.Equal(t, []float64{0, 0, 7}, g.Row(1))

	assert.Panics(t, func() { g.At(2, 0) })
	assert.Panics(t, func() { g.At(0, 3) })
}

func TestGrid_ReverseLevels(t *testing.T) {
	g := Grid{Points: 2, Levels: 3, Data: []float64{1, 2, 3, 4, 5, 6}}
	g.ReverseLevels()
	assert.Equal(t, []float64{3, 2, 1, 6, 5, 4}, g.Data)
}

func TestGrid_ResizeReusesBuffer(t *testing.T) {
	g := NewGrid(4, 5)
	before := &g.Data[0]
	g.Resize(2, 5)
	assert.Equal(t, 10, len(g.Data))
	assert.Same(t, before, &g.Data[0])

	g.Resize(10, 10)
	assert.Equal(t, 100, len(g.Data))
}

func TestGridFromDense(t *testing.T) {
	d := sparse.ZerosDense(3, 2)
	d.Set(5, 2, 1)
	g, err := GridFromDense(d)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Points)
	assert.Equal(t, 2, g.Levels)
	assert.Equal(t, 5.0, g.At(2, 1))

	one := sparse.ZerosDense(4)
	g, err = GridFromDense(one)
	require.NoError(t, err)
	assert.Equal(t, 1, g.Levels)

	back := g.Dense()
	assert.Equal(t, []int{4, 1}, back.Shape)

	_, err = GridFromDense(nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGeolocationComponent(t *testing.T) {
	three := Grid{Points: 2, Levels: 3, Data: []float64{1, 2, 3, 4, 5, 6}}
	assert.Equal(t, []float64{2, 5}, GeolocationComponent(three))

	one := Grid{Points: 2, Levels: 1, Data: []float64{1, 4}}
	assert.Equal(t, []float64{1, 4}, GeolocationComponent(one))
}

func TestScan_ResetReusesAndShapeTrims(t *testing.T) {
	var s Scan
	s.Reset(10, 5, true)
	assert.Len(t, s.Timestamps, 10)
	assert.Equal(t, 50, s.Value.Len())
	assert.Equal(t, 50, s.Thickness.Len())

	buf := &s.Value.Data[0]
	s.Reset(10, 5, false)
	assert.Same(t, buf, &s.Value.Data[0])
	assert.Equal(t, 0, s.Thickness.Len())

	s.Shape(3, 4)
	assert.Len(t, s.Longitudes, 3)
	assert.Len(t, s.Elevation.Data, 12)
	assert.Equal(t, 12, s.Cells())
}
