// Package swath reshapes a scan in place: compaction to a query box and
// elevation range, and windowed aggregation to a coarser grid.
package swath

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/calipso-subset/internal/domain"
)

// ErrCursor is returned if an in-place copy would write ahead of its source.
var ErrCursor = errors.New("output cursor passed input cursor")

// Query selects the points and levels retained by Compact.
type Query struct {
	Domain       domain.Bounds
	MinElevation float64
	MaxElevation float64

	// FirstTime and LastTime bound profile timestamps (yyyydddhhmm,
	// inclusive). Zero disables the time test.
	FirstTime int64
	LastTime  int64
}

func (q Query) keepPoint(ts, lon, lat float64) bool {
	if !q.Domain.Contains(lon, lat) {
		return false
	}
	if q.FirstTime != 0 && ts < float64(q.FirstTime) {
		return false
	}
	if q.LastTime != 0 && ts > float64(q.LastTime) {
		return false
	}
	return true
}

func (q Query) keepElevation(e float64) bool {
	return e >= q.MinElevation && e <= q.MaxElevation
}

// LevelWindow returns the first level at or above lo and the last level at
// or below hi of an ascending grid. ok is false when no level qualifies.
func LevelWindow(levels []float64, lo, hi float64) (first, last int, ok bool) {
	first, last = -1, -1
	for i, e := range levels {
		if first < 0 && e >= lo {
			first = i
		}
		if e <= hi {
			last = i
		}
	}
	if first < 0 || last < first {
		return 0, 0, false
	}
	return first, last, true
}

// Compact packs the points of s that fall inside the query into a prefix of
// its arrays and reports whether any survived.
//
// With a shared vertical grid (heights in meters, surface to sky, one per
// level) only the contiguous level window inside the elevation range is
// kept and the trimmed grid is returned. Without one, every level is kept
// and cells outside the range are set to Missing; points left with no
// in-range cell are dropped.
func Compact(s *domain.Scan, q Query, shared []float64) ([]float64, bool, error) {
	if shared == nil {
		ok, err := compactCells(s, q)
		return nil, ok, err
	}
	if len(shared) != s.Levels {
		return nil, false, fmt.Errorf("%w: %d shared levels for %d scan levels",
			domain.ErrDimensionMismatch, len(shared), s.Levels)
	}

	first, last, ok := LevelWindow(shared, q.MinElevation, q.MaxElevation)
	if !ok {
		s.Shape(0, 0)
		return shared[:0], false, nil
	}
	levels := last - first + 1

	out := 0
	for in := 0; in < s.Points; in++ {
		if !q.keepPoint(s.Timestamps[in], s.Longitudes[in], s.Latitudes[in]) {
			continue
		}
		src := in*s.Levels + first
		dst := out * levels
		if out > in || dst > src {
			return nil, false, fmt.Errorf("%w: point %d -> %d", ErrCursor, in, out)
		}
		s.Timestamps[out] = s.Timestamps[in]
		s.Longitudes[out] = s.Longitudes[in]
		s.Latitudes[out] = s.Latitudes[in]
		copy(s.Elevation.Data[dst:dst+levels], s.Elevation.Data[src:src+levels])
		copy(s.Value.Data[dst:dst+levels], s.Value.Data[src:src+levels])
		if s.HasThickness {
			copy(s.Thickness.Data[dst:dst+levels], s.Thickness.Data[src:src+levels])
		}
		out++
	}

	if out == 0 {
		s.Shape(0, 0)
		return shared[:0], false, nil
	}
	s.Shape(out, levels)
	return shared[first : last+1], true, nil
}

func compactCells(s *domain.Scan, q Query) (bool, error) {
	levels := s.Levels
	out := 0
	for in := 0; in < s.Points; in++ {
		if !q.keepPoint(s.Timestamps[in], s.Longitudes[in], s.Latitudes[in]) {
			continue
		}
		elevation := s.Elevation.Row(in)
		value := s.Value.Row(in)
		kept := 0
		for l, e := range elevation {
			if !q.keepElevation(e) {
				value[l] = domain.Missing
				continue
			}
			kept++
		}
		if kept == 0 {
			continue
		}
		if out > in {
			return false, fmt.Errorf("%w: point %d -> %d", ErrCursor, in, out)
		}
		if out != in {
			s.Timestamps[out] = s.Timestamps[in]
			s.Longitudes[out] = s.Longitudes[in]
			s.Latitudes[out] = s.Latitudes[in]
			copy(s.Elevation.Row(out), elevation)
			copy(s.Value.Row(out), value)
			if s.HasThickness {
				copy(s.Thickness.Row(out), s.Thickness.Row(in))
			}
		}
		out++
	}

	if out == 0 {
		s.Shape(0, 0)
		return false, nil
	}
	s.Shape(out, levels)
	return true, nil
}
