package swath

import (
	"math"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Stride returns the vertical stride that brings levels close to target.
func Stride(levels, target int) int {
	if target <= 0 || target >= levels {
		return 1
	}
	return max(1, int(math.Round(float64(levels)/float64(target))))
}

// Aggregate replaces each window x stride rectangle of s with one cell and
// returns the new point and level counts. The window's middle point supplies
// the timestamp and location; elevation and thickness are rectangle means and
// the value is the mean of the non-missing cells, or Missing if there are
// none. Tail rectangles use whatever points and levels remain. Window sizes
// of one or less leave s unchanged.
func Aggregate(s *domain.Scan, window, targetLevels int) (int, int) {
	if window <= 1 || s.Points == 0 {
		return s.Points, s.Levels
	}

	points, levels := s.Points, s.Levels
	stride := Stride(levels, targetLevels)
	outPoints := ceilDiv(points, window)
	outLevels := ceilDiv(levels, stride)

	// Scratch sized for one rectangle, reused across rectangles.
	elev := make([]float64, 0, window*stride)
	vals := make([]float64, 0, window*stride)
	thick := make([]float64, 0, window*stride)

	for w := 0; w < outPoints; w++ {
		p0 := w * window
		pn := min(window, points-p0)
		mid := p0 + pn/2

		s.Timestamps[w] = s.Timestamps[mid]
		s.Longitudes[w] = s.Longitudes[mid]
		s.Latitudes[w] = s.Latitudes[mid]

		for b := 0; b < outLevels; b++ {
			l0 := b * stride
			ln := min(stride, levels-l0)

			elev, vals, thick = elev[:0], vals[:0], thick[:0]
			for p := p0; p < p0+pn; p++ {
				row := p * levels
				for l := l0; l < l0+ln; l++ {
					elev = append(elev, s.Elevation.Data[row+l])
					if v := s.Value.Data[row+l]; v != domain.Missing {
						vals = append(vals, v)
					}
					if s.HasThickness {
						thick = append(thick, s.Thickness.Data[row+l])
					}
				}
			}

			// Every input of this rectangle and of later ones sits at or
			// after o, so writing here never clobbers unread cells.
			o := w*outLevels + b
			s.Elevation.Data[o] = stat.Mean(elev, nil)
			if len(vals) > 0 {
				s.Value.Data[o] = stat.Mean(vals, nil)
			} else {
				s.Value.Data[o] = domain.Missing
			}
			if s.HasThickness {
				s.Thickness.Data[o] = stat.Mean(thick, nil)
			}
		}
	}

	s.Shape(outPoints, outLevels)
	return outPoints, outLevels
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
