package qc

import (
	"math"

	"github.com/couchcryptid/calipso-subset/internal/domain"
)

// BadUncertainty is the uncertainty value CALIPSO reports when a retrieval
// could not be bounded.
const BadUncertainty = 99.99

// propagate walks each column from the top level down to the surface and
// replaces every level with the worst value seen at or above it.
func propagate(g domain.Grid, worse func(candidate, current float64) bool) {
	if g.Levels < 2 {
		return
	}
	for p := 0; p < g.Points; p++ {
		row := g.Row(p)
		worst := row[len(row)-1]
		for l := len(row) - 2; l >= 0; l-- {
			if worse(row[l], worst) {
				worst = row[l]
			}
			row[l] = worst
		}
	}
}

// PropagateUncertainty spreads BadUncertainty from the first level it
// appears at down to the surface.
func PropagateUncertainty(g domain.Grid) {
	propagate(g, func(candidate, current float64) bool {
		return isBadUncertainty(candidate) && !isBadUncertainty(current)
	})
}

func isBadUncertainty(v float64) bool {
	return math.Abs(v-BadUncertainty) < 1e-3
}

// WorseCAD reports whether CAD score a is worse than b, comparing
// magnitudes: the larger |score| is worse. Scores beyond +-100 are special
// values and worse than any in-range score.
func WorseCAD(a, b float64) bool {
	aa, ab := math.Abs(a), math.Abs(b)
	aOut, bOut := aa > 100, ab > 100
	if aOut != bOut {
		return aOut
	}
	return aa > ab
}

// PropagateCAD carries the worst CAD score down each column.
func PropagateCAD(g domain.Grid) {
	propagate(g, WorseCAD)
}

// PropagateBitmask carries the worst QC flag down each column, comparing
// the masked bits as unsigned integers, or raw magnitudes without a mask.
// Ties keep the value already carried.
func PropagateBitmask(g domain.Grid, mask uint32) {
	propagate(g, func(candidate, current float64) bool {
		if mask == 0 {
			return math.Abs(candidate) > math.Abs(current)
		}
		return flagBits(candidate)&mask > flagBits(current)&mask
	})
}

// flagBits reinterprets an integer QC value read as float64. Negative
// values (signed storage) keep their two's complement bit pattern.
func flagBits(v float64) uint32 {
	return uint32(int64(v))
}
