package qc

import (
	"fmt"
	"math"

	"github.com/couchcryptid/calipso-subset/internal/domain"
)

// NearSurfaceBand is the height above the surface, in meters, below which
// profile retrievals are discarded.
const NearSurfaceBand = 180.0

// Options holds the caller's QC thresholds.
type Options struct {
	// MinimumCAD is the minimum CAD score magnitude accepted.
	MinimumCAD float64
	// MaximumUncertainty is the largest absolute uncertainty accepted.
	MaximumUncertainty float64
}

// Stats counts the cells a Filter nulled.
type Stats struct {
	Rules       int
	Nulled      int
	Uncertainty int
	NearSurface int
}

// Total is the number of cells nulled by every step.
func (s Stats) Total() int { return s.Nulled + s.Uncertainty + s.NearSurface }

// Filter applies a rule table to scans.
type Filter struct {
	table *Table
	opts  Options
}

// NewFilter creates a Filter over table with the given thresholds.
func NewFilter(table *Table, opts Options) *Filter {
	return &Filter{table: table, opts: opts}
}

// Apply nulls cells of s.Value that fail QC for the variable. The scan must
// hold the full, uncompacted variable in surface-to-sky order; surface is
// the per-point surface elevation for profile products (nil otherwise).
//
// Steps: every matching rule in turn, then the uncertainty companion if the
// file has one, then the near-surface band for multi-level profile products.
func (f *Filter) Apply(file domain.File, product domain.Product, variable string, s *domain.Scan, surface []float64) (Stats, error) {
	var st Stats

	for _, r := range f.table.Lookup(product.Name, variable) {
		n, err := f.applyRule(file, r, s)
		if err != nil {
			return st, fmt.Errorf("qc rule %s/%s: %w", variable, r.QCVariable, err)
		}
		st.Rules++
		st.Nulled += n
	}

	multiLevelProfile := product.Profile() && s.Levels > 1

	if name := UncertaintyName(variable); file.VariableExists(name) {
		u, err := readCompanion(file, name, 0, s)
		if err != nil {
			return st, fmt.Errorf("qc uncertainty %s: %w", name, err)
		}
		if multiLevelProfile && u.Levels > 1 {
			PropagateUncertainty(u)
		}
		st.Uncertainty = filterUncertainty(s.Value, u, f.opts.MaximumUncertainty)
	}

	if multiLevelProfile && surface != nil {
		if len(surface) != s.Points {
			return st, fmt.Errorf("%w: %d surface values for %d points",
				domain.ErrDimensionMismatch, len(surface), s.Points)
		}
		st.NearSurface = FilterNearSurface(s.Value, s.Elevation, surface)
	}
	return st, nil
}

func (f *Filter) applyRule(file domain.File, r Rule, s *domain.Scan) (int, error) {
	if r.QCVariable == "" {
		return FilterData(s.Value, nil, r)
	}
	if r.QCVariable == CADScore {
		r = cadBounds(r, f.opts.MinimumCAD)
	}

	q, err := readCompanion(file, r.QCVariable, r.QCLevels, s)
	if err != nil {
		return 0, err
	}
	if r.PropagateDown && q.Levels > 1 {
		if r.QCVariable == CADScore {
			PropagateCAD(q)
		} else {
			PropagateBitmask(q, r.Mask)
		}
	}
	return FilterData(s.Value, &q, r)
}

// cadBounds narrows a CAD rule to the caller's minimum confidence. A rule
// with negative bounds (aerosol) caps its maximum at -minimumCAD; a positive
// rule (cloud) raises its minimum to minimumCAD.
func cadBounds(r Rule, minimumCAD float64) Rule {
	if r.QCMin < 0 {
		r.QCMax = -minimumCAD
	} else {
		r.QCMin = minimumCAD
	}
	return r
}

// FilterData nulls cells of data that fall outside [DataMin, DataMax] or
// whose QC value fails the rule. qc may hold one value per point or one per
// level; nil skips the QC test. Cells already Missing are left alone. It
// returns the number of cells nulled.
func FilterData(data domain.Grid, qc *domain.Grid, r Rule) (int, error) {
	if qc != nil {
		if qc.Points != data.Points || (qc.Levels != 1 && qc.Levels != data.Levels) {
			return 0, fmt.Errorf("%w: qc %dx%d for data %dx%d", domain.ErrDimensionMismatch,
				qc.Points, qc.Levels, data.Points, data.Levels)
		}
	}

	nulled := 0
	for p := 0; p < data.Points; p++ {
		row := data.Row(p)
		for l, v := range row {
			if v == domain.Missing {
				continue
			}
			if v < r.DataMin || v > r.DataMax || (qc != nil && !qcPasses(qcValue(*qc, p, l), r)) {
				row[l] = domain.Missing
				nulled++
			}
		}
	}
	return nulled, nil
}

func qcValue(qc domain.Grid, p, l int) float64 {
	if qc.Levels == 1 {
		return qc.At(p, 0)
	}
	return qc.At(p, l)
}

func qcPasses(q float64, r Rule) bool {
	if r.Mask != 0 {
		return flagBits(q)&r.Mask == 0
	}
	return q >= r.QCMin && q <= r.QCMax
}

func filterUncertainty(data, u domain.Grid, maximum float64) int {
	nulled := 0
	for p := 0; p < data.Points; p++ {
		row := data.Row(p)
		for l, v := range row {
			if v == domain.Missing {
				continue
			}
			if math.Abs(qcValue(u, p, l)) > maximum {
				row[l] = domain.Missing
				nulled++
			}
		}
	}
	return nulled
}

// FilterNearSurface nulls, for each point, the contiguous run of levels
// from the surface up whose elevation is within NearSurfaceBand of the
// surface. It returns the number of cells nulled.
func FilterNearSurface(data, elevation domain.Grid, surface []float64) int {
	nulled := 0
	for p := 0; p < data.Points; p++ {
		row := data.Row(p)
		elev := elevation.Row(p)
		for l := range row {
			if elev[l]-surface[p] >= NearSurfaceBand {
				break
			}
			if row[l] != domain.Missing {
				row[l] = domain.Missing
				nulled++
			}
		}
	}
	return nulled
}

// readCompanion reads a QC companion and orients it like the data: one
// value per point, or per level flipped to surface to sky.
func readCompanion(file domain.File, name string, qcLevels int, s *domain.Scan) (domain.Grid, error) {
	v, err := file.ReadVariable(name)
	if err != nil {
		return domain.Grid{}, err
	}
	g, err := v.Grid()
	if err != nil {
		return domain.Grid{}, err
	}
	switch {
	case g.Points != s.Points:
		return domain.Grid{}, fmt.Errorf("%w: %s has %d points, want %d", domain.ErrDimensionMismatch, name, g.Points, s.Points)
	case qcLevels == 1 && g.Levels != 1:
		return domain.Grid{}, fmt.Errorf("%w: %s has %d levels, want 1", domain.ErrDimensionMismatch, name, g.Levels)
	case g.Levels != 1 && g.Levels != s.Levels:
		return domain.Grid{}, fmt.Errorf("%w: %s has %d levels, want %d", domain.ErrDimensionMismatch, name, g.Levels, s.Levels)
	}
	if g.Levels > 1 {
		g.ReverseLevels()
	}
	return g, nil
}
