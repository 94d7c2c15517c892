// Package qc nulls data cells that fail CALIPSO quality-control criteria.
package qc

import (
	"strings"
	"sync"

	"github.com/couchcryptid/calipso-subset/internal/domain"
)

// Companion QC variable names with special handling.
const (
	CADScore = "CAD_Score"
	QCFlag   = "QC_Flag"
)

// Rule is one acceptance test for a (product, variable) pair.
type Rule struct {
	Product  string
	Variable string

	// QCVariable names the companion array tested alongside the data. Empty
	// for a plain data range test.
	QCVariable string
	// QCLevels is 1 when the companion holds one value per point and 0 when
	// it holds one value per level.
	QCLevels int

	DataMin, DataMax float64
	QCMin, QCMax     float64

	// Mask, when non-zero, accepts a cell iff qc & Mask == 0. It overrides
	// [QCMin, QCMax].
	Mask uint32

	// PropagateDown carries the worst companion value from the top of each
	// column down to the surface before filtering.
	PropagateDown bool
}

// Table is an immutable rule set keyed by product and variable.
type Table struct {
	rules []Rule
	index map[string][]Rule
}

// NewTable indexes rules, preserving their order within each key.
func NewTable(rules []Rule) *Table {
	t := &Table{rules: append([]Rule(nil), rules...), index: make(map[string][]Rule)}
	for _, r := range t.rules {
		k := key(r.Product, r.Variable)
		t.index[k] = append(t.index[k], r)
	}
	return t
}

// Lookup returns every rule for the pair, in table order. The result must
// not be modified.
func (t *Table) Lookup(product, variable string) []Rule {
	return t.index[key(product, variable)]
}

// Len is the number of rules in the table.
func (t *Table) Len() int { return len(t.rules) }

func key(product, variable string) string { return product + "/" + variable }

// DefaultTable returns the built-in CALIPSO rule set. It is built once.
var DefaultTable = sync.OnceValue(func() *Table { return NewTable(defaultRules()) })

// UncertaintyName returns the uncertainty companion of a variable:
// Extinction_Coefficient_532 -> Extinction_Coefficient_Uncertainty_532.
func UncertaintyName(variable string) string {
	for _, suffix := range []string{"_532", "_1064"} {
		if base, ok := strings.CutSuffix(variable, suffix); ok {
			return base + "_Uncertainty" + suffix
		}
	}
	return variable + "_Uncertainty"
}

// Extinction QC flags 0 (unconstrained), 1 (constrained), 2 (lidar ratio
// adjusted) and 16 (opaque) are accepted.
const extinctionMask = 0xffffffec

// Level 1 QC_Flag bits outside 6..9 mark a bad profile.
const level1Mask = 0xfffffc3f

type dataRange struct {
	variable string
	min, max float64
}

// withCAD builds one CAD score rule per variable. Aerosol products use the
// negative CAD branch, cloud products the positive one.
func withCAD(product string, aerosol, propagate bool, vars ...dataRange) []Rule {
	qcMin, qcMax := 20.0, 100.0
	if aerosol {
		qcMin, qcMax = -100, -20
	}
	var out []Rule
	for _, v := range vars {
		out = append(out, Rule{
			Product:       product,
			Variable:      v.variable,
			QCVariable:    CADScore,
			DataMin:       v.min,
			DataMax:       v.max,
			QCMin:         qcMin,
			QCMax:         qcMax,
			PropagateDown: propagate,
		})
	}
	return out
}

func withMask(product, qcVariable string, qcLevels int, mask uint32, propagate bool, vars ...dataRange) []Rule {
	var out []Rule
	for _, v := range vars {
		out = append(out, Rule{
			Product:       product,
			Variable:      v.variable,
			QCVariable:    qcVariable,
			QCLevels:      qcLevels,
			DataMin:       v.min,
			DataMax:       v.max,
			Mask:          mask,
			PropagateDown: propagate,
		})
	}
	return out
}

func rangeOnly(product string, vars ...dataRange) []Rule {
	var out []Rule
	for _, v := range vars {
		out = append(out, Rule{Product: product, Variable: v.variable, DataMin: v.min, DataMax: v.max})
	}
	return out
}

func defaultRules() []Rule {
	var rules []Rule
	add := func(r ...Rule) { rules = append(rules, r...) }

	add(withMask(domain.L1, QCFlag, 1, level1Mask, false,
		dataRange{"Total_Attenuated_Backscatter_532", -0.075, 2.5},
		dataRange{"Perpendicular_Attenuated_Backscatter_532", -0.075, 1.5},
		dataRange{"Attenuated_Backscatter_1064", -0.04, 2.5},
	)...)

	aerosolProfile := []dataRange{
		{"Extinction_Coefficient_532", 0, 1.25},
		{"Total_Backscatter_Coefficient_532", 0, 0.2},
		{"Perpendicular_Backscatter_Coefficient_532", 0, 0.1},
		{"Particulate_Depolarization_Ratio_Profile_532", 0, 1},
	}
	aerosol1064 := []dataRange{
		{"Extinction_Coefficient_1064", 0, 1.25},
		{"Backscatter_Coefficient_1064", 0, 0.2},
	}
	add(withMask(domain.L2APro, "Extinction_QC_Flag_532", 0, extinctionMask, true, aerosolProfile...)...)
	add(withMask(domain.L2APro, "Extinction_QC_Flag_1064", 0, extinctionMask, true, aerosol1064...)...)
	add(withCAD(domain.L2APro, true, true, append(aerosolProfile, aerosol1064...)...)...)
	add(rangeOnly(domain.L2APro, dataRange{"Aerosol_Layer_Fraction", 0, 30})...)

	cloudProfile := []dataRange{
		{"Extinction_Coefficient_532", 0, 10},
		{"Total_Backscatter_Coefficient_532", 0, 2},
		{"Perpendicular_Backscatter_Coefficient_532", 0, 1},
		{"Ice_Water_Content_Profile", 0, 1},
	}
	add(withMask(domain.L2CPro, "Extinction_QC_Flag_532", 0, extinctionMask, true, cloudProfile[:3]...)...)
	add(withCAD(domain.L2CPro, false, true, cloudProfile...)...)
	add(rangeOnly(domain.L2CPro, dataRange{"Cloud_Layer_Fraction", 0, 30})...)

	aerosolLayer := []dataRange{
		{"Feature_Optical_Depth_532", 0, 3},
		{"Feature_Optical_Depth_1064", 0, 3},
		{"Integrated_Attenuated_Backscatter_532", 0, 0.1},
		{"Integrated_Particulate_Depolarization_Ratio", 0, 1},
	}
	add(withCAD(domain.L2ALay, true, false, aerosolLayer...)...)

	add(withCAD(domain.L2CLay, false, false,
		dataRange{"Feature_Optical_Depth_532", 0, 5},
		dataRange{"Ice_Water_Path", 0, 1000},
		dataRange{"Integrated_Attenuated_Backscatter_532", 0, 0.5},
	)...)
	for _, p := range []string{domain.L2CLay1km, domain.L2CLay333m} {
		add(withCAD(p, false, false,
			dataRange{"Integrated_Attenuated_Backscatter_532", 0, 0.5},
			dataRange{"Layer_Top_Altitude", -0.5, 30},
		)...)
	}

	add(rangeOnly(domain.L2VFM, dataRange{"Feature_Classification_Flags", 0, 65535})...)
	return rules
}
