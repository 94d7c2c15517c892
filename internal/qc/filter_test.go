package qc_test

import (
	"testing"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/domain/domaintest"
	"github.com/couchcryptid/calipso-subset/internal/qc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const m = domain.Missing

func grid(points, levels int, data ...float64) domain.Grid {
	return domain.Grid{Points: points, Levels: levels, Data: data}
}

func TestFilterData_Range(t *testing.T) {
	data := grid(2, 3, 0.5, -1, m, 2, 0, 1)
	r := qc.Rule{DataMin: 0, DataMax: 1}

	n, err := qc.FilterData(data, nil, r)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{0.5, m, m, m, 0, 1}, data.Data)
}

func TestFilterData_Mask(t *testing.T) {
	r := qc.Rule{DataMin: -10, DataMax: 10, Mask: 0xfffffc3f}

	t.Run("bit inside mask nulls the cell", func(t *testing.T) {
		data := grid(1, 2, 1, 2)
		flags := grid(1, 1, 0x400)
		n, err := qc.FilterData(data, &flags, r)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []float64{m, m}, data.Data)
	})

	t.Run("bit outside mask passes", func(t *testing.T) {
		// Bit 6 (0x40) is clear in 0xfffffc3f.
		data := grid(1, 2, 1, 2)
		flags := grid(1, 1, 0x40)
		n, err := qc.FilterData(data, &flags, r)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, []float64{1, 2}, data.Data)
	})

	t.Run("mask overrides qc range", func(t *testing.T) {
		rr := r
		rr.QCMin, rr.QCMax = 1000, 2000
		data := grid(1, 1, 1)
		flags := grid(1, 1, 0)
		n, err := qc.FilterData(data, &flags, rr)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestFilterData_QCRangePerLevel(t *testing.T) {
	data := grid(2, 2, 1, 2, 3, 4)
	scores := grid(2, 2, -80, -10, -30, 50)
	r := qc.Rule{DataMin: 0, DataMax: 10, QCMin: -100, QCMax: -20}

	n, err := qc.FilterData(data, &scores, r)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{1, m, 3, m}, data.Data)
}

func TestFilterData_ShapeMismatch(t *testing.T) {
	data := grid(2, 3, 0, 0, 0, 0, 0, 0)
	flags := grid(2, 2, 0, 0, 0, 0)
	_, err := qc.FilterData(data, &flags, qc.Rule{DataMax: 1})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

// TestFilterData_Property checks that every surviving cell was in range and
// passed its QC value.
func TestFilterData_Property(t *testing.T) {
	const points, levels = 20, 7
	orig := make([]float64, points*levels)
	scores := make([]float64, points*levels)
	for i := range orig {
		orig[i] = float64(i%11) - 3
		scores[i] = float64((i*37)%201) - 100
	}
	data := grid(points, levels, append([]float64(nil), orig...)...)
	q := grid(points, levels, scores...)
	r := qc.Rule{DataMin: -1, DataMax: 5, QCMin: 20, QCMax: 100}

	_, err := qc.FilterData(data, &q, r)
	require.NoError(t, err)
	for i, v := range data.Data {
		if v == m {
			continue
		}
		assert.Equal(t, orig[i], v)
		assert.True(t, v >= r.DataMin && v <= r.DataMax)
		assert.True(t, scores[i] >= r.QCMin && scores[i] <= r.QCMax)
	}
}

func TestFilterNearSurface(t *testing.T) {
	data := grid(2, 4, 1, 2, 3, 4, 5, 6, 7, 8)
	elev := grid(2, 4, 100, 250, 1000, 2000, 500, 900, 1000, 1100)
	surface := []float64{100, 500}

	n := qc.FilterNearSurface(data, elev, surface)

	assert.Equal(t, 3, n)
	assert.Equal(t, []float64{m, m, 3, 4, m, 6, 7, 8}, data.Data)
}

func aproProduct(t *testing.T) domain.Product {
	t.Helper()
	p, ok := domain.LookupProduct(domain.L2APro)
	require.True(t, ok)
	return p
}

// aproScan returns a one-point, four-level scan whose values are oriented
// surface to sky.
func aproScan() *domain.Scan {
	s := &domain.Scan{}
	s.Reset(1, 4, false)
	copy(s.Value.Data, []float64{0.1, 0.2, 0.3, 0.4})
	copy(s.Elevation.Data, []float64{100, 250, 1000, 2000})
	return s
}

// Companions below are in file order: sky to surface.
func aproFile(cad, uncertainty []float64) *domaintest.File {
	return domaintest.NewFile("apro").
		AddConst("Extinction_QC_Flag_532", "", 1, 4, 0).
		Add("CAD_Score", "", 1, 4, cad).
		Add("Extinction_Coefficient_Uncertainty_532", "per kilometer", 1, 4, uncertainty)
}

func TestApply_NearSurfaceBand(t *testing.T) {
	f := aproFile([]float64{-80, -80, -80, -80}, []float64{0.01, 0.01, 0.01, 0.01})
	s := aproScan()
	filter := qc.NewFilter(qc.DefaultTable(), qc.Options{MinimumCAD: 20, MaximumUncertainty: 99})

	st, err := filter.Apply(f, aproProduct(t), "Extinction_Coefficient_532", s, []float64{100})

	require.NoError(t, err)
	assert.Equal(t, 2, st.Rules)
	assert.Equal(t, 0, st.Nulled)
	assert.Equal(t, 2, st.NearSurface)
	assert.Equal(t, []float64{m, m, 0.3, 0.4}, s.Value.Data)
}

func TestApply_CADPropagatesFromTop(t *testing.T) {
	tests := []struct {
		name   string
		cad    []float64 // file order, top first
		nulled int
		want   []float64
	}{
		{
			name:   "special value at the top nulls the column",
			cad:    []float64{-127, -80, -80, -80},
			nulled: 4,
			want:   []float64{m, m, m, m},
		},
		{
			name:   "confident top score covers weak levels below",
			cad:    []float64{-90, -30, -10, -80},
			nulled: 0,
			want:   []float64{0.1, 0.2, 0.3, 0.4},
		},
		{
			name:   "weak top score leaves stronger levels below",
			cad:    []float64{-10, -80, -80, -80},
			nulled: 1,
			want:   []float64{0.1, 0.2, 0.3, m},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := aproFile(tt.cad, []float64{0.01, 0.01, 0.01, 0.01})
			s := aproScan()
			filter := qc.NewFilter(qc.DefaultTable(), qc.Options{MinimumCAD: 20, MaximumUncertainty: 99})

			st, err := filter.Apply(f, aproProduct(t), "Extinction_Coefficient_532", s, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.nulled, st.Nulled)
			assert.Equal(t, tt.want, s.Value.Data)
		})
	}
}

func TestApply_UncertaintySentinelPropagates(t *testing.T) {
	f := aproFile([]float64{-80, -80, -80, -80}, []float64{0.01, qc.BadUncertainty, 0.01, 0.01})
	s := aproScan()
	filter := qc.NewFilter(qc.DefaultTable(), qc.Options{MinimumCAD: 20, MaximumUncertainty: 99})

	st, err := filter.Apply(f, aproProduct(t), "Extinction_Coefficient_532", s, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, st.Uncertainty)
	assert.Equal(t, []float64{m, m, m, 0.4}, s.Value.Data)
	assert.Equal(t, 3, st.Total())
}

func TestApply_MinimumCADBranches(t *testing.T) {
	tests := []struct {
		name    string
		product string
		score   float64
		pass    bool
	}{
		{"aerosol confident", domain.L2ALay, -60, true},
		{"aerosol weak", domain.L2ALay, -40, false},
		{"cloud confident", domain.L2CLay, 60, true},
		{"cloud weak", domain.L2CLay, 40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := domain.LookupProduct(tt.product)
			require.True(t, ok)
			f := domaintest.NewFile("lay").Add("CAD_Score", "", 1, 1, []float64{tt.score})
			s := &domain.Scan{}
			s.Reset(1, 1, true)
			s.Value.Data[0] = 0.05

			filter := qc.NewFilter(qc.DefaultTable(), qc.Options{MinimumCAD: 50, MaximumUncertainty: 99})
			_, err := filter.Apply(f, p, "Integrated_Attenuated_Backscatter_532", s, nil)

			require.NoError(t, err)
			if tt.pass {
				assert.Equal(t, 0.05, s.Value.Data[0])
			} else {
				assert.Equal(t, m, s.Value.Data[0])
			}
		})
	}
}

func TestApply_MissingCompanionFails(t *testing.T) {
	s := aproScan()
	filter := qc.NewFilter(qc.DefaultTable(), qc.Options{MinimumCAD: 20, MaximumUncertainty: 99})
	_, err := filter.Apply(domaintest.NewFile("empty"), aproProduct(t), "Extinction_Coefficient_532", s, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApply_NoRulesStillFiltersNearSurface(t *testing.T) {
	p, ok := domain.LookupProduct(domain.L1)
	require.True(t, ok)
	s := aproScan()
	filter := qc.NewFilter(qc.DefaultTable(), qc.Options{MinimumCAD: 20, MaximumUncertainty: 99})

	st, err := filter.Apply(domaintest.NewFile("l1"), p, "Molecular_Number_Density", s, []float64{100})
	require.NoError(t, err)
	assert.Equal(t, 0, st.Rules)
	assert.Equal(t, 2, st.NearSurface)
}
