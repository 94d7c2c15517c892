// Package fixture generates synthetic CALIPSO-shaped netCDF granules for
// demos and end-to-end tests.
package fixture

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/adapter/cdf"
	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/qc"
)

// Layers is the layer count of generated layered products.
const Layers = 8

// Granule describes one synthetic file.
type Granule struct {
	Product string
	Start   time.Time
	Points  int
	// Levels is the vertical level count of profile and VFM products.
	Levels int

	// The ground track runs from (Lon, Lat) by (DLon, DLat) per point.
	Lon, Lat   float64
	DLon, DLat float64

	Seed uint64
}

// FileName is the CALIPSO style name of g.
func (g Granule) FileName() string {
	return fmt.Sprintf("CAL_LID_%s-Standard-V4-20.%sZN.nc", g.Product, g.Start.UTC().Format("2006-01-02T15-04-05"))
}

// Write generates g into dir and returns the file path.
func Write(dir string, g Granule) (string, error) {
	product, ok := domain.LookupProduct(g.Product)
	if !ok {
		return "", fmt.Errorf("unknown product %q", g.Product)
	}
	if g.Points < 1 {
		return "", fmt.Errorf("granule needs at least one point, got %d", g.Points)
	}
	levels := g.Levels
	if product.Layered {
		levels = Layers
	}
	if levels < 1 {
		return "", fmt.Errorf("granule needs at least one level, got %d", levels)
	}

	gen := &generator{g: g, levels: levels, rng: rand.New(rand.NewPCG(g.Seed, uint64(g.Points)))}
	vars := gen.geolocation()
	tables := map[string][]float64{}

	switch {
	case product.Layered:
		vars = append(vars, gen.layers(product)...)
	case product.OmitsElevation:
		vars = append(vars, gen.vfm())
	default:
		tables[product.AltitudeVData] = gen.altitudes()
		vars = append(vars, gen.profile(product)...)
	}

	path := filepath.Join(dir, g.FileName())
	if err := cdf.Write(path, vars, tables); err != nil {
		return "", err
	}
	return path, nil
}

type generator struct {
	g      Granule
	levels int
	rng    *rand.Rand
}

func (gen *generator) perPoint(f func(p int) float64) []float64 {
	out := make([]float64, gen.g.Points)
	for p := range out {
		out[p] = f(p)
	}
	return out
}

// perCell fills a points x levels grid with f, level 0 at the top of the
// atmosphere as in the real products.
func (gen *generator) perCell(f func(p, l int) float64) []float64 {
	out := make([]float64, gen.g.Points*gen.levels)
	for p := 0; p < gen.g.Points; p++ {
		for l := 0; l < gen.levels; l++ {
			out[p*gen.levels+l] = f(p, l)
		}
	}
	return out
}

// geolocation writes start, middle and end footprints per point.
func (gen *generator) geolocation() []cdf.Var {
	n := gen.g.Points
	lon := make([]float64, 0, 3*n)
	lat := make([]float64, 0, 3*n)
	utc := make([]float64, 0, 3*n)
	step := 1.5 * float64(time.Second)
	for p := 0; p < n; p++ {
		for c := -1; c <= 1; c++ {
			x := float64(p) + 0.5*float64(c)
			lon = append(lon, wrapLongitude(gen.g.Lon+x*gen.g.DLon))
			lat = append(lat, math.Max(-90, math.Min(90, gen.g.Lat+x*gen.g.DLat)))
			utc = append(utc, profileTime(gen.g.Start.Add(time.Duration(x*step))))
		}
	}
	return []cdf.Var{
		{Name: cdf.LongitudeVar, Units: "degrees", Shape: []int{n, 3}, Type: cdf.Double, Data: lon},
		{Name: cdf.LatitudeVar, Units: "degrees", Shape: []int{n, 3}, Type: cdf.Double, Data: lat},
		{Name: "Profile_UTC_Time", Shape: []int{n, 3}, Type: cdf.Double, Data: utc},
	}
}

// altitudes is the shared grid in km, sky to surface, from 30 km to -0.5 km.
func (gen *generator) altitudes() []float64 {
	out := make([]float64, gen.levels)
	for l := range out {
		if gen.levels == 1 {
			out[l] = 0
			continue
		}
		out[l] = 30 - 30.5*float64(l)/float64(gen.levels-1)
	}
	return out
}

func (gen *generator) surface() cdf.Var {
	return cdf.Var{
		Name: "Surface_Elevation", Units: "km", Shape: []int{gen.g.Points}, Type: cdf.Float,
		Data: gen.perPoint(func(int) float64 { return 0.4 * gen.rng.Float64() }),
	}
}

func (gen *generator) profile(product domain.Product) []cdf.Var {
	shape := []int{gen.g.Points, gen.levels}
	if product.Name == domain.L1 {
		return []cdf.Var{
			gen.surface(),
			{Name: "Total_Attenuated_Backscatter_532", Units: "per kilometer per steradian", Shape: shape,
				Data: gen.perCell(func(int, int) float64 { return 0.05 * gen.rng.ExpFloat64() })},
			{Name: qc.QCFlag, Shape: []int{gen.g.Points}, Type: cdf.Int,
				Data: gen.perPoint(func(int) float64 { return gen.flag(0x40) })},
		}
	}

	variable, cadSign := "Extinction_Coefficient_532", -1.0
	if product.Name == domain.L2CPro {
		variable, cadSign = "Ice_Water_Content_Profile", 1
	}
	return []cdf.Var{
		gen.surface(),
		{Name: variable, Units: "per kilometer", Shape: shape,
			Data: gen.perCell(func(int, int) float64 { return gen.value(0.2) })},
		{Name: qc.UncertaintyName(variable), Units: "per kilometer", Shape: shape,
			Data: gen.perCell(func(int, int) float64 { return gen.uncertainty() })},
		{Name: "Extinction_QC_Flag_532", Shape: shape, Type: cdf.Short,
			Data: gen.perCell(func(int, int) float64 { return gen.flag(0x10) })},
		{Name: qc.CADScore, Shape: shape, Type: cdf.Short,
			Data: gen.perCell(func(int, int) float64 { return cadSign * float64(10+gen.rng.IntN(91)) })},
	}
}

func (gen *generator) layers(product domain.Product) []cdf.Var {
	shape := []int{gen.g.Points, Layers}
	top := make([]float64, gen.g.Points*Layers)
	base := make([]float64, gen.g.Points*Layers)
	for p := 0; p < gen.g.Points; p++ {
		found := gen.rng.IntN(Layers + 1)
		ceiling := 20.0
		// Layers are reported top down; unused slots hold the fill value.
		for l := 0; l < Layers; l++ {
			i := p*Layers + l
			if l >= found {
				top[i], base[i] = domain.Missing, domain.Missing
				continue
			}
			t := ceiling * (0.6 + 0.3*gen.rng.Float64())
			b := t * (0.7 + 0.2*gen.rng.Float64())
			top[i], base[i] = t, b
			ceiling = b
		}
	}
	cadSign := 1.0
	if product.Name == domain.L2ALay {
		cadSign = -1
	}
	return []cdf.Var{
		{Name: "Layer_Top_Altitude", Units: "km", Shape: shape, Data: top},
		{Name: "Layer_Base_Altitude", Units: "km", Shape: shape, Data: base},
		{Name: "Feature_Optical_Depth_532", Shape: shape,
			Data: gen.perCell(func(int, int) float64 { return gen.value(1) })},
		{Name: "Integrated_Attenuated_Backscatter_532", Units: "per steradian", Shape: shape,
			Data: gen.perCell(func(int, int) float64 { return gen.value(0.02) })},
		{Name: qc.CADScore, Shape: shape, Type: cdf.Short,
			Data: gen.perCell(func(int, int) float64 { return cadSign * float64(10+gen.rng.IntN(91)) })},
	}
}

func (gen *generator) vfm() cdf.Var {
	return cdf.Var{
		Name: "Feature_Classification_Flags", Shape: []int{gen.g.Points, gen.levels}, Type: cdf.Int,
		Data: gen.perCell(func(int, int) float64 { return float64(gen.rng.IntN(1 << 16)) }),
	}
}

// value is exponentially distributed around mean with some fill values.
func (gen *generator) value(mean float64) float64 {
	if gen.rng.Float64() < 0.1 {
		return domain.Missing
	}
	return mean * gen.rng.ExpFloat64()
}

func (gen *generator) uncertainty() float64 {
	if gen.rng.Float64() < 0.05 {
		return qc.BadUncertainty
	}
	return 0.5 * gen.rng.Float64()
}

// flag is zero most of the time and bad otherwise.
func (gen *generator) flag(bad float64) float64 {
	if gen.rng.Float64() < 0.1 {
		return bad
	}
	return 0
}

// profileTime encodes t as yymmdd.fraction-of-day.
func profileTime(t time.Time) float64 {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	ymd := (t.Year()%100)*10000 + int(t.Month())*100 + t.Day()
	return float64(ymd) + t.Sub(day).Seconds()/86400
}

func wrapLongitude(x float64) float64 {
	x = math.Mod(x+180, 360)
	if x < 0 {
		x += 360
	}
	return x - 180
}
