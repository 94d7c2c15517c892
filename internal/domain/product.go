package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Product describes how one CALIPSO product type is shaped and processed.
type Product struct {
	Name string

	// Layered products report discrete layers with top/base altitudes
	// instead of a shared vertical grid.
	Layered bool

	// AltitudeVData names the table holding the shared altitude grid (km,
	// sky to surface) for profile products.
	AltitudeVData string

	// OmitsElevation marks products that carry neither a surface
	// elevation nor an altitude grid; their elevation is zero everywhere.
	OmitsElevation bool

	// Aggregate marks high resolution products that are reduced to a
	// coarser grid after compaction.
	Aggregate bool
}

const (
	L1          = "L1"
	L2APro      = "L2_05kmAPro"
	L2CPro      = "L2_05kmCPro"
	L2ALay      = "L2_05kmALay"
	L2CLay      = "L2_05kmCLay"
	L2CLay1km   = "L2_01kmCLay"
	L2CLay333m  = "L2_333mCLay"
	L2VFM       = "L2_VFM"
	altitudeTab = "Lidar_Data_Altitudes"
)

var products = []Product{
	{Name: L1, AltitudeVData: altitudeTab, Aggregate: true},
	{Name: L2APro, AltitudeVData: altitudeTab},
	{Name: L2CPro, AltitudeVData: altitudeTab},
	{Name: L2ALay, Layered: true},
	{Name: L2CLay, Layered: true},
	{Name: L2CLay1km, Layered: true},
	{Name: L2CLay333m, Layered: true},
	{Name: L2VFM, OmitsElevation: true},
}

// ProductFromFileName identifies the product type from a CALIPSO file name
// such as CAL_LID_L2_05kmCLay-Standard-V4-20.2006-07-03T00-22-49ZN.hdf.
func ProductFromFileName(name string) (Product, error) {
	base := filepath.Base(name)
	for _, p := range products {
		if strings.Contains(base, "_"+p.Name+"-") || strings.Contains(base, "_"+p.Name+"_") {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("unknown product type in file name %q", base)
}

// LookupProduct returns the product with the given name.
func LookupProduct(name string) (Product, bool) {
	for _, p := range products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

// Profile reports whether values sit on a shared vertical grid.
func (p Product) Profile() bool { return !p.Layered && !p.OmitsElevation }
