// Command genfixture writes synthetic CALIPSO-shaped netCDF granules and a
// matching file list, for trying calipsosubset without real data.
//
// Usage:
//
//	go run ./cmd/genfixture -out data/fixture -product L2_05kmAPro \
//	  -start 2010010100 -granules 4 -points 500 -levels 399
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/fixture"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("genfixture", flag.ContinueOnError)
	out := fs.String("out", "", "output directory")
	product := fs.String("product", domain.L2APro, "product type, e.g. L1, L2_05kmAPro, L2_05kmCLay, L2_VFM")
	start := fs.String("start", "2010010100", "start of the first granule as YYYYMMDDHH (UTC)")
	granules := fs.Int("granules", 2, "number of granules, one per hour")
	points := fs.Int("points", 200, "ground points per granule")
	levels := fs.Int("levels", 100, "vertical levels for profile and VFM products")
	seed := fs.Uint64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		fs.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	t0, err := time.Parse("2006010215", *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	paths := make([]string, 0, *granules)
	for i := 0; i < *granules; i++ {
		g := fixture.Granule{
			Product: *product,
			Start:   t0.Add(time.Duration(i) * time.Hour),
			Points:  *points,
			Levels:  *levels,
			// Successive granules shift west like consecutive orbits.
			Lon:  -80 - 25*float64(i),
			Lat:  -60,
			DLon: -0.01,
			DLat: 120 / float64(*points),
			Seed: *seed + uint64(i),
		}
		path, err := fixture.Write(*out, g)
		if err != nil {
			return fmt.Errorf("granule %d: %w", i, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		paths = append(paths, abs)
		log.Printf("%s: %d points", filepath.Base(path), *points)
	}

	list := filepath.Join(*out, "files.txt")
	if err := os.WriteFile(list, []byte(strings.Join(paths, "\n")+"\n"), 0o644); err != nil {
		return err
	}
	log.Printf("file list: %s", list)
	return nil
}
