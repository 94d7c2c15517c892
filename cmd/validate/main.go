// Command validate decodes a calipsosubset output stream and checks it for
// internal consistency: the header, the per-scan tables, and the data
// arrays against the tables. It exits 1 when a check fails and 2 when the
// stream cannot be decoded.
//
// Usage:
//
//	go run ./cmd/validate -in subset.bin
package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/stream"
	flag "github.com/spf13/pflag"
)

// maxReported caps the failures printed per check.
const maxReported = 20

// check collects the failures of one group of assertions.
type check struct {
	title    string
	failures []string
	dropped  int
}

func (c *check) fail(format string, args ...any) {
	if len(c.failures) == maxReported {
		c.dropped++
		return
	}
	c.failures = append(c.failures, fmt.Sprintf(format, args...))
}

func (c *check) ok() bool { return len(c.failures) == 0 }

func main() {
	in := flag.String("in", "-", "stream to validate; - reads standard input")
	flag.Parse()
	os.Exit(run(*in, os.Stdout))
}

func run(path string, out io.Writer) int {
	s, err := decode(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		return 2
	}

	checks := []*check{
		checkHeader(s.Header),
		checkTables(s.Header),
		checkData(s),
	}

	var points, cells int
	for _, sc := range s.Header.Scans {
		points += sc.Points
		cells += sc.Points * sc.Levels
	}
	fmt.Fprintf(out, "%s [%s] from %s, %d h\n", s.Header.Variable, s.Header.Units,
		s.Header.Start.Format(time.RFC3339), s.Header.Hours)
	fmt.Fprintf(out, "%d scans, %d points, %d cells\n\n", len(s.Scans), points, cells)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	failed := 0
	for _, c := range checks {
		result := "ok"
		if !c.ok() {
			result = fmt.Sprintf("%d failures", len(c.failures)+c.dropped)
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\n", c.title, result)
	}
	tw.Flush()

	for _, c := range checks {
		for _, f := range c.failures {
			fmt.Fprintf(out, "%s: %s\n", c.title, f)
		}
		if c.dropped > 0 {
			fmt.Fprintf(out, "%s: ... %d more\n", c.title, c.dropped)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func decode(path string) (*stream.Stream, error) {
	if path == "-" {
		return stream.Decode(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return stream.Decode(f)
}

func checkHeader(h stream.Header) *check {
	c := &check{title: "header"}
	if h.Hours < 1 {
		c.fail("timesteps %d, want at least 1", h.Hours)
	}
	if !h.Domain.Valid() {
		c.fail("domain %v is not a valid box", h.Domain)
	}
	if len(h.Scans) == 0 {
		c.fail("stream holds no scans")
	}
	if h.Start.Minute() != 0 || h.Start.Second() != 0 {
		c.fail("start %s is not on the hour", h.Start)
	}
	return c
}

func checkTables(h stream.Header) *check {
	c := &check{title: "scan tables"}
	end := h.Start.Add(time.Duration(h.Hours) * time.Hour)
	var prev time.Time
	for i, sc := range h.Scans {
		if sc.Points < 1 || sc.Levels < 1 {
			c.fail("scan %d: dimensions %dx%d", i, sc.Points, sc.Levels)
		}
		if !sc.Bounds.Valid() {
			c.fail("scan %d: bounds %v invalid", i, sc.Bounds)
		}
		if !sc.Bounds.Overlaps(h.Domain) {
			c.fail("scan %d: bounds %v outside domain %v", i, sc.Bounds, h.Domain)
		}
		t, err := domain.ParseTimestamp(sc.Timestamp)
		if err != nil {
			c.fail("scan %d: %v", i, err)
			continue
		}
		if t.Before(h.Start) || !t.Before(end) {
			c.fail("scan %d: timestamp %d outside [%s, %s)", i, sc.Timestamp,
				h.Start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
		if t.Before(prev) {
			c.fail("scan %d: timestamp %d earlier than scan %d", i, sc.Timestamp, i-1)
		}
		prev = t
	}
	return c
}

func checkData(s *stream.Stream) *check {
	c := &check{title: "scan data"}
	for i, sc := range s.Scans {
		b, err := domain.ComputeBounds(sc.Longitudes, sc.Latitudes)
		if err != nil {
			c.fail("scan %d: %v", i, err)
			continue
		}
		if b != sc.Info.Bounds {
			c.fail("scan %d: coordinates span %v, table says %v", i, b, sc.Info.Bounds)
		}
		for j, ts := range sc.Timestamps {
			if _, err := domain.ParseTimestamp(int64(ts)); err != nil {
				c.fail("scan %d point %d: %v", i, j, err)
				break
			}
		}
		for j, e := range sc.Elevation.Data {
			if !domain.IsValidElevation(e) {
				c.fail("scan %d cell %d: elevation %g out of range", i, j, e)
				break
			}
		}
		for j, v := range sc.Value.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				c.fail("scan %d cell %d: value %g is not finite", i, j, v)
				break
			}
		}
		if s.Header.Thickness {
			for j, th := range sc.Thickness.Data {
				if th < 0 {
					c.fail("scan %d cell %d: negative thickness %g", i, j, th)
					break
				}
			}
		}
	}
	return c
}
