// Package stream writes and reads the subset output: a 15-line ASCII
// header followed by big-endian per-scan tables and data arrays.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
)

// Magic is the first header line.
const Magic = "CALIPSO 1.0"

// HeaderLines is the number of ASCII lines before the binary section.
const HeaderLines = 15

// ErrFormat is returned when a stream does not follow the layout.
var ErrFormat = errors.New("malformed stream")

const timeLayout = "2006-01-02T15"

// Header describes a whole stream.
type Header struct {
	Description string
	Start       time.Time
	Hours       int
	Variable    string
	Units       string
	Thickness   bool
	Domain      domain.Bounds
	Scans       []domain.ScanInfo
}

// Variables is the number of arrays stored per scan.
func (h Header) Variables() int {
	if h.Thickness {
		return 6
	}
	return 5
}

// Names lists the stored arrays in order.
func (h Header) Names() []string {
	names := []string{"timestamp", "longitude", "latitude", "elevation", h.Variable}
	if h.Thickness {
		names = append(names, "thickness")
	}
	return names
}

// UnitNames lists the units of the stored arrays in order.
func (h Header) UnitNames() []string {
	units := []string{"yyyydddhhmm", "deg", "deg", "m", token(h.Units)}
	if h.Thickness {
		units = append(units, "m")
	}
	return units
}

// token makes s safe for a whitespace separated header line.
func token(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return strings.Join(f, "_")
	}
	return "-"
}

// WriteHeader writes the ASCII part of the stream.
func WriteHeader(w io.Writer, h Header) error {
	desc := strings.Join(strings.Fields(h.Description), " ")
	lines := []string{
		Magic,
		desc,
		h.Start.UTC().Format(timeLayout) + ":00:00-0000",
		"# Dimensions: variables timesteps profiles:",
		fmt.Sprintf("%d %d %d", h.Variables(), h.Hours, len(h.Scans)),
		"# Variable names:",
		strings.Join(h.Names(), " "),
		"# Variable units:",
		strings.Join(h.UnitNames(), " "),
		"# Domain: <minimum_longitude> <minimum_latitude> <maximum_longitude> <maximum_latitude>",
		fmt.Sprintf("%g %g %g %g", h.Domain.MinLon, h.Domain.MinLat, h.Domain.MaxLon, h.Domain.MaxLat),
		"# MSB 64-bit integers (yyyydddhhmm) profile_timestamps[profiles] and",
		"# IEEE-754 64-bit reals profile_bounds[profiles][2=<longitude,latitude>][2=<minimum,maximum>] and",
		"# MSB 64-bit integers profile_dimensions[profiles][2=<points,levels>] and",
		"# IEEE-754 64-bit reals profile_data_1[variables][points][levels] ... profile_data_P:",
	}
	for _, l := range lines {
		if _, err := io.WriteString(w, l+"\n"); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	return nil
}

// readHeader parses the ASCII part. Scans is sized but left zero; the
// tables that follow fill it in.
func readHeader(r *bufio.Reader) (Header, error) {
	lines := make([]string, HeaderLines)
	for i := range lines {
		l, err := r.ReadString('\n')
		if err != nil {
			return Header{}, fmt.Errorf("%w: header line %d: %v", ErrFormat, i+1, err)
		}
		lines[i] = strings.TrimRight(l, "\r\n")
	}
	if lines[0] != Magic {
		return Header{}, fmt.Errorf("%w: first line %q", ErrFormat, lines[0])
	}

	var h Header
	h.Description = lines[1]

	stamp, ok := strings.CutSuffix(lines[2], ":00:00-0000")
	if !ok {
		return Header{}, fmt.Errorf("%w: timestamp %q", ErrFormat, lines[2])
	}
	start, err := time.Parse(timeLayout, stamp)
	if err != nil {
		return Header{}, fmt.Errorf("%w: timestamp %q: %v", ErrFormat, lines[2], err)
	}
	h.Start = start

	dims, err := ints(lines[4], 3)
	if err != nil {
		return Header{}, err
	}
	variables, scans := dims[0], dims[2]
	h.Hours = dims[1]
	if variables != 5 && variables != 6 {
		return Header{}, fmt.Errorf("%w: %d variables", ErrFormat, variables)
	}
	if scans < 0 {
		return Header{}, fmt.Errorf("%w: %d profiles", ErrFormat, scans)
	}
	h.Thickness = variables == 6

	names := strings.Fields(lines[6])
	units := strings.Fields(lines[8])
	if len(names) != variables || len(units) != variables {
		return Header{}, fmt.Errorf("%w: %d names and %d units for %d variables",
			ErrFormat, len(names), len(units), variables)
	}
	h.Variable = names[4]
	h.Units = units[4]

	d, err := floats(lines[10], 4)
	if err != nil {
		return Header{}, err
	}
	h.Domain = domain.Bounds{MinLon: d[0], MinLat: d[1], MaxLon: d[2], MaxLat: d[3]}
	h.Scans = make([]domain.ScanInfo, scans)
	return h, nil
}

func ints(line string, n int) ([]int, error) {
	f := strings.Fields(line)
	if len(f) != n {
		return nil, fmt.Errorf("%w: want %d integers in %q", ErrFormat, n, line)
	}
	out := make([]int, n)
	for i, s := range f {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrFormat, line, err)
		}
		out[i] = v
	}
	return out, nil
}

func floats(line string, n int) ([]float64, error) {
	f := strings.Fields(line)
	if len(f) != n {
		return nil, fmt.Errorf("%w: want %d numbers in %q", ErrFormat, n, line)
	}
	out := make([]float64, n)
	for i, s := range f {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrFormat, line, err)
		}
		out[i] = v
	}
	return out, nil
}
