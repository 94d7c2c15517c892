package stream

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/calipso-subset/internal/domain"
)

// Source replays spooled scan arrays as big-endian float64 bytes, scan by
// scan in output order.
type Source interface {
	Replay(ctx context.Context, fn func(data []byte) error) error
}

// DataBytes is the size of the data section that follows the tables.
func DataBytes(h Header) int64 {
	var n int64
	for _, s := range h.Scans {
		points, cells := int64(s.Points), int64(s.Points)*int64(s.Levels)
		n += 3*points + int64(h.Variables()-3)*cells
	}
	return 8 * n
}

// Encode writes the header, the per-scan tables and the data replayed from
// src. The amount of data must match the scan dimensions in h.
func Encode(ctx context.Context, w io.Writer, h Header, src Source) error {
	bw := bufio.NewWriterSize(w, 1<<16)
	if err := WriteHeader(bw, h); err != nil {
		return err
	}
	if err := writeTables(bw, h.Scans); err != nil {
		return err
	}

	var written int64
	err := src.Replay(ctx, func(data []byte) error {
		n, err := bw.Write(data)
		written += int64(n)
		return err
	})
	if err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	if want := DataBytes(h); written != want {
		return fmt.Errorf("%w: wrote %d data bytes, header describes %d", ErrFormat, written, want)
	}
	return bw.Flush()
}

func writeTables(w io.Writer, scans []domain.ScanInfo) error {
	timestamps := make([]int64, len(scans))
	bounds := make([]float64, 0, 4*len(scans))
	dims := make([]int64, 0, 2*len(scans))
	for i, s := range scans {
		timestamps[i] = s.Timestamp
		bounds = append(bounds, s.Bounds.MinLon, s.Bounds.MaxLon, s.Bounds.MinLat, s.Bounds.MaxLat)
		dims = append(dims, int64(s.Points), int64(s.Levels))
	}
	for _, table := range []any{timestamps, bounds, dims} {
		if err := binary.Write(w, binary.BigEndian, table); err != nil {
			return fmt.Errorf("write scan tables: %w", err)
		}
	}
	return nil
}

// Scan is one decoded scan.
type Scan struct {
	Info       domain.ScanInfo
	Timestamps []float64
	Longitudes []float64
	Latitudes  []float64
	Elevation  domain.Grid
	Value      domain.Grid
	Thickness  domain.Grid
}

// Stream is a fully decoded output stream.
type Stream struct {
	Header Header
	Scans  []Scan
}

// DecodeHeader reads the ASCII header and the scan tables, leaving r
// positioned at the start of the data section.
func DecodeHeader(r *bufio.Reader) (Header, error) {
	h, err := readHeader(r)
	if err != nil {
		return Header{}, err
	}
	n := len(h.Scans)
	timestamps := make([]int64, n)
	bounds := make([]float64, 4*n)
	dims := make([]int64, 2*n)
	for _, table := range []any{timestamps, bounds, dims} {
		if err := binary.Read(r, binary.BigEndian, table); err != nil {
			return Header{}, fmt.Errorf("%w: scan tables: %v", ErrFormat, err)
		}
	}
	for i := range h.Scans {
		b := bounds[4*i : 4*i+4]
		h.Scans[i] = domain.ScanInfo{
			Timestamp: timestamps[i],
			Bounds:    domain.Bounds{MinLon: b[0], MaxLon: b[1], MinLat: b[2], MaxLat: b[3]},
			Points:    int(dims[2*i]),
			Levels:    int(dims[2*i+1]),
		}
		if h.Scans[i].Points < 0 || h.Scans[i].Levels < 0 {
			return Header{}, fmt.Errorf("%w: scan %d has dimensions %dx%d",
				ErrFormat, i, dims[2*i], dims[2*i+1])
		}
	}
	return h, nil
}

// Decode reads a whole stream and rejects trailing bytes.
func Decode(r io.Reader) (*Stream, error) {
	br := bufio.NewReader(r)
	h, err := DecodeHeader(br)
	if err != nil {
		return nil, err
	}

	s := &Stream{Header: h, Scans: make([]Scan, len(h.Scans))}
	for i, info := range h.Scans {
		sc := Scan{Info: info}
		cells := info.Points * info.Levels
		arrays := []*[]float64{&sc.Timestamps, &sc.Longitudes, &sc.Latitudes}
		for _, a := range arrays {
			if *a, err = readFloats(br, info.Points); err != nil {
				return nil, fmt.Errorf("scan %d: %w", i, err)
			}
		}
		grids := []*domain.Grid{&sc.Elevation, &sc.Value}
		if h.Thickness {
			grids = append(grids, &sc.Thickness)
		}
		for _, g := range grids {
			data, err := readFloats(br, cells)
			if err != nil {
				return nil, fmt.Errorf("scan %d: %w", i, err)
			}
			*g = domain.Grid{Points: info.Points, Levels: info.Levels, Data: data}
		}
		s.Scans[i] = sc
	}

	if _, err := br.Peek(1); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing bytes after last scan", ErrFormat)
	}
	return s, nil
}

func readFloats(r io.Reader, n int) ([]float64, error) {
	out := make([]float64, n)
	if err := binary.Read(r, binary.BigEndian, out); err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrFormat, err)
	}
	return out, nil
}
