// Package spool stores finished scans between the file loop and the output
// stream, so only one scan's arrays are held in memory at a time.
package spool

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/dgraph-io/badger/v4"
)

// Field identifies one array of a spooled scan. Fields replay in this order.
type Field uint8

const (
	FieldTimestamp Field = iota
	FieldLongitude
	FieldLatitude
	FieldElevation
	FieldValue
	FieldThickness
)

// chunkValues bounds the number of float64 values stored under one key
// (512 KiB), below badger's 1 MiB value threshold so values stay in the LSM
// tree in both disk and in-memory modes.
const chunkValues = 1 << 16

// ErrEmpty is returned by Replay when nothing has been spooled.
var ErrEmpty = errors.New("spool is empty")

// Spool is an append-only, ordered store of scan arrays backed by badger.
type Spool struct {
	db     *badger.DB
	dir    string
	stored map[int]int64 // values per scan index
	values int64
}

// Open creates a spool in a fresh directory under tmpdir. The directory is
// removed by Close.
func Open(tmpdir string, logger *slog.Logger) (*Spool, error) {
	dir, err := os.MkdirTemp(tmpdir, "calipso-spool-")
	if err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(newLogger(logger)))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open spool: %w", err), os.RemoveAll(dir))
	}
	return &Spool{db: db, dir: dir, stored: map[int]int64{}}, nil
}

// OpenInMemory creates a spool that never touches disk.
func OpenInMemory(logger *slog.Logger) (*Spool, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(newLogger(logger))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}
	return &Spool{db: db, stored: map[int]int64{}}, nil
}

// Len is the number of scans written.
func (s *Spool) Len() int { return len(s.stored) }

// Values is the number of float64 values written across all scans.
func (s *Spool) Values() int64 { return s.values }

// Put stores the arrays of scan number index, replacing anything an
// earlier Put left under the same index. A failed Put leaves no keys behind,
// so the index can be reused by the next scan.
func (s *Spool) Put(index int, scan *domain.Scan) error {
	if index < 0 {
		return fmt.Errorf("spool: negative scan index %d", index)
	}
	cells := scan.Cells()
	arrays := []struct {
		field Field
		data  []float64
	}{
		{FieldTimestamp, scan.Timestamps[:scan.Points]},
		{FieldLongitude, scan.Longitudes[:scan.Points]},
		{FieldLatitude, scan.Latitudes[:scan.Points]},
		{FieldElevation, scan.Elevation.Data[:cells]},
		{FieldValue, scan.Value.Data[:cells]},
	}
	if scan.HasThickness {
		arrays = append(arrays, struct {
			field Field
			data  []float64
		}{FieldThickness, scan.Thickness.Data[:cells]})
	}

	if err := s.clear(index); err != nil {
		return fmt.Errorf("spool scan %d: clear: %w", index, err)
	}
	s.values -= s.stored[index]
	delete(s.stored, index)

	var n int64
	err := s.write(func(wb *badger.WriteBatch) error {
		for _, a := range arrays {
			for chunk, start := 0, 0; start < len(a.data); chunk, start = chunk+1, start+chunkValues {
				end := min(start+chunkValues, len(a.data))
				if err := wb.Set(key(index, a.field, chunk), encode(a.data[start:end])); err != nil {
					return err
				}
			}
			n += int64(len(a.data))
		}
		return nil
	})
	if err != nil {
		return errors.Join(fmt.Errorf("spool scan %d: %w", index, err), s.clear(index))
	}
	s.stored[index] = n
	s.values += n
	return nil
}

// write runs fill against a write batch and flushes it. The batch may have
// committed part of its entries when an error is returned.
func (s *Spool) write(fill func(wb *badger.WriteBatch) error) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	if err := fill(wb); err != nil {
		return err
	}
	return wb.Flush()
}

// clear drops every key stored under scan index, if there are any.
func (s *Spool) clear(index int) error {
	prefix := key(index, 0, 0)[:8]
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		it.Rewind()
		found = it.Valid()
		return nil
	})
	if err != nil || !found {
		return err
	}
	return s.db.DropPrefix(prefix)
}

// Replay calls fn with every stored chunk in scan, field and chunk order.
// data is big-endian IEEE-754 float64 and is only valid during the call.
func (s *Spool) Replay(ctx context.Context, fn func(data []byte) error) error {
	if len(s.stored) == 0 {
		return ErrEmpty
	}
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scan reads back scan number index. It is used by tests and the
// validator; the emit path uses Replay.
func (s *Spool) Scan(index int, points, levels int, withThickness bool) (*domain.Scan, error) {
	scan := &domain.Scan{}
	scan.Reset(points, levels, withThickness)
	targets := map[Field][]float64{
		FieldTimestamp: scan.Timestamps,
		FieldLongitude: scan.Longitudes,
		FieldLatitude:  scan.Latitudes,
		FieldElevation: scan.Elevation.Data,
		FieldValue:     scan.Value.Data,
	}
	if withThickness {
		targets[FieldThickness] = scan.Thickness.Data
	}

	err := s.db.View(func(txn *badger.Txn) error {
		for field, dst := range targets {
			prefix := key(index, field, 0)[:9]
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			off := 0
			for it.Rewind(); it.Valid(); it.Next() {
				err := it.Item().Value(func(v []byte) error {
					n, err := decode(dst[off:], v)
					off += n
					return err
				})
				if err != nil {
					it.Close()
					return err
				}
			}
			it.Close()
			if off != len(dst) {
				return fmt.Errorf("%w: field %d of scan %d has %d values, want %d",
					domain.ErrDimensionMismatch, field, index, off, len(dst))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read spooled scan %d: %w", index, err)
	}
	return scan, nil
}

// Close releases the store and removes its directory.
func (s *Spool) Close() error {
	err := s.db.Close()
	if s.dir != "" {
		err = errors.Join(err, os.RemoveAll(s.dir))
	}
	return err
}

// key is scan index (8 bytes), field (1 byte), chunk (4 bytes), big-endian
// so that badger's byte order is replay order.
func key(index int, field Field, chunk int) []byte {
	k := make([]byte, 13)
	binary.BigEndian.PutUint64(k, uint64(index))
	k[8] = byte(field)
	binary.BigEndian.PutUint32(k[9:], uint32(chunk))
	return k
}

func encode(values []float64) []byte {
	b := make([]byte, 8*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

func decode(dst []float64, b []byte) (int, error) {
	if len(b)%8 != 0 {
		return 0, fmt.Errorf("spool value of %d bytes is not a float64 array", len(b))
	}
	n := len(b) / 8
	if n > len(dst) {
		return 0, fmt.Errorf("%w: spooled chunk overflows %d values", domain.ErrDimensionMismatch, len(dst))
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float64frombits(binary.BigEndian.Uint64(b[8*i:]))
	}
	return n, nil
}
