package stream_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/couchcryptid/calipso-subset/internal/stream"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrays is an in-memory stream.Source.
type arrays [][]float64

func (a arrays) Replay(ctx context.Context, fn func([]byte) error) error {
	for _, arr := range a {
		if err := ctx.Err(); err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.BigEndian, arr); err != nil {
			return err
		}
		if err := fn(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func testHeader() stream.Header {
	return stream.Header{
		Description: "https://example.org/calipso,\nsubset",
		Start:       time.Date(2010, 1, 1, 3, 0, 0, 0, time.UTC),
		Hours:       24,
		Variable:    "Extinction_Coefficient_532",
		Units:       "per kilometer",
		Thickness:   true,
		Domain:      domain.Bounds{MinLon: -126, MinLat: 24.5, MaxLon: -66, MaxLat: 50},
		Scans: []domain.ScanInfo{
			{Timestamp: 20100010305, Bounds: domain.Bounds{MinLon: -100, MinLat: 30, MaxLon: -99, MaxLat: 31}, Points: 2, Levels: 2},
			{Timestamp: 20100010412, Bounds: domain.Bounds{MinLon: -90.5, MinLat: 40, MaxLon: -90, MaxLat: 40.25}, Points: 1, Levels: 2},
		},
	}
}

func testData() arrays {
	return arrays{
		{20100010305, 20100010306}, {-100, -99}, {30, 31},
		{100, 200, 150, 250}, {0.1, domain.Missing, 0.3, 0.4}, {10, 20, 30, 40},
		{20100010412}, {-90.5}, {40.25},
		{500, 900}, {1.5, 2.5}, {0, 0},
	}
}

func TestWriteHeader_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, stream.WriteHeader(&buf, testHeader()))

	want := strings.Join([]string{
		"CALIPSO 1.0",
		"https://example.org/calipso, subset",
		"2010-01-01T03:00:00-0000",
		"# Dimensions: variables timesteps profiles:",
		"6 24 2",
		"# Variable names:",
		"timestamp longitude latitude elevation Extinction_Coefficient_532 thickness",
		"# Variable units:",
		"yyyydddhhmm deg deg m per_kilometer m",
		"# Domain: <minimum_longitude> <minimum_latitude> <maximum_longitude> <maximum_latitude>",
		"-126 24.5 -66 50",
		"# MSB 64-bit integers (yyyydddhhmm) profile_timestamps[profiles] and",
		"# IEEE-754 64-bit reals profile_bounds[profiles][2=<longitude,latitude>][2=<minimum,maximum>] and",
		"# MSB 64-bit integers profile_dimensions[profiles][2=<points,levels>] and",
		"# IEEE-754 64-bit reals profile_data_1[variables][points][levels] ... profile_data_P:",
	}, "\n") + "\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, stream.HeaderLines, strings.Count(buf.String(), "\n"))
}

func TestHeader_NoThicknessNoUnits(t *testing.T) {
	h := testHeader()
	h.Thickness = false
	h.Units = ""
	assert.Equal(t, 5, h.Variables())
	assert.Equal(t, []string{"yyyydddhhmm", "deg", "deg", "m", "-"}, h.UnitNames())
	assert.Equal(t, "Extinction_Coefficient_532", h.Names()[4])
}

func TestEncodeDecode(t *testing.T) {
	h := testHeader()
	var buf bytes.Buffer
	require.NoError(t, stream.Encode(context.Background(), &buf, h, testData()))

	tables := 2 * (8 + 4*8 + 2*8)
	assert.Equal(t, int64(8*(3*2+3*4+3*1+3*2)), stream.DataBytes(h))

	s, err := stream.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/calipso, subset", s.Header.Description)
	assert.Equal(t, h.Start, s.Header.Start)
	assert.Equal(t, 24, s.Header.Hours)
	assert.Equal(t, "per_kilometer", s.Header.Units)
	assert.True(t, s.Header.Thickness)
	assert.Equal(t, h.Domain, s.Header.Domain)
	require.Len(t, s.Scans, 2)

	if diff := cmp.Diff(h.Scans, s.Header.Scans); diff != "" {
		t.Errorf("scan tables mismatch (-want +got):\n%s", diff)
	}

	first := s.Scans[0]
	assert.Equal(t, []float64{20100010305, 20100010306}, first.Timestamps)
	assert.Equal(t, []float64{-100, -99}, first.Longitudes)
	assert.Equal(t, []float64{0.1, domain.Missing, 0.3, 0.4}, first.Value.Data)
	assert.Equal(t, 2, first.Value.Levels)
	assert.Equal(t, []float64{10, 20, 30, 40}, first.Thickness.Data)

	second := s.Scans[1]
	assert.Equal(t, []float64{500, 900}, second.Elevation.Data)
	assert.Equal(t, []float64{1.5, 2.5}, second.Value.Data)

	header := strings.SplitAfterN(buf.String(), "\n", stream.HeaderLines+1)
	headerLen := len(buf.String()) - len(header[stream.HeaderLines])
	assert.Equal(t, headerLen+tables+int(stream.DataBytes(h)), buf.Len())
}

func TestDecodeHeader_StopsAtData(t *testing.T) {
	h := testHeader()
	var buf bytes.Buffer
	require.NoError(t, stream.Encode(context.Background(), &buf, h, testData()))

	br := bufio.NewReader(&buf)
	got, err := stream.DecodeHeader(br)
	require.NoError(t, err)
	require.Len(t, got.Scans, 2)
	assert.Equal(t, int64(20100010412), got.Scans[1].Timestamp)

	var first float64
	require.NoError(t, binary.Read(br, binary.BigEndian, &first))
	assert.Equal(t, 20100010305.0, first)
}

func TestEncode_DataSizeMismatch(t *testing.T) {
	data := testData()
	err := stream.Encode(context.Background(), &bytes.Buffer{}, testHeader(), data[:len(data)-1])
	require.ErrorIs(t, err, stream.ErrFormat)
}

func TestEncode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := stream.Encode(ctx, &bytes.Buffer{}, testHeader(), testData())
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecode_Malformed(t *testing.T) {
	var good bytes.Buffer
	require.NoError(t, stream.Encode(context.Background(), &good, testHeader(), testData()))
	valid := good.Bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("CALIPSO 2.0"), valid[len("CALIPSO 1.0"):]...)},
		{"truncated header", valid[:40]},
		{"truncated data", valid[:len(valid)-8]},
		{"trailing bytes", append(append([]byte(nil), valid...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stream.Decode(bytes.NewReader(tt.data))
			require.ErrorIs(t, err, stream.ErrFormat)
		})
	}
}
