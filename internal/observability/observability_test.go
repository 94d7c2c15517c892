package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("scan spooled", "points", 12)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "scan spooled", rec["msg"])
	assert.EqualValues(t, 12, rec["points"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "TEXT")
	logger.Debug("reading", "file", "a.nc")
	assert.Contains(t, buf.String(), "file=a.nc")
	assert.Contains(t, buf.String(), "level=DEBUG")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.FileErrors.WithLabelValues("open").Inc()
	a.CellsNulled.WithLabelValues("rule").Add(5)

	assert.InDelta(t, 1, testutil.ToFloat64(a.FileErrors.WithLabelValues("open")), 0)
	assert.InDelta(t, 5, testutil.ToFloat64(a.CellsNulled.WithLabelValues("rule")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.FileErrors.WithLabelValues("open")), 0)
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m.FilesProcessed))
	require.NoError(t, reg.Register(m.FileErrors))

	m.FilesProcessed.Inc()
	m.FileErrors.WithLabelValues("read").Inc()

	n, err := testutil.GatherAndCount(reg, "calipso_subset_files_processed_total", "calipso_subset_file_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
