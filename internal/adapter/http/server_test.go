package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/couchcryptid/calipso-subset/internal/adapter/http"
	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProgress struct {
	err   error
	scans []domain.ScanInfo
}

func (m *mockProgress) CheckReadiness(_ context.Context) error { return m.err }
func (m *mockProgress) Scans() []domain.ScanInfo             { return m.scans }

var testScans = []domain.ScanInfo{
	{File: "a.nc", Timestamp: 20100010300, Bounds: domain.Bounds{MinLon: -99, MinLat: 31, MaxLon: -95, MaxLat: 32}, Points: 2, Levels: 3},
	{File: "b.nc", Timestamp: 20100010400, Bounds: domain.Bounds{MinLon: -110, MinLat: 30, MaxLon: -104, MaxLat: 40}, Points: 5, Levels: 3},
}

func newTestServer(p *mockProgress) *httpadapter.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "calipso_subset",
		Name:      "pipeline_running",
	}))
	return httpadapter.NewServer(":0", "run-1", p, reg, slog.Default())
}

func get(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(newTestServer(&mockProgress{scans: testScans}), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"running","run_id":"run-1","scans":2}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		progress *mockProgress
		code     int
		body     string
	}{
		{
			name:     "ready",
			progress: &mockProgress{scans: testScans[:1]},
			code:     http.StatusOK,
			body:     `{"status":"ready","run_id":"run-1","scans":1}`,
		},
		{
			name:     "waiting",
			progress: &mockProgress{err: errors.New("no scans yet")},
			code:     http.StatusServiceUnavailable,
			body:     `{"status":"waiting","run_id":"run-1","scans":0,"error":"no scans yet"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newTestServer(tt.progress), "/readyz")
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

type scansBody struct {
	From  int               `json:"from"`
	Count int               `json:"count"`
	Scans []domain.ScanInfo `json:"scans"`
}

func TestScans(t *testing.T) {
	srv := newTestServer(&mockProgress{scans: testScans})

	tests := []struct {
		path string
		want []domain.ScanInfo
	}{
		{"/scans", testScans},
		{"/scans?from=1", testScans[1:]},
		{"/scans?from=2", []domain.ScanInfo{}},
		{"/scans?from=9", []domain.ScanInfo{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(srv, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var body scansBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, len(tt.want), body.Count)
			assert.Equal(t, tt.want, body.Scans)
		})
	}

	assert.Contains(t, get(srv, "/scans").Body.String(), `"timestamp":20100010300`)
}

func TestScans_Empty(t *testing.T) {
	rec := get(newTestServer(&mockProgress{}), "/scans")
	assert.JSONEq(t, `{"from":0,"count":0,"scans":[]}`, rec.Body.String())
}

func TestScans_BadFrom(t *testing.T) {
	srv := newTestServer(&mockProgress{scans: testScans})
	for _, path := range []string{"/scans?from=x", "/scans?from=-1"} {
		rec := get(srv, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestMetrics(t *testing.T) {
	rec := get(newTestServer(&mockProgress{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calipso_subset_pipeline_running")
}
