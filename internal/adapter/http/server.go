package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/calipso-subset/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Progress is the view of a running pipeline the server reports on.
type Progress interface {
	// CheckReadiness returns nil once the run has spooled a scan.
	CheckReadiness(ctx context.Context) error
	// Scans returns the scans spooled so far, in output order.
	Scans() []domain.ScanInfo
}

// Server serves run progress and metrics while calipsosubset works through
// its file list.
type Server struct {
	srv      *http.Server
	runID    string
	progress Progress
	logger   *slog.Logger
}

type statusResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
	Scans  int    `json:"scans"`
	Error  string `json:"error,omitempty"`
}

type scansResponse struct {
	From  int               `json:"from"`
	Count int               `json:"count"`
	Scans []domain.ScanInfo `json:"scans"`
}

// NewServer routes /healthz, /readyz, /scans and /metrics. Metrics come
// from gatherer so tests can pass a private registry.
func NewServer(addr, runID string, progress Progress, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{runID: runID, progress: progress, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /readyz", s.ready)
	mux.HandleFunc("GET /scans", s.scans)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Start listens until Shutdown, then returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("progress server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.srv.Handler.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status: "running",
		RunID:  s.runID,
		Scans:  len(s.progress.Scans()),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := statusResponse{Status: "ready", RunID: s.runID, Scans: len(s.progress.Scans())}
	if err := s.progress.CheckReadiness(ctx); err != nil {
		resp.Status, resp.Error = "waiting", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// scans lists spooled scans, optionally starting at ?from=N so a poller can
// fetch only what is new.
func (s *Server) scans(w http.ResponseWriter, r *http.Request) {
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be a non-negative integer"})
			return
		}
		from = n
	}

	all := s.progress.Scans()
	resp := scansResponse{From: from, Scans: []domain.ScanInfo{}}
	if from < len(all) {
		resp.Scans = all[from:]
	}
	resp.Count = len(resp.Scans)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}
