package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "calipso_subset"

// Metrics holds the Prometheus counters, histograms, and gauges for a subset run.
type Metrics struct {
	FilesProcessed  prometheus.Counter
	FilesSkipped    *prometheus.CounterVec // labels: reason={time,bounds,empty}
	FileErrors      *prometheus.CounterVec // labels: stage
	ScansSpooled    prometheus.Counter
	PointsRetained  prometheus.Counter
	CellsNulled     *prometheus.CounterVec // labels: step={rule,uncertainty,near_surface}
	FileDuration    prometheus.Histogram
	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.FilesProcessed,
		m.FilesSkipped,
		m.FileErrors,
		m.ScansSpooled,
		m.PointsRetained,
		m.CellsNulled,
		m.FileDuration,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      help("Input files that produced a spooled scan."),
		}),
		FilesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      help("Input files with nothing inside the query, by reason."),
		}, []string{"reason"}),
		FileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_errors_total",
			Help:      help("Input files abandoned after an error, by pipeline stage."),
		}, []string{"stage"}),
		ScansSpooled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_spooled_total",
			Help:      help("Scans written to the spool."),
		}),
		PointsRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_retained_total",
			Help:      help("Ground points kept after compaction and aggregation."),
		}),
		CellsNulled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_nulled_total",
			Help:      help("Cells set to the missing value by quality control, by step."),
		}, []string{"step"}),
		FileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_duration_seconds",
			Help:      help("Time spent reading, filtering and spooling one input file."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a run is processing files, 0 otherwise."),
		}),
	}
}
