package domain

import (
	"fmt"
	"time"
)

// ScanSummary describes one spooled scan for downstream consumers.
type ScanSummary struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	File        string    `json:"file"`
	Product     string    `json:"product"`
	Variable    string    `json:"variable"`
	Units       string    `json:"units"`
	Timestamp   int64     `json:"timestamp"`
	Bounds      Bounds    `json:"bounds"`
	Points      int       `json:"points"`
	Levels      int       `json:"levels"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewScanSummary builds the summary for scan index i of a run.
func NewScanSummary(runID string, i int, product Product, variable, units string, info ScanInfo) ScanSummary {
	return ScanSummary{
		ID:          fmt.Sprintf("%s-%d", runID, i),
		RunID:       runID,
		File:        info.File,
		Product:     product.Name,
		Variable:    variable,
		Units:       units,
		Timestamp:   info.Timestamp,
		Bounds:      info.Bounds,
		Points:      info.Points,
		Levels:      info.Levels,
		ProcessedAt: clock.Now().UTC(),
	}
}
