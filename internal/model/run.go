package model

import "time"

// RunStatus represents the stage a pipeline run has reached.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusSampling    RunStatus = "sampling"
	RunStatusGeocoding   RunStatus = "geocoding"
	RunStatusJittering   RunStatus = "jittering"
	RunStatusAggregating RunStatus = "aggregating"
	RunStatusExporting   RunStatus = "exporting"
	RunStatusComplete    RunStatus = "complete"
	RunStatusEmpty       RunStatus = "empty" // nothing survived geocoding
	RunStatusFailed      RunStatus = "failed"
)

// Terminal reports whether a run in this status has finished.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusEmpty || s == RunStatusFailed
}

// Run identifies a single pipeline execution.
type Run struct {
	ID         string      `json:"id" yaml:"id"`
	Source     string      `json:"source" yaml:"source"`
	Status     RunStatus   `json:"status" yaml:"status"`
	Summary    *RunSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// Duration returns the elapsed run time, or zero while the run is active.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunSummary holds the per-stage counts of a run.
type RunSummary struct {
	Reference       string  `json:"reference" yaml:"reference"`
	ReferenceLoaded int     `json:"reference_loaded" yaml:"reference_loaded"`
	ReferenceSkip   int     `json:"reference_skipped" yaml:"reference_skipped"`
	Strategy        string  `json:"strategy" yaml:"strategy"`
	FallbackReason  string  `json:"fallback_reason,omitempty" yaml:"fallback_reason,omitempty"`
	EstimatedRows   int64   `json:"estimated_rows" yaml:"estimated_rows"`
	RowsScanned     int64   `json:"rows_scanned" yaml:"rows_scanned"`
	Malformed       int64   `json:"malformed" yaml:"malformed"`
	Sampled         int     `json:"sampled" yaml:"sampled"`
	Geocoded        int     `json:"geocoded" yaml:"geocoded"`
	Unmatched       int     `json:"unmatched" yaml:"unmatched"`
	UnmatchedPct    float64 `json:"unmatched_pct" yaml:"unmatched_pct"`
	JitterRadius    float64 `json:"jitter_radius" yaml:"jitter_radius"`
	Points          int     `json:"points" yaml:"points"`
	DensityCells    int     `json:"density_cells" yaml:"density_cells"`
	Routes          int     `json:"routes" yaml:"routes"`
	Overlay         int     `json:"overlay_points" yaml:"overlay_points"`
}
