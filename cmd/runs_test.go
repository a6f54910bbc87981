//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/geodensity/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:         "abc12345-6789-0000-0000-000000000000",
			Source:     "data/rides.csv",
			Status:     model.RunStatusComplete,
			Summary:    &model.RunSummary{Strategy: "skip_row", Sampled: 1000, Geocoded: 987},
			StartedAt:  now,
			FinishedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Source:    "data/fars_2022_accidents_with_a_long_name.csv",
			Status:    model.RunStatusSampling,
			StartedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "data/rides.csv")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "skip_row")
	assert.Contains(t, output, "987/1000")
	assert.Contains(t, output, "sampling")
	assert.Contains(t, output, "...")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "abc12345")
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []model.Run{
		{
			ID:         "1",
			Status:     model.RunStatusComplete,
			Summary:    &model.RunSummary{Sampled: 100, UnmatchedPct: 10},
			StartedAt:  now,
			FinishedAt: now.Add(2 * time.Minute),
		},
		{
			ID:         "2",
			Status:     model.RunStatusEmpty,
			Summary:    &model.RunSummary{Sampled: 100, UnmatchedPct: 100, FallbackReason: "sample: cannot estimate source size"},
			StartedAt:  now.Add(5 * time.Minute),
			FinishedAt: now.Add(8 * time.Minute),
		},
		{
			ID:         "3",
			Status:     model.RunStatusFailed,
			Error:      "pipeline: load reference: open centroids.csv",
			StartedAt:  now.Add(10 * time.Minute),
			FinishedAt: now.Add(10*time.Minute + 30*time.Second),
		},
		{
			ID:        "4",
			Status:    model.RunStatusGeocoding,
			StartedAt: now.Add(15 * time.Minute),
		},
	}

	stats := computeRunStats(runs)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Complete)
	assert.Equal(t, 1, stats.Empty)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Other)
	assert.Equal(t, 1, stats.Fallbacks)
	// Average duration of the complete and empty runs: (120s + 180s) / 2 = 150s.
	assert.InDelta(t, 150.0, stats.AvgDurSecs, 0.1)
	// Match rates 90% and 0%.
	assert.InDelta(t, 45.0, stats.AvgMatchedPct, 1e-9)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Complete:")
	assert.Contains(t, output, "Empty:")
	assert.Contains(t, output, "Failed:")
	assert.Contains(t, output, "Sampler fallbacks:")
	assert.Contains(t, output, "45.0%")
	assert.Contains(t, output, "150.0s")
}

func TestRunsStats_NoRuns(t *testing.T) {
	stats := computeRunStats(nil)
	assert.Zero(t, stats.Total)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)
	assert.NotContains(t, buf.String(), "Avg duration")
	assert.NotContains(t, buf.String(), "Avg match rate")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
