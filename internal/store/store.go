// Package store persists run history and aggregation results.
package store

import (
	"context"
	"time"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Source       string          `json:"source,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitzero"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run *model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveDensity(ctx context.Context, runID string, cells []aggregate.Cell) error
	SaveRoutes(ctx context.Context, runID string, routes []aggregate.Route) error
	GetRoutes(ctx context.Context, runID string) ([]aggregate.Route, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
