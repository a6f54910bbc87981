// Package pipeline runs the sampling, geocoding, jitter and aggregation
// stages end to end and hands the result to the exporters.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/config"
	"github.com/sells-group/geodensity/internal/export"
	"github.com/sells-group/geodensity/internal/geocode"
	"github.com/sells-group/geodensity/internal/jitter"
	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/overlay"
	"github.com/sells-group/geodensity/internal/refgeo"
	"github.com/sells-group/geodensity/internal/sample"
	"github.com/sells-group/geodensity/internal/store"
)

// ErrEmptyResult means no record survived geocoding. Run reports this
// through Result.Empty; RequireData turns it into an error.
var ErrEmptyResult = eris.New("pipeline: no records survived geocoding")

// Result is the outcome of one run.
type Result struct {
	RunID       string
	Summary     model.RunSummary
	Diagnostics geocode.Diagnostics
	Output      *aggregate.Output
	Overlay     []overlay.HeavyHitter
	Files       []string
	Empty       bool
}

// RequireData returns ErrEmptyResult for an empty run.
func RequireData(res *Result) error {
	if res == nil || res.Empty {
		id := ""
		if res != nil {
			id = res.RunID
		}
		return eris.Wrapf(ErrEmptyResult, "run %s", id)
	}
	return nil
}

// Options adjusts a single run.
type Options struct {
	// RunID is generated when empty.
	RunID string
	// WriteSample also exports the sampled rows.
	WriteSample bool
}

// Pipeline runs the stages against one configuration. The store is
// optional.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	now   func() time.Time
}

// New creates a Pipeline. st may be nil to skip run history.
func New(cfg *config.Config, st store.Store) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one pipeline run. A run in which nothing survives geocoding
// is not an error: it returns Result.Empty and still writes its summary.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := p.cfg.Validate("run"); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := zap.L().With(zap.String("run_id", runID), zap.String("source", p.cfg.Source.Path))
	log.Info("pipeline: starting run")

	result := &Result{RunID: runID}
	run := &model.Run{
		ID:        runID,
		Source:    p.cfg.Source.Path,
		Status:    model.RunStatusQueued,
		StartedAt: p.now(),
	}
	p.saveRun(ctx, log, run)

	// Update status helper.
	setStatus := func(status model.RunStatus) {
		run.Status = status
		if p.store == nil {
			return
		}
		if statusErr := p.store.UpdateRunStatus(ctx, runID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}
	fail := func(err error) (*Result, error) {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		run.FinishedAt = p.now()
		run.Summary = &result.Summary
		p.saveRun(context.WithoutCancel(ctx), log, run)
		log.Error("pipeline: run failed", zap.Error(err))
		return nil, err
	}

	// ===== Stage 1: reference geography and sample, in parallel =====
	setStatus(model.RunStatusSampling)
	var (
		ref     *refgeo.Geography
		rep     *refgeo.Report
		sampled *sample.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ref, rep, err = LoadReference(gctx, p.cfg)
		return err
	})
	g.Go(func() error {
		var err error
		sampled, err = Sample(gctx, p.cfg)
		return err
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}
	logReference(log, ref, rep)

	sum := &result.Summary
	sum.Reference = rep.Source
	sum.ReferenceLoaded = rep.Loaded
	sum.ReferenceSkip = rep.SkippedTotal()
	sum.Strategy = sampled.Strategy
	sum.FallbackReason = sampled.FallbackReason
	sum.EstimatedRows = sampled.EstimatedRows
	sum.RowsScanned = sampled.RowsScanned
	sum.Malformed = sampled.Malformed
	sum.Sampled = len(sampled.Records)

	// ===== Stage 2: geocode =====
	setStatus(model.RunStatusGeocoding)
	geocoded, diag := geocode.NewJoiner(ref, sampled.Adapter).Join(sampled.Records)
	result.Diagnostics = diag
	sum.Geocoded = len(geocoded)
	sum.Unmatched = diag.Unmatched
	sum.UnmatchedPct = diag.UnmatchedPct

	bundle := &export.Bundle{
		RunID:        runID,
		Summary:      sum,
		HeavyHitters: p.cfg.Output.HeavyHitters,
	}
	if opts.WriteSample {
		bundle.Header = sampled.Header
		bundle.Sample = sampled.Records
	}

	if len(geocoded) == 0 {
		log.Warn("pipeline: no records survived geocoding, skipping aggregation",
			zap.Int("sampled", sum.Sampled),
			zap.Float64("unmatched_pct", diag.UnmatchedPct),
		)
		result.Empty = true
		if err := p.export(ctx, result, bundle, setStatus); err != nil {
			return fail(err)
		}
		return p.finish(ctx, log, run, result, model.RunStatusEmpty)
	}

	// ===== Stage 3: jitter =====
	setStatus(model.RunStatusJittering)
	var fuzzed []model.FuzzedRecord
	if p.cfg.Pipeline.Jitter {
		j, err := jitter.New(p.cfg.Pipeline.JitterRadius, stageRNG(p.cfg.Pipeline.RandomSeed, streamJitter))
		if err != nil {
			return fail(eris.Wrap(err, "pipeline: jitter"))
		}
		fuzzed = j.Apply(geocoded)
		sum.JitterRadius = j.Radius()
	} else {
		fuzzed = jitter.Passthrough(geocoded)
	}

	// ===== Stage 4: aggregate =====
	setStatus(model.RunStatusAggregating)
	agg := aggregate.New(aggregate.Options{
		Bounds:        BoundsPolicy(p.cfg.Pipeline.Grid),
		BinCount:      p.cfg.Pipeline.BinCount,
		RouteBinCount: p.cfg.Pipeline.RouteBinCount,
		TopK:          p.cfg.Pipeline.TopK,
	})
	out, err := agg.Aggregate(model.Tracks(fuzzed))
	if err != nil {
		return fail(err)
	}
	result.Output = out
	sum.Points = out.Points
	sum.Routes = len(out.Routes)
	for _, grid := range out.Density {
		sum.DensityCells += len(grid.Cells())
	}

	// ===== Stage 5: overlay =====
	points, err := p.loadOverlay(log)
	if err != nil {
		return fail(err)
	}
	result.Overlay = points
	sum.Overlay = len(points)

	// ===== Stage 6: export =====
	bundle.Output = out
	bundle.Overlay = points
	if err := p.export(ctx, result, bundle, setStatus); err != nil {
		return fail(err)
	}
	if err := p.persist(ctx, runID, out); err != nil {
		return fail(err)
	}

	return p.finish(ctx, log, run, result, model.RunStatusComplete)
}

// loadOverlay reads the configured overlay. A missing file is skipped.
func (p *Pipeline) loadOverlay(log *zap.Logger) ([]overlay.HeavyHitter, error) {
	if p.cfg.Overlay.Path == "" {
		return nil, nil
	}
	points, err := overlay.Load(p.cfg.Overlay.Path)
	if eris.Is(err, overlay.ErrOverlayMissing) {
		log.Warn("pipeline: overlay not found, skipping", zap.String("path", p.cfg.Overlay.Path))
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load overlay")
	}
	return points, nil
}

func (p *Pipeline) export(ctx context.Context, result *Result, b *export.Bundle, setStatus func(model.RunStatus)) error {
	setStatus(model.RunStatusExporting)
	w, err := export.New(p.cfg.Output.Dir, p.cfg.Output.Formats)
	if err != nil {
		return eris.Wrap(err, "pipeline: export")
	}
	files, err := w.WriteAll(ctx, b)
	if err != nil {
		return eris.Wrap(err, "pipeline: export")
	}
	result.Files = files
	return nil
}

// persist stores the density cells and routes of a run.
func (p *Pipeline) persist(ctx context.Context, runID string, out *aggregate.Output) error {
	if p.store == nil {
		return nil
	}
	var cells []aggregate.Cell
	for _, grid := range out.Density {
		cells = append(cells, grid.Cells()...)
	}
	if err := p.store.SaveDensity(ctx, runID, cells); err != nil {
		return eris.Wrap(err, "pipeline: save density")
	}
	if err := p.store.SaveRoutes(ctx, runID, out.Routes); err != nil {
		return eris.Wrap(err, "pipeline: save routes")
	}
	return nil
}

func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, run *model.Run, result *Result, status model.RunStatus) (*Result, error) {
	run.Status = status
	run.Summary = &result.Summary
	run.FinishedAt = p.now()
	p.saveRun(ctx, log, run)

	s := result.Summary
	log.Info("pipeline: run finished",
		zap.String("status", string(status)),
		zap.String("strategy", s.Strategy),
		zap.Int("sampled", s.Sampled),
		zap.Int("geocoded", s.Geocoded),
		zap.Float64("unmatched_pct", s.UnmatchedPct),
		zap.Int("points", s.Points),
		zap.Int("density_cells", s.DensityCells),
		zap.Int("routes", s.Routes),
		zap.Int("files", len(result.Files)),
		zap.Duration("duration", run.Duration()),
	)
	return result, nil
}

func (p *Pipeline) saveRun(ctx context.Context, log *zap.Logger, run *model.Run) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		log.Warn("pipeline: failed to save run", zap.Error(err))
	}
}
