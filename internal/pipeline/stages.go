package pipeline

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/config"
	"github.com/sells-group/geodensity/internal/fetcher"
	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/refgeo"
	"github.com/sells-group/geodensity/internal/sample"
	"github.com/sells-group/geodensity/internal/schema"
)

// Independent random streams derived from the run seed, one per stage, so
// toggling one stage does not shift the draws of another.
const (
	streamSample uint64 = iota + 1
	streamJitter
)

func stageRNG(seed int64, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), stream)) //nolint:gosec // reproducible sampling, not crypto
}

// LoadReference loads the configured reference geography, downloading it
// first when the path is a URL.
func LoadReference(ctx context.Context, cfg *config.Config) (*refgeo.Geography, *refgeo.Report, error) {
	path := cfg.Reference.Path
	if refgeo.IsRemote(path) {
		cacheDir := cfg.Reference.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(os.TempDir(), "geodensity-cache")
		}
		local, err := refgeo.Fetch(ctx, fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), path, cacheDir)
		if err != nil {
			return nil, nil, eris.Wrap(err, "pipeline: fetch reference")
		}
		path = local
	}

	ref, rep, err := refgeo.Load(path, refgeo.Options{
		Format:    refgeo.Format(cfg.Reference.Format),
		CodeField: cfg.Reference.CodeField,
		LatField:  cfg.Reference.LatField,
		LonField:  cfg.Reference.LonField,
		CodeWidth: cfg.Pipeline.CodeWidth,
		Sheet:     cfg.Reference.Sheet,
		TempDir:   cfg.Reference.TempDir,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: load reference")
	}
	if path != cfg.Reference.Path {
		rep.Source = cfg.Reference.Path
	}
	return ref, rep, nil
}

// Sample runs the sampler over the configured source.
func Sample(ctx context.Context, cfg *config.Config) (*sample.Result, error) {
	binder := schema.Columns{Names: cfg.Source.CodeColumns, Width: cfg.Pipeline.CodeWidth}
	s := sample.New(
		sample.FileSource{Path: cfg.Source.Path},
		binder,
		sample.Options{
			SampleSize:  cfg.Pipeline.SampleSize,
			ChunkSize:   cfg.Pipeline.ChunkSize,
			AvgRowBytes: cfg.Pipeline.AvgRowBytes,
			Delimiter:   cfg.Source.DelimiterRune(),
		},
		stageRNG(cfg.Pipeline.RandomSeed, streamSample),
	)
	res, err := s.Sample(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: sample")
	}
	return res, nil
}

// BoundsPolicy builds the aggregation domain policy for a grid config.
func BoundsPolicy(g config.GridConfig) aggregate.BoundsPolicy {
	switch g.Mode {
	case config.GridDynamic:
		return aggregate.Dynamic{Margin: g.Margin}
	case config.GridCentered:
		return aggregate.Centered{
			Center: model.Point{Lat: g.CenterLat, Lon: g.CenterLon},
			Buffer: g.Buffer,
		}
	default:
		return aggregate.Fixed{Bounds: aggregate.Bounds{
			MinLon: g.MinLon,
			MaxLon: g.MaxLon,
			MinLat: g.MinLat,
			MaxLat: g.MaxLat,
		}}
	}
}

func logReference(log *zap.Logger, ref *refgeo.Geography, rep *refgeo.Report) {
	log.Info("pipeline: reference loaded",
		zap.String("source", rep.Source),
		zap.String("format", string(rep.Format)),
		zap.Int("entries", ref.Len()),
		zap.Int("skipped", rep.SkippedTotal()),
		zap.Strings("preview", ref.Codes(5)),
	)
}
