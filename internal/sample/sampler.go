// Package sample reduces an oversized record source to a bounded,
// reproducible sample. The primary strategy decides in advance which row
// indices to keep and streams the source once; if the source cannot be
// sized, parsed or bound to its key fields, a chunked strategy takes over.
package sample

import (
	"cmp"
	"context"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/schema"
)

// Errors that send the sampler to its fallback strategy.
var (
	// ErrSourceEstimation means the row count of the source could not be
	// estimated or is not larger than the target.
	ErrSourceEstimation = eris.New("sample: cannot estimate source size")
	// ErrSourceParse means the source could not be parsed as a table.
	ErrSourceParse = eris.New("sample: cannot parse source")
)

// Strategy names.
const (
	StrategySkipRow = "skip_row"
	StrategyChunked = "chunked"
)

// Defaults.
const (
	DefaultSampleSize  = 100000
	DefaultChunkSize   = 50000
	DefaultAvgRowBytes = 200
)

// Options configures a Sampler.
type Options struct {
	SampleSize  int  // N_target
	ChunkSize   int  // rows per chunk in the fallback strategy
	AvgRowBytes int  // row-size heuristic for estimating the row count
	Delimiter   rune // default ','
}

func (o Options) withDefaults() Options {
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.AvgRowBytes <= 0 {
		o.AvgRowBytes = DefaultAvgRowBytes
	}
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	return o
}

// Result is the sampled record set plus what it took to produce it.
type Result struct {
	Records []model.Record
	Header  []string
	Adapter schema.Adapter

	Strategy        string
	EstimatedRows   int64
	RowsScanned     int64
	Malformed       int64
	DiscardedChunks int
	FallbackReason  string
}

// Strategy produces a sample from a source.
type Strategy interface {
	Name() string
	Sample(ctx context.Context) (*Result, error)
}

// Sampler runs the skip-row strategy and falls back to chunked sampling on
// the failures listed in ShouldFallback.
type Sampler struct {
	primary  Strategy
	fallback Strategy
	log      *zap.Logger
}

// New creates a Sampler over src. rng drives every random draw; the same
// seed and source give the same sample.
func New(src Source, binder schema.Binder, opts Options, rng *rand.Rand) *Sampler {
	opts = opts.withDefaults()
	log := zap.L().With(zap.String("component", "sample"), zap.String("source", src.Name()))
	return &Sampler{
		primary:  &SkipRowStrategy{src: src, binder: binder, opts: opts, rng: rng, log: log},
		fallback: &ChunkedStrategy{src: src, binder: binder, opts: opts, rng: rng, log: log},
		log:      log,
	}
}

// Sample returns at most SampleSize records. An under-filled sample is not
// an error.
func (s *Sampler) Sample(ctx context.Context) (*Result, error) {
	res, err := s.tryDirect(ctx)
	if err == nil {
		s.logResult(res)
		return res, nil
	}
	if !ShouldFallback(err) {
		return nil, err
	}

	s.log.Warn("sample: primary strategy failed, falling back",
		zap.String("strategy", s.primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err),
	)
	res, ferr := s.chunkedFallback(ctx)
	if ferr != nil {
		return nil, ferr
	}
	res.FallbackReason = err.Error()
	s.logResult(res)
	return res, nil
}

func (s *Sampler) tryDirect(ctx context.Context) (*Result, error) {
	return s.primary.Sample(ctx)
}

func (s *Sampler) chunkedFallback(ctx context.Context) (*Result, error) {
	return s.fallback.Sample(ctx)
}

func (s *Sampler) logResult(res *Result) {
	s.log.Info("sample: complete",
		zap.String("strategy", res.Strategy),
		zap.Int("sampled", len(res.Records)),
		zap.Int64("estimated_rows", res.EstimatedRows),
		zap.Int64("rows_scanned", res.RowsScanned),
		zap.Int64("malformed", res.Malformed),
		zap.Int("discarded_chunks", res.DiscardedChunks),
	)
}

// ShouldFallback reports whether err is one of the primary-strategy failures
// the chunked strategy recovers from.
func ShouldFallback(err error) bool {
	return eris.Is(err, ErrSourceEstimation) ||
		eris.Is(err, ErrSourceParse) ||
		eris.Is(err, schema.ErrMissingKeyField)
}

// sortByIndex orders records by source position.
func sortByIndex(recs []model.Record) {
	slices.SortFunc(recs, func(a, b model.Record) int { return cmp.Compare(a.Index, b.Index) })
}
