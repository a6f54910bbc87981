package sample

import (
	"context"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/sells-group/geodensity/internal/fetcher"
	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/schema"
)

// ChunkedStrategy reads the source in fixed-size chunks, discards chunks
// that lack a key field, and keeps a uniform sub-sample of SampleSize/10
// rows from each remaining chunk until the pool holds SampleSize rows. A
// pool that overshoots is sampled down uniformly.
type ChunkedStrategy struct {
	src    Source
	binder schema.Binder
	opts   Options
	rng    *rand.Rand
	log    *zap.Logger
}

// Name returns StrategyChunked.
func (c *ChunkedStrategy) Name() string { return StrategyChunked }

// Sample runs one chunked pass over the source.
func (c *ChunkedStrategy) Sample(ctx context.Context) (*Result, error) {
	header, err := readHeader(c.src, c.opts.Delimiter)
	if err != nil {
		return nil, err
	}
	adapter, err := c.binder.Bind(header)
	if err != nil {
		return nil, eris.Wrap(err, "sample: chunked")
	}

	target := c.opts.SampleSize
	quota := max(1, target/10)

	pool := make([]model.Record, 0, target)
	chunk := make([]model.Record, 0, c.opts.ChunkSize)
	var chunks, discarded int

	// take moves a sub-sample of the buffered chunk into the pool and reports
	// whether more rows are wanted.
	take := func() bool {
		chunks++
		if err := schema.ValidateChunk(adapter, chunk); err != nil {
			discarded++
			c.log.Warn("sample: discarding chunk",
				zap.Int("chunk", chunks),
				zap.Int("rows", len(chunk)),
				zap.Error(err),
			)
		} else {
			for _, i := range drawPositions(min(quota, len(chunk)), len(chunk), c.rng) {
				pool = append(pool, chunk[i])
			}
		}
		chunk = chunk[:0]
		return len(pool) < target
	}

	stats, err := scan(ctx, c.src, c.opts.Delimiter, c.log, func(row fetcher.Row) bool {
		chunk = append(chunk, model.Record{Index: row.Index, Fields: row.Fields})
		if len(chunk) < c.opts.ChunkSize {
			return true
		}
		return take()
	})
	if err != nil {
		return nil, err
	}
	if len(chunk) > 0 {
		take()
	}

	records := pool
	if len(pool) > target {
		records = make([]model.Record, 0, target)
		for _, i := range drawPositions(target, len(pool), c.rng) {
			records = append(records, pool[i])
		}
	}
	sortByIndex(records)

	return &Result{
		Records:         records,
		Header:          header,
		Adapter:         adapter,
		Strategy:        StrategyChunked,
		RowsScanned:     stats.rows,
		Malformed:       stats.malformed,
		DiscardedChunks: discarded,
	}, nil
}

// drawPositions returns k distinct positions from [0, n) in ascending order.
func drawPositions(k, n int, rng *rand.Rand) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	idx := make([]int, min(k, n))
	sampleuv.WithoutReplacement(idx, n, rng)
	slices.Sort(idx)
	return idx
}
