package sample

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/sells-group/geodensity/internal/fetcher"
	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/schema"
)

// sparseDrawLimit bounds the sample sizes drawn with sampleuv when the draw
// is sparse; its rejection loop grows quadratically with the sample size.
const sparseDrawLimit = 1 << 12

// overrunTolerance is the fraction of the estimate a source may exceed
// before the estimate is rejected.
const overrunTolerance = 0.1

// SkipRowStrategy estimates the row count M from the source size, fixes the
// set of row indices to keep before reading, and streams the source once.
// Keeping a uniform N-subset of [0, M) is the same as excluding a uniform
// (M-N)-subset. The pass reads the whole source; when it holds more rows
// than the estimate allows for, the sample is rejected with
// ErrSourceEstimation so the rows past M are not silently excluded.
type SkipRowStrategy struct {
	src    Source
	binder schema.Binder
	opts   Options
	rng    *rand.Rand
	log    *zap.Logger
}

// Name returns StrategySkipRow.
func (s *SkipRowStrategy) Name() string { return StrategySkipRow }

// Sample runs one pass over the source.
func (s *SkipRowStrategy) Sample(ctx context.Context) (*Result, error) {
	size, err := s.src.Size()
	if err != nil {
		return nil, eris.Wrapf(ErrSourceEstimation, "%v", err)
	}
	est := size / int64(s.opts.AvgRowBytes)
	target := s.opts.SampleSize
	if est <= int64(target) {
		return nil, eris.Wrapf(ErrSourceEstimation, "estimated %d rows from %d bytes, target %d", est, size, target)
	}

	header, err := readHeader(s.src, s.opts.Delimiter)
	if err != nil {
		return nil, err
	}
	adapter, err := s.binder.Bind(header)
	if err != nil {
		return nil, err
	}

	keep := drawIndices(target, est, s.rng)
	s.log.Debug("sample: drew row indices",
		zap.Int64("estimated_rows", est),
		zap.Int("keep", len(keep)),
		zap.Int64("exclude", est-int64(len(keep))),
	)

	limit := est + int64(math.Ceil(float64(est)*overrunTolerance))
	overrun := false
	records := make([]model.Record, 0, target)
	next := 0
	stats, err := scan(ctx, s.src, s.opts.Delimiter, s.log, func(row fetcher.Row) bool {
		if row.Index >= limit {
			overrun = true
			return false
		}
		for next < len(keep) && keep[next] < row.Index {
			// Kept index fell on a malformed row.
			next++
		}
		if next < len(keep) && keep[next] == row.Index {
			records = append(records, model.Record{Index: row.Index, Fields: row.Fields})
			next++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if overrun {
		return nil, eris.Wrapf(ErrSourceEstimation,
			"source has more than %d rows, estimated %d from %d bytes", limit, est, size)
	}

	return &Result{
		Records:       records,
		Header:        header,
		Adapter:       adapter,
		Strategy:      StrategySkipRow,
		EstimatedRows: est,
		RowsScanned:   stats.rows,
		Malformed:     stats.malformed,
	}, nil
}

// drawIndices returns n distinct indices from [0, m) in ascending order.
func drawIndices(n int, m int64, rng *rand.Rand) []int64 {
	if n <= 0 || m <= 0 {
		return nil
	}
	if int64(n) > m {
		n = int(m)
	}

	out := make([]int64, 0, n)
	if n <= sparseDrawLimit || int64(n) > m/4 {
		idx := make([]int, n)
		sampleuv.WithoutReplacement(idx, int(m), rng)
		for _, i := range idx {
			out = append(out, int64(i))
		}
	} else {
		// Floyd's algorithm.
		seen := make(map[int64]struct{}, n)
		for j := m - int64(n); j < m; j++ {
			t := rng.Int64N(j + 1)
			if _, dup := seen[t]; dup {
				t = j
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}
