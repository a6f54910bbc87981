package sample

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/schema"
)

// rowBytes is the width of every row written by makeCSV.
const rowBytes = 13

type memSource struct {
	data    []byte
	sizeErr error
}

func (m memSource) Name() string { return "mem" }

func (m memSource) Size() (int64, error) {
	if m.sizeErr != nil {
		return 0, m.sizeErr
	}
	return int64(len(m.data)), nil
}

func (m memSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

// makeCSV writes n fixed-width rows "iiiiii,ccccc".
func makeCSV(n int, code func(i int) string) []byte {
	var b bytes.Buffer
	b.WriteString("id,code\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%06d,%s\n", i, code(i))
	}
	return b.Bytes()
}

func constCode(int) string { return "00100" }

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 1))
}

var codeColumn = schema.Columns{Names: []string{"code"}, Width: 5}

func indices(recs []model.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.Index
	}
	return out
}

func assertAscendingDistinct(t *testing.T, idx []int64) {
	t.Helper()
	for i := 1; i < len(idx); i++ {
		require.Less(t, idx[i-1], idx[i], "indices must be strictly ascending at %d", i)
	}
}

func TestDrawIndices_SameSeedSameSet(t *testing.T) {
	a := drawIndices(1000, 1_000_000, newRNG(42))
	b := drawIndices(1000, 1_000_000, newRNG(42))
	c := drawIndices(1000, 1_000_000, newRNG(43))

	require.Len(t, a, 1000)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assertAscendingDistinct(t, a)
	assert.Less(t, a[len(a)-1], int64(1_000_000))
	assert.GreaterOrEqual(t, a[0], int64(0))
}

func TestDrawIndices_Sparse(t *testing.T) {
	n := sparseDrawLimit + 1000
	a := drawIndices(n, 10_000_000, newRNG(1))
	b := drawIndices(n, 10_000_000, newRNG(1))

	require.Len(t, a, n)
	assert.Equal(t, a, b)
	assertAscendingDistinct(t, a)
	assert.Less(t, a[len(a)-1], int64(10_000_000))
}

func TestDrawIndices_Edges(t *testing.T) {
	assert.Nil(t, drawIndices(0, 10, newRNG(1)))
	assert.Nil(t, drawIndices(5, 0, newRNG(1)))
	assert.Equal(t, []int64{0, 1, 2}, drawIndices(10, 3, newRNG(1)))
}

func TestSampler_SkipRow(t *testing.T) {
	src := memSource{data: makeCSV(20000, constCode)}
	s := New(src, codeColumn, Options{SampleSize: 500, AvgRowBytes: rowBytes}, newRNG(42))

	res, err := s.Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategySkipRow, res.Strategy)
	assert.Equal(t, int64(20000), res.EstimatedRows)
	assert.Empty(t, res.FallbackReason)
	assert.Equal(t, []string{"id", "code"}, res.Header)
	require.Len(t, res.Records, 500)
	assertAscendingDistinct(t, indices(res.Records))

	for _, r := range res.Records {
		assert.Equal(t, fmt.Sprintf("%06d", r.Index), r.Fields[0])
	}
	assert.Equal(t, []string{"00100"}, res.Adapter.LocationCodes(res.Records[0]))
}

func TestSampler_Reproducible(t *testing.T) {
	src := memSource{data: makeCSV(20000, constCode)}
	opts := Options{SampleSize: 300, AvgRowBytes: rowBytes}

	run := func(seed uint64) []int64 {
		res, err := New(src, codeColumn, opts, newRNG(seed)).Sample(context.Background())
		require.NoError(t, err)
		return indices(res.Records)
	}

	first := run(7)
	assert.Equal(t, first, run(7))
	assert.NotEqual(t, first, run(8))
}

func TestSampler_SampleBound(t *testing.T) {
	tests := []struct {
		name   string
		rows   int
		target int
	}{
		{"much larger source", 10000, 100},
		{"slightly larger source", 1100, 1000},
		{"equal", 1000, 1000},
		{"smaller source", 50, 1000},
		{"empty source", 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := memSource{data: makeCSV(tt.rows, constCode)}
			res, err := New(src, codeColumn, Options{
				SampleSize:  tt.target,
				ChunkSize:   100,
				AvgRowBytes: rowBytes,
			}, newRNG(3)).Sample(context.Background())
			require.NoError(t, err)

			assert.LessOrEqual(t, len(res.Records), tt.target)
			assert.LessOrEqual(t, len(res.Records), tt.rows)
			assertAscendingDistinct(t, indices(res.Records))
		})
	}
}

func TestSampler_FallbackOnEstimation(t *testing.T) {
	src := memSource{data: makeCSV(100, constCode)}
	res, err := New(src, codeColumn, Options{
		SampleSize:  1000,
		ChunkSize:   10,
		AvgRowBytes: rowBytes,
	}, newRNG(1)).Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyChunked, res.Strategy)
	assert.Contains(t, res.FallbackReason, "estimate")
	// Quota is 100 per chunk, capped by the 10-row chunk size.
	assert.Len(t, res.Records, 100)
}

func TestSampler_UnderestimatedRowCountFallsBack(t *testing.T) {
	// 13-byte rows against a 200-byte heuristic: the estimate covers 6.5% of
	// the source.
	src := memSource{data: makeCSV(100_000, constCode)}
	res, err := New(src, codeColumn, Options{
		SampleSize:  1000,
		ChunkSize:   10_000,
		AvgRowBytes: 200,
	}, newRNG(42)).Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyChunked, res.Strategy)
	assert.Contains(t, res.FallbackReason, "more than")
	assert.Equal(t, int64(100_000), res.RowsScanned)
	require.Len(t, res.Records, 1000)
	assertAscendingDistinct(t, indices(res.Records))
	assert.GreaterOrEqual(t, res.Records[len(res.Records)-1].Index, int64(90_000))
}

func TestSampler_SmallUnderestimateKeepsSkipRow(t *testing.T) {
	// 14-byte estimate over 13-byte rows is 7% short, inside the tolerance.
	src := memSource{data: makeCSV(20000, constCode)}
	res, err := New(src, codeColumn, Options{SampleSize: 500, AvgRowBytes: rowBytes + 1}, newRNG(42)).
		Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategySkipRow, res.Strategy)
	assert.Equal(t, int64(20000), res.RowsScanned)
	require.Len(t, res.Records, 500)
	assert.Less(t, res.Records[len(res.Records)-1].Index, res.EstimatedRows)
}

func TestSampler_FallbackOnSizeError(t *testing.T) {
	src := memSource{data: makeCSV(100, constCode), sizeErr: errors.New("stat failed")}
	res, err := New(src, codeColumn, Options{SampleSize: 20, ChunkSize: 10}, newRNG(1)).Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyChunked, res.Strategy)
	assert.Contains(t, res.FallbackReason, "stat failed")
	assert.Len(t, res.Records, 20)
}

func TestSampler_ChunkedOvershootSampledDown(t *testing.T) {
	src := memSource{data: makeCSV(1000, constCode)}
	res, err := New(src, codeColumn, Options{
		SampleSize:  25,
		ChunkSize:   10,
		AvgRowBytes: 1 << 20,
	}, newRNG(5)).Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyChunked, res.Strategy)
	require.Len(t, res.Records, 25)
	assertAscendingDistinct(t, indices(res.Records))
	// 13 chunks of 10 rows fill the pool; nothing past them is read.
	assert.Equal(t, int64(130), res.RowsScanned)
	assert.Less(t, res.Records[len(res.Records)-1].Index, int64(130))
}

func TestSampler_ChunkedDiscardsChunksWithoutKeys(t *testing.T) {
	code := func(i int) string {
		if i < 10 {
			return "     "
		}
		return "00100"
	}
	src := memSource{data: makeCSV(40, code)}
	res, err := New(src, codeColumn, Options{
		SampleSize:  100,
		ChunkSize:   10,
		AvgRowBytes: rowBytes,
	}, newRNG(1)).Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyChunked, res.Strategy)
	assert.Equal(t, 1, res.DiscardedChunks)
	require.Len(t, res.Records, 30)
	for _, r := range res.Records {
		assert.GreaterOrEqual(t, r.Index, int64(10))
	}
}

func TestSampler_MissingKeyColumnIsFatal(t *testing.T) {
	src := memSource{data: makeCSV(1000, constCode)}
	res, err := New(src, schema.Columns{Names: []string{"pickup_zone"}}, Options{
		SampleSize:  10,
		AvgRowBytes: rowBytes,
	}, newRNG(1)).Sample(context.Background())

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, eris.Is(err, schema.ErrMissingKeyField))
}

func TestSampler_MalformedRowsSkipped(t *testing.T) {
	var b bytes.Buffer
	b.WriteString("id,code\n")
	for i := 0; i < 50; i++ {
		if i%10 == 5 {
			b.WriteString("bad\"row,00100\n")
			continue
		}
		fmt.Fprintf(&b, "%06d,00100\n", i)
	}
	src := memSource{data: b.Bytes()}

	res, err := New(src, codeColumn, Options{SampleSize: 100, ChunkSize: 100}, newRNG(1)).Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StrategyChunked, res.Strategy)
	assert.Equal(t, int64(5), res.Malformed)
	assert.Len(t, res.Records, 10)
	for _, r := range res.Records {
		assert.NotEqual(t, int64(5), r.Index%10)
		assert.Equal(t, fmt.Sprintf("%06d", r.Index), r.Fields[0])
	}
}

func TestSampler_EmptySourceFallsBackToParseError(t *testing.T) {
	res, err := New(memSource{}, codeColumn, Options{SampleSize: 10}, newRNG(1)).Sample(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, eris.Is(err, ErrSourceParse))
}

func TestSampler_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := memSource{data: makeCSV(20000, constCode)}
	res, err := New(src, codeColumn, Options{SampleSize: 10, AvgRowBytes: rowBytes}, newRNG(1)).Sample(ctx)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, ShouldFallback(err))
}

func TestShouldFallback(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"estimation", eris.Wrap(ErrSourceEstimation, "x"), true},
		{"parse", eris.Wrapf(ErrSourceParse, "bad quote"), true},
		{"missing key", eris.Wrapf(schema.ErrMissingKeyField, "column %q", "code"), true},
		{"cancelled", context.Canceled, false},
		{"other", errors.New("disk on fire"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFallback(tt.err))
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.csv")
	require.NoError(t, os.WriteFile(path, makeCSV(5000, constCode), 0o644))

	res, err := New(FileSource{Path: path}, codeColumn, Options{
		SampleSize:  50,
		AvgRowBytes: rowBytes,
	}, newRNG(9)).Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StrategySkipRow, res.Strategy)
	assert.Len(t, res.Records, 50)

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")}.Size()
	assert.Error(t, err)
}
