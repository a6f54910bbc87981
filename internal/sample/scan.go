package sample

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/fetcher"
)

// scanStats counts what a pass over the source saw.
type scanStats struct {
	rows      int64
	malformed int64
}

// scan streams the data rows of src to fn. Malformed rows are logged and
// skipped. fn returns false to stop the pass early.
func scan(ctx context.Context, src Source, delimiter rune, log *zap.Logger, fn func(fetcher.Row) bool) (scanStats, error) {
	var stats scanStats

	r, err := src.Open()
	if err != nil {
		return stats, err
	}
	defer r.Close() //nolint:errcheck

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var malformed atomic.Int64
	rowCh, errCh := fetcher.StreamCSV(passCtx, r, fetcher.CSVOptions{
		Delimiter:     delimiter,
		HasHeader:     true,
		SkipMalformed: true,
		OnMalformed: func(e *fetcher.MalformedRowError) {
			malformed.Add(1)
			log.Warn("sample: skipping malformed row",
				zap.Int64("row", e.Index),
				zap.Int("line", e.Line),
				zap.Error(e.Err),
			)
		},
	})

	stopped := false
	for row := range rowCh {
		stats.rows++
		if !fn(row) {
			stopped = true
			cancel()
			break
		}
	}
	// Drain so the reader goroutine exits.
	for range rowCh {
	}
	streamErr := <-errCh
	stats.malformed = malformed.Load()

	if err := ctx.Err(); err != nil {
		return stats, eris.Wrap(err, "sample: scan cancelled")
	}
	if streamErr != nil && !stopped {
		return stats, eris.Wrapf(ErrSourceParse, "%s: %v", src.Name(), streamErr)
	}
	return stats, nil
}
