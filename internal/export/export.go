package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/overlay"
)

// Output formats accepted in output.formats.
const (
	FormatCSV  = "csv"
	FormatYAML = "yaml"
	FormatXLSX = "xlsx"
)

// File names inside the output directory.
const (
	SummaryFile      = "summary.yaml"
	ResultsYAMLFile  = "results.yaml"
	RoutesFile       = "routes.csv"
	SampleFile       = "sample.csv"
	XLSXFile         = "results.xlsx"
	HeavyHittersFile = "heavy_hitters.csv"
)

// DensityFile returns the CSV file name for the grid of one track position.
func DensityFile(endpoint int) string {
	return fmt.Sprintf("density_%d.csv", endpoint)
}

var knownFormats = []string{FormatCSV, FormatYAML, FormatXLSX}

// Bundle is everything a run hands to the writers.
type Bundle struct {
	RunID   string
	Summary *model.RunSummary
	// Output is nil when nothing survived geocoding.
	Output *aggregate.Output
	// Overlay points loaded for this run, if any.
	Overlay []overlay.HeavyHitter
	// HeavyHitters is how many of the densest origin cells to append to
	// the heavy-hitters file. Zero disables it.
	HeavyHitters int
	// Header and Sample are written as sample.csv when Sample is non-nil.
	Header []string
	Sample []model.Record
}

// Empty reports whether the bundle carries no aggregated data.
func (b *Bundle) Empty() bool {
	return b.Output.Empty()
}

// Writer writes run bundles into a directory.
type Writer struct {
	dir     string
	formats map[string]bool
	now     func() time.Time
	log     *zap.Logger
}

// New returns a Writer for dir. Unknown formats are rejected.
func New(dir string, formats []string) (*Writer, error) {
	set := make(map[string]bool, len(formats))
	for _, f := range formats {
		if !slices.Contains(knownFormats, f) {
			return nil, eris.Errorf("export: unknown format %q", f)
		}
		set[f] = true
	}
	return &Writer{
		dir:     dir,
		formats: set,
		now:     func() time.Time { return time.Now().UTC() },
		log:     zap.L().With(zap.String("component", "export")),
	}, nil
}

// WriteAll writes every file the bundle and the configured formats call
// for and returns their paths, sorted. The summary is always written; grid
// outputs are skipped for an empty bundle.
func (w *Writer) WriteAll(ctx context.Context, b *Bundle) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create dir %s", w.dir)
	}

	var (
		mu    sync.Mutex
		files []string
	)
	g, gctx := errgroup.WithContext(ctx)
	add := func(name string, fn func(path string) error) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(w.dir, name)
			if err := fn(path); err != nil {
				return err
			}
			mu.Lock()
			files = append(files, path)
			mu.Unlock()
			return nil
		})
	}

	generated := w.now()
	add(SummaryFile, func(p string) error { return WriteSummary(p, b, generated) })

	if !b.Empty() {
		out := b.Output
		if w.formats[FormatCSV] {
			for _, grid := range out.Density {
				add(DensityFile(grid.Endpoint), func(p string) error { return WriteDensityCSV(p, grid) })
			}
			add(RoutesFile, func(p string) error { return WriteRoutesCSV(p, out.Routes) })
		}
		if w.formats[FormatYAML] {
			add(ResultsYAMLFile, func(p string) error { return WriteResultsYAML(p, b.RunID, out) })
		}
		if w.formats[FormatXLSX] {
			add(XLSXFile, func(p string) error { return WriteXLSX(p, b) })
		}
		if b.HeavyHitters > 0 && len(out.Density) > 0 {
			add(HeavyHittersFile, func(p string) error {
				return overlay.Append(p, HeavyHitters(out.Density[0], b.HeavyHitters))
			})
		}
	}
	if b.Sample != nil {
		add(SampleFile, func(p string) error { return WriteSampleCSV(p, b.Header, b.Sample) })
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "export: write all")
	}

	sort.Strings(files)
	w.log.Info("export: wrote outputs",
		zap.String("run_id", b.RunID),
		zap.String("dir", w.dir),
		zap.Int("files", len(files)),
		zap.Bool("empty", b.Empty()),
	)
	return files, nil
}
