package export

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/model"
)

// SummaryDoc is the layout of summary.yaml.
type SummaryDoc struct {
	RunID       string            `yaml:"run_id"`
	GeneratedAt time.Time         `yaml:"generated_at"`
	Empty       bool              `yaml:"empty"`
	Summary     *model.RunSummary `yaml:"summary"`
	Bounds      *aggregate.Bounds `yaml:"bounds,omitempty"`
	Grids       []GridDoc         `yaml:"grids,omitempty"`
}

// GridDoc describes one density grid without its cells.
type GridDoc struct {
	Endpoint    int              `yaml:"endpoint"`
	Bins        int              `yaml:"bins"`
	Total       int              `yaml:"total"`
	OutOfBounds int              `yaml:"out_of_bounds"`
	Cells       int              `yaml:"cells"`
	Data        []aggregate.Cell `yaml:"data,omitempty"`
}

// ResultsDoc is the layout of results.yaml.
type ResultsDoc struct {
	RunID  string            `yaml:"run_id"`
	Bounds aggregate.Bounds  `yaml:"bounds"`
	Grids  []GridDoc         `yaml:"grids"`
	Routes []aggregate.Route `yaml:"routes"`
}

func gridDocs(out *aggregate.Output, withCells bool) []GridDoc {
	docs := make([]GridDoc, 0, len(out.Density))
	for _, g := range out.Density {
		cells := g.Cells()
		d := GridDoc{
			Endpoint:    g.Endpoint,
			Bins:        g.X.Bins,
			Total:       g.Total,
			OutOfBounds: g.OutOfBounds,
			Cells:       len(cells),
		}
		if withCells {
			d.Data = cells
		}
		docs = append(docs, d)
	}
	return docs
}

// WriteSummary writes summary.yaml for a bundle.
func WriteSummary(path string, b *Bundle, generated time.Time) error {
	doc := SummaryDoc{
		RunID:       b.RunID,
		GeneratedAt: generated,
		Empty:       b.Empty(),
		Summary:     b.Summary,
	}
	if !b.Empty() {
		bounds := b.Output.Bounds
		doc.Bounds = &bounds
		doc.Grids = gridDocs(b.Output, false)
	}
	return writeYAML(path, doc)
}

// WriteResultsYAML writes the full aggregation output, cells included.
func WriteResultsYAML(path, runID string, out *aggregate.Output) error {
	return writeYAML(path, ResultsDoc{
		RunID:  runID,
		Bounds: out.Bounds,
		Grids:  gridDocs(out, true),
		Routes: out.Routes,
	})
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "export: marshal %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
