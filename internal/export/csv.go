package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/model"
)

// WriteDensityCSV writes the non-empty cells of a grid.
func WriteDensityCSV(path string, g *aggregate.Grid) error {
	return writeCSV(path, g.Cells(), aggregate.Cell{})
}

// WriteRoutesCSV writes the top-K route table in rank order.
func WriteRoutesCSV(path string, routes []aggregate.Route) error {
	return writeCSV(path, routes, aggregate.Route{})
}

// writeCSV encodes rows with a header taken from the zero value, so an
// empty slice still produces a header-only file.
func writeCSV[T any](path string, rows []T, zero T) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if err := enc.EncodeHeader(zero); err != nil {
		return eris.Wrapf(err, "export: header %s", path)
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "export: encode row %d of %s", i, path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// WriteSampleCSV writes sampled rows under the source header, preceded by
// the source row index.
func WriteSampleCSV(path string, header []string, recs []model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	row := make([]string, 0, len(header)+1)
	row = append(append(row, "row_index"), header...)
	if err := w.Write(row); err != nil {
		return eris.Wrap(err, "export: sample header")
	}
	for _, rec := range recs {
		row = append(append(row[:0], formatIndex(rec.Index)), rec.Fields...)
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "export: sample row %d", rec.Index)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

func formatIndex(i int64) string { return strconv.FormatInt(i, 10) }
