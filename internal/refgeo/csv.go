package refgeo

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/geodensity/internal/fetcher"
	"github.com/sells-group/geodensity/internal/model"
)

// centroidRow is a tabular reference entry after header remapping.
type centroidRow struct {
	Code string `csv:"code"`
	Lat  string `csv:"latitude"`
	Lon  string `csv:"longitude"`
}

// LoadCSV reads a delimited centroid table (code, latitude, longitude).
func LoadCSV(r io.Reader, source string, delimiter rune, opts Options) (*Geography, *Report, error) {
	opts = opts.withDefaults()

	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	raw, err := cr.Read()
	if err == io.EOF {
		return nil, nil, eris.Errorf("refgeo: %s is empty", source)
	}
	if err != nil {
		return nil, nil, eris.Wrapf(err, "refgeo: read header of %s", source)
	}

	return decodeTable(cr, raw, source, FormatCSV, opts)
}

// LoadXLSX reads a centroid table from the first (or named) sheet of a workbook.
func LoadXLSX(path string, opts Options) (*Geography, *Report, error) {
	opts = opts.withDefaults()

	header, rows, err := fetcher.ReadXLSXTable(path, fetcher.XLSXOptions{SheetName: opts.Sheet})
	if err != nil {
		return nil, nil, eris.Wrap(err, "refgeo: read workbook")
	}
	return decodeTable(&sliceReader{rows: rows, width: len(header)}, header, path, FormatXLSX, opts)
}

func decodeTable(r csvutil.Reader, raw []string, source string, format Format, opts Options) (*Geography, *Report, error) {
	header, err := remapHeader(raw, opts)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "refgeo: %s", source)
	}

	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "refgeo: decoder for %s", source)
	}

	b := newBuilder(source, format, opts.CodeWidth)
	for {
		var row centroidRow
		err := dec.Decode(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.Is(err, csvutil.ErrFieldCount) || errors.As(err, &pe) {
				b.skip(SkipMalformed, "")
				continue
			}
			return nil, nil, eris.Wrapf(err, "refgeo: decode %s", source)
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(row.Lat), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(row.Lon), 64)
		if latErr != nil || lonErr != nil {
			b.skip(SkipBadCoord, row.Code)
			continue
		}
		b.add(row.Code, model.Point{Lat: lat, Lon: lon})
	}

	geo, rep := b.finish()
	return geo, rep, nil
}

// remapHeader renames the configured columns to the centroidRow tags and
// shadows any other column that would collide with them.
func remapHeader(raw []string, opts Options) ([]string, error) {
	want := map[string]string{
		strings.ToLower(opts.CodeField): "code",
		strings.ToLower(opts.LatField):  "latitude",
		strings.ToLower(opts.LonField):  "longitude",
	}
	found := make(map[string]bool, 3)

	header := make([]string, len(raw))
	for i, h := range raw {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if tag, ok := want[key]; ok && !found[tag] {
			header[i] = tag
			found[tag] = true
			continue
		}
		header[i] = "_" + key
	}

	for _, col := range []struct{ tag, name string }{
		{"code", opts.CodeField},
		{"latitude", opts.LatField},
		{"longitude", opts.LonField},
	} {
		if !found[col.tag] {
			return nil, eris.Errorf("missing column %q", col.name)
		}
	}
	return header, nil
}

// sliceReader adapts in-memory rows to csvutil.Reader, padding short rows.
type sliceReader struct {
	rows  [][]string
	width int
	pos   int
}

func (s *sliceReader) Read() ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	if len(row) > s.width {
		row = row[:s.width]
	}
	for len(row) < s.width {
		row = append(row, "")
	}
	return row, nil
}
