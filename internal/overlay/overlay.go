// Package overlay reads and writes the optional heavy-hitters point file
// drawn on top of density grids. A missing file is not fatal: callers skip
// the overlay.
package overlay

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/model"
)

// ErrOverlayMissing is returned when the overlay file does not exist.
var ErrOverlayMissing = eris.New("overlay: source missing")

// HeavyHitter is one overlay point.
type HeavyHitter struct {
	Index     int64   `csv:"index" json:"index" yaml:"index"`
	Latitude  float64 `csv:"latitude" json:"latitude" yaml:"latitude"`
	Longitude float64 `csv:"longitude" json:"longitude" yaml:"longitude"`
}

// Point returns the coordinate.
func (h HeavyHitter) Point() model.Point {
	return model.Point{Lat: h.Latitude, Lon: h.Longitude}
}

// Load reads every point of an overlay file. Rows with invalid
// coordinates are skipped.
func Load(path string) ([]HeavyHitter, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrOverlayMissing, "%s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "overlay: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "overlay: read header of %s", path)
	}

	log := zap.L().With(zap.String("component", "overlay"), zap.String("path", path))
	var out []HeavyHitter
	skipped := 0
	for {
		var h HeavyHitter
		err := dec.Decode(&h)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "overlay: decode %s", path)
		}
		if !h.Point().Valid() {
			skipped++
			continue
		}
		out = append(out, h)
	}

	log.Info("overlay: loaded heavy hitters", zap.Int("points", len(out)), zap.Int("skipped", skipped))
	return out, nil
}

// Append adds points to an overlay file, creating it if needed. The header
// is written only when the file is empty.
func Append(path string, points []HeavyHitter) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "overlay: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	fi, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "overlay: stat %s", path)
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = false
	if fi.Size() == 0 {
		if err := enc.EncodeHeader(HeavyHitter{}); err != nil {
			return eris.Wrap(err, "overlay: write header")
		}
	}
	for _, p := range points {
		if err := enc.Encode(p); err != nil {
			return eris.Wrapf(err, "overlay: write point %d", p.Index)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "overlay: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "overlay: close %s", path)
}

// Drain truncates an overlay file to its header row, consuming the points
// a producer handed off. It returns the number of data rows removed. Drain
// is never run implicitly by the pipeline.
func Drain(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, eris.Wrapf(ErrOverlayMissing, "%s", path)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "overlay: read %s", path)
	}

	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		return 0, nil
	}
	header, rest := data[:end+1], data[end+1:]
	rows := bytes.Count(rest, []byte{'\n'})
	if len(rest) > 0 && rest[len(rest)-1] != '\n' {
		rows++
	}

	if err := os.WriteFile(path, header, 0o644); err != nil {
		return 0, eris.Wrapf(err, "overlay: truncate %s", path)
	}
	zap.L().Info("overlay: drained", zap.String("path", path), zap.Int("rows", rows))
	return rows, nil
}
