package refgeo

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/geodensity/internal/model"
)

// LoadGeoJSON reads a FeatureCollection whose features carry the location
// code as a property and an area geometry. Each feature contributes the
// centroid of its geometry.
func LoadGeoJSON(r io.Reader, source string, opts Options) (*Geography, *Report, error) {
	opts = opts.withDefaults()

	// Features are decoded one at a time so a single bad geometry does not
	// fail the collection.
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, nil, eris.Wrapf(err, "refgeo: decode %s", source)
	}
	if fc.Type != "FeatureCollection" {
		return nil, nil, eris.Errorf("refgeo: %s is a %q, want FeatureCollection", source, fc.Type)
	}

	b := newBuilder(source, FormatGeoJSON, opts.CodeWidth)
	for _, raw := range fc.Features {
		var f geojson.Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			b.skip(SkipBadGeometry, "")
			continue
		}

		code, ok := propertyString(f.Properties, opts.CodeField)
		if !ok {
			b.skip(SkipNoCode, "")
			continue
		}
		if f.Geometry == nil {
			b.skip(SkipNoGeometry, code)
			continue
		}
		if _, isCollection := f.Geometry.(*geom.GeometryCollection); isCollection {
			b.skip(SkipBadGeometry, code)
			continue
		}
		if len(f.Geometry.FlatCoords()) == 0 {
			b.skip(SkipNoGeometry, code)
			continue
		}

		p, err := Centroid(f.Geometry)
		if err != nil {
			b.skip(SkipBadGeometry, code)
			continue
		}
		b.add(code, p)
	}

	geo, rep := b.finish()
	return geo, rep, nil
}

// Centroid returns the centroid of a geometry: area-weighted for polygons,
// length-weighted for lines, the mean for points.
func Centroid(g geom.T) (model.Point, error) {
	c, err := xy.Centroid(g)
	if err != nil {
		return model.Point{}, eris.Wrap(err, "refgeo: centroid")
	}
	if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) || math.IsInf(c[0], 0) || math.IsInf(c[1], 0) {
		return model.Point{}, eris.New("refgeo: degenerate centroid")
	}
	return model.Point{Lat: c[1], Lon: c[0]}, nil
}

// propertyString looks a property up case-insensitively and renders it as a
// string. Numeric ids decode as float64 and are printed without a fraction.
func propertyString(props map[string]interface{}, name string) (string, bool) {
	v, ok := props[name]
	if !ok {
		for k, pv := range props {
			if strings.EqualFold(k, name) {
				v, ok = pv, true
				break
			}
		}
	}
	if !ok || v == nil {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
