package refgeo

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/fetcher"
)

// LoadShapefile reads an ESRI shapefile whose records carry the location code
// as a DBF attribute, deriving each record's centroid from its shape.
func LoadShapefile(path string, opts Options) (*Geography, *Report, error) {
	opts = opts.withDefaults()

	reader, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "refgeo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, opts.CodeField)
	if codeIdx < 0 {
		return nil, nil, eris.Errorf("refgeo: shapefile %s has no field %q", path, opts.CodeField)
	}

	b := newBuilder(path, FormatShapefile, opts.CodeWidth)
	for reader.Next() {
		_, shape := reader.Shape()

		code := strings.TrimSpace(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		if code == "" {
			b.skip(SkipNoCode, "")
			continue
		}

		g := shapeToGeom(shape)
		if g == nil {
			b.skip(SkipNoGeometry, code)
			continue
		}

		p, err := Centroid(g)
		if err != nil {
			b.skip(SkipBadGeometry, code)
			continue
		}
		b.add(code, p)
	}

	geo, rep := b.finish()
	return geo, rep, nil
}

// LoadShapefileZIP extracts a zipped shapefile bundle (as distributed by
// TIGER/Line) into a scratch directory and loads the .shp inside it.
func LoadShapefileZIP(path string, opts Options) (*Geography, *Report, error) {
	dir, err := os.MkdirTemp(opts.TempDir, "refgeo-*")
	if err != nil {
		return nil, nil, eris.Wrap(err, "refgeo: create extract dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	files, err := fetcher.ExtractZIP(path, dir)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "refgeo: extract %s", path)
	}
	shpPath, err := fetcher.FindByExt(files, ".shp")
	if err != nil {
		return nil, nil, eris.Wrapf(err, "refgeo: %s", path)
	}

	geo, rep, err := LoadShapefile(shpPath, opts)
	if err != nil {
		return nil, nil, err
	}
	rep.Source = path
	return geo, rep, nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// shapeToGeom converts a go-shp shape to a go-geom geometry.
// Returns nil for null, empty, or unsupported shapes.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		flat := make([]float64, 0, 2*len(s.Points))
		for _, p := range s.Points {
			flat = append(flat, p.X, p.Y)
		}
		return geom.NewMultiPointFlat(geom.XY, flat)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	default:
		return nil
	}
}

// partRange returns the point index range of part i.
func partRange(parts []int32, numPoints int, i int) (int32, int32) {
	start := parts[i]
	end := int32(numPoints)
	if i+1 < len(parts) {
		end = parts[i+1]
	}
	return start, end
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY)
	for i := 0; i < int(pl.NumParts); i++ {
		start, end := partRange(pl.Parts, len(pl.Points), i)
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(pl.Points[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("refgeo: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon groups shapefile rings into polygons. Shapefiles
// store outer rings clockwise and holes counter-clockwise; a hole belongs to
// the outer ring preceding it. Files that do not follow the orientation rule
// (all rings wound the same way) get one polygon per ring.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	rings := make([]*geom.LinearRing, 0, p.NumParts)
	areas := make([]float64, 0, p.NumParts)
	var cw, ccw int
	for i := 0; i < int(p.NumParts); i++ {
		start, end := partRange(p.Parts, len(p.Points), i)
		if end-start < 3 {
			continue
		}
		pts := p.Points[start:end]
		a := signedArea(pts)
		if a == 0 {
			continue
		}
		if a < 0 {
			cw++
		} else {
			ccw++
		}
		rings = append(rings, geom.NewLinearRingFlat(geom.XY, flatPoints(pts)))
		areas = append(areas, a)
	}

	mixed := cw > 0 && ccw > 0
	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("refgeo: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i, ring := range rings {
		isHole := mixed && areas[i] > 0
		if isHole && current != nil {
			if err := current.Push(ring); err != nil {
				zap.L().Debug("refgeo: skipping malformed hole", zap.Int("ring", i), zap.Error(err))
			}
			continue
		}
		flush()
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("refgeo: skipping malformed ring", zap.Int("ring", i), zap.Error(err))
			current = nil
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea returns the shoelace area of a ring: negative when clockwise.
func signedArea(pts []shp.Point) float64 {
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return sum / 2
}

func flatPoints(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
