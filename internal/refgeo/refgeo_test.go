package refgeo

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/geodensity/internal/model"
)

func TestNew_LookupPadsShortCodes(t *testing.T) {
	geo, rep := New(5, map[string]model.Point{
		"00100": {Lat: 40.0, Lon: -74.0},
		"00200": {Lat: 41.0, Lon: -73.0},
	})

	assert.Equal(t, 2, geo.Len())
	assert.Equal(t, 2, rep.Loaded)
	assert.Equal(t, 0, rep.SkippedTotal())

	p, ok := geo.Lookup("100")
	require.True(t, ok)
	assert.Equal(t, model.Point{Lat: 40.0, Lon: -74.0}, p)

	_, ok = geo.Lookup("00999")
	assert.False(t, ok)
}

func TestNew_DuplicatesAfterNormalization(t *testing.T) {
	geo, rep := New(5, map[string]model.Point{
		"00100":   {Lat: 40.0, Lon: -74.0},
		"100":     {Lat: 10.0, Lon: 10.0},
		"":        {Lat: 1, Lon: 1},
		"bad_lat": {Lat: 91, Lon: 0},
	})

	assert.Equal(t, 1, geo.Len())
	assert.Equal(t, 1, rep.Skipped[SkipDuplicate])
	assert.Equal(t, 1, rep.Skipped[SkipNoCode])
	assert.Equal(t, 1, rep.Skipped[SkipBadCoord])
	assert.Equal(t, []string{SkipBadCoord, SkipDuplicate, SkipNoCode}, rep.SkipReasons())

	// Sorted input order means "00100" is seen before "100".
	p, ok := geo.Lookup("100")
	require.True(t, ok)
	assert.Equal(t, 40.0, p.Lat)
}

func TestLoadCSV(t *testing.T) {
	in := "\ufeffFIPS_CODE,name,latitude,longitude\n" +
		"36061,New York,40.776,-73.970\n" +
		"6037.0,Los Angeles,34.320,-118.225\n" +
		",Nowhere,1,1\n" +
		"99999,Broken,abc,1\n" +
		"36061,Dup,0,0\n" +
		"12345,short\n"

	geo, rep, err := LoadCSV(strings.NewReader(in), "counties.csv", ',', Options{CodeWidth: 5})
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, rep.Format)
	assert.Equal(t, 2, rep.Loaded)
	assert.Equal(t, 1, rep.Skipped[SkipNoCode])
	assert.Equal(t, 1, rep.Skipped[SkipBadCoord])
	assert.Equal(t, 1, rep.Skipped[SkipDuplicate])
	assert.Equal(t, 1, rep.Skipped[SkipMalformed])

	p, ok := geo.Lookup("06037")
	require.True(t, ok)
	assert.InDelta(t, 34.320, p.Lat, 1e-9)
	assert.InDelta(t, -118.225, p.Lon, 1e-9)
	assert.Equal(t, []string{"36061", "06037"}, geo.Codes(0))
}

func TestLoadCSV_CustomFields(t *testing.T) {
	in := "LocationID\ty\tx\n1\t40.7\t-74.0\n2\t40.8\t-73.9\n"

	geo, rep, err := LoadCSV(strings.NewReader(in), "zones.tsv", '\t', Options{
		CodeField: "locationid",
		LatField:  "y",
		LonField:  "x",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Loaded)

	p, ok := geo.Lookup(" 2 ")
	require.True(t, ok)
	assert.InDelta(t, 40.8, p.Lat, 1e-9)
}

func TestLoadCSV_Errors(t *testing.T) {
	_, _, err := LoadCSV(strings.NewReader(""), "empty.csv", ',', Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	_, _, err = LoadCSV(strings.NewReader("fips_code,lat,lon\n1,2,3\n"), "bad.csv", ',', Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "latitude"`)
}

func TestLoadCSV_NoUsableEntries(t *testing.T) {
	geo, rep, err := LoadCSV(strings.NewReader("fips_code,latitude,longitude\n,1,1\n"), "x.csv", ',', Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, geo.Len())
	assert.Equal(t, 1, rep.SkippedTotal())
}

func TestLoadXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("centroids")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"fips_code", "latitude", "longitude"},
		{"1001", "32.5", "-86.6"},
		{"1003", "30.7"},
	} {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "centroids.xlsx")
	require.NoError(t, f.Save(path))

	geo, rep, err := Load(path, Options{CodeWidth: 5})
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, rep.Format)
	assert.Equal(t, 1, rep.Loaded)
	assert.Equal(t, 1, rep.Skipped[SkipBadCoord])

	p, ok := geo.Lookup("01001")
	require.True(t, ok)
	assert.InDelta(t, 32.5, p.Lat, 1e-9)
}

const zonesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"Location_ID": 1},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"location_id": "2"},
     "geometry": {"type": "Point", "coordinates": [-73.9, 40.7]}},
    {"type": "Feature", "properties": {"location_id": 3}, "geometry": null},
    {"type": "Feature", "properties": {"name": "no code"},
     "geometry": {"type": "Point", "coordinates": [1, 1]}},
    {"type": "Feature", "properties": {"location_id": 4}, "geometry": {"type": "Bogus"}}
  ]
}`

func TestLoadGeoJSON(t *testing.T) {
	geo, rep, err := LoadGeoJSON(strings.NewReader(zonesGeoJSON), "zones.geojson", Options{CodeField: "location_id"})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Loaded)
	assert.Equal(t, 1, rep.Skipped[SkipNoGeometry])
	assert.Equal(t, 1, rep.Skipped[SkipNoCode])
	assert.Equal(t, 1, rep.Skipped[SkipBadGeometry])

	p, ok := geo.Lookup("1")
	require.True(t, ok)
	assert.InDelta(t, 1.0, p.Lat, 1e-9)
	assert.InDelta(t, 1.0, p.Lon, 1e-9)

	p, ok = geo.Lookup("2")
	require.True(t, ok)
	assert.InDelta(t, 40.7, p.Lat, 1e-9)
	assert.InDelta(t, -73.9, p.Lon, 1e-9)
}

func TestLoadGeoJSON_NotACollection(t *testing.T) {
	_, _, err := LoadGeoJSON(strings.NewReader(`{"type":"Feature"}`), "f.json", Options{})
	require.Error(t, err)

	_, _, err = LoadGeoJSON(strings.NewReader(`{`), "f.json", Options{})
	require.Error(t, err)
}

// writeShapefile writes a polygon shapefile with a GEOID attribute per shape.
func writeShapefile(t *testing.T, dir string, shapes map[string][][]shp.Point) string {
	t.Helper()
	path := filepath.Join(dir, "tl_county.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("GEOID", 5)}))

	codes := make([]string, 0, len(shapes))
	for c := range shapes {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	for _, c := range codes {
		idx := w.Write(polygon(shapes[c]...))
		require.NoError(t, w.WriteAttribute(int(idx), 0, c))
	}
	w.Close()
	return path
}

func polygon(rings ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(rings))
	return &p
}

// square returns a clockwise ring around the box.
func square(x0, y0, x1, y1 float64) []shp.Point {
	return []shp.Point{{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0}}
}

// reversed returns the ring wound the other way.
func reversed(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i := range ring {
		out[i] = ring[len(ring)-1-i]
	}
	return out
}

func TestLoadShapefile(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, map[string][][]shp.Point{
		"36061": {square(-74, 40, -72, 42)},
		"":      {square(0, 0, 1, 1)},
	})

	geo, rep, err := Load(path, Options{CodeField: "GEOID"})
	require.NoError(t, err)
	assert.Equal(t, FormatShapefile, rep.Format)
	assert.Equal(t, 1, rep.Loaded)
	assert.Equal(t, 1, rep.Skipped[SkipNoCode])

	p, ok := geo.Lookup("36061")
	require.True(t, ok)
	assert.InDelta(t, 41.0, p.Lat, 1e-9)
	assert.InDelta(t, -73.0, p.Lon, 1e-9)
}

func TestLoadShapefile_MissingField(t *testing.T) {
	path := writeShapefile(t, t.TempDir(), map[string][][]shp.Point{"1": {square(0, 0, 1, 1)}})
	_, _, err := LoadShapefile(path, Options{CodeField: "LocationID"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LocationID")
}

func TestLoadShapefileZIP(t *testing.T) {
	src := t.TempDir()
	writeShapefile(t, src, map[string][][]shp.Point{
		"00100": {square(-75, 39, -73, 41)},
	})

	zipPath := filepath.Join(t.TempDir(), "tl_county.zip")
	zf, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(zf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		in, err := os.Open(filepath.Join(src, "tl_county"+ext))
		require.NoError(t, err)
		out, err := zw.Create("tl_county" + ext)
		require.NoError(t, err)
		_, err = io.Copy(out, in)
		require.NoError(t, err)
		require.NoError(t, in.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	geo, rep, err := Load(zipPath, Options{CodeField: "GEOID", CodeWidth: 5, TempDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, zipPath, rep.Source)

	p, ok := geo.Lookup("100")
	require.True(t, ok)
	assert.InDelta(t, 40.0, p.Lat, 1e-9)
	assert.InDelta(t, -74.0, p.Lon, 1e-9)
}

func TestPolygonToMultiPolygon_Holes(t *testing.T) {
	outer := square(0, 0, 4, 4)
	hole := reversed(square(1, 1, 3, 3))

	g := polygonToMultiPolygon(polygon(outer, hole))
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
}

func TestPolygonToMultiPolygon_SameOrientation(t *testing.T) {
	a := square(0, 0, 1, 1)
	b := square(5, 5, 6, 6)

	g := polygonToMultiPolygon(polygon(a, b))
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestShapeToGeom(t *testing.T) {
	assert.Nil(t, shapeToGeom(&shp.Null{}))
	assert.Nil(t, shapeToGeom(&shp.MultiPoint{}))

	pt, ok := shapeToGeom(&shp.Point{X: 1, Y: 2}).(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, pt.FlatCoords())

	line := shapeToGeom(shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}}))
	mls, ok := line.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 1, mls.NumLineStrings())
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
		err  bool
	}{
		{"a.csv", FormatCSV, false},
		{"a.TSV", FormatCSV, false},
		{"a.xlsx", FormatXLSX, false},
		{"a.geojson", FormatGeoJSON, false},
		{"a.json", FormatGeoJSON, false},
		{"a.shp", FormatShapefile, false},
		{"a.zip", FormatShapefile, false},
		{"a.parquet", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.Error(t, err)
}
