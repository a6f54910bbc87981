package refgeo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format identifies a reference geography file format.
type Format string

const (
	FormatAuto      Format = ""
	FormatCSV       Format = "csv"
	FormatXLSX      Format = "xlsx"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shapefile"
	FormatMemory    Format = "memory"
)

// Options configures how reference entries are read.
type Options struct {
	Format    Format
	CodeField string // code column or property, e.g. "fips_code", "location_id", "GEOID"
	LatField  string // centroid latitude column (tabular formats)
	LonField  string // centroid longitude column (tabular formats)
	CodeWidth int    // zero-pad width for numeric codes, 0 = none
	Sheet     string // XLSX sheet name, default first sheet
	TempDir   string // scratch space for zipped shapefiles, default os.TempDir()
}

func (o Options) withDefaults() Options {
	if o.CodeField == "" {
		o.CodeField = "fips_code"
	}
	if o.LatField == "" {
		o.LatField = "latitude"
	}
	if o.LonField == "" {
		o.LonField = "longitude"
	}
	return o
}

// DetectFormat infers the format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".shp", ".zip":
		return FormatShapefile, nil
	default:
		return "", eris.Errorf("refgeo: cannot infer format of %s", path)
	}
}

// Load reads a reference geography file. Entries that cannot be resolved to
// a centroid are skipped and counted in the report; an unreadable or
// structurally invalid file is an error.
func Load(path string, opts Options) (*Geography, *Report, error) {
	opts = opts.withDefaults()

	format := opts.Format
	if format == FormatAuto {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, nil, err
		}
		format = f
	}

	switch format {
	case FormatCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "refgeo: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		delim := ','
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			delim = '\t'
		}
		return LoadCSV(f, path, delim, opts)
	case FormatXLSX:
		return LoadXLSX(path, opts)
	case FormatGeoJSON:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "refgeo: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return LoadGeoJSON(f, path, opts)
	case FormatShapefile:
		if strings.EqualFold(filepath.Ext(path), ".zip") {
			return LoadShapefileZIP(path, opts)
		}
		return LoadShapefile(path, opts)
	default:
		return nil, nil, eris.Errorf("refgeo: unsupported format %q", format)
	}
}
