package aggregate

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geodensity/internal/model"
)

// Bounds is a rectangular lon/lat domain. Edges are inclusive.
type Bounds struct {
	MinLon float64 `json:"min_lon" yaml:"min_lon" csv:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon" csv:"max_lon"`
	MinLat float64 `json:"min_lat" yaml:"min_lat" csv:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat" csv:"max_lat"`
}

// ContinentalUS is the default fixed domain.
var ContinentalUS = Bounds{MinLon: -125, MaxLon: -65, MinLat: 24, MaxLat: 50}

// Validate rejects empty, inverted or non-finite boxes.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.MinLon, b.MaxLon, b.MinLat, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.Errorf("aggregate: non-finite bounds %+v", b)
		}
	}
	if b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat {
		return eris.Errorf("aggregate: empty or inverted bounds %+v", b)
	}
	return nil
}

// Contains reports whether p lies inside the box.
func (b Bounds) Contains(p model.Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// BoundsPolicy picks the aggregation domain.
type BoundsPolicy interface {
	Resolve(points []model.Point) (Bounds, error)
}

// Fixed always uses the same box.
type Fixed struct {
	Bounds Bounds
}

// Resolve returns the fixed box.
func (f Fixed) Resolve([]model.Point) (Bounds, error) {
	if err := f.Bounds.Validate(); err != nil {
		return Bounds{}, err
	}
	return f.Bounds, nil
}

// DefaultMargin is the dynamic-bounds margin as a fraction of observed range.
const DefaultMargin = 0.1

// zeroExtentPad widens an axis whose observed range is zero.
const zeroExtentPad = 0.01

// Dynamic derives the box from the observed min/max, widened on each side by
// Margin times the observed range.
type Dynamic struct {
	Margin float64
}

// Resolve computes the padded extent of points.
func (d Dynamic) Resolve(points []model.Point) (Bounds, error) {
	if len(points) == 0 {
		return Bounds{}, eris.New("aggregate: dynamic bounds need at least one point")
	}
	if d.Margin < 0 {
		return Bounds{}, eris.Errorf("aggregate: negative margin %v", d.Margin)
	}

	b := Bounds{
		MinLon: math.Inf(1), MaxLon: math.Inf(-1),
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
	}
	for _, p := range points {
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
	}

	b.MinLon, b.MaxLon = widen(b.MinLon, b.MaxLon, d.Margin)
	b.MinLat, b.MaxLat = widen(b.MinLat, b.MaxLat, d.Margin)
	return b, b.Validate()
}

func widen(lo, hi, margin float64) (float64, float64) {
	if hi == lo {
		return lo - zeroExtentPad, hi + zeroExtentPad
	}
	pad := (hi - lo) * margin
	return lo - pad, hi + pad
}

// DefaultBuffer is the centred-bounds half-width in degrees.
const DefaultBuffer = 1.0

// Centered uses a square of Buffer degrees around Center.
type Centered struct {
	Center model.Point
	Buffer float64
}

// Resolve returns Center ± Buffer.
func (c Centered) Resolve([]model.Point) (Bounds, error) {
	if c.Buffer <= 0 {
		return Bounds{}, eris.Errorf("aggregate: non-positive buffer %v", c.Buffer)
	}
	b := Bounds{
		MinLon: c.Center.Lon - c.Buffer,
		MaxLon: c.Center.Lon + c.Buffer,
		MinLat: c.Center.Lat - c.Buffer,
		MaxLat: c.Center.Lat + c.Buffer,
	}
	return b, b.Validate()
}
