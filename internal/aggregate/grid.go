package aggregate

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/geodensity/internal/model"
)

// Axis is a uniform partition of [Min, Max] into Bins bins.
type Axis struct {
	Min   float64   `json:"min" yaml:"min"`
	Max   float64   `json:"max" yaml:"max"`
	Bins  int       `json:"bins" yaml:"bins"`
	Edges []float64 `json:"edges" yaml:"edges"`
}

func newAxis(lo, hi float64, bins int) Axis {
	return Axis{Min: lo, Max: hi, Bins: bins, Edges: floats.Span(make([]float64, bins+1), lo, hi)}
}

// Index returns the bin of v. The last bin is closed so v == Max belongs to
// it; values outside [Min, Max] have no bin.
func (a Axis) Index(v float64) (int, bool) {
	if math.IsNaN(v) || v < a.Min || v > a.Max {
		return 0, false
	}
	i := int((v - a.Min) / (a.Max - a.Min) * float64(a.Bins))
	if i >= a.Bins {
		i = a.Bins - 1
	}
	return i, true
}

// Mid returns the midpoint of bin i.
func (a Axis) Mid(i int) float64 {
	return (a.Edges[i] + a.Edges[i+1]) / 2
}

// Grid counts points per 2-D bin. X is longitude, Y is latitude.
type Grid struct {
	Endpoint    int     `json:"endpoint" yaml:"endpoint"`
	X           Axis    `json:"x" yaml:"x"`
	Y           Axis    `json:"y" yaml:"y"`
	Counts      [][]int `json:"-" yaml:"-"` // [x][y]
	Total       int     `json:"total" yaml:"total"`
	OutOfBounds int     `json:"out_of_bounds" yaml:"out_of_bounds"`
}

// NewGrid creates an empty bins×bins grid over b.
func NewGrid(b Bounds, bins int) *Grid {
	counts := make([][]int, bins)
	for i := range counts {
		counts[i] = make([]int, bins)
	}
	return &Grid{
		X:      newAxis(b.MinLon, b.MaxLon, bins),
		Y:      newAxis(b.MinLat, b.MaxLat, bins),
		Counts: counts,
	}
}

// Add counts p. Points outside the domain are excluded, not clipped.
func (g *Grid) Add(p model.Point) bool {
	x, okX := g.X.Index(p.Lon)
	y, okY := g.Y.Index(p.Lat)
	if !okX || !okY {
		g.OutOfBounds++
		return false
	}
	g.Counts[x][y]++
	g.Total++
	return true
}

// Cell is one non-empty grid bin.
type Cell struct {
	Endpoint  int     `json:"endpoint" yaml:"endpoint" csv:"endpoint"`
	X         int     `json:"x" yaml:"x" csv:"x"`
	Y         int     `json:"y" yaml:"y" csv:"y"`
	CenterLon float64 `json:"center_lon" yaml:"center_lon" csv:"center_lon"`
	CenterLat float64 `json:"center_lat" yaml:"center_lat" csv:"center_lat"`
	Count     int     `json:"count" yaml:"count" csv:"count"`
	LogCount  float64 `json:"log_count" yaml:"log_count" csv:"log_count"`
}

// Cells returns the non-empty bins in x-major order with log10 counts.
// Empty bins are omitted rather than reported as zero.
func (g *Grid) Cells() []Cell {
	var out []Cell
	for x, col := range g.Counts {
		for y, n := range col {
			if n < 1 {
				continue
			}
			out = append(out, Cell{
				Endpoint:  g.Endpoint,
				X:         x,
				Y:         y,
				CenterLon: g.X.Mid(x),
				CenterLat: g.Y.Mid(y),
				Count:     n,
				LogCount:  math.Log10(float64(n)),
			})
		}
	}
	return out
}

// Sum returns the total count over all bins.
func (g *Grid) Sum() int {
	sum := 0
	for _, col := range g.Counts {
		for _, n := range col {
			sum += n
		}
	}
	return sum
}
