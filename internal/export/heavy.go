package export

import (
	"cmp"
	"math"
	"slices"

	"github.com/sells-group/geodensity/internal/aggregate"
	"github.com/sells-group/geodensity/internal/overlay"
)

// HeavyHitters returns the n densest cells of a grid as overlay points,
// ranked from zero. Cell centres are rounded to centidegrees. Ties keep
// grid order.
func HeavyHitters(g *aggregate.Grid, n int) []overlay.HeavyHitter {
	cells := g.Cells()
	slices.SortStableFunc(cells, func(a, b aggregate.Cell) int {
		return cmp.Compare(b.Count, a.Count)
	})
	if n < len(cells) {
		cells = cells[:n]
	}
	out := make([]overlay.HeavyHitter, len(cells))
	for i, c := range cells {
		out[i] = overlay.HeavyHitter{
			Index:     int64(i),
			Latitude:  centidegrees(c.CenterLat),
			Longitude: centidegrees(c.CenterLon),
		}
	}
	return out
}

func centidegrees(v float64) float64 {
	return math.Round(v*100) / 100
}
