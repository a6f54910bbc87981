// Package aggregate reduces coordinate tracks to density grids and a top-K
// table of origin/destination bin combinations, the two products handed to
// a renderer.
package aggregate

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/model"
)

// Defaults.
const (
	DefaultBinCount      = 100
	DefaultRouteBinCount = 49
	DefaultTopK          = 20
)

// Options configures an Aggregator.
type Options struct {
	Bounds        BoundsPolicy // default Fixed{ContinentalUS}
	BinCount      int          // density grid bins per axis
	RouteBinCount int          // route grid bins per axis
	TopK          int
}

func (o Options) withDefaults() Options {
	if o.Bounds == nil {
		o.Bounds = Fixed{Bounds: ContinentalUS}
	}
	if o.BinCount <= 0 {
		o.BinCount = DefaultBinCount
	}
	if o.RouteBinCount <= 0 {
		o.RouteBinCount = DefaultRouteBinCount
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

// Output is the aggregation result. It is not modified after Aggregate
// returns.
type Output struct {
	Bounds Bounds `json:"bounds" yaml:"bounds"`
	// Density holds one grid per track position: origin first.
	Density []*Grid `json:"density" yaml:"density"`
	// Routes is empty unless tracks carry two or more points.
	Routes         []Route `json:"routes" yaml:"routes"`
	Points         int     `json:"points" yaml:"points"`
	DistinctRoutes int     `json:"distinct_routes" yaml:"distinct_routes"`
	SkippedRoutes  int     `json:"skipped_routes" yaml:"skipped_routes"`
}

// Empty reports whether nothing was aggregated.
func (o *Output) Empty() bool {
	return o == nil || len(o.Density) == 0
}

// Aggregator bins coordinate tracks.
type Aggregator struct {
	opts Options
	log  *zap.Logger
}

// New creates an Aggregator.
func New(opts Options) *Aggregator {
	return &Aggregator{
		opts: opts.withDefaults(),
		log:  zap.L().With(zap.String("component", "aggregate")),
	}
}

// Aggregate bins every track. Point i of a track lands in density grid i;
// tracks with at least two points also count toward routes by their first
// two points. The domain is resolved once over all points. Empty input
// yields an empty Output and no error.
func (a *Aggregator) Aggregate(tracks [][]model.Point) (*Output, error) {
	var all []model.Point
	positions := 0
	for _, t := range tracks {
		all = append(all, t...)
		positions = max(positions, len(t))
	}
	if len(all) == 0 {
		a.log.Info("aggregate: no points, returning empty output")
		return &Output{Density: []*Grid{}, Routes: []Route{}}, nil
	}

	bounds, err := a.opts.Bounds.Resolve(all)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: resolve bounds")
	}

	out := &Output{Bounds: bounds, Points: len(all), Routes: []Route{}}
	out.Density = make([]*Grid, positions)
	for i := range out.Density {
		out.Density[i] = NewGrid(bounds, a.opts.BinCount)
		out.Density[i].Endpoint = i
	}

	var rc *routeCounter
	if positions >= 2 {
		rc = newRouteCounter(bounds, a.opts.RouteBinCount)
	}
	for _, t := range tracks {
		for i, p := range t {
			out.Density[i].Add(p)
		}
		if rc != nil && len(t) >= 2 {
			rc.add(t)
		}
	}
	if rc != nil {
		out.Routes = rc.top(a.opts.TopK)
		out.DistinctRoutes = rc.distinct()
		out.SkippedRoutes = rc.skipped
	}

	for _, g := range out.Density {
		a.log.Info("aggregate: density grid",
			zap.Int("endpoint", g.Endpoint),
			zap.Int("bins", a.opts.BinCount),
			zap.Int("in_bounds", g.Total),
			zap.Int("out_of_bounds", g.OutOfBounds),
		)
	}
	a.log.Info("aggregate: complete",
		zap.Int("points", out.Points),
		zap.Float64("min_lon", bounds.MinLon),
		zap.Float64("max_lon", bounds.MaxLon),
		zap.Float64("min_lat", bounds.MinLat),
		zap.Float64("max_lat", bounds.MaxLat),
		zap.Int("routes", len(out.Routes)),
		zap.Int("distinct_routes", out.DistinctRoutes),
	)
	return out, nil
}
