package aggregate

import (
	"cmp"
	"slices"

	"github.com/golang/geo/s2"

	"github.com/sells-group/geodensity/internal/model"
)

// EarthRadiusKm is the mean Earth radius.
const EarthRadiusKm = 6371.0088

// routeKey is an origin-bin × destination-bin combination.
type routeKey struct {
	OX, OY, DX, DY int
}

func (a routeKey) compare(b routeKey) int {
	if c := cmp.Compare(a.OX, b.OX); c != 0 {
		return c
	}
	if c := cmp.Compare(a.OY, b.OY); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DX, b.DX); c != 0 {
		return c
	}
	return cmp.Compare(a.DY, b.DY)
}

// Route is one of the most frequent origin/destination bin combinations.
// Endpoints are bin midpoints.
type Route struct {
	Rank       int     `json:"rank" yaml:"rank" csv:"rank"`
	Count      int     `json:"count" yaml:"count" csv:"count"`
	OriginX    int     `json:"origin_x" yaml:"origin_x" csv:"origin_x"`
	OriginY    int     `json:"origin_y" yaml:"origin_y" csv:"origin_y"`
	DestX      int     `json:"dest_x" yaml:"dest_x" csv:"dest_x"`
	DestY      int     `json:"dest_y" yaml:"dest_y" csv:"dest_y"`
	OriginLat  float64 `json:"origin_lat" yaml:"origin_lat" csv:"origin_lat"`
	OriginLon  float64 `json:"origin_lon" yaml:"origin_lon" csv:"origin_lon"`
	DestLat    float64 `json:"dest_lat" yaml:"dest_lat" csv:"dest_lat"`
	DestLon    float64 `json:"dest_lon" yaml:"dest_lon" csv:"dest_lon"`
	DistanceKm float64 `json:"distance_km" yaml:"distance_km" csv:"distance_km"`
}

// Origin returns the origin midpoint.
func (r Route) Origin() model.Point { return model.Point{Lat: r.OriginLat, Lon: r.OriginLon} }

// Dest returns the destination midpoint.
func (r Route) Dest() model.Point { return model.Point{Lat: r.DestLat, Lon: r.DestLon} }

// routeCounter tallies origin/destination bin pairs on a route grid.
type routeCounter struct {
	x, y    Axis
	counts  map[routeKey]int
	skipped int
}

func newRouteCounter(b Bounds, bins int) *routeCounter {
	return &routeCounter{
		x:      newAxis(b.MinLon, b.MaxLon, bins),
		y:      newAxis(b.MinLat, b.MaxLat, bins),
		counts: make(map[routeKey]int),
	}
}

// add counts a track's first two points. Tracks with an endpoint outside
// the domain are skipped.
func (rc *routeCounter) add(track []model.Point) {
	o, d := track[0], track[1]
	ox, ok1 := rc.x.Index(o.Lon)
	oy, ok2 := rc.y.Index(o.Lat)
	dx, ok3 := rc.x.Index(d.Lon)
	dy, ok4 := rc.y.Index(d.Lat)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		rc.skipped++
		return
	}
	rc.counts[routeKey{ox, oy, dx, dy}]++
}

// distinct returns the number of non-empty combinations.
func (rc *routeCounter) distinct() int { return len(rc.counts) }

// top returns the k most frequent combinations, count descending. Equal
// counts are ordered by bin coordinates so the table is deterministic.
func (rc *routeCounter) top(k int) []Route {
	keys := make([]routeKey, 0, len(rc.counts))
	for key := range rc.counts {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b routeKey) int {
		if c := cmp.Compare(rc.counts[b], rc.counts[a]); c != 0 {
			return c
		}
		return a.compare(b)
	})
	if k >= 0 && len(keys) > k {
		keys = keys[:k]
	}

	out := make([]Route, len(keys))
	for i, key := range keys {
		r := Route{
			Rank:      i + 1,
			Count:     rc.counts[key],
			OriginX:   key.OX,
			OriginY:   key.OY,
			DestX:     key.DX,
			DestY:     key.DY,
			OriginLon: rc.x.Mid(key.OX),
			OriginLat: rc.y.Mid(key.OY),
			DestLon:   rc.x.Mid(key.DX),
			DestLat:   rc.y.Mid(key.DY),
		}
		r.DistanceKm = DistanceKm(r.Origin(), r.Dest())
		out[i] = r
	}
	return out
}

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b model.Point) float64 {
	return s2.LatLngFromDegrees(a.Lat, a.Lon).Distance(s2.LatLngFromDegrees(b.Lat, b.Lon)).Radians() * EarthRadiusKm
}
