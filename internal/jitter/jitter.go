// Package jitter perturbs coordinates by a bounded uniform offset per axis
// (an L-infinity box of radius ε). It is obfuscation, not a formal privacy
// mechanism.
package jitter

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/model"
)

// DefaultRadius is the default ε in degrees.
const DefaultRadius = 0.01

// Jitter draws offsets from its own generator. It is not safe for
// concurrent use.
type Jitter struct {
	radius float64
	rng    *rand.Rand
	log    *zap.Logger
}

// New creates a Jitter with radius ε in coordinate degrees.
func New(radius float64, rng *rand.Rand) (*Jitter, error) {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return nil, eris.Errorf("jitter: invalid radius %v", radius)
	}
	if rng == nil {
		return nil, eris.New("jitter: nil random source")
	}
	return &Jitter{
		radius: radius,
		rng:    rng,
		log:    zap.L().With(zap.String("component", "jitter")),
	}, nil
}

// Radius returns ε.
func (j *Jitter) Radius() float64 { return j.radius }

// Offset draws one offset uniformly from [-ε, ε].
func (j *Jitter) Offset() float64 {
	return (j.rng.Float64()*2 - 1) * j.radius
}

// Point returns p moved by an independent offset on each axis. Results are
// clamped to valid latitude and longitude.
func (j *Jitter) Point(p model.Point) model.Point {
	return model.Point{
		Lat: clamp(p.Lat+j.Offset(), -90, 90),
		Lon: clamp(p.Lon+j.Offset(), -180, 180),
	}
}

// Apply replaces the coordinates of every record with jittered ones. Each
// axis of each coordinate pair gets its own draw.
func (j *Jitter) Apply(recs []model.GeocodedRecord) []model.FuzzedRecord {
	out := make([]model.FuzzedRecord, len(recs))
	for i, r := range recs {
		pts := make([]model.Point, len(r.Points))
		for k, p := range r.Points {
			pts[k] = j.Point(p)
		}
		out[i] = model.FuzzedRecord{Record: r.Record, Points: pts}
	}
	j.log.Info("jitter: applied",
		zap.Int("records", len(out)),
		zap.Float64("radius", j.radius),
	)
	return out
}

// Passthrough converts geocoded records without perturbing them, for runs
// with jitter disabled.
func Passthrough(recs []model.GeocodedRecord) []model.FuzzedRecord {
	out := make([]model.FuzzedRecord, len(recs))
	for i, r := range recs {
		out[i] = model.FuzzedRecord{Record: r.Record, Points: append([]model.Point(nil), r.Points...)}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
