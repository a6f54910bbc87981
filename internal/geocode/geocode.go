// Package geocode attaches reference centroids to sampled records by exact
// location-code match. Records with any unresolved code are dropped and
// counted; a miss is a measured outcome, never an error.
package geocode

import (
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/model"
	"github.com/sells-group/geodensity/internal/refgeo"
	"github.com/sells-group/geodensity/internal/schema"
)

// previewSize caps every code preview in Diagnostics.
const previewSize = 5

// KeyDiagnostics describes the single-key join of one location-code field.
type KeyDiagnostics struct {
	Key             string   `json:"key" yaml:"key"`
	Matched         int      `json:"matched" yaml:"matched"`
	Unmatched       int      `json:"unmatched" yaml:"unmatched"`
	Blank           int      `json:"blank" yaml:"blank"`
	UnmatchedPct    float64  `json:"unmatched_pct" yaml:"unmatched_pct"`
	UnmatchedSample []string `json:"unmatched_sample,omitempty" yaml:"unmatched_sample,omitempty"`
	RecordPreview   []string `json:"record_preview,omitempty" yaml:"record_preview,omitempty"`
}

// Diagnostics summarizes a join. A record counts as matched only if every
// one of its codes resolved.
type Diagnostics struct {
	Total            int              `json:"total" yaml:"total"`
	Matched          int              `json:"matched" yaml:"matched"`
	Unmatched        int              `json:"unmatched" yaml:"unmatched"`
	MatchedPct       float64          `json:"matched_pct" yaml:"matched_pct"`
	UnmatchedPct     float64          `json:"unmatched_pct" yaml:"unmatched_pct"`
	Keys             []KeyDiagnostics `json:"keys" yaml:"keys"`
	ReferencePreview []string         `json:"reference_preview,omitempty" yaml:"reference_preview,omitempty"`
}

// Joiner joins records against a reference geography.
type Joiner struct {
	ref     *refgeo.Geography
	adapter schema.Adapter
	log     *zap.Logger
}

// NewJoiner creates a Joiner. The adapter must be bound to the header of the
// records passed to Join.
func NewJoiner(ref *refgeo.Geography, adapter schema.Adapter) *Joiner {
	return &Joiner{
		ref:     ref,
		adapter: adapter,
		log:     zap.L().With(zap.String("component", "geocode")),
	}
}

// Join runs one single-key join per location-code field and keeps the
// records present in all of them, in input order. Point i of a geocoded
// record belongs to key i.
func (j *Joiner) Join(records []model.Record) ([]model.GeocodedRecord, Diagnostics) {
	keys := j.adapter.Keys()
	recCodes := make([][]string, len(records))
	for i, rec := range records {
		recCodes[i] = j.adapter.LocationCodes(rec)
	}

	diag := Diagnostics{
		Total:            len(records),
		Keys:             make([]KeyDiagnostics, len(keys)),
		ReferencePreview: j.ref.Codes(previewSize),
	}
	joins := make([]keyJoin, len(keys))
	for k, key := range keys {
		joins[k], diag.Keys[k] = j.joinKey(key, k, records, recCodes)
	}

	out := make([]model.GeocodedRecord, 0, len(records))
	for i, rec := range records {
		points := make([]model.Point, len(keys))
		ok := true
		for k := range keys {
			if !joins[k].found[i] {
				ok = false
				break
			}
			points[k] = joins[k].points[i]
		}
		if ok {
			out = append(out, model.GeocodedRecord{Record: rec, Points: points})
		}
	}

	diag.Matched = len(out)
	diag.Unmatched = diag.Total - diag.Matched
	diag.MatchedPct = pct(diag.Matched, diag.Total)
	diag.UnmatchedPct = pct(diag.Unmatched, diag.Total)
	j.logDiagnostics(diag)

	return out, diag
}

// keyJoin holds the result of one single-key join, by position in the
// joined slice. Record indices need not be unique.
type keyJoin struct {
	points []model.Point
	found  []bool
}

// joinKey resolves field k of every record.
func (j *Joiner) joinKey(key string, k int, records []model.Record, recCodes [][]string) (keyJoin, KeyDiagnostics) {
	d := KeyDiagnostics{Key: key}
	matched := keyJoin{
		points: make([]model.Point, len(records)),
		found:  make([]bool, len(records)),
	}
	missed := make(map[string]bool)
	previewed := make(map[string]bool)

	for i := range records {
		code := ""
		if k < len(recCodes[i]) {
			code = recCodes[i][k]
		}
		if code != "" && len(d.RecordPreview) < previewSize && !previewed[code] {
			previewed[code] = true
			d.RecordPreview = append(d.RecordPreview, code)
		}

		if code == "" {
			d.Blank++
			d.Unmatched++
			continue
		}
		p, ok := j.ref.Lookup(code)
		if !ok {
			d.Unmatched++
			if len(d.UnmatchedSample) < previewSize && !missed[code] {
				missed[code] = true
				d.UnmatchedSample = append(d.UnmatchedSample, code)
			}
			continue
		}
		matched.points[i] = p
		matched.found[i] = true
		d.Matched++
	}

	d.UnmatchedPct = pct(d.Unmatched, len(records))
	return matched, d
}

func (j *Joiner) logDiagnostics(d Diagnostics) {
	j.log.Info("geocode: join complete",
		zap.Int("total", d.Total),
		zap.Int("matched", d.Matched),
		zap.Int("unmatched", d.Unmatched),
		zap.Float64("unmatched_pct", d.UnmatchedPct),
		zap.Strings("reference_preview", d.ReferencePreview),
	)
	for _, k := range d.Keys {
		fields := []zap.Field{
			zap.String("key", k.Key),
			zap.Int("matched", k.Matched),
			zap.Int("unmatched", k.Unmatched),
			zap.Int("blank", k.Blank),
			zap.Float64("unmatched_pct", k.UnmatchedPct),
			zap.Strings("record_preview", k.RecordPreview),
		}
		if k.Unmatched > 0 {
			j.log.Warn("geocode: unmatched location codes", append(fields, zap.Strings("unmatched_sample", k.UnmatchedSample))...)
			continue
		}
		j.log.Debug("geocode: key fully matched", fields...)
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
