// Package refgeo builds the read-only mapping from location code to centroid
// that records are geocoded against.
package refgeo

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/codes"
	"github.com/sells-group/geodensity/internal/model"
)

// Skip reasons reported by loaders.
const (
	SkipNoCode      = "no_code"
	SkipNoGeometry  = "no_geometry"
	SkipBadGeometry = "bad_geometry"
	SkipBadCoord    = "bad_coordinate"
	SkipDuplicate   = "duplicate_code"
	SkipMalformed   = "malformed_row"
)

// Geography maps normalized location codes to centroids. It is immutable once
// loaded and safe for concurrent reads.
type Geography struct {
	width   int
	entries map[string]model.Point
	order   []string
}

// Lookup normalizes code and returns its centroid.
func (g *Geography) Lookup(code string) (model.Point, bool) {
	p, ok := g.entries[codes.Normalize(code, g.width)]
	return p, ok
}

// Len returns the number of entries.
func (g *Geography) Len() int { return len(g.entries) }

// Width returns the code width keys were normalized to.
func (g *Geography) Width() int { return g.width }

// Codes returns up to n codes in load order; n <= 0 returns all.
func (g *Geography) Codes(n int) []string {
	if n <= 0 || n > len(g.order) {
		n = len(g.order)
	}
	out := make([]string, n)
	copy(out, g.order[:n])
	return out
}

// Report summarizes a load.
type Report struct {
	Source  string         `json:"source" yaml:"source"`
	Format  Format         `json:"format" yaml:"format"`
	Loaded  int            `json:"loaded" yaml:"loaded"`
	Skipped map[string]int `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// SkippedTotal returns the number of entries skipped for any reason.
func (r *Report) SkippedTotal() int {
	n := 0
	for _, c := range r.Skipped {
		n += c
	}
	return n
}

// SkipReasons returns the skip reasons in sorted order.
func (r *Report) SkipReasons() []string {
	out := make([]string, 0, len(r.Skipped))
	for k := range r.Skipped {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// builder accumulates entries, enforcing unique normalized keys.
type builder struct {
	geo *Geography
	rep *Report
	log *zap.Logger
}

func newBuilder(source string, format Format, width int) *builder {
	return &builder{
		geo: &Geography{width: width, entries: make(map[string]model.Point)},
		rep: &Report{Source: source, Format: format, Skipped: make(map[string]int)},
		log: zap.L().With(zap.String("component", "refgeo"), zap.String("source", source)),
	}
}

func (b *builder) add(rawCode string, p model.Point) {
	code := codes.Normalize(rawCode, b.geo.width)
	if code == "" {
		b.skip(SkipNoCode, rawCode)
		return
	}
	if !p.Valid() {
		b.skip(SkipBadCoord, rawCode)
		return
	}
	if _, dup := b.geo.entries[code]; dup {
		b.skip(SkipDuplicate, rawCode)
		return
	}
	b.geo.entries[code] = p
	b.geo.order = append(b.geo.order, code)
	b.rep.Loaded++
}

func (b *builder) skip(reason, code string) {
	b.rep.Skipped[reason]++
	b.log.Debug("refgeo: skipping entry", zap.String("reason", reason), zap.String("code", code))
}

func (b *builder) finish() (*Geography, *Report) {
	fields := []zap.Field{
		zap.String("format", string(b.rep.Format)),
		zap.Int("loaded", b.rep.Loaded),
		zap.Int("skipped", b.rep.SkippedTotal()),
		zap.Strings("sample_codes", b.geo.Codes(5)),
	}
	for _, reason := range b.rep.SkipReasons() {
		fields = append(fields, zap.Int("skipped_"+reason, b.rep.Skipped[reason]))
	}
	if b.rep.Loaded == 0 {
		b.log.Warn("refgeo: no usable entries", fields...)
	} else {
		b.log.Info("refgeo: loaded reference geography", fields...)
	}
	return b.geo, b.rep
}

// New builds a Geography directly from code/centroid pairs. Entries are
// normalized and deduplicated the same way loaders do.
func New(width int, entries map[string]model.Point) (*Geography, *Report) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := newBuilder("memory", FormatMemory, width)
	for _, k := range keys {
		b.add(k, entries[k])
	}
	return b.finish()
}
