// Package schema binds a record source's header to the location-code fields
// the pipeline joins on, so new source layouts only need a new adapter.
package schema

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geodensity/internal/codes"
	"github.com/sells-group/geodensity/internal/model"
)

// ErrMissingKeyField is returned when a header or chunk lacks a required
// location-code column.
var ErrMissingKeyField = eris.New("schema: missing key field")

// Adapter extracts normalized location codes from records of one source layout.
type Adapter interface {
	// Keys names the location-code fields, origin first.
	Keys() []string
	// LocationCodes returns one normalized code per key, "" where the
	// record carries no usable code.
	LocationCodes(rec model.Record) []string
}

// Binder produces an Adapter for a concrete header.
type Binder interface {
	Bind(header []string) (Adapter, error)
}

// Columns binds location codes by column name. Matching is case-insensitive
// and ignores surrounding whitespace.
type Columns struct {
	Names []string
	Width int
}

// Bind resolves the configured column names against a header.
func (c Columns) Bind(header []string) (Adapter, error) {
	if len(c.Names) == 0 {
		return nil, eris.New("schema: no key columns configured")
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}

	idx := make([]int, len(c.Names))
	for i, name := range c.Names {
		p, ok := pos[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, eris.Wrapf(ErrMissingKeyField, "column %q", name)
		}
		idx[i] = p
	}

	return &boundColumns{names: c.Names, idx: idx, width: c.Width}, nil
}

type boundColumns struct {
	names []string
	idx   []int
	width int
}

func (b *boundColumns) Keys() []string { return b.names }

func (b *boundColumns) LocationCodes(rec model.Record) []string {
	out := make([]string, len(b.idx))
	for i, p := range b.idx {
		if p < len(rec.Fields) {
			out[i] = codes.Normalize(rec.Fields[p], b.width)
		}
	}
	return out
}

// Complete reports whether every location code of a record is present.
func Complete(a Adapter, rec model.Record) bool {
	for _, c := range a.LocationCodes(rec) {
		if c == "" {
			return false
		}
	}
	return true
}

// ValidateChunk checks that a chunk carries every key field: each key must
// be non-empty in at least one record. A key that is blank across the whole
// chunk is treated as missing.
func ValidateChunk(a Adapter, chunk []model.Record) error {
	keys := a.Keys()
	seen := make([]bool, len(keys))
	remaining := len(keys)
	for _, rec := range chunk {
		for i, c := range a.LocationCodes(rec) {
			if c != "" && !seen[i] {
				seen[i] = true
				remaining--
			}
		}
		if remaining == 0 {
			return nil
		}
	}
	for i, ok := range seen {
		if !ok {
			return eris.Wrapf(ErrMissingKeyField, "column %q empty in chunk", keys[i])
		}
	}
	return nil
}
