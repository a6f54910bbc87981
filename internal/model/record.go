package model

// Record is one row of the record source. Index is the zero-based data-row
// ordinal in the source (header excluded, malformed rows included), so it
// identifies the row across pipeline stages.
type Record struct {
	Index  int64
	Fields []string
}

// GeocodedRecord is a sampled record with one coordinate per location code,
// in the order the codes were declared (origin first).
type GeocodedRecord struct {
	Record Record
	Points []Point
}

// Coordinates returns the record's coordinate pairs.
func (r GeocodedRecord) Coordinates() []Point { return r.Points }

// FuzzedRecord is a geocoded record whose coordinates were replaced by
// jittered ones. The exact coordinates are not retained.
type FuzzedRecord struct {
	Record Record
	Points []Point
}

// Coordinates returns the record's coordinate pairs.
func (r FuzzedRecord) Coordinates() []Point { return r.Points }

// Located is implemented by records that carry coordinate pairs.
type Located interface {
	Coordinates() []Point
}

// Tracks extracts the coordinate pairs of each record.
func Tracks[T Located](recs []T) [][]Point {
	out := make([][]Point, len(recs))
	for i, r := range recs {
		out[i] = r.Coordinates()
	}
	return out
}
