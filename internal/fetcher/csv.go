// Package fetcher streams and unpacks local tabular sources: delimited text,
// XLSX workbooks and ZIP archives.
package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	Comment    rune            // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool

	// StrictFieldCount rejects rows whose field count differs from the first row.
	StrictFieldCount bool
	// SkipMalformed reports unparseable rows to OnMalformed and keeps reading
	// instead of failing the stream.
	SkipMalformed bool
	OnMalformed   func(*MalformedRowError)
}

// Row is one parsed data row. Index counts data rows from zero, header
// excluded and malformed rows included, so it matches the row's position
// in the file.
type Row struct {
	Index  int64
	Fields []string
}

// MalformedRowError describes a row that failed to parse.
type MalformedRowError struct {
	Index int64 // data-row index
	Line  int   // 1-based line in the input
	Err   error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("csv: malformed row %d (line %d): %v", e.Index, e.Line, e.Err)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// StreamCSV reads a CSV file and sends rows to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.ReuseRecord = false
		if opts.StrictFieldCount {
			reader.FieldsPerRecord = 0 // first row sets the expected count
		} else {
			reader.FieldsPerRecord = -1 // allow variable fields
		}

		first := true
		var index int64
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if (first && opts.HasHeader) || !opts.SkipMalformed || !errors.As(err, &pe) {
					errCh <- eris.Wrap(err, "csv: read row")
					return
				}
				if opts.OnMalformed != nil {
					opts.OnMalformed(&MalformedRowError{Index: index, Line: pe.Line, Err: pe.Err})
				}
				index++
				continue
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- Row{Index: index, Fields: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
			index++
		}
	}()

	return rowCh, errCh
}

// ReadHeader reads the first CSV record of r.
func ReadHeader(r io.Reader, delimiter rune) ([]string, error) {
	reader := csv.NewReader(r)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("csv: empty input")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	return header, nil
}
