package sample

import (
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geodensity/internal/fetcher"
)

// Source is a re-readable delimited record source with an estimable size.
type Source interface {
	Name() string
	Size() (int64, error)
	Open() (io.ReadCloser, error)
}

// FileSource reads records from a local file.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (f FileSource) Name() string { return f.Path }

// Size returns the file size in bytes.
func (f FileSource) Size() (int64, error) {
	fi, err := os.Stat(f.Path)
	if err != nil {
		return 0, eris.Wrapf(err, "sample: stat %s", f.Path)
	}
	return fi.Size(), nil
}

// Open opens the file for a fresh pass.
func (f FileSource) Open() (io.ReadCloser, error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "sample: open %s", f.Path)
	}
	return r, nil
}

// readHeader reads the header row of a source in its own pass.
func readHeader(src Source, delimiter rune) ([]string, error) {
	r, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck

	header, err := fetcher.ReadHeader(r, delimiter)
	if err != nil {
		return nil, eris.Wrapf(ErrSourceParse, "%s: %v", src.Name(), err)
	}
	return header, nil
}
