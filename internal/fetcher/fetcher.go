package fetcher

import (
	"context"
	"io"
)

// Downloader fetches remote files, such as reference geographies published
// as zipped shapefiles.
type Downloader interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
