package refgeo

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geodensity/internal/fetcher"
)

// IsRemote reports whether a reference path is an http(s) URL.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Fetch downloads a remote reference file into cacheDir and returns its
// local path. A non-empty cached copy is reused.
func Fetch(ctx context.Context, dl fetcher.Downloader, rawURL, cacheDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "refgeo: parse url %s", rawURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "reference"
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "refgeo: create cache dir")
	}
	local := filepath.Join(cacheDir, name)

	log := zap.L().With(zap.String("component", "refgeo"), zap.String("url", rawURL))
	if info, err := os.Stat(local); err == nil && info.Size() > 0 {
		log.Debug("refgeo: using cached reference", zap.String("path", local))
		return local, nil
	}

	log.Info("refgeo: downloading reference")
	n, err := dl.DownloadToFile(ctx, rawURL, local)
	if err != nil {
		return "", eris.Wrapf(err, "refgeo: download %s", rawURL)
	}
	log.Info("refgeo: downloaded reference", zap.String("path", local), zap.Int64("bytes", n))
	return local, nil
}
