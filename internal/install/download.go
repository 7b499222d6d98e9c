package install

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/paths"
)

// Download is a fetched file waiting to be imported.
type Download struct {
	Path   string
	SHA256 string
	Size   int64
}

// Downloader fetches release archives into a scratch directory.
type Downloader struct {
	Client   *http.Client
	Dir      string
	Progress io.Writer
	logger   hclog.Logger
}

// NewDownloader creates a Downloader writing into dir.
func NewDownloader(dir string, logger hclog.Logger) *Downloader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Downloader{Client: http.DefaultClient, Dir: dir, logger: logger.Named("download")}
}

// Fetch downloads url into a temporary file named after the URL's last
// path segment. The caller removes it with Discard.
func (d *Downloader) Fetch(ctx context.Context, url string) (*Download, error) {
	if err := os.MkdirAll(d.Dir, paths.DirPerms); err != nil {
		return nil, fmt.Errorf("creating %s: %w", d.Dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	d.logger.Debug("🌐 Downloading", "url", url)
	resp, err := d.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", zerrors.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, zerrors.Wrapf(zerrors.ErrReferenceNotFound, "no release asset at %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, zerrors.Wrapf(zerrors.ErrNetworkFailure, "GET %s: %s", url, resp.Status)
	}

	// Keep the archive suffix so the format can be detected.
	name := path.Base(req.URL.Path)
	if name == "" || name == "/" || name == "." {
		name = "download"
	}
	out, err := os.CreateTemp(d.Dir, "*-"+name)
	if err != nil {
		return nil, fmt.Errorf("creating download file: %w", err)
	}

	hash := sha256.New()
	var w io.Writer = io.MultiWriter(out, hash)
	if d.Progress != nil {
		w = io.MultiWriter(w, &progressWriter{out: d.Progress, total: resp.ContentLength})
	}

	size, copyErr := io.Copy(w, resp.Body)
	closeErr := out.Close()
	if d.Progress != nil {
		fmt.Fprintln(d.Progress)
	}
	if copyErr != nil || closeErr != nil {
		d.Discard(out.Name())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if copyErr == nil {
			copyErr = closeErr
		}
		return nil, fmt.Errorf("%w: reading %s: %w", zerrors.ErrNetworkFailure, url, copyErr)
	}

	d.logger.Debug("✅ Downloaded", "path", out.Name(), "bytes", size)
	return &Download{Path: out.Name(), SHA256: hex.EncodeToString(hash.Sum(nil)), Size: size}, nil
}

// Discard removes a downloaded file. A failure is only a warning.
func (d *Downloader) Discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("⚠️ Failed to remove temporary download", "path", path, "error", err)
	}
}

// VerifyChecksum compares dl against an expected hex SHA-256.
func VerifyChecksum(dl *Download, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return nil
	}
	if dl.SHA256 != expected {
		return zerrors.Wrapf(zerrors.ErrChecksumMismatch, "expected %s, got %s", expected, dl.SHA256)
	}
	return nil
}

type progressWriter struct {
	out     io.Writer
	total   int64
	written int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		fmt.Fprintf(p.out, "\r⬇️  %s / %s", humanBytes(p.written), humanBytes(p.total))
	} else {
		fmt.Fprintf(p.out, "\r⬇️  %s", humanBytes(p.written))
	}
	return len(b), nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
