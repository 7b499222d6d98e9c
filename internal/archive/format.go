// Package archive extracts toolchain archives into a staging directory. Every
// entry path is treated as untrusted: traversal components and absolute paths
// are rejected before anything is written.
package archive

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
)

// Format identifies an archive container/compression pair.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatTarGzip
	FormatTarBzip2
	FormatTarZstd
	FormatZip
)

var formatNames = map[Format]string{
	FormatUnknown:  "unknown",
	FormatTar:      "tar",
	FormatTarGzip:  "tar.gz",
	FormatTarBzip2: "tar.bz2",
	FormatTarZstd:  "tar.zst",
	FormatZip:      "zip",
}

func (f Format) String() string {
	return formatNames[f]
}

// suffixes is checked in order, so compound suffixes come first.
var suffixes = []struct {
	suffix string
	format Format
}{
	{".tar.gz", FormatTarGzip},
	{".tgz", FormatTarGzip},
	{".tar.bz2", FormatTarBzip2},
	{".tbz2", FormatTarBzip2},
	{".tar.zst", FormatTarZstd},
	{".tzst", FormatTarZstd},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

// DetectFormat picks the format from the file name suffix.
func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	for _, s := range suffixes {
		if strings.HasSuffix(name, s.suffix) {
			return s.format, nil
		}
	}
	return FormatUnknown, zerrors.Wrapf(zerrors.ErrUnsupportedArchive, "%s", filepath.Base(path))
}

// TrimSuffix strips a recognised archive suffix from a file name.
func TrimSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return name[:len(name)-len(s.suffix)]
		}
	}
	return name
}

// decompress wraps r with the decompressor for a tar-based format.
func decompress(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatTar:
		return io.NopCloser(r), nil
	case FormatTarGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gr, nil
	case FormatTarBzip2:
		br, err := bzip2.NewReader(r, &bzip2.ReaderConfig{})
		if err != nil {
			return nil, fmt.Errorf("creating bzip2 reader: %w", err)
		}
		return br, nil
	case FormatTarZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, zerrors.Wrapf(zerrors.ErrUnsupportedArchive, "%s is not tar based", format)
	}
}
