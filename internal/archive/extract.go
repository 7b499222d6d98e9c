package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zip"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/pkg/utils/permissions"
)

// Stats counts what an extraction wrote.
type Stats struct {
	Files   int
	Dirs    int
	Links   int
	Skipped int
}

// CheckEntryName rejects entry names that are absolute or contain a parent
// directory component. Both separators are checked regardless of host OS.
func CheckEntryName(name string) error {
	if name == "" {
		return zerrors.Wrap(zerrors.ErrUnsafeArchiveEntry, "empty entry name")
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || hasDriveLetter(name) || filepath.IsAbs(name) {
		return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "absolute path %q", name)
	}
	for _, part := range strings.FieldsFunc(name, isSeparator) {
		if part == ".." {
			return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "parent traversal in %q", name)
		}
	}
	return nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func hasDriveLetter(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// checkLinkTarget rejects symlink targets that are absolute or resolve
// outside the extraction root when followed from the entry's directory.
func checkLinkTarget(entry, target string) error {
	if target == "" {
		return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "symlink %q has no target", entry)
	}
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, `\`) || hasDriveLetter(target) || filepath.IsAbs(target) {
		return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "symlink %q points to absolute %q", entry, target)
	}
	dir := path.Dir(filepath.ToSlash(entry))
	resolved := path.Clean(path.Join(dir, filepath.ToSlash(target)))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "symlink %q escapes the destination via %q", entry, target)
	}
	return nil
}

// Extract unpacks archivePath into dest, which is created if missing.
// The first unsafe entry aborts the extraction; entries already written
// stay inside dest and the caller is expected to discard it.
func Extract(ctx context.Context, archivePath, dest string, logger hclog.Logger) (*Stats, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("archive")

	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dest, permissions.DefaultDirPerms); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dest, err)
	}

	logger.Debug("📦 Extracting archive", "archive", archivePath, "format", format, "dest", dest)

	x := &extractor{dest: dest, logger: logger, stats: &Stats{}}
	if format == FormatZip {
		err = x.zip(ctx, archivePath)
	} else {
		err = x.tar(ctx, archivePath, format)
	}
	if err != nil {
		return x.stats, err
	}

	logger.Debug("✅ Extraction complete",
		"files", x.stats.Files, "dirs", x.stats.Dirs, "links", x.stats.Links, "skipped", x.stats.Skipped)
	return x.stats, nil
}

type extractor struct {
	dest   string
	logger hclog.Logger
	stats  *Stats
}

// target resolves an entry name to a path inside dest.
func (x *extractor) target(name string) (string, error) {
	if err := CheckEntryName(name); err != nil {
		return "", err
	}
	p, err := securejoin.SecureJoin(x.dest, filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if err != nil {
		return "", zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "resolving %q: %v", name, err)
	}
	return p, nil
}

func (x *extractor) tar(ctx context.Context, archivePath string, format Format) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	rc, err := decompress(format, f)
	if err != nil {
		return err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}
		if err := x.tarEntry(hdr, tr); err != nil {
			return err
		}
	}
}

func (x *extractor) tarEntry(hdr *tar.Header, r io.Reader) error {
	switch hdr.Typeflag {
	case tar.TypeXGlobalHeader, tar.TypeXHeader:
		return nil
	}

	// Normalise "./" so the root entry of "tar -C dir ." is a no-op.
	name := strings.TrimPrefix(hdr.Name, "./")
	if name == "" || name == "." {
		return nil
	}

	target, err := x.target(name)
	if err != nil {
		return err
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return x.dir(target)
	case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // older archivers still emit TypeRegA
		if hdr.Size < 0 {
			return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "negative size for %q", name)
		}
		return x.file(target, r, hdr.Size, hdr.FileInfo().Mode())
	case tar.TypeSymlink:
		return x.symlink(name, target, hdr.Linkname)
	case tar.TypeLink:
		return x.hardlink(target, strings.TrimPrefix(hdr.Linkname, "./"))
	default:
		x.logger.Warn("⚠️ Skipping special archive entry", "entry", name, "type", string(hdr.Typeflag))
		x.stats.Skipped++
		return nil
	}
}

func (x *extractor) zip(ctx context.Context, archivePath string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip archive: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := x.zipEntry(zf); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) zipEntry(zf *zip.File) error {
	name := strings.TrimPrefix(zf.Name, "./")
	if name == "" || name == "." {
		return nil
	}
	target, err := x.target(name)
	if err != nil {
		return err
	}

	mode := zf.Mode()
	switch {
	case mode.IsDir():
		return x.dir(target)
	case mode&fs.ModeSymlink != 0:
		link, err := readZipLink(zf)
		if err != nil {
			return err
		}
		return x.symlink(name, target, link)
	case mode.IsRegular():
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %q: %w", name, err)
		}
		defer rc.Close()
		return x.file(target, rc, int64(zf.UncompressedSize64), mode)
	default:
		x.logger.Warn("⚠️ Skipping special archive entry", "entry", name, "mode", mode.String())
		x.stats.Skipped++
		return nil
	}
}

// readZipLink reads a symlink target stored as zip entry content.
func readZipLink(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", fmt.Errorf("opening zip entry %q: %w", zf.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return "", fmt.Errorf("reading symlink %q: %w", zf.Name, err)
	}
	return string(data), nil
}

func (x *extractor) dir(target string) error {
	if err := os.MkdirAll(target, permissions.DefaultDirPerms); err != nil {
		return fmt.Errorf("creating directory %s: %w", target, err)
	}
	x.stats.Dirs++
	return nil
}

func (x *extractor) file(target string, r io.Reader, size int64, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), permissions.DefaultDirPerms); err != nil {
		return fmt.Errorf("creating parent of %s: %w", target, err)
	}
	// A previous entry of the same name (file or link) is replaced, never
	// written through.
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", target, err)
	}

	perm := permissions.FromArchive(mode)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	if _, err := io.CopyN(out, r, size); err != nil && err != io.EOF {
		out.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", target, err)
	}
	// The umask may have stripped bits at creation.
	if err := os.Chmod(target, perm); err != nil {
		return fmt.Errorf("setting mode on %s: %w", target, err)
	}
	x.stats.Files++
	return nil
}

// symlink creates link at target. The link is checked from where it is
// really created: target has earlier links in the entry name resolved, so
// its directory can differ from the one name suggests.
func (x *extractor) symlink(name, target, link string) error {
	rel, err := filepath.Rel(x.dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "symlink %q resolves outside the destination", name)
	}
	if err := checkLinkTarget(filepath.ToSlash(rel), link); err != nil {
		return zerrors.Wrapf(err, "entry %q", name)
	}

	if err := os.MkdirAll(filepath.Dir(target), permissions.DefaultDirPerms); err != nil {
		return fmt.Errorf("creating parent of %s: %w", target, err)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	if err := os.Symlink(filepath.FromSlash(link), target); err != nil {
		return fmt.Errorf("creating symlink %s: %w", target, err)
	}
	x.stats.Links++
	return nil
}

func (x *extractor) hardlink(target, linkname string) error {
	source, err := x.target(linkname)
	if err != nil {
		return err
	}
	info, err := os.Lstat(source)
	if err != nil || !info.Mode().IsRegular() {
		return zerrors.Wrapf(zerrors.ErrUnsafeArchiveEntry, "hard link to %q which was not extracted", linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), permissions.DefaultDirPerms); err != nil {
		return fmt.Errorf("creating parent of %s: %w", target, err)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", target, err)
	}
	if err := os.Link(source, target); err != nil {
		// Filesystems without hard links get a copy.
		x.logger.Debug("Hard link failed, copying instead", "source", source, "error", err)
		if err := copyFile(source, target, info.Mode()); err != nil {
			return err
		}
	}
	x.stats.Links++
	return nil
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
