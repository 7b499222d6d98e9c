package archive

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "archive_test",
		Level: hclog.Trace,
	})
}

func writeTar(t *testing.T, w io.Writer, entries []entry) {
	t.Helper()
	tw := tar.NewWriter(w)
	for _, e := range entries {
		typ := e.typeflag
		if typ == 0 {
			typ = tar.TypeReg
		}
		mode := e.mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     mode,
			Typeflag: typ,
			Linkname: e.linkname,
		}
		if typ == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if typ == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

func createTar(t *testing.T, dir, name string, entries []entry) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	var w io.Writer = f
	var closer io.Closer
	format, err := DetectFormat(name)
	require.NoError(t, err)
	switch format {
	case FormatTarGzip:
		gw := gzip.NewWriter(f)
		w, closer = gw, gw
	case FormatTarBzip2:
		bw, err := bzip2.NewWriter(f, &bzip2.WriterConfig{})
		require.NoError(t, err)
		w, closer = bw, bw
	case FormatTarZstd:
		zw, err := zstd.NewWriter(f)
		require.NoError(t, err)
		w, closer = zw, zw
	}
	writeTar(t, w, entries)
	if closer != nil {
		require.NoError(t, closer.Close())
	}
	return p
}

func toolchainEntries() []entry {
	return []entry{
		{name: "bin/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "bin/zrc", body: "#!/bin/sh\necho zrc\n", mode: 0o755},
		{name: "include/std.zh", body: "// std"},
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"zrc.tar":                  FormatTar,
		"zrc-linux-x64.tar.gz":     FormatTarGzip,
		"ZRC.TGZ":                  FormatTarGzip,
		"zrc.tar.bz2":              FormatTarBzip2,
		"zrc.tbz2":                 FormatTarBzip2,
		"zrc.tar.zst":              FormatTarZstd,
		"zrc.tzst":                 FormatTarZstd,
		"/some/dir/zrc-nightly.zip": FormatZip,
	}
	for name, want := range tests {
		got, err := DetectFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectFormat("zrc.rar")
	assert.ErrorIs(t, err, zerrors.ErrUnsupportedArchive)
}

func TestTrimSuffix(t *testing.T) {
	assert.Equal(t, "zrc-linux-x64", TrimSuffix("zrc-linux-x64.tar.gz"))
	assert.Equal(t, "nightly", TrimSuffix("nightly.zip"))
	assert.Equal(t, "plain", TrimSuffix("plain"))
}

func TestCheckEntryName(t *testing.T) {
	safe := []string{"bin/zrc", "./bin/zrc", "include/a/b.zh", "a..b/c", "..foo"}
	for _, name := range safe {
		assert.NoError(t, CheckEntryName(name), name)
	}

	unsafe := []string{
		"",
		"../../etc/passwd",
		"bin/../../x",
		`bin\..\..\x`,
		"/etc/passwd",
		`\windows\system32`,
		"C:/Windows/evil.dll",
		`c:\evil`,
		`\\server\share\x`,
		"..",
	}
	for _, name := range unsafe {
		assert.ErrorIs(t, CheckEntryName(name), zerrors.ErrUnsafeArchiveEntry, name)
	}
}

func TestExtract_AllTarFormats(t *testing.T) {
	for _, name := range []string{"tc.tar", "tc.tar.gz", "tc.tar.bz2", "tc.tar.zst"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			archivePath := createTar(t, dir, name, toolchainEntries())
			dest := filepath.Join(dir, "out")

			stats, err := Extract(context.Background(), archivePath, dest, testLogger())
			require.NoError(t, err)
			assert.Equal(t, 2, stats.Files)

			data, err := os.ReadFile(filepath.Join(dest, "bin", "zrc"))
			require.NoError(t, err)
			assert.Equal(t, "#!/bin/sh\necho zrc\n", string(data))
			assert.FileExists(t, filepath.Join(dest, "include", "std.zh"))
		})
	}
}

func TestExtract_RestoresExecutableBit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no executable bit on windows")
	}
	dir := t.TempDir()
	archivePath := createTar(t, dir, "tc.tar.gz", toolchainEntries())
	dest := filepath.Join(dir, "out")

	_, err := Extract(context.Background(), archivePath, dest, testLogger())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dest, "bin", "zrc"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dest, "include", "std.zh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestExtract_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	dest := filepath.Join(root, "toolchains", ".staging", "evil")
	archivePath := createTar(t, root, "evil.tar.gz", []entry{
		{name: "bin/zrc", body: "ok", mode: 0o755},
		{name: "../../etc/passwd", body: "owned"},
	})

	_, err := Extract(context.Background(), archivePath, dest, testLogger())
	require.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)

	assert.NoFileExists(t, filepath.Join(root, "toolchains", "etc", "passwd"))
	assert.NoFileExists(t, filepath.Join(root, "etc", "passwd"))
	assert.NoFileExists(t, filepath.Join(dest, "etc", "passwd"))
}

func TestExtract_RejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	archivePath := createTar(t, dir, "abs.tar", []entry{
		{name: "/tmp/zircon-absolute-entry", body: "x"},
	})

	_, err := Extract(context.Background(), archivePath, filepath.Join(dir, "out"), testLogger())
	assert.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)
}

func TestExtract_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on windows")
	}

	t.Run("relative inside is kept", func(t *testing.T) {
		dir := t.TempDir()
		archivePath := createTar(t, dir, "link.tar", []entry{
			{name: "bin/zrc-0.1", body: "bin", mode: 0o755},
			{name: "bin/zrc", typeflag: tar.TypeSymlink, linkname: "zrc-0.1"},
		})
		dest := filepath.Join(dir, "out")

		stats, err := Extract(context.Background(), archivePath, dest, testLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Links)

		got, err := os.Readlink(filepath.Join(dest, "bin", "zrc"))
		require.NoError(t, err)
		assert.Equal(t, "zrc-0.1", got)
	})

	t.Run("escaping target is rejected", func(t *testing.T) {
		dir := t.TempDir()
		archivePath := createTar(t, dir, "escape.tar", []entry{
			{name: "bin/evil", typeflag: tar.TypeSymlink, linkname: "../../../outside"},
		})
		_, err := Extract(context.Background(), archivePath, filepath.Join(dir, "out"), testLogger())
		assert.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)
	})

	t.Run("target is checked from the resolved location", func(t *testing.T) {
		dir := t.TempDir()
		archivePath := createTar(t, dir, "chain.tar", []entry{
			{name: "a", typeflag: tar.TypeSymlink, linkname: "."},
			{name: "a/a/a/c", typeflag: tar.TypeSymlink, linkname: "../.."},
		})
		dest := filepath.Join(dir, "x", "y", "dest")

		_, err := Extract(context.Background(), archivePath, dest, testLogger())
		assert.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)
		_, statErr := os.Lstat(filepath.Join(dest, "c"))
		assert.True(t, os.IsNotExist(statErr), "no link may be created at dest/c")
	})

	t.Run("link through an earlier link stays valid when inside", func(t *testing.T) {
		dir := t.TempDir()
		archivePath := createTar(t, dir, "inside.tar", []entry{
			{name: "lib/", typeflag: tar.TypeDir, mode: 0o755},
			{name: "a", typeflag: tar.TypeSymlink, linkname: "lib"},
			{name: "a/c", typeflag: tar.TypeSymlink, linkname: "../bin"},
		})
		dest := filepath.Join(dir, "out")

		_, err := Extract(context.Background(), archivePath, dest, testLogger())
		require.NoError(t, err)
		got, err := os.Readlink(filepath.Join(dest, "lib", "c"))
		require.NoError(t, err)
		assert.Equal(t, "../bin", got)
	})

	t.Run("absolute target is rejected", func(t *testing.T) {
		dir := t.TempDir()
		archivePath := createTar(t, dir, "abs.tar", []entry{
			{name: "bin/evil", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"},
		})
		_, err := Extract(context.Background(), archivePath, filepath.Join(dir, "out"), testLogger())
		assert.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)
	})
}

func TestExtract_Hardlink(t *testing.T) {
	dir := t.TempDir()
	archivePath := createTar(t, dir, "hard.tar", []entry{
		{name: "bin/zrc", body: "compiler", mode: 0o755},
		{name: "bin/zrc-alias", typeflag: tar.TypeLink, linkname: "bin/zrc"},
	})
	dest := filepath.Join(dir, "out")

	_, err := Extract(context.Background(), archivePath, dest, testLogger())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "bin", "zrc-alias"))
	require.NoError(t, err)
	assert.Equal(t, "compiler", string(data))
}

func TestExtract_HardlinkToMissingEntry(t *testing.T) {
	dir := t.TempDir()
	archivePath := createTar(t, dir, "hard.tar", []entry{
		{name: "bin/zrc", typeflag: tar.TypeLink, linkname: "never/extracted"},
	})

	_, err := Extract(context.Background(), archivePath, filepath.Join(dir, "out"), testLogger())
	assert.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)
}

func TestExtract_SkipsDevices(t *testing.T) {
	dir := t.TempDir()
	archivePath := createTar(t, dir, "dev.tar", []entry{
		{name: "bin/zrc", body: "x", mode: 0o755},
		{name: "dev/null", typeflag: tar.TypeChar},
	})
	dest := filepath.Join(dir, "out")

	stats, err := Extract(context.Background(), archivePath, dest, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.NoFileExists(t, filepath.Join(dest, "dev", "null"))
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "tc.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	hdr := &zip.FileHeader{Name: "zrc-nightly/bin/zrc", Method: zip.Deflate}
	hdr.SetMode(0o755)
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("zip compiler"))
	require.NoError(t, err)
	_, err = zw.Create("zrc-nightly/include/std.zh")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "out")
	_, err = Extract(context.Background(), archivePath, dest, testLogger())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "zrc-nightly", "bin", "zrc"))
	require.NoError(t, err)
	assert.Equal(t, "zip compiler", string(data))

	root, err := FindRoot(dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "zrc-nightly"), root)
}

func TestExtract_ZipTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../../escaped.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("owned"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Extract(context.Background(), archivePath, filepath.Join(dir, "a", "b"), testLogger())
	require.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)
	assert.NoFileExists(t, filepath.Join(dir, "escaped.txt"))
}

func TestExtract_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	archivePath := createTar(t, dir, "tc.tar", toolchainEntries())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, archivePath, filepath.Join(dir, "out"), testLogger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindRoot(t *testing.T) {
	t.Run("flat", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
		root, err := FindRoot(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, root)
	})

	t.Run("single wrapper", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "zrc-linux-x64", "bin"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), nil, 0o644))
		root, err := FindRoot(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "zrc-linux-x64"), root)
	})

	t.Run("ambiguous", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "bin"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "b", "bin"), 0o755))
		root, err := FindRoot(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, root)
	})
}
