package install

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zirco-lang/zircon/internal/activate"
	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/paths"
	"github.com/zirco-lang/zircon/internal/toolchain"
)

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "install_test",
		Level: hclog.Trace,
	})
}

type file struct {
	name string
	body string
	mode int64
}

func tarGz(t *testing.T, files []file) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, f := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     f.name,
			Mode:     f.mode,
			Size:     int64(len(f.body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func releaseFiles(prefix string) []file {
	return []file{
		{name: prefix + "bin/" + paths.ExeName("zrc"), body: "zrc", mode: 0o755},
		{name: prefix + "include/std.zh", body: "std", mode: 0o644},
	}
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func setup(t *testing.T) (*paths.Layout, *toolchain.Registry, *Importer) {
	t.Helper()
	layout := paths.New(t.TempDir())
	require.NoError(t, layout.EnsureDirectories())
	registry := toolchain.NewRegistry(layout, testLogger())
	return layout, registry, NewImporter(registry, testLogger())
}

func TestArtifactName(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"linux", "amd64", "zrc-linux-x64.tar.gz"},
		{"linux", "arm64", "zrc-linux-arm64.tar.gz"},
		{"darwin", "amd64", "zrc-macos-x64.tar.gz"},
		{"darwin", "arm64", "zrc-macos-arm64.tar.gz"},
	}
	for _, tt := range tests {
		got, err := ArtifactName(tt.goos, tt.goarch)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ArtifactName("windows", "amd64")
	assert.ErrorIs(t, err, zerrors.ErrUnsupportedPlatform)
	_, err = ArtifactName("linux", "riscv64")
	assert.ErrorIs(t, err, zerrors.ErrUnsupportedPlatform)
}

func TestReleaseURL(t *testing.T) {
	assert.Equal(t,
		"https://github.com/zirco-lang/zrc/releases/download/nightly/zrc-linux-x64.tar.gz",
		ReleaseURL("https://github.com/zirco-lang/zrc/releases/download/", "nightly", "zrc-linux-x64.tar.gz"))
}

func TestImport_RoundTripNotCurrentUntilActivated(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	layout, registry, importer := setup(t)
	archivePath := writeArchive(t, "zrc-0.3.0.tar.gz", tarGz(t, releaseFiles("zrc-0.3.0/")))

	name, err := importer.Import(context.Background(), archivePath, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, "zrc-0.3.0", name)

	infos, err := registry.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "zrc-0.3.0", infos[0].Name)
	assert.False(t, infos[0].IsCurrent)
	assert.True(t, infos[0].Complete)

	receipt, err := toolchain.ReadReceipt(layout.Toolchain(name))
	require.NoError(t, err)
	assert.Equal(t, toolchain.SourceImport, receipt.Source)
	assert.Equal(t, "zrc-0.3.0.tar.gz", receipt.Archive)

	_, err = activate.New(layout, testLogger()).Activate(name)
	require.NoError(t, err)

	infos, err = registry.List()
	require.NoError(t, err)
	assert.True(t, infos[0].IsCurrent)

	entries, err := os.ReadDir(layout.Staging())
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestImport_RejectsTraversalAndWritesNothingOutside(t *testing.T) {
	layout, registry, importer := setup(t)
	archivePath := writeArchive(t, "evil.tar.gz", tarGz(t, append(releaseFiles(""),
		file{name: "../../../etc/passwd", body: "owned", mode: 0o644})))

	_, err := importer.Import(context.Background(), archivePath, ImportOptions{Name: "evil"})
	require.ErrorIs(t, err, zerrors.ErrUnsafeArchiveEntry)

	assert.False(t, registry.Exists("evil"))
	assert.NoFileExists(t, filepath.Join(layout.Root(), "etc", "passwd"))
	assert.NoFileExists(t, filepath.Join(layout.Toolchains(), "etc", "passwd"))
	assert.NoDirExists(t, layout.StagingFor("evil", os.Getpid()))
}

func TestImport_InvalidStructureKeptInStaging(t *testing.T) {
	layout, registry, importer := setup(t)
	archivePath := writeArchive(t, "docs.tar.gz", tarGz(t, []file{{name: "README", body: "hi", mode: 0o644}}))

	_, err := importer.Import(context.Background(), archivePath, ImportOptions{})
	require.ErrorIs(t, err, zerrors.ErrInvalidToolchainStructure)
	assert.False(t, registry.Exists("docs"))
	assert.FileExists(t, filepath.Join(layout.StagingFor("docs", os.Getpid()), "README"))
}

func TestImport_ExistingName(t *testing.T) {
	_, registry, importer := setup(t)
	archivePath := writeArchive(t, "nightly.tar.gz", tarGz(t, releaseFiles("")))

	_, err := importer.Import(context.Background(), archivePath, ImportOptions{})
	require.NoError(t, err)

	_, err = importer.Import(context.Background(), archivePath, ImportOptions{})
	assert.ErrorIs(t, err, zerrors.ErrAlreadyExists)

	_, err = importer.Import(context.Background(), archivePath, ImportOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, registry.Exists("nightly"))
}

func TestImport_BadInput(t *testing.T) {
	_, _, importer := setup(t)

	_, err := importer.Import(context.Background(), "toolchain.rar", ImportOptions{})
	assert.ErrorIs(t, err, zerrors.ErrUnsupportedArchive)

	_, err = importer.Import(context.Background(), "x.tar.gz", ImportOptions{Name: "../x"})
	assert.ErrorIs(t, err, zerrors.ErrInvalidToolchainName)
}

func hostArtifact(t *testing.T) string {
	t.Helper()
	artifact, err := HostArtifactName()
	if err != nil {
		t.Skip("no release builds for this platform")
	}
	return artifact
}

func releaseServer(t *testing.T, tag string, body []byte) *httptest.Server {
	t.Helper()
	artifact := hostArtifact(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+tag+"/"+artifact {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstall_DownloadsAndImports(t *testing.T) {
	layout, registry, importer := setup(t)
	body := tarGz(t, releaseFiles("release/"))
	srv := releaseServer(t, "nightly", body)

	sum := sha256.Sum256(body)
	downloader := NewDownloader(layout.Downloads(), testLogger())
	installer := NewInstaller(downloader, importer, testLogger())

	name, err := installer.Install(context.Background(), InstallOptions{
		BaseURL: srv.URL,
		SHA256:  strings.ToUpper(hex.EncodeToString(sum[:])),
	})
	require.NoError(t, err)
	assert.Equal(t, "nightly", name)
	assert.True(t, registry.Exists("nightly"))

	receipt, err := toolchain.ReadReceipt(layout.Toolchain("nightly"))
	require.NoError(t, err)
	assert.Equal(t, toolchain.SourceInstall, receipt.Source)
	assert.Equal(t, "nightly", receipt.Reference)
	assert.Equal(t, hex.EncodeToString(sum[:]), receipt.Checksum)

	entries, err := os.ReadDir(layout.Downloads())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstall_ChecksumMismatch(t *testing.T) {
	layout, registry, importer := setup(t)
	srv := releaseServer(t, "v0.1.0", tarGz(t, releaseFiles("")))

	installer := NewInstaller(NewDownloader(layout.Downloads(), testLogger()), importer, testLogger())
	_, err := installer.Install(context.Background(), InstallOptions{
		Tag:     "v0.1.0",
		BaseURL: srv.URL,
		SHA256:  strings.Repeat("0", 64),
	})
	require.ErrorIs(t, err, zerrors.ErrChecksumMismatch)
	assert.False(t, registry.Exists("v0.1.0"))
}

func TestInstall_MissingRelease(t *testing.T) {
	layout, _, importer := setup(t)
	srv := releaseServer(t, "nightly", nil)

	installer := NewInstaller(NewDownloader(layout.Downloads(), testLogger()), importer, testLogger())
	_, err := installer.Install(context.Background(), InstallOptions{Tag: "v9.9.9", BaseURL: srv.URL})
	assert.ErrorIs(t, err, zerrors.ErrReferenceNotFound)
}

func TestDownloader_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), testLogger())
	_, err := d.Fetch(context.Background(), srv.URL+"/x.tar.gz")
	assert.ErrorIs(t, err, zerrors.ErrNetworkFailure)
}

func TestDownloader_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("z"), 4096))
	}))
	defer srv.Close()

	var progress bytes.Buffer
	d := NewDownloader(t.TempDir(), testLogger())
	d.Progress = &progress

	dl, err := d.Fetch(context.Background(), srv.URL+"/zrc.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), dl.Size)
	assert.True(t, strings.HasSuffix(dl.Path, "-zrc.tar.gz"))
	assert.Contains(t, progress.String(), "4.0 KiB")

	d.Discard(dl.Path)
	assert.NoFileExists(t, dl.Path)
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "2.0 MiB", humanBytes(2*1024*1024))
}
