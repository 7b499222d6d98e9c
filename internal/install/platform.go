// Package install adds pre-built toolchains: it downloads release archives
// and imports local archives through a staging directory.
package install

import (
	"fmt"
	"runtime"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
)

// DefaultTag is the release installed when none is named.
const DefaultTag = "nightly"

var (
	osNames   = map[string]string{"linux": "linux", "darwin": "macos"}
	archNames = map[string]string{"amd64": "x64", "arm64": "arm64"}
)

// ArtifactName returns the release asset name for goos/goarch, for example
// zrc-linux-x64.tar.gz.
func ArtifactName(goos, goarch string) (string, error) {
	osName, ok := osNames[goos]
	if !ok {
		return "", zerrors.Wrapf(zerrors.ErrUnsupportedPlatform, "no release builds for %s", goos)
	}
	arch, ok := archNames[goarch]
	if !ok {
		return "", zerrors.Wrapf(zerrors.ErrUnsupportedPlatform, "no release builds for %s/%s", goos, goarch)
	}
	return fmt.Sprintf("zrc-%s-%s.tar.gz", osName, arch), nil
}

// HostArtifactName is ArtifactName for the running platform.
func HostArtifactName() (string, error) {
	return ArtifactName(runtime.GOOS, runtime.GOARCH)
}

// ReleaseURL returns the download URL of artifact in the release tagged tag.
func ReleaseURL(baseURL, tag, artifact string) string {
	return fmt.Sprintf("%s/%s/%s", trimSlash(baseURL), tag, artifact)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
