// Package paths computes the on-disk layout of a zircon root.
//
// Every method is a pure path computation; only EnsureDirectories touches
// the filesystem.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

// RootEnv overrides the default root directory.
const RootEnv = "ZIRCON_PREFIX"

const (
	// Organisation and project names of the upstream repositories.
	UpstreamOrg     = "zirco-lang"
	ToolchainRepo   = "zrc"
	SelfRepo        = "zircon"
	DefaultRootName = ".zircon"

	// CurrentLink is the name of the active indirection inside the toolchains root.
	CurrentLink = "current"
	// StagingDir holds in-flight imports; hidden so listings skip it.
	StagingDir = ".staging"

	DirPerms = 0o755
)

// Layout manages all paths below one zircon root.
type Layout struct {
	root string
}

// New returns a Layout rooted at root.
func New(root string) *Layout {
	return &Layout{root: filepath.Clean(root)}
}

// FromEnv returns the Layout for ZIRCON_PREFIX, or ~/.zircon when unset.
func FromEnv() *Layout {
	return New(DefaultRoot())
}

// DefaultRoot resolves the root directory from the environment.
func DefaultRoot() string {
	if prefix := os.Getenv(RootEnv); prefix != "" {
		return prefix
	}
	if xdg.Home != "" {
		return filepath.Join(xdg.Home, DefaultRootName)
	}
	return DefaultRootName
}

// ExeName appends the platform executable suffix.
func ExeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// ==================== Root ====================

// Root returns the zircon root directory.
func (l *Layout) Root() string {
	return l.root
}

// LockFile returns the advisory lock path guarding mutating commands.
func (l *Layout) LockFile() string {
	return filepath.Join(l.root, ".lock")
}

// UpdateStamp returns the file whose mtime records the last update check.
func (l *Layout) UpdateStamp() string {
	return filepath.Join(l.root, ".last_update_check")
}

// ConfigFile returns the optional YAML configuration path.
func (l *Layout) ConfigFile() string {
	return filepath.Join(l.root, "config.yaml")
}

// Downloads returns the directory for temporary release downloads.
func (l *Layout) Downloads() string {
	return filepath.Join(l.root, "downloads")
}

// ==================== Sources ====================

// Sources returns the root of all repository mirrors.
func (l *Layout) Sources() string {
	return filepath.Join(l.root, "sources")
}

// Mirror returns the mirror directory for org/project.
func (l *Layout) Mirror(org, project string) string {
	return filepath.Join(l.Sources(), org, project)
}

// ToolchainSource returns the mirror of the compiler repository.
func (l *Layout) ToolchainSource() string {
	return l.Mirror(UpstreamOrg, ToolchainRepo)
}

// SelfSource returns the mirror of zircon's own repository.
func (l *Layout) SelfSource() string {
	return l.Mirror(UpstreamOrg, SelfRepo)
}

// ==================== Toolchains ====================

// Toolchains returns the toolchains root.
func (l *Layout) Toolchains() string {
	return filepath.Join(l.root, "toolchains")
}

// Toolchain returns the directory of one toolchain.
func (l *Layout) Toolchain(name string) string {
	return filepath.Join(l.Toolchains(), name)
}

// ToolchainBin returns the bin directory of one toolchain.
func (l *Layout) ToolchainBin(name string) string {
	return filepath.Join(l.Toolchain(name), "bin")
}

// ToolchainInclude returns the include directory of one toolchain.
func (l *Layout) ToolchainInclude(name string) string {
	return filepath.Join(l.Toolchain(name), "include")
}

// ToolchainBinary returns the path of exe inside a toolchain's bin directory.
func (l *Layout) ToolchainBinary(name, exe string) string {
	return filepath.Join(l.ToolchainBin(name), ExeName(exe))
}

// Current returns the active indirection path.
func (l *Layout) Current() string {
	return filepath.Join(l.Toolchains(), CurrentLink)
}

// Staging returns the staging area for imports.
func (l *Layout) Staging() string {
	return filepath.Join(l.Toolchains(), StagingDir)
}

// StagingFor returns a per-process staging directory for name.
func (l *Layout) StagingFor(name string, pid int) string {
	return filepath.Join(l.Staging(), fmt.Sprintf("%s-%d", name, pid))
}

// ==================== Shell-facing links ====================

// Bin returns the directory exposed on the user's PATH.
func (l *Layout) Bin() string {
	return filepath.Join(l.root, "bin")
}

// BinaryLink returns the convenience link for exe in Bin.
func (l *Layout) BinaryLink(exe string) string {
	return filepath.Join(l.Bin(), ExeName(exe))
}

// IncludeLink returns the link to the active toolchain's headers.
func (l *Layout) IncludeLink() string {
	return filepath.Join(l.root, "include")
}

// ==================== Self ====================

// Self returns the directory holding zircon's own installation.
func (l *Layout) Self() string {
	return filepath.Join(l.root, "self")
}

// SelfBin returns the bin directory of zircon's own installation.
func (l *Layout) SelfBin() string {
	return filepath.Join(l.Self(), "bin")
}

// SelfBinary returns the installed zircon executable.
func (l *Layout) SelfBinary() string {
	return filepath.Join(l.SelfBin(), ExeName(SelfRepo))
}

// EnsureDirectories creates the root skeleton. Safe to call on every
// invocation.
func (l *Layout) EnsureDirectories() error {
	for _, dir := range []string{
		l.Mirror(UpstreamOrg, ""),
		l.Toolchains(),
		l.SelfBin(),
		l.Bin(),
	} {
		if err := os.MkdirAll(dir, DirPerms); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
