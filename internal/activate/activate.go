// Package activate moves the active-toolchain indirection and keeps the
// convenience links in the shared bin directory in step with it.
package activate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/paths"
	"github.com/zirco-lang/zircon/internal/refname"
	"github.com/zirco-lang/zircon/internal/toolchain"
	"github.com/zirco-lang/zircon/pkg/utils/permissions"
)

// Switch repoints the active toolchain of one Layout.
type Switch struct {
	layout *paths.Layout
	logger hclog.Logger
}

// New creates a Switch for layout.
func New(layout *paths.Layout, logger hclog.Logger) *Switch {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Switch{layout: layout, logger: logger.Named("activate")}
}

// Result lists what an activation changed.
type Result struct {
	Previous string
	Linked   []string
	Removed  []string
	Include  bool
}

// Activate makes name the active toolchain. The toolchain is validated
// first; if validation fails the indirection is left untouched.
func (s *Switch) Activate(name string) (*Result, error) {
	if err := refname.ValidateName(name); err != nil {
		return nil, err
	}

	dir := s.layout.Toolchain(name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, zerrors.Wrapf(zerrors.ErrToolchainNotFound, "%s", name)
	}
	if err := toolchain.ValidateStructure(dir, toolchain.PrimaryExecutable); err != nil {
		return nil, err
	}
	if !toolchain.IsComplete(dir) {
		s.logger.Warn("⚠️ Activating a toolchain without a receipt", "name", name)
	}

	result := &Result{}
	registry := toolchain.NewRegistry(s.layout, s.logger)
	previous, hadPrevious, err := registry.Current()
	if err != nil {
		return nil, err
	}
	if hadPrevious {
		result.Previous = previous
	}
	previousExes := map[string]bool{}
	if hadPrevious {
		previousExes = s.executables(s.layout.ToolchainBin(previous))
	}

	s.logger.Debug("🔀 Switching toolchain", "from", previous, "to", name)
	if err := replaceDirLink(s.layout.Current(), name, dir); err != nil {
		return nil, fmt.Errorf("repointing %s: %w", s.layout.Current(), err)
	}

	if err := s.reconcileBin(name, previousExes, result); err != nil {
		return result, err
	}
	if err := s.reconcileInclude(name, result); err != nil {
		return result, err
	}
	return result, nil
}

// executables returns the names of the files in binDir a user can run.
func (s *Switch) executables(binDir string) map[string]bool {
	names := map[string]bool{}
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return names
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := os.Stat(filepath.Join(binDir, e.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if !isRunnable(e.Name(), info.Mode()) {
			continue
		}
		names[e.Name()] = true
	}
	return names
}

func (s *Switch) reconcileBin(name string, previous map[string]bool, result *Result) error {
	binDir := s.layout.Bin()
	if err := os.MkdirAll(binDir, paths.DirPerms); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	self := paths.ExeName(paths.SelfRepo)

	wanted := s.executables(s.layout.ToolchainBin(name))
	for exe := range wanted {
		if exe == self {
			continue
		}
		rel := filepath.Join("..", "toolchains", paths.CurrentLink, "bin", exe)
		abs := filepath.Join(s.layout.ToolchainBin(paths.CurrentLink), exe)
		if err := replaceFileLink(filepath.Join(binDir, exe), rel, abs); err != nil {
			return fmt.Errorf("linking %s: %w", exe, err)
		}
		result.Linked = append(result.Linked, exe)
	}
	sort.Strings(result.Linked)

	entries, err := os.ReadDir(binDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", binDir, err)
	}
	for _, e := range entries {
		exe := e.Name()
		if exe == self || wanted[exe] {
			continue
		}
		if !previous[exe] && !pointsIntoCurrent(filepath.Join(binDir, exe)) {
			continue
		}
		s.logger.Debug("🧹 Removing stale link", "name", exe)
		if err := os.Remove(filepath.Join(binDir, exe)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing stale link %s: %w", exe, err)
		}
		result.Removed = append(result.Removed, exe)
	}
	return nil
}

func (s *Switch) reconcileInclude(name string, result *Result) error {
	link := s.layout.IncludeLink()
	include := s.layout.ToolchainInclude(name)

	if info, err := os.Stat(include); err == nil && info.IsDir() {
		target := filepath.Join("toolchains", paths.CurrentLink, "include")
		if err := replaceDirLink(link, target, s.layout.ToolchainInclude(paths.CurrentLink)); err != nil {
			return fmt.Errorf("linking include: %w", err)
		}
		result.Include = true
		return nil
	}

	// Only a link we own is removed; a real directory is the user's.
	if info, err := os.Lstat(link); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("removing include link: %w", err)
		}
	}
	return nil
}

// pointsIntoCurrent reports whether link is a symlink through the active
// indirection.
func pointsIntoCurrent(link string) bool {
	target, err := os.Readlink(link)
	if err != nil {
		return false
	}
	marker := filepath.Join("toolchains", paths.CurrentLink, "bin")
	return strings.Contains(filepath.Clean(target), marker)
}

func isRunnable(name string, mode fs.FileMode) bool {
	if windowsHost {
		return strings.EqualFold(filepath.Ext(name), ".exe")
	}
	return permissions.IsExecutable(mode)
}
