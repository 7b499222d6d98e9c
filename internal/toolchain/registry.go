// Package toolchain tracks the toolchains installed below a zircon root:
// which exist, which one is active, and how they are added and removed.
package toolchain

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
)

// Info describes one installed toolchain.
type Info struct {
	Name      string
	IsCurrent bool
	// Complete is false for directories left by an interrupted build.
	Complete bool
}

// PruneResult reports a bulk delete. Failures do not stop the batch.
type PruneResult struct {
	Deleted []string
	Failed  map[string]error
}

// Registry reads and mutates the toolchains root of one Layout.
type Registry struct {
	layout *paths.Layout
	logger hclog.Logger
}

// NewRegistry creates a Registry for layout.
func NewRegistry(layout *paths.Layout, logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{layout: layout, logger: logger.Named("registry")}
}

// Layout returns the layout the registry operates on.
func (r *Registry) Layout() *paths.Layout {
	return r.layout
}

// List returns installed toolchains sorted by name. The active indirection
// and hidden entries such as the staging area are not toolchains.
func (r *Registry) List() ([]Info, error) {
	entries, err := os.ReadDir(r.layout.Toolchains())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading toolchains: %w", err)
	}

	current, _, err := r.Current()
	if err != nil {
		return nil, err
	}

	var infos []Info
	for _, e := range entries {
		name := e.Name()
		if name == paths.CurrentLink || strings.HasPrefix(name, ".") || !e.IsDir() {
			continue
		}
		infos = append(infos, Info{
			Name:      name,
			IsCurrent: name == current,
			Complete:  IsComplete(r.layout.Toolchain(name)),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Current returns the name of the active toolchain. ok is false when no
// toolchain is active.
func (r *Registry) Current() (name string, ok bool, err error) {
	target, err := os.Readlink(r.layout.Current())
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		// A plain directory at the indirection path is not an activation.
		if info, statErr := os.Lstat(r.layout.Current()); statErr == nil && info.IsDir() {
			r.logger.Warn("⚠️ Active indirection is not a link, ignoring", "path", r.layout.Current())
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading active toolchain: %w", err)
	}

	name = filepath.Base(filepath.Clean(target))
	if name == "." || name == string(filepath.Separator) {
		return "", false, nil
	}
	return name, true, nil
}

// Exists reports whether a toolchain directory named name is present.
func (r *Registry) Exists(name string) bool {
	if refname.ValidateName(name) != nil {
		return false
	}
	info, err := os.Stat(r.layout.Toolchain(name))
	return err == nil && info.IsDir()
}

// Delete removes toolchain name. The active toolchain is refused before
// anything on disk changes.
func (r *Registry) Delete(name string) error {
	if err := refname.ValidateName(name); err != nil {
		return err
	}

	current, ok, err := r.Current()
	if err != nil {
		return err
	}
	if ok && current == name {
		return zerrors.Wrapf(zerrors.ErrCannotDeleteActive, "%s", name)
	}

	if !r.Exists(name) {
		return zerrors.Wrapf(zerrors.ErrToolchainNotFound, "%s", name)
	}

	r.logger.Debug("🗑️ Deleting toolchain", "name", name)
	if err := os.RemoveAll(r.layout.Toolchain(name)); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// Prunable returns every installed toolchain except the active one.
func (r *Registry) Prunable() ([]string, error) {
	infos, err := r.List()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, info := range infos {
		if !info.IsCurrent {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

// Prune deletes every prunable toolchain independently and clears the
// staging area. The returned error joins the individual failures.
func (r *Registry) Prune() (*PruneResult, error) {
	names, err := r.Prunable()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{Failed: map[string]error{}}
	var errs []error
	for _, name := range names {
		if err := r.Delete(name); err != nil {
			r.logger.Warn("⚠️ Failed to delete toolchain", "name", name, "error", err)
			result.Failed[name] = err
			errs = append(errs, err)
			continue
		}
		result.Deleted = append(result.Deleted, name)
	}

	// Failed imports kept for inspection go with the toolchains.
	r.DiscardStaging(r.layout.Staging())
	return result, errors.Join(errs...)
}

// Reserve prepares the directory a build installs name into and returns it.
// installed is true when a complete toolchain built from the same commit is
// already there; nothing is touched in that case. A complete toolchain from
// another commit is an explicit collision unless force is set. Leftovers of
// an interrupted build are discarded.
func (r *Registry) Reserve(name, commit string, force bool) (dir string, installed bool, err error) {
	if err := refname.ValidateName(name); err != nil {
		return "", false, err
	}
	dir = r.layout.Toolchain(name)

	if r.Exists(name) {
		receipt, rerr := ReadReceipt(dir)
		switch {
		case rerr == nil && receipt.Commit == commit && !force:
			r.logger.Debug("✅ Toolchain already built", "name", name, "commit", commit)
			return dir, true, nil
		case rerr == nil && !force:
			return "", false, zerrors.Wrapf(zerrors.ErrAlreadyExists,
				"%s was built from %s, not %s (use --force to rebuild)", name, receipt.Commit, commit)
		}

		current, ok, err := r.Current()
		if err != nil {
			return "", false, err
		}
		if ok && current == name {
			return "", false, zerrors.Wrapf(zerrors.ErrCannotDeleteActive,
				"%s must be replaced but is active; switch away first", name)
		}

		if rerr != nil {
			r.logger.Info("🧹 Removing incomplete toolchain", "name", name)
		} else {
			r.logger.Info("🔄 Rebuilding toolchain", "name", name)
		}
		if err := os.RemoveAll(dir); err != nil {
			return "", false, fmt.Errorf("clearing %s: %w", dir, err)
		}
	}

	if err := os.MkdirAll(dir, paths.DirPerms); err != nil {
		return "", false, fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, false, nil
}

// NewStaging creates an empty per-process staging directory for name.
func (r *Registry) NewStaging(name string) (string, error) {
	if err := refname.ValidateName(name); err != nil {
		return "", err
	}
	r.sweepStaging(name)
	dir := r.layout.StagingFor(name, os.Getpid())
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clearing staging %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, paths.DirPerms); err != nil {
		return "", fmt.Errorf("creating staging %s: %w", dir, err)
	}
	return dir, nil
}

// sweepStaging removes staging directories other processes left for name,
// such as archives kept for inspection after a failed import. Callers hold
// the root lock, so none of them is in use.
func (r *Registry) sweepStaging(name string) {
	entries, err := os.ReadDir(r.layout.Staging())
	if err != nil {
		return
	}
	own := filepath.Base(r.layout.StagingFor(name, os.Getpid()))
	for _, e := range entries {
		pid, ok := strings.CutPrefix(e.Name(), name+"-")
		if !ok || e.Name() == own || !isDigits(pid) {
			continue
		}
		r.logger.Debug("🧹 Removing stale staging directory", "name", e.Name())
		r.DiscardStaging(filepath.Join(r.layout.Staging(), e.Name()))
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Commit moves a validated staging root into place as toolchain name. An
// existing toolchain is replaced only with force, and never when active.
func (r *Registry) Commit(stagedRoot, name string, force bool) (string, error) {
	if err := refname.ValidateName(name); err != nil {
		return "", err
	}
	dir := r.layout.Toolchain(name)

	if r.Exists(name) {
		if !force {
			return "", zerrors.Wrapf(zerrors.ErrAlreadyExists, "%s", name)
		}
		current, ok, err := r.Current()
		if err != nil {
			return "", err
		}
		if ok && current == name {
			return "", zerrors.Wrapf(zerrors.ErrCannotDeleteActive,
				"%s must be replaced but is active; switch away first", name)
		}
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("clearing %s: %w", dir, err)
		}
	}

	if err := os.Rename(stagedRoot, dir); err != nil {
		return "", fmt.Errorf("moving %s into place: %w", name, err)
	}
	r.logger.Debug("📥 Committed toolchain", "name", name, "dir", dir)
	return dir, nil
}

// DiscardStaging removes a staging directory. Failures are only logged.
func (r *Registry) DiscardStaging(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn("⚠️ Failed to remove staging directory", "dir", dir, "error", err)
	}
}
