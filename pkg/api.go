// Package pkg is zircon's programmatic surface. Manager ties the path
// layout, repository mirrors, builders and the registry into the
// end-to-end operations the command line exposes.
package pkg

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/zirco-lang/zircon/internal/activate"
	"github.com/zirco-lang/zircon/internal/build"
	"github.com/zirco-lang/zircon/internal/config"
	"github.com/zirco-lang/zircon/internal/install"
	"github.com/zirco-lang/zircon/internal/lock"
	"github.com/zirco-lang/zircon/internal/mirror"
	"github.com/zirco-lang/zircon/internal/paths"
	"github.com/zirco-lang/zircon/internal/refname"
	"github.com/zirco-lang/zircon/internal/toolchain"
)

// Manager runs zircon operations against one root.
type Manager struct {
	Layout   *paths.Layout
	Config   *config.Config
	Registry *toolchain.Registry
	Switch   *activate.Switch

	// Progress receives clone, fetch and download progress.
	Progress io.Writer
	// Stdout and Stderr receive build tool output.
	Stdout io.Writer
	Stderr io.Writer

	logger hclog.Logger
}

// NewManager creates a Manager. A nil cfg means defaults.
func NewManager(layout *paths.Layout, cfg *config.Config, logger hclog.Logger) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return &Manager{
		Layout:   layout,
		Config:   cfg,
		Registry: toolchain.NewRegistry(layout, logger),
		Switch:   activate.New(layout, logger),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		logger:   logger,
	}
}

// Logger returns the manager's logger.
func (m *Manager) Logger() hclog.Logger {
	return m.logger
}

// WithLock runs fn while holding the root's exclusive lock.
func (m *Manager) WithLock(fn func() error) error {
	if err := os.MkdirAll(m.Layout.Root(), paths.DirPerms); err != nil {
		return fmt.Errorf("creating %s: %w", m.Layout.Root(), err)
	}
	l, err := lock.TryAcquire(m.Layout.LockFile(), m.logger)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

func (m *Manager) mirrorOptions() mirror.Options {
	return mirror.Options{
		Progress: m.Progress,
		Auth:     mirror.TokenAuth(m.Config.GitToken),
		Logger:   m.logger,
	}
}

// BuildOptions selects what to build.
type BuildOptions struct {
	Ref string
	// RepoURL overrides the configured compiler repository.
	RepoURL string
	// Force rebuilds a toolchain whose name is taken by another commit.
	Force bool
	// NoSwitch leaves the active toolchain alone.
	NoSwitch bool
}

// BuildResult describes a finished build.
type BuildResult struct {
	Name             string
	Reference        refname.Reference
	Commit           string
	AlreadyInstalled bool
	Activation       *activate.Result
}

// Build syncs the compiler mirror, checks out opts.Ref, builds it into its
// toolchain directory and activates it. The active toolchain only changes
// after the new one is built and validated.
func (m *Manager) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	if err := m.Layout.EnsureDirectories(); err != nil {
		return nil, err
	}
	repoURL := opts.RepoURL
	if repoURL == "" {
		repoURL = m.Config.ToolchainRepo
	}

	src, err := mirror.CloneOrOpen(ctx, repoURL, m.Layout.ToolchainSource(), m.mirrorOptions())
	if err != nil {
		return nil, err
	}
	if err := src.Fetch(ctx); err != nil {
		return nil, err
	}

	ref := refname.Classify(src, opts.Ref)
	resolution, err := src.Checkout(ctx, opts.Ref)
	if err != nil {
		return nil, err
	}
	short, err := src.CurrentCommitShort()
	if err != nil {
		return nil, err
	}

	name := refname.ToolchainName(ref, short)
	if err := refname.ValidateName(name); err != nil {
		return nil, err
	}
	commit := resolution.Commit.String()
	m.logger.Info("🎯 Resolved reference", "ref", opts.Ref, "kind", ref.Kind, "commit", short, "toolchain", name)

	dir, installed, err := m.Registry.Reserve(name, commit, opts.Force)
	if err != nil {
		return nil, err
	}
	result := &BuildResult{Name: name, Reference: ref, Commit: commit, AlreadyInstalled: installed}

	if !installed {
		builder := build.New(build.Options{
			BuildCommand: m.Config.BuildCommand,
			Stdout:       m.Stdout,
			Stderr:       m.Stderr,
			Logger:       m.logger,
		})
		if err := builder.Build(ctx, src.Path(), dir); err != nil {
			m.logger.Warn("⚠️ Build failed, the incomplete toolchain is left for inspection", "dir", dir)
			return result, err
		}
		if err := toolchain.ValidateStructure(dir, toolchain.PrimaryExecutable); err != nil {
			return result, err
		}
		if err := toolchain.WriteReceipt(dir, toolchain.Receipt{
			Name:      name,
			Source:    toolchain.SourceBuild,
			Kind:      ref.Kind.String(),
			Reference: opts.Ref,
			Commit:    commit,
		}); err != nil {
			return result, err
		}
	}

	if opts.NoSwitch {
		return result, nil
	}
	result.Activation, err = m.Switch.Activate(name)
	return result, err
}

// Install downloads and imports a release toolchain, activating it unless
// noSwitch is set.
func (m *Manager) Install(ctx context.Context, opts install.InstallOptions, noSwitch bool) (string, *activate.Result, error) {
	if err := m.Layout.EnsureDirectories(); err != nil {
		return "", nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = m.Config.ReleaseBaseURL
	}

	downloader := install.NewDownloader(m.Layout.Downloads(), m.logger)
	downloader.Progress = m.Progress
	installer := install.NewInstaller(downloader, install.NewImporter(m.Registry, m.logger), m.logger)

	name, err := installer.Install(ctx, opts)
	if err != nil || noSwitch {
		return name, nil, err
	}
	result, err := m.Switch.Activate(name)
	return name, result, err
}

// Import adds a local archive as a toolchain, activating it when switchTo
// is set.
func (m *Manager) Import(ctx context.Context, archivePath string, opts install.ImportOptions, switchTo bool) (string, *activate.Result, error) {
	if err := m.Layout.EnsureDirectories(); err != nil {
		return "", nil, err
	}
	name, err := install.NewImporter(m.Registry, m.logger).Import(ctx, archivePath, opts)
	if err != nil || !switchTo {
		return name, nil, err
	}
	result, err := m.Switch.Activate(name)
	return name, result, err
}

// Versions lists the compiler's release tags, newest first.
func (m *Manager) Versions(ctx context.Context) ([]string, error) {
	if err := m.Layout.EnsureDirectories(); err != nil {
		return nil, err
	}
	src, err := mirror.CloneOrOpen(ctx, m.Config.ToolchainRepo, m.Layout.ToolchainSource(), m.mirrorOptions())
	if err != nil {
		return nil, err
	}
	if err := src.Fetch(ctx); err != nil {
		return nil, err
	}
	tags, err := src.Tags()
	if err != nil {
		return nil, err
	}
	return refname.SortVersions(tags), nil
}

// Bootstrap prepares a fresh root and returns dependency warnings.
func (m *Manager) Bootstrap(ctx context.Context) ([]string, error) {
	if err := m.Layout.EnsureDirectories(); err != nil {
		return nil, err
	}
	return build.CheckDependencies(ctx, m.logger), nil
}
