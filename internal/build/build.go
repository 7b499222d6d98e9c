// Package build turns a checked-out compiler source tree into a populated
// toolchain directory, either through the repository's own install hook or
// through the built-in cargo fallback.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/paths"
	"github.com/zirco-lang/zircon/pkg/utils/shellparse"
)

const (
	// HookPath is the install hook, relative to the source root.
	HookPath = "hook/install.sh"
	// DestinationEnv tells the hook where to install.
	DestinationEnv = "TOOLCHAIN_DIR"
)

// Options configures a Builder.
type Options struct {
	// BuildCommand is used when the source has no install hook.
	BuildCommand string
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       hclog.Logger
}

// Builder runs builds. It is stateless between calls.
type Builder struct {
	opts   Options
	logger hclog.Logger
}

// New creates a Builder.
func New(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Builder{opts: opts, logger: opts.Logger.Named("build")}
}

// Build installs the toolchain from sourceDir into dest.
func (b *Builder) Build(ctx context.Context, sourceDir, dest string) error {
	hook := filepath.Join(sourceDir, filepath.FromSlash(HookPath))
	if info, err := os.Stat(hook); err == nil && info.Mode().IsRegular() {
		return b.runHook(ctx, sourceDir, dest)
	}

	b.logger.Info("🔨 No install hook found, using fallback build", "command", b.opts.BuildCommand)
	if err := b.runFallback(ctx, sourceDir); err != nil {
		return err
	}
	return InstallArtifacts(sourceDir, dest, b.logger)
}

func (b *Builder) runHook(ctx context.Context, sourceDir, dest string) error {
	b.logger.Debug("🏃 Running install hook", "hook", HookPath, "dest", dest)

	cmd := exec.CommandContext(ctx, "bash", HookPath)
	cmd.Dir = sourceDir
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", DestinationEnv, dest))
	cmd.Stdout = b.opts.Stdout
	cmd.Stderr = b.opts.Stderr

	return b.wait(ctx, cmd, "install hook")
}

func (b *Builder) runFallback(ctx context.Context, sourceDir string) error {
	parsed, err := shellparse.Parse(b.opts.BuildCommand)
	if err != nil {
		return fmt.Errorf("%w: invalid build command %q: %w", zerrors.ErrBuildFailed, b.opts.BuildCommand, err)
	}
	if _, err := lookPath(parsed.Name); err != nil {
		return fmt.Errorf("%w: %s not found on PATH", zerrors.ErrBuildFailed, parsed.Name)
	}

	b.logger.Debug("🏃 Running build command", "command", parsed.String(), "cwd", sourceDir)
	cmd := exec.CommandContext(ctx, parsed.Name, parsed.Args...)
	cmd.Dir = sourceDir
	cmd.Env = append(os.Environ(), parsed.Env...)
	cmd.Stdout = b.opts.Stdout
	cmd.Stderr = b.opts.Stderr

	return b.wait(ctx, cmd, parsed.Name)
}

func (b *Builder) wait(ctx context.Context, cmd *exec.Cmd, what string) error {
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		b.logger.Error("❌ Build step failed", "step", what, "exit_code", exitErr.ExitCode())
		return fmt.Errorf("%w: %s exited with status %d", zerrors.ErrBuildFailed, what, exitErr.ExitCode())
	}
	return fmt.Errorf("%w: running %s: %w", zerrors.ErrBuildFailed, what, err)
}

// artifact is one file the fallback installer copies out of target/release.
type artifact struct {
	name     string
	required bool
}

var artifacts = []artifact{
	{name: "zrc", required: true},
	{name: "zircop", required: false},
}

// InstallArtifacts copies the cargo release binaries and the include
// directory from sourceDir into dest.
func InstallArtifacts(sourceDir, dest string, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	release := filepath.Join(sourceDir, "target", "release")
	binDir := filepath.Join(dest, "bin")
	if err := os.MkdirAll(binDir, paths.DirPerms); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}

	for _, a := range artifacts {
		exe := paths.ExeName(a.name)
		src := filepath.Join(release, exe)
		if _, err := os.Stat(src); err != nil {
			if a.required {
				return fmt.Errorf("%w: %s was not produced", zerrors.ErrBuildFailed, src)
			}
			logger.Debug("Optional binary not built, skipping", "binary", exe)
			continue
		}
		if err := copyFile(src, filepath.Join(binDir, exe), 0o755); err != nil {
			return fmt.Errorf("installing %s: %w", exe, err)
		}
		logger.Debug("📦 Installed binary", "binary", exe)
	}

	include := filepath.Join(sourceDir, "include")
	if info, err := os.Stat(include); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is missing", zerrors.ErrBuildFailed, include)
	}
	if err := copyTree(include, filepath.Join(dest, "include")); err != nil {
		return fmt.Errorf("installing include directory: %w", err)
	}
	return nil
}
