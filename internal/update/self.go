package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/hashicorp/go-hclog"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/mirror"
	"github.com/zirco-lang/zircon/internal/paths"
)

// SelfPackage is the main package built by a self update.
const SelfPackage = "./cmd/zircon"

// SelfUpdater rebuilds zircon from the self mirror.
type SelfUpdater struct {
	layout   *paths.Layout
	repoURL  string
	Auth     transport.AuthMethod
	Progress io.Writer
	Stdout   io.Writer
	Stderr   io.Writer
	logger   hclog.Logger
}

// NewSelfUpdater creates a SelfUpdater for repoURL.
func NewSelfUpdater(layout *paths.Layout, repoURL string, logger hclog.Logger) *SelfUpdater {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &SelfUpdater{
		layout:  layout,
		repoURL: repoURL,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		logger:  logger.Named("self"),
	}
}

// Update syncs the self mirror to upstream main, builds the manager with
// go build, installs it into self/bin and links bin/zircon to it. It
// returns the short commit that was installed.
func (s *SelfUpdater) Update(ctx context.Context) (string, error) {
	m, err := mirror.CloneOrOpen(ctx, s.repoURL, s.layout.SelfSource(), mirror.Options{
		Progress: s.Progress,
		Auth:     s.Auth,
		Logger:   s.logger,
	})
	if err != nil {
		return "", err
	}
	if err := m.Fetch(ctx); err != nil {
		return "", err
	}
	if _, err := m.Checkout(ctx, MainBranch); err != nil {
		return "", err
	}
	short, err := m.CurrentCommitShort()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.layout.SelfBin(), paths.DirPerms); err != nil {
		return "", fmt.Errorf("creating %s: %w", s.layout.SelfBin(), err)
	}
	// Build next to the target and rename, so a failed build leaves the
	// running binary alone.
	tmp := s.layout.SelfBinary() + ".new"
	if err := s.goBuild(ctx, m.Path(), tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, s.layout.SelfBinary()); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("installing zircon: %w", err)
	}

	if err := LinkSelf(s.layout); err != nil {
		return short, err
	}
	s.logger.Info("✅ Updated zircon", "commit", short)
	return short, nil
}

func (s *SelfUpdater) goBuild(ctx context.Context, sourceDir, output string) error {
	if _, err := exec.LookPath("go"); err != nil {
		return fmt.Errorf("%w: go was not found on PATH", zerrors.ErrBuildFailed)
	}
	cmd := exec.CommandContext(ctx, "go", "build", "-o", output, SelfPackage)
	cmd.Dir = sourceDir
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	s.logger.Debug("🔨 Building zircon", "dir", sourceDir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: go build exited with status %d", zerrors.ErrBuildFailed, exitErr.ExitCode())
		}
		return fmt.Errorf("%w: %w", zerrors.ErrBuildFailed, err)
	}
	return nil
}

// LinkSelf points bin/zircon at the installed manager binary.
func LinkSelf(layout *paths.Layout) error {
	link := layout.BinaryLink(paths.SelfRepo)
	if err := os.MkdirAll(layout.Bin(), paths.DirPerms); err != nil {
		return err
	}
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", link, err)
	}
	if err := os.Symlink(layout.SelfBinary(), link); err != nil {
		return fmt.Errorf("linking %s: %w", link, err)
	}
	return nil
}
