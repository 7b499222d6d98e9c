// Package mirror keeps local, persistent mirrors of upstream git
// repositories: clone once, fetch thereafter, and check out references with
// a fixed resolution order.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/hashicorp/go-hclog"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
)

const (
	// ShortHashLen is the length of the commit prefix used in toolchain names.
	ShortHashLen = 8

	// DefaultRemoteName is the remote every mirror is cloned from.
	DefaultRemoteName = "origin"
)

// fetchRefSpecs update every remote branch and every tag.
var fetchRefSpecs = []config.RefSpec{
	"+refs/heads/*:refs/remotes/origin/*",
	"+refs/tags/*:refs/tags/*",
}

// Options configures clone and fetch.
type Options struct {
	// Progress receives the remote's transfer progress. Nil discards it.
	Progress io.Writer

	// Auth is used for every network operation when set.
	Auth transport.AuthMethod

	Logger hclog.Logger
}

// TokenAuth returns HTTPS basic auth carrying a personal access token.
func TokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}

// Mirror is an opened repository mirror.
type Mirror struct {
	repo   *git.Repository
	path   string
	opts   Options
	logger hclog.Logger
}

// CloneOrOpen opens the mirror at path, cloning url into it first when path
// does not exist yet.
func CloneOrOpen(ctx context.Context, url, path string, opts Options) (*Mirror, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	logger := opts.Logger.Named("mirror").With("path", path)

	if _, err := os.Stat(path); err == nil {
		logger.Debug("📂 Opening existing mirror")
		storage, err := newStorage(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", path, zerrors.ErrRepositoryCorrupt, err)
		}
		repo, err := git.Open(storage, osfs.New(path))
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", path, zerrors.ErrRepositoryCorrupt, err)
		}
		return &Mirror{repo: repo, path: path, opts: opts, logger: logger}, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat mirror %s: %w", path, err)
	}

	if url == "" {
		return nil, zerrors.Wrap(zerrors.ErrReferenceNotFound, "remote URL cannot be empty")
	}

	logger.Info("📥 Cloning mirror", "url", url)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror directory: %w", err)
	}

	storage, err := newStorage(path)
	if err != nil {
		return nil, err
	}
	repo, err := git.CloneContext(ctx, storage, osfs.New(path), &git.CloneOptions{
		URL:      url,
		Auth:     opts.Auth,
		Progress: opts.Progress,
		Tags:     git.AllTags,
	})
	if err != nil {
		// A half-written clone would be reported as corrupt on the next run.
		if rmErr := os.RemoveAll(path); rmErr != nil {
			logger.Warn("⚠️ Failed to remove partial clone", "error", rmErr)
		}
		return nil, fmt.Errorf("clone %s: %w: %w", url, zerrors.ErrNetworkFailure, err)
	}
	logger.Info("✅ Clone complete")

	return &Mirror{repo: repo, path: path, opts: opts, logger: logger}, nil
}

func newStorage(path string) (*filesystem.Storage, error) {
	dotGit, err := osfs.New(path).Chroot(git.GitDirName)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s directory: %w", git.GitDirName, err)
	}
	return filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault()), nil
}

// Path returns the mirror's working tree.
func (m *Mirror) Path() string {
	return m.path
}

// Fetch updates all remote-tracking branches and tags. An up-to-date mirror
// is not an error.
func (m *Mirror) Fetch(ctx context.Context) error {
	m.logger.Info("🔄 Fetching updates")

	err := m.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: DefaultRemoteName,
		RefSpecs:   fetchRefSpecs,
		Auth:       m.opts.Auth,
		Progress:   m.opts.Progress,
		Tags:       git.AllTags,
		Force:      true,
	})
	switch {
	case err == nil:
		m.logger.Info("✅ Fetch complete")
		return nil
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		m.logger.Debug("Mirror already up to date")
		return nil
	case errors.Is(err, git.ErrRemoteNotFound):
		return fmt.Errorf("%w: remote %q missing", zerrors.ErrRepositoryCorrupt, DefaultRemoteName)
	default:
		return fmt.Errorf("fetch: %w: %w", zerrors.ErrNetworkFailure, err)
	}
}
