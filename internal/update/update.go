// Package update keeps zircon itself current: a once-a-day reminder when
// the self mirror is behind upstream, and the self update that rebuilds
// the manager from that mirror.
package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/hashicorp/go-hclog"

	"github.com/zirco-lang/zircon/internal/mirror"
	"github.com/zirco-lang/zircon/internal/paths"
)

const (
	// DefaultInterval is the minimum time between two reminder checks.
	DefaultInterval = 24 * time.Hour
	// MainBranch is the upstream branch self updates track.
	MainBranch = "main"

	checkTimeout = 15 * time.Second
)

// Checker decides whether a newer zircon is available upstream.
type Checker struct {
	layout   *paths.Layout
	repoURL  string
	Interval time.Duration
	Auth     transport.AuthMethod
	Now      func() time.Time
	logger   hclog.Logger
}

// NewChecker creates a Checker comparing the self mirror with repoURL.
func NewChecker(layout *paths.Layout, repoURL string, logger hclog.Logger) *Checker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Checker{
		layout:   layout,
		repoURL:  repoURL,
		Interval: DefaultInterval,
		Now:      time.Now,
		logger:   logger.Named("update"),
	}
}

// Due reports whether the last check is older than Interval.
func (c *Checker) Due() bool {
	info, err := os.Stat(c.layout.UpdateStamp())
	if err != nil {
		return true
	}
	return c.Now().Sub(info.ModTime()) >= c.Interval
}

func (c *Checker) touch() error {
	stamp := c.layout.UpdateStamp()
	if _, err := os.Stat(stamp); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(stamp, nil, 0o644); err != nil {
			return err
		}
	}
	now := c.Now()
	return os.Chtimes(stamp, now, now)
}

// Check fetches the self mirror and reports whether upstream main has moved
// past the installed revision. It only runs when Due, and does nothing when
// zircon was not installed from a mirror.
func (c *Checker) Check(ctx context.Context) (bool, error) {
	if !c.Due() {
		return false, nil
	}
	if _, err := os.Stat(c.layout.SelfSource()); err != nil {
		return false, nil
	}
	// Record the attempt first so an offline machine is not slowed down on
	// every invocation.
	if err := c.touch(); err != nil {
		return false, fmt.Errorf("recording update check: %w", err)
	}

	m, err := mirror.CloneOrOpen(ctx, c.repoURL, c.layout.SelfSource(), mirror.Options{Auth: c.Auth, Logger: c.logger})
	if err != nil {
		return false, err
	}
	if err := m.Fetch(ctx); err != nil {
		return false, err
	}

	head, err := m.HeadHash()
	if err != nil {
		return false, err
	}
	upstream, err := m.RemoteBranchHash(MainBranch)
	if err != nil {
		return false, err
	}
	if head == upstream {
		return false, nil
	}
	return m.IsAncestor(head, upstream)
}

// Remind prints a notice to out when an update is available. Every failure
// is swallowed.
func (c *Checker) Remind(ctx context.Context, out io.Writer) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	available, err := c.Check(ctx)
	if err != nil {
		c.logger.Debug("Update check failed", "error", err)
		return false
	}
	if available {
		fmt.Fprintln(out, "💎 A new version of zircon is available. Run `zircon self update` to install it.")
	}
	return available
}
