package update

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zirco-lang/zircon/internal/mirror"
	"github.com/zirco-lang/zircon/internal/paths"
)

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "update_test",
		Level: hclog.Trace,
	})
}

type selfRepo struct {
	t    *testing.T
	path string
	wt   *git.Worktree
	n    int
}

func newSelfRepo(t *testing.T) *selfRepo {
	t.Helper()
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("local clones need git-upload-pack for the file transport")
	}
	path := t.TempDir()
	repo, err := git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(MainBranch)},
	})
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &selfRepo{t: t, path: path, wt: wt}
}

func (r *selfRepo) commit() plumbing.Hash {
	r.t.Helper()
	r.n++
	require.NoError(r.t, os.WriteFile(filepath.Join(r.path, "VERSION"), []byte{byte('0' + r.n)}, 0o644))
	_, err := r.wt.Add("VERSION")
	require.NoError(r.t, err)
	hash, err := r.wt.Commit("release", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(r.t, err)
	return hash
}

func setupChecker(t *testing.T, upstream *selfRepo) (*paths.Layout, *Checker) {
	t.Helper()
	layout := paths.New(t.TempDir())
	require.NoError(t, layout.EnsureDirectories())

	_, err := mirror.CloneOrOpen(context.Background(), upstream.path, layout.SelfSource(), mirror.Options{Logger: testLogger()})
	require.NoError(t, err)
	return layout, NewChecker(layout, upstream.path, testLogger())
}

func TestChecker_UpToDate(t *testing.T) {
	upstream := newSelfRepo(t)
	upstream.commit()
	_, checker := setupChecker(t, upstream)

	available, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, available)
}

func TestChecker_DetectsNewerUpstream(t *testing.T) {
	upstream := newSelfRepo(t)
	upstream.commit()
	layout, checker := setupChecker(t, upstream)
	upstream.commit()

	var out bytes.Buffer
	assert.True(t, checker.Remind(context.Background(), &out))
	assert.Contains(t, out.String(), "zircon self update")
	assert.FileExists(t, layout.UpdateStamp())
}

func TestChecker_RunsOncePerInterval(t *testing.T) {
	upstream := newSelfRepo(t)
	upstream.commit()
	_, checker := setupChecker(t, upstream)

	now := time.Now()
	checker.Now = func() time.Time { return now }

	_, err := checker.Check(context.Background())
	require.NoError(t, err)
	upstream.commit()

	assert.False(t, checker.Due())
	available, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, available, "second check inside the interval is skipped")

	checker.Now = func() time.Time { return now.Add(DefaultInterval + time.Minute) }
	assert.True(t, checker.Due())
	available, err = checker.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, available)
}

func TestChecker_NoSelfMirror(t *testing.T) {
	layout := paths.New(t.TempDir())
	checker := NewChecker(layout, "https://invalid.example/zircon.git", testLogger())

	available, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, available)
	assert.NoFileExists(t, layout.UpdateStamp())
}

func TestChecker_RemindSwallowsErrors(t *testing.T) {
	layout := paths.New(t.TempDir())
	require.NoError(t, os.MkdirAll(layout.SelfSource(), 0o755))
	checker := NewChecker(layout, "https://invalid.example/zircon.git", testLogger())

	var out bytes.Buffer
	assert.False(t, checker.Remind(context.Background(), &out))
	assert.Empty(t, out.String())
}

func TestLinkSelf(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	layout := paths.New(t.TempDir())
	require.NoError(t, layout.EnsureDirectories())
	require.NoError(t, os.WriteFile(layout.SelfBinary(), []byte("zircon"), 0o755))

	require.NoError(t, LinkSelf(layout))
	require.NoError(t, LinkSelf(layout))

	target, err := os.Readlink(layout.BinaryLink(paths.SelfRepo))
	require.NoError(t, err)
	assert.Equal(t, layout.SelfBinary(), target)
}
