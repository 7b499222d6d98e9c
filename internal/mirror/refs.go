package mirror

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
)

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)

// Resolution describes what Checkout moved the work tree to.
type Resolution struct {
	// Reference is the full reference name, empty for a bare commit.
	Reference plumbing.ReferenceName
	Commit    plumbing.Hash
	Detached  bool
}

// Checkout resolves refName and moves the work tree and HEAD to it.
//
// Resolution order:
//  1. refs/remotes/origin/<refName>, so a fetch is always honoured even when
//     a stale local branch of the same name exists; the local branch is
//     moved to it and HEAD attached;
//  2. git's short-name rules (tags, local branches, ...);
//  3. a full or abbreviated commit hash.
func (m *Mirror) Checkout(ctx context.Context, refName string) (*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if refName == "" {
		return nil, zerrors.Wrap(zerrors.ErrReferenceNotFound, "reference cannot be empty")
	}

	res, err := m.resolve(refName)
	if err != nil {
		return nil, err
	}

	wt, err := m.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	checkout := &git.CheckoutOptions{Force: true}
	switch {
	case res.Reference.IsRemote():
		// Like "git checkout -B": the local branch is reset to the fetched
		// commit and HEAD attaches to it.
		local := plumbing.NewBranchReferenceName(refName)
		if err := m.repo.Storer.SetReference(plumbing.NewHashReference(local, res.Commit)); err != nil {
			return nil, fmt.Errorf("failed to update branch %s: %w", refName, err)
		}
		checkout.Branch = local
	case res.Reference.IsBranch():
		checkout.Branch = res.Reference
	default:
		checkout.Hash = res.Commit
		res.Detached = true
	}
	if err := wt.Checkout(checkout); err != nil {
		return nil, fmt.Errorf("failed to check out %s: %w", refName, err)
	}

	m.logger.Info("✅ Checked out", "ref", refName, "commit", res.Commit.String()[:ShortHashLen], "detached", res.Detached)
	return res, nil
}

func (m *Mirror) resolve(refName string) (*Resolution, error) {
	remote := plumbing.NewRemoteReferenceName(DefaultRemoteName, refName)
	if ref, err := m.repo.Reference(remote, true); err == nil {
		commit, err := m.peel(ref.Hash())
		if err != nil {
			return nil, err
		}
		return &Resolution{Reference: remote, Commit: commit.Hash}, nil
	}

	if ref, ok := m.lookupShortName(refName); ok {
		commit, err := m.peel(ref.Hash())
		if err != nil {
			return nil, err
		}
		return &Resolution{Reference: ref.Name(), Commit: commit.Hash}, nil
	}

	if hash, ok := m.resolveCommit(refName); ok {
		return &Resolution{Commit: hash}, nil
	}

	return nil, zerrors.Wrapf(zerrors.ErrReferenceNotFound, "%q", refName)
}

// lookupShortName walks git's rev-parse rules and returns the first reference
// found, resolved through symbolic references.
func (m *Mirror) lookupShortName(name string) (*plumbing.Reference, bool) {
	for _, rule := range plumbing.RefRevParseRules {
		candidate := plumbing.ReferenceName(fmt.Sprintf(rule, name))
		ref, err := m.repo.Reference(candidate, true)
		if err != nil || ref.Hash().IsZero() {
			continue
		}
		// Keep the matched name, not the name of whatever it points to.
		return plumbing.NewHashReference(candidate, ref.Hash()), true
	}
	return nil, false
}

func (m *Mirror) resolveCommit(name string) (plumbing.Hash, bool) {
	if !hexPattern.MatchString(name) {
		return plumbing.ZeroHash, false
	}
	name = strings.ToLower(name)

	var hash plumbing.Hash
	if len(name) == 40 {
		hash = plumbing.NewHash(name)
	} else {
		resolved, err := m.repo.ResolveRevision(plumbing.Revision(name))
		if err != nil {
			return plumbing.ZeroHash, false
		}
		hash = *resolved
	}
	// ResolveRevision also accepts reference names; only a hash prefix counts here.
	if !strings.HasPrefix(hash.String(), name) {
		return plumbing.ZeroHash, false
	}
	if _, err := m.repo.CommitObject(hash); err != nil {
		return plumbing.ZeroHash, false
	}
	return hash, true
}

// peel follows annotated tags down to the commit they name.
func (m *Mirror) peel(hash plumbing.Hash) (*object.Commit, error) {
	for depth := 0; depth < 10; depth++ {
		obj, err := m.repo.Object(plumbing.AnyObject, hash)
		if err != nil {
			return nil, fmt.Errorf("%w: object %s: %w", zerrors.ErrReferenceNotFound, hash, err)
		}
		switch o := obj.(type) {
		case *object.Commit:
			return o, nil
		case *object.Tag:
			hash = o.Target
		default:
			return nil, zerrors.Wrapf(zerrors.ErrReferenceNotFound, "%s is a %s, not a commit", hash, obj.Type())
		}
	}
	return nil, zerrors.Wrapf(zerrors.ErrReferenceNotFound, "tag chain at %s too deep", hash)
}

// CurrentCommitShort returns the checked-out commit truncated to ShortHashLen.
func (m *Mirror) CurrentCommitShort() (string, error) {
	head, err := m.HeadHash()
	if err != nil {
		return "", err
	}
	return head[:ShortHashLen], nil
}

// HeadHash returns the full hash HEAD points at.
func (m *Mirror) HeadHash() (string, error) {
	head, err := m.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	commit, err := m.peel(head.Hash())
	if err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}

// RemoteBranchHash returns the commit of origin/<branch>.
func (m *Mirror) RemoteBranchHash(branch string) (string, error) {
	ref, err := m.repo.Reference(plumbing.NewRemoteReferenceName(DefaultRemoteName, branch), true)
	if err != nil {
		return "", zerrors.Wrapf(zerrors.ErrReferenceNotFound, "%s/%s", DefaultRemoteName, branch)
	}
	return ref.Hash().String(), nil
}

// IsAncestor reports whether commit ancestor is reachable from descendant.
func (m *Mirror) IsAncestor(ancestor, descendant string) (bool, error) {
	a, err := m.repo.CommitObject(plumbing.NewHash(ancestor))
	if err != nil {
		return false, zerrors.Wrapf(zerrors.ErrReferenceNotFound, "commit %s", ancestor)
	}
	d, err := m.repo.CommitObject(plumbing.NewHash(descendant))
	if err != nil {
		return false, zerrors.Wrapf(zerrors.ErrReferenceNotFound, "commit %s", descendant)
	}
	return a.IsAncestor(d)
}

// Tags returns every tag name in the mirror, sorted alphabetically.
func (m *Mirror) Tags() ([]string, error) {
	iter, err := m.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	var tags []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tags = append(tags, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	sort.Strings(tags)
	return tags, nil
}

// ==================== Classifier probes ====================

// HasTag reports whether refs/tags/<name> exists.
func (m *Mirror) HasTag(name string) bool {
	_, err := m.repo.Reference(plumbing.NewTagReferenceName(name), false)
	return err == nil
}

// HasBranch reports whether a local or remote-tracking branch called name exists.
func (m *Mirror) HasBranch(name string) bool {
	if _, err := m.repo.Reference(plumbing.NewBranchReferenceName(name), false); err == nil {
		return true
	}
	_, err := m.repo.Reference(plumbing.NewRemoteReferenceName(DefaultRemoteName, name), false)
	return err == nil
}

// ResolveCommit returns the full hash when name is a hash of a commit in the mirror.
func (m *Mirror) ResolveCommit(name string) (string, bool) {
	hash, ok := m.resolveCommit(name)
	if !ok {
		return "", false
	}
	return hash.String(), true
}

// ResolveShortName applies git's short-name rules.
func (m *Mirror) ResolveShortName(name string) (string, bool) {
	ref, ok := m.lookupShortName(name)
	if !ok {
		return "", false
	}
	return ref.Name().String(), true
}
