// Package refname classifies user-supplied git references and derives the
// canonical toolchain name for each kind.
package refname

import (
	"fmt"
	"strings"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
)

// Kind is the classification of a reference.
type Kind int

const (
	// Tag names a refs/tags/* reference.
	Tag Kind = iota
	// Branch names a local or remote-tracking branch.
	Branch
	// Commit is a raw commit hash.
	Commit
)

// String returns a human-readable string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case Tag:
		return "tag"
	case Branch:
		return "branch"
	case Commit:
		return "commit"
	default:
		return "unknown"
	}
}

// Reference is a classified reference.
type Reference struct {
	Kind Kind
	// Raw is the string the user typed.
	Raw string
	// Name is the tag or branch name, or the full commit hash for Commit.
	Name string
}

// Prober answers the questions the classifier asks of a fetched mirror.
type Prober interface {
	HasTag(name string) bool
	HasBranch(name string) bool
	// ResolveCommit returns the full hash when name is a hash naming a real commit.
	ResolveCommit(name string) (string, bool)
	// ResolveShortName applies git's short-name rules and returns the full
	// reference name it found.
	ResolveShortName(name string) (string, bool)
}

// Classify decides what raw refers to. Tags win over everything because they
// carry version semantics; the final fallback is Branch, so classification
// never fails on its own.
func Classify(p Prober, raw string) Reference {
	if p.HasTag(raw) {
		return Reference{Kind: Tag, Raw: raw, Name: raw}
	}
	if p.HasBranch(raw) {
		return Reference{Kind: Branch, Raw: raw, Name: raw}
	}
	if hash, ok := p.ResolveCommit(raw); ok {
		return Reference{Kind: Commit, Raw: raw, Name: hash}
	}
	if full, ok := p.ResolveShortName(raw); ok {
		if strings.HasPrefix(full, "refs/tags/") {
			return Reference{Kind: Tag, Raw: raw, Name: strings.TrimPrefix(full, "refs/tags/")}
		}
		return Reference{Kind: Branch, Raw: raw, Name: raw}
	}
	return Reference{Kind: Branch, Raw: raw, Name: raw}
}

// SanitizeBranch replaces path separators so a branch name fits in one path
// component.
func SanitizeBranch(branch string) string {
	return strings.NewReplacer("/", "-", `\`, "-").Replace(branch)
}

// ToolchainName derives the canonical toolchain name for ref. shortCommit is
// the short hash of the commit the mirror checked out.
func ToolchainName(ref Reference, shortCommit string) string {
	switch ref.Kind {
	case Tag:
		return ref.Name
	case Commit:
		return shortCommit
	default:
		return fmt.Sprintf("%s@%s", SanitizeBranch(ref.Raw), shortCommit)
	}
}

// ValidateName rejects names that cannot be stored as a single directory
// below the toolchains root.
func ValidateName(name string) error {
	switch {
	case name == "":
		return zerrors.Wrap(zerrors.ErrInvalidToolchainName, "name is empty")
	case name == "current":
		return zerrors.Wrapf(zerrors.ErrInvalidToolchainName, "%q is reserved", name)
	case name == "..", strings.HasPrefix(name, "."):
		return zerrors.Wrapf(zerrors.ErrInvalidToolchainName, "%q may not start with a dot", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return zerrors.Wrapf(zerrors.ErrInvalidToolchainName, "%q contains a path separator", name)
	}
	return nil
}
