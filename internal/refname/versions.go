package refname

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// SortVersions orders tag names newest first. Tags that parse as semantic
// versions come before the rest, which keep alphabetical order.
func SortVersions(tags []string) []string {
	type entry struct {
		raw string
		v   *semver.Version
	}
	entries := make([]entry, 0, len(tags))
	for _, tag := range tags {
		v, err := semver.NewVersion(tag)
		if err != nil {
			v = nil
		}
		entries = append(entries, entry{raw: tag, v: v})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.v != nil && b.v != nil:
			if a.v.Equal(b.v) {
				return a.raw < b.raw
			}
			return a.v.GreaterThan(b.v)
		case a.v != nil:
			return true
		case b.v != nil:
			return false
		default:
			return a.raw < b.raw
		}
	})

	sorted := make([]string, len(entries))
	for i, e := range entries {
		sorted[i] = e.raw
	}
	return sorted
}
