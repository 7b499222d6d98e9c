// Package permissions provides the file modes zircon writes with and helpers
// for turning archive metadata into safe modes.
package permissions

import (
	"fmt"
	"io/fs"
)

// Default permission constants.
const (
	DefaultFilePerms       = 0o644
	DefaultExecutablePerms = 0o755
	DefaultDirPerms        = 0o755
)

// FromArchive returns the mode to create an extracted file with. Only the
// permission bits survive; setuid, setgid and sticky bits from an untrusted
// archive are dropped, and the owner always keeps read/write access.
func FromArchive(mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if perm == 0 {
		return DefaultFilePerms
	}
	return perm | 0o600
}

// IsExecutable checks if permissions include execute bit for owner
func IsExecutable(mode fs.FileMode) bool {
	return mode.Perm()&0o100 != 0
}

// FormatOctal formats a permission value as an octal string
func FormatOctal(mode fs.FileMode) string {
	return fmt.Sprintf("0%o", mode.Perm())
}
