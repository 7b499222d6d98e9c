//go:build !windows

package activate

import (
	"fmt"
	"os"
)

const windowsHost = false

// replaceDirLink atomically points link at target: a temporary symlink is
// created next to it and renamed over it, so readers see either the old or
// the new target and never a missing link.
func replaceDirLink(link, target, _ string) error {
	return replaceSymlink(link, target)
}

func replaceFileLink(link, target, _ string) error {
	return replaceSymlink(link, target)
}

func replaceSymlink(link, target string) error {
	// rename(2) cannot replace a real directory with a link.
	if info, err := os.Lstat(link); err == nil && info.IsDir() {
		if err := os.RemoveAll(link); err != nil {
			return err
		}
	}

	tmp := fmt.Sprintf("%s.%d.tmp", link, os.Getpid())
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
