//go:build windows

package activate

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

const windowsHost = true

// replaceDirLink removes link and recreates it pointing at absTarget. There
// is a short window in which link is missing; Windows offers no atomic
// replacement for directory links. Creating a symlink needs developer mode
// or elevation, so a directory junction is the fallback.
func replaceDirLink(link, _, absTarget string) error {
	if err := removeLink(link); err != nil {
		return err
	}
	if err := os.Symlink(absTarget, link); err == nil {
		return nil
	}
	out, err := exec.Command("cmd", "/c", "mklink", "/J", link, absTarget).CombinedOutput()
	if err != nil {
		return fmt.Errorf("creating junction: %w: %s", err, out)
	}
	return nil
}

// replaceFileLink links a binary, falling back to a copy when symlinks are
// unavailable. The copy is refreshed on every activation.
func replaceFileLink(link, _, absTarget string) error {
	if err := removeLink(link); err != nil {
		return err
	}
	if err := os.Symlink(absTarget, link); err == nil {
		return nil
	}
	return copyExecutable(absTarget, link)
}

func removeLink(link string) error {
	info, err := os.Lstat(link)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() && info.Mode()&os.ModeSymlink == 0 && info.Mode()&os.ModeIrregular == 0 {
		return os.RemoveAll(link)
	}
	return os.Remove(link)
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
