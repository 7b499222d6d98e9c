package archive

import (
	"os"
	"path/filepath"
	"strings"
)

// FindRoot returns the directory inside dir that holds the toolchain. Release
// archives usually wrap everything in one top-level folder; when dir has no
// bin/ but exactly one visible subdirectory that does, that subdirectory is
// the root. Otherwise dir itself is returned and validation decides.
func FindRoot(dir string) (string, error) {
	if isDir(filepath.Join(dir, "bin")) {
		return dir, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var only string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !e.IsDir() || only != "" {
			return dir, nil
		}
		only = e.Name()
	}
	if only == "" {
		return dir, nil
	}

	candidate := filepath.Join(dir, only)
	if isDir(filepath.Join(candidate, "bin")) {
		return candidate, nil
	}
	return dir, nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
