package toolchain

import (
	"os"
	"path/filepath"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/paths"
)

// PrimaryExecutable is the binary every toolchain must provide.
const PrimaryExecutable = "zrc"

// ValidateStructure checks that dir has bin/<primaryExe> as a regular file.
func ValidateStructure(dir, primaryExe string) error {
	binDir := filepath.Join(dir, "bin")
	info, err := os.Stat(binDir)
	if err != nil || !info.IsDir() {
		return zerrors.Wrapf(zerrors.ErrInvalidToolchainStructure, "%s has no bin directory", dir)
	}

	exe := filepath.Join(binDir, paths.ExeName(primaryExe))
	info, err = os.Stat(exe)
	if err != nil {
		return zerrors.Wrapf(zerrors.ErrInvalidToolchainStructure, "missing %s", exe)
	}
	if !info.Mode().IsRegular() {
		return zerrors.Wrapf(zerrors.ErrInvalidToolchainStructure, "%s is not a regular file", exe)
	}
	return nil
}
