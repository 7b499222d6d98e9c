// Package errors defines the error taxonomy shared by every zircon component.
// All errors can be checked using errors.Is() for programmatic handling.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Repository errors 🌐
	ErrReferenceNotFound = errors.New("reference not found")
	ErrRepositoryCorrupt = errors.New("repository mirror is corrupt")
	ErrNetworkFailure    = errors.New("network failure")

	// Build errors 🔨
	ErrBuildFailed = errors.New("build failed")

	// Payload errors 📦
	ErrUnsafeArchiveEntry        = errors.New("unsafe archive entry")
	ErrUnsupportedArchive        = errors.New("unsupported archive format")
	ErrInvalidToolchainStructure = errors.New("invalid toolchain structure")
	ErrChecksumMismatch          = errors.New("checksum mismatch")

	// Registry errors 🗂
	ErrToolchainNotFound    = errors.New("toolchain not found")
	ErrCannotDeleteActive   = errors.New("cannot delete the active toolchain")
	ErrAlreadyExists        = errors.New("toolchain already exists")
	ErrInvalidToolchainName = errors.New("invalid toolchain name")

	// Environment errors 🖥
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrLocked              = errors.New("zircon root is locked by another process")
)

// Wrap wraps err with msg while keeping it matchable with errors.Is.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
