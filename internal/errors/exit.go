package errors

import "errors"

// Process exit codes.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitEnvironment = 3
	ExitBuild       = 4
	ExitPayload     = 5
	ExitPanic       = 101
)

var exitClasses = []struct {
	code int
	errs []error
}{
	{ExitPayload, []error{ErrUnsafeArchiveEntry, ErrInvalidToolchainStructure, ErrUnsupportedArchive, ErrChecksumMismatch}},
	{ExitBuild, []error{ErrBuildFailed}},
	{ExitEnvironment, []error{ErrNetworkFailure, ErrRepositoryCorrupt, ErrUnsupportedPlatform, ErrLocked}},
	{ExitUsage, []error{ErrInvalidToolchainName, ErrToolchainNotFound, ErrReferenceNotFound, ErrCannotDeleteActive, ErrAlreadyExists}},
}

// ExitCode maps err onto the process exit code. Payload errors win over
// everything else so a security rejection is never reported as a generic
// failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	for _, class := range exitClasses {
		for _, target := range class.errs {
			if errors.Is(err, target) {
				return class.code
			}
		}
	}
	return ExitFailure
}
