package build

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-hclog"
)

// RequiredLLVMMajor is the LLVM release the compiler links against.
const RequiredLLVMMajor = 20

// Seams for tests.
var (
	lookPath = exec.LookPath
	output   = func(ctx context.Context, name string, args ...string) (string, error) {
		out, err := exec.CommandContext(ctx, name, args...).Output()
		return string(out), err
	}
)

// CheckDependencies looks for the tools a from-source build needs and
// returns a warning for each problem. It never fails: the install hook may
// provide its own toolchain.
func CheckDependencies(ctx context.Context, logger hclog.Logger) []string {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var warnings []string
	if w := checkLLVM(ctx); w != "" {
		warnings = append(warnings, w)
	}
	for _, tool := range []string{"clang", "cargo"} {
		if _, err := lookPath(tool); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s was not found on PATH", tool))
		}
	}

	for _, w := range warnings {
		logger.Debug("⚠️ Dependency check", "warning", w)
	}
	return warnings
}

func checkLLVM(ctx context.Context) string {
	if _, err := lookPath("llvm-config"); err != nil {
		return fmt.Sprintf("llvm-config was not found on PATH; LLVM %d is required", RequiredLLVMMajor)
	}
	out, err := output(ctx, "llvm-config", "--version")
	if err != nil {
		return fmt.Sprintf("could not run llvm-config: %v", err)
	}

	version, err := ParseLLVMVersion(out)
	if err != nil {
		return fmt.Sprintf("could not parse LLVM version %q", strings.TrimSpace(out))
	}
	if version.Major() != RequiredLLVMMajor {
		return fmt.Sprintf("LLVM %s found, LLVM %d is required", version, RequiredLLVMMajor)
	}
	return ""
}

// ParseLLVMVersion parses llvm-config output such as "20.1.2" or
// "20.0.0git".
func ParseLLVMVersion(s string) (*semver.Version, error) {
	s = strings.TrimSpace(s)
	// Distribution builds append suffixes like "git" without a hyphen.
	end := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if end > 0 {
		s = s[:end]
	}
	return semver.NewVersion(strings.TrimSuffix(s, "."))
}
