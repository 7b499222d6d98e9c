package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/paths"
	"github.com/zirco-lang/zircon/internal/refname"
	"github.com/zirco-lang/zircon/internal/toolchain"
	"github.com/zirco-lang/zircon/pkg/utils/permissions"
)

// VerifyReport collects the problems found in one toolchain.
type VerifyReport struct {
	Name     string
	Receipt  *toolchain.Receipt
	Problems []string
}

// OK reports whether no problems were found.
func (r *VerifyReport) OK() bool {
	return len(r.Problems) == 0
}

// Verify inspects toolchain name: structure, receipt, executable modes of
// the binaries and the include directory. Every check runs; problems are
// collected rather than returned as the first error.
func (m *Manager) Verify(name string) (*VerifyReport, error) {
	if err := refname.ValidateName(name); err != nil {
		return nil, err
	}
	if !m.Registry.Exists(name) {
		return nil, zerrors.Wrapf(zerrors.ErrToolchainNotFound, "%s", name)
	}

	dir := m.Layout.Toolchain(name)
	report := &VerifyReport{Name: name}
	logger := m.logger.Named("verify")

	if err := toolchain.ValidateStructure(dir, toolchain.PrimaryExecutable); err != nil {
		report.Problems = append(report.Problems, err.Error())
		logger.Error("Structure check failed", "toolchain", name, "error", err)
	} else {
		logger.Info("✓ Structure valid", "toolchain", name)
	}

	receipt, err := toolchain.ReadReceipt(dir)
	if err != nil {
		report.Problems = append(report.Problems, fmt.Sprintf("no readable receipt: %v", err))
		logger.Error("Receipt check failed", "toolchain", name, "error", err)
	} else {
		report.Receipt = receipt
		if receipt.Name != name {
			report.Problems = append(report.Problems,
				fmt.Sprintf("receipt names %q but the directory is %q", receipt.Name, name))
		}
		logger.Info("✓ Receipt present", "toolchain", name, "source", receipt.Source)
	}

	if runtime.GOOS != "windows" {
		entries, _ := os.ReadDir(m.Layout.ToolchainBin(name))
		for _, e := range entries {
			info, err := os.Stat(filepath.Join(m.Layout.ToolchainBin(name), e.Name()))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if e.Name() == paths.ExeName(toolchain.PrimaryExecutable) && !permissions.IsExecutable(info.Mode()) {
				report.Problems = append(report.Problems,
					fmt.Sprintf("%s is not executable (mode %s)", e.Name(), permissions.FormatOctal(info.Mode())))
			}
		}
	}

	if info, err := os.Stat(m.Layout.ToolchainInclude(name)); err != nil || !info.IsDir() {
		report.Problems = append(report.Problems, "include directory is missing")
	}

	if report.OK() {
		logger.Info("✓ Toolchain verification passed", "toolchain", name)
	} else {
		logger.Error("✗ Toolchain verification failed", "toolchain", name, "problem_count", len(report.Problems))
	}
	return report, nil
}

// VerifyAll verifies every installed toolchain.
func (m *Manager) VerifyAll() ([]*VerifyReport, error) {
	infos, err := m.Registry.List()
	if err != nil {
		return nil, err
	}
	reports := make([]*VerifyReport, 0, len(infos))
	for _, info := range infos {
		report, err := m.Verify(info.Name)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
