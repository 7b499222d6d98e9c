package toolchain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReceiptFile marks a toolchain directory as completely populated. It is
// written last; a directory without it is an interrupted build or import.
const ReceiptFile = ".zircon-toolchain.json"

// Source records how a toolchain was produced.
type Source string

const (
	SourceBuild   Source = "build"
	SourceImport  Source = "import"
	SourceInstall Source = "install"
)

// Receipt is the completion marker stored in every finished toolchain.
type Receipt struct {
	Name        string    `json:"name"`
	Source      Source    `json:"source"`
	Kind        string    `json:"kind,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	Commit      string    `json:"commit,omitempty"`
	Archive     string    `json:"archive,omitempty"`
	Checksum    string    `json:"checksum,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
}

// WriteReceipt marks dir complete. The marker is written to a temporary
// file and renamed so a crash never leaves a truncated receipt.
func WriteReceipt(dir string, receipt Receipt) error {
	if receipt.InstalledAt.IsZero() {
		receipt.InstalledAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}

	path := filepath.Join(dir, ReceiptFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing receipt: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing receipt: %w", err)
	}
	return nil
}

// ReadReceipt loads the receipt of dir. A missing receipt yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
func ReadReceipt(dir string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReceiptFile))
	if err != nil {
		return nil, err
	}
	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return nil, fmt.Errorf("parsing receipt in %s: %w", dir, err)
	}
	return &receipt, nil
}

// IsComplete reports whether dir carries a readable receipt.
func IsComplete(dir string) bool {
	_, err := ReadReceipt(dir)
	return err == nil
}
