package install

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/zirco-lang/zircon/internal/archive"
	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/refname"
	"github.com/zirco-lang/zircon/internal/toolchain"
)

// ImportOptions describes one archive import.
type ImportOptions struct {
	// Name of the new toolchain; defaults to the archive name without its
	// suffix.
	Name string
	// Force replaces an existing, inactive toolchain of the same name.
	Force bool

	Source    toolchain.Source
	Reference string
	Checksum  string
}

// Importer extracts archives into the registry through a staging area, so
// a toolchain directory only ever appears fully populated and validated.
type Importer struct {
	registry *toolchain.Registry
	logger   hclog.Logger
}

// NewImporter creates an Importer adding toolchains to registry.
func NewImporter(registry *toolchain.Registry, logger hclog.Logger) *Importer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Importer{registry: registry, logger: logger.Named("import")}
}

// DefaultName derives a toolchain name from an archive path.
func DefaultName(archivePath string) string {
	return archive.TrimSuffix(filepath.Base(archivePath))
}

// Import installs archivePath as a toolchain and returns its name. The
// toolchain is not activated. An archive that extracts but fails structure
// validation is left in the staging area for inspection.
func (i *Importer) Import(ctx context.Context, archivePath string, opts ImportOptions) (string, error) {
	name := opts.Name
	if name == "" {
		name = DefaultName(archivePath)
	}
	if err := refname.ValidateName(name); err != nil {
		return "", err
	}
	if _, err := archive.DetectFormat(archivePath); err != nil {
		return "", err
	}
	if i.registry.Exists(name) && !opts.Force {
		return "", zerrors.Wrapf(zerrors.ErrAlreadyExists, "%s (use --force to replace it)", name)
	}

	staging, err := i.registry.NewStaging(name)
	if err != nil {
		return "", err
	}

	if _, err := archive.Extract(ctx, archivePath, staging, i.logger); err != nil {
		i.registry.DiscardStaging(staging)
		return "", err
	}

	root, err := archive.FindRoot(staging)
	if err != nil {
		i.registry.DiscardStaging(staging)
		return "", err
	}
	if err := toolchain.ValidateStructure(root, toolchain.PrimaryExecutable); err != nil {
		i.logger.Warn("⚠️ Extracted archive is not a toolchain, kept for inspection", "path", staging)
		return "", err
	}

	source := opts.Source
	if source == "" {
		source = toolchain.SourceImport
	}
	receipt := toolchain.Receipt{
		Name:        name,
		Source:      source,
		Reference:   opts.Reference,
		Archive:     filepath.Base(archivePath),
		Checksum:    opts.Checksum,
		InstalledAt: time.Now().UTC(),
	}
	if err := toolchain.WriteReceipt(root, receipt); err != nil {
		i.registry.DiscardStaging(staging)
		return "", err
	}

	if _, err := i.registry.Commit(root, name, opts.Force); err != nil {
		i.registry.DiscardStaging(staging)
		return "", err
	}
	if root != staging {
		i.registry.DiscardStaging(staging)
	}

	i.logger.Info("📥 Imported toolchain", "name", name)
	return name, nil
}

// InstallOptions describes a release install.
type InstallOptions struct {
	Tag     string
	Name    string
	BaseURL string
	// SHA256 is the expected archive digest; empty skips verification.
	SHA256 string
	Force  bool
}

// Installer downloads a release archive and imports it.
type Installer struct {
	downloader *Downloader
	importer   *Importer
	logger     hclog.Logger
}

// NewInstaller creates an Installer.
func NewInstaller(downloader *Downloader, importer *Importer, logger hclog.Logger) *Installer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Installer{downloader: downloader, importer: importer, logger: logger.Named("install")}
}

// Install fetches the host's release archive for opts.Tag and imports it
// under opts.Name (default: the tag). The temporary download is always
// removed; a failure to remove it is only logged.
func (in *Installer) Install(ctx context.Context, opts InstallOptions) (string, error) {
	tag := opts.Tag
	if tag == "" {
		tag = DefaultTag
	}
	name := opts.Name
	if name == "" {
		name = tag
	}
	if err := refname.ValidateName(name); err != nil {
		return "", err
	}

	artifact, err := HostArtifactName()
	if err != nil {
		return "", err
	}

	dl, err := in.downloader.Fetch(ctx, ReleaseURL(opts.BaseURL, tag, artifact))
	if err != nil {
		return "", err
	}
	defer in.downloader.Discard(dl.Path)

	if err := VerifyChecksum(dl, opts.SHA256); err != nil {
		return "", err
	}

	imported, err := in.importer.Import(ctx, dl.Path, ImportOptions{
		Name:      name,
		Force:     opts.Force,
		Source:    toolchain.SourceInstall,
		Reference: tag,
		Checksum:  dl.SHA256,
	})
	if err != nil && errors.Is(err, zerrors.ErrInvalidToolchainStructure) {
		in.logger.Debug("Release asset did not contain a toolchain", "tag", tag, "artifact", artifact)
	}
	return imported, err
}
