package main

import (
	"github.com/spf13/cobra"

	"github.com/zirco-lang/zircon/internal/install"
)

func (a *app) installCmd() *cobra.Command {
	var (
		opts     install.InstallOptions
		noSwitch bool
	)

	cmd := &cobra.Command{
		Use:   "install [tag]",
		Short: "Install a pre-built toolchain from a GitHub release",
		Long: `Download the release archive for this platform from the zrc release tagged
[tag] (default: nightly), install it as a toolchain and activate it.`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Tag = install.DefaultTag
			if len(args) == 1 {
				opts.Tag = args[0]
			}

			return a.manager.WithLock(func() error {
				tc, result, err := a.manager.Install(cmd.Context(), opts, noSwitch)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Installed %s from release %s", name(tc), opts.Tag)
				printActivation(cmd, tc, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Toolchain name (default: the tag)")
	cmd.Flags().StringVar(&opts.SHA256, "sha256", "", "Expected SHA-256 of the release archive")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Replace an existing toolchain of the same name")
	cmd.Flags().BoolVar(&noSwitch, "no-switch", false, "Do not activate the new toolchain")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var (
		opts     install.ImportOptions
		switchTo bool
	)

	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Install a toolchain from a local archive",
		Long: `Extract a .tar, .tar.gz, .tar.bz2, .tar.zst or .zip archive containing
bin/zrc into a new toolchain. Entries that would escape the toolchain
directory are rejected.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager.WithLock(func() error {
				tc, result, err := a.manager.Import(cmd.Context(), args[0], opts, switchTo)
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Imported %s", name(tc))
				printActivation(cmd, tc, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Toolchain name (default: archive name without extension)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Replace an existing toolchain of the same name")
	cmd.Flags().BoolVar(&switchTo, "switch", false, "Activate the imported toolchain")
	return cmd
}
