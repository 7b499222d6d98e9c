package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zirco-lang/zircon/internal/update"
)

// internalCmd groups commands used by the installer script.
func (a *app) internalCmd() *cobra.Command {
	internal := &cobra.Command{
		Use:    "internal",
		Short:  "Commands used by the zircon installer",
		Hidden: true,
	}

	internal.AddCommand(&cobra.Command{
		Use:   "bootstrap",
		Short: "Prepare a fresh zircon root",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.manager
			var warnings []string
			err := m.WithLock(func() error {
				var err error
				if warnings, err = m.Bootstrap(cmd.Context()); err != nil {
					return err
				}
				if _, err := os.Stat(m.Layout.SelfBinary()); err != nil {
					return nil
				}
				return update.LinkSelf(m.Layout)
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSuccess(out, "zircon is set up in %s", m.Layout.Root())
			for _, w := range warnings {
				printWarning(cmd.ErrOrStderr(), w)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintf(out, "  1. Add %s to your PATH\n", name(m.Layout.Bin()))
			fmt.Fprintf(out, "  2. Run %s to install the latest nightly,\n", name("zircon install"))
			fmt.Fprintf(out, "     or %s to build it from source\n", name("zircon build main"))
			return nil
		},
	})
	return internal
}
