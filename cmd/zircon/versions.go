package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List the compiler's release tags, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tags []string
			err := a.manager.WithLock(func() error {
				var err error
				tags, err = a.manager.Versions(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}

			installed := map[string]bool{}
			if infos, err := a.manager.Registry.List(); err == nil {
				for _, info := range infos {
					installed[info.Name] = true
				}
			}

			out := cmd.OutOrStdout()
			for _, tag := range tags {
				fmt.Fprint(out, tag)
				if installed[tag] {
					dimColor.Fprint(out, " (installed)")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
