package main

import (
	"github.com/spf13/cobra"

	"github.com/zirco-lang/zircon/internal/mirror"
	"github.com/zirco-lang/zircon/internal/update"
)

func (a *app) selfCmd() *cobra.Command {
	self := &cobra.Command{
		Use:   "self",
		Short: "Manage zircon itself",
	}

	self.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print zircon's version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	})

	self.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Rebuild zircon from the latest upstream main",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.manager
			updater := update.NewSelfUpdater(m.Layout, m.Config.SelfRepo, a.logger)
			updater.Auth = mirror.TokenAuth(m.Config.GitToken)
			updater.Progress = cmd.ErrOrStderr()
			updater.Stdout = cmd.OutOrStdout()
			updater.Stderr = cmd.ErrOrStderr()

			return m.WithLock(func() error {
				if err := m.Layout.EnsureDirectories(); err != nil {
					return err
				}
				commit, err := updater.Update(cmd.Context())
				if err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "zircon updated to %s", name(commit))
				return nil
			})
		},
	})
	return self
}
