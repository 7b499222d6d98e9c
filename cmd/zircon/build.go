package main

import (
	"github.com/spf13/cobra"

	"github.com/zirco-lang/zircon/internal/activate"
	"github.com/zirco-lang/zircon/pkg"
)

func (a *app) buildCmd() *cobra.Command {
	var opts pkg.BuildOptions

	cmd := &cobra.Command{
		Use:   "build <ref>",
		Short: "Build a toolchain from a tag, branch or commit",
		Long: `Fetch the zrc repository, check out <ref> and build it into a new toolchain,
then make it the active one.

Tags keep their name (v0.1.0). Branches become <branch>@<short-hash> and
commits <short-hash>.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Ref = args[0]
			out := cmd.OutOrStdout()

			for _, w := range dependencyWarnings(cmd, a) {
				printWarning(cmd.ErrOrStderr(), w)
			}

			var result *pkg.BuildResult
			err := a.manager.WithLock(func() error {
				var err error
				result, err = a.manager.Build(cmd.Context(), opts)
				return err
			})
			if err != nil {
				return err
			}

			if result.AlreadyInstalled {
				printSuccess(out, "%s is already built from %s", name(result.Name), dimColor.Sprint(result.Commit[:12]))
			} else {
				printSuccess(out, "Built %s %s as %s", result.Reference.Kind, opts.Ref, name(result.Name))
			}
			printActivation(cmd, result.Name, result.Activation)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.RepoURL, "zrc-repo", "", "Clone the compiler from this URL instead of the configured one")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Rebuild even if a toolchain with the same name exists")
	cmd.Flags().BoolVar(&opts.NoSwitch, "no-switch", false, "Do not activate the new toolchain")
	return cmd
}

// dependencyWarnings reports missing build dependencies. They are advisory only.
func dependencyWarnings(cmd *cobra.Command, a *app) []string {
	warnings, err := a.manager.Bootstrap(cmd.Context())
	if err != nil {
		a.logger.Debug("Dependency check failed", "error", err)
		return nil
	}
	return warnings
}

func printActivation(cmd *cobra.Command, toolchain string, result *activate.Result) {
	if result == nil {
		return
	}
	out := cmd.OutOrStdout()
	if result.Previous != "" && result.Previous != toolchain {
		printSuccess(out, "Switched from %s to %s", name(result.Previous), name(toolchain))
	} else {
		printSuccess(out, "Active toolchain is now %s", name(toolchain))
	}
	for _, removed := range result.Removed {
		dimColor.Fprintf(out, "  removed link %s\n", removed)
	}
}
