package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/pkg"
)

func (a *app) switchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "switch <name>",
		Aliases: []string{"use"},
		Short:   "Make an installed toolchain the active one",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager.WithLock(func() error {
				result, err := a.manager.Switch.Activate(args[0])
				if err != nil {
					return err
				}
				printActivation(cmd, args[0], result)
				return nil
			})
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed toolchains",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.manager.Registry.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				dimColor.Fprintln(out, "No toolchains installed. Try `zircon install` or `zircon build main`.")
				return nil
			}
			for _, info := range infos {
				marker := "  "
				label := info.Name
				if info.IsCurrent {
					marker = successColor.Sprint("* ")
					label = name(info.Name)
				}
				fmt.Fprintf(out, "%s%s", marker, label)
				if info.IsCurrent {
					dimColor.Fprint(out, " (current)")
				}
				if !info.Complete {
					warnColor.Fprint(out, " (incomplete)")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func (a *app) currentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the active toolchain",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, ok, err := a.manager.Registry.Current()
			if err != nil {
				return err
			}
			if !ok {
				dimColor.Fprintln(cmd.ErrOrStderr(), "No active toolchain.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), current)
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"remove", "rm"},
		Short:   "Delete an installed toolchain",
		Args:    usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager.WithLock(func() error {
				if err := a.manager.Registry.Delete(args[0]); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "Deleted %s", name(args[0]))
				return nil
			})
		},
	}
}

func (a *app) pruneCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete every toolchain except the active one",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.manager.WithLock(func() error {
				candidates, err := a.manager.Registry.Prunable()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(candidates) == 0 {
					dimColor.Fprintln(out, "Nothing to prune.")
					return nil
				}

				fmt.Fprintln(out, "The following toolchains will be deleted:")
				for _, c := range candidates {
					fmt.Fprintf(out, "  %s\n", c)
				}
				if !yes && !confirm(cmd, "Continue?") {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}

				result, err := a.manager.Registry.Prune()
				if result != nil {
					for _, deleted := range result.Deleted {
						printSuccess(out, "Deleted %s", name(deleted))
					}
					for failed, ferr := range result.Failed {
						printWarning(cmd.ErrOrStderr(), fmt.Sprintf("could not delete %s: %v", failed, ferr))
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [name]",
		Short: "Check installed toolchains for missing or broken files",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var reports []*pkg.VerifyReport
			if len(args) == 1 {
				report, err := a.manager.Verify(args[0])
				if err != nil {
					return err
				}
				reports = append(reports, report)
			} else {
				all, err := a.manager.VerifyAll()
				if err != nil {
					return err
				}
				reports = all
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, report := range reports {
				if report.OK() {
					printSuccess(out, "%s", name(report.Name))
					continue
				}
				failed++
				errorColor.Fprintf(out, "✗ %s\n", report.Name)
				for _, problem := range report.Problems {
					fmt.Fprintf(out, "    %s\n", problem)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d toolchains failed verification",
					zerrors.ErrInvalidToolchainStructure, failed, len(reports))
			}
			return nil
		},
	}
}

// confirm asks a yes/no question on the command's input. Anything but an
// explicit yes declines.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
