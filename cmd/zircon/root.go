package main

import (
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/zirco-lang/zircon/internal/config"
	"github.com/zirco-lang/zircon/internal/mirror"
	"github.com/zirco-lang/zircon/internal/paths"
	"github.com/zirco-lang/zircon/internal/update"
	"github.com/zirco-lang/zircon/pkg"
	"github.com/zirco-lang/zircon/pkg/logging"
)

// usageError marks invalid command-line input.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// usageArgs turns argument validation failures into usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// app is the state shared by every subcommand, set up before any of them
// runs.
type app struct {
	logLevel    string
	versionFlag bool

	manager *pkg.Manager
	logger  hclog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "zircon",
		Short: "Manage zrc compiler toolchains",
		Long: `zircon builds, installs and switches between versions of the zrc compiler.

Toolchains live below $ZIRCON_PREFIX (default ~/.zircon); add its bin
directory to your PATH to use the active one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.remindUpdate(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.versionFlag {
				printVersion()
				return nil
			}
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	root.Flags().BoolVarP(&a.versionFlag, "version", "V", false, "Show version information")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.AddCommand(
		a.buildCmd(),
		a.installCmd(),
		a.importCmd(),
		a.switchCmd(),
		a.listCmd(),
		a.currentCmd(),
		a.deleteCmd(),
		a.pruneCmd(),
		a.verifyCmd(),
		a.versionsCmd(),
		a.selfCmd(),
		a.internalCmd(),
	)
	return root
}

// setup loads configuration and builds the manager. Precedence is flags,
// then environment, then config file, then defaults.
func (a *app) setup(cmd *cobra.Command) error {
	layout := paths.FromEnv()

	cfg, warnings, err := config.Load(layout.ConfigFile())
	if err != nil {
		return err
	}

	level := a.logLevel
	if level == "" {
		level = logging.GetLogLevel(cfg.LogLevel)
	}
	a.logger = logging.NewLogger("zircon", level, cmd.ErrOrStderr())
	for _, w := range warnings {
		a.logger.Warn("⚠️ Config file", "path", layout.ConfigFile(), "warning", w)
	}
	a.logger.Debug("🗂 Using root", "root", layout.Root())

	a.manager = pkg.NewManager(layout, cfg, a.logger)
	a.manager.Progress = cmd.ErrOrStderr()
	a.manager.Stdout = cmd.OutOrStdout()
	a.manager.Stderr = cmd.ErrOrStderr()
	return nil
}

// remindUpdate runs the best-effort daily update check. Hidden commands
// and the self commands skip it.
func (a *app) remindUpdate(cmd *cobra.Command) {
	if a.manager == nil || !a.manager.Config.UpdateCheckEnabled() {
		return
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Hidden || c.Name() == "self" {
			return
		}
	}
	checker := update.NewChecker(a.manager.Layout, a.manager.Config.SelfRepo, a.logger)
	checker.Auth = mirror.TokenAuth(a.manager.Config.GitToken)
	checker.Remind(cmd.Context(), cmd.ErrOrStderr())
}
