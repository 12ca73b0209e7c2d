package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fieldnote/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the values of the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	CachePath  string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration, logger, and flag values to
// every subcommand via the command's context. Built once in
// PersistentPreRunE.
type CLIContext struct {
	Flags  CLIFlags
	Config *config.Config
	Logger *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext retrieves the CLIContext installed by the root pre-run.
// Panics if called before it — that is a programming error, not a user
// error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:     "fieldnote",
		Short:   "Offline-first experience tracker",
		Long:    "Track experiences and entries locally, then sync them to the remote service when a connection is available.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := buildCLIContext(cmd, *flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.CachePath, "cache", "", "cache database path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newNewCmd())
	cmd.AddCommand(newEntryCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newOfflineCmd())
	cmd.AddCommand(newOnlineCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// buildCLIContext resolves the effective configuration from the override
// chain and constructs the logger every subcommand shares.
func buildCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("cache") {
		cli.CachePath = &flags.CachePath
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &CLIContext{
		Flags:  flags,
		Config: cfg,
		Logger: buildLogger(cfg, flags),
	}, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config, flags CLIFlags) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(cfg.Logging.LogFormat) {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
