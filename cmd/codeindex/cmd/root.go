// Package cmd provides the CLI commands for codeindex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/logging"
	"github.com/Aman-CERP/codeindex/internal/profiling"
	"github.com/Aman-CERP/codeindex/pkg/version"
)

// annotationOwnLogging marks commands that configure logging themselves.
const annotationOwnLogging = "own-logging"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	debug      bool
	configPath string
	profile    profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for codeindex.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "codeindex",
		Short: "Semantic code search over a local source tree",
		Long: `codeindex parses a project into functions, classes and document sections,
embeds them and stores the vectors locally so they can be searched by meaning.

Run 'codeindex index' in a project directory, then 'codeindex search <query>'.
'codeindex serve' exposes the same operations to AI assistants over MCP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("codeindex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging (also mirrored to stderr)")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Project config file (default: .codeindex.yaml in the project root)")

	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write an execution trace to this file")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		if opts.profile.Enabled() {
			session, err := profiling.Start(opts.profile)
			if err != nil {
				return err
			}
			opts.profiler = session
		}
		if c.Annotations[annotationOwnLogging] != "" {
			return nil
		}
		return opts.setupLogging(logging.CLIConfig("", opts.debug))
	}
	cmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		opts.stopLogging()
		return opts.profiler.Stop()
	}

	cmd.AddCommand(
		newIndexCmd(opts),
		newSearchCmd(opts),
		newFilesCmd(opts),
		newTypesCmd(opts),
		newStructureCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
		newLogsCmd(),
	)
	return cmd
}

func (o *rootOptions) setupLogging(cfg logging.Config) error {
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	if o.debug {
		slog.Debug("debug_logging_enabled", slog.String("log_file", cfg.FilePath))
	}
	return nil
}

func (o *rootOptions) stopLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// Execute runs the root command and prints failures in the CLI error format.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), cierrors.FormatForCLI(err))
	}
	return err
}
