// Package cli implements the bylines command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/roach88/bylines/internal/config"
	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/logger"
	"github.com/roach88/bylines/internal/store"
)

// RootOptions holds global flags and the state every command shares.
type RootOptions struct {
	ConfigFile string
	Format     string // "json" | "text"

	// Populated by the root command before any subcommand runs.
	Viper  *viper.Viper
	Config *config.Config
	Logger logger.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bylines CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Viper: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "bylines",
		Short: "Backfill author terms for content records",
		Long: `bylines finds content records that lack an author term, resolves each
record's author, creates or reuses the author's term and attaches it.
Records whose author cannot be found are marked and skipped by later runs.

Settings come from bylines.yaml ($HOME/.bylines or the working directory),
BYLINES_* environment variables and flags, in increasing precedence.`,
		Version:       fmt.Sprintf("%s (schema v%d)", ir.Version, ir.SchemaVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default: bylines.yaml in $HOME/.bylines or .)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.String("db", "", "path of the SQLite database")
	flags.String("taxonomy", "", "taxonomy holding author terms")
	flags.String("log-level", "", "log level (debug|info|warn|error|none)")
	flags.String("log-format", "", "log format (json|text)")

	config.MustBindPFlag(opts.Viper, "database", flags.Lookup("db"))
	config.MustBindPFlag(opts.Viper, "taxonomy", flags.Lookup("taxonomy"))
	config.MustBindPFlag(opts.Viper, "log.level", flags.Lookup("log-level"))
	config.MustBindPFlag(opts.Viper, "log.format", flags.Lookup("log-format"))

	cmd.AddCommand(NewBackfillCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewClearSkipsCommand(opts))
	cmd.AddCommand(NewRefreshTermsCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// load validates global flags, reads the configuration and builds the
// logger. Every failure is a command error.
func (o *RootOptions) load() error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Read(o.Viper, o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read configuration", err)
	}
	if err := cfg.Verify(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg

	if o.Logger == nil {
		log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to build logger", err)
		}
		o.Logger = log
	}
	return nil
}

// openStore opens the configured database. The caller closes it.
func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.Config.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// closeStore closes st, logging rather than returning a failure.
func (o *RootOptions) closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		o.Logger.Error("error closing database", zap.Error(err))
	}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// commandArgs turns positional argument errors into command errors.
func commandArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
