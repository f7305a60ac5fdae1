package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/bylines/internal/config"
	"github.com/roach88/bylines/internal/engine"
)

// BackfillOptions holds flags for the backfill command.
type BackfillOptions struct {
	*RootOptions
	filters   filterFlags
	Unbatched bool
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "backfill",
		Aliases: []string{"create-author-terms-for-records"},
		Short:   "Attach author terms to records that lack one",
		Long: `Attach author terms to every matching record that has no term in the
configured taxonomy and no skip marker.

Records are processed in ascending id order, a page at a time. The run
pauses every backfill.throttle_every records. Records whose author does not
exist are marked and ignored by later runs until the markers are cleared.
Interrupting a run (Ctrl-C) keeps every relation already written.

Example:
  bylines backfill --record-types post,page --records-per-batch 500
  bylines backfill --ids 12,40,41`,
		Args:          commandArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(opts, cmd)
		},
	}

	opts.filters.register(cmd)
	cmd.Flags().BoolVar(&opts.Unbatched, "unbatched", false, "fetch every matching record in a single pass")
	cmd.Flags().Int("records-per-batch", 0, "records fetched per page (default: backfill.records_per_batch)")
	config.MustBindPFlag(rootOpts.Viper, "backfill.records_per_batch", cmd.Flags().Lookup("records-per-batch"))

	return cmd
}

// backfillReport renders a run summary.
type backfillReport struct {
	engine.Summary
}

func (r backfillReport) String() string {
	s := fmt.Sprintf("run %s: processed %d/%d records, attached %d, skipped %d, failed %d (pages %d, pauses %d, terms refreshed %d)",
		r.RunID, r.Processed, r.Total, r.Affected, r.Skipped, r.Failed, r.Pages, r.Throttles, r.Refreshed)
	if r.Interrupted {
		s += " [interrupted]"
	}
	return s
}

func runBackfill(opts *BackfillOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	params := opts.filters.params(cmd, cfg)
	params.Batched = !opts.Unbatched
	params.RecordsPerBatch = cfg.Backfill.RecordsPerBatch

	driverOpts := []engine.Option{
		engine.WithTaxonomy(cfg.Taxonomy),
		engine.WithSlugPrefix(cfg.TermSlugPrefix),
		engine.WithSkipMetaKey(cfg.SkipMetaKey),
		engine.WithThrottle(cfg.Backfill.ThrottleEvery, cfg.Backfill.ThrottlePause),
		engine.WithLogger(opts.Logger),
	}

	// Reject bad parameters before the database is created or migrated.
	if err := engine.Validate(params, driverOpts...); err != nil {
		opts.jsonError(opts.formatter(cmd), CodeConfig, err, nil)
		return WrapExitError(ExitCommandError, "invalid backfill parameters", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	driver := engine.New(st, driverOpts...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := driver.Run(ctx, params)
	f := opts.formatter(cmd)
	report := backfillReport{summary}

	switch {
	case runErr == nil:
		return f.SuccessRun(summary.RunID, report)
	case engine.IsConfigError(runErr):
		opts.jsonError(f, CodeConfig, runErr, nil)
		return WrapExitError(ExitCommandError, "invalid backfill parameters", runErr)
	case engine.IsInterrupted(runErr):
		opts.jsonError(f, CodeInterrupted, runErr, report)
		if f.Format != "json" {
			_ = f.Success(report)
		}
		return WrapExitError(ExitFailure, "backfill interrupted", runErr)
	default:
		opts.jsonError(f, CodeStore, runErr, report)
		return WrapExitError(ExitFailure, "backfill failed", runErr)
	}
}

// jsonError reports err on stdout in JSON mode. Text mode relies on the
// returned ExitError being printed to stderr.
func (o *RootOptions) jsonError(f *OutputFormatter, code string, err error, details any) {
	if f.Format == "json" {
		_ = f.Error(code, err.Error(), details)
	}
}
