package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bylines/internal/engine"
)

// NewRefreshTermsCommand creates the refresh-terms command.
func NewRefreshTermsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-terms",
		Short: "Recompute record counts and descriptions of author terms",
		Long: `Recompute the record count of every author term from its relations and
rewrite its description from the current author data. Authors without a
term are left alone.`,
		Args:          commandArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefreshTerms(rootOpts, cmd)
		},
	}
}

type refreshReport struct {
	engine.RefreshResult
}

func (r refreshReport) String() string {
	return fmt.Sprintf("refreshed %d of %d authors (%d without a term, %d failed)",
		r.Refreshed, r.Authors, r.Missing, r.Failed)
}

func runRefreshTerms(opts *RootOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	refresher := engine.NewRefresher(st, cfg.Taxonomy, cfg.TermSlugPrefix,
		engine.WithRefreshLogger(opts.Logger))
	result, err := refresher.RefreshAll(cmd.Context())
	if err != nil {
		opts.jsonError(f, CodeStore, err, nil)
		return WrapExitError(ExitFailure, "refresh failed", err)
	}

	return f.Success(refreshReport{result})
}
