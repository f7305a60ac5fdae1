package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bylines/internal/predicate"
)

// CountOptions holds flags for the count command.
type CountOptions struct {
	*RootOptions
	filters filterFlags
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count records a backfill would process",
		Long: `Count the records a backfill with the same flags would process, without
writing anything.`,
		Args:          commandArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(opts, cmd)
		},
	}

	opts.filters.register(cmd)
	return cmd
}

type countReport struct {
	Total int `json:"total"`
}

func (r countReport) String() string {
	return fmt.Sprintf("%d records need an author term", r.Total)
}

func runCount(opts *CountOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	params := opts.filters.params(cmd, cfg)
	f := opts.formatter(cmd)

	pred, err := predicate.Build(predicate.Params{
		Taxonomy:       cfg.Taxonomy,
		RecordTypes:    params.RecordTypes,
		RecordStatuses: params.RecordStatuses,
		ExplicitIDs:    params.ExplicitIDs,
		AboveID:        params.AboveID,
		BelowID:        params.BelowID,
		SkipMetaKey:    cfg.SkipMetaKey,
	})
	if err != nil {
		opts.jsonError(f, CodeConfig, err, nil)
		return WrapExitError(ExitCommandError, "invalid selection", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	total, err := st.CountMatching(cmd.Context(), pred)
	if err != nil {
		opts.jsonError(f, CodeStore, err, nil)
		return WrapExitError(ExitFailure, "count failed", err)
	}

	return f.Success(countReport{Total: total})
}
