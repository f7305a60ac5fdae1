package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/skipmark"
)

// NewClearSkipsCommand creates the clear-skips command.
func NewClearSkipsCommand(rootOpts *RootOptions) *cobra.Command {
	var ids []int64

	cmd := &cobra.Command{
		Use:   "clear-skips",
		Short: "Delete skip markers so records are retried",
		Long: `Delete skip markers so the next backfill retries the records. With no
--ids every marker is deleted.`,
		Args:          commandArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClearSkips(rootOpts, cmd, ids)
		},
	}

	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "only clear markers of these record ids")
	return cmd
}

type clearReport struct {
	Cleared int64 `json:"cleared"`
}

func (r clearReport) String() string {
	return fmt.Sprintf("cleared %d skip markers", r.Cleared)
}

func runClearSkips(opts *RootOptions, cmd *cobra.Command, ids []int64) error {
	f := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	markers, err := skipmark.New(st, opts.Config.SkipMetaKey, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	n, err := markers.Clear(cmd.Context(), append([]ir.RecordID(nil), ids...)...)
	if err != nil {
		opts.jsonError(f, CodeStore, err, nil)
		return WrapExitError(ExitFailure, "clear skips failed", err)
	}

	return f.Success(clearReport{Cleared: n})
}
