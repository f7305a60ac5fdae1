package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/bylines/internal/config"
	"github.com/roach88/bylines/internal/engine"
	"github.com/roach88/bylines/internal/ir"
)

// filterFlags are the record selection flags shared by backfill and count.
type filterFlags struct {
	recordTypes    []string
	recordStatuses []string
	ids            []int64
	aboveID        int64
	belowID        int64
}

func (f *filterFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.recordTypes, "record-types", nil, "record types to match (default: backfill.default_type)")
	fs.StringSliceVar(&f.recordStatuses, "record-statuses", nil, "record statuses to match (default: backfill.default_status)")
	fs.Int64SliceVar(&f.ids, "ids", nil, "only these record ids; overrides --above-id and --below-id")
	fs.Int64Var(&f.aboveID, "above-id", 0, "only records with an id greater than this")
	fs.Int64Var(&f.belowID, "below-id", 0, "only records with an id less than this")
}

// params returns the selection as engine parameters. Unset bounds stay nil
// so that 0 is a usable bound.
func (f *filterFlags) params(cmd *cobra.Command, cfg *config.Config) engine.Params {
	p := engine.Params{
		RecordTypes:    f.recordTypes,
		RecordStatuses: f.recordStatuses,
		ExplicitIDs:    append([]ir.RecordID(nil), f.ids...),
	}
	if len(p.RecordTypes) == 0 {
		p.RecordTypes = []string{cfg.Backfill.DefaultType}
	}
	if len(p.RecordStatuses) == 0 {
		p.RecordStatuses = []string{cfg.Backfill.DefaultStatus}
	}
	if cmd.Flags().Changed("above-id") {
		above := f.aboveID
		p.AboveID = &above
	}
	if cmd.Flags().Changed("below-id") {
		below := f.belowID
		p.BelowID = &below
	}
	return p
}
