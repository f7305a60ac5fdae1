package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bylines/internal/fixture"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load authors and records from a YAML dataset",
		Long: `Load authors, records, relations and skip markers from a YAML dataset.
Authors and records are upserted; relations and markers already present are
left alone, so importing the same file twice is harmless.

Example:
  bylines import testdata/sample.yaml`,
		Args:          commandArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0])
		},
	}
}

type importReport struct {
	fixture.Counts
}

func (r importReport) String() string {
	return fmt.Sprintf("imported %d authors, %d records, %d relations, %d skip markers",
		r.Authors, r.Records, r.Relations, r.SkipMarkers)
}

func runImport(opts *RootOptions, cmd *cobra.Command, path string) error {
	cfg := opts.Config
	f := opts.formatter(cmd)

	ds, err := fixture.Load(path)
	if err != nil {
		opts.jsonError(f, CodeInput, err, nil)
		return WrapExitError(ExitCommandError, "failed to load dataset", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	counts, err := ds.Apply(cmd.Context(), st, fixture.Options{
		Taxonomy:    cfg.Taxonomy,
		SlugPrefix:  cfg.TermSlugPrefix,
		SkipMetaKey: cfg.SkipMetaKey,
	})
	if err != nil {
		opts.jsonError(f, CodeStore, err, counts)
		return WrapExitError(ExitFailure, "import failed", err)
	}

	return f.Success(importReport{counts})
}
