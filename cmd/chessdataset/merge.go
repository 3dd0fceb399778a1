package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/freeeve/chessdataset/internal/merge"
)

func newMergeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge PGN files into one deduplicated corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateMerge(); err != nil {
				return a.fail(err, "merge")
			}
			_, err := a.merge(cmd.Context(), cmd.OutOrStdout())
			return err
		},
	}
	addMergeFlags(cmd.Flags())
	addCorpusFlag(cmd.Flags())
	return cmd
}

func (a *app) merge(ctx context.Context, out io.Writer) (merge.Stats, error) {
	m, err := merge.New(merge.Config{
		SourceDir: a.cfg.SourceDir,
		Output:    a.cfg.Corpus,
		Logger:    a.log,
	})
	if err != nil {
		return merge.Stats{}, a.fail(err, "merge")
	}
	stats, err := m.Run(ctx)
	if err != nil {
		return stats, a.fail(err, "merge")
	}

	fmt.Fprintf(out, "Read %d games from %d files, kept %d (%d duplicates, %d malformed)\n",
		stats.Read, stats.Files, stats.Kept, stats.Duplicates, stats.Malformed)
	fmt.Fprintf(out, "Corpus: %s\n", a.cfg.Corpus)
	return stats, nil
}
