package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/freeeve/chessdataset/internal/eco"
	"github.com/freeeve/chessdataset/internal/engine"
	"github.com/freeeve/chessdataset/internal/pipeline"
)

func newAnnotateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate the target player's moves and export the dataset tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateAnnotate(); err != nil {
				return a.fail(err, "annotate")
			}
			_, err := a.annotate(cmd.Context(), cmd.OutOrStdout())
			return err
		},
	}
	addCorpusFlag(cmd.Flags())
	addAnnotateFlags(cmd.Flags())
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Merge the source files, then annotate the resulting corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateMerge(); err != nil {
				return a.fail(err, "run")
			}
			if err := a.cfg.ValidateAnnotate(); err != nil {
				return a.fail(err, "run")
			}
			if _, err := a.merge(cmd.Context(), cmd.OutOrStdout()); err != nil {
				return err
			}
			_, err := a.annotate(cmd.Context(), cmd.OutOrStdout())
			return err
		},
	}
	addMergeFlags(cmd.Flags())
	addCorpusFlag(cmd.Flags())
	addAnnotateFlags(cmd.Flags())
	return cmd
}

func (a *app) annotate(ctx context.Context, out io.Writer) (pipeline.Report, error) {
	var db *eco.Database
	if a.cfg.ECODir != "" {
		db = eco.NewDatabase()
		if err := db.LoadDir(a.cfg.ECODir); err != nil {
			return pipeline.Report{}, a.fail(err, "load openings")
		}
		a.log.Info().Int("openings", db.Count()).Int("skipped", db.Skipped()).Msg("loaded ECO database")
	}

	ec := a.cfg.Engine
	var cache *engine.Cache
	if ec.CacheSize > 0 || ec.CacheFile != "" {
		cache = engine.NewCache(ec.CacheSize)
		if ec.CacheFile != "" {
			n, err := cache.LoadFile(ec.CacheFile)
			if err != nil {
				return pipeline.Report{}, a.fail(err, "load analysis cache")
			}
			a.log.Info().Str("file", ec.CacheFile).Int("analyses", n).Msg("loaded analysis cache")
		}
	}

	pool, err := engine.NewPool(ctx, ec.Workers, engine.UCIStarter(engine.Config{
		StockfishPath: ec.Path,
		Logger:        a.log,
		HashMB:        ec.HashMB,
		Threads:       ec.Threads,
		Retries:       ec.Retries,
		Timeout:       ec.Timeout,
	}))
	if err != nil {
		return pipeline.Report{}, a.fail(err, "start engines")
	}
	defer func() {
		if err := pool.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close engines")
		}
	}()

	report, err := pipeline.Annotate(ctx, pipeline.Config{
		CorpusPath: a.cfg.Corpus,
		Player:     a.cfg.Player,
		Depth:      ec.Depth,
		GamesCSV:   a.cfg.Output.Games,
		MovesCSV:   a.cfg.Output.Moves,
		SQLitePath: a.cfg.Output.SQLite,
		ECO:        db,
		Cache:      cache,
		Logger:     a.log,
	}, pool)
	if err != nil {
		return report, a.fail(err, "annotate")
	}
	if cache != nil && ec.CacheFile != "" {
		if err := cache.SaveFile(ec.CacheFile); err != nil {
			a.log.Warn().Err(err).Str("file", ec.CacheFile).Msg("save analysis cache")
		}
	}

	fmt.Fprintf(out, "Annotated %d of %d games for %s (%d duplicates, %d illegal, %d not played)\n",
		report.Annotated, report.Games, a.cfg.Player, report.Duplicates, report.Illegal, report.Skipped)
	fmt.Fprintf(out, "Games table: %s (%d rows)\n", report.GamesCSV, report.Games)
	fmt.Fprintf(out, "Moves table: %s (%d rows)\n", report.MovesCSV, report.Moves)
	if report.SQLitePath != "" {
		fmt.Fprintf(out, "SQLite database: %s\n", report.SQLitePath)
	}
	return report, nil
}
