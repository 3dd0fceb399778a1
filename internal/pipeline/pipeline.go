// Package pipeline runs the annotation stage: it reads the merged corpus,
// builds one summary row per distinct game and annotates the target
// player's moves across a pool of engines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/chessdataset/internal/annotate"
	"github.com/freeeve/chessdataset/internal/dataset"
	"github.com/freeeve/chessdataset/internal/dedup"
	"github.com/freeeve/chessdataset/internal/eco"
	"github.com/freeeve/chessdataset/internal/engine"
	"github.com/freeeve/chessdataset/internal/record"
)

const progressEvery = 1000

// Config configures an annotation run.
type Config struct {
	CorpusPath string // merged corpus (.pgn or .pgn.zst)
	Player     string // target player name, matched exactly
	Depth      int    // engine search depth

	GamesCSV   string
	MovesCSV   string
	SQLitePath string // optional

	ECO    *eco.Database // optional opening fallback
	Cache  *engine.Cache // optional, shared by all workers
	Logger zerolog.Logger
}

// Report summarizes an annotation run.
type Report struct {
	Read       int64 // well-formed corpus records
	Malformed  int64 // corpus records skipped as unparseable
	Duplicates int64 // records dropped by the annotation identity
	Games      int   // summary rows
	Annotated  int64 // games fully replayed for the target player
	Skipped    int64 // games the target player did not play
	Illegal    int64 // games abandoned at an illegal move or a bad FEN header
	Moves      int   // move rows
	CacheHits  uint64

	GamesCSV   string
	MovesCSV   string
	SQLitePath string
	Elapsed    time.Duration
}

type job struct {
	id   string
	game *record.Game
	side annotate.Side
}

type counters struct {
	read, malformed, duplicates int64
	annotated, skipped, illegal atomic.Int64
}

// Annotate runs the annotation stage with one worker per engine in pool.
// A single engine keeps games in corpus order; with more, the order of move
// rows across games is best-effort. Any engine error aborts the run and
// nothing is exported.
func Annotate(ctx context.Context, cfg Config, pool *engine.Pool) (Report, error) {
	var report Report
	if err := checkConfig(cfg); err != nil {
		return report, err
	}
	if pool == nil || pool.Size() == 0 {
		return report, fmt.Errorf("no engines available")
	}

	log := cfg.Logger
	startTime := time.Now()

	r, err := record.Open(cfg.CorpusPath)
	if err != nil {
		return report, fmt.Errorf("open corpus: %w", err)
	}
	defer r.Close()

	log.Info().
		Str("corpus", cfg.CorpusPath).
		Str("player", cfg.Player).
		Int("depth", cfg.Depth).
		Int("workers", pool.Size()).
		Msg("starting annotation")

	builder := dataset.NewBuilder()
	seen := dedup.NewSet[string]()
	var c counters

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)

	g.Go(func() error {
		defer close(jobs)
		return readGames(gctx, cfg, r, seen, builder, &c, jobs)
	})

	for i := 0; i < pool.Size(); i++ {
		ann := &annotate.Annotator{Engine: engine.WithCache(pool.Engine(i), cfg.Cache), Depth: cfg.Depth}
		wlog := log.With().Int("worker_id", i).Logger()
		g.Go(func() error {
			return annotateGames(gctx, ann, wlog, builder, &c, jobs)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("annotation aborted, no tables written")
		return report, err
	}

	report = Report{
		Read:       c.read,
		Malformed:  c.malformed,
		Duplicates: c.duplicates,
		Annotated:  c.annotated.Load(),
		Skipped:    c.skipped.Load(),
		Illegal:    c.illegal.Load(),
	}
	report.Games, report.Moves = builder.Len()
	if cfg.Cache != nil {
		report.CacheHits, _ = cfg.Cache.Stats()
	}

	if err := builder.Export(cfg.GamesCSV, cfg.MovesCSV); err != nil {
		return report, err
	}
	report.GamesCSV = cfg.GamesCSV
	report.MovesCSV = cfg.MovesCSV

	if cfg.SQLitePath != "" {
		if err := exportSQLite(ctx, cfg.SQLitePath, builder); err != nil {
			return report, err
		}
		report.SQLitePath = cfg.SQLitePath
	}

	report.Elapsed = time.Since(startTime)
	log.Info().
		Int64("read", report.Read).
		Int64("duplicates", report.Duplicates).
		Int64("malformed", report.Malformed).
		Int("games", report.Games).
		Int64("annotated", report.Annotated).
		Int64("illegal", report.Illegal).
		Int("moves", report.Moves).
		Uint64("cache_hits", report.CacheHits).
		Dur("elapsed", report.Elapsed).
		Msg("annotation complete")
	return report, nil
}

func checkConfig(cfg Config) error {
	switch {
	case cfg.CorpusPath == "":
		return fmt.Errorf("corpus path required")
	case cfg.Player == "":
		return fmt.Errorf("target player required")
	case cfg.Depth < 1:
		return fmt.Errorf("depth must be at least 1, got %d", cfg.Depth)
	case cfg.GamesCSV == "" || cfg.MovesCSV == "":
		return fmt.Errorf("games and moves output paths required")
	}
	return nil
}

// readGames produces one job per distinct game the target player played.
// Summary rows are appended here, so they follow corpus order.
func readGames(ctx context.Context, cfg Config, r *record.Reader, seen *dedup.Set[string],
	builder *dataset.Builder, c *counters, jobs chan<- job) error {
	log := cfg.Logger
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g, err := r.Next()
		if err == io.EOF {
			return nil
		}
		var perr *record.ParseError
		if errors.As(err, &perr) {
			c.malformed++
			log.Warn().Err(perr.Err).
				Str("file", perr.Source).
				Int("record", perr.Index).
				Int("line", perr.Line).
				Msg("skipping malformed record")
			continue
		}
		if err != nil {
			return fmt.Errorf("read corpus: %w", err)
		}
		c.read++
		if c.read%progressEvery == 0 {
			log.Info().Int64("read", c.read).Int("kept", seen.Len()).Msg("progress")
		}

		id := dedup.AnnotationKey(g)
		if !seen.ShouldKeep(id) {
			c.duplicates++
			continue
		}
		builder.AddGame(summarize(g, id, cfg.ECO))

		side := annotate.SideOf(cfg.Player, g.Tag("White"), g.Tag("Black"))
		if side == annotate.SideNone {
			c.skipped.Add(1)
			continue
		}

		select {
		case jobs <- job{id: id, game: g, side: side}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func annotateGames(ctx context.Context, ann *annotate.Annotator, log zerolog.Logger,
	builder *dataset.Builder, c *counters, jobs <-chan job) error {
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := ann.AnnotateFrom(ctx, j.id, j.game.Tag("FEN"), j.game.Moves, j.side)
		builder.AddMoves(rows...)

		var ime *annotate.IllegalMoveError
		var spe *annotate.StartPositionError
		switch {
		case errors.As(err, &spe):
			c.illegal.Add(1)
			log.Warn().Err(spe.Err).
				Str("game_id", j.id).
				Str("fen", spe.FEN).
				Msg("invalid FEN header, skipping game")
		case errors.As(err, &ime):
			c.illegal.Add(1)
			log.Warn().Err(ime.Err).
				Str("game_id", j.id).
				Int("ply", ime.Ply).
				Str("move", ime.Move).
				Int("rows_kept", len(rows)).
				Msg("illegal move, abandoning game")
		case err != nil:
			return fmt.Errorf("annotate %s: %w", j.id, err)
		default:
			c.annotated.Add(1)
			log.Debug().Str("game_id", j.id).Str("side", j.side.String()).Int("rows", len(rows)).Msg("annotated game")
		}
	}
	return nil
}

func summarize(g *record.Game, id string, db *eco.Database) dataset.GameRow {
	opening := g.Tag("ECO")
	if (opening == "" || opening == "?") && g.Tag("FEN") == "" {
		if o := db.Classify(g.Moves); o != nil {
			opening = o.ECO
		}
	}
	result := g.Tag("Result")
	if result == "" {
		result = g.Result
	}
	return dataset.GameRow{
		GameID:      id,
		WhitePlayer: g.Tag("White"),
		BlackPlayer: g.Tag("Black"),
		WhiteElo:    parseRating(g.Tag("WhiteElo")),
		BlackElo:    parseRating(g.Tag("BlackElo")),
		DatePlayed:  dedup.NormalizeDate(g.Tag("Date")),
		Result:      result,
		OpeningCode: opening,
		PGNEvent:    g.Tag("Event"),
	}
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}

func exportSQLite(ctx context.Context, path string, builder *dataset.Builder) error {
	db, err := dataset.OpenSQLite(path)
	if err != nil {
		return err
	}
	if err := db.Export(ctx, builder); err != nil {
		db.Close()
		return fmt.Errorf("sqlite export: %w", err)
	}
	return db.Close()
}
