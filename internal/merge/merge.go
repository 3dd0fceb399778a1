// Package merge combines raw PGN files into one deduplicated corpus.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessdataset/internal/dedup"
	"github.com/freeeve/chessdataset/internal/record"
)

// Config configures a merge run.
type Config struct {
	SourceDir string         // directory scanned for .pgn / .pgn.zst files
	Output    string         // merged corpus path, excluded from the inputs by base name
	Logger    zerolog.Logger // Logger
}

// Stats summarizes a merge run.
type Stats struct {
	Files      int   // source files scanned
	Read       int64 // well-formed records read
	Kept       int64 // records written to the corpus
	Duplicates int64 // records dropped as repeats
	Malformed  int64 // records skipped because they could not be parsed
}

// Merger runs the merge stage. A Merger owns its seen-set, so each Merger
// is one run.
type Merger struct {
	cfg  Config
	log  zerolog.Logger
	seen *dedup.Set[dedup.MergeIdentity]
}

// New creates a merger.
func New(cfg Config) (*Merger, error) {
	if cfg.SourceDir == "" {
		return nil, fmt.Errorf("source directory required")
	}
	if cfg.Output == "" {
		return nil, fmt.Errorf("output path required")
	}
	return &Merger{
		cfg:  cfg,
		log:  cfg.Logger,
		seen: dedup.NewSet[dedup.MergeIdentity](),
	}, nil
}

// Run merges every source file into the output corpus. The corpus is only
// moved into place when every file was processed.
func (m *Merger) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	startTime := time.Now()

	files, err := record.ListSources(m.cfg.SourceDir, filepath.Base(m.cfg.Output))
	if err != nil {
		return stats, fmt.Errorf("list sources: %w", err)
	}
	m.log.Info().
		Str("source_dir", m.cfg.SourceDir).
		Int("files", len(files)).
		Msg("starting merge")

	cw, err := NewCorpusWriter(m.cfg.Output)
	if err != nil {
		return stats, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			cw.Abort()
			return stats, err
		}
		if err := m.mergeFile(ctx, path, cw, &stats); err != nil {
			cw.Abort()
			return stats, err
		}
		stats.Files++
	}

	if err := cw.Close(); err != nil {
		return stats, err
	}

	m.log.Info().
		Int("files", stats.Files).
		Int64("games_read", stats.Read).
		Int64("games_kept", stats.Kept).
		Int64("duplicates", stats.Duplicates).
		Int64("malformed", stats.Malformed).
		Str("output", m.cfg.Output).
		Dur("elapsed", time.Since(startTime)).
		Msg("merge complete")
	return stats, nil
}

func (m *Merger) mergeFile(ctx context.Context, path string, cw *CorpusWriter, stats *Stats) error {
	r, err := record.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	var read, kept int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		g, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *record.ParseError
		if errors.As(err, &pe) {
			stats.Malformed++
			m.log.Warn().Err(pe.Err).Str("file", pe.Source).Int("record", pe.Index).Int("line", pe.Line).Msg("skipping malformed record")
			continue
		}
		if err != nil {
			return err
		}

		read++
		if !m.seen.ShouldKeep(dedup.MergeKey(g)) {
			stats.Duplicates++
			continue
		}
		if err := cw.Write(g); err != nil {
			return fmt.Errorf("write corpus: %w", err)
		}
		kept++
	}

	stats.Read += read
	stats.Kept += kept
	m.log.Info().Str("file", filepath.Base(path)).Int64("read", read).Int64("kept", kept).Msg("merged file")
	return nil
}
