package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freeeve/uci"
	"github.com/rs/zerolog"
)

// closeWait bounds how long we wait for an engine process to exit.
const closeWait = 5 * time.Second

// Config configures a UCI engine process.
type Config struct {
	StockfishPath string
	Logger        zerolog.Logger
	HashMB        int           // Stockfish hash table size
	Threads       int           // Stockfish threads
	Retries       int           // engine restarts allowed per query before failing
	Timeout       time.Duration // per-query limit (0 = wait indefinitely)
}

// UCI is an engine process speaking the UCI protocol.
type UCI struct {
	cfg Config
	log zerolog.Logger

	mu  sync.Mutex
	eng *uci.Engine

	// Stats
	queries  int64
	restarts int64
}

// Start launches the engine process. A failure is reported as
// ErrEngineUnavailable.
func Start(cfg Config) (*UCI, error) {
	if cfg.StockfishPath == "" {
		return nil, fmt.Errorf("%w: stockfish path required", ErrEngineUnavailable)
	}
	if cfg.HashMB == 0 {
		cfg.HashMB = 128
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}

	e := &UCI{cfg: cfg, log: cfg.Logger}
	if err := e.start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	e.log.Info().
		Str("stockfish", cfg.StockfishPath).
		Int("threads", cfg.Threads).
		Int("hash_mb", cfg.HashMB).
		Msg("engine started")
	return e, nil
}

func (e *UCI) start() error {
	eng, err := uci.NewEngine(e.cfg.StockfishPath)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	opts := uci.Options{
		Hash:    e.cfg.HashMB,
		Threads: e.cfg.Threads,
		MultiPV: 1,
		Ponder:  false,
		OwnBook: false,
	}
	if err := eng.SetOptions(opts); err != nil {
		eng.Close()
		return fmt.Errorf("set options: %w", err)
	}
	e.eng = eng
	return nil
}

// Analyze searches fen to the given depth. A crashed, silent or timed-out
// engine is restarted up to Retries times; after that ErrEngineFailed is
// returned. Cancelling ctx terminates the running search.
func (e *UCI) Analyze(ctx context.Context, fen string, depth int) (Analysis, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Analysis{}, err
		}

		if e.eng == nil {
			if err := e.start(); err != nil {
				lastErr = err
				continue
			}
			atomic.AddInt64(&e.restarts, 1)
			e.log.Info().Int("attempt", attempt+1).Msg("engine restarted")
		}

		a, err := e.query(ctx, fen, depth)
		if err == nil {
			atomic.AddInt64(&e.queries, 1)
			return a, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Analysis{}, ctxErr
		}

		lastErr = err
		e.log.Warn().Err(err).Str("fen", fen).Int("attempt", attempt+1).Msg("engine query failed")
		e.kill()
	}
	return Analysis{}, fmt.Errorf("%w: %v", ErrEngineFailed, lastErr)
}

type queryResult struct {
	a   Analysis
	err error
}

func (e *UCI) query(ctx context.Context, fen string, depth int) (Analysis, error) {
	eng := e.eng
	if err := eng.SetFEN(fen); err != nil {
		return Analysis{}, fmt.Errorf("set FEN: %w", err)
	}

	ch := make(chan queryResult, 1)
	go func() {
		results, err := eng.GoDepth(depth, uci.HighestDepthOnly)
		if err != nil {
			ch <- queryResult{err: fmt.Errorf("stockfish eval: %w", err)}
			return
		}
		if len(results.Results) == 0 {
			ch <- queryResult{err: fmt.Errorf("no results from engine")}
			return
		}

		best := results.Results[0]
		for _, r := range results.Results {
			if r.Depth > best.Depth {
				best = r
			}
		}

		// Scores are already from the side to move's perspective.
		move := results.BestMove
		if len(best.BestMoves) > 0 {
			move = best.BestMoves[0]
		}
		if move == "(none)" {
			move = ""
		}
		ch <- queryResult{a: Analysis{
			BestMove: move,
			Score:    ClampScore(best.Score, best.Mate),
			Mate:     best.Mate,
			Depth:    best.Depth,
		}}
	}()

	var timeout <-chan time.Time
	if e.cfg.Timeout > 0 {
		t := time.NewTimer(e.cfg.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-ctx.Done():
		e.kill()
		return Analysis{}, ctx.Err()
	case <-timeout:
		return Analysis{}, fmt.Errorf("no result within %s", e.cfg.Timeout)
	case r := <-ch:
		return r.a, r.err
	}
}

// kill terminates the current engine process, if any.
func (e *UCI) kill() {
	eng := e.eng
	e.eng = nil
	if eng == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		eng.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeWait):
		e.log.Warn().Msg("engine did not exit in time")
	}
}

// Close stops the engine process. It is safe to call more than once.
func (e *UCI) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.eng != nil {
		e.kill()
		e.log.Debug().
			Int64("queries", atomic.LoadInt64(&e.queries)).
			Int64("restarts", atomic.LoadInt64(&e.restarts)).
			Msg("engine closed")
	}
	return nil
}

// Stats returns the number of successful queries and restarts.
func (e *UCI) Stats() (queries, restarts int64) {
	return atomic.LoadInt64(&e.queries), atomic.LoadInt64(&e.restarts)
}
