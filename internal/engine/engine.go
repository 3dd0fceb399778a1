// Package engine queries a UCI chess engine for the best move and evaluation
// of a position.
package engine

import (
	"context"
	"errors"
)

// MateScore is the evaluation reported for forced mates, signed from the
// side to move's perspective. Centipawn scores are clipped to the same bound.
const MateScore = 10000

var (
	// ErrEngineUnavailable means the engine process could not be started.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrEngineFailed means a query failed after all restarts were used.
	ErrEngineFailed = errors.New("engine failed")
)

// Analysis is the engine's verdict on a position.
type Analysis struct {
	BestMove string // principal move in UCI notation, "" if none
	Score    int    // side-to-move relative, in [-MateScore, MateScore]
	Mate     bool   // Score stems from a mate announcement
	Depth    int    // depth of the result used
}

// Analyzer analyzes a single position given as FEN. Implementations are not
// expected to be safe for concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, fen string, depth int) (Analysis, error)
}

// Engine is an Analyzer backed by a resource that must be released.
type Engine interface {
	Analyzer
	Close() error
}

// ClampScore maps a raw engine score to the dataset's bounded evaluation.
// Mate scores become ±MateScore keeping their sign; "mate 0" means the side
// to move is mated. Centipawn scores are clipped to ±MateScore.
func ClampScore(score int, mate bool) int {
	if mate {
		if score > 0 {
			return MateScore
		}
		return -MateScore
	}
	if score > MateScore {
		return MateScore
	}
	if score < -MateScore {
		return -MateScore
	}
	return score
}
