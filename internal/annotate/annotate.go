// Package annotate replays games and labels the target player's moves with
// the engine's preferred move and evaluation.
package annotate

import (
	"context"
	"fmt"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/chessdataset/internal/board"
	"github.com/freeeve/chessdataset/internal/dataset"
	"github.com/freeeve/chessdataset/internal/engine"
)

// Side identifies which color the target player had in a game.
type Side int

const (
	SideNone Side = iota
	SideWhite
	SideBlack
)

func (s Side) String() string {
	switch s {
	case SideWhite:
		return "white"
	case SideBlack:
		return "black"
	}
	return "none"
}

// SideOf reports which side target played. Names are compared exactly
// (case-sensitive, untrimmed); white is checked first.
func SideOf(target, white, black string) Side {
	if target == "" {
		return SideNone
	}
	if white == target {
		return SideWhite
	}
	if black == target {
		return SideBlack
	}
	return SideNone
}

// IllegalMoveError reports a ply that could not be played on the board.
type IllegalMoveError struct {
	GameID string
	Ply    int // 1-based
	Move   string
	Err    error
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("game %s: ply %d (%s): %v", e.GameID, e.Ply, e.Move, e.Err)
}

func (e *IllegalMoveError) Unwrap() error { return e.Err }

// StartPositionError reports a game whose FEN header cannot be set up.
type StartPositionError struct {
	GameID string
	FEN    string
	Err    error
}

func (e *StartPositionError) Error() string {
	return fmt.Sprintf("game %s: start position %q: %v", e.GameID, e.FEN, e.Err)
}

func (e *StartPositionError) Unwrap() error { return e.Err }

// Annotator queries an engine for every move of the target side.
type Annotator struct {
	Engine engine.Analyzer
	Depth  int
}

// Annotate replays moves from the initial position. Before each move of
// side, the engine analyzes the current position and a row is recorded;
// every move is then applied to the board. When a ply cannot be played the
// rows gathered so far are returned together with an *IllegalMoveError.
// Engine errors are returned as is.
func (a *Annotator) Annotate(ctx context.Context, gameID string, moves []string, side Side) ([]dataset.MoveRow, error) {
	return a.AnnotateFrom(ctx, gameID, "", moves, side)
}

// AnnotateFrom is Annotate for a game that starts at startFEN, as given by a
// FEN header. An empty startFEN means the initial position; one that cannot
// be parsed yields a *StartPositionError and no rows.
func (a *Annotator) AnnotateFrom(ctx context.Context, gameID, startFEN string, moves []string, side Side) ([]dataset.MoveRow, error) {
	if side == SideNone {
		return nil, nil
	}

	pos := pgn.NewStartingPosition()
	if startFEN != "" {
		var err error
		if pos, err = pgn.NewGame(startFEN); err != nil {
			return nil, &StartPositionError{GameID: gameID, FEN: startFEN, Err: err}
		}
	}

	moveNumber := 1
	var rows []dataset.MoveRow

	for i, tok := range moves {
		fen := pos.ToFEN()
		whiteToMove := board.WhiteToMove(fen)

		mv, err := board.Resolve(pos, tok)
		if err != nil {
			return rows, &IllegalMoveError{GameID: gameID, Ply: i + 1, Move: tok, Err: err}
		}

		if whiteToMove == (side == SideWhite) {
			res, err := a.Engine.Analyze(ctx, fen, a.Depth)
			if err != nil {
				return rows, fmt.Errorf("analyze game %s ply %d: %w", gameID, i+1, err)
			}
			n, ok := board.FullMoveNumber(fen)
			if !ok {
				n = moveNumber
			}
			rows = append(rows, dataset.MoveRow{
				GameID:     gameID,
				FEN:        fen,
				Turn:       board.Turn(fen),
				MoveNumber: n,
				PlayedMove: board.UCI(mv),
				BestMove:   res.BestMove,
				EvalScore:  engine.ClampScore(res.Score, res.Mate),
			})
		}

		if err := pgn.ApplyMove(pos, mv); err != nil {
			return rows, &IllegalMoveError{GameID: gameID, Ply: i + 1, Move: tok, Err: err}
		}
		if !whiteToMove {
			moveNumber++
		}
	}
	return rows, nil
}
