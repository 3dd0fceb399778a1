// Package dataset accumulates the games and moves tables and exports them.
package dataset

import (
	"strconv"
	"sync"
)

// Column names of the two exported tables.
var (
	GameColumns = []string{
		"game_id", "white_player", "black_player", "white_elo", "black_elo",
		"date_played", "result", "opening_code", "pgn_event",
	}
	MoveColumns = []string{
		"game_id", "fen", "turn", "move_number", "played_move",
		"stockfish_best_move", "eval_score",
	}
)

// GameRow summarizes one kept game.
type GameRow struct {
	GameID      string
	WhitePlayer string
	BlackPlayer string
	WhiteElo    int
	BlackElo    int
	DatePlayed  string
	Result      string
	OpeningCode string
	PGNEvent    string
}

// Record returns the row in GameColumns order.
func (r GameRow) Record() []string {
	return []string{
		r.GameID,
		r.WhitePlayer,
		r.BlackPlayer,
		strconv.Itoa(r.WhiteElo),
		strconv.Itoa(r.BlackElo),
		r.DatePlayed,
		r.Result,
		r.OpeningCode,
		r.PGNEvent,
	}
}

// MoveRow is one annotated move of the target player.
type MoveRow struct {
	GameID     string
	FEN        string // position before the move
	Turn       string // "white" or "black"
	MoveNumber int    // full-move counter of FEN
	PlayedMove string // UCI
	BestMove   string // engine's principal move, UCI
	EvalScore  int    // side-to-move relative, in [-10000, 10000]
}

// Record returns the row in MoveColumns order.
func (r MoveRow) Record() []string {
	return []string{
		r.GameID,
		r.FEN,
		r.Turn,
		strconv.Itoa(r.MoveNumber),
		r.PlayedMove,
		r.BestMove,
		strconv.Itoa(r.EvalScore),
	}
}

// Builder collects rows for both tables. It is append-only and safe for
// concurrent use.
type Builder struct {
	mu    sync.Mutex
	games []GameRow
	moves []MoveRow
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddGame appends a game summary row.
func (b *Builder) AddGame(row GameRow) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.games = append(b.games, row)
}

// AddMoves appends the move rows of one game. Rows of a single call stay
// contiguous.
func (b *Builder) AddMoves(rows ...MoveRow) {
	if len(rows) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moves = append(b.moves, rows...)
}

// Games returns a copy of the game rows.
func (b *Builder) Games() []GameRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]GameRow(nil), b.games...)
}

// Moves returns a copy of the move rows.
func (b *Builder) Moves() []MoveRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MoveRow(nil), b.moves...)
}

// Len returns the number of game and move rows.
func (b *Builder) Len() (games, moves int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.games), len(b.moves)
}
