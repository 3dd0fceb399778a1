// Package board adapts the pgn position model to the notation used in the
// dataset: UCI move strings, FEN side-to-move and move counters.
package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/freeeve/pgn/v3"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// UCI converts a move to UCI notation (e.g., "e2e4", "e7e8q").
func UCI(mv pgn.Mv) string {
	files := "abcdefgh"
	ranks := "12345678"

	from := string(files[mv.From%8]) + string(ranks[mv.From/8])
	to := string(files[mv.To%8]) + string(ranks[mv.To/8])

	uci := from + to

	switch mv.Promo {
	case pgn.PromoQueen:
		uci += "q"
	case pgn.PromoRook:
		uci += "r"
	case pgn.PromoBishop:
		uci += "b"
	case pgn.PromoKnight:
		uci += "n"
	}
	return uci
}

// IsUCIToken reports whether s has the shape of a UCI move ("e2e4", "a7a8q").
func IsUCIToken(s string) bool {
	if len(s) != 4 && len(s) != 5 {
		return false
	}
	for i := 0; i < 4; i += 2 {
		if s[i] < 'a' || s[i] > 'h' || s[i+1] < '1' || s[i+1] > '8' {
			return false
		}
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}

// Resolve returns the legal move in pos denoted by token, which may be SAN
// ("Nf3", "exd8=Q+", "O-O") or UCI ("g1f3"). It fails when the token does not
// parse or names a move that is not legal in pos.
func Resolve(pos *pgn.GameState, token string) (pgn.Mv, error) {
	legal := pgn.GenerateLegalMoves(pos)

	want := token
	if !IsUCIToken(token) {
		san := strings.TrimRight(token, "+#!?")
		san = strings.ReplaceAll(san, "0-0", "O-O")
		mv, err := pgn.ParseSAN(pos, san)
		if err != nil {
			return pgn.Mv{}, fmt.Errorf("parse %q: %w", token, err)
		}
		want = UCI(mv)
	}

	for _, mv := range legal {
		if UCI(mv) == want {
			return mv, nil
		}
	}
	return pgn.Mv{}, fmt.Errorf("illegal move %q", token)
}

// Turn returns "white" or "black" for the side to move in fen.
func Turn(fen string) string {
	if WhiteToMove(fen) {
		return "white"
	}
	return "black"
}

// WhiteToMove reports whether white is to move in fen.
func WhiteToMove(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) < 2 || fields[1] != "b"
}

// FullMoveNumber returns the full-move counter of fen.
func FullMoveNumber(fen string) (int, bool) {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
