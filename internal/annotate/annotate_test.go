package annotate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/freeeve/chessdataset/internal/board"
	"github.com/freeeve/chessdataset/internal/engine"
)

// fakeEngine answers every query with a fixed move and a score derived from
// the call count, recording the positions it was asked about.
type fakeEngine struct {
	fens   []string
	depths []int
	score  int
	mate   bool
	err    error
	failAt int // 1-based call that fails, 0 = never
}

func (f *fakeEngine) Analyze(ctx context.Context, fen string, depth int) (engine.Analysis, error) {
	f.fens = append(f.fens, fen)
	f.depths = append(f.depths, depth)
	if f.failAt > 0 && len(f.fens) == f.failAt {
		return engine.Analysis{}, f.err
	}
	return engine.Analysis{BestMove: "a2a3", Score: f.score, Mate: f.mate, Depth: depth}, nil
}

func TestSideOf(t *testing.T) {
	tests := []struct {
		target, white, black string
		want                 Side
	}{
		{"alice", "alice", "bob", SideWhite},
		{"alice", "bob", "alice", SideBlack},
		{"alice", "bob", "carol", SideNone},
		{"alice", "Alice", "ALICE", SideNone},
		{"alice", "alice ", "bob", SideNone},
		{"alice", "alice", "alice", SideWhite},
		{"", "", "", SideNone},
	}
	for _, tt := range tests {
		if got := SideOf(tt.target, tt.white, tt.black); got != tt.want {
			t.Errorf("SideOf(%q, %q, %q) = %v, want %v", tt.target, tt.white, tt.black, got, tt.want)
		}
	}
}

var italian = []string{"e4", "e5", "Nf3", "Nc6", "Bc4", "Bc5"}

func TestAnnotateWhite(t *testing.T) {
	eng := &fakeEngine{score: 42}
	a := &Annotator{Engine: eng, Depth: 12}

	rows, err := a.Annotate(context.Background(), "g1", italian, SideWhite)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	wantPlayed := []string{"e2e4", "g1f3", "f1c4"}
	for i, r := range rows {
		if r.Turn != "white" {
			t.Errorf("row %d turn: got %s", i, r.Turn)
		}
		if r.MoveNumber != i+1 {
			t.Errorf("row %d move number: got %d, want %d", i, r.MoveNumber, i+1)
		}
		if r.PlayedMove != wantPlayed[i] {
			t.Errorf("row %d played: got %s, want %s", i, r.PlayedMove, wantPlayed[i])
		}
		if r.BestMove != "a2a3" || r.EvalScore != 42 || r.GameID != "g1" {
			t.Errorf("row %d: unexpected %+v", i, r)
		}
		if !board.WhiteToMove(r.FEN) {
			t.Errorf("row %d FEN should have white to move: %s", i, r.FEN)
		}
		if r.FEN != eng.fens[i] {
			t.Errorf("row %d FEN %q differs from the position analyzed %q", i, r.FEN, eng.fens[i])
		}
	}
	if !strings.HasPrefix(rows[0].FEN, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w") {
		t.Errorf("first FEN should be the initial position, got %s", rows[0].FEN)
	}
	for _, d := range eng.depths {
		if d != 12 {
			t.Errorf("engine queried at depth %d, want 12", d)
		}
	}
}

func TestAnnotateBlackOnlyBlackPlies(t *testing.T) {
	eng := &fakeEngine{score: -15}
	a := &Annotator{Engine: eng, Depth: 1}

	rows, err := a.Annotate(context.Background(), "g2", italian, SideBlack)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || len(eng.fens) != 3 {
		t.Fatalf("got %d rows / %d queries, want 3", len(rows), len(eng.fens))
	}

	wantPlayed := []string{"e7e5", "b8c6", "f8c5"}
	for i, r := range rows {
		if r.Turn != "black" {
			t.Errorf("row %d turn: got %s", i, r.Turn)
		}
		if r.PlayedMove != wantPlayed[i] {
			t.Errorf("row %d played: got %s, want %s", i, r.PlayedMove, wantPlayed[i])
		}
		if r.MoveNumber != i+1 {
			t.Errorf("row %d move number: got %d, want %d", i, r.MoveNumber, i+1)
		}
	}
	// White's moves were applied: black's first position has the e4 pawn.
	if !strings.Contains(rows[0].FEN, "4P3") {
		t.Errorf("white's first move not applied: %s", rows[0].FEN)
	}
}

func TestAnnotateNoSide(t *testing.T) {
	eng := &fakeEngine{}
	a := &Annotator{Engine: eng, Depth: 1}

	rows, err := a.Annotate(context.Background(), "g3", italian, SideNone)
	if err != nil || len(rows) != 0 || len(eng.fens) != 0 {
		t.Fatalf("expected no rows and no queries, got %d rows, %d queries, err %v", len(rows), len(eng.fens), err)
	}
}

func TestAnnotateStopsAtIllegalMove(t *testing.T) {
	eng := &fakeEngine{}
	a := &Annotator{Engine: eng, Depth: 1}

	moves := []string{"e4", "e5", "Nf3", "Nc6", "Ke3", "d6", "Bc4"}
	rows, err := a.Annotate(context.Background(), "g4", moves, SideWhite)

	var ime *IllegalMoveError
	if !errors.As(err, &ime) {
		t.Fatalf("got %v, want IllegalMoveError", err)
	}
	if ime.Ply != 5 || ime.Move != "Ke3" || ime.GameID != "g4" {
		t.Errorf("unexpected error details: %+v", ime)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want the 2 before the bad ply", len(rows))
	}
	if rows[1].PlayedMove != "g1f3" {
		t.Errorf("last kept row: got %s, want g1f3", rows[1].PlayedMove)
	}
	if len(eng.fens) != 2 {
		t.Errorf("engine must not be queried for the illegal ply, got %d queries", len(eng.fens))
	}
}

func TestAnnotateEngineErrorPropagates(t *testing.T) {
	boom := errors.New("engine crashed")
	eng := &fakeEngine{failAt: 2, err: boom}
	a := &Annotator{Engine: eng, Depth: 1}

	rows, err := a.Annotate(context.Background(), "g5", italian, SideWhite)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want engine error", err)
	}
	var ime *IllegalMoveError
	if errors.As(err, &ime) {
		t.Fatal("engine failure must not look like an illegal move")
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
}

func TestAnnotateClampsScores(t *testing.T) {
	a := &Annotator{Engine: &fakeEngine{score: 54321}, Depth: 1}
	rows, err := a.Annotate(context.Background(), "g6", []string{"e4"}, SideWhite)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].EvalScore != engine.MateScore {
		t.Errorf("got %d, want %d", rows[0].EvalScore, engine.MateScore)
	}

	a = &Annotator{Engine: &fakeEngine{score: -3, mate: true}, Depth: 1}
	rows, err = a.Annotate(context.Background(), "g7", []string{"e4"}, SideWhite)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].EvalScore != -engine.MateScore {
		t.Errorf("got %d, want %d", rows[0].EvalScore, -engine.MateScore)
	}
}

func TestAnnotateUCITokens(t *testing.T) {
	a := &Annotator{Engine: &fakeEngine{}, Depth: 1}
	rows, err := a.Annotate(context.Background(), "g8", []string{"e2e4", "e7e5", "g1f3"}, SideWhite)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].PlayedMove != "g1f3" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestAnnotateFromSetUpPosition(t *testing.T) {
	eng := &fakeEngine{}
	a := &Annotator{Engine: eng, Depth: 8}

	start := "4k3/8/8/8/8/8/4P3/4K3 w - - 0 40"
	rows, err := a.AnnotateFrom(context.Background(), "g5", start, []string{"e4", "Kd7", "Ke2"}, SideWhite)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if !strings.HasPrefix(rows[0].FEN, "4k3/8/8/8/8/8/4P3/4K3 w") {
		t.Errorf("first row should analyze the set-up position, got %s", rows[0].FEN)
	}
	if rows[0].MoveNumber != 40 || rows[1].MoveNumber != 41 {
		t.Errorf("move numbers: got %d, %d, want 40, 41", rows[0].MoveNumber, rows[1].MoveNumber)
	}
	if rows[0].PlayedMove != "e2e4" || rows[1].PlayedMove != "e1e2" {
		t.Errorf("played: got %s, %s", rows[0].PlayedMove, rows[1].PlayedMove)
	}
}

func TestAnnotateFromBlackToMove(t *testing.T) {
	eng := &fakeEngine{}
	a := &Annotator{Engine: eng, Depth: 8}

	rows, err := a.AnnotateFrom(context.Background(), "g6", "4k3/8/8/8/4P3/8/8/4K3 b - - 0 12", []string{"Kd7", "Ke2"}, SideBlack)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Turn != "black" || rows[0].PlayedMove != "e8d7" || rows[0].MoveNumber != 12 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestAnnotateFromInvalidFEN(t *testing.T) {
	eng := &fakeEngine{}
	a := &Annotator{Engine: eng, Depth: 8}

	rows, err := a.AnnotateFrom(context.Background(), "g7", "not a position", []string{"e4"}, SideWhite)
	var spe *StartPositionError
	if !errors.As(err, &spe) {
		t.Fatalf("got %v, want *StartPositionError", err)
	}
	if spe.GameID != "g7" || spe.FEN != "not a position" {
		t.Errorf("unexpected error fields: %+v", spe)
	}
	if len(rows) != 0 || len(eng.fens) != 0 {
		t.Errorf("no rows or engine calls expected, got %d rows, %d calls", len(rows), len(eng.fens))
	}
}
