package record

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

const twoGames = `[Event "Live Chess"]
[Date "2024.03.01"]
[White "alice"]
[Black "bob"]
[Result "1-0"]
[EndTime "10:00:00 PST"]

1. e4 {[%clk 0:03:00]} 1... e5 2. Nf3 Nc6 (2... d6 3. d4) 3. Bb5 a6 $1 4. Ba4+ 1-0

[Event "Live Chess"]
[Date "2024.03.02"]
[White "carol"]
[Black "alice"]
[Result "0-1"]

1.d4 d5 2.c4 e6 ; queen's gambit
3.Nc3 Nf6 0-1
`

func readAll(t *testing.T, r *Reader) ([]*Game, []*ParseError) {
	t.Helper()
	var games []*Game
	var perrs []*ParseError
	for {
		g, err := r.Next()
		if err == io.EOF {
			return games, perrs
		}
		var pe *ParseError
		if errors.As(err, &pe) {
			perrs = append(perrs, pe)
			continue
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		games = append(games, g)
	}
}

func TestReaderTwoGames(t *testing.T) {
	games, perrs := readAll(t, NewReader(strings.NewReader(twoGames), "two.pgn"))
	if len(perrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", perrs)
	}
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2", len(games))
	}

	g := games[0]
	if g.Tag("White") != "alice" || g.Tag("Black") != "bob" || g.Tag("EndTime") != "10:00:00 PST" {
		t.Errorf("unexpected tags: %v", g.Tags)
	}
	wantMoves := []string{"e4", "e5", "Nf3", "Nc6", "Bb5", "a6", "Ba4"}
	if !reflect.DeepEqual(g.Moves, wantMoves) {
		t.Errorf("moves: got %v, want %v", g.Moves, wantMoves)
	}
	if g.Result != "1-0" {
		t.Errorf("result: got %q, want 1-0", g.Result)
	}
	if g.Source != "two.pgn" || g.Index != 1 {
		t.Errorf("source/index: got %s/%d", g.Source, g.Index)
	}
	if !strings.HasPrefix(g.Raw, `[Event "Live Chess"]`) || !strings.HasSuffix(g.Raw, "4. Ba4+ 1-0") {
		t.Errorf("raw text not preserved:\n%s", g.Raw)
	}

	g = games[1]
	wantMoves = []string{"d4", "d5", "c4", "e6", "Nc3", "Nf6"}
	if !reflect.DeepEqual(g.Moves, wantMoves) {
		t.Errorf("moves: got %v, want %v", g.Moves, wantMoves)
	}
	if g.Tag("EndTime") != "" {
		t.Errorf("absent tag should be empty, got %q", g.Tag("EndTime"))
	}
	if g.Index != 2 {
		t.Errorf("index: got %d, want 2", g.Index)
	}
}

func TestReaderSkipsMalformedRecord(t *testing.T) {
	input := `[White "a"]
[Black "b"]

1. e4 e5 1-0

[White "broken]
[Black "c"]

1. d4 d5 *

[White "d"]
[Black "e"]

1. c4 {unterminated comment 1-0

[White "f"]
[Black "g"]

1. Nf3 Nf6 1/2-1/2
`
	games, perrs := readAll(t, NewReader(strings.NewReader(input), "mixed.pgn"))
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2", len(games))
	}
	if games[0].Tag("White") != "a" || games[1].Tag("White") != "f" {
		t.Errorf("wrong games kept: %q, %q", games[0].Tag("White"), games[1].Tag("White"))
	}
	if len(perrs) != 2 {
		t.Fatalf("got %d parse errors, want 2", len(perrs))
	}
	if perrs[0].Index != 2 || perrs[0].Line != 6 {
		t.Errorf("first parse error at record %d line %d, want record 2 line 6", perrs[0].Index, perrs[0].Line)
	}
	if games[1].Index != 4 {
		t.Errorf("last game index: got %d, want 4", games[1].Index)
	}
}

func TestReaderTagsWithoutMovetext(t *testing.T) {
	input := `[White "a"]
[Black "b"]

[White "c"]
[Black "d"]

1. e4 *
`
	games, perrs := readAll(t, NewReader(strings.NewReader(input), "x.pgn"))
	if len(perrs) != 1 {
		t.Fatalf("got %d parse errors, want 1", len(perrs))
	}
	if len(games) != 1 || games[0].Tag("White") != "c" {
		t.Fatalf("expected only the second game, got %+v", games)
	}
}

func TestReaderStripsByteOrderMark(t *testing.T) {
	input := "\ufeff[Event \"Rated\"]\n[White \"a\"]\n[Black \"b\"]\n\n1. e4 e5 1-0\n"
	games, perrs := readAll(t, NewReader(strings.NewReader(input), "bom.pgn"))
	if len(perrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", perrs)
	}
	if len(games) != 1 {
		t.Fatalf("got %d games, want 1", len(games))
	}
	g := games[0]
	if g.Tag("Event") != "Rated" || g.Tag("White") != "a" {
		t.Errorf("unexpected tags: %v", g.Tags)
	}
	if !strings.HasPrefix(g.Raw, `[Event "Rated"]`) {
		t.Errorf("raw text keeps the byte order mark: %q", g.Raw)
	}
}

func TestReaderCommentSpanningBlankLine(t *testing.T) {
	input := `[White "a"]
[Black "b"]

1. e4 { long note

second paragraph } e5 2. Nf3 1-0

[White "c"]
[Black "d"]

1. d4 d5 0-1
`
	games, perrs := readAll(t, NewReader(strings.NewReader(input), "notes.pgn"))
	if len(perrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", perrs)
	}
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2", len(games))
	}
	wantMoves := []string{"e4", "e5", "Nf3"}
	if !reflect.DeepEqual(games[0].Moves, wantMoves) {
		t.Errorf("moves: got %v, want %v", games[0].Moves, wantMoves)
	}
	if !strings.Contains(games[0].Raw, "long note\n\nsecond paragraph") {
		t.Errorf("comment paragraphs not preserved:\n%s", games[0].Raw)
	}
	if games[1].Tag("White") != "c" || games[1].Index != 2 {
		t.Errorf("second game: white %q index %d", games[1].Tag("White"), games[1].Index)
	}
}

func TestCommentOpen(t *testing.T) {
	tests := []struct {
		open bool
		line string
		want bool
	}{
		{false, "1. e4 e5", false},
		{false, "1. e4 { note", true},
		{false, "1. e4 { note } e5", false},
		{false, "1. e4 ; a {brace in a line comment", false},
		{true, "still inside ; not a line comment", true},
		{true, "done } 2. Nf3 {again", true},
		{true, "closing } 2. Nf3", false},
	}
	for _, tt := range tests {
		if got := commentOpen(tt.open, tt.line); got != tt.want {
			t.Errorf("commentOpen(%v, %q) = %v, want %v", tt.open, tt.line, got, tt.want)
		}
	}
}

func TestReaderEmptyInput(t *testing.T) {
	r := NewReader(strings.NewReader("\n\n  \n"), "empty.pgn")
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
	// EOF is sticky
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("got %v, want io.EOF", err)
	}
}

func TestTokenizeMovetext(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		moves  []string
		result string
		bad    bool
	}{
		{"plain", "1. e4 e5 2. Nf3", []string{"e4", "e5", "Nf3"}, "", false},
		{"glued numbers", "1.e4 e5 2.Nf3 Nc6 *", []string{"e4", "e5", "Nf3", "Nc6"}, "*", false},
		{"nested variation", "1. e4 (1. d4 (1. c4) d5) e5 1/2-1/2", []string{"e4", "e5"}, "1/2-1/2", false},
		{"suffixes", "1. e4!? e5?! 2. Qh5 Nc6 3. Bc4 Nf6?? 4. Qxf7# 1-0", []string{"e4", "e5", "Qh5", "Nc6", "Bc4", "Nf6", "Qxf7"}, "1-0", false},
		{"uci tokens", "e2e4 e7e5 g1f3", []string{"e2e4", "e7e5", "g1f3"}, "", false},
		{"stops at result", "1. e4 1-0 e5", []string{"e4"}, "1-0", false},
		{"stray close", "1. e4 ) e5", nil, "", true},
		{"open variation", "1. e4 (1. d4", nil, "", true},
		{"stray brace", "1. e4 } e5", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moves, result, err := tokenizeMovetext(tt.text)
			if tt.bad {
				if err == nil {
					t.Fatalf("expected error, got moves %v", moves)
				}
				return
			}
			if err != nil {
				t.Fatalf("tokenizeMovetext: %v", err)
			}
			if !reflect.DeepEqual(moves, tt.moves) {
				t.Errorf("moves: got %v, want %v", moves, tt.moves)
			}
			if result != tt.result {
				t.Errorf("result: got %q, want %q", result, tt.result)
			}
		})
	}
}

func TestParseTagEscapes(t *testing.T) {
	name, value, err := parseTag(`[Event "The \"Big\" Open"]`)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Event" || value != `The "Big" Open` {
		t.Errorf("got %s=%q", name, value)
	}
}

func TestOpenZstdAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "games.pgn.zst")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write([]byte(twoGames)); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	var first []*Game
	for pass := 0; pass < 2; pass++ {
		r, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		games, perrs := readAll(t, r)
		r.Close()
		if len(perrs) != 0 || len(games) != 2 {
			t.Fatalf("pass %d: got %d games, %d errors", pass, len(games), len(perrs))
		}
		if pass == 0 {
			first = games
			continue
		}
		if !reflect.DeepEqual(first, games) {
			t.Errorf("reopening produced a different sequence")
		}
	}
}

func TestListSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pgn", "a.PGN", "c.pgn.zst", "notes.txt", "merged.pgn"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.pgn"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ListSources(dir, filepath.Join("/elsewhere", "merged.pgn"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.PGN"),
		filepath.Join(dir, "b.pgn"),
		filepath.Join(dir, "c.pgn.zst"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
