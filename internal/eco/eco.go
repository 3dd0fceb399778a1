// Package eco provides ECO (Encyclopedia of Chess Openings) lookup, used to
// classify games whose headers carry no ECO code.
package eco

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/freeeve/pgn/v3"

	"github.com/freeeve/chessdataset/internal/board"
)

// Opening represents an ECO opening classification.
type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
}

// Database holds ECO opening data indexed by position.
type Database struct {
	byPosition map[pgn.PackedPosition]Opening
	maxPlies   int
	count      int
	skipped    int
}

// NewDatabase creates an empty ECO database.
func NewDatabase() *Database {
	return &Database{
		byPosition: make(map[pgn.PackedPosition]Opening),
	}
}

// moveNumberRegex matches move numbers like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`\d+\.+\s*`)

// LoadDir loads all .tsv files from a directory.
func (db *Database) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .tsv files found in %s", dir)
	}

	for _, file := range files {
		if err := db.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// LoadFile loads a single TSV file with eco, name and pgn columns.
// Lines whose moves do not replay are skipped.
func (db *Database) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if lineNum == 1 && strings.HasPrefix(line, "eco\t") {
			continue
		}

		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}

		pos := pgn.NewStartingPosition()
		plies, err := applyMoves(pos, parts[2])
		if err != nil {
			db.skipped++
			continue
		}

		db.byPosition[pos.Pack()] = Opening{ECO: parts[0], Name: parts[1]}
		db.count++
		if plies > db.maxPlies {
			db.maxPlies = plies
		}
	}

	return scanner.Err()
}

// applyMoves parses and applies PGN moves like "1. e4 e5 2. Nf3 Nc6" and
// returns the number of plies played.
func applyMoves(pos *pgn.GameState, pgnMoves string) (int, error) {
	cleaned := moveNumberRegex.ReplaceAllString(pgnMoves, "")
	plies := 0
	for _, san := range strings.Fields(cleaned) {
		if san[0] == '$' || san[0] == '{' {
			continue
		}
		mv, err := board.Resolve(pos, san)
		if err != nil {
			return plies, err
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return plies, fmt.Errorf("apply %q: %w", san, err)
		}
		plies++
	}
	return plies, nil
}

// Lookup returns the ECO opening for a position, or nil if not found.
func (db *Database) Lookup(pos pgn.PackedPosition) *Opening {
	if o, ok := db.byPosition[pos]; ok {
		return &o
	}
	return nil
}

// LookupGameState returns the ECO opening for a GameState.
func (db *Database) LookupGameState(gs *pgn.GameState) *Opening {
	return db.Lookup(gs.Pack())
}

// Classify replays moves from the initial position and returns the opening
// of the deepest position found in the database, or nil. Replay stops at the
// first unplayable move or once no longer line can match.
func (db *Database) Classify(moves []string) *Opening {
	if db == nil || db.count == 0 {
		return nil
	}
	var best *Opening
	pos := pgn.NewStartingPosition()
	for i, tok := range moves {
		if i >= db.maxPlies {
			break
		}
		mv, err := board.Resolve(pos, tok)
		if err != nil {
			break
		}
		if err := pgn.ApplyMove(pos, mv); err != nil {
			break
		}
		if o := db.LookupGameState(pos); o != nil {
			best = o
		}
	}
	return best
}

// Count returns the number of openings loaded.
func (db *Database) Count() int {
	return db.count
}

// Skipped returns the number of lines whose moves could not be replayed.
func (db *Database) Skipped() int {
	return db.skipped
}
