package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	game_id      TEXT PRIMARY KEY,
	white_player TEXT NOT NULL,
	black_player TEXT NOT NULL,
	white_elo    INTEGER NOT NULL DEFAULT 0,
	black_elo    INTEGER NOT NULL DEFAULT 0,
	date_played  TEXT NOT NULL,
	result       TEXT NOT NULL,
	opening_code TEXT NOT NULL,
	pgn_event    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS moves (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id             TEXT NOT NULL REFERENCES games(game_id) ON DELETE CASCADE,
	fen                 TEXT NOT NULL,
	turn                TEXT NOT NULL,
	move_number         INTEGER NOT NULL,
	played_move         TEXT NOT NULL,
	stockfish_best_move TEXT NOT NULL,
	eval_score          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_moves_game_id ON moves(game_id);
`

// SQLiteExporter writes the two tables into a SQLite database.
type SQLiteExporter struct {
	conn *sql.DB
	path string
}

// OpenSQLite creates or opens the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteExporter{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteExporter) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteExporter) Close() error {
	return s.conn.Close()
}

// Export writes all rows of b in one transaction. Games already present are
// updated and their previous move rows replaced.
func (s *SQLiteExporter) Export(ctx context.Context, b *Builder) error {
	games := b.Games()
	moves := b.Moves()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	delMoves, err := tx.PrepareContext(ctx, `DELETE FROM moves WHERE game_id = ?`)
	if err != nil {
		return err
	}
	defer delMoves.Close()

	upsertGame, err := tx.PrepareContext(ctx, `
		INSERT INTO games (game_id, white_player, black_player, white_elo, black_elo, date_played, result, opening_code, pgn_event)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			white_player = excluded.white_player,
			black_player = excluded.black_player,
			white_elo = excluded.white_elo,
			black_elo = excluded.black_elo,
			date_played = excluded.date_played,
			result = excluded.result,
			opening_code = excluded.opening_code,
			pgn_event = excluded.pgn_event`)
	if err != nil {
		return err
	}
	defer upsertGame.Close()

	insertMove, err := tx.PrepareContext(ctx, `
		INSERT INTO moves (game_id, fen, turn, move_number, played_move, stockfish_best_move, eval_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertMove.Close()

	for _, g := range games {
		if _, err := delMoves.ExecContext(ctx, g.GameID); err != nil {
			return fmt.Errorf("clear moves of %s: %w", g.GameID, err)
		}
		if _, err := upsertGame.ExecContext(ctx, g.GameID, g.WhitePlayer, g.BlackPlayer, g.WhiteElo, g.BlackElo,
			g.DatePlayed, g.Result, g.OpeningCode, g.PGNEvent); err != nil {
			return fmt.Errorf("insert game %s: %w", g.GameID, err)
		}
	}
	for _, m := range moves {
		if _, err := insertMove.ExecContext(ctx, m.GameID, m.FEN, m.Turn, m.MoveNumber, m.PlayedMove, m.BestMove, m.EvalScore); err != nil {
			return fmt.Errorf("insert move of %s: %w", m.GameID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Counts returns the number of rows in the games and moves tables.
func (s *SQLiteExporter) Counts(ctx context.Context) (games, moves int, err error) {
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&games); err != nil {
		return 0, 0, err
	}
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM moves`).Scan(&moves); err != nil {
		return 0, 0, err
	}
	return games, moves, nil
}
