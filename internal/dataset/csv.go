package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteCSV writes a header and rows to w.
func WriteCSV(w io.Writer, header []string, rows func(yield func([]string) error) error) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := rows(writer.Write); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv writer error: %w", err)
	}
	return nil
}

// Export writes the games and moves tables as CSV files. Both files are
// staged under temporary names and renamed only after both were written.
func (b *Builder) Export(gamesPath, movesPath string) error {
	games := b.Games()
	moves := b.Moves()

	gamesTmp, err := writeTemp(gamesPath, func(w io.Writer) error {
		return WriteCSV(w, GameColumns, func(yield func([]string) error) error {
			for _, r := range games {
				if err := yield(r.Record()); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("export games: %w", err)
	}

	movesTmp, err := writeTemp(movesPath, func(w io.Writer) error {
		return WriteCSV(w, MoveColumns, func(yield func([]string) error) error {
			for _, r := range moves {
				if err := yield(r.Record()); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		os.Remove(gamesTmp)
		return fmt.Errorf("export moves: %w", err)
	}

	if err := os.Rename(gamesTmp, gamesPath); err != nil {
		os.Remove(gamesTmp)
		os.Remove(movesTmp)
		return fmt.Errorf("rename games table: %w", err)
	}
	if err := os.Rename(movesTmp, movesPath); err != nil {
		os.Remove(movesTmp)
		return fmt.Errorf("rename moves table: %w", err)
	}
	return nil
}

// writeTemp writes a sibling temp file of path and returns its name.
func writeTemp(path string, fn func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}
