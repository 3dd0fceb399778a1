package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Reader yields game records from a PGN stream one at a time.
type Reader struct {
	br    *bufio.Reader
	name  string
	close func() error

	line  int // lines consumed so far
	index int // records returned so far

	pending     string
	pendingLine int
	hasPending  bool
	eof         bool
}

// NewReader reads records from r. The name is used in errors and on Game.Source.
func NewReader(r io.Reader, name string) *Reader {
	return &Reader{
		br:    bufio.NewReaderSize(r, 64*1024),
		name:  name,
		close: func() error { return nil },
	}
}

// Open opens a PGN file for reading. Files ending in .zst are decompressed
// on the fly.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(strings.ToLower(path), ".zst") {
		r := NewReader(f, filepath.Base(path))
		r.close = f.Close
		return r, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd reader %s: %w", path, err)
	}
	r := NewReader(dec, filepath.Base(path))
	r.close = func() error {
		dec.Close()
		return f.Close()
	}
	return r, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.close == nil {
		return nil
	}
	err := r.close()
	r.close = nil
	return err
}

// Next returns the next record. At end of input it returns io.EOF. A
// malformed record yields a *ParseError; the record is consumed either way,
// so the caller may keep calling Next.
func (r *Reader) Next() (*Game, error) {
	lines, start, err := r.collect()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.name, err)
	}
	if len(lines) == 0 {
		return nil, io.EOF
	}
	r.index++

	g, err := parseRecord(lines)
	if err != nil {
		return nil, &ParseError{Source: r.name, Index: r.index, Line: start, Err: err}
	}
	g.Source = r.name
	g.Index = r.index
	return g, nil
}

// collect gathers the lines of the next record. A record ends at the first
// blank line after movetext, at a tag line that follows movetext or a blank
// line, or at end of input. A blank line inside an open {...} comment does not
// end the record unless a tag line follows it.
func (r *Reader) collect() ([]string, int, error) {
	var lines []string
	start := 0
	inMoves := false
	blank := false
	inComment := false

	for {
		line, n, ok, err := r.readLine()
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			break
		}

		if inComment {
			// A header after a blank line starts the next game even when
			// the comment was never closed.
			trimmed := strings.TrimSpace(line)
			if blank && strings.HasPrefix(trimmed, "[") {
				r.unread(line, n)
				break
			}
			blank = trimmed == ""
			lines = append(lines, strings.TrimRight(line, " \t\r"))
			inComment = commentOpen(true, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(line, "%") {
			continue // escape mechanism
		}
		if trimmed == "" {
			if inMoves {
				break
			}
			blank = true
			continue
		}

		isTag := trimmed[0] == '['
		if isTag && len(lines) > 0 && (inMoves || blank) {
			r.unread(line, n)
			break
		}
		if len(lines) == 0 {
			start = n
		}
		if !isTag {
			inMoves = true
			blank = false
			inComment = commentOpen(false, line)
		}
		lines = append(lines, strings.TrimRight(line, " \t\r"))
	}
	return lines, start, nil
}

// commentOpen reports whether a {...} comment is still open at the end of
// line, given whether one was open at its start. Braces after a ';' rest of
// line comment do not count.
func commentOpen(open bool, line string) bool {
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case open:
			if c == '}' {
				open = false
			}
		case c == '{':
			open = true
		case c == ';':
			return false
		}
	}
	return open
}

func (r *Reader) readLine() (string, int, bool, error) {
	if r.hasPending {
		r.hasPending = false
		return r.pending, r.pendingLine, true, nil
	}
	if r.eof {
		return "", 0, false, nil
	}

	s, err := r.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", 0, false, err
		}
		r.eof = true
		if s == "" {
			return "", 0, false, nil
		}
	}
	r.line++
	if r.line == 1 {
		s = strings.TrimPrefix(s, "\ufeff")
	}
	return strings.TrimRight(s, "\r\n"), r.line, true, nil
}

func (r *Reader) unread(line string, n int) {
	r.pending = line
	r.pendingLine = n
	r.hasPending = true
}

// IsPGNFile reports whether name looks like a PGN file (.pgn or .pgn.zst).
func IsPGNFile(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".pgn") {
		return true
	}
	return strings.HasSuffix(lower, ".pgn.zst")
}

// ListSources returns the PGN files in dir sorted by name. Files whose base
// name matches one of exclude are skipped.
func ListSources(dir string, exclude ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if e != "" {
			skip[filepath.Base(e)] = true
		}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !IsPGNFile(name) || skip[name] {
			continue
		}
		names = append(names, name)
	}

	// Sort by name to process in order
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}
