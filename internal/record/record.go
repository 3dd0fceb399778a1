// Package record reads PGN game records while keeping each record's original
// text, so kept games can be re-emitted unchanged into a merged corpus.
package record

import (
	"fmt"
	"strings"
)

// Game is one parsed game record.
type Game struct {
	Tags   map[string]string // header tags, later duplicates override earlier ones
	Moves  []string          // mainline plies (SAN or UCI tokens, decorations stripped)
	Result string            // game termination marker from the movetext, if any
	Raw    string            // original record text
	Source string            // name of the file or stream the record came from
	Index  int               // 1-based ordinal of the record within Source
}

// Tag returns the value of a header tag, or "" when the tag is absent.
func (g *Game) Tag(name string) string {
	return g.Tags[name]
}

// ParseError reports a malformed record. The reader has already consumed the
// record, so scanning can resume with the next call to Next.
type ParseError struct {
	Source string
	Index  int
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: record %d (line %d): %v", e.Source, e.Index, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// parseRecord builds a Game from the raw lines of one record.
func parseRecord(lines []string) (*Game, error) {
	g := &Game{Tags: make(map[string]string)}

	var tagLines, moveLines []string
	for _, l := range lines {
		if len(moveLines) == 0 && strings.HasPrefix(strings.TrimSpace(l), "[") {
			tagLines = append(tagLines, l)
			continue
		}
		moveLines = append(moveLines, l)
	}

	for _, l := range tagLines {
		name, value, err := parseTag(l)
		if err != nil {
			return nil, err
		}
		g.Tags[name] = value
	}

	if len(moveLines) == 0 {
		return nil, fmt.Errorf("missing movetext")
	}

	moves, result, err := tokenizeMovetext(strings.Join(moveLines, "\n"))
	if err != nil {
		return nil, err
	}
	g.Moves = moves
	g.Result = result

	if len(tagLines) > 0 {
		g.Raw = strings.Join(tagLines, "\n") + "\n\n" + strings.Join(moveLines, "\n")
	} else {
		g.Raw = strings.Join(moveLines, "\n")
	}
	return g, nil
}
