package record

import (
	"fmt"
	"regexp"
	"strings"
)

// tagRegex matches a single header line like [White "Carlsen, Magnus"].
var tagRegex = regexp.MustCompile(`^\s*\[\s*([A-Za-z0-9_]+)\s+"((?:[^"\\]|\\.)*)"\s*\]\s*$`)

// moveNumberRegex matches move number prefixes like "1." or "12..."
var moveNumberRegex = regexp.MustCompile(`^\d+\.+`)

func parseTag(line string) (name, value string, err error) {
	m := tagRegex.FindStringSubmatch(line)
	if m == nil {
		return "", "", fmt.Errorf("malformed tag %q", strings.TrimSpace(line))
	}
	value = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(m[2])
	return m[1], value, nil
}

func isResult(tok string) bool {
	switch tok {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return false
}

// tokenizeMovetext extracts the mainline plies from movetext. Comments,
// variations, NAGs and move numbers are dropped and check/annotation
// suffixes are stripped. Scanning stops at the game termination marker.
func tokenizeMovetext(text string) (moves []string, result string, err error) {
	var tok strings.Builder
	depth := 0
	done := false

	flush := func() {
		if tok.Len() == 0 {
			return
		}
		t := tok.String()
		tok.Reset()
		if depth > 0 || done {
			return
		}
		if isResult(t) {
			result = t
			done = true
			return
		}
		// Remove move numbers: "12." -> "", "1.e4" -> "e4"
		t = moveNumberRegex.ReplaceAllString(t, "")
		if t == "" || t[0] == '$' {
			return
		}
		t = strings.TrimRight(t, "+#!?")
		if t != "" {
			moves = append(moves, t)
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			flush()
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, "", fmt.Errorf("unterminated comment")
			}
			i += end + 1
		case '}':
			return nil, "", fmt.Errorf("unexpected '}'")
		case ';':
			flush()
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				i = len(text)
			} else {
				i += end
			}
		case '(':
			flush()
			depth++
		case ')':
			flush()
			if depth == 0 {
				return nil, "", fmt.Errorf("unexpected ')'")
			}
			depth--
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			tok.WriteByte(c)
		}
	}
	flush()

	if depth != 0 {
		return nil, "", fmt.Errorf("unterminated variation")
	}
	return moves, result, nil
}
