package command

import (
	"strconv"
	"strings"
)

type token struct {
	text  string
	start int // offset of the first raw byte
	end   int // offset after the last raw byte
}

// Line is a tokenised command line. Tokens are separated by spaces or tabs;
// a double-quoted span belongs to the surrounding token and loses its quotes.
type Line struct {
	raw  string
	toks []token
}

// Parse tokenises s.
func Parse(s string) Line {
	l := Line{raw: s}
	i := 0
	for i < len(s) {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		var b strings.Builder
		quoted := false
		for i < len(s) && (quoted || !isSpace(s[i])) {
			if s[i] == '"' {
				quoted = !quoted
			} else {
				b.WriteByte(s[i])
			}
			i++
		}
		l.toks = append(l.toks, token{text: b.String(), start: start, end: i})
	}
	return l
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

// Raw returns the line as given to Parse.
func (l Line) Raw() string { return l.raw }

// Len returns the number of tokens.
func (l Line) Len() int { return len(l.toks) }

// Verb returns token 0.
func (l Line) Verb() string { return l.Arg(0) }

// Arg returns token i or "" when absent.
func (l Line) Arg(i int) string {
	if i < 0 || i >= len(l.toks) {
		return ""
	}
	return l.toks[i].text
}

// Args returns tokens from index i on.
func (l Line) Args(i int) []string {
	var out []string
	for j := i; j < len(l.toks); j++ {
		out = append(out, l.toks[j].text)
	}
	return out
}

// After returns the raw text following token i, quotes preserved and
// surrounding blanks trimmed.
func (l Line) After(i int) string {
	if i < 0 {
		return strings.TrimSpace(l.raw)
	}
	if i >= len(l.toks) {
		return ""
	}
	return strings.TrimSpace(l.raw[l.toks[i].end:])
}

// Int parses token i as an integer (decimal, 0x hex, 0 octal, 0b binary).
// def is returned when the token is missing or malformed.
func (l Line) Int(i int, def int) int {
	n, err := strconv.ParseInt(l.Arg(i), 0, 64)
	if err != nil {
		return def
	}
	return int(n)
}

// Float parses token i as a float, returning def on failure.
func (l Line) Float(i int, def float64) float64 {
	f, err := strconv.ParseFloat(l.Arg(i), 64)
	if err != nil {
		return def
	}
	return f
}

// Has reports whether token i exists.
func (l Line) Has(i int) bool { return i >= 0 && i < len(l.toks) }

// Unquote strips one pair of enclosing double quotes.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
