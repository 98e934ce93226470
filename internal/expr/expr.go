// Package expr evaluates the infix arithmetic accepted by "set X = ...":
// numbers, + - * /, parentheses and unary signs.
package expr

import (
	"errors"
	"fmt"
	"strconv"
)

// Evaluation errors.
var (
	ErrSyntax         = errors.New("expr: syntax error")
	ErrDivisionByZero = errors.New("expr: division by zero")
)

type parser struct {
	s   string
	pos int
}

// Eval evaluates s.
func Eval(s string) (float64, error) {
	p := &parser{s: s}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, p.s[p.pos], p.pos)
	}
	return v, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

// expr = term { ("+" | "-") term }
func (p *parser) expr() (float64, error) {
	v, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return v, nil
		}
		p.pos++
		r, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			v += r
		} else {
			v -= r
		}
	}
}

// term = factor { ("*" | "/") factor }
func (p *parser) term() (float64, error) {
	v, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return v, nil
		}
		p.pos++
		r, err := p.factor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			v *= r
			continue
		}
		if r == 0 {
			return 0, ErrDivisionByZero
		}
		v /= r
	}
}

// factor = ("+" | "-") factor | "(" expr ")" | number
func (p *parser) factor() (float64, error) {
	switch c := p.peek(); {
	case c == '+' || c == '-':
		p.pos++
		v, err := p.factor()
		if c == '-' {
			v = -v
		}
		return v, err
	case c == '(':
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing ')'", ErrSyntax)
		}
		p.pos++
		return v, nil
	case c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	case c == 0:
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	default:
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, c, p.pos)
	}
}

func (p *parser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		// exponent: 1e3, 2.5E-2
		if (c == 'e' || c == 'E') && p.pos+1 < len(p.s) {
			n := p.s[p.pos+1]
			if n >= '0' && n <= '9' {
				p.pos++
				continue
			}
			if (n == '+' || n == '-') && p.pos+2 < len(p.s) && p.s[p.pos+2] >= '0' && p.s[p.pos+2] <= '9' {
				p.pos += 2
				continue
			}
		}
		break
	}
	v, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrSyntax, p.s[start:p.pos])
	}
	return v, nil
}

// Format renders v the way "set" stores results. A negative precision uses
// the shortest exact representation.
func Format(v float64, prec int) string {
	if prec < 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
