// Package engine implements the row-relative replace engine for wrangle.
//
// What: A small expression language over table columns (comparisons, boolean
// combinators, arithmetic, literals) whose references may address other rows
// of the same column through the relative-offset notation col[n+k]/col[n-k],
// plus the wrangling operations built on top of it (Replace and friends).
// How: A rune-based lexer feeds a recursive-descent parser producing a typed
// AST in which relative references are first-class leaves; a tree-walking
// interpreter with three-valued logic evaluates the AST per row against
// shifted-column snapshots, so missing values propagate instead of erroring.
// Why: Resolving references during parsing removes the fragile text
// substitution the notation historically relied on, and keeps error messages
// local and actionable without external dependencies.
package engine

import (
	"strings"
	"unicode"
)

type tokenType int

const (
	tEOF tokenType = iota
	tIdent
	tNumber
	tString
	tSymbol
	tKeyword
	tError
)

type token struct {
	Typ tokenType
	Val string
	Pos int
}

type lexer struct {
	s   string
	pos int
}

func newLexer(s string) *lexer { return &lexer{s: s} }

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	return rune(lx.s[lx.pos])
}
func (lx *lexer) peekN(n int) rune {
	p := lx.pos + n
	if p >= len(lx.s) {
		return 0
	}
	return rune(lx.s[p])
}
func (lx *lexer) next() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	r := rune(lx.s[lx.pos])
	lx.pos++
	return r
}
func (lx *lexer) skipWS() {
	for {
		if lx.pos >= len(lx.s) {
			return
		}
		r := rune(lx.s[lx.pos])
		if unicode.IsSpace(r) {
			lx.pos++
			continue
		}
		// # comment to end of line
		if r == '#' {
			for lx.pos < len(lx.s) && lx.s[lx.pos] != '\n' {
				lx.pos++
			}
			continue
		}
		return
	}
}

func (lx *lexer) nextToken() token {
	lx.skipWS()
	start := lx.pos
	if start >= len(lx.s) {
		return token{Typ: tEOF, Pos: start}
	}
	r := lx.peek()

	// Dispatch to specific tokenizers based on first character
	if r == '\'' || r == '"' {
		return lx.tokenizeString(start, r)
	}
	if unicode.IsDigit(r) {
		return lx.tokenizeNumber(start)
	}
	if unicode.IsLetter(r) || r == '_' {
		return lx.tokenizeIdentOrKeyword(start)
	}
	return lx.tokenizeSymbol(start)
}

// tokenizeString scans a quoted literal. Both quote styles are accepted and
// a doubled quote escapes itself.
func (lx *lexer) tokenizeString(start int, quote rune) token {
	lx.next() // consume opening quote
	var val strings.Builder
	closed := false
	for lx.pos < len(lx.s) {
		ch := lx.next()
		if ch == quote {
			if lx.peek() == quote {
				lx.next()
				val.WriteRune(quote)
				continue
			}
			closed = true
			break
		}
		val.WriteRune(ch)
	}
	if !closed {
		return token{Typ: tError, Val: "unterminated string literal", Pos: start}
	}
	return token{Typ: tString, Val: val.String(), Pos: start}
}

func (lx *lexer) tokenizeNumber(start int) token {
	var val strings.Builder
	dot := false
	for lx.pos < len(lx.s) {
		ch := lx.peek()
		if unicode.IsDigit(ch) || (!dot && ch == '.') {
			if ch == '.' {
				dot = true
			}
			val.WriteRune(ch)
			lx.pos++
		} else {
			break
		}
	}
	return token{Typ: tNumber, Val: val.String(), Pos: start}
}

func (lx *lexer) tokenizeIdentOrKeyword(start int) token {
	var val strings.Builder
	for lx.pos < len(lx.s) {
		ch := lx.peek()
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			val.WriteRune(ch)
			lx.pos++
		} else {
			break
		}
	}
	up := upper(val.String())
	if isKeyword(up) {
		return token{Typ: tKeyword, Val: up, Pos: start}
	}
	return token{Typ: tIdent, Val: val.String(), Pos: start}
}

func (lx *lexer) tokenizeSymbol(start int) token {
	r := lx.peek()
	switch r {
	case '(', ')', '[', ']', ',', '*', '/', '%', '+', '-', '&', '|', '~':
		lx.next()
		return token{Typ: tSymbol, Val: string(r), Pos: start}
	case '=', '<', '>', '!':
		a := lx.next()
		b := lx.peek()
		if (a == '=' && b == '=') || (a == '<' && (b == '=' || b == '>')) || (a == '>' && b == '=') || (a == '!' && b == '=') {
			lx.next()
			return token{Typ: tSymbol, Val: string(a) + string(b), Pos: start}
		}
		return token{Typ: tSymbol, Val: string(a), Pos: start}
	default:
		lx.next()
		return token{Typ: tSymbol, Val: string(r), Pos: start}
	}
}

func upper(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if 'a' <= r && r <= 'z' {
			out = append(out, r-32)
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

func isKeyword(up string) bool {
	switch up {
	case "AND", "OR", "NOT", "TRUE", "FALSE", "NULL":
		return true
	default:
		return false
	}
}
