package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser holds the lexer and current/peek tokens for recursive-descent parsing.
type Parser struct {
	src  string
	lx   *lexer
	cur  token
	peek token
}

// NewParser creates a new expression parser for the provided input string.
func NewParser(src string) *Parser {
	p := &Parser{src: src, lx: newLexer(src)}
	p.cur = p.lx.nextToken()
	p.peek = p.lx.nextToken()
	return p
}

func (p *Parser) next() { p.cur, p.peek = p.peek, p.lx.nextToken() }

func (p *Parser) expectSymbol(sym string) error {
	if p.cur.Typ == tSymbol && p.cur.Val == sym {
		p.next()
		return nil
	}
	return p.errf("expected symbol %q", sym)
}

func (p *Parser) errf(format string, a ...any) error {
	msg := fmt.Sprintf(format, a...)
	return malformed(p.src, p.cur.Pos, "near %q: %s", p.cur.Val, msg)
}

// ------------------------------ AST ------------------------------

// Expr is the interface implemented by all expression nodes.
type Expr interface{}

type (
	// ColRef refers to a column's value in the current row.
	ColRef struct{ Name string }
	// RelRef refers to a column's value Offset rows away from the current
	// row in the table's physical order; positive offsets look ahead.
	RelRef struct {
		Name   string
		Offset int
	}
	// Literal holds a constant value (number, string, bool, NULL).
	Literal struct{ Val any }
	// Unary represents unary operators +, -, NOT.
	Unary struct {
		Op   string
		Expr Expr
	}
	// Binary represents binary operators (+,-,*,/,%, comparisons, AND/OR).
	Binary struct {
		Op          string
		Left, Right Expr
	}
)

// ParseExpression parses one complete expression. Trailing input is an error.
func ParseExpression(src string) (Expr, error) {
	p := NewParser(src)
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.Typ != tEOF {
		return nil, p.errf("unexpected trailing input")
	}
	return e, nil
}

// ParseCondition parses a boolean condition. An empty or blank condition
// yields a nil Expr, which evaluates as an all-true mask.
func ParseCondition(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return ParseExpression(src)
}

// ------------------------------ grammar ------------------------------

func (p *Parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for (p.cur.Typ == tKeyword && p.cur.Val == "OR") || (p.cur.Typ == tSymbol && p.cur.Val == "|") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "OR", Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for (p.cur.Typ == tKeyword && p.cur.Val == "AND") || (p.cur.Typ == tSymbol && p.cur.Val == "&") {
		p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: "AND", Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if (p.cur.Typ == tKeyword && p.cur.Val == "NOT") || (p.cur.Typ == tSymbol && (p.cur.Val == "!" || p.cur.Val == "~")) {
		p.next()
		e, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", Expr: e}, nil
	}
	return p.parseCmp()
}

func (p *Parser) parseCmp() (Expr, error) {
	l, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	for {
		if p.cur.Typ == tSymbol {
			switch p.cur.Val {
			case "==", "=", "!=", "<>", "<", "<=", ">", ">=":
				op := p.cur.Val
				if op == "==" {
					op = "=" // single canonical equality op for the evaluator
				}
				p.next()
				r, err := p.parseAddSub()
				if err != nil {
					return nil, err
				}
				l = &Binary{Op: op, Left: l, Right: r}
				continue
			}
		}
		break
	}
	return l, nil
}

func (p *Parser) parseAddSub() (Expr, error) {
	l, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "+" || p.cur.Val == "-") {
		op := p.cur.Val
		p.next()
		r, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseMulDiv() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Typ == tSymbol && (p.cur.Val == "*" || p.cur.Val == "/" || p.cur.Val == "%") {
		op := p.cur.Val
		p.next()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = &Binary{Op: op, Left: l, Right: r}
	}
	return l, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.cur.Typ == tSymbol && (p.cur.Val == "+" || p.cur.Val == "-") {
		op := p.cur.Val
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Expr: e}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.cur.Typ {
	case tError:
		return nil, p.errf("%s", p.cur.Val)
	case tNumber:
		val := p.cur.Val
		p.next()
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return &Literal{Val: n}, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, p.errf("invalid number %q", val)
		}
		return &Literal{Val: f}, nil
	case tString:
		s := p.cur.Val
		p.next()
		return &Literal{Val: s}, nil
	case tKeyword:
		switch p.cur.Val {
		case "TRUE":
			p.next()
			return &Literal{Val: true}, nil
		case "FALSE":
			p.next()
			return &Literal{Val: false}, nil
		case "NULL":
			p.next()
			return &Literal{Val: nil}, nil
		default:
			return nil, p.errf("unexpected keyword %q", p.cur.Val)
		}
	case tIdent:
		name := p.cur.Val
		p.next()
		if p.cur.Typ == tSymbol && p.cur.Val == "(" {
			return nil, p.errf("function calls are not supported")
		}
		if p.cur.Typ == tSymbol && p.cur.Val == "[" {
			return p.parseRelRef(name)
		}
		return &ColRef{Name: name}, nil
	case tSymbol:
		if p.cur.Val == "(" {
			p.next()
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, p.errf("unexpected token %q", p.cur.Val)
}

// parseRelRef parses the bracket suffix of col[n], col[n+k], col[n-k]. The
// row designator n may carry the digits directly (col[n2] means n+2, the
// historical unsigned form); a bare n addresses the current row.
func (p *Parser) parseRelRef(name string) (Expr, error) {
	if err := p.expectSymbol("["); err != nil {
		return nil, err
	}
	if p.cur.Typ != tIdent {
		return nil, p.errf("relative reference expects row designator n")
	}
	desig := p.cur.Val
	low := strings.ToLower(desig)
	if low == "" || low[0] != 'n' {
		return nil, p.errf("relative reference expects row designator n, got %q", desig)
	}
	offset := 0
	if rest := low[1:]; rest != "" {
		v, err := strconv.Atoi(rest)
		if err != nil {
			return nil, p.errf("relative reference expects row designator n, got %q", desig)
		}
		offset = v
	}
	p.next()

	if p.cur.Typ == tSymbol && (p.cur.Val == "+" || p.cur.Val == "-") {
		if offset != 0 {
			return nil, p.errf("offset given twice in relative reference")
		}
		neg := p.cur.Val == "-"
		p.next()
		if p.cur.Typ != tNumber {
			return nil, p.errf("relative reference expects an integer offset")
		}
		v, err := strconv.Atoi(p.cur.Val)
		if err != nil {
			return nil, p.errf("relative reference expects an integer offset, got %q", p.cur.Val)
		}
		if neg {
			v = -v
		}
		offset = v
		p.next()
	}

	if err := p.expectSymbol("]"); err != nil {
		return nil, err
	}
	if offset == 0 {
		// col[n] and col[n+0] are the degenerate current-row forms.
		return &RelRef{Name: name, Offset: 0}, nil
	}
	return &RelRef{Name: name, Offset: offset}, nil
}

// ------------------------------ walkers ------------------------------

// References returns the distinct relative references of an AST in
// first-appearance order.
func References(e Expr) []RelRef {
	var out []RelRef
	seen := map[RelRef]bool{}
	walk(e, func(n Expr) {
		if r, ok := n.(*RelRef); ok {
			key := RelRef{Name: strings.ToLower(r.Name), Offset: r.Offset}
			if !seen[key] {
				seen[key] = true
				out = append(out, *r)
			}
		}
	})
	return out
}

// Columns returns the distinct bare column names of an AST in
// first-appearance order. Relative references are not included.
func Columns(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	walk(e, func(n Expr) {
		if c, ok := n.(*ColRef); ok {
			key := strings.ToLower(c.Name)
			if !seen[key] {
				seen[key] = true
				out = append(out, c.Name)
			}
		}
	})
	return out
}

// referencedColumns returns every column name an AST touches, through bare
// references and relative ones alike.
func referencedColumns(e Expr) []string {
	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			out = append(out, name)
		}
	}
	walk(e, func(n Expr) {
		switch x := n.(type) {
		case *ColRef:
			add(x.Name)
		case *RelRef:
			add(x.Name)
		}
	})
	return out
}

func walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch x := e.(type) {
	case *Unary:
		walk(x.Expr, fn)
	case *Binary:
		walk(x.Left, fn)
		walk(x.Right, fn)
	}
}
