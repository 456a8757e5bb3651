package engine

import (
	"reflect"
	"testing"
)

func TestParseRelativeReferences(t *testing.T) {
	cases := []struct {
		src    string
		name   string
		offset int
	}{
		{"price[n+1]", "price", 1},
		{"price[n-1]", "price", -1},
		{"visits[n-12]", "visits", -12},
		{"x[n+0]", "x", 0},
		{"x[n-0]", "x", 0},
		{"x[n]", "x", 0}, // degenerate current-row form
		{"x[n3]", "x", 3}, // historical unsigned form
		{"x[ n + 2 ]", "x", 2},
	}
	for _, tc := range cases {
		e, err := ParseExpression(tc.src)
		if err != nil {
			t.Errorf("%q: %v", tc.src, err)
			continue
		}
		r, ok := e.(*RelRef)
		if !ok {
			t.Errorf("%q: got %T, want *RelRef", tc.src, e)
			continue
		}
		if r.Name != tc.name || r.Offset != tc.offset {
			t.Errorf("%q: got (%s, %d), want (%s, %d)", tc.src, r.Name, r.Offset, tc.name, tc.offset)
		}
	}
}

func TestParseMalformedReferences(t *testing.T) {
	for _, src := range []string{
		"x[n+]", "x[+1]", "x[1]", "x[y]", "x[n+1", "x[]", "x[n+1.5]", "x[n++1]",
	} {
		if _, err := ParseExpression(src); !IsMalformedExpression(err) {
			t.Errorf("%q: got %v, want MalformedExpressionError", src, err)
		}
	}
}

func TestParsePrecedence(t *testing.T) {
	e, err := ParseExpression("a + b * 2 > 3 & c == 'x' | not d")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Top level must be OR: ((a+b*2 > 3) AND (c = 'x')) OR (NOT d).
	or, ok := e.(*Binary)
	if !ok || or.Op != "OR" {
		t.Fatalf("top = %#v, want OR", e)
	}
	and, ok := or.Left.(*Binary)
	if !ok || and.Op != "AND" {
		t.Fatalf("or.Left = %#v, want AND", or.Left)
	}
	cmp, ok := and.Left.(*Binary)
	if !ok || cmp.Op != ">" {
		t.Fatalf("and.Left = %#v, want >", and.Left)
	}
	add, ok := cmp.Left.(*Binary)
	if !ok || add.Op != "+" {
		t.Fatalf("cmp.Left = %#v, want +", cmp.Left)
	}
	if mul, ok := add.Right.(*Binary); !ok || mul.Op != "*" {
		t.Fatalf("add.Right = %#v, want *", add.Right)
	}
	if not, ok := or.Right.(*Unary); !ok || not.Op != "NOT" {
		t.Fatalf("or.Right = %#v, want NOT", or.Right)
	}
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want any
	}{
		{"42", int64(42)},
		{"3.14", 3.14},
		{"'hello'", "hello"},
		{`'it''s'`, "it's"},
		{`"say ""hi"""`, `say "hi"`},
		{"true", true},
		{"FALSE", false},
		{"null", nil},
	}
	for _, tc := range cases {
		e, err := ParseExpression(tc.src)
		if err != nil {
			t.Errorf("%q: %v", tc.src, err)
			continue
		}
		lit, ok := e.(*Literal)
		if !ok {
			t.Errorf("%q: got %T, want *Literal", tc.src, e)
			continue
		}
		if !reflect.DeepEqual(lit.Val, tc.want) {
			t.Errorf("%q: got %#v, want %#v", tc.src, lit.Val, tc.want)
		}
	}
}

func TestParseRejectsFunctionCalls(t *testing.T) {
	if _, err := ParseExpression("max(a, b)"); !IsMalformedExpression(err) {
		t.Errorf("got %v, want MalformedExpressionError", err)
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	if _, err := ParseExpression("a > 1 b"); !IsMalformedExpression(err) {
		t.Errorf("got %v, want MalformedExpressionError", err)
	}
}

func TestParseConditionEmpty(t *testing.T) {
	for _, src := range []string{"", "   ", "\t\n"} {
		e, err := ParseCondition(src)
		if err != nil {
			t.Errorf("%q: %v", src, err)
		}
		if e != nil {
			t.Errorf("%q: got %#v, want nil (all-true mask)", src, e)
		}
	}
}

func TestReferencesDeduplicates(t *testing.T) {
	e, err := ParseExpression("a[n-1] > 0 & a[n-1] < 5 | a[n+2] == b")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	refs := References(e)
	if len(refs) != 2 {
		t.Fatalf("got %d references, want 2: %#v", len(refs), refs)
	}
	if refs[0].Name != "a" || refs[0].Offset != -1 {
		t.Errorf("refs[0] = %#v", refs[0])
	}
	if refs[1].Name != "a" || refs[1].Offset != 2 {
		t.Errorf("refs[1] = %#v", refs[1])
	}
	if cols := Columns(e); len(cols) != 1 || cols[0] != "b" {
		t.Errorf("bare columns = %#v, want [b]", cols)
	}
}

func TestParseComments(t *testing.T) {
	e, err := ParseExpression("a > 1 # trailing note")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b, ok := e.(*Binary); !ok || b.Op != ">" {
		t.Fatalf("got %#v, want > comparison", e)
	}
}
