package main

import "testing"

func TestParseClause(t *testing.T) {
	cases := []struct {
		in   string
		want replaceClause
	}{
		{
			"status = 'churned' if visits == 0 & visits[n-1] == 0",
			replaceClause{"status", "'churned'", "visits == 0 & visits[n-1] == 0"},
		},
		{
			"price = price[n+1] if price > 15",
			replaceClause{"price", "price[n+1]", "price > 15"},
		},
		{
			"count = 0",
			replaceClause{"count", "0", ""},
		},
		{
			// "if" inside a string literal is not the keyword
			"note = 'as if' if id == 1",
			replaceClause{"note", "'as if'", "id == 1"},
		},
		{
			// column names containing "if" are left alone
			"gift = 1 if id == 2",
			replaceClause{"gift", "1", "id == 2"},
		},
	}
	for _, tc := range cases {
		got, err := parseClause(tc.in)
		if err != nil {
			t.Errorf("parseClause(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseClause(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseClauseErrors(t *testing.T) {
	for _, in := range []string{"", "no equals here", "= 1", "col ="} {
		if _, err := parseClause(in); err == nil {
			t.Errorf("parseClause(%q): expected error", in)
		}
	}
}
