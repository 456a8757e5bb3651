package engine

import (
	"testing"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

func newTestTable(t *testing.T, name string, cols []table.Column, rows [][]any) *table.Table {
	t.Helper()
	tbl := table.NewTable(name, cols)
	for _, r := range rows {
		if err := tbl.AppendRow(r); err != nil {
			t.Fatalf("append row: %v", err)
		}
	}
	return tbl
}

func intTable(t *testing.T, name, col string, vals ...any) *table.Table {
	t.Helper()
	rows := make([][]any, len(vals))
	for i, v := range vals {
		rows[i] = []any{v}
	}
	return newTestTable(t, name, []table.Column{{Name: col, Type: table.IntType}}, rows)
}

// TestReplaceShiftDirection pins the lookahead direction of the bracket
// notation: col[n+1] reads the NEXT physical row, col[n-1] the previous one.
// Getting this backwards is a behavioral regression, not a style choice.
func TestReplaceShiftDirection(t *testing.T) {
	t.Run("lookahead", func(t *testing.T) {
		tbl := intTable(t, "v", "A", int64(10), int64(20), int64(30))
		out, n, err := Replace(tbl, "A", "A[n+1]", "A > 15")
		if err != nil {
			t.Fatalf("replace: %v", err)
		}
		// Row 0 fails the condition. Row 1 reads row 2 (30). Row 2 reads
		// past the end, so it receives the missing sentinel.
		want := []any{int64(10), int64(30), nil}
		for i, w := range want {
			if got := out.Rows[i][0]; !table.CellsEqual(got, w) {
				t.Errorf("row %d: got %v, want %v", i, got, w)
			}
		}
		if n != 2 {
			t.Errorf("changed count = %d, want 2", n)
		}
	})

	t.Run("lookbehind", func(t *testing.T) {
		tbl := intTable(t, "v", "A", int64(10), int64(20), int64(30))
		out, n, err := Replace(tbl, "A", "A[n-1]", "")
		if err != nil {
			t.Fatalf("replace: %v", err)
		}
		want := []any{nil, int64(10), int64(20)}
		for i, w := range want {
			if got := out.Rows[i][0]; !table.CellsEqual(got, w) {
				t.Errorf("row %d: got %v, want %v", i, got, w)
			}
		}
		if n != 3 {
			t.Errorf("changed count = %d, want 3", n)
		}
	})
}

func TestReplaceLeavesUnmaskedRowsUntouched(t *testing.T) {
	tbl := newTestTable(t, "people",
		[]table.Column{{Name: "name", Type: table.StringType}, {Name: "score", Type: table.IntType}},
		[][]any{{"ann", int64(1)}, {"bob", int64(5)}, {"cat", int64(9)}},
	)
	out, n, err := Replace(tbl, "score", "0", "score >= 5")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n != 2 {
		t.Errorf("changed count = %d, want 2", n)
	}
	if got := out.Rows[0][1]; !table.CellsEqual(got, int64(1)) {
		t.Errorf("unmasked row modified: got %v", got)
	}
	// The input table is never touched.
	for i, want := range []any{int64(1), int64(5), int64(9)} {
		if got := tbl.Rows[i][1]; !table.CellsEqual(got, want) {
			t.Errorf("input mutated at row %d: got %v, want %v", i, got, want)
		}
	}
}

// A masked row whose value already equals the replacement is not a change.
func TestReplaceCountsOnlyRealChanges(t *testing.T) {
	tbl := intTable(t, "v", "A", int64(7), int64(7), int64(3))
	_, n, err := Replace(tbl, "A", "7", "")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n != 1 {
		t.Errorf("changed count = %d, want 1 (two rows already held 7)", n)
	}
}

func TestReplaceEmptyConditionAppliesEverywhere(t *testing.T) {
	tbl := intTable(t, "v", "A", int64(1), int64(2), int64(3))
	out, n, err := Replace(tbl, "A", "99", "   ")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	for i := range out.Rows {
		if !table.CellsEqual(out.Rows[i][0], int64(99)) {
			t.Errorf("row %d not assigned: %v", i, out.Rows[i][0])
		}
	}
	if n != 3 {
		t.Errorf("changed count = %d, want 3", n)
	}
}

func TestReplaceMissingColumn(t *testing.T) {
	tbl := intTable(t, "v", "A", int64(1))
	before := tbl.Clone()

	cases := []struct {
		name           string
		col, val, cond string
	}{
		{"target", "B", "1", ""},
		{"value ref", "A", "missing_col", ""},
		{"condition ref", "A", "1", "nope > 2"},
		{"relative ref", "A", "ghost[n-1]", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Replace(tbl, tc.col, tc.val, tc.cond)
			if !IsMissingColumn(err) {
				t.Fatalf("got %v, want MissingColumnError", err)
			}
			if !tbl.Equal(before) {
				t.Error("input table changed on error path")
			}
		})
	}
}

func TestReplaceMalformedExpression(t *testing.T) {
	tbl := intTable(t, "v", "A", int64(1))
	before := tbl.Clone()

	for _, cond := range []string{"A >", "A[n+]", "A[x]", "A[n+1", "((A > 1)", "A > 'x"} {
		_, _, err := Replace(tbl, "A", "0", cond)
		if !IsMalformedExpression(err) {
			t.Errorf("condition %q: got %v, want MalformedExpressionError", cond, err)
		}
	}
	if !tbl.Equal(before) {
		t.Error("input table changed on error path")
	}
}

// Evaluation-type failures abort the whole call with no partial assignment.
func TestReplaceFailedEvaluationLeavesNoPartialState(t *testing.T) {
	tbl := newTestTable(t, "mix",
		[]table.Column{{Name: "a", Type: table.StringType}},
		[][]any{{"x"}, {"y"}},
	)
	before := tbl.Clone()
	_, _, err := Replace(tbl, "a", "'z'", "a > 3")
	if !IsMalformedExpression(err) {
		t.Fatalf("got %v, want MalformedExpressionError", err)
	}
	if !tbl.Equal(before) {
		t.Error("input table changed on error path")
	}
}

// Out-of-range relative references hold the sentinel, and comparing the
// sentinel against a concrete value never selects the row.
func TestReplaceSentinelComparisonIsFalse(t *testing.T) {
	tbl := intTable(t, "v", "A", int64(10), int64(20))
	out, n, err := Replace(tbl, "A", "0", "A[n-1] > 5")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	// Row 0's A[n-1] is out of range: sentinel, condition false.
	if !table.CellsEqual(out.Rows[0][0], int64(10)) {
		t.Errorf("row 0 assigned despite sentinel condition: %v", out.Rows[0][0])
	}
	if !table.CellsEqual(out.Rows[1][0], int64(0)) {
		t.Errorf("row 1 not assigned: %v", out.Rows[1][0])
	}
	if n != 1 {
		t.Errorf("changed count = %d, want 1", n)
	}
}

func TestReplaceIdempotent(t *testing.T) {
	tbl := newTestTable(t, "v",
		[]table.Column{{Name: "flag", Type: table.IntType}, {Name: "x", Type: table.IntType}},
		[][]any{{int64(0), int64(1)}, {int64(1), int64(2)}, {int64(1), int64(3)}},
	)
	once, n1, err := Replace(tbl, "x", "100", "flag == 1")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	twice, n2, err := Replace(once, "x", "100", "flag == 1")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !once.Equal(twice) {
		t.Error("second identical replace produced a different table")
	}
	if n1 != 2 || n2 != 0 {
		t.Errorf("counts = %d, %d; want 2, 0", n1, n2)
	}
}

// Value expressions referencing the target column shifted read
// pre-assignment values: the shift snapshot is taken before any assignment.
func TestReplaceShiftSnapshotsInput(t *testing.T) {
	tbl := intTable(t, "v", "A", int64(1), int64(2), int64(3))
	out, _, err := Replace(tbl, "A", "A[n-1]", "")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	// A cascading in-place shift would smear row 0's sentinel downwards.
	want := []any{nil, int64(1), int64(2)}
	for i, w := range want {
		if got := out.Rows[i][0]; !table.CellsEqual(got, w) {
			t.Errorf("row %d: got %v, want %v", i, got, w)
		}
	}
}

func TestReplaceValueArithmeticAndColumnRefs(t *testing.T) {
	tbl := newTestTable(t, "sales",
		[]table.Column{
			{Name: "price", Type: table.FloatType},
			{Name: "qty", Type: table.IntType},
			{Name: "total", Type: table.FloatType},
		},
		[][]any{
			{2.5, int64(4), nil},
			{1.0, int64(3), nil},
		},
	)
	out, n, err := Replace(tbl, "total", "price * qty", "")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n != 2 {
		t.Errorf("changed count = %d, want 2", n)
	}
	if !table.CellsEqual(out.Rows[0][2], 10.0) || !table.CellsEqual(out.Rows[1][2], 3.0) {
		t.Errorf("totals = %v, %v", out.Rows[0][2], out.Rows[1][2])
	}
}

func TestReplaceFloatModulo(t *testing.T) {
	tbl := newTestTable(t, "v",
		[]table.Column{{Name: "A", Type: table.FloatType}},
		[][]any{{5.5}, {5.0}},
	)
	out, _, err := Replace(tbl, "A", "A % 2", "")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !table.CellsEqual(out.Rows[0][0], 1.5) || !table.CellsEqual(out.Rows[1][0], 1.0) {
		t.Errorf("remainders = %v, %v", out.Rows[0][0], out.Rows[1][0])
	}

	// A fractional divisor is a plain remainder, not a panic.
	out, _, err = Replace(tbl, "A", "A % 0.5", "")
	if err != nil {
		t.Fatalf("replace with fractional divisor: %v", err)
	}
	if !table.CellsEqual(out.Rows[0][0], 0.0) || !table.CellsEqual(out.Rows[1][0], 0.0) {
		t.Errorf("remainders = %v, %v", out.Rows[0][0], out.Rows[1][0])
	}

	if _, _, err := Replace(tbl, "A", "A % 0.0", ""); !IsMalformedExpression(err) {
		t.Errorf("got %v, want MalformedExpressionError for zero divisor", err)
	}
}

func TestReplaceStringValues(t *testing.T) {
	tbl := newTestTable(t, "people",
		[]table.Column{{Name: "status", Type: table.StringType}, {Name: "visits", Type: table.IntType}},
		[][]any{{"new", int64(0)}, {"new", int64(4)}},
	)
	out, n, err := Replace(tbl, "status", "'inactive'", "visits == 0")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n != 1 {
		t.Errorf("changed count = %d, want 1", n)
	}
	if out.Rows[0][0] != "inactive" || out.Rows[1][0] != "new" {
		t.Errorf("statuses = %v, %v", out.Rows[0][0], out.Rows[1][0])
	}
}

func TestReplaceConditionWithRelativeReference(t *testing.T) {
	// Mark the second consecutive zero-visit period.
	tbl := newTestTable(t, "visits",
		[]table.Column{{Name: "visits", Type: table.IntType}, {Name: "churn", Type: table.IntType}},
		[][]any{
			{int64(3), int64(0)},
			{int64(0), int64(0)},
			{int64(0), int64(0)},
			{int64(2), int64(0)},
		},
	)
	out, n, err := Replace(tbl, "churn", "1", "visits == 0 & visits[n-1] == 0")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if n != 1 {
		t.Errorf("changed count = %d, want 1", n)
	}
	want := []any{int64(0), int64(0), int64(1), int64(0)}
	for i, w := range want {
		if got := out.Rows[i][1]; !table.CellsEqual(got, w) {
			t.Errorf("row %d churn = %v, want %v", i, got, w)
		}
	}
}

func TestSimpleReplace(t *testing.T) {
	tbl := newTestTable(t, "people",
		[]table.Column{{Name: "city", Type: table.StringType}, {Name: "pop", Type: table.IntType}},
		[][]any{{"a", int64(10)}, {"b", int64(200)}, {"c", int64(3000)}},
	)
	out, n, err := SimpleReplace(tbl, "city", "big", "pop > 100")
	if err != nil {
		t.Fatalf("simple replace: %v", err)
	}
	if n != 2 {
		t.Errorf("changed count = %d, want 2", n)
	}
	if out.Rows[0][0] != "a" || out.Rows[1][0] != "big" || out.Rows[2][0] != "big" {
		t.Errorf("cities = %v, %v, %v", out.Rows[0][0], out.Rows[1][0], out.Rows[2][0])
	}
	if tbl.Rows[1][0] != "b" {
		t.Error("input table mutated")
	}
}

func TestSimpleReplaceNilValue(t *testing.T) {
	tbl := intTable(t, "v", "A", int64(1), int64(2))
	out, n, err := SimpleReplace(tbl, "A", nil, "A == 2")
	if err != nil {
		t.Fatalf("simple replace: %v", err)
	}
	if n != 1 {
		t.Errorf("changed count = %d, want 1", n)
	}
	if out.Rows[1][0] != nil {
		t.Errorf("row 1 = %v, want nil", out.Rows[1][0])
	}
}
