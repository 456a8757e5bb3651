package engine

import (
	"github.com/SimonWaldherr/wrangle/internal/table"
)

// Replace conditionally assigns a value into one column of a table.
//
// newValue is an expression: a literal, a bare column name (row-aligned), a
// relative reference such as price[n-1], or an arithmetic combination of
// those. condition is a boolean expression selecting the rows to assign; the
// empty condition selects every row. Both expressions may contain relative
// references, which read other physical rows of the input table.
//
// The input table is never mutated: Replace evaluates every row first and
// only then commits the assignments to a clone, so an error leaves no
// observable side effect. Row order is preserved exactly. The returned count
// is the number of rows whose stored value actually differs after assignment;
// a selected row whose value already equals the new value is not counted.
func Replace(t *table.Table, column, newValue, condition string) (*table.Table, int, error) {
	if _, err := t.ColIndex(column); err != nil {
		return nil, 0, missingColumn(t.Name, column)
	}

	condExpr, err := ParseCondition(condition)
	if err != nil {
		return nil, 0, err
	}
	valExpr, err := ParseExpression(newValue)
	if err != nil {
		return nil, 0, err
	}

	// Every referenced column must exist before any evaluation starts.
	for _, e := range []Expr{condExpr, valExpr} {
		for _, name := range referencedColumns(e) {
			if !t.HasColumn(name) {
				return nil, 0, missingColumn(t.Name, name)
			}
		}
	}

	shifts, err := buildShifts(t, condExpr, valExpr)
	if err != nil {
		return nil, 0, err
	}

	mask, values, err := evaluateRows(t, condExpr, valExpr, shifts)
	if err != nil {
		return nil, 0, err
	}
	return commit(t, column, mask, values)
}

// SimpleReplace assigns a caller-supplied Go value (no value-expression
// parsing) to the rows selected by condition. Mask, copy, and change-count
// semantics match Replace.
func SimpleReplace(t *table.Table, column string, value any, condition string) (*table.Table, int, error) {
	if _, err := t.ColIndex(column); err != nil {
		return nil, 0, missingColumn(t.Name, column)
	}
	condExpr, err := ParseCondition(condition)
	if err != nil {
		return nil, 0, err
	}
	for _, name := range referencedColumns(condExpr) {
		if !t.HasColumn(name) {
			return nil, 0, missingColumn(t.Name, name)
		}
	}
	shifts, err := buildShifts(t, condExpr)
	if err != nil {
		return nil, 0, err
	}

	n := t.NumRows()
	mask := make([]bool, n)
	values := make([]any, n)
	for i := 0; i < n; i++ {
		env := evalEnv{tbl: t, row: i, shifts: shifts}
		hold, err := rowSelected(env, condExpr)
		if err != nil {
			return nil, 0, err
		}
		mask[i] = hold
		values[i] = value
	}
	return commit(t, column, mask, values)
}

// evaluateRows runs the two-phase evaluation: per row, the condition's
// tri-state result decides membership (only a definite true selects the row)
// and the value expression produces the replacement. Any error aborts before
// the caller commits anything.
func evaluateRows(t *table.Table, condExpr, valExpr Expr, shifts map[shiftKey][]any) ([]bool, []any, error) {
	n := t.NumRows()
	mask := make([]bool, n)
	values := make([]any, n)
	for i := 0; i < n; i++ {
		env := evalEnv{tbl: t, row: i, shifts: shifts}
		hold, err := rowSelected(env, condExpr)
		if err != nil {
			return nil, nil, err
		}
		mask[i] = hold
		if !hold {
			continue
		}
		v, err := evalExpr(env, valExpr)
		if err != nil {
			return nil, nil, err
		}
		values[i] = v
	}
	return mask, values, nil
}

func rowSelected(env evalEnv, condExpr Expr) (bool, error) {
	if condExpr == nil {
		return true, nil
	}
	v, err := evalExpr(env, condExpr)
	if err != nil {
		return false, err
	}
	return toTri(v) == tvTrue, nil
}

// commit clones the table, assigns values where the mask holds, and counts
// the rows whose stored value actually changed.
func commit(t *table.Table, column string, mask []bool, values []any) (*table.Table, int, error) {
	out := t.Clone()
	idx, err := out.ColIndex(column)
	if err != nil {
		return nil, 0, missingColumn(t.Name, column)
	}
	changed := 0
	for i, hold := range mask {
		if !hold {
			continue
		}
		if !table.CellsEqual(out.Rows[i][idx], values[i]) {
			changed++
		}
		out.Rows[i][idx] = values[i]
	}
	if changed > 0 {
		out.Version++
	}
	return out, changed, nil
}
