package engine

import (
	"strings"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// shiftKey identifies one materialized shifted column within a single
// operation: the referenced column (lower-cased) and the signed row offset.
type shiftKey struct {
	col    string
	offset int
}

// shiftedColumn materializes a row-shifted snapshot of one column. The value
// at row i is the original column's value at physical row i+offset; rows whose
// shifted position leaves [0, N) hold nil, the missing sentinel. col[n+1]
// therefore reads one row ahead in the table's natural order and col[n-1] one
// row behind, which matches the canonical negated-shift convention of the
// notation. Row order is never touched; alignment is pure index arithmetic.
func shiftedColumn(t *table.Table, name string, offset int) ([]any, error) {
	idx, err := t.ColIndex(name)
	if err != nil {
		return nil, missingColumn(t.Name, name)
	}
	n := len(t.Rows)
	out := make([]any, n)
	for i := 0; i < n; i++ {
		src := i + offset
		if src < 0 || src >= n {
			continue // out of range resolves to the sentinel, never an error
		}
		out[i] = t.Rows[src][idx]
	}
	return out, nil
}

// buildShifts materializes one shifted column per distinct relative reference
// appearing in the given ASTs. Snapshots are taken from the input table before
// any assignment, so a value expression referencing the target column shifted
// always reads pre-assignment values.
func buildShifts(t *table.Table, exprs ...Expr) (map[shiftKey][]any, error) {
	shifts := map[shiftKey][]any{}
	for _, e := range exprs {
		for _, r := range References(e) {
			key := shiftKey{col: strings.ToLower(r.Name), offset: r.Offset}
			if _, ok := shifts[key]; ok {
				continue
			}
			col, err := shiftedColumn(t, r.Name, r.Offset)
			if err != nil {
				return nil, err
			}
			shifts[key] = col
		}
	}
	return shifts, nil
}
