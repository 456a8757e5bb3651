package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SimonWaldherr/wrangle/internal/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// The wrangling operations below share the Replace conventions: tables are
// copied, never mutated in place; column lookups are case-insensitive; a
// reference to an absent column is a MissingColumnError.

// RenameColumns renames columns per the old-name to new-name mapping.
func RenameColumns(t *table.Table, renames map[string]string) (*table.Table, error) {
	out := t.Clone()
	for oldName := range renames {
		if !out.HasColumn(oldName) {
			return nil, missingColumn(t.Name, oldName)
		}
	}
	// Apply in deterministic order so duplicate-name errors are stable.
	olds := make([]string, 0, len(renames))
	for o := range renames {
		olds = append(olds, o)
	}
	sort.Strings(olds)
	for _, o := range olds {
		if err := out.RenameColumn(o, renames[o]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PrefixColumns prepends prefix to every column name.
func PrefixColumns(t *table.Table, prefix string) (*table.Table, error) {
	return mapColumnNames(t, func(name string) string { return prefix + name })
}

// SuffixColumns appends suffix to every column name.
func SuffixColumns(t *table.Table, suffix string) (*table.Table, error) {
	return mapColumnNames(t, func(name string) string { return name + suffix })
}

// TrimColumnPrefix removes prefix from every column name that carries it.
func TrimColumnPrefix(t *table.Table, prefix string) (*table.Table, error) {
	return mapColumnNames(t, func(name string) string { return strings.TrimPrefix(name, prefix) })
}

// TrimColumnSuffix removes suffix from every column name that carries it.
func TrimColumnSuffix(t *table.Table, suffix string) (*table.Table, error) {
	return mapColumnNames(t, func(name string) string { return strings.TrimSuffix(name, suffix) })
}

func mapColumnNames(t *table.Table, fn func(string) string) (*table.Table, error) {
	out := t.Clone()
	names := make([]string, len(out.Cols))
	for i, c := range out.Cols {
		names[i] = fn(c.Name)
	}
	if err := out.SetColumnNames(names); err != nil {
		return nil, fmt.Errorf("rename on table %q: %w", t.Name, err)
	}
	return out, nil
}

// MoveColumn repositions one column. position is "first", "last", "before"
// or "after"; the latter two anchor on the ref column.
func MoveColumn(t *table.Table, col, position, ref string) (*table.Table, error) {
	if !t.HasColumn(col) {
		return nil, missingColumn(t.Name, col)
	}
	names := t.ColumnNames()
	var rest []string
	var moved string
	for _, n := range names {
		if strings.EqualFold(n, col) {
			moved = n
			continue
		}
		rest = append(rest, n)
	}
	var order []string
	switch strings.ToLower(position) {
	case "first":
		order = append([]string{moved}, rest...)
	case "last":
		order = append(rest, moved)
	case "before", "after":
		if !t.HasColumn(ref) {
			return nil, missingColumn(t.Name, ref)
		}
		if strings.EqualFold(ref, col) {
			return nil, fmt.Errorf("cannot move column %q relative to itself", col)
		}
		for _, n := range rest {
			if strings.EqualFold(n, ref) {
				if strings.ToLower(position) == "before" {
					order = append(order, moved, n)
				} else {
					order = append(order, n, moved)
				}
				continue
			}
			order = append(order, n)
		}
	default:
		return nil, fmt.Errorf("unknown move position %q (want first, last, before or after)", position)
	}
	out := t.Clone()
	if err := out.Reorder(order); err != nil {
		return nil, err
	}
	return out, nil
}

// MoveColumnToIndex places a column at a 1-based position in the schema.
func MoveColumnToIndex(t *table.Table, col string, oneBased int) (*table.Table, error) {
	if !t.HasColumn(col) {
		return nil, missingColumn(t.Name, col)
	}
	if oneBased < 1 || oneBased > len(t.Cols) {
		return nil, fmt.Errorf("position %d out of range on table %q with %d columns", oneBased, t.Name, len(t.Cols))
	}
	var rest []string
	var moved string
	for _, n := range t.ColumnNames() {
		if strings.EqualFold(n, col) {
			moved = n
			continue
		}
		rest = append(rest, n)
	}
	order := make([]string, 0, len(t.Cols))
	order = append(order, rest[:oneBased-1]...)
	order = append(order, moved)
	order = append(order, rest[oneBased-1:]...)
	out := t.Clone()
	if err := out.Reorder(order); err != nil {
		return nil, err
	}
	return out, nil
}

// MoveRow repositions one row from index from to index to; all other rows
// keep their relative order.
func MoveRow(t *table.Table, from, to int) (*table.Table, error) {
	n := t.NumRows()
	if from < 0 || from >= n {
		return nil, fmt.Errorf("row %d out of range on table %q", from, t.Name)
	}
	if to < 0 || to >= n {
		return nil, fmt.Errorf("row %d out of range on table %q", to, t.Name)
	}
	out := t.Clone()
	row := out.Rows[from]
	out.Rows = append(out.Rows[:from], out.Rows[from+1:]...)
	rest := append(out.Rows[:to:to], append([][]any{row}, out.Rows[to:]...)...)
	out.Rows = rest
	out.Version++
	return out, nil
}

// BysortSequence appends an int column holding, per group of equal groupCols
// values, either the 1-based sequence number of each row within its group
// (kind "_n") or the group's total size (kind "_N"). Rows are stable-sorted
// by the group columns first, which is the documented, observable ordering of
// the result.
func BysortSequence(t *table.Table, groupCols []string, newCol, kind string) (*table.Table, error) {
	if kind != "_n" && kind != "_N" {
		return nil, fmt.Errorf("unknown sequence kind %q (want _n or _N)", kind)
	}
	idxs := make([]int, len(groupCols))
	for i, c := range groupCols {
		idx, err := t.ColIndex(c)
		if err != nil {
			return nil, missingColumn(t.Name, c)
		}
		idxs[i] = idx
	}
	out := t.Clone()
	sort.SliceStable(out.Rows, func(a, b int) bool {
		for _, idx := range idxs {
			c := compareForGroup(out.Rows[a][idx], out.Rows[b][idx])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	values := make([]any, len(out.Rows))
	start := 0
	for start < len(out.Rows) {
		end := start + 1
		for end < len(out.Rows) && sameGroup(out.Rows[start], out.Rows[end], idxs) {
			end++
		}
		for i := start; i < end; i++ {
			if kind == "_n" {
				values[i] = int64(i - start + 1)
			} else {
				values[i] = int64(end - start)
			}
		}
		start = end
	}
	if err := out.AddColumn(table.Column{Name: newCol, Type: table.IntType}, values); err != nil {
		return nil, err
	}
	return out, nil
}

func sameGroup(a, b []any, idxs []int) bool {
	for _, idx := range idxs {
		if !table.CellsEqual(a[idx], b[idx]) {
			return false
		}
	}
	return true
}

// compareForGroup orders cells for grouping: nils first, then numerics,
// then everything else by its string form.
func compareForGroup(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if aok && bok {
		return compareFloat(af, bf)
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

// DuplicateDiagnosis appends a string column answering "how is this row not
// a duplicate": for rows sharing the uniqueCols values, it lists the
// comma-joined names of columns whose value differs from the group's first
// row, and the empty string for exact duplicates.
func DuplicateDiagnosis(t *table.Table, uniqueCols []string, newCol string) (*table.Table, error) {
	idxs := make([]int, len(uniqueCols))
	for i, c := range uniqueCols {
		idx, err := t.ColIndex(c)
		if err != nil {
			return nil, missingColumn(t.Name, c)
		}
		idxs[i] = idx
	}
	out := t.Clone()
	first := map[string]int{}
	values := make([]any, len(out.Rows))
	for ri, row := range out.Rows {
		key := groupKey(row, idxs)
		fi, seen := first[key]
		if !seen {
			first[key] = ri
			values[ri] = ""
			continue
		}
		var diffs []string
		for ci := range out.Cols {
			if !table.CellsEqual(row[ci], out.Rows[fi][ci]) {
				diffs = append(diffs, out.Cols[ci].Name)
			}
		}
		values[ri] = strings.Join(diffs, ",")
	}
	if err := out.AddColumn(table.Column{Name: newCol, Type: table.StringType}, values); err != nil {
		return nil, err
	}
	return out, nil
}

func groupKey(row []any, idxs []int) string {
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		parts[i] = fmt.Sprintf("%v", row[idx])
	}
	return strings.Join(parts, "\x1f")
}

// CountOccurrences appends an int column holding, per row, the number of
// times substr occurs in col's string value plus a constant offset.
func CountOccurrences(t *table.Table, col, substr, newCol string, offset int) (*table.Table, error) {
	idx, err := t.ColIndex(col)
	if err != nil {
		return nil, missingColumn(t.Name, col)
	}
	out := t.Clone()
	values := make([]any, len(out.Rows))
	for i, row := range out.Rows {
		s, _ := row[idx].(string)
		values[i] = int64(strings.Count(s, substr) + offset)
	}
	if err := out.AddColumn(table.Column{Name: newCol, Type: table.IntType}, values); err != nil {
		return nil, err
	}
	return out, nil
}

var titleCaser = cases.Title(language.English)

// ProperCase title-cases a string column, keeping the letter after an
// apostrophe lower so O'Brien stays O'Brien and won't becomes won't.
func ProperCase(t *table.Table, col string) (*table.Table, error) {
	idx, err := t.ColIndex(col)
	if err != nil {
		return nil, missingColumn(t.Name, col)
	}
	out := t.Clone()
	for i, row := range out.Rows {
		s, ok := row[idx].(string)
		if !ok {
			continue
		}
		out.Rows[i][idx] = properCase(s)
	}
	out.Version++
	return out, nil
}

func properCase(s string) string {
	titled := titleCaser.String(strings.ToLower(s))
	// cases.Title treats the apostrophe as word-internal, yielding O'brien.
	// Uppercase the letter after an apostrophe when it follows a single
	// leading letter (O'Brien, D'Angelo) but not inside contractions
	// (won't, it's).
	runes := []rune(titled)
	for i := 1; i < len(runes)-1; i++ {
		if runes[i] != '\'' {
			continue
		}
		wordStart := i - 1
		for wordStart > 0 && isWordRune(runes[wordStart-1]) {
			wordStart--
		}
		if i-wordStart == 1 {
			runes[i+1] = upperRune(runes[i+1])
		}
	}
	return string(runes)
}

func isWordRune(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func upperRune(r rune) rune {
	if 'a' <= r && r <= 'z' {
		return r - 32
	}
	return r
}

// SliceRows keeps pct percent of the rows, taken from the "start" or "end"
// of the table.
func SliceRows(t *table.Table, pct float64, from string) (*table.Table, error) {
	if pct < 0 || pct > 100 {
		return nil, fmt.Errorf("percentage %v out of range [0, 100]", pct)
	}
	n := t.NumRows()
	keep := int(float64(n) * pct / 100.0)
	out := t.Clone()
	switch strings.ToLower(from) {
	case "start", "first", "":
		out.Rows = out.Rows[:keep]
	case "end", "last":
		out.Rows = out.Rows[n-keep:]
	default:
		return nil, fmt.Errorf("unknown slice origin %q (want start or end)", from)
	}
	out.Version++
	return out, nil
}

// AddTotalRow appends a row labeled "Total" in labelCol whose sumCols hold
// the column sums; all other cells stay nil.
func AddTotalRow(t *table.Table, labelCol string, sumCols []string) (*table.Table, error) {
	labelIdx, err := t.ColIndex(labelCol)
	if err != nil {
		return nil, missingColumn(t.Name, labelCol)
	}
	sumIdxs := make([]int, len(sumCols))
	for i, c := range sumCols {
		idx, err := t.ColIndex(c)
		if err != nil {
			return nil, missingColumn(t.Name, c)
		}
		sumIdxs[i] = idx
	}
	out := t.Clone()
	row := make([]any, len(out.Cols))
	row[labelIdx] = "Total"
	for _, idx := range sumIdxs {
		var sum float64
		allInt := true
		for _, r := range out.Rows {
			f, ok := numeric(r[idx])
			if !ok {
				continue
			}
			if _, isInt := r[idx].(int64); !isInt {
				allInt = false
			}
			sum += f
		}
		if allInt {
			row[idx] = int64(sum)
		} else {
			row[idx] = sum
		}
	}
	out.Rows = append(out.Rows, row)
	out.Version++
	return out, nil
}

// AddOtherRow collapses all but the keepTop largest rows (by valueCol) of a
// count table into one row labeled "Other" holding their sum.
func AddOtherRow(t *table.Table, labelCol, valueCol string, keepTop int) (*table.Table, error) {
	labelIdx, err := t.ColIndex(labelCol)
	if err != nil {
		return nil, missingColumn(t.Name, labelCol)
	}
	valueIdx, err := t.ColIndex(valueCol)
	if err != nil {
		return nil, missingColumn(t.Name, valueCol)
	}
	if keepTop < 0 {
		return nil, fmt.Errorf("keepTop %d must not be negative", keepTop)
	}
	out := t.Clone()
	sort.SliceStable(out.Rows, func(a, b int) bool {
		af, _ := numeric(out.Rows[a][valueIdx])
		bf, _ := numeric(out.Rows[b][valueIdx])
		return af > bf
	})
	if keepTop >= len(out.Rows) {
		return out, nil
	}
	var other float64
	allInt := true
	for _, r := range out.Rows[keepTop:] {
		f, ok := numeric(r[valueIdx])
		if !ok {
			continue
		}
		if _, isInt := r[valueIdx].(int64); !isInt {
			allInt = false
		}
		other += f
	}
	row := make([]any, len(out.Cols))
	row[labelIdx] = "Other"
	if allInt {
		row[valueIdx] = int64(other)
	} else {
		row[valueIdx] = other
	}
	out.Rows = append(out.Rows[:keepTop], row)
	out.Version++
	return out, nil
}

// ValueCounts builds a new three-column table (value, count, percent) for
// one column, sorted by count descending then value ascending. percent is
// formatted to two decimals.
func ValueCounts(t *table.Table, col string) (*table.Table, error) {
	idx, err := t.ColIndex(col)
	if err != nil {
		return nil, missingColumn(t.Name, col)
	}
	counts := map[string]int64{}
	var order []string
	for _, r := range t.Rows {
		key := fmt.Sprintf("%v", r[idx])
		if r[idx] == nil {
			key = ""
		}
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}
	sort.SliceStable(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return order[a] < order[b]
	})
	out := table.NewTable(t.Name+"_counts", []table.Column{
		{Name: "value", Type: table.StringType},
		{Name: "count", Type: table.IntType},
		{Name: "percent", Type: table.StringType},
	})
	total := float64(t.NumRows())
	for _, key := range order {
		pct := ""
		if total > 0 {
			pct = fmt.Sprintf("%.2f", float64(counts[key])/total*100)
		}
		out.Rows = append(out.Rows, []any{key, counts[key], pct})
	}
	return out, nil
}

// FindColumns returns the names of columns containing substring,
// case-insensitively, in schema order.
func FindColumns(t *table.Table, substring string) []string {
	var out []string
	needle := strings.ToLower(substring)
	for _, c := range t.Cols {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c.Name)
		}
	}
	return out
}

// ConvertUnits appends a float column holding col's numeric values scaled by
// factor; non-numeric cells become nil.
func ConvertUnits(t *table.Table, col string, factor float64, newCol string) (*table.Table, error) {
	idx, err := t.ColIndex(col)
	if err != nil {
		return nil, missingColumn(t.Name, col)
	}
	out := t.Clone()
	values := make([]any, len(out.Rows))
	for i, r := range out.Rows {
		if f, ok := numeric(r[idx]); ok {
			values[i] = f * factor
		}
	}
	if err := out.AddColumn(table.Column{Name: newCol, Type: table.FloatType}, values); err != nil {
		return nil, err
	}
	return out, nil
}
