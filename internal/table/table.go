// Package table provides the column-oriented data structures for wrangle.
//
// What: An in-memory table of named, typed columns sharing one physical row
// order, plus a workspace registry of named tables with GOB-based snapshots.
// How: Tables store rows as [][]any for compactness; a lower-cased column
// index accelerates name lookups. Missing values are untyped nil. Save/Load
// serialize the workspace to a file, writing JSON text for JSON columns.
// Why: Row-relative operations are defined against physical row position, so
// the container keeps rows in insertion order and never reorders them behind
// the caller's back. Favor a simple, explicit model over page managers.
package table

import (
	"encoding/gob"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// safeGobRegister registers a type with encoding/gob but recovers from the
// known "registering duplicate names" panic which can occur when the same
// type is registered via different import paths in a multi-package build
// (for example when using Wails and building bindings). Ignoring that
// specific panic is safe for our use-case.
func safeGobRegister(v any) {
	defer func() {
		if r := recover(); r != nil {
			if errStr, ok := r.(string); ok {
				if strings.Contains(errStr, "registering duplicate names") {
					return
				}
			}
			panic(r)
		}
	}()
	gob.Register(v)
}

func init() {
	// Register cell types that appear in serialized snapshots.
	safeGobRegister(diskTable{})
	safeGobRegister(&diskTable{})
	safeGobRegister(Table{})
	safeGobRegister(&Table{})
	safeGobRegister(time.Time{})
	safeGobRegister(time.Duration(0))
	safeGobRegister(uuid.UUID{})
	safeGobRegister(map[string]any{})
	safeGobRegister([]any{})
}

// ColType enumerates supported column data types.
type ColType int

const (
	IntType ColType = iota
	FloatType
	StringType
	TextType // alias for StringType in parsed schemas
	BoolType
	TimeType
	DurationType
	UUIDType
	JSONType
)

var colTypeToString = map[ColType]string{
	IntType:      "INT",
	FloatType:    "FLOAT",
	StringType:   "STRING",
	TextType:     "TEXT",
	BoolType:     "BOOL",
	TimeType:     "TIME",
	DurationType: "DURATION",
	UUIDType:     "UUID",
	JSONType:     "JSON",
}

func (t ColType) String() string {
	if s, ok := colTypeToString[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseColType maps a type name (any case) to a ColType.
func ParseColType(s string) (ColType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INT", "INTEGER", "INT64":
		return IntType, nil
	case "FLOAT", "FLOAT64", "REAL", "DOUBLE":
		return FloatType, nil
	case "STRING", "VARCHAR":
		return StringType, nil
	case "TEXT":
		return TextType, nil
	case "BOOL", "BOOLEAN":
		return BoolType, nil
	case "TIME", "DATE", "DATETIME", "TIMESTAMP":
		return TimeType, nil
	case "DURATION":
		return DurationType, nil
	case "UUID":
		return UUIDType, nil
	case "JSON":
		return JSONType, nil
	default:
		return StringType, fmt.Errorf("unknown column type %q", s)
	}
}

// Column holds column schema information in a table.
type Column struct {
	Name string
	Type ColType
}

// Table stores rows along with column metadata. Row order is physical and
// significant: relative references address rows by their current position.
type Table struct {
	Name    string
	Cols    []Column
	Rows    [][]any
	colPos  map[string]int
	Version int
}

// NewTable creates a new Table with case-insensitive column lookup indices.
func NewTable(name string, cols []Column) *Table {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[strings.ToLower(c.Name)] = i
	}
	return &Table{Name: name, Cols: cols, colPos: pos}
}

// ColIndex returns the zero-based index of the named column.
func (t *Table) ColIndex(name string) (int, error) {
	i, ok := t.colPos[strings.ToLower(name)]
	if !ok {
		return -1, fmt.Errorf("unknown column %q on table %q", name, t.Name)
	}
	return i, nil
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colPos[strings.ToLower(name)]
	return ok
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.Cols) }

// ColumnNames returns the column names in schema order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		out[i] = c.Name
	}
	return out
}

// AppendRow adds one row. The row must have exactly one value per column.
func (t *Table) AppendRow(row []any) error {
	if len(row) != len(t.Cols) {
		return fmt.Errorf("row has %d values, table %q has %d columns", len(row), t.Name, len(t.Cols))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Column returns a copy of one column's values aligned to the row order.
func (t *Table) Column(name string) ([]any, error) {
	idx, err := t.ColIndex(name)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		if idx < len(r) {
			out[i] = r[idx]
		}
	}
	return out, nil
}

// Cell returns the value at (row, column name).
func (t *Table) Cell(row int, name string) (any, error) {
	idx, err := t.ColIndex(name)
	if err != nil {
		return nil, err
	}
	if row < 0 || row >= len(t.Rows) {
		return nil, fmt.Errorf("row %d out of range on table %q", row, t.Name)
	}
	return t.Rows[row][idx], nil
}

// SetCell assigns the value at (row, column name).
func (t *Table) SetCell(row int, name string, v any) error {
	idx, err := t.ColIndex(name)
	if err != nil {
		return err
	}
	if row < 0 || row >= len(t.Rows) {
		return fmt.Errorf("row %d out of range on table %q", row, t.Name)
	}
	t.Rows[row][idx] = v
	return nil
}

// Clone creates a full copy of the table with fresh row storage. Cell values
// are scalars (or immutable value types), so a per-row shallow copy yields an
// independent table.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.Cols))
	copy(cols, t.Cols)
	nt := NewTable(t.Name, cols)
	nt.Version = t.Version
	nt.Rows = make([][]any, len(t.Rows))
	for i := range t.Rows {
		row := make([]any, len(t.Rows[i]))
		copy(row, t.Rows[i])
		nt.Rows[i] = row
	}
	return nt
}

// AddColumn appends a column with the given values (nil values allowed; the
// slice may be shorter than the row count, missing entries become nil).
func (t *Table) AddColumn(col Column, values []any) error {
	if t.HasColumn(col.Name) {
		return fmt.Errorf("column %q already exists on table %q", col.Name, t.Name)
	}
	t.Cols = append(t.Cols, col)
	t.colPos[strings.ToLower(col.Name)] = len(t.Cols) - 1
	for i := range t.Rows {
		var v any
		if i < len(values) {
			v = values[i]
		}
		t.Rows[i] = append(t.Rows[i], v)
	}
	t.Version++
	return nil
}

// DropColumn removes the named column and its values.
func (t *Table) DropColumn(name string) error {
	idx, err := t.ColIndex(name)
	if err != nil {
		return err
	}
	t.Cols = append(t.Cols[:idx], t.Cols[idx+1:]...)
	for i, r := range t.Rows {
		t.Rows[i] = append(r[:idx], r[idx+1:]...)
	}
	t.reindex()
	t.Version++
	return nil
}

// RenameColumn changes a column's name, keeping its position and values.
func (t *Table) RenameColumn(oldName, newName string) error {
	idx, err := t.ColIndex(oldName)
	if err != nil {
		return err
	}
	if !strings.EqualFold(oldName, newName) && t.HasColumn(newName) {
		return fmt.Errorf("column %q already exists on table %q", newName, t.Name)
	}
	t.Cols[idx].Name = newName
	t.reindex()
	t.Version++
	return nil
}

// SetColumnNames replaces every column name at once. The list must be
// duplicate-free (case-insensitively) and have one entry per column.
func (t *Table) SetColumnNames(names []string) error {
	if len(names) != len(t.Cols) {
		return fmt.Errorf("got %d names, table %q has %d columns", len(names), t.Name, len(t.Cols))
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		lc := strings.ToLower(n)
		if seen[lc] {
			return fmt.Errorf("duplicate column name %q", n)
		}
		seen[lc] = true
	}
	for i, n := range names {
		t.Cols[i].Name = n
	}
	t.reindex()
	t.Version++
	return nil
}

// Reorder arranges columns into the given order. Every existing column must
// appear exactly once.
func (t *Table) Reorder(names []string) error {
	if len(names) != len(t.Cols) {
		return fmt.Errorf("reorder lists %d columns, table %q has %d", len(names), t.Name, len(t.Cols))
	}
	perm := make([]int, len(names))
	seen := make(map[int]bool, len(names))
	for i, n := range names {
		idx, err := t.ColIndex(n)
		if err != nil {
			return err
		}
		if seen[idx] {
			return fmt.Errorf("column %q listed twice in reorder", n)
		}
		seen[idx] = true
		perm[i] = idx
	}
	cols := make([]Column, len(t.Cols))
	for i, p := range perm {
		cols[i] = t.Cols[p]
	}
	for ri, r := range t.Rows {
		row := make([]any, len(r))
		for i, p := range perm {
			row[i] = r[p]
		}
		t.Rows[ri] = row
	}
	t.Cols = cols
	t.reindex()
	t.Version++
	return nil
}

// Equal reports whether two tables have the same schema and cell values.
// Numeric cells compare across int64/float64.
func (t *Table) Equal(o *Table) bool {
	if o == nil || len(t.Cols) != len(o.Cols) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Cols {
		if !strings.EqualFold(t.Cols[i].Name, o.Cols[i].Name) {
			return false
		}
	}
	for ri := range t.Rows {
		if len(t.Rows[ri]) != len(o.Rows[ri]) {
			return false
		}
		for ci := range t.Rows[ri] {
			if !CellsEqual(t.Rows[ri][ci], o.Rows[ri][ci]) {
				return false
			}
		}
	}
	return true
}

// CellsEqual compares two cell values. nil equals only nil; int64 and float64
// compare numerically across types; time.Time uses Equal.
func CellsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case float64:
			return float64(av) == bv
		}
	case float64:
		switch bv := b.(type) {
		case int64:
			return av == float64(bv)
		case float64:
			return av == bv
		}
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case uuid.UUID:
		bv, ok := b.(uuid.UUID)
		return ok && av == bv
	case time.Duration:
		bv, ok := b.(time.Duration)
		return ok && av == bv
	}
	// JSON cells hold maps/slices; fall back to deep comparison.
	return reflect.DeepEqual(a, b)
}

func (t *Table) reindex() {
	pos := make(map[string]int, len(t.Cols))
	for i, c := range t.Cols {
		pos[strings.ToLower(c.Name)] = i
	}
	t.colPos = pos
}

// ParseUUID parses a UUID string into uuid.UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// UUIDToBytes returns the 16-byte representation of a uuid.UUID.
func UUIDToBytes(u uuid.UUID) []byte {
	return u[:]
}
