// Package wrangle provides row-relative conditional replacement and
// data-wrangling helpers for tabular data.
//
// The core operation is Replace: assign a value expression to a column
// on the rows selected by a condition, where both expressions may read
// neighboring rows through relative references:
//
//	ws := wrangle.NewWorkspace()
//	t, _, _ := wrangle.ImportCSVFile("visits.csv", nil)
//	ws.Put(t)
//
//	// mark customers whose visits dropped to zero two months in a row
//	out, n, _ := wrangle.Replace(t, "status", "'churned'",
//	    "visits == 0 & visits[n-1] == 0")
//	fmt.Printf("(%d real changes made)\n", n)
//	ws.Put(out)
//
// A reference col[n+k] reads the value of col k rows ahead of the
// current row; col[n-k] reads k rows behind. References past either end
// of the table resolve to nil, and any comparison against nil leaves
// the row unselected. The input table is never modified; Replace
// returns a new table and the number of rows whose value actually
// changed.
//
// # Workspaces and Persistence
//
// A Workspace holds named tables and round-trips through compressed
// GOB snapshots:
//
//	wrangle.SaveToFile(ws, "session.wrk")
//	ws, err := wrangle.LoadFromFile("session.wrk")
//
// # Import and Export
//
// CSV, JSON, XML, XLSX, SQLite and shapefile inputs are inferred into
// typed tables; exports cover the same formats plus LaTeX and SQL:
//
//	t, rep, err := wrangle.ImportCSVFile("data.csv.gz", nil)
//	err = wrangle.ExportCSVFile("clean.csv", t)
//
// For multi-step jobs, see the fluent builder in this package (On) and
// the pipeline package for YAML-defined runs.
package wrangle

import (
	"io"
	"os"

	"github.com/SimonWaldherr/wrangle/internal/engine"
	"github.com/SimonWaldherr/wrangle/internal/exporter"
	"github.com/SimonWaldherr/wrangle/internal/importer"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

// Table stores rows with typed, case-insensitively named columns.
// Row order is significant: relative references address rows by
// position.
type Table = table.Table

// Column describes one table column.
type Column = table.Column

// ColType enumerates supported column data types.
type ColType = table.ColType

// Workspace is a registry of named tables.
type Workspace = table.Workspace

// Expr is a parsed replace-engine expression.
type Expr = engine.Expr

// MissingColumnError reports a reference to a column that does not
// exist on the target table.
type MissingColumnError = engine.MissingColumnError

// MalformedExpressionError reports an expression that failed to parse.
type MalformedExpressionError = engine.MalformedExpressionError

// Column type constants.
const (
	IntType      ColType = table.IntType
	FloatType    ColType = table.FloatType
	StringType   ColType = table.StringType
	TextType     ColType = table.TextType
	BoolType     ColType = table.BoolType
	TimeType     ColType = table.TimeType
	DurationType ColType = table.DurationType
	UUIDType     ColType = table.UUIDType
	JSONType     ColType = table.JSONType
)

// ImportOptions controls header detection, type inference, null
// literals and delimiter candidates for tabular imports.
type ImportOptions = importer.ImportOptions

// ImportResult reports what an import inferred and skipped.
type ImportResult = importer.ImportResult

// ExportOptions controls CSV and JSON export details.
type ExportOptions = exporter.Options

// NewTable creates an empty table with the given columns.
func NewTable(name string, cols []Column) *Table {
	return table.NewTable(name, cols)
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return table.NewWorkspace()
}

// Replace evaluates newValue on every row selected by condition and
// assigns it to column, returning the new table and the number of rows
// whose value actually changed. An empty condition selects all rows.
//
// Example:
//
//	out, n, err := wrangle.Replace(t, "price", "price[n+1]", "price > 15")
func Replace(t *Table, column, newValue, condition string) (*Table, int, error) {
	return engine.Replace(t, column, newValue, condition)
}

// SimpleReplace assigns a constant Go value instead of an expression.
func SimpleReplace(t *Table, column string, value any, condition string) (*Table, int, error) {
	return engine.SimpleReplace(t, column, value, condition)
}

// ParseExpression parses an expression without evaluating it, returning
// a MalformedExpressionError on bad input. Useful for validating user
// input up front.
func ParseExpression(src string) (Expr, error) {
	return engine.ParseExpression(src)
}

// IsMissingColumn reports whether err is a MissingColumnError.
func IsMissingColumn(err error) bool { return engine.IsMissingColumn(err) }

// IsMalformedExpression reports whether err is a MalformedExpressionError.
func IsMalformedExpression(err error) bool { return engine.IsMalformedExpression(err) }

// RenameColumns renames columns per the given old-to-new mapping.
func RenameColumns(t *Table, renames map[string]string) (*Table, error) {
	return engine.RenameColumns(t, renames)
}

// ProperCase title-cases a string column, keeping name particles like
// O'Brien intact.
func ProperCase(t *Table, column string) (*Table, error) {
	return engine.ProperCase(t, column)
}

// ValueCounts builds a value/count/percent frequency table for a column.
func ValueCounts(t *Table, column string) (*Table, error) {
	return engine.ValueCounts(t, column)
}

// SaveToFile writes a compressed snapshot of the workspace.
func SaveToFile(ws *Workspace, filename string) error {
	return table.SaveToFile(ws, filename)
}

// LoadFromFile restores a workspace saved with SaveToFile.
func LoadFromFile(filename string) (*Workspace, error) {
	return table.LoadFromFile(filename)
}

// ImportFile imports a file into a table, dispatching on its extension.
func ImportFile(path string, opts *ImportOptions) (*Table, *ImportResult, error) {
	return importer.ImportFile(path, opts)
}

// ImportCSVFile imports a CSV file (plain or gzipped) with header
// detection and type inference.
func ImportCSVFile(path string, opts *ImportOptions) (*Table, *ImportResult, error) {
	return importer.ImportFile(path, opts)
}

// ImportCSV imports CSV from a reader.
func ImportCSV(src io.Reader, tableName string, opts *ImportOptions) (*Table, *ImportResult, error) {
	return importer.ImportCSV(src, tableName, opts)
}

// ImportJSON imports a JSON array of objects, an object of column
// arrays, or a single object from a reader.
func ImportJSON(src io.Reader, tableName string, opts *ImportOptions) (*Table, *ImportResult, error) {
	return importer.ImportJSON(src, tableName, opts)
}

// ExportCSV writes the table as CSV.
func ExportCSV(w io.Writer, t *Table, opts ExportOptions) error {
	return exporter.ExportCSV(w, t, opts)
}

// ExportCSVFile writes the table as a CSV file.
func ExportCSVFile(path string, t *Table) error {
	return exportToFile(path, t, func(w io.Writer) error {
		return exporter.ExportCSV(w, t, ExportOptions{})
	})
}

// ExportJSON writes the table as a JSON array of objects.
func ExportJSON(w io.Writer, t *Table, opts ExportOptions) error {
	return exporter.ExportJSON(w, t, opts)
}

// ExportJSONFile writes the table as a JSON file.
func ExportJSONFile(path string, t *Table) error {
	return exportToFile(path, t, func(w io.Writer) error {
		return exporter.ExportJSON(w, t, ExportOptions{PrettyJSON: true})
	})
}

func exportToFile(path string, t *Table, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := write(f); err != nil {
		return err
	}
	return f.Sync()
}
