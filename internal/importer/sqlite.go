package importer

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ImportSQLite loads tables from a SQLite database file into a workspace.
// With no names given, every user table is imported. SQLite storage classes
// map onto column types: INTEGER→INT, REAL→FLOAT, everything else TEXT
// except declared BOOLEAN and date/time affinities.
func ImportSQLite(filePath string, tableNames ...string) (*table.Workspace, error) {
	db, err := sql.Open("sqlite", filePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	defer db.Close()

	if len(tableNames) == 0 {
		tableNames, err = listSQLiteTables(db)
		if err != nil {
			return nil, err
		}
	}
	if len(tableNames) == 0 {
		return nil, fmt.Errorf("no tables found in %s", filePath)
	}

	ws := table.NewWorkspace()
	for _, name := range tableNames {
		tbl, err := readSQLiteTable(db, name)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		ws.Put(tbl)
	}
	return ws, nil
}

func listSQLiteTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func readSQLiteTable(db *sql.DB, name string) (*table.Table, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT * FROM %s`, quoteSQLiteIdent(name)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	cols := make([]table.Column, len(colNames))
	for i, n := range colNames {
		cols[i] = table.Column{Name: n, Type: sqliteColType(colTypes[i].DatabaseTypeName())}
	}
	tbl := table.NewTable(name, cols)

	dest := make([]any, len(colNames))
	ptrs := make([]any, len(colNames))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]any, len(dest))
		for i, v := range dest {
			row[i] = normalizeSQLiteValue(v, cols[i].Type)
		}
		if err := tbl.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return tbl, rows.Err()
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqliteColType maps a declared SQLite type to a column type using the
// standard affinity rules.
func sqliteColType(declared string) table.ColType {
	d := strings.ToUpper(declared)
	switch {
	case strings.Contains(d, "BOOL"):
		return table.BoolType
	case strings.Contains(d, "INT"):
		return table.IntType
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"), strings.Contains(d, "NUMERIC"), strings.Contains(d, "DECIMAL"):
		return table.FloatType
	case strings.Contains(d, "DATE"), strings.Contains(d, "TIME"):
		return table.TimeType
	default:
		return table.TextType
	}
}

// normalizeSQLiteValue converts driver values to the table's cell types.
func normalizeSQLiteValue(v any, colType table.ColType) any {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case []byte:
		s := string(x)
		if colType == table.TimeType {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
			if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
				return t
			}
		}
		return s
	case int64:
		if colType == table.BoolType {
			return x != 0
		}
		return x
	case float64:
		return x
	case string:
		if colType == table.TimeType {
			if t, err := time.Parse(time.RFC3339, x); err == nil {
				return t
			}
			if t, err := time.Parse("2006-01-02 15:04:05", x); err == nil {
				return t
			}
		}
		return x
	default:
		return v
	}
}
