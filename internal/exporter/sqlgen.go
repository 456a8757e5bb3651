package exporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// Dialect selects the SQL flavor for generated DDL and DML.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
	DialectMySQL
)

func (d Dialect) quote(ident string) string {
	switch d {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

func (d Dialect) typeName(ct table.ColType) string {
	switch d {
	case DialectPostgres:
		switch ct {
		case table.IntType:
			return "BIGINT"
		case table.FloatType:
			return "DOUBLE PRECISION"
		case table.BoolType:
			return "BOOLEAN"
		case table.TimeType:
			return "TIMESTAMPTZ"
		case table.UUIDType:
			return "UUID"
		case table.JSONType:
			return "JSONB"
		default:
			return "TEXT"
		}
	case DialectMySQL:
		switch ct {
		case table.IntType:
			return "BIGINT"
		case table.FloatType:
			return "DOUBLE"
		case table.BoolType:
			return "TINYINT(1)"
		case table.TimeType:
			return "DATETIME"
		case table.JSONType:
			return "JSON"
		default:
			return "TEXT"
		}
	default: // SQLite storage classes
		switch ct {
		case table.IntType, table.BoolType:
			return "INTEGER"
		case table.FloatType:
			return "REAL"
		default:
			return "TEXT"
		}
	}
}

// CreateTableSQL generates a CREATE TABLE statement for the table's schema.
func CreateTableSQL(t *table.Table, dialect Dialect) string {
	cols := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		cols[i] = fmt.Sprintf("%s %s", dialect.quote(c.Name), dialect.typeName(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);",
		dialect.quote(t.Name), strings.Join(cols, ", "))
}

// InsertSQL generates batched INSERT statements covering all rows. Each
// statement carries at most batchSize rows; batchSize <= 0 means one
// statement per 500 rows.
func InsertSQL(t *table.Table, dialect Dialect, batchSize int) []string {
	if len(t.Rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	cols := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		cols[i] = dialect.quote(c.Name)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES\n",
		dialect.quote(t.Name), strings.Join(cols, ", "))

	var stmts []string
	for start := 0; start < len(t.Rows); start += batchSize {
		end := start + batchSize
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		var b strings.Builder
		b.WriteString(prefix)
		for i, row := range t.Rows[start:end] {
			if i > 0 {
				b.WriteString(",\n")
			}
			b.WriteByte('(')
			for j, v := range row {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(sqlLiteral(v))
			}
			b.WriteByte(')')
		}
		b.WriteByte(';')
		stmts = append(stmts, b.String())
	}
	return stmts
}

func sqlLiteral(v any) string {
	switch n := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if n {
			return "1"
		}
		return "0"
	case int64:
		return fmt.Sprintf("%d", n)
	case float64:
		return fmt.Sprintf("%g", n)
	case time.Time:
		return "'" + n.UTC().Format("2006-01-02 15:04:05") + "'"
	case uuid.UUID:
		return "'" + n.String() + "'"
	}
	return "'" + strings.ReplaceAll(valueToString(v), "'", "''") + "'"
}
