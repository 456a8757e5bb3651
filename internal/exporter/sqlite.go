package exporter

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ExportSQLite writes the given tables into a SQLite database file,
// creating the schema and bulk-inserting all rows inside one transaction.
// Existing tables of the same name are replaced.
func ExportSQLite(path string, tables ...*table.Table) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range tables {
		if err := exportOneSQLite(tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func exportOneSQLite(tx *sql.Tx, t *table.Table) error {
	name := DialectSQLite.quote(t.Name)
	if _, err := tx.Exec("DROP TABLE IF EXISTS " + name); err != nil {
		return fmt.Errorf("sqlite: drop %s: %w", t.Name, err)
	}
	if _, err := tx.Exec(CreateTableSQL(t, DialectSQLite)); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", t.Name, err)
	}
	if len(t.Rows) == 0 {
		return nil
	}

	placeholders := "("
	for i := range t.Cols {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
	}
	placeholders += ")"
	cols := ""
	for i, c := range t.Cols {
		if i > 0 {
			cols += ", "
		}
		cols += DialectSQLite.quote(c.Name)
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", name, cols, placeholders))
	if err != nil {
		return fmt.Errorf("sqlite: prepare %s: %w", t.Name, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Cols))
	for _, row := range t.Rows {
		for i, v := range row {
			args[i] = sqliteArg(v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("sqlite: insert into %s: %w", t.Name, err)
		}
	}
	return nil
}

func sqliteArg(v any) any {
	switch n := v.(type) {
	case uuid.UUID:
		return n.String()
	case time.Time:
		return n.UTC().Format(time.RFC3339Nano)
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
