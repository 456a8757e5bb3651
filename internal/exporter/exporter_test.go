package exporter

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

func sampleTable(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.NewTable("people", []table.Column{
		{Name: "id", Type: table.IntType},
		{Name: "name", Type: table.StringType},
		{Name: "score", Type: table.FloatType},
	})
	rows := [][]any{
		{int64(1), "alice", 91.5},
		{int64(2), "bob", nil},
		{int64(3), "carol", 77.25},
	}
	for _, r := range rows {
		if err := tbl.AppendRow(r); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	return tbl
}

func TestExportCSV(t *testing.T) {
	tbl := sampleTable(t)

	var buf bytes.Buffer
	if err := ExportCSV(&buf, tbl, Options{}); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	want := "id,name,score\n1,alice,91.5\n2,bob,\n3,carol,77.25\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}

	buf.Reset()
	if err := ExportCSV(&buf, tbl, Options{CSVNoHeader: true, CSVDelimiter: ';'}); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if got := buf.String(); !strings.HasPrefix(got, "1;alice;91.5\n") {
		t.Errorf("unexpected delimited output %q", got)
	}
}

func TestExportJSON(t *testing.T) {
	tbl := sampleTable(t)
	var buf bytes.Buffer
	if err := ExportJSON(&buf, tbl, Options{}); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	got := buf.String()
	for _, frag := range []string{`"id":1`, `"name":"bob"`, `"score":null`} {
		if !strings.Contains(got, frag) {
			t.Errorf("output missing %s: %s", frag, got)
		}
	}
}

func TestExportXML(t *testing.T) {
	tbl := sampleTable(t)
	var buf bytes.Buffer
	if err := ExportXML(&buf, tbl); err != nil {
		t.Fatalf("ExportXML: %v", err)
	}
	got := buf.String()
	for _, frag := range []string{"<name>alice</name>", "<id>3</id>"} {
		if !strings.Contains(got, frag) {
			t.Errorf("output missing %s: %s", frag, got)
		}
	}
}

func TestExportLaTeX(t *testing.T) {
	tbl := sampleTable(t)
	var buf bytes.Buffer
	err := ExportLaTeX(&buf, tbl, LaTeXOptions{Caption: "People", Label: "tab:people"})
	if err != nil {
		t.Fatalf("ExportLaTeX: %v", err)
	}
	got := buf.String()
	for _, frag := range []string{
		"\\begin{tabular}{rlr}",
		"\\textbf{id} & \\textbf{name} & \\textbf{score}",
		"1 & alice & 91.5",
		"\\caption{People}",
		"\\label{tab:people}",
	} {
		if !strings.Contains(got, frag) {
			t.Errorf("output missing %q:\n%s", frag, got)
		}
	}
}

func TestValueCountsLaTeX(t *testing.T) {
	tbl := table.NewTable("t", []table.Column{{Name: "city", Type: table.StringType}})
	for _, v := range []string{"berlin", "paris", "berlin", "rome", "berlin", "paris"} {
		tbl.AppendRow([]any{v})
	}
	got, err := ValueCountsLaTeX(tbl, "city", LaTeXOptions{Caption: "Cities"}, true, true)
	if err != nil {
		t.Fatalf("ValueCountsLaTeX: %v", err)
	}
	for _, frag := range []string{
		"berlin & 3 & 50.0\\%",
		"paris & 2",
		"Total & 6 & 100\\%",
		"\\caption{Cities}",
	} {
		if !strings.Contains(got, frag) {
			t.Errorf("output missing %q:\n%s", frag, got)
		}
	}
	if berlin, paris := strings.Index(got, "berlin"), strings.Index(got, "paris"); berlin > paris {
		t.Error("rows not sorted by descending count")
	}

	if _, err := ValueCountsLaTeX(tbl, "nope", LaTeXOptions{}, false, false); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestCrosstabLaTeX(t *testing.T) {
	tbl := table.NewTable("t", []table.Column{
		{Name: "sex", Type: table.StringType},
		{Name: "city", Type: table.StringType},
	})
	rows := [][]any{
		{"f", "berlin"}, {"f", "paris"}, {"m", "berlin"},
		{"m", "berlin"}, {"f", "berlin"},
	}
	for _, r := range rows {
		tbl.AppendRow(r)
	}
	got, err := CrosstabLaTeX(tbl, "sex", "city", LaTeXOptions{}, true)
	if err != nil {
		t.Fatalf("CrosstabLaTeX: %v", err)
	}
	for _, frag := range []string{
		"\\textbf{sex} & \\textbf{berlin} & \\textbf{paris} & \\textbf{Total}",
		"f & 3 & 1 & 4",
		"m & 2 & 0 & 2",
		"Total & 5 & 1 & 6",
	} {
		if !strings.Contains(got, frag) {
			t.Errorf("output missing %q:\n%s", frag, got)
		}
	}
}

func TestFixLaTeX(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"space after ampersand", "a &b \\\\", "a & b \\\\"},
		{"leading zero", "p = .043 & .197", "p = 0.043 & 0.197"},
		{"round long decimals", "& 3.14159 \\\\", "& 3.142 \\\\"},
		{"thousands separators", "n = 1234567 \\\\", "n = 1,234,567 \\\\"},
		{"short numbers untouched", "n = 123 & 4.2", "n = 123 & 4.2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FixLaTeX(tc.in); got != tc.want {
				t.Errorf("FixLaTeX(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestGroupThousands(t *testing.T) {
	cases := map[string]string{
		"999":       "999",
		"1000":      "1,000",
		"1234567":   "1,234,567",
		"-45000":    "-45,000",
		"1234.5678": "1,234.5678",
	}
	for in, want := range cases {
		if got := groupThousands(in); got != want {
			t.Errorf("groupThousands(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateTableSQL(t *testing.T) {
	tbl := table.NewTable("people", []table.Column{
		{Name: "id", Type: table.IntType},
		{Name: "name", Type: table.StringType},
		{Name: "score", Type: table.FloatType},
	})

	cases := []struct {
		dialect Dialect
		want    string
	}{
		{DialectSQLite, `CREATE TABLE IF NOT EXISTS "people" ("id" INTEGER, "name" TEXT, "score" REAL);`},
		{DialectPostgres, `CREATE TABLE IF NOT EXISTS "people" ("id" BIGINT, "name" TEXT, "score" DOUBLE PRECISION);`},
		{DialectMySQL, "CREATE TABLE IF NOT EXISTS `people` (`id` BIGINT, `name` TEXT, `score` DOUBLE);"},
	}
	for _, tc := range cases {
		if got := CreateTableSQL(tbl, tc.dialect); got != tc.want {
			t.Errorf("dialect %d: got %s, want %s", tc.dialect, got, tc.want)
		}
	}
}

func TestInsertSQL(t *testing.T) {
	tbl := sampleTable(t)

	stmts := InsertSQL(tbl, DialectSQLite, 2)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], `(1, 'alice', 91.5),`) {
		t.Errorf("first batch missing row: %s", stmts[0])
	}
	if !strings.Contains(stmts[0], "(2, 'bob', NULL)") {
		t.Errorf("NULL not rendered: %s", stmts[0])
	}
	if !strings.Contains(stmts[1], "(3, 'carol', 77.25)") {
		t.Errorf("second batch wrong: %s", stmts[1])
	}

	t.Run("quote escaping", func(t *testing.T) {
		tq := table.NewTable("q", []table.Column{{Name: "s", Type: table.StringType}})
		tq.AppendRow([]any{"it's"})
		stmts := InsertSQL(tq, DialectSQLite, 0)
		if len(stmts) != 1 || !strings.Contains(stmts[0], "('it''s')") {
			t.Errorf("quote not doubled: %v", stmts)
		}
	})

	t.Run("empty table", func(t *testing.T) {
		te := table.NewTable("e", []table.Column{{Name: "x", Type: table.IntType}})
		if stmts := InsertSQL(te, DialectSQLite, 0); stmts != nil {
			t.Errorf("expected nil for empty table, got %v", stmts)
		}
	})
}

func TestExportSQLiteRoundTrip(t *testing.T) {
	tbl := sampleTable(t)
	path := filepath.Join(t.TempDir(), "out.db")
	if err := ExportSQLite(path, tbl); err != nil {
		t.Fatalf("ExportSQLite: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "people"`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("row count = %d, want 3", n)
	}

	var name string
	var score sql.NullFloat64
	if err := db.QueryRow(`SELECT "name", "score" FROM "people" WHERE "id" = 2`).Scan(&name, &score); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "bob" || score.Valid {
		t.Errorf("got name=%q score=%v, want bob/NULL", name, score)
	}
}

func TestExportXLSX(t *testing.T) {
	tbl := sampleTable(t)
	var buf bytes.Buffer
	if err := ExportXLSX(&buf, tbl); err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}
	// xlsx files are zip archives
	if buf.Len() < 4 || buf.Bytes()[0] != 'P' || buf.Bytes()[1] != 'K' {
		t.Error("output is not a zip archive")
	}
}
