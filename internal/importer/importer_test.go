package importer

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"
	"time"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

func TestImportCSVBasic(t *testing.T) {
	csv := "name,age,height\nAlice,30,1.70\nBob,25,1.82\n"
	tbl, res, err := ImportCSV(strings.NewReader(csv), "people", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !res.HadHeader {
		t.Error("header not detected")
	}
	if res.Delimiter != ',' {
		t.Errorf("delimiter = %q", res.Delimiter)
	}
	if got := tbl.ColumnNames(); len(got) != 3 || got[0] != "name" {
		t.Errorf("columns = %v", got)
	}
	wantTypes := []table.ColType{table.TextType, table.IntType, table.FloatType}
	for i, w := range wantTypes {
		if res.ColumnTypes[i] != w {
			t.Errorf("col %d type = %v, want %v", i, res.ColumnTypes[i], w)
		}
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("rows = %d", tbl.NumRows())
	}
	if !table.CellsEqual(tbl.Rows[0][1], int64(30)) || !table.CellsEqual(tbl.Rows[1][2], 1.82) {
		t.Errorf("cells = %v, %v", tbl.Rows[0][1], tbl.Rows[1][2])
	}
}

func TestImportCSVDelimiterDetection(t *testing.T) {
	cases := []struct {
		name  string
		data  string
		delim rune
	}{
		{"semicolon", "a;b;c\n1;2;3\n4;5;6\n", ';'},
		{"tab", "a\tb\n1\t2\n3\t4\n", '\t'},
		{"pipe", "a|b\n1|2\n3|4\n", '|'},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, res, err := ImportCSV(strings.NewReader(tc.data), "t", nil)
			if err != nil {
				t.Fatalf("import: %v", err)
			}
			if res.Delimiter != tc.delim {
				t.Errorf("delimiter = %q, want %q", res.Delimiter, tc.delim)
			}
		})
	}
}

func TestImportCSVGzipAndBOM(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("\xEF\xBB\xBFx,y\n1,2\n3,4\n"))
	gw.Close()

	tbl, res, err := ImportCSV(&buf, "t", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Encoding != "utf-8-bom" {
		t.Errorf("encoding = %q", res.Encoding)
	}
	if got := tbl.ColumnNames()[0]; got != "x" {
		t.Errorf("first column = %q (BOM not stripped?)", got)
	}
	if tbl.NumRows() != 2 {
		t.Errorf("rows = %d", tbl.NumRows())
	}
}

func TestImportCSVNullLiterals(t *testing.T) {
	csv := "a,b\n1,x\nNA,y\n3,null\n"
	tbl, _, err := ImportCSV(strings.NewReader(csv), "t", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tbl.Rows[1][0] != nil {
		t.Errorf("NA cell = %v, want nil", tbl.Rows[1][0])
	}
	if tbl.Rows[2][1] != nil {
		t.Errorf("null cell = %v, want nil", tbl.Rows[2][1])
	}
}

func TestImportCSVHeaderModes(t *testing.T) {
	data := "1,2\n3,4\n"
	tbl, res, err := ImportCSV(strings.NewReader(data), "t", &ImportOptions{HeaderMode: "absent"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.HadHeader {
		t.Error("absent mode detected a header")
	}
	if got := tbl.ColumnNames(); got[0] != "col_1" || got[1] != "col_2" {
		t.Errorf("columns = %v", got)
	}
	if tbl.NumRows() != 2 {
		t.Errorf("rows = %d", tbl.NumRows())
	}

	_, res, err = ImportCSV(strings.NewReader(data), "t", &ImportOptions{HeaderMode: "present"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !res.HadHeader {
		t.Error("present mode did not force a header")
	}
}

func TestImportCSVTimeInference(t *testing.T) {
	csv := "day,v\n2024-01-01,1\n2024-01-02,2\n"
	tbl, res, err := ImportCSV(strings.NewReader(csv), "t", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.ColumnTypes[0] != table.TimeType {
		t.Fatalf("day type = %v", res.ColumnTypes[0])
	}
	ts, ok := tbl.Rows[0][0].(time.Time)
	if !ok || ts.Year() != 2024 {
		t.Errorf("day cell = %#v", tbl.Rows[0][0])
	}
}

func TestSanitizeColumnNames(t *testing.T) {
	got := sanitizeColumnNames([]string{"First Name", "e-mail", "", "amount ($)", "x", "x"})
	want := []string{"First_Name", "e_mail", "col_3", "amount____", "x", "x_2"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("name %d = %q, want %q", i, got[i], w)
		}
	}
}

func TestImportJSONArrayOfObjects(t *testing.T) {
	data := `[{"id": 1, "name": "Alice"}, {"id": 2, "name": "Bob"}]`
	tbl, _, err := ImportJSON(strings.NewReader(data), "people", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("rows = %d", tbl.NumRows())
	}
	idx, err := tbl.ColIndex("id")
	if err != nil {
		t.Fatalf("id column: %v", err)
	}
	if !table.CellsEqual(tbl.Rows[0][idx], int64(1)) {
		t.Errorf("id cell = %v", tbl.Rows[0][idx])
	}
}

func TestImportJSONObjectOfArrays(t *testing.T) {
	data := `{"id": [1, 2, 3], "name": ["a", "b", "c"]}`
	tbl, _, err := ImportJSON(strings.NewReader(data), "t", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("rows = %d", tbl.NumRows())
	}
	idx, _ := tbl.ColIndex("name")
	if tbl.Rows[2][idx] != "c" {
		t.Errorf("name cell = %v", tbl.Rows[2][idx])
	}
}

func TestImportJSONLines(t *testing.T) {
	data := "{\"id\": 1}\n{\"id\": 2}\nnot json\n{\"id\": 3}\n"
	tbl, res, err := ImportJSONLines(strings.NewReader(data), "t", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tbl.NumRows() != 3 {
		t.Errorf("rows = %d", tbl.NumRows())
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestImportXML(t *testing.T) {
	data := `<root>
  <record id="1" name="Alice" />
  <record><id>2</id><name>Bob</name></record>
</root>`
	tbl, _, err := ImportXML(strings.NewReader(data), "t", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if tbl.NumRows() != 2 {
		t.Fatalf("rows = %d", tbl.NumRows())
	}
	idx, err := tbl.ColIndex("name")
	if err != nil {
		t.Fatalf("name column: %v", err)
	}
	if tbl.Rows[0][idx] != "Alice" || tbl.Rows[1][idx] != "Bob" {
		t.Errorf("names = %v, %v", tbl.Rows[0][idx], tbl.Rows[1][idx])
	}
}

func TestSanitizeTableName(t *testing.T) {
	cases := map[string]string{
		"my-data.v2":  "my_data_v2",
		"2024 visits": "_visits",
		"":            "imported_table",
		"123":         "imported_table",
	}
	for in, want := range cases {
		if got := sanitizeTableName(in); got != want {
			t.Errorf("sanitizeTableName(%q) = %q, want %q", in, got, want)
		}
	}
}
