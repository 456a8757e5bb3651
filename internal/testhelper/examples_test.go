package testhelper

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/wrangle/internal/engine"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

// Structure mirrors tests/examples.yml
type examplesFile struct {
	Tables map[string]struct {
		Cols []string        `yaml:"cols"`
		Rows [][]interface{} `yaml:"rows"`
	} `yaml:"tables"`

	Cases []struct {
		ID          string `yaml:"id"`
		Description string `yaml:"description"`
		Table       string `yaml:"table"`
		Column      string `yaml:"column"`
		Value       string `yaml:"value"`
		Condition   string `yaml:"condition"`
		Error       string `yaml:"error,omitempty"`
		Expected    struct {
			Changed int           `yaml:"changed"`
			Column  []interface{} `yaml:"column"`
		} `yaml:"expected"`
	} `yaml:"cases"`
}

func TestExamplesYAML(t *testing.T) {
	// Locate tests/examples.yml. When `go test` runs package tests the
	// working directory may be the package folder, so try a few candidate
	// relative paths and pick the first that exists.
	candidates := []string{
		filepath.Join("tests", "examples.yml"),
		filepath.Join("..", "..", "tests", "examples.yml"),
		filepath.Join("..", "..", "..", "tests", "examples.yml"),
	}
	var b []byte
	var found string
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			bb, err := os.ReadFile(p)
			if err == nil {
				b = bb
				found = p
				break
			}
		}
	}
	if found == "" {
		t.Fatalf("failed to find tests/examples.yml (tried: %v)", candidates)
	}
	var ex examplesFile
	if err := yaml.Unmarshal(b, &ex); err != nil {
		t.Fatalf("failed to parse examples.yml: %v", err)
	}

	ws := table.NewWorkspace()
	for tblName, spec := range ex.Tables {
		tbl, err := buildTable(tblName, spec.Cols, spec.Rows)
		if err != nil {
			t.Fatalf("failed to build table %s: %v", tblName, err)
		}
		ws.Put(tbl)
	}

	for _, c := range ex.Cases {
		c := c // capture
		t.Run(c.ID, func(t *testing.T) {
			src, err := ws.Get(c.Table)
			if err != nil {
				t.Fatalf("unknown table %s: %v", c.Table, err)
			}

			out, changed, err := engine.Replace(src, c.Column, c.Value, c.Condition)
			if c.Error != "" {
				if err == nil {
					t.Fatalf("expected %s error, got none", c.Error)
				}
				switch c.Error {
				case "missing-column":
					if !engine.IsMissingColumn(err) {
						t.Fatalf("expected missing-column error, got %v", err)
					}
				case "malformed":
					if !engine.IsMalformedExpression(err) {
						t.Fatalf("expected malformed-expression error, got %v", err)
					}
				default:
					t.Fatalf("unknown error kind %q in examples.yml", c.Error)
				}
				return
			}
			if err != nil {
				t.Fatalf("replace failed: %v", err)
			}

			if changed != c.Expected.Changed {
				t.Errorf("changed = %d, want %d", changed, c.Expected.Changed)
			}

			got, err := out.Column(c.Column)
			if err != nil {
				t.Fatalf("result column: %v", err)
			}
			if len(got) != len(c.Expected.Column) {
				t.Fatalf("row count differs: expected %d, got %d", len(c.Expected.Column), len(got))
			}
			for i, want := range c.Expected.Column {
				if !valueEqual(want, got[i]) {
					t.Errorf("row %d: expected=%v (%T) got=%v (%T)", i, want, want, got[i], got[i])
				}
			}
		})
	}
}

// buildTable infers simple column types from provided rows: prefer INT,
// then FLOAT, else TEXT.
func buildTable(name string, cols []string, rows [][]interface{}) (*table.Table, error) {
	tcols := make([]table.Column, len(cols))
	for i, c := range cols {
		colType := table.IntType
		for _, row := range rows {
			if i >= len(row) || row[i] == nil {
				continue
			}
			switch row[i].(type) {
			case int, int64:
			case float64:
				if colType == table.IntType {
					colType = table.FloatType
				}
			default:
				colType = table.StringType
			}
		}
		tcols[i] = table.Column{Name: c, Type: colType}
	}

	tbl := table.NewTable(name, tcols)
	for _, row := range rows {
		cells := make([]any, len(cols))
		for i := range cols {
			if i < len(row) {
				cells[i] = normalizeYAMLValue(row[i])
			}
		}
		if err := tbl.AppendRow(cells); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// yaml.v3 decodes integers as int; table cells use int64
func normalizeYAMLValue(v interface{}) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int64:
		return x
	}
	return v
}

func valueEqual(expected, got any) bool {
	if expected == nil || got == nil {
		return expected == nil && got == nil
	}
	switch e := expected.(type) {
	case int:
		switch g := got.(type) {
		case int64:
			return int64(e) == g
		case float64:
			return float64(e) == g
		}
	case float64:
		switch g := got.(type) {
		case float64:
			return e == g
		case int64:
			return e == float64(g)
		}
	case string:
		if g, ok := got.(string); ok {
			return e == g
		}
	case bool:
		if g, ok := got.(bool); ok {
			return e == g
		}
	}
	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", got)
}
