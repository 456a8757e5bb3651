// Command wrangle applies conditional replace clauses to tabular files.
//
//	wrangle -in visits.csv -replace "status = 'churned' if visits == 0 & visits[n-1] == 0" -out clean.csv
//
// Clauses use the surface syntax "COLUMN = VALUE if CONDITION"; the
// condition is optional. With -remote the clauses run on a server
// instead of a local file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/SimonWaldherr/wrangle/internal/engine"
	"github.com/SimonWaldherr/wrangle/internal/exporter"
	"github.com/SimonWaldherr/wrangle/internal/importer"
	"github.com/SimonWaldherr/wrangle/internal/pipeline"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

type replaceClause struct {
	Column    string
	Value     string
	Condition string
}

// clauseList collects repeated -replace flags.
type clauseList []replaceClause

func (c *clauseList) String() string { return fmt.Sprintf("%d clauses", len(*c)) }

func (c *clauseList) Set(s string) error {
	clause, err := parseClause(s)
	if err != nil {
		return err
	}
	*c = append(*c, clause)
	return nil
}

// parseClause splits "COLUMN = VALUE if CONDITION" into its parts. The
// "if" keyword and the assignment "=" are only recognized outside
// string literals.
func parseClause(s string) (replaceClause, error) {
	body, cond := splitKeyword(s, "if")
	eq := indexOutsideQuotes(body, '=')
	if eq < 0 {
		return replaceClause{}, fmt.Errorf("clause %q: expected COLUMN = VALUE [if CONDITION]", s)
	}
	col := strings.TrimSpace(body[:eq])
	val := strings.TrimSpace(body[eq+1:])
	if col == "" || val == "" {
		return replaceClause{}, fmt.Errorf("clause %q: empty column or value", s)
	}
	return replaceClause{Column: col, Value: val, Condition: strings.TrimSpace(cond)}, nil
}

// splitKeyword splits s at the first standalone keyword occurrence
// outside quotes, returning the text before and after it.
func splitKeyword(s, keyword string) (string, string) {
	inQuote := byte(0)
	for i := 0; i+len(keyword) <= len(s); i++ {
		ch := s[i]
		if inQuote != 0 {
			if ch == inQuote {
				inQuote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			inQuote = ch
			continue
		}
		if !strings.EqualFold(s[i:i+len(keyword)], keyword) {
			continue
		}
		beforeOK := i == 0 || s[i-1] == ' ' || s[i-1] == '\t'
		afterIdx := i + len(keyword)
		afterOK := afterIdx == len(s) || s[afterIdx] == ' ' || s[afterIdx] == '\t'
		if beforeOK && afterOK && i > 0 {
			return s[:i], s[afterIdx:]
		}
	}
	return s, ""
}

func indexOutsideQuotes(s string, target byte) int {
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inQuote != 0 {
			if ch == inQuote {
				inQuote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"':
			inQuote = ch
		case ch == target:
			// skip comparison operators ==, !=, <=, >=
			if ch == '=' {
				if i+1 < len(s) && s[i+1] == '=' {
					i++
					continue
				}
				if i > 0 && (s[i-1] == '!' || s[i-1] == '<' || s[i-1] == '>' || s[i-1] == '=') {
					continue
				}
			}
			return i
		}
	}
	return -1
}

func main() {
	var clauses clauseList
	in := flag.String("in", "", "Input file (csv, json, xml, xlsx, db, shp; .gz accepted)")
	out := flag.String("out", "", "Output file; format follows the extension")
	tableName := flag.String("table", "", "Table name (defaults to the input file name)")
	mode := flag.String("mode", "table", "Stdout format when -out is empty: csv|json|table")
	pipelineFile := flag.String("pipeline", "", "Run a YAML pipeline instead of -replace clauses")
	remote := flag.String("remote", "", "Server address; clauses run there via gRPC")
	flag.Var(&clauses, "replace", `Replace clause "COLUMN = VALUE if CONDITION" (repeatable)`)
	flag.Parse()

	if err := run(*in, *out, *tableName, *mode, *pipelineFile, *remote, clauses); err != nil {
		fmt.Fprintln(os.Stderr, "wrangle:", err)
		os.Exit(1)
	}
}

func run(in, out, tableName, mode, pipelineFile, remote string, clauses clauseList) error {
	if remote != "" {
		return runRemote(remote, tableName, clauses)
	}

	if pipelineFile != "" {
		p, err := pipeline.Load(pipelineFile)
		if err != nil {
			return err
		}
		ws := table.NewWorkspace()
		if in != "" {
			if err := importInto(ws, in, tableName); err != nil {
				return err
			}
		}
		report, err := p.Run(context.Background(), ws)
		if err != nil {
			return err
		}
		for _, step := range report.Steps {
			if step.Op == "replace" {
				fmt.Printf("(%d real changes made)\n", step.Changed)
			}
		}
		return nil
	}

	if in == "" {
		return fmt.Errorf("missing -in (or -pipeline, or -remote)")
	}

	t, _, err := importer.ImportFile(in, &importer.ImportOptions{TableName: tableName})
	if err != nil {
		return err
	}

	for _, cl := range clauses {
		next, changed, err := engine.Replace(t, cl.Column, cl.Value, cl.Condition)
		if err != nil {
			return err
		}
		fmt.Printf("(%d real changes made)\n", changed)
		t = next
	}

	if out != "" {
		return writeFile(out, t)
	}
	return render(os.Stdout, t, mode)
}

func importInto(ws *table.Workspace, path, tableName string) error {
	t, _, err := importer.ImportFile(path, &importer.ImportOptions{TableName: tableName})
	if err != nil {
		return err
	}
	ws.Put(t)
	return nil
}

func writeFile(path string, t *table.Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return exporter.ExportXLSXFile(path, t)
	case ".db", ".sqlite", ".sqlite3":
		return exporter.ExportSQLite(path, t)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = exporter.ExportJSON(f, t, exporter.Options{PrettyJSON: true})
	case ".xml":
		err = exporter.ExportXML(f, t)
	case ".tex":
		err = exporter.ExportLaTeX(f, t, exporter.LaTeXOptions{Caption: t.Name})
	case ".gob":
		err = exporter.ExportGOB(f, t)
	default:
		err = exporter.ExportCSV(f, t, exporter.Options{})
	}
	if err != nil {
		return err
	}
	return f.Sync()
}

func render(w io.Writer, t *table.Table, mode string) error {
	switch mode {
	case "csv":
		return exporter.ExportCSV(w, t, exporter.Options{})
	case "json":
		return exporter.ExportJSON(w, t, exporter.Options{PrettyJSON: true})
	default:
		return renderColumns(w, t)
	}
}

func renderColumns(w io.Writer, t *table.Table) error {
	names := t.ColumnNames()
	widths := make([]int, len(names))
	for i, n := range names {
		widths[i] = len(n)
	}
	cells := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		cells[r] = make([]string, len(names))
		for i := range names {
			s := "NULL"
			if i < len(row) && row[i] != nil {
				s = fmt.Sprintf("%v", row[i])
			}
			cells[r][i] = s
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}
	for i, n := range names {
		fmt.Fprintf(w, "%-*s  ", widths[i], n)
	}
	fmt.Fprintln(w)
	for i := range names {
		fmt.Fprintf(w, "%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)
	for _, row := range cells {
		for i, s := range row {
			fmt.Fprintf(w, "%-*s  ", widths[i], s)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Remote mode speaks the server's JSON-codec gRPC surface.

type jsonCodec struct{}

func (jsonCodec) Name() string                      { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)     { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type replaceRequest struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	Value     string `json:"value"`
	Condition string `json:"condition"`
}
type replaceResponse struct {
	Table    string `json:"table"`
	Changed  int    `json:"changed"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}
type tableInfo struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}
type listTablesResponse struct {
	Tables []tableInfo `json:"tables"`
}

func runRemote(addr, tableName string, clauses clauseList) error {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return err
	}
	defer conn.Close()
	ctx := context.Background()

	if len(clauses) == 0 {
		var resp listTablesResponse
		if err := conn.Invoke(ctx, "/wrangle.Wrangle/ListTables", &struct{}{}, &resp); err != nil {
			return err
		}
		for _, t := range resp.Tables {
			fmt.Printf("%s\t%d rows\t%d cols\n", t.Name, t.Rows, t.Cols)
		}
		return nil
	}

	if tableName == "" {
		return fmt.Errorf("-remote needs -table")
	}
	for _, cl := range clauses {
		req := &replaceRequest{Table: tableName, Column: cl.Column, Value: cl.Value, Condition: cl.Condition}
		var resp replaceResponse
		if err := conn.Invoke(ctx, "/wrangle.Wrangle/Replace", req, &resp); err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("%s", resp.Error)
		}
		fmt.Printf("(%d real changes made)\n", resp.Changed)
	}
	return nil
}
