package importer

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ImportFile detects the file format from its extension (.gz wrapping is
// transparent) and imports it into a new table. The table name defaults to
// the sanitized file base name.
func ImportFile(filePath string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	tableName := ""
	if opts != nil && opts.TableName != "" {
		tableName = opts.TableName
	} else {
		base := filepath.Base(filePath)
		tableName = sanitizeTableName(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == ".gz" {
		base := strings.TrimSuffix(filePath, ".gz")
		ext = strings.ToLower(filepath.Ext(base))
		tableName = sanitizeTableName(strings.TrimSuffix(filepath.Base(base), filepath.Ext(base)))
		if opts != nil && opts.TableName != "" {
			tableName = opts.TableName
		}
	}

	switch ext {
	case ".xlsx":
		return ImportXLSXFile(filePath, "", opts)
	case ".db", ".sqlite", ".sqlite3":
		return nil, nil, fmt.Errorf("SQLite files hold multiple tables; use ImportSQLite")
	case ".shp":
		return ImportShapefile(filePath, tableName, opts)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	switch ext {
	case ".csv", ".txt":
		return ImportCSV(f, tableName, opts)
	case ".tsv", ".tab":
		forced := cloneOptions(opts)
		forced.DelimiterCandidates = []rune{'\t'}
		return ImportCSV(f, tableName, forced)
	case ".json":
		return ImportJSON(f, tableName, opts)
	case ".jsonl", ".ndjson":
		return ImportJSONLines(f, tableName, opts)
	case ".xml":
		return ImportXML(f, tableName, opts)
	default:
		return importByContent(f, tableName, opts)
	}
}

// OpenFile imports one file and returns a workspace holding its table.
func OpenFile(filePath string, opts *ImportOptions) (*table.Workspace, string, error) {
	tbl, _, err := ImportFile(filePath, opts)
	if err != nil {
		return nil, "", err
	}
	ws := table.NewWorkspace()
	ws.Put(tbl)
	return ws, tbl.Name, nil
}

// importByContent sniffs the leading bytes when the extension is unknown.
func importByContent(f *os.File, tableName string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	br := bufio.NewReader(f)
	peek, _ := br.Peek(512)
	trimmed := strings.TrimSpace(string(peek))

	rewind := func() error {
		_, err := f.Seek(0, io.SeekStart)
		return err
	}

	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		if err := rewind(); err != nil {
			return nil, nil, err
		}
		return ImportJSON(f, tableName, opts)
	}
	if strings.HasPrefix(trimmed, "<?xml") || strings.HasPrefix(trimmed, "<") {
		if err := rewind(); err != nil {
			return nil, nil, err
		}
		return ImportXML(f, tableName, opts)
	}
	if err := rewind(); err != nil {
		return nil, nil, err
	}
	return ImportCSV(f, tableName, opts)
}

func cloneOptions(opts *ImportOptions) *ImportOptions {
	if opts == nil {
		return &ImportOptions{}
	}
	cp := *opts
	return &cp
}

// sanitizeTableName converts a filename to a valid table name.
func sanitizeTableName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
	name = strings.TrimLeftFunc(name, func(r rune) bool {
		return r >= '0' && r <= '9'
	})
	if name == "" {
		name = "imported_table"
	}
	return name
}

// ImportJSON loads JSON into a new table. Two layouts are supported:
//
//   - array of objects: [{"id": 1, "name": "Alice"}, ...]
//   - object of arrays: {"id": [1, 2], "name": ["Alice", "Bob"]}
//
// Column order is the first record's key order for arrays of objects
// (alphabetical, since JSON objects are unordered) and alphabetical for
// objects of arrays.
func ImportJSON(src io.Reader, tableName string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)
	if opts.TableName != "" {
		tableName = opts.TableName
	}

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, nil, fmt.Errorf("read JSON: %w", err)
	}
	trimmed := strings.TrimSpace(string(raw))

	switch {
	case strings.HasPrefix(trimmed, "["):
		var records []map[string]any
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, nil, fmt.Errorf("decode JSON array: %w", err)
		}
		return tableFromRecords(tableName, records, opts)
	case strings.HasPrefix(trimmed, "{"):
		var columns map[string][]any
		if err := json.Unmarshal(raw, &columns); err == nil {
			return tableFromColumns(tableName, columns, opts)
		}
		// A single object becomes a one-row table.
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, nil, fmt.Errorf("decode JSON object: %w", err)
		}
		return tableFromRecords(tableName, []map[string]any{rec}, opts)
	default:
		return nil, nil, fmt.Errorf("unsupported JSON layout: expected array or object")
	}
}

// ImportJSONLines loads line-delimited JSON objects (JSONL/NDJSON).
func ImportJSONLines(src io.Reader, tableName string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)
	if opts.TableName != "" {
		tableName = opts.TableName
	}

	var records []map[string]any
	var warnings []string
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read JSON lines: %w", err)
	}
	tbl, result, err := tableFromRecords(tableName, records, opts)
	if err != nil {
		return nil, nil, err
	}
	result.Warnings = append(result.Warnings, warnings...)
	return tbl, result, nil
}

func tableFromRecords(tableName string, records []map[string]any, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("no records found in JSON")
	}

	keys := map[string]bool{}
	for _, rec := range records {
		for k := range rec {
			keys[k] = true
		}
	}
	colNames := make([]string, 0, len(keys))
	for k := range keys {
		colNames = append(colNames, k)
	}
	sort.Strings(colNames)
	colNames = sanitizeColumnNames(colNames)

	// Keep the raw key for lookups: sanitization may rename columns.
	rawNames := make([]string, 0, len(keys))
	for k := range keys {
		rawNames = append(rawNames, k)
	}
	sort.Strings(rawNames)

	rows := make([][]string, len(records))
	for ri, rec := range records {
		row := make([]string, len(rawNames))
		for ci, key := range rawNames {
			if v, ok := rec[key]; ok && v != nil {
				row[ci] = stringifyJSONValue(v)
			}
		}
		rows[ri] = row
	}
	return buildInferredTable(tableName, colNames, rows, opts)
}

func tableFromColumns(tableName string, columns map[string][]any, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("no columns found in JSON")
	}
	rawNames := make([]string, 0, len(columns))
	n := 0
	for k, vals := range columns {
		rawNames = append(rawNames, k)
		if len(vals) > n {
			n = len(vals)
		}
	}
	sort.Strings(rawNames)
	colNames := sanitizeColumnNames(append([]string(nil), rawNames...))

	rows := make([][]string, n)
	for ri := 0; ri < n; ri++ {
		row := make([]string, len(rawNames))
		for ci, key := range rawNames {
			vals := columns[key]
			if ri < len(vals) && vals[ri] != nil {
				row[ci] = stringifyJSONValue(vals[ri])
			}
		}
		rows[ri] = row
	}
	return buildInferredTable(tableName, colNames, rows, opts)
}

// stringifyJSONValue renders a decoded JSON value for type inference. Nested
// objects and arrays keep their JSON text so they survive as JSON columns.
func stringifyJSONValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// json.Unmarshal decodes all numbers as float64; print integral
		// values without a decimal point so they can infer as INT.
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	case bool:
		return fmt.Sprintf("%v", x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

func buildInferredTable(tableName string, colNames []string, rows [][]string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	result := &ImportResult{Encoding: "utf-8", ColumnNames: colNames}

	var colTypes []table.ColType
	if *opts.TypeInference {
		sampleSize := len(rows)
		if sampleSize > opts.SampleRecords {
			sampleSize = opts.SampleRecords
		}
		colTypes = inferColumnTypes(rows[:sampleSize], len(colNames), opts)
	} else {
		colTypes = make([]table.ColType, len(colNames))
		for i := range colTypes {
			colTypes[i] = table.TextType
		}
	}
	result.ColumnTypes = colTypes

	tbl := newTableFor(tableName, colNames, colTypes)
	imported, skipped, warnings := appendRecords(tbl, colTypes, rows, opts)
	result.RowsImported = imported
	result.RowsSkipped = skipped
	result.Warnings = append(result.Warnings, warnings...)
	return tbl, result, nil
}

// xmlRecord is one flat record element: attributes and child elements both
// become columns.
type xmlRecord struct {
	XMLName xml.Name
	Attrs   []xml.Attr  `xml:",any,attr"`
	Nodes   []xmlNode `xml:",any"`
}

type xmlNode struct {
	XMLName xml.Name
	Content string `xml:",chardata"`
}

// ImportXML loads row-based XML into a new table. Both attribute and child
// element layouts are supported:
//
//	<root>
//	  <record id="1" name="Alice" />
//	  <record><id>2</id><name>Bob</name></record>
//	</root>
func ImportXML(src io.Reader, tableName string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)
	if opts.TableName != "" {
		tableName = opts.TableName
	}

	dec := xml.NewDecoder(src)

	// Find the document element, then treat each child element as a record.
	var depth int
	var records []map[string]any
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				var rec xmlRecord
				if err := dec.DecodeElement(&rec, &t); err != nil {
					return nil, nil, fmt.Errorf("decode XML record: %w", err)
				}
				depth--
				m := map[string]any{}
				for _, a := range rec.Attrs {
					m[a.Name.Local] = a.Value
				}
				for _, n := range rec.Nodes {
					m[n.XMLName.Local] = strings.TrimSpace(n.Content)
				}
				if len(m) > 0 {
					records = append(records, m)
				}
			}
		case xml.EndElement:
			depth--
		}
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("no records found in XML")
	}
	return tableFromRecords(tableName, records, opts)
}
