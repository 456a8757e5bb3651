// Package exporter writes wrangle tables to the formats the toolkit can
// later reload or hand off: CSV, JSON, XML, GOB snapshots, XLSX workbooks,
// SQLite databases, LaTeX tables and SQL scripts.
package exporter

import (
	"encoding/csv"
	"encoding/gob"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

func init() {
	// Register concrete cell types carried through any-typed rows.
	gob.Register(time.Time{})
	gob.Register(uuid.UUID{})
}

// Options controls exporter behavior.
type Options struct {
	PrettyJSON   bool
	CSVNoHeader  bool
	CSVDelimiter rune
}

func valueToString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	case time.Duration:
		return t.String()
	case uuid.UUID:
		return t.String()
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// ExportCSV writes the table as CSV. Column order is preserved; missing
// cells become empty fields.
func ExportCSV(w io.Writer, t *table.Table, opts Options) error {
	csvw := csv.NewWriter(w)
	if opts.CSVDelimiter != 0 {
		csvw.Comma = opts.CSVDelimiter
	}
	if !opts.CSVNoHeader {
		if err := csvw.Write(t.ColumnNames()); err != nil {
			return err
		}
	}
	for _, r := range t.Rows {
		row := make([]string, len(t.Cols))
		for i := range t.Cols {
			if i < len(r) {
				row[i] = valueToString(r[i])
			}
		}
		if err := csvw.Write(row); err != nil {
			return err
		}
	}
	csvw.Flush()
	return csvw.Error()
}

// ExportJSON writes the table as a JSON array of objects. UUID and time
// cells render as strings.
func ExportJSON(w io.Writer, t *table.Table, opts Options) error {
	enc := json.NewEncoder(w)
	if opts.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	out := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		m := make(map[string]any, len(t.Cols))
		for ci, c := range t.Cols {
			if ci < len(r) {
				m[c.Name] = table.NormalizeForJSON(r[ci])
			} else {
				m[c.Name] = nil
			}
		}
		out[i] = m
	}
	return enc.Encode(out)
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type xmlRow struct {
	Fields []xmlField `xml:",any"`
}

type xmlRows struct {
	XMLName xml.Name `xml:"rows"`
	Rows    []xmlRow `xml:"row"`
}

// ExportXML writes the table as simple XML:
// <rows><row><col>value</col>...</row>...</rows>
func ExportXML(w io.Writer, t *table.Table) error {
	xr := xmlRows{XMLName: xml.Name{Local: "rows"}, Rows: make([]xmlRow, 0, len(t.Rows))}
	for _, r := range t.Rows {
		xrRow := xmlRow{Fields: make([]xmlField, 0, len(t.Cols))}
		for ci, c := range t.Cols {
			var v any
			if ci < len(r) {
				v = r[ci]
			}
			xrRow.Fields = append(xrRow.Fields, xmlField{XMLName: xml.Name{Local: c.Name}, Value: valueToString(v)})
		}
		xr.Rows = append(xr.Rows, xrRow)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(xr); err != nil {
		return err
	}
	return enc.Flush()
}

// ExportGOB encodes the table schema and rows with gob. The decoding side
// should expect the same wrapper shape.
func ExportGOB(w io.Writer, t *table.Table) error {
	enc := gob.NewEncoder(w)
	wrapper := struct {
		Name string
		Cols []string
		Rows [][]any
	}{
		Name: t.Name,
		Cols: t.ColumnNames(),
		Rows: t.Rows,
	}
	return enc.Encode(wrapper)
}
