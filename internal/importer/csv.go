// Package importer loads tabular data from files into wrangle tables.
//
// It supports delimited text (CSV/TSV), JSON, XML, XLSX workbooks, SQLite
// databases and shapefile attribute tables, auto-detecting delimiters,
// headers, encodings and column types to minimize manual configuration.
// Damaged delimited or JSON input can be repaired with the fuzzy importer.
//
// Features:
//   - Auto-detect delimiter: ',', ';', '\t', '|' (configurable)
//   - Auto-detect header row (configurable override)
//   - Encoding: UTF-8, UTF-8 BOM, UTF-16LE/BE (BOM-based)
//   - Transparent GZIP input
//   - Smart type inference (INT, FLOAT, BOOL, TIME, UUID, TEXT)
//
// Example:
//
//	f, _ := os.Open("data.csv")
//	tbl, result, err := importer.ImportCSV(f, "visits", nil)
//	fmt.Printf("Imported %d rows with %d columns\n", result.RowsImported, len(result.ColumnNames))
package importer

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ImportOptions configures the importer behavior. All fields are optional.
type ImportOptions struct {
	// NullLiterals are treated as missing values (case-insensitive, trimmed).
	// Defaults: "", "null", "na", "n/a", "none", "#n/a"
	NullLiterals []string

	// HeaderMode controls header detection:
	//   "auto" (default)  → heuristic decides based on data analysis
	//   "present"         → first row is always treated as header
	//   "absent"          → first row is data, synthetic names generated (col_1, col_2, ...)
	HeaderMode string

	// DelimiterCandidates tested during auto-detection. Default: , ; \t |
	// Override to force specific delimiter(s).
	DelimiterCandidates []rune

	// TableName overrides the target table name (useful when importing from
	// stdin/pipes).
	TableName string

	// SampleBytes caps the amount of data used for detection (default 128KB).
	SampleBytes int

	// SampleRecords caps the number of records analyzed for detection (default 500).
	SampleRecords int

	// TypeInference controls automatic type detection (default true). When
	// disabled, every column is TEXT.
	TypeInference *bool

	// DateTimeFormats lists custom datetime formats to try during type
	// detection. Defaults include RFC3339, ISO8601, common US/EU formats.
	DateTimeFormats []string

	// StrictTypes fails the import when a cell does not match the detected
	// column type (default false: the cell falls back to its raw text).
	StrictTypes bool
}

// ImportResult returns metadata about one import operation.
type ImportResult struct {
	RowsImported int64           // Rows loaded into the table
	RowsSkipped  int64           // Rows dropped due to errors
	Delimiter    rune            // Detected or configured delimiter
	HadHeader    bool            // Whether a header row was detected/configured
	Encoding     string          // "utf-8", "utf-8-bom", "utf-16le", "utf-16be"
	ColumnNames  []string        // Final column names used
	ColumnTypes  []table.ColType // Detected column types
	Warnings     []string        // Non-fatal problems encountered during import
}

// ImportCSV loads delimited data (CSV/TSV) from a reader into a new table.
// The file format is detected automatically: gzip wrapping, text encoding,
// delimiter, header presence and column types.
func ImportCSV(src io.Reader, tableName string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)
	if opts.TableName != "" {
		tableName = opts.TableName
	}
	if tableName == "" {
		return nil, nil, fmt.Errorf("table name is required")
	}

	result := &ImportResult{}

	r := maybeGzip(src)

	// Detect encoding and convert everything to UTF-8 up front.
	br := bufio.NewReader(r)
	sampleBytes, _ := br.Peek(maxInt(opts.SampleBytes, 16))
	enc, hasBOM := detectEncoding(sampleBytes)
	result.Encoding = enc

	var rr io.Reader
	switch enc {
	case "utf-16le":
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		rr = transform.NewReader(br, dec)
	case "utf-16be":
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		rr = transform.NewReader(br, dec)
	default:
		if hasBOM {
			if _, err := br.Discard(3); err != nil {
				return nil, nil, fmt.Errorf("discard UTF-8 BOM: %w", err)
			}
		}
		rr = br
	}

	// Sample decoded text for delimiter and header detection.
	sr := bufio.NewReader(rr)
	peek := peekN(sr, opts.SampleBytes)
	lines := splitUniversal(string(peek))

	delim := detectDelimiter(lines, candidateDelims(opts.DelimiterCandidates))
	result.Delimiter = delim

	records := parseRecords(lines, delim, opts.SampleRecords)
	hasHeader := decideHeader(records, opts.HeaderMode)
	result.HadHeader = hasHeader

	csvr := csv.NewReader(sr)
	csvr.Comma = delim
	csvr.FieldsPerRecord = -1 // allow ragged rows
	csvr.LazyQuotes = true
	csvr.TrimLeadingSpace = true

	firstRec, err := csvr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("empty input")
		}
		return nil, nil, fmt.Errorf("read first record: %w", err)
	}

	var colNames []string
	var firstDataRow []string
	if hasHeader {
		colNames = sanitizeColumnNames(firstRec)
	} else {
		colNames = generateColumnNames(len(firstRec))
		firstDataRow = firstRec
	}
	result.ColumnNames = colNames

	allRecords := make([][]string, 0)
	if firstDataRow != nil {
		allRecords = append(allRecords, firstDataRow)
	}
	for {
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("read error: %v", err))
			continue
		}
		allRecords = append(allRecords, rec)
	}

	var colTypes []table.ColType
	if *opts.TypeInference {
		sampleSize := len(allRecords)
		if sampleSize > opts.SampleRecords {
			sampleSize = opts.SampleRecords
		}
		colTypes = inferColumnTypes(allRecords[:sampleSize], len(colNames), opts)
	} else {
		colTypes = make([]table.ColType, len(colNames))
		for i := range colTypes {
			colTypes[i] = table.TextType
		}
	}
	result.ColumnTypes = colTypes

	tbl := newTableFor(tableName, colNames, colTypes)
	imported, skipped, warnings := appendRecords(tbl, colTypes, allRecords, opts)
	result.RowsImported = imported
	result.RowsSkipped = skipped
	result.Warnings = append(result.Warnings, warnings...)
	if opts.StrictTypes && skipped > 0 {
		return nil, result, fmt.Errorf("%d rows failed type conversion", skipped)
	}
	return tbl, result, nil
}

func newTableFor(name string, colNames []string, colTypes []table.ColType) *table.Table {
	cols := make([]table.Column, len(colNames))
	for i, n := range colNames {
		cols[i] = table.Column{Name: n, Type: colTypes[i]}
	}
	return table.NewTable(name, cols)
}

// appendRecords converts raw string records per the detected column types and
// appends them to the table. Short rows are padded with nil.
func appendRecords(tbl *table.Table, colTypes []table.ColType, records [][]string, opts *ImportOptions) (imported, skipped int64, warnings []string) {
	for rowNum, rec := range records {
		row := make([]any, len(colTypes))
		ok := true
		for i := range colTypes {
			if i >= len(rec) {
				continue // short row: missing cells stay nil
			}
			v, err := convertValue(rec[i], colTypes[i], opts.DateTimeFormats, opts.NullLiterals)
			if err != nil {
				if opts.StrictTypes {
					warnings = append(warnings, fmt.Sprintf("row %d col %d: %v", rowNum+1, i+1, err))
					ok = false
					break
				}
				v = strings.TrimSpace(rec[i]) // fall back to the raw text
			}
			row[i] = v
		}
		if !ok {
			skipped++
			continue
		}
		if err := tbl.AppendRow(row); err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d: %v", rowNum+1, err))
			skipped++
			continue
		}
		imported++
	}
	return imported, skipped, warnings
}

func applyDefaults(o *ImportOptions) {
	if len(o.NullLiterals) == 0 {
		o.NullLiterals = []string{"", "null", "na", "n/a", "none", "#n/a"}
	}
	if o.HeaderMode == "" {
		o.HeaderMode = "auto"
	}
	if len(o.DelimiterCandidates) == 0 {
		o.DelimiterCandidates = []rune{',', ';', '\t', '|'}
	}
	if o.SampleBytes <= 0 {
		o.SampleBytes = 128 * 1024
	}
	if o.SampleRecords <= 0 {
		o.SampleRecords = 500
	}
	if len(o.DateTimeFormats) == 0 {
		o.DateTimeFormats = []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02",
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"01/02/2006",
			"01/02/2006 15:04:05",
			"02.01.2006",
			"02.01.2006 15:04:05",
		}
	}
	if o.TypeInference == nil {
		def := true
		o.TypeInference = &def
	}
}

func maybeGzip(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if len(magic) >= 2 && magic[0] == 0x1F && magic[1] == 0x8B {
		gr, err := gzip.NewReader(br)
		if err == nil {
			return gr
		}
	}
	return br
}

func detectEncoding(b []byte) (enc string, hasUTF8BOM bool) {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return "utf-8-bom", true
	}
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		return "utf-16le", false
	}
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		return "utf-16be", false
	}
	return "utf-8", false
}

func candidateDelims(c []rune) []rune {
	out := make([]rune, 0, len(c))
	for _, r := range c {
		if r != 0 {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []rune{',', ';', '\t', '|'}
	}
	return out
}

func peekN(br *bufio.Reader, n int) []byte {
	if n <= 0 {
		n = 1
	}
	b, _ := br.Peek(n)
	return b
}

func splitUniversal(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); {
		switch s[i] {
		case '\r':
			out = append(out, s[start:i])
			i++
			if i < len(s) && s[i] == '\n' {
				i++
			}
			start = i
		case '\n':
			out = append(out, s[start:i])
			i++
			start = i
		default:
			i++
		}
	}
	if start <= len(s) {
		out = append(out, s[start:])
	}
	if len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func parseRecords(lines []string, delim rune, maxRecs int) [][]string {
	var out [][]string
	for _, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		out = append(out, naiveSplitOutsideQuotes(ln, delim))
		if maxRecs > 0 && len(out) >= maxRecs {
			break
		}
	}
	return out
}

// detectDelimiter scores each candidate by the consistency of its per-line
// field counts: the candidate with the lowest standard deviation (ties broken
// by more fields) wins.
func detectDelimiter(lines []string, cands []rune) rune {
	type score struct {
		cand   rune
		stdev  float64
		fields int
	}
	var best *score

	for _, cand := range cands {
		var counts []int
		seen := 0
		for _, ln := range lines {
			if strings.TrimSpace(ln) == "" {
				continue
			}
			if seen >= 200 {
				break
			}
			counts = append(counts, countDelimsOutsideQuotes(ln, cand)+1)
			seen++
		}
		if len(counts) == 0 {
			continue
		}
		_, sd := meanStd(counts)
		fields := mode(counts)
		if fields <= 1 {
			continue
		}
		sc := score{cand: cand, stdev: sd, fields: fields}
		if best == nil || sc.stdev < best.stdev ||
			(math.Abs(sc.stdev-best.stdev) < 1e-9 && sc.fields > best.fields) {
			cp := sc
			best = &cp
		}
	}
	if best != nil {
		return best.cand
	}
	return ','
}

func countDelimsOutsideQuotes(ln string, delim rune) int {
	inQ := false
	count := 0
	for i, w := 0, 0; i < len(ln); i += w {
		r, size := utf8.DecodeRuneInString(ln[i:])
		w = size
		if r == '"' {
			peek, _ := utf8.DecodeRuneInString(ln[i+w:])
			if inQ && peek == '"' {
				i += w
				continue
			}
			inQ = !inQ
			continue
		}
		if !inQ && r == delim {
			count++
		}
	}
	return count
}

func naiveSplitOutsideQuotes(ln string, delim rune) []string {
	var out []string
	var sb strings.Builder
	inQ := false

	for i := 0; i < len(ln); {
		r, w := utf8.DecodeRuneInString(ln[i:])
		i += w
		if r == '\r' || r == '\n' {
			break
		}
		if r == '"' {
			if inQ {
				if i < len(ln) {
					r2, w2 := utf8.DecodeRuneInString(ln[i:])
					if r2 == '"' {
						i += w2
						sb.WriteRune('"')
						continue
					}
				}
				inQ = false
				continue
			} else if sb.Len() == 0 {
				inQ = true
				continue
			}
		}
		if !inQ && r == delim {
			out = append(out, sb.String())
			sb.Reset()
			continue
		}
		sb.WriteRune(r)
	}
	out = append(out, sb.String())
	return out
}

// decideHeader treats the first row as a header when most columns look
// textual there but numeric in the body.
func decideHeader(records [][]string, mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "present":
		return true
	case "absent":
		return false
	}

	if len(records) < 2 {
		return false
	}

	first := records[0]
	body := records[1:]
	cols := len(first)
	headerish := 0

	for c := 0; c < cols; c++ {
		headNum := looksNumeric(first[c])
		dataNum := 0
		rows := 0
		for _, r := range body {
			if c >= len(r) {
				continue
			}
			if looksNumeric(r[c]) {
				dataNum++
			}
			rows++
		}
		if rows > 0 && !headNum && float64(dataNum)/float64(rows) > 0.6 {
			headerish++
		}
	}
	return float64(headerish)/float64(cols) >= 0.5
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return false
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

func meanStd(vals []int) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += float64(v)
	}
	avg := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := float64(v) - avg
		ss += d * d
	}
	return avg, math.Sqrt(ss / float64(len(vals)))
}

func mode(vals []int) int {
	if len(vals) == 0 {
		return 0
	}
	m := map[int]int{}
	for _, v := range vals {
		m[v]++
	}
	type kv struct{ v, c int }
	var arr []kv
	for v, c := range m {
		arr = append(arr, kv{v, c})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].c == arr[j].c {
			return arr[i].v > arr[j].v
		}
		return arr[i].c > arr[j].c
	})
	return arr[0].v
}

func sanitizeColumnNames(h []string) []string {
	out := make([]string, len(h))
	seen := map[string]int{}
	for i, s := range h {
		s = strings.TrimSpace(s)
		if s == "" {
			s = fmt.Sprintf("col_%d", i+1)
		}
		s = strings.Map(func(r rune) rune {
			if r == ' ' || r == '-' || r == '.' || r == '/' {
				return '_'
			}
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || r == '_' {
				return r
			}
			return '_'
		}, s)
		// Duplicate headers get a numeric suffix so lookups stay unambiguous.
		lc := strings.ToLower(s)
		if n, dup := seen[lc]; dup {
			seen[lc] = n + 1
			s = fmt.Sprintf("%s_%d", s, n+1)
			lc = strings.ToLower(s)
		}
		seen[lc] = 1
		out[i] = s
	}
	return out
}

func generateColumnNames(n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fmt.Sprintf("col_%d", i+1)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
