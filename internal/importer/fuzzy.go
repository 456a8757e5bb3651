package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// FuzzyImportOptions extends ImportOptions for damaged input: files exported
// by hand, wrong quoting, ragged rows, currency symbols inside numbers.
type FuzzyImportOptions struct {
	ImportOptions

	// MaxErrorRows is the number of unparseable rows tolerated before the
	// import gives up (default 100).
	MaxErrorRows int

	// TrimWhitespace trims each field before conversion (default true; set
	// KeepWhitespace to disable).
	KeepWhitespace bool

	// FixQuotes repairs stray or unbalanced quotes on a line (default true;
	// set KeepQuotes to disable).
	KeepQuotes bool

	// LenientNumbers strips currency symbols and thousands separators from
	// otherwise numeric fields (default true; set StrictNumbers to disable).
	StrictNumbers bool
}

// FuzzyImportCSV is a forgiving version of ImportCSV: it cleans the raw text
// first, pads or truncates ragged rows to the dominant width, tolerates a
// bounded number of broken rows and parses numbers leniently.
func FuzzyImportCSV(src io.Reader, tableName string, opts *FuzzyImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &FuzzyImportOptions{}
	}
	applyDefaults(&opts.ImportOptions)
	if opts.MaxErrorRows <= 0 {
		opts.MaxErrorRows = 100
	}
	if opts.TableName != "" {
		tableName = opts.TableName
	}
	if tableName == "" {
		return nil, nil, fmt.Errorf("table name is required")
	}

	raw, err := io.ReadAll(maybeGzip(src))
	if err != nil {
		return nil, nil, fmt.Errorf("read input: %w", err)
	}

	result := &ImportResult{Encoding: "utf-8"}

	lines := splitUniversal(string(raw))
	cleaned := make([]string, 0, len(lines))
	for _, ln := range lines {
		if !opts.KeepWhitespace {
			ln = strings.TrimRight(ln, " \t")
		}
		if strings.TrimSpace(ln) == "" {
			continue
		}
		if !opts.KeepQuotes {
			ln = fixStrayQuotes(ln)
		}
		cleaned = append(cleaned, ln)
	}
	if len(cleaned) == 0 {
		return nil, nil, fmt.Errorf("empty input")
	}

	delim := detectDelimiter(cleaned, candidateDelims(opts.DelimiterCandidates))
	result.Delimiter = delim

	records := make([][]string, 0, len(cleaned))
	for _, ln := range cleaned {
		records = append(records, naiveSplitOutsideQuotes(ln, delim))
	}

	// Normalize to the dominant column count: pad short rows, truncate long.
	widths := make([]int, len(records))
	for i, r := range records {
		widths[i] = len(r)
	}
	width := mode(widths)
	errRows := 0
	normalized := make([][]string, 0, len(records))
	for _, r := range records {
		if len(r) != width {
			errRows++
			if errRows > opts.MaxErrorRows {
				return nil, result, fmt.Errorf("too many malformed rows (%d)", errRows)
			}
		}
		switch {
		case len(r) < width:
			padded := make([]string, width)
			copy(padded, r)
			r = padded
		case len(r) > width:
			r = r[:width]
		}
		normalized = append(normalized, r)
	}
	if errRows > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d rows had a deviating field count", errRows))
	}

	hasHeader := decideHeader(normalized, opts.HeaderMode)
	result.HadHeader = hasHeader
	var colNames []string
	data := normalized
	if hasHeader {
		colNames = sanitizeColumnNames(normalized[0])
		data = normalized[1:]
	} else {
		colNames = generateColumnNames(width)
	}
	result.ColumnNames = colNames

	if !opts.StrictNumbers {
		for _, row := range data {
			for i, cell := range row {
				row[i] = normalizeLenientNumber(cell)
			}
		}
	}

	tbl, res2, err := buildInferredTable(tableName, colNames, data, &opts.ImportOptions)
	if err != nil {
		return nil, nil, err
	}
	res2.Delimiter = result.Delimiter
	res2.HadHeader = result.HadHeader
	res2.Warnings = append(result.Warnings, res2.Warnings...)
	return tbl, res2, nil
}

// fixStrayQuotes balances the double quotes on one line. A line with an odd
// quote count gets its last stray quote dropped, which recovers the common
// "unterminated field" export bug.
func fixStrayQuotes(ln string) string {
	if strings.Count(ln, `"`)%2 == 0 {
		return ln
	}
	idx := strings.LastIndex(ln, `"`)
	return ln[:idx] + ln[idx+1:]
}

var lenientNumberRe = regexp.MustCompile(`^[\s]*[-+]?[$€£]?[\d,. ]+%?[\s]*$`)

// normalizeLenientNumber strips currency symbols, spaces and thousands
// separators from number-looking fields so 1,234.50 and $12 infer numeric.
// Anything else passes through unchanged.
func normalizeLenientNumber(s string) string {
	if !lenientNumberRe.MatchString(s) || strings.TrimSpace(s) == "" {
		return s
	}
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimSuffix(cleaned, "%")
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ' ':
			return -1
		}
		return r
	}, cleaned)
	// "1,234.50": commas are thousands separators when a dot is present;
	// a lone comma between digits is a decimal comma.
	if strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	} else if strings.Count(cleaned, ",") == 1 {
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
		return s
	}
	return cleaned
}

// FuzzyImportJSON parses JSON that standard decoding rejects: line-delimited
// objects, trailing commas, single-quoted strings and unquoted keys.
func FuzzyImportJSON(src io.Reader, tableName string, opts *FuzzyImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &FuzzyImportOptions{}
	}
	applyDefaults(&opts.ImportOptions)
	if opts.TableName != "" {
		tableName = opts.TableName
	}

	raw, err := io.ReadAll(maybeGzip(src))
	if err != nil {
		return nil, nil, fmt.Errorf("read input: %w", err)
	}
	data := strings.TrimSpace(string(raw))
	if data == "" {
		return nil, nil, fmt.Errorf("empty input")
	}

	// Straight decode first; repairs only when needed.
	if tbl, res, err := ImportJSON(strings.NewReader(data), tableName, &opts.ImportOptions); err == nil {
		return tbl, res, nil
	}

	fixed := fixCommonJSONIssues(data)
	if tbl, res, err := ImportJSON(strings.NewReader(fixed), tableName, &opts.ImportOptions); err == nil {
		res.Warnings = append(res.Warnings, "input required JSON repairs")
		return tbl, res, nil
	}

	// Fall back to line-delimited objects, skipping broken lines.
	var records []map[string]any
	var warnings []string
	for i, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if line == "" || line == "[" || line == "]" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			if err := json.Unmarshal([]byte(fixCommonJSONIssues(line)), &rec); err != nil {
				warnings = append(warnings, fmt.Sprintf("line %d: %v", i+1, err))
				continue
			}
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("could not recover any JSON records")
	}
	tbl, res, err := tableFromRecords(tableName, records, &opts.ImportOptions)
	if err != nil {
		return nil, nil, err
	}
	res.Warnings = append(res.Warnings, warnings...)
	return tbl, res, nil
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// fixCommonJSONIssues repairs the frequent hand-edited JSON defects:
// trailing commas, single-quoted strings and unquoted object keys.
func fixCommonJSONIssues(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	// Single quotes around values and keys; naive but effective on the
	// export bugs this targets.
	if !strings.Contains(s, `"`) && strings.Contains(s, "'") {
		s = strings.ReplaceAll(s, "'", `"`)
	}
	return s
}
