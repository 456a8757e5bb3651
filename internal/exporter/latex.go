package exporter

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// LaTeXOptions controls the layout of generated LaTeX tables.
type LaTeXOptions struct {
	Caption         string
	Label           string
	Note            string
	CaptionBelow    bool
	MinipageSize    float64 // fraction of \linewidth, 0 means 0.5
	ColumnFormat    string  // explicit tabular column spec, inferred when empty
	ThousandsCommas bool
}

func (o LaTeXOptions) minipage() float64 {
	if o.MinipageSize <= 0 {
		return 0.5
	}
	return o.MinipageSize
}

// ExportLaTeX writes the table as a LaTeX tabular wrapped in a floating
// table environment.
func ExportLaTeX(w io.Writer, t *table.Table, opts LaTeXOptions) error {
	format := opts.ColumnFormat
	if format == "" {
		format = latexColumnFormat(t)
	}

	var b strings.Builder
	b.WriteString("\\begin{table}[H]\n")
	b.WriteString("\\begin{center}\n")
	fmt.Fprintf(&b, "\\begin{minipage}{%s\\linewidth}\n", trimFloat(opts.minipage()))
	b.WriteString("\\centering\n")
	fmt.Fprintf(&b, "\\begin{tabular}{%s}\n", format)
	b.WriteString("\\hline\n")

	heads := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		heads[i] = fmt.Sprintf("\\textbf{%s}", escapeLaTeX(c.Name))
	}
	b.WriteString(strings.Join(heads, " & "))
	b.WriteString(" \\\\\n\\midrule\n")

	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = latexCell(v, opts.ThousandsCommas)
		}
		b.WriteString(strings.Join(cells, " & "))
		b.WriteString(" \\\\\n")
	}

	b.WriteString("\\hline\n\\hline\n")
	b.WriteString("\\end{tabular}\n")
	writeLaTeXTrailer(&b, opts)
	b.WriteString("\\end{minipage}\n")
	b.WriteString("\\end{center}\n")
	b.WriteString("\\end{table}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeLaTeXTrailer(b *strings.Builder, opts LaTeXOptions) {
	caption := func() {
		if opts.Caption == "" {
			return
		}
		fmt.Fprintf(b, "\\caption{%s}\n", opts.Caption)
		if opts.Label != "" {
			fmt.Fprintf(b, "\\label{%s}\n", opts.Label)
		}
	}
	note := func() {
		if opts.Note == "" {
			return
		}
		b.WriteString("\\vspace{.2cm}\n")
		b.WriteString("\\begin{tabular}{@{}p{0.9\\linewidth}@{}}\n")
		b.WriteString("\\small " + opts.Note + "\n")
		b.WriteString("\\end{tabular}\n")
		b.WriteString("\\vspace{.1cm}\n")
	}
	if opts.CaptionBelow {
		note()
		caption()
	} else {
		caption()
		note()
	}
}

// ValueCountsLaTeX renders a frequency table for one column as LaTeX.
// Counts are sorted descending; optional total row and percentage column.
func ValueCountsLaTeX(t *table.Table, column string, opts LaTeXOptions, total, percent bool) (string, error) {
	idx, err := t.ColIndex(column)
	if err != nil {
		return "", err
	}

	counts := map[string]int{}
	order := []string{}
	totalCount := 0
	for _, row := range t.Rows {
		key := valueToString(row[idx])
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
		totalCount++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	var b strings.Builder
	b.WriteString("\\begin{table}[H]\n")
	b.WriteString("\\begin{center}\n")
	fmt.Fprintf(&b, "\\begin{minipage}{%s\\linewidth}\n", trimFloat(opts.minipage()))
	b.WriteString("\\centering\n")
	if percent {
		b.WriteString("\\begin{tabular}{l c c}\n")
	} else {
		b.WriteString("\\begin{tabular}{l c}\n")
	}
	b.WriteString("\\hline\n")
	fmt.Fprintf(&b, "\\textbf{%s} & \\textbf{Count}", escapeLaTeX(column))
	if percent {
		b.WriteString(" & \\textbf{Percentage}")
	}
	b.WriteString("\\\\\\midrule\n")

	for _, key := range order {
		fmt.Fprintf(&b, "%s & %s", escapeLaTeX(key), groupThousands(strconv.Itoa(counts[key])))
		if percent {
			fmt.Fprintf(&b, " & %.1f\\%%", float64(counts[key])/float64(totalCount)*100)
		}
		b.WriteString("\\\\\n")
	}
	if total {
		b.WriteString("\\midrule\n")
		fmt.Fprintf(&b, "Total & %s", groupThousands(strconv.Itoa(totalCount)))
		if percent {
			b.WriteString(" & 100\\%")
		}
		b.WriteString("\\\\\n")
	}

	b.WriteString("\\hline\n\\hline\n")
	b.WriteString("\\end{tabular}\n")
	writeLaTeXTrailer(&b, opts)
	b.WriteString("\\end{minipage}\n")
	b.WriteString("\\end{center}\n")
	b.WriteString("\\end{table}\n")
	return b.String(), nil
}

// CrosstabLaTeX renders a two-column contingency table as LaTeX. Rows are
// the distinct values of rowCol, columns the distinct values of colCol.
func CrosstabLaTeX(t *table.Table, rowCol, colCol string, opts LaTeXOptions, totals bool) (string, error) {
	ri, err := t.ColIndex(rowCol)
	if err != nil {
		return "", err
	}
	ci, err := t.ColIndex(colCol)
	if err != nil {
		return "", err
	}

	cells := map[string]map[string]int{}
	var rowKeys, colKeys []string
	for _, row := range t.Rows {
		rk := valueToString(row[ri])
		ck := valueToString(row[ci])
		if _, seen := cells[rk]; !seen {
			cells[rk] = map[string]int{}
			rowKeys = append(rowKeys, rk)
		}
		if cells[rk][ck] == 0 {
			found := false
			for _, k := range colKeys {
				if k == ck {
					found = true
					break
				}
			}
			if !found {
				colKeys = append(colKeys, ck)
			}
		}
		cells[rk][ck]++
	}
	sort.Strings(rowKeys)
	sort.Strings(colKeys)

	var b strings.Builder
	b.WriteString("\\begin{table}[H]\n")
	b.WriteString("\\begin{center}\n")
	fmt.Fprintf(&b, "\\begin{minipage}{%s\\linewidth}\n", trimFloat(opts.minipage()))
	b.WriteString("\\centering\n")
	fmt.Fprintf(&b, "\\begin{tabular}{l%s}\n", strings.Repeat("r", len(colKeys)+boolToInt(totals)))
	b.WriteString("\\hline\n")

	fmt.Fprintf(&b, "\\textbf{%s}", escapeLaTeX(rowCol))
	for _, ck := range colKeys {
		fmt.Fprintf(&b, " & \\textbf{%s}", escapeLaTeX(ck))
	}
	if totals {
		b.WriteString(" & \\textbf{Total}")
	}
	b.WriteString(" \\\\\n\\midrule\n")

	colTotals := make([]int, len(colKeys))
	grand := 0
	for _, rk := range rowKeys {
		fmt.Fprintf(&b, "%s", escapeLaTeX(rk))
		rowTotal := 0
		for i, ck := range colKeys {
			n := cells[rk][ck]
			fmt.Fprintf(&b, " & %d", n)
			rowTotal += n
			colTotals[i] += n
		}
		if totals {
			fmt.Fprintf(&b, " & %d", rowTotal)
		}
		grand += rowTotal
		b.WriteString(" \\\\\n")
	}
	if totals {
		b.WriteString("\\midrule\nTotal")
		for _, n := range colTotals {
			fmt.Fprintf(&b, " & %d", n)
		}
		fmt.Fprintf(&b, " & %d \\\\\n", grand)
	}

	b.WriteString("\\hline\n\\hline\n")
	b.WriteString("\\end{tabular}\n")
	writeLaTeXTrailer(&b, opts)
	b.WriteString("\\end{minipage}\n")
	b.WriteString("\\end{center}\n")
	b.WriteString("\\end{table}\n")
	return b.String(), nil
}

var (
	ampersandRe   = regexp.MustCompile(`&(\S)`)
	leadingZeroRe = regexp.MustCompile(`(^|[\s&\\,(])\.(\d+)`)
	longDecimalRe = regexp.MustCompile(`(\d+)\.(\d{4,})`)
	thousandsRe   = regexp.MustCompile(`(^|[\s&\\,(])(\d{4,})(\.\d+)?`)
)

// FixLaTeX cleans common flaws in generated LaTeX table source: missing
// space after cell separators, bare decimal points without a leading
// zero, overly long decimals, and ungrouped large integers.
func FixLaTeX(src string) string {
	out := ampersandRe.ReplaceAllString(src, "& $1")
	out = leadingZeroRe.ReplaceAllString(out, "${1}0.$2")
	out = longDecimalRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := longDecimalRe.FindStringSubmatch(m)
		f, err := strconv.ParseFloat(sub[1]+"."+sub[2], 64)
		if err != nil {
			return m
		}
		return strconv.FormatFloat(f, 'f', 3, 64)
	})
	out = thousandsRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := thousandsRe.FindStringSubmatch(m)
		return sub[1] + groupThousands(sub[2]) + sub[3]
	})
	return out
}

func latexColumnFormat(t *table.Table) string {
	var b strings.Builder
	for _, c := range t.Cols {
		switch c.Type {
		case table.IntType, table.FloatType:
			b.WriteByte('r')
		default:
			b.WriteByte('l')
		}
	}
	return b.String()
}

func latexCell(v any, commas bool) string {
	switch n := v.(type) {
	case nil:
		return ""
	case int64:
		s := strconv.FormatInt(n, 10)
		if commas {
			return groupThousands(s)
		}
		return s
	case float64:
		s := strconv.FormatFloat(n, 'f', -1, 64)
		if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 > 3 {
			s = strconv.FormatFloat(n, 'f', 3, 64)
		}
		if commas {
			return groupThousands(s)
		}
		return s
	}
	return escapeLaTeX(valueToString(v))
}

var latexEscaper = strings.NewReplacer(
	"\\", "\\textbackslash{}",
	"&", "\\&",
	"%", "\\%",
	"$", "\\$",
	"#", "\\#",
	"_", "\\_",
	"{", "\\{",
	"}", "\\}",
	"~", "\\textasciitilde{}",
	"^", "\\textasciicircum{}",
)

func escapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}

// groupThousands inserts commas into the integer part of a numeric string.
func groupThousands(s string) string {
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	if len(intPart) > 3 {
		var b strings.Builder
		pre := len(intPart) % 3
		if pre > 0 {
			b.WriteString(intPart[:pre])
		}
		for i := pre; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	if neg {
		intPart = "-" + intPart
	}
	return intPart + frac
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
