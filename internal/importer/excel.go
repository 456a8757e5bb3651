package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ImportXLSX loads one sheet of an XLSX workbook into a new table. An empty
// sheet name selects the workbook's first sheet. Header detection and type
// inference follow the CSV path.
func ImportXLSX(src io.Reader, tableName, sheet string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)
	if opts.TableName != "" {
		tableName = opts.TableName
	}

	wb, err := excelize.OpenReader(src)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	// Pad ragged rows to the widest row so every record aligns.
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}

	hasHeader := decideHeader(rows, opts.HeaderMode)
	var colNames []string
	data := rows
	if hasHeader {
		colNames = sanitizeColumnNames(rows[0])
		data = rows[1:]
	} else {
		colNames = generateColumnNames(width)
	}

	tbl, result, err := buildInferredTable(tableName, colNames, data, opts)
	if err != nil {
		return nil, nil, err
	}
	result.HadHeader = hasHeader
	return tbl, result, nil
}

// ImportXLSXFile opens an XLSX file and imports one sheet; the table name is
// derived from the file name.
func ImportXLSXFile(filePath, sheet string, opts *ImportOptions) (*table.Table, *ImportResult, error) {
	f, err := openForRead(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	tableName := sanitizeTableName(strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)))
	return ImportXLSX(f, tableName, sheet, opts)
}

func openForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}
