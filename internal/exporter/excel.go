package exporter

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ExportXLSX writes the table as a single-sheet workbook. The header row
// is styled bold; cells keep their native types so spreadsheets can sort
// and compute on them.
func ExportXLSX(w io.Writer, t *table.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	if sheet == "" {
		sheet = "Sheet1"
	}
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	f.SetActiveSheet(idx)
	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}

	for i, c := range t.Cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, c.Name); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, boldStyle); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
	}

	for r, row := range t.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("xlsx: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, xlsxValue(v)); err != nil {
				return fmt.Errorf("xlsx: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	return nil
}

// ExportXLSXFile writes the table as an .xlsx workbook at path.
func ExportXLSXFile(path string, t *table.Table) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	if err := ExportXLSX(fh, t); err != nil {
		return err
	}
	return fh.Sync()
}

func xlsxValue(v any) any {
	switch n := v.(type) {
	case nil:
		return ""
	case uuid.UUID:
		return n.String()
	case time.Time:
		return n
	}
	return v
}
