package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	wailsrt "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/SimonWaldherr/wrangle/internal/engine"
	"github.com/SimonWaldherr/wrangle/internal/exporter"
	"github.com/SimonWaldherr/wrangle/internal/importer"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

// App struct
type App struct {
	ctx context.Context
	ws  *table.Workspace
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{ws: table.NewWorkspace()}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// ReplaceResult is returned to the frontend after a replace operation
type ReplaceResult struct {
	Table   string `json:"table"`
	Changed int    `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// TableInfo contains metadata about a table
type TableInfo struct {
	Name     string       `json:"name"`
	Columns  []ColumnInfo `json:"columns"`
	RowCount int          `json:"rowCount"`
}

// ColumnInfo contains metadata about a column
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ImportResponse contains information about a file import operation
type ImportResponse struct {
	Success      bool     `json:"success"`
	TableName    string   `json:"tableName,omitempty"`
	RowsImported int      `json:"rowsImported,omitempty"`
	Columns      []string `json:"columns,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// TablePreview carries the first rows of a table for display
type TablePreview struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]any    `json:"rows"`
	Total   int        `json:"total"`
	Error   string     `json:"error,omitempty"`
}

// ReplaceOp runs a conditional replace and stores the result back in the
// workspace.
func (a *App) ReplaceOp(tableName, column, value, condition string) ReplaceResult {
	t, err := a.ws.Get(tableName)
	if err != nil {
		return ReplaceResult{Table: tableName, Error: err.Error()}
	}
	out, changed, err := engine.Replace(t, column, value, condition)
	if err != nil {
		return ReplaceResult{Table: tableName, Error: err.Error()}
	}
	a.ws.Put(out)
	return ReplaceResult{Table: tableName, Changed: changed}
}

// ImportFromPath opens a file dialog and imports the chosen file.
func (a *App) ImportFromPath(tableName string) ImportResponse {
	if a.ctx == nil {
		return ImportResponse{Error: "application context not available"}
	}
	path, err := wailsrt.OpenFileDialog(a.ctx, wailsrt.OpenDialogOptions{
		Title: "Select file to import",
	})
	if err != nil {
		return ImportResponse{Error: err.Error()}
	}
	if path == "" {
		return ImportResponse{} // user cancelled
	}

	t, result, err := importer.ImportFile(path, &importer.ImportOptions{TableName: tableName})
	if err != nil {
		return ImportResponse{Error: err.Error()}
	}
	a.ws.Put(t)

	resp := ImportResponse{
		Success:      true,
		TableName:    t.Name,
		RowsImported: t.NumRows(),
		Columns:      t.ColumnNames(),
	}
	if result != nil {
		resp.Warnings = result.Warnings
	}
	return resp
}

// ListTables returns the list of table names
func (a *App) ListTables() []string {
	tables := a.ws.List()
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.Name)
	}
	return out
}

// GetTableInfo returns detailed information about a table
func (a *App) GetTableInfo(tableName string) TableInfo {
	t, err := a.ws.Get(tableName)
	if err != nil {
		return TableInfo{}
	}

	cols := make([]ColumnInfo, len(t.Cols))
	for i, col := range t.Cols {
		cols[i] = ColumnInfo{Name: col.Name, Type: col.Type.String()}
	}
	return TableInfo{Name: t.Name, Columns: cols, RowCount: t.NumRows()}
}

// PreviewTable returns up to limit rows of a table for display.
func (a *App) PreviewTable(tableName string, limit int) TablePreview {
	t, err := a.ws.Get(tableName)
	if err != nil {
		return TablePreview{Name: tableName, Error: err.Error()}
	}
	if limit <= 0 || limit > t.NumRows() {
		limit = t.NumRows()
	}
	rows := make([][]any, limit)
	for i := 0; i < limit; i++ {
		row := make([]any, len(t.Cols))
		for j := range t.Cols {
			row[j] = table.NormalizeForJSON(t.Rows[i][j])
		}
		rows[i] = row
	}
	return TablePreview{
		Name:    t.Name,
		Columns: t.ColumnNames(),
		Rows:    rows,
		Total:   t.NumRows(),
	}
}

// ExportTableToCSV asks for a target path and writes the table as CSV.
func (a *App) ExportTableToCSV(tableName string) (string, error) {
	t, err := a.ws.Get(tableName)
	if err != nil {
		return "", err
	}

	path, err := wailsrt.SaveFileDialog(a.ctx, wailsrt.SaveDialogOptions{
		Title:           "Export Table to CSV",
		DefaultFilename: tableName + ".csv",
		Filters: []wailsrt.FileFilter{
			{DisplayName: "CSV Files (*.csv)", Pattern: "*.csv"},
		},
	})
	if err != nil || path == "" {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := exporter.ExportCSV(f, t, exporter.Options{}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Exported %d rows to %s", t.NumRows(), filepath.Base(path)), nil
}

// SaveWorkspace saves the workspace snapshot via a file dialog.
func (a *App) SaveWorkspace() (string, error) {
	if a.ctx == nil {
		return "", fmt.Errorf("application context not available")
	}
	path, err := wailsrt.SaveFileDialog(a.ctx, wailsrt.SaveDialogOptions{
		Title:           "Save Workspace",
		DefaultFilename: "workspace.wrk",
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil // user cancelled
	}
	if err := table.SaveToFile(a.ws, path); err != nil {
		return "", err
	}
	return path, nil
}

// LoadWorkspace restores a workspace snapshot via a file dialog.
func (a *App) LoadWorkspace() (string, error) {
	if a.ctx == nil {
		return "", fmt.Errorf("application context not available")
	}
	path, err := wailsrt.OpenFileDialog(a.ctx, wailsrt.OpenDialogOptions{
		Title: "Load Workspace",
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil // user cancelled
	}
	ws, err := table.LoadFromFile(path)
	if err != nil {
		return "", err
	}
	a.ws = ws
	return path, nil
}
