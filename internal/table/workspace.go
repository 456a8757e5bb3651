package table

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Workspace is an in-memory registry of named tables, the unit a wrangling
// session or pipeline operates on.
type Workspace struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{tables: map[string]*Table{}}
}

// Get returns a table by name.
func (ws *Workspace) Get(name string) (*Table, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	t, ok := ws.tables[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("no such table %q", name)
	}
	return t, nil
}

// Put adds or replaces a table under its own name.
func (ws *Workspace) Put(t *Table) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.tables[strings.ToLower(t.Name)] = t
}

// Drop removes a table from the workspace.
func (ws *Workspace) Drop(name string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	lc := strings.ToLower(name)
	if _, ok := ws.tables[lc]; !ok {
		return fmt.Errorf("no such table %q", name)
	}
	delete(ws.tables, lc)
	return nil
}

// List returns the tables sorted by name.
func (ws *Workspace) List() []*Table {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if len(ws.tables) == 0 {
		return nil
	}
	names := make([]string, 0, len(ws.tables))
	for k := range ws.tables {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]*Table, len(names))
	for i, n := range names {
		out[i] = ws.tables[n]
	}
	return out
}

// DeepClone creates a full copy of the workspace and every table in it.
func (ws *Workspace) DeepClone() *Workspace {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := NewWorkspace()
	for _, t := range ws.tables {
		out.Put(t.Clone())
	}
	return out
}

// ------------------------ GOB snapshot (Load/Save) ------------------------

// Snapshot framing. The magic and format number let a load tell a stale or
// foreign file apart from a corrupt one before any table data is decoded.
const (
	snapshotMagic  = "wrangle-workspace"
	snapshotFormat = 1
)

type diskSnapshot struct {
	Magic  string
	Format int
	Tables []diskTable
}

type diskColumn struct {
	Name string
	Type ColType
}

type diskTable struct {
	Name    string
	Cols    []diskColumn
	Rows    [][]any // JSON columns stored as strings
	Version int
}

func tableToDisk(t *Table) diskTable {
	dt := diskTable{
		Name:    t.Name,
		Version: t.Version,
		Cols:    make([]diskColumn, len(t.Cols)),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, c := range t.Cols {
		dt.Cols[i] = diskColumn{Name: c.Name, Type: c.Type}
	}
	for i, r := range t.Rows {
		row := make([]any, len(r))
		for j, v := range r {
			if v == nil {
				row[j] = nil
				continue
			}
			if j < len(t.Cols) && t.Cols[j].Type == JSONType {
				switch vv := v.(type) {
				case string:
					// Already a JSON/text representation; keep as-is to
					// avoid double encoding.
					row[j] = vv
				default:
					b, _ := json.Marshal(v)
					row[j] = string(b)
				}
			} else {
				row[j] = v
			}
		}
		dt.Rows[i] = row
	}
	return dt
}

func diskToTable(dt diskTable) *Table {
	cols := make([]Column, len(dt.Cols))
	for i, c := range dt.Cols {
		cols[i] = Column{Name: c.Name, Type: c.Type}
	}
	t := NewTable(dt.Name, cols)
	t.Version = dt.Version
	t.Rows = make([][]any, len(dt.Rows))
	for ri, r := range dt.Rows {
		row := make([]any, len(cols))
		for ci, v := range r {
			if ci >= len(cols) {
				break // Skip extra columns beyond schema
			}
			if v == nil {
				continue
			}
			if cols[ci].Type == JSONType {
				if s, ok := v.(string); ok {
					var anyv any
					if json.Unmarshal([]byte(s), &anyv) == nil {
						row[ci] = anyv
						continue
					}
				}
			}
			row[ci] = v
		}
		t.Rows[ri] = row
	}
	return t
}

// SaveToFile writes a snapshot of the workspace to a file. If the filename
// ends with .gz, the snapshot is gzip-compressed to reduce size.
func SaveToFile(ws *Workspace, filename string) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	dump := make([]diskTable, 0, len(ws.tables))
	for _, t := range ws.tables {
		dump = append(dump, tableToDisk(t))
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = bufio.NewWriter(f)
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(filename), ".gz") {
		gz = gzip.NewWriter(w)
		w = gz
	}
	enc := gob.NewEncoder(w)
	if err := enc.Encode(diskSnapshot{Magic: snapshotMagic, Format: snapshotFormat, Tables: dump}); err != nil {
		if gz != nil {
			_ = gz.Close()
		}
		if bw, ok := w.(*bufio.Writer); ok {
			_ = bw.Flush()
		}
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	if bw, ok := w.(*bufio.Writer); ok {
		return bw.Flush()
	}
	return nil
}

// LoadFromFile loads a workspace snapshot from a file. It auto-detects gzip
// compression based on the .gz suffix. A missing file yields an empty
// workspace, so sessions can adopt a save path before the first save.
func LoadFromFile(filename string) (*Workspace, error) {
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewWorkspace(), nil
		}
		return nil, err
	}
	defer f.Close()
	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(filename), ".gz") {
		gr, gzErr := gzip.NewReader(r)
		if gzErr != nil {
			return nil, gzErr
		}
		defer gr.Close()
		r = gr
	}
	return LoadFromReader(r)
}

// SaveToWriter writes a snapshot of the workspace to an arbitrary writer.
func SaveToWriter(ws *Workspace, w io.Writer) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	dump := make([]diskTable, 0, len(ws.tables))
	for _, t := range ws.tables {
		dump = append(dump, tableToDisk(t))
	}
	bw := bufio.NewWriter(w)
	enc := gob.NewEncoder(bw)
	if err := enc.Encode(diskSnapshot{Magic: snapshotMagic, Format: snapshotFormat, Tables: dump}); err != nil {
		return err
	}
	return bw.Flush()
}

// LoadFromReader loads a workspace snapshot from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Workspace, error) {
	dec := gob.NewDecoder(bufio.NewReader(r))
	var snap diskSnapshot
	if err := dec.Decode(&snap); err != nil {
		if errors.Is(err, io.EOF) {
			return NewWorkspace(), nil
		}
		return nil, fmt.Errorf("read workspace snapshot: %w", err)
	}
	if snap.Magic != snapshotMagic {
		return nil, fmt.Errorf("not a workspace snapshot (magic %q)", snap.Magic)
	}
	if snap.Format != snapshotFormat {
		return nil, fmt.Errorf("unsupported workspace snapshot format %d", snap.Format)
	}
	ws := NewWorkspace()
	for _, dt := range snap.Tables {
		ws.Put(diskToTable(dt))
	}
	return ws, nil
}

// SaveToBytes serializes the workspace snapshot to a byte slice.
func SaveToBytes(ws *Workspace) ([]byte, error) {
	var buf bytes.Buffer
	if err := SaveToWriter(ws, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadFromBytes loads a workspace from a byte slice.
func LoadFromBytes(b []byte) (*Workspace, error) {
	return LoadFromReader(bytes.NewReader(b))
}
