// Package pipeline runs YAML-defined multi-step wrangling jobs against a
// workspace. Steps execute sequentially and fail fast; each run produces
// a report with per-step timings.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/wrangle/internal/engine"
	"github.com/SimonWaldherr/wrangle/internal/exporter"
	"github.com/SimonWaldherr/wrangle/internal/importer"
	"github.com/SimonWaldherr/wrangle/internal/pii"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

// Step is one operation in a pipeline. Which fields are meaningful
// depends on Op; Validate checks the per-op requirements.
type Step struct {
	Op        string            `yaml:"op" validate:"required,oneof=import export replace simple-replace rename prefix suffix trim-prefix trim-suffix move-column bysort proper-case value-counts shift-digits caesar shuffle pseudonymize drop"`
	Table     string            `yaml:"table,omitempty"`
	File      string            `yaml:"file,omitempty"`
	Sheet     string            `yaml:"sheet,omitempty"`
	Column    string            `yaml:"column,omitempty"`
	Value     string            `yaml:"value,omitempty"`
	Condition string            `yaml:"condition,omitempty"`
	Renames   map[string]string `yaml:"renames,omitempty"`
	Text      string            `yaml:"text,omitempty"`
	Position  string            `yaml:"position,omitempty"`
	Ref       string            `yaml:"ref,omitempty"`
	Group     []string          `yaml:"group,omitempty"`
	NewColumn string            `yaml:"new_column,omitempty"`
	Kind      string            `yaml:"kind,omitempty"`
	Offset    int               `yaml:"offset,omitempty"`
	Seed      int64             `yaml:"seed,omitempty"`
	Namespace string            `yaml:"namespace,omitempty"`
}

// Pipeline is a named sequence of steps loaded from YAML.
type Pipeline struct {
	Name  string `yaml:"name" validate:"required"`
	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// StepResult records timing and outcome for one executed step.
type StepResult struct {
	Index    int
	Op       string
	Table    string
	Changed  int
	Duration time.Duration
	Err      error
}

// RunReport summarizes a pipeline run.
type RunReport struct {
	RunID    string
	Pipeline string
	Started  time.Time
	Duration time.Duration
	Steps    []StepResult
}

var validate = validator.New()

// Load reads and validates a pipeline definition from a YAML file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse reads and validates a pipeline definition from YAML bytes.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("pipeline: parse yaml: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
	}
	for i := range p.Steps {
		if err := p.Steps[i].check(); err != nil {
			return nil, fmt.Errorf("pipeline %q step %d (%s): %w", p.Name, i+1, p.Steps[i].Op, err)
		}
	}
	return &p, nil
}

func (s *Step) check() error {
	need := func(field, val string) error {
		if val == "" {
			return fmt.Errorf("missing %s", field)
		}
		return nil
	}
	switch s.Op {
	case "import":
		return need("file", s.File)
	case "export":
		if err := need("file", s.File); err != nil {
			return err
		}
		return need("table", s.Table)
	case "replace", "simple-replace":
		if err := need("table", s.Table); err != nil {
			return err
		}
		if err := need("column", s.Column); err != nil {
			return err
		}
		return need("value", s.Value)
	case "rename":
		if len(s.Renames) == 0 {
			return fmt.Errorf("missing renames")
		}
		return need("table", s.Table)
	case "prefix", "suffix", "trim-prefix", "trim-suffix":
		if err := need("table", s.Table); err != nil {
			return err
		}
		return need("text", s.Text)
	case "move-column":
		if err := need("table", s.Table); err != nil {
			return err
		}
		if err := need("column", s.Column); err != nil {
			return err
		}
		return need("position", s.Position)
	case "bysort":
		if err := need("table", s.Table); err != nil {
			return err
		}
		if len(s.Group) == 0 {
			return fmt.Errorf("missing group")
		}
		return need("new_column", s.NewColumn)
	case "proper-case", "value-counts", "shift-digits", "caesar", "shuffle":
		if err := need("table", s.Table); err != nil {
			return err
		}
		return need("column", s.Column)
	case "pseudonymize":
		if err := need("table", s.Table); err != nil {
			return err
		}
		if err := need("column", s.Column); err != nil {
			return err
		}
		if s.Namespace != "" {
			if _, err := uuid.Parse(s.Namespace); err != nil {
				return fmt.Errorf("bad namespace: %w", err)
			}
		}
		return nil
	case "drop":
		return need("table", s.Table)
	}
	return nil
}

// Run executes all steps in order against the workspace. The first step
// error aborts the run; the report covers all steps attempted so far,
// including the failed one.
func (p *Pipeline) Run(ctx context.Context, ws *table.Workspace) (*RunReport, error) {
	report := &RunReport{
		RunID:    uuid.NewString(),
		Pipeline: p.Name,
		Started:  time.Now(),
	}
	log.Printf("pipeline %s: run %s started (%d steps)", p.Name, report.RunID, len(p.Steps))

	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
		start := time.Now()
		changed, err := step.run(ws)
		res := StepResult{
			Index:    i + 1,
			Op:       step.Op,
			Table:    step.Table,
			Changed:  changed,
			Duration: time.Since(start),
			Err:      err,
		}
		report.Steps = append(report.Steps, res)
		if err != nil {
			report.Duration = time.Since(report.Started)
			log.Printf("pipeline %s: step %d (%s) failed after %v: %v", p.Name, i+1, step.Op, res.Duration, err)
			return report, fmt.Errorf("pipeline %q step %d (%s): %w", p.Name, i+1, step.Op, err)
		}
		log.Printf("pipeline %s: step %d (%s) done in %v", p.Name, i+1, step.Op, res.Duration)
	}

	report.Duration = time.Since(report.Started)
	log.Printf("pipeline %s: run %s finished in %v", p.Name, report.RunID, report.Duration)
	return report, nil
}

func (s *Step) run(ws *table.Workspace) (int, error) {
	switch s.Op {
	case "import":
		return 0, s.runImport(ws)
	case "export":
		return 0, s.runExport(ws)
	case "drop":
		return 0, ws.Drop(s.Table)
	}

	t, err := ws.Get(s.Table)
	if err != nil {
		return 0, err
	}

	var out *table.Table
	changed := 0
	switch s.Op {
	case "replace":
		out, changed, err = engine.Replace(t, s.Column, s.Value, s.Condition)
	case "simple-replace":
		out, changed, err = engine.SimpleReplace(t, s.Column, s.Value, s.Condition)
	case "rename":
		out, err = engine.RenameColumns(t, s.Renames)
	case "prefix":
		out, err = engine.PrefixColumns(t, s.Text)
	case "suffix":
		out, err = engine.SuffixColumns(t, s.Text)
	case "trim-prefix":
		out, err = engine.TrimColumnPrefix(t, s.Text)
	case "trim-suffix":
		out, err = engine.TrimColumnSuffix(t, s.Text)
	case "move-column":
		out, err = engine.MoveColumn(t, s.Column, s.Position, s.Ref)
	case "bysort":
		kind := s.Kind
		if kind == "" {
			kind = "_n"
		}
		out, err = engine.BysortSequence(t, s.Group, s.NewColumn, kind)
	case "proper-case":
		out, err = engine.ProperCase(t, s.Column)
	case "value-counts":
		out, err = engine.ValueCounts(t, s.Column)
		if err == nil {
			out.Name = s.Table + "_counts"
		}
	case "shift-digits":
		out, err = pii.ShiftDigits(t, s.Column, s.Offset)
	case "caesar":
		out, err = pii.CaesarLetters(t, s.Column, s.Offset)
	case "shuffle":
		out, err = pii.ShuffleColumn(t, s.Column, s.Seed)
	case "pseudonymize":
		ns := uuid.NameSpaceOID
		if s.Namespace != "" {
			ns = uuid.MustParse(s.Namespace)
		}
		out, err = pii.Pseudonymize(t, s.Column, ns)
	default:
		return 0, fmt.Errorf("unknown op %q", s.Op)
	}
	if err != nil {
		return 0, err
	}
	ws.Put(out)
	return changed, nil
}

func (s *Step) runImport(ws *table.Workspace) error {
	ext := strings.ToLower(filepath.Ext(s.File))
	opts := &importer.ImportOptions{TableName: s.Table}

	switch ext {
	case ".db", ".sqlite", ".sqlite3":
		var names []string
		if s.Table != "" {
			names = append(names, s.Table)
		}
		imported, err := importer.ImportSQLite(s.File, names...)
		if err != nil {
			return err
		}
		for _, t := range imported.List() {
			ws.Put(t)
		}
		return nil
	case ".xlsx":
		t, _, err := importer.ImportXLSXFile(s.File, s.Sheet, opts)
		if err != nil {
			return err
		}
		ws.Put(t)
		return nil
	}

	t, _, err := importer.ImportFile(s.File, opts)
	if err != nil {
		return err
	}
	ws.Put(t)
	return nil
}

func (s *Step) runExport(ws *table.Workspace) error {
	t, err := ws.Get(s.Table)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(s.File))
	switch ext {
	case ".xlsx":
		return exporter.ExportXLSXFile(s.File, t)
	case ".db", ".sqlite", ".sqlite3":
		return exporter.ExportSQLite(s.File, t)
	}

	f, err := os.Create(s.File)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext {
	case ".json":
		err = exporter.ExportJSON(f, t, exporter.Options{})
	case ".xml":
		err = exporter.ExportXML(f, t)
	case ".gob":
		err = exporter.ExportGOB(f, t)
	case ".tex":
		err = exporter.ExportLaTeX(f, t, exporter.LaTeXOptions{Caption: t.Name})
	default:
		err = exporter.ExportCSV(f, t, exporter.Options{})
	}
	if err != nil {
		return err
	}
	return f.Sync()
}
