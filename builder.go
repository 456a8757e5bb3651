// Fluent builder for multi-step wrangling jobs. Each call appends a
// pipeline step; Run validates and executes the whole chain.

package wrangle

import (
	"context"
	"fmt"

	"github.com/SimonWaldherr/wrangle/internal/pipeline"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

// Chain accumulates steps against one workspace.
//
// Example:
//
//	report, err := wrangle.On(ws).
//	    Table("visits").
//	    Replace("status", "'churned'", "visits == 0 & visits[n-1] == 0").
//	    Rename(map[string]string{"status": "churn_status"}).
//	    Export("clean.csv").
//	    Run(ctx)
type Chain struct {
	ws    *table.Workspace
	name  string
	table string
	steps []pipeline.Step
}

// On starts a new chain against the workspace.
func On(ws *Workspace) *Chain {
	return &Chain{ws: ws, name: "chain"}
}

// Named sets the pipeline name used in logs and reports.
func (c *Chain) Named(name string) *Chain {
	c.name = name
	return c
}

// Table selects the table subsequent steps operate on.
func (c *Chain) Table(name string) *Chain {
	c.table = name
	return c
}

// Import loads a file into the workspace under the current table name.
func (c *Chain) Import(file string) *Chain {
	c.steps = append(c.steps, pipeline.Step{Op: "import", File: file, Table: c.table})
	return c
}

// Replace appends a conditional replace on the current table.
func (c *Chain) Replace(column, value, condition string) *Chain {
	c.steps = append(c.steps, pipeline.Step{
		Op: "replace", Table: c.table,
		Column: column, Value: value, Condition: condition,
	})
	return c
}

// Rename appends a column rename on the current table.
func (c *Chain) Rename(renames map[string]string) *Chain {
	c.steps = append(c.steps, pipeline.Step{Op: "rename", Table: c.table, Renames: renames})
	return c
}

// Prefix prepends text to every column name of the current table.
func (c *Chain) Prefix(text string) *Chain {
	c.steps = append(c.steps, pipeline.Step{Op: "prefix", Table: c.table, Text: text})
	return c
}

// Suffix appends text to every column name of the current table.
func (c *Chain) Suffix(text string) *Chain {
	c.steps = append(c.steps, pipeline.Step{Op: "suffix", Table: c.table, Text: text})
	return c
}

// MoveColumn repositions a column: position is first, last, before or
// after, with ref naming the anchor column for the last two.
func (c *Chain) MoveColumn(column, position, ref string) *Chain {
	c.steps = append(c.steps, pipeline.Step{
		Op: "move-column", Table: c.table,
		Column: column, Position: position, Ref: ref,
	})
	return c
}

// ProperCase title-cases a string column on the current table.
func (c *Chain) ProperCase(column string) *Chain {
	c.steps = append(c.steps, pipeline.Step{Op: "proper-case", Table: c.table, Column: column})
	return c
}

// Bysort numbers rows within groups: kind "_n" counts within the group,
// "_N" stores the group size.
func (c *Chain) Bysort(group []string, newColumn, kind string) *Chain {
	c.steps = append(c.steps, pipeline.Step{
		Op: "bysort", Table: c.table,
		Group: group, NewColumn: newColumn, Kind: kind,
	})
	return c
}

// Pseudonymize replaces a column with deterministic name-based UUIDs.
func (c *Chain) Pseudonymize(column, namespace string) *Chain {
	c.steps = append(c.steps, pipeline.Step{
		Op: "pseudonymize", Table: c.table,
		Column: column, Namespace: namespace,
	})
	return c
}

// Export writes the current table to a file, dispatching on extension.
func (c *Chain) Export(file string) *Chain {
	c.steps = append(c.steps, pipeline.Step{Op: "export", Table: c.table, File: file})
	return c
}

// Run validates and executes all accumulated steps in order.
func (c *Chain) Run(ctx context.Context) (*pipeline.RunReport, error) {
	if len(c.steps) == 0 {
		return nil, fmt.Errorf("chain %q has no steps", c.name)
	}
	p := &pipeline.Pipeline{Name: c.name, Steps: c.steps}
	return p.Run(ctx, c.ws)
}
