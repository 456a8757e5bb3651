// Command repl is an interactive shell for a workspace. Type 'help' for
// the command list.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/wrangle/internal/engine"
	"github.com/SimonWaldherr/wrangle/internal/importer"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

var flagWorkspace = flag.String("workspace", "", "Workspace snapshot to load on startup")

type shell struct {
	ws      *table.Workspace
	current string
	out     *bufio.Writer
}

func main() {
	flag.Parse()

	sh := &shell{ws: table.NewWorkspace(), out: bufio.NewWriter(os.Stdout)}
	if *flagWorkspace != "" {
		ws, err := table.LoadFromFile(*flagWorkspace)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load error:", err)
			os.Exit(1)
		}
		sh.ws = ws
	}

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 1024), 1024*1024)

	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}
	if interactive {
		fmt.Println("wrangle shell. Type 'help' for commands, 'quit' to exit.")
	}

	for {
		if interactive {
			prompt := "wrangle"
			if sh.current != "" {
				prompt += ":" + sh.current
			}
			fmt.Printf("%s> ", prompt)
		}
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := sh.dispatch(line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		sh.out.Flush()
	}
	sh.out.Flush()
}

func (s *shell) dispatch(line string) error {
	cmd, rest := splitWord(line)
	switch cmd {
	case "help":
		s.printHelp()
		return nil
	case "use":
		return s.cmdUse(rest)
	case "tables":
		return s.cmdTables()
	case "list":
		return s.cmdList(rest)
	case "replace":
		return s.cmdReplace(rest)
	case "rename":
		return s.cmdRename(rest)
	case "count":
		return s.cmdCount()
	case "save":
		return s.cmdSave(rest)
	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func (s *shell) printHelp() {
	fmt.Fprint(s.out, `commands:
  use FILE                        import a file (or load a .wrk workspace)
  tables                          list tables in the workspace
  list [N]                        show the first N rows of the current table
  replace COL = VALUE if COND     conditional replace on the current table
  rename OLD NEW                  rename a column on the current table
  count                           row count of the current table
  save FILE                       save the workspace snapshot
  quit                            leave the shell
`)
}

func (s *shell) cmdUse(arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: use FILE")
	}
	if strings.HasSuffix(arg, ".wrk") || strings.HasSuffix(arg, ".gob") {
		ws, err := table.LoadFromFile(arg)
		if err != nil {
			return err
		}
		s.ws = ws
		s.current = ""
		fmt.Fprintf(s.out, "loaded workspace with %d tables\n", len(ws.List()))
		return nil
	}
	t, _, err := importer.ImportFile(arg, nil)
	if err != nil {
		return err
	}
	s.ws.Put(t)
	s.current = t.Name
	fmt.Fprintf(s.out, "imported %s (%d rows, %d cols)\n", t.Name, t.NumRows(), t.NumCols())
	return nil
}

func (s *shell) cmdTables() error {
	tables := s.ws.List()
	if len(tables) == 0 {
		fmt.Fprintln(s.out, "(no tables)")
		return nil
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = fmt.Sprintf("%s (%d rows)", t.Name, t.NumRows())
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(s.out, n)
	}
	return nil
}

func (s *shell) currentTable() (*table.Table, error) {
	if s.current == "" {
		return nil, fmt.Errorf("no current table, 'use' a file first")
	}
	return s.ws.Get(s.current)
}

func (s *shell) cmdList(arg string) error {
	t, err := s.currentTable()
	if err != nil {
		return err
	}
	n := 10
	if arg != "" {
		n, err = strconv.Atoi(arg)
		if err != nil || n < 1 {
			return fmt.Errorf("usage: list [N]")
		}
	}
	if n > t.NumRows() {
		n = t.NumRows()
	}

	names := t.ColumnNames()
	fmt.Fprintln(s.out, strings.Join(names, "\t"))
	for _, row := range t.Rows[:n] {
		cells := make([]string, len(names))
		for i := range names {
			if i < len(row) && row[i] != nil {
				cells[i] = fmt.Sprintf("%v", row[i])
			} else {
				cells[i] = "NULL"
			}
		}
		fmt.Fprintln(s.out, strings.Join(cells, "\t"))
	}
	return nil
}

func (s *shell) cmdReplace(arg string) error {
	t, err := s.currentTable()
	if err != nil {
		return err
	}

	body, cond := arg, ""
	if i := strings.Index(arg, " if "); i >= 0 {
		body, cond = arg[:i], strings.TrimSpace(arg[i+4:])
	}
	eq := strings.Index(body, "=")
	if eq < 0 {
		return fmt.Errorf("usage: replace COL = VALUE if COND")
	}
	col := strings.TrimSpace(body[:eq])
	val := strings.TrimSpace(body[eq+1:])

	out, changed, err := engine.Replace(t, col, val, cond)
	if err != nil {
		return err
	}
	s.ws.Put(out)
	fmt.Fprintf(s.out, "(%d real changes made)\n", changed)
	return nil
}

func (s *shell) cmdRename(arg string) error {
	t, err := s.currentTable()
	if err != nil {
		return err
	}
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		return fmt.Errorf("usage: rename OLD NEW")
	}
	out, err := engine.RenameColumns(t, map[string]string{parts[0]: parts[1]})
	if err != nil {
		return err
	}
	s.ws.Put(out)
	fmt.Fprintf(s.out, "renamed %s to %s\n", parts[0], parts[1])
	return nil
}

func (s *shell) cmdCount() error {
	t, err := s.currentTable()
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, t.NumRows())
	return nil
}

func (s *shell) cmdSave(arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: save FILE")
	}
	if err := table.SaveToFile(s.ws, arg); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "saved %d tables to %s\n", len(s.ws.List()), arg)
	return nil
}
