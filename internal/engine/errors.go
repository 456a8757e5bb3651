package engine

import (
	"errors"
	"fmt"
)

// MissingColumnError reports a reference to a column that does not exist on
// the table being wrangled. It aborts the whole operation before any
// mutation is applied.
type MissingColumnError struct {
	Table  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("unknown column %q on table %q", e.Column, e.Table)
}

// MalformedExpressionError reports a condition or value expression that
// failed to parse or to evaluate. Pos is a byte offset into Input when the
// failure came from the parser, -1 when it surfaced during evaluation.
type MalformedExpressionError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *MalformedExpressionError) Error() string {
	return fmt.Sprintf("malformed expression %q: %s", e.Input, e.Msg)
}

// IsMissingColumn reports whether err is (or wraps) a MissingColumnError.
func IsMissingColumn(err error) bool {
	var mc *MissingColumnError
	return errors.As(err, &mc)
}

// IsMalformedExpression reports whether err is (or wraps) a
// MalformedExpressionError.
func IsMalformedExpression(err error) bool {
	var me *MalformedExpressionError
	return errors.As(err, &me)
}

func missingColumn(tableName, column string) error {
	return &MissingColumnError{Table: tableName, Column: column}
}

func malformed(input string, pos int, format string, a ...any) error {
	return &MalformedExpressionError{Input: input, Pos: pos, Msg: fmt.Sprintf(format, a...)}
}
