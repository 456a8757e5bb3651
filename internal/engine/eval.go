package engine

import (
	"math"
	"strings"
	"time"

	"github.com/SimonWaldherr/wrangle/internal/table"
	"github.com/google/uuid"
)

// evalEnv carries what one row evaluation needs: the table, the row index,
// and the shifted-column snapshots keyed by (column, offset).
type evalEnv struct {
	tbl    *table.Table
	row    int
	shifts map[shiftKey][]any
}

func evalExpr(env evalEnv, e Expr) (any, error) {
	switch ex := e.(type) {
	case *Literal:
		return ex.Val, nil
	case *ColRef:
		return evalColRef(env, ex)
	case *RelRef:
		return evalRelRef(env, ex)
	case *Unary:
		return evalUnary(env, ex)
	case *Binary:
		return evalBinary(env, ex)
	}
	return nil, malformed("", -1, "unknown expression node %T", e)
}

func evalColRef(env evalEnv, ex *ColRef) (any, error) {
	idx, err := env.tbl.ColIndex(ex.Name)
	if err != nil {
		return nil, missingColumn(env.tbl.Name, ex.Name)
	}
	return env.tbl.Rows[env.row][idx], nil
}

func evalRelRef(env evalEnv, ex *RelRef) (any, error) {
	key := shiftKey{col: strings.ToLower(ex.Name), offset: ex.Offset}
	col, ok := env.shifts[key]
	if !ok {
		// Zero offsets read the current row directly; any other miss means
		// the reference was not collected up front, which is a bug, but the
		// direct read keeps the answer correct anyway.
		return shiftedRead(env, ex)
	}
	return col[env.row], nil
}

func shiftedRead(env evalEnv, ex *RelRef) (any, error) {
	idx, err := env.tbl.ColIndex(ex.Name)
	if err != nil {
		return nil, missingColumn(env.tbl.Name, ex.Name)
	}
	src := env.row + ex.Offset
	if src < 0 || src >= len(env.tbl.Rows) {
		return nil, nil
	}
	return env.tbl.Rows[src][idx], nil
}

func evalUnary(env evalEnv, ex *Unary) (any, error) {
	v, err := evalExpr(env, ex.Expr)
	if err != nil {
		return nil, err
	}
	switch ex.Op {
	case "+":
		if v == nil {
			return nil, nil
		}
		if _, ok := numeric(v); ok {
			return v, nil
		}
		return nil, malformed("", -1, "unary + expects a numeric operand, got %T", v)
	case "-":
		if v == nil {
			return nil, nil
		}
		if n, ok := v.(int64); ok {
			return -n, nil
		}
		if f, ok := numeric(v); ok {
			return -f, nil
		}
		return nil, malformed("", -1, "unary - expects a numeric operand, got %T", v)
	case "NOT":
		return triToValue(triNot(toTri(v))), nil
	}
	return nil, malformed("", -1, "unknown unary operator %q", ex.Op)
}

func evalBinary(env evalEnv, ex *Binary) (any, error) {
	if ex.Op == "AND" || ex.Op == "OR" {
		return evalLogicalBinary(env, ex)
	}
	lv, err := evalExpr(env, ex.Left)
	if err != nil {
		return nil, err
	}
	rv, err := evalExpr(env, ex.Right)
	if err != nil {
		return nil, err
	}
	switch ex.Op {
	case "+", "-", "*", "/", "%":
		return evalArithmeticBinary(ex.Op, lv, rv)
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return evalComparisonBinary(ex.Op, lv, rv)
	}
	return nil, malformed("", -1, "unknown binary operator %q", ex.Op)
}

// evalLogicalBinary short-circuits on a definite answer; otherwise the
// Kleene tables decide, so NULL operands yield NULL rather than an error.
func evalLogicalBinary(env evalEnv, ex *Binary) (any, error) {
	lv, err := evalExpr(env, ex.Left)
	if err != nil {
		return nil, err
	}
	if ex.Op == "AND" && toTri(lv) == tvFalse {
		return false, nil
	}
	if ex.Op == "OR" && toTri(lv) == tvTrue {
		return true, nil
	}
	rv, err := evalExpr(env, ex.Right)
	if err != nil {
		return nil, err
	}
	if ex.Op == "AND" {
		return triToValue(triAnd(toTri(lv), toTri(rv))), nil
	}
	return triToValue(triOr(toTri(lv), toTri(rv))), nil
}

func evalArithmeticBinary(op string, lv, rv any) (any, error) {
	if lv == nil || rv == nil {
		return nil, nil // missing propagates
	}
	if op == "+" {
		if ls, ok := lv.(string); ok {
			if rs, ok := rv.(string); ok {
				return ls + rs, nil
			}
		}
	}
	li, lInt := lv.(int64)
	ri, rInt := rv.(int64)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, malformed("", -1, "division by zero")
			}
			return li / ri, nil
		case "%":
			if ri == 0 {
				return nil, malformed("", -1, "division by zero")
			}
			return li % ri, nil
		}
	}
	lf, lok := numeric(lv)
	rf, rok := numeric(rv)
	if !(lok && rok) {
		return nil, malformed("", -1, "operator %q expects numeric operands, got %T and %T", op, lv, rv)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, malformed("", -1, "division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, malformed("", -1, "division by zero")
		}
		return math.Mod(lf, rf), nil
	}
	return nil, malformed("", -1, "unknown arithmetic operator %q", op)
}

// evalComparisonBinary compares two concrete values. A NULL on either side
// yields NULL (Unknown), so a condition testing the missing sentinel against
// a concrete value never selects the row.
func evalComparisonBinary(op string, lv, rv any) (any, error) {
	if lv == nil || rv == nil {
		return nil, nil
	}
	cmp, err := compare(lv, rv)
	if err != nil {
		return nil, err
	}
	switch op {
	case "=":
		return cmp == 0, nil
	case "!=", "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return nil, malformed("", -1, "unknown comparison operator %q", op)
}

// -------------------- coercions and three-valued logic --------------------

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return false
	}
}

const (
	tvFalse   = 0
	tvTrue    = 1
	tvUnknown = 2
)

func toTri(v any) int {
	if v == nil {
		return tvUnknown
	}
	if truthy(v) {
		return tvTrue
	}
	return tvFalse
}

func triNot(t int) int {
	if t == tvTrue {
		return tvFalse
	}
	if t == tvFalse {
		return tvTrue
	}
	return tvUnknown
}

func triAnd(a, b int) int {
	if a == tvFalse || b == tvFalse {
		return tvFalse
	}
	if a == tvTrue && b == tvTrue {
		return tvTrue
	}
	return tvUnknown
}

func triOr(a, b int) int {
	if a == tvTrue || b == tvTrue {
		return tvTrue
	}
	if a == tvFalse && b == tvFalse {
		return tvFalse
	}
	return tvUnknown
}

func triToValue(t int) any {
	switch t {
	case tvTrue:
		return true
	case tvFalse:
		return false
	}
	return nil
}

func compare(a, b any) (int, error) {
	switch ax := a.(type) {
	case int, int64, float64:
		af, _ := numeric(a)
		if bf, ok := numeric(b); ok {
			return compareFloat(af, bf), nil
		}
	case string:
		if bs, ok := b.(string); ok {
			return strings.Compare(ax, bs), nil
		}
	case bool:
		if bb, ok := b.(bool); ok {
			if ax == bb {
				return 0, nil
			}
			if !ax {
				return -1, nil
			}
			return 1, nil
		}
	case time.Time:
		if bt, ok := b.(time.Time); ok {
			switch {
			case ax.Before(bt):
				return -1, nil
			case ax.After(bt):
				return 1, nil
			}
			return 0, nil
		}
	case uuid.UUID:
		if bu, ok := b.(uuid.UUID); ok {
			return strings.Compare(ax.String(), bu.String()), nil
		}
	}
	return 0, malformed("", -1, "incomparable values of type %T and %T", a, b)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
