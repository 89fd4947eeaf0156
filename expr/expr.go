// Package expr evaluates EXPR(...) sub-expressions accepted by SET/UPDATE
// and the standalone EXPR command: arithmetic over literals and GET/STRLEN
// reads against the store.
package expr

import (
	"strconv"
	"strings"

	"github.com/calderadb/caldera/value"
)

// Store is the minimal read access an expression needs. engine.Engine
// satisfies this; expr never imports engine to avoid a cycle.
type Store interface {
	Get(key int32) (value.Value, error)
}

// operators are tried in this order at the top level of an expression, the
// same order the grammar this is grounded on scans in.
const operators = "-+*/%"

// Eval evaluates expr against store. For each operator in turn, if expr
// contains it, expr is split on every occurrence of that character; if the
// split yields exactly two parts, both are evaluated recursively and
// combined. An operator that appears more than once (so the split yields
// more than two parts) is skipped in favor of the next one, exactly as the
// grammar this is grounded on does. Expressions that match no operator
// fall back to GET/STRLEN sub-expressions, then a literal.
func Eval(expr string, store Store) (value.Value, error) {
	expr = strings.TrimSpace(expr)

	for _, op := range operators {
		if !strings.ContainsRune(expr, op) {
			continue
		}
		parts := strings.Split(expr, string(op))
		if len(parts) != 2 {
			continue
		}
		left, err := Eval(parts[0], store)
		if err != nil {
			return value.Value{}, err
		}
		right, err := Eval(parts[1], store)
		if err != nil {
			return value.Value{}, err
		}
		return apply(op, left, right)
	}

	if rest, ok := trimPrefix(expr, "GET"); ok {
		key, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 32)
		if err != nil {
			return value.Value{}, &parseError{msg: "GET expects an integer key"}
		}
		return store.Get(int32(key))
	}

	if rest, ok := trimPrefix(expr, "STRLEN"); ok {
		key, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 32)
		if err != nil {
			return value.Value{}, &parseError{msg: "STRLEN expects an integer key"}
		}
		v, err := store.Get(int32(key))
		if err != nil {
			return value.Value{}, err
		}
		return value.Integer(int64(len(v.ToString()))), nil
	}

	return literal(expr), nil
}

func apply(op rune, left, right value.Value) (value.Value, error) {
	switch op {
	case '+':
		return left.Add(right)
	case '-':
		return left.Sub(right)
	case '*':
		return left.Mul(right)
	case '/':
		return left.Div(right)
	case '%':
		return left.Mod(right)
	default:
		return value.Value{}, &parseError{msg: "unknown operator"}
	}
}

// trimPrefix reports whether expr starts with the command word kw followed
// by a word boundary, returning the remainder.
func trimPrefix(expr, kw string) (string, bool) {
	if !strings.HasPrefix(expr, kw) {
		return "", false
	}
	rest := expr[len(kw):]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return "", false
	}
	return rest, true
}

// literal parses expr as the first of null, true/false, integer, float,
// else a bare string.
func literal(expr string) value.Value {
	switch expr {
	case "null":
		return value.Null()
	case "true":
		return value.Boolean(true)
	case "false":
		return value.Boolean(false)
	}
	if i, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return value.Integer(i)
	}
	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return value.Float(f)
	}
	return value.String(expr)
}

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
