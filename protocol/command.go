package protocol

import (
	"strconv"
	"strings"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/value"
)

// CommandKind tags which operation a parsed Command requests.
type CommandKind int

const (
	CmdGet CommandKind = iota
	CmdSet
	CmdDelete
	CmdUpdate
	CmdAll
	CmdStrlen
	CmdStrcat
	CmdSubstr
	CmdPing
	CmdExit
	CmdExpr
	CmdDumpHeap // supplemented: exercises the slotted-page vocabulary directly
)

// Command is one parsed textual request. Only the fields relevant to Kind
// are meaningful. SET/UPDATE/STRCAT's value position may instead be an
// EXPR(...) sub-expression, left unevaluated here as ValueExpr for the
// caller to resolve through expr.Eval, since command parsing must not
// depend on the engine.
type Command struct {
	Kind  CommandKind
	Key   int32
	Value value.Value

	// Set when the value position was EXPR(...); Value is meaningless then.
	ValueExpr string
	HasExpr   bool

	Start  int
	Length int

	// Set for the standalone EXPR(<expr>) command.
	Expr string
}

// Parse parses one line of the textual command grammar.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, &common.ErrParse{Msg: "empty command"}
	}

	// EXPR(...) is a single token containing its own spaces (the
	// expression body), so it must be recognized before the line is split
	// on whitespace like every other command.
	if strings.HasPrefix(strings.ToUpper(line), "EXPR(") {
		expr, ok := exprBody(line)
		if !ok {
			return Command{}, &common.ErrParse{Msg: "expression must be in format EXPR(<expression>)"}
		}
		return Command{Kind: CmdExpr, Expr: expr}, nil
	}

	parts := strings.Fields(line)

	switch strings.ToUpper(parts[0]) {
	case "GET":
		key, err := requireKey(parts, "GET <key>")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdGet, Key: key}, nil

	case "SET":
		if len(parts) < 3 {
			return Command{}, &common.ErrParse{Msg: "usage: SET <key> <value>"}
		}
		key, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return Command{}, &common.ErrParse{Msg: "SET expects an integer key"}
		}
		cmd := Command{Kind: CmdSet, Key: int32(key)}
		setValueField(&cmd, strings.Join(parts[2:], " "))
		return cmd, nil

	case "UPDATE":
		if len(parts) < 3 {
			return Command{}, &common.ErrParse{Msg: "usage: UPDATE <key> <value>"}
		}
		key, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return Command{}, &common.ErrParse{Msg: "UPDATE expects an integer key"}
		}
		cmd := Command{Kind: CmdUpdate, Key: int32(key)}
		setValueField(&cmd, strings.Join(parts[2:], " "))
		return cmd, nil

	case "DEL":
		key, err := requireKey(parts, "DEL <key>")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdDelete, Key: key}, nil

	case "ALL":
		return Command{Kind: CmdAll}, nil

	case "STRLEN":
		key, err := requireKey(parts, "STRLEN <key>")
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CmdStrlen, Key: key}, nil

	case "STRCAT":
		if len(parts) < 3 {
			return Command{}, &common.ErrParse{Msg: "usage: STRCAT <key> <value>"}
		}
		key, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return Command{}, &common.ErrParse{Msg: "STRCAT expects an integer key"}
		}
		cmd := Command{Kind: CmdStrcat, Key: int32(key)}
		setValueField(&cmd, strings.Join(parts[2:], " "))
		return cmd, nil

	case "SUBSTR":
		if len(parts) != 4 {
			return Command{}, &common.ErrParse{Msg: "usage: SUBSTR <key> <start> <length>"}
		}
		key, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return Command{}, &common.ErrParse{Msg: "SUBSTR expects an integer key"}
		}
		start, err := strconv.Atoi(parts[2])
		if err != nil {
			return Command{}, &common.ErrParse{Msg: "SUBSTR expects an integer start"}
		}
		length, err := strconv.Atoi(parts[3])
		if err != nil {
			return Command{}, &common.ErrParse{Msg: "SUBSTR expects an integer length"}
		}
		return Command{Kind: CmdSubstr, Key: int32(key), Start: start, Length: length}, nil

	case "PING":
		return Command{Kind: CmdPing}, nil

	case "EXIT":
		return Command{Kind: CmdExit}, nil

	case "DUMPHEAP":
		return Command{Kind: CmdDumpHeap}, nil

	default:
		return Command{}, &common.ErrParse{Msg: "unknown command"}
	}
}

func requireKey(parts []string, usage string) (int32, error) {
	if len(parts) != 2 {
		return 0, &common.ErrParse{Msg: "usage: " + usage}
	}
	key, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return 0, &common.ErrParse{Msg: usage + " expects an integer key"}
	}
	return int32(key), nil
}

// setValueField fills cmd.Value or cmd.ValueExpr/HasExpr depending on
// whether valuePart is an EXPR(...) sub-expression.
func setValueField(cmd *Command, valuePart string) {
	if expr, ok := exprBody(valuePart); ok {
		cmd.HasExpr = true
		cmd.ValueExpr = expr
		return
	}
	cmd.Value = ParseValue(valuePart)
}

func exprBody(s string) (string, bool) {
	if !strings.HasPrefix(s, "EXPR(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	return strings.TrimSpace(s[len("EXPR(") : len(s)-1]), true
}

// ParseValue parses a value literal in the order null, true/false, integer,
// float, else string.
func ParseValue(s string) value.Value {
	switch s {
	case "null":
		return value.Null()
	case "true":
		return value.Boolean(true)
	case "false":
		return value.Boolean(false)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Integer(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Float(f)
	}
	return value.String(s)
}
