package bpmn

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidExpression is returned for condition expressions outside the supported grammar.
var ErrInvalidExpression = errors.New("invalid expression")

// operators are matched longest first so ">=" is not read as ">".
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

// Condition is a parsed sequence flow condition of one of the forms
// ${name}, ${!name} or ${name <op> literal}.
type Condition struct {
	Variable string
	Negate   bool
	Op       string
	Literal  any
}

// ParseCondition parses a condition expression.
func ParseCondition(expr string) (*Condition, error) {
	body := strings.TrimSpace(expr)
	if !strings.HasPrefix(body, "${") || !strings.HasSuffix(body, "}") {
		return nil, fmt.Errorf("%w: %q must be wrapped in ${...}", ErrInvalidExpression, expr)
	}
	body = strings.TrimSpace(body[2 : len(body)-1])

	for _, op := range operators {
		i := strings.Index(body, op)
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(body[:i])
		if !isIdentifier(name) {
			return nil, fmt.Errorf("%w: %q is not a variable name", ErrInvalidExpression, name)
		}
		lit, err := parseLiteral(strings.TrimSpace(body[i+len(op):]))
		if err != nil {
			return nil, err
		}
		return &Condition{Variable: name, Op: op, Literal: lit}, nil
	}

	c := &Condition{}
	if strings.HasPrefix(body, "!") {
		c.Negate = true
		body = strings.TrimSpace(body[1:])
	}
	if !isIdentifier(body) {
		return nil, fmt.Errorf("%w: %q is not a variable name", ErrInvalidExpression, body)
	}
	c.Variable = body
	return c, nil
}

// Eval parses and evaluates a condition expression against variable values.
func Eval(expr string, vars map[string]any) (bool, error) {
	c, err := ParseCondition(expr)
	if err != nil {
		return false, err
	}
	return c.Eval(vars)
}

// Eval evaluates the condition against variable values.
func (c *Condition) Eval(vars map[string]any) (bool, error) {
	v, ok := vars[c.Variable]
	if !ok {
		return false, fmt.Errorf("unknown variable %q", c.Variable)
	}

	if c.Op == "" {
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("variable %q is %T, not a boolean", c.Variable, v)
		}
		return b != c.Negate, nil
	}

	switch lit := c.Literal.(type) {
	case nil:
		switch c.Op {
		case "==":
			return v == nil, nil
		case "!=":
			return v != nil, nil
		}
	case bool:
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("variable %q is %T, not a boolean", c.Variable, v)
		}
		switch c.Op {
		case "==":
			return b == lit, nil
		case "!=":
			return b != lit, nil
		}
	case float64:
		f, ok := number(v)
		if !ok {
			return false, fmt.Errorf("variable %q is %T, not a number", c.Variable, v)
		}
		return compare(c.Op, cmpFloat(f, lit)), nil
	case string:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("variable %q is %T, not a string", c.Variable, v)
		}
		return compare(c.Op, strings.Compare(s, lit)), nil
	}
	return false, fmt.Errorf("%w: operator %s not defined for %v", ErrInvalidExpression, c.Op, c.Literal)
}

func parseLiteral(s string) (any, error) {
	switch s {
	case "null":
		return nil, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: literal %q", ErrInvalidExpression, s)
	}
	return f, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compare(op string, cmp int) bool {
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	default:
		return cmp <= 0
	}
}
