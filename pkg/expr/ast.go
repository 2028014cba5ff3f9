package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// node is one compiled expression tree node. Values are string, bool or float64.
type node interface {
	eval(ctx Context) (any, error)
}

type literal struct{ value any }

func (n *literal) eval(Context) (any, error) { return n.value, nil }

type reference struct{ path []string }

func (n *reference) eval(ctx Context) (any, error) {
	if ctx == nil {
		return "", nil
	}
	v, _ := ctx.Lookup(n.path)
	return v, nil
}

type not struct{ operand node }

func (n *not) eval(ctx Context) (any, error) {
	v, err := n.operand.eval(ctx)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type logical struct {
	or          bool
	left, right node
}

func (n *logical) eval(ctx Context) (any, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	if n.or && truthy(l) {
		return true, nil
	}
	if !n.or && !truthy(l) {
		return false, nil
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

type comparison struct {
	op          string
	left, right node
}

func (n *comparison) eval(ctx Context) (any, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	return compare(l, n.op, r), nil
}

type statusCall struct{ name string }

func (n *statusCall) eval(ctx Context) (any, error) {
	if n.name == "always" {
		return true, nil
	}
	sc, ok := ctx.(StatusContext)
	if !ok {
		return nil, fmt.Errorf("%s() is only available in job conditions", n.name)
	}
	return sc.Status(n.name), nil
}

type stringCall struct {
	name        string
	left, right node
}

func (n *stringCall) eval(ctx Context) (any, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	ls, rs := strings.ToLower(Format(l)), strings.ToLower(Format(r))
	switch n.name {
	case "contains":
		return strings.Contains(ls, rs), nil
	case "startsWith":
		return strings.HasPrefix(ls, rs), nil
	default:
		return strings.HasSuffix(ls, rs), nil
	}
}

// compare prefers numeric comparison when both sides are numbers and falls
// back to string comparison otherwise.
func compare(left any, op string, right any) bool {
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			switch op {
			case "==":
				return lb == rb
			case "!=":
				return lb != rb
			}
		}
	}

	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}

	ls, rs := Format(left), Format(right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		if val == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Format renders an evaluated value the way interpolation prints it.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
