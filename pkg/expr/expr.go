package expr

import (
	"fmt"
	"strings"
)

// Context resolves dotted references. A false second result means the
// reference is unknown; it then evaluates to the empty string.
type Context interface {
	Lookup(path []string) (string, bool)
}

// StatusContext answers the job status functions success(), failure() and
// cancelled(). Only job conditions are evaluated against one.
type StatusContext interface {
	Context
	Status(name string) bool
}

// Expression is a compiled expression.
type Expression struct {
	source string
	root   node
	status bool
}

// Compile parses src once. A surrounding ${{ }} is optional.
func Compile(src string) (*Expression, error) {
	body := strings.TrimSpace(src)
	if strings.HasPrefix(body, "${{") && strings.HasSuffix(body, "}}") {
		body = strings.TrimSpace(body[3 : len(body)-2])
	}
	if body == "" {
		return nil, fmt.Errorf("empty expression")
	}

	tokens, err := tokenize(body)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	if p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		return nil, fmt.Errorf("compile %q: unexpected token %q at position %d", src, t.value, t.pos)
	}

	return &Expression{source: src, root: root, status: p.status}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source text.
func (e *Expression) String() string { return e.source }

// UsesStatusFunction reports whether the expression calls always(),
// success(), failure() or cancelled().
func (e *Expression) UsesStatusFunction() bool { return e.status }

// Eval evaluates the expression. The result is a string, bool or float64.
func (e *Expression) Eval(ctx Context) (any, error) {
	return e.root.eval(ctx)
}

// EvalBool evaluates the expression and coerces the result to a boolean.
func (e *Expression) EvalBool(ctx Context) (bool, error) {
	v, err := e.root.eval(ctx)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// EvalString evaluates the expression and formats the result.
func (e *Expression) EvalString(ctx Context) (string, error) {
	v, err := e.root.eval(ctx)
	if err != nil {
		return "", err
	}
	return Format(v), nil
}

// MapContext resolves references from a flat map keyed by dotted path,
// for example "vars.branch" or "run.id".
type MapContext map[string]string

// Lookup implements Context.
func (m MapContext) Lookup(path []string) (string, bool) {
	v, ok := m[strings.Join(path, ".")]
	return v, ok
}
