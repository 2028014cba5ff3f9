package expr

import (
	"fmt"
	"strings"
)

// Template is a string with embedded ${{ expression }} segments.
type Template struct {
	source   string
	segments []segment
}

type segment struct {
	text string
	expr *Expression
}

// MustCompileTemplate is like CompileTemplate but panics on error.
func MustCompileTemplate(src string) *Template {
	t, err := CompileTemplate(src)
	if err != nil {
		panic(err)
	}
	return t
}

// CompileTemplate splits src into literal text and compiled expressions.
func CompileTemplate(src string) (*Template, error) {
	t := &Template{source: src}
	rest := src
	for {
		start := strings.Index(rest, "${{")
		if start < 0 {
			if rest != "" {
				t.segments = append(t.segments, segment{text: rest})
			}
			return t, nil
		}
		end := closingBraces(rest, start+3)
		if end < 0 {
			return nil, fmt.Errorf("unterminated ${{ in %q", src)
		}
		if start > 0 {
			t.segments = append(t.segments, segment{text: rest[:start]})
		}
		e, err := Compile(rest[start+3 : end])
		if err != nil {
			return nil, err
		}
		t.segments = append(t.segments, segment{expr: e})
		rest = rest[end+2:]
	}
}

// closingBraces finds the "}}" that ends an expression, ignoring braces
// inside quoted strings.
func closingBraces(s string, from int) int {
	var quote byte
	for i := from; i < len(s)-1; i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '}' && s[i+1] == '}':
			return i
		}
	}
	return -1
}

// String returns the template source.
func (t *Template) String() string { return t.source }

// IsLiteral reports whether the template contains no expressions.
func (t *Template) IsLiteral() bool {
	for _, s := range t.segments {
		if s.expr != nil {
			return false
		}
	}
	return true
}

// Render evaluates every expression segment against ctx.
func (t *Template) Render(ctx Context) (string, error) {
	var sb strings.Builder
	for _, s := range t.segments {
		if s.expr == nil {
			sb.WriteString(s.text)
			continue
		}
		v, err := s.expr.EvalString(ctx)
		if err != nil {
			return "", err
		}
		sb.WriteString(v)
	}
	return sb.String(), nil
}
