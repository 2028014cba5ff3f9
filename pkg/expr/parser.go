package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// statusFunctions are answered by a StatusContext rather than by arguments.
var statusFunctions = map[string]bool{
	"always":    true,
	"success":   true,
	"failure":   true,
	"cancelled": true,
}

var stringFunctions = map[string]bool{
	"contains":   true,
	"startsWith": true,
	"endsWith":   true,
}

type parser struct {
	tokens []token
	pos    int
	status bool
}

func (p *parser) peek() *token {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) peekOp(ops ...string) (string, bool) {
	t := p.peek()
	if t == nil || t.kind != tkOp {
		return "", false
	}
	for _, op := range ops {
		if t.value == op {
			return op, true
		}
	}
	return "", false
}

// parseOr handles: expr || expr
func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logical{or: true, left: left, right: right}
	}
}

// parseAnd handles: expr && expr
func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &logical{left: left, right: right}
	}
}

// parseComparison handles: expr (==|!=|>|<|>=|<=) expr
func (p *parser) parseComparison() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOp("==", "!=", ">", "<", ">=", "<=")
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &comparison{op: op, left: left, right: right}, nil
}

func (p *parser) parseUnary() (node, error) {
	if _, ok := p.peekOp("!"); ok {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &not{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case tkNumber:
		p.advance()
		f, err := strconv.ParseFloat(t.value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.value, err)
		}
		return &literal{value: f}, nil

	case tkString:
		p.advance()
		return &literal{value: t.value}, nil

	case tkIdent:
		p.advance()
		if next := p.peek(); next != nil && next.kind == tkLParen {
			return p.parseCall(*t)
		}
		switch t.value {
		case "true":
			return &literal{value: true}, nil
		case "false":
			return &literal{value: false}, nil
		}
		return &reference{path: strings.Split(t.value, ".")}, nil

	case tkLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if next := p.peek(); next == nil || next.kind != tkRParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.advance()
		return inner, nil

	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", t.value, t.pos)
	}
}

func (p *parser) parseCall(name token) (node, error) {
	p.advance() // (

	var args []node
	if next := p.peek(); next != nil && next.kind == tkRParen {
		p.advance()
	} else {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			next := p.peek()
			if next == nil {
				return nil, fmt.Errorf("unterminated call to %s()", name.value)
			}
			if next.kind == tkComma {
				p.advance()
				continue
			}
			if next.kind == tkRParen {
				p.advance()
				break
			}
			return nil, fmt.Errorf("unexpected token %q in call to %s()", next.value, name.value)
		}
	}

	switch {
	case statusFunctions[name.value]:
		if len(args) != 0 {
			return nil, fmt.Errorf("%s() takes no arguments", name.value)
		}
		p.status = true
		return &statusCall{name: name.value}, nil
	case stringFunctions[name.value]:
		if len(args) != 2 {
			return nil, fmt.Errorf("%s() takes exactly 2 arguments", name.value)
		}
		return &stringCall{name: name.value, left: args[0], right: args[1]}, nil
	default:
		return nil, fmt.Errorf("unknown function %s() at position %d", name.value, name.pos)
	}
}
