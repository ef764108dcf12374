/*
Package formula evaluates the admin-editable subtotal formula.

PURPOSE:
  A line item's subtotal is computed from an arithmetic expression stored in
  the database, e.g. "(valor_profesor + valor_alumnos) * horas". The
  expression is parsed by a small arithmetic-only parser; it has no access to
  functions, names or state beyond the three bound variables.

GRAMMAR:
  expr    := term (('+' | '-') term)*
  term    := unary (('*' | '/') unary)*
  unary   := ('+' | '-') unary | primary
  primary := number | variable | '(' expr ')'

  number:   decimal literal (12, 12.5, .5)
  variable: valor_profesor | valor_alumnos | horas

  Anything else ("**", "%", "//", unknown names, calls) is a parse error.

FAIL-SAFE:
  Evaluate never returns an error. A syntax error, an unknown variable or a
  division by zero yields zero so that a broken formula never blocks the
  creation of a statement. Use Parse/Validate when the error matters.

PRECISION:
  All arithmetic uses decimal.Decimal. Division keeps
  decimal.DivisionPrecision digits.

SEE ALSO:
  - payroll/settlement.go: binds rates and hours into Vars
*/
package formula

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Variable names available inside a formula.
const (
	VarTeacherRate = "valor_profesor"
	VarBandRate    = "valor_alumnos"
	VarHours       = "horas"
)

// Default is the formula seeded on first start.
const Default = "(" + VarTeacherRate + " + " + VarBandRate + ") * " + VarHours

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 64

var (
	// ErrSyntax is returned for malformed expressions.
	ErrSyntax = errors.New("formula syntax error")

	// ErrUnknownVariable is returned when an identifier is not one of the bound variables.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrDivisionByZero is returned when a divisor evaluates to zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Vars binds the three formula variables.
type Vars struct {
	TeacherRate decimal.Decimal // valor_profesor
	BandRate    decimal.Decimal // valor_alumnos
	Hours       decimal.Decimal // horas
}

func (v Vars) lookup(name string) decimal.Decimal {
	switch name {
	case VarTeacherRate:
		return v.TeacherRate
	case VarBandRate:
		return v.BandRate
	default:
		return v.Hours
	}
}

func isVariable(name string) bool {
	return name == VarTeacherRate || name == VarBandRate || name == VarHours
}

// Expression is a parsed formula, safe to evaluate repeatedly.
type Expression struct {
	source string
	root   node
}

// String returns the source text.
func (e *Expression) String() string { return e.source }

// Eval evaluates the expression against vars.
func (e *Expression) Eval(vars Vars) (decimal.Decimal, error) {
	return e.root.eval(vars)
}

// Parse compiles expr. The error wraps ErrSyntax or ErrUnknownVariable.
func Parse(expr string) (*Expression, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, tok.text, tok.pos)
	}
	return &Expression{source: expr, root: root}, nil
}

// Validate reports whether expr parses.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// Evaluate parses and evaluates expr, returning zero on any failure.
func Evaluate(expr string, vars Vars) decimal.Decimal {
	e, err := Parse(expr)
	if err != nil {
		return decimal.Zero
	}
	v, err := e.Eval(vars)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// =============================================================================
// AST
// =============================================================================

type node interface {
	eval(vars Vars) (decimal.Decimal, error)
}

type numberNode struct{ value decimal.Decimal }

func (n numberNode) eval(Vars) (decimal.Decimal, error) { return n.value, nil }

type variableNode struct{ name string }

func (n variableNode) eval(vars Vars) (decimal.Decimal, error) { return vars.lookup(n.name), nil }

type negateNode struct{ operand node }

func (n negateNode) eval(vars Vars) (decimal.Decimal, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

type binaryNode struct {
	op          tokenKind
	left, right node
}

func (n binaryNode) eval(vars Vars) (decimal.Decimal, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case tokPlus:
		return l.Add(r), nil
	case tokMinus:
		return l.Sub(r), nil
	case tokStar:
		return l.Mul(r), nil
	default:
		if r.IsZero() {
			return decimal.Zero, ErrDivisionByZero
		}
		return l.Div(r), nil
	}
}

// =============================================================================
// PARSER - recursive descent
// =============================================================================

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseExpr(depth int) (node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: expression nested too deeply", ErrSyntax)
	}
	left, err := p.parseTerm(depth)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokPlus && tok.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm(depth)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseTerm(depth int) (node, error) {
	left, err := p.parseUnary(depth)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokStar && tok.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary(depth)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseUnary(depth int) (node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: expression nested too deeply", ErrSyntax)
	}
	switch p.peek().kind {
	case tokPlus:
		p.next()
		return p.parseUnary(depth + 1)
	case tokMinus:
		p.next()
		operand, err := p.parseUnary(depth + 1)
		if err != nil {
			return nil, err
		}
		return negateNode{operand: operand}, nil
	}
	return p.parsePrimary(depth)
}

func (p *parser) parsePrimary(depth int) (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		v, err := decimal.NewFromString(tok.text)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q at position %d", ErrSyntax, tok.text, tok.pos)
		}
		return numberNode{value: v}, nil
	case tokIdent:
		if !isVariable(tok.text) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, tok.text)
		}
		return variableNode{name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseExpr(depth + 1)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')' at position %d", ErrSyntax, closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of formula", ErrSyntax)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, tok.text, tok.pos)
	}
}
