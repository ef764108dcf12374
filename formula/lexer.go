package formula

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var operators = map[byte]tokenKind{
	'+': tokPlus,
	'-': tokMinus,
	'*': tokStar,
	'/': tokSlash,
	'(': tokLParen,
	')': tokRParen,
}

// tokenize splits expr into tokens. Operators that are not part of the
// grammar ("**", "//") are rejected here so they never reach the parser.
func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c) || c == '.':
			start := i
			dots := 0
			for i < len(expr) && (isDigit(expr[i]) || expr[i] == '.') {
				if expr[i] == '.' {
					dots++
				}
				i++
			}
			text := expr[start:i]
			if dots > 1 || text == "." {
				return nil, fmt.Errorf("%w: bad number %q at position %d", ErrSyntax, text, start)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, pos: start})

		case isIdentStart(c):
			start := i
			for i < len(expr) && (isIdentStart(expr[i]) || isDigit(expr[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: expr[start:i], pos: start})

		default:
			kind, ok := operators[c]
			if !ok {
				return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, c, i)
			}
			if (c == '*' || c == '/') && i+1 < len(expr) && expr[i+1] == c {
				return nil, fmt.Errorf("%w: operator %q is not supported", ErrSyntax, expr[i:i+2])
			}
			tokens = append(tokens, token{kind: kind, text: string(c), pos: i})
			i++
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(expr)})
	return tokens, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
