package formula

import (
	"fmt"
	"strings"

	"github.com/gridbase/gridbase/pkg/schema"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokComma
	tokOp
	tokAnd
	tokOr
	tokNot
	tokTrue
	tokFalse
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset into the formula source
}

// lex tokenizes a formula. Identifiers are case-sensitive field names;
// keywords (AND, OR, NOT, TRUE, FALSE) are case-insensitive. String
// literals use double quotes with backslash escaping.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '%':
			tokens = append(tokens, token{tokOp, string(c), i})
			i++
		case c == '=':
			tokens = append(tokens, token{tokOp, "=", i})
			i++
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				tokens = append(tokens, token{tokOp, "!=", i})
				i += 2
			} else {
				return nil, parseErrorf(i, "unexpected character %q", c)
			}
		case c == '<':
			switch {
			case i+1 < len(src) && src[i+1] == '=':
				tokens = append(tokens, token{tokOp, "<=", i})
				i += 2
			case i+1 < len(src) && src[i+1] == '>':
				tokens = append(tokens, token{tokOp, "!=", i})
				i += 2
			default:
				tokens = append(tokens, token{tokOp, "<", i})
				i++
			}
		case c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				tokens = append(tokens, token{tokOp, ">=", i})
				i += 2
			} else {
				tokens = append(tokens, token{tokOp, ">", i})
				i++
			}
		case c == '"':
			text, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokString, text, i})
			i = next
		case c >= '0' && c <= '9':
			start := i
			seenDot := false
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' && !seenDot) {
				if src[i] == '.' {
					seenDot = true
				}
				i++
			}
			tokens = append(tokens, token{tokNumber, src[start:i], start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			word := src[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, token{tokAnd, word, start})
			case "OR":
				tokens = append(tokens, token{tokOr, word, start})
			case "NOT":
				tokens = append(tokens, token{tokNot, word, start})
			case "TRUE":
				tokens = append(tokens, token{tokTrue, word, start})
			case "FALSE":
				tokens = append(tokens, token{tokFalse, word, start})
			default:
				tokens = append(tokens, token{tokIdent, word, start})
			}
		default:
			return nil, parseErrorf(i, "unexpected character %q", c)
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(src)})
	return tokens, nil
}

func lexString(src string, start int) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(src) {
		switch src[i] {
		case '"':
			return sb.String(), i + 1, nil
		case '\\':
			if i+1 >= len(src) {
				return "", 0, parseErrorf(i, "unterminated escape")
			}
			sb.WriteByte(src[i+1])
			i += 2
		default:
			sb.WriteByte(src[i])
			i++
		}
	}
	return "", 0, parseErrorf(start, "unterminated string literal")
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// parseErrorf builds a formula parse error carrying the character offset.
// Parse errors classify as invalid field configuration.
func parseErrorf(pos int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: formula parse error at offset %d: %s",
		schema.ErrInvalidFieldConfig, pos, fmt.Sprintf(format, args...))
}
