// Package sqldsl provides a small SQL expression DSL used by the formula
// compiler, relationship resolver, and view compiler. It models the
// expressions gridbase emits rather than generic SQL syntax.
package sqldsl

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is the interface that all SQL expression types implement.
type Expr interface {
	SQL() string
}

// QuoteIdent quotes a SQL identifier with double quotes, doubling any
// embedded quote characters.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Col represents a column reference (e.g. t."unit_price").
// The identifier is always quoted; Table is optional.
type Col struct {
	Table  string
	Column string
}

// SQL renders the column reference.
func (c Col) SQL() string {
	if c.Table == "" {
		return QuoteIdent(c.Column)
	}
	return QuoteIdent(c.Table) + "." + QuoteIdent(c.Column)
}

// Lit represents a literal string value (auto-quoted with single quotes).
type Lit string

// SQL renders the literal with single quotes, doubling embedded quotes.
func (l Lit) SQL() string {
	return "'" + strings.ReplaceAll(string(l), "'", "''") + "'"
}

// Raw is an escape hatch for arbitrary SQL expressions.
type Raw string

// SQL renders the raw SQL as-is.
func (r Raw) SQL() string {
	return string(r)
}

// Int represents an integer literal.
type Int int64

// SQL renders the integer.
func (i Int) SQL() string {
	return strconv.FormatInt(int64(i), 10)
}

// Float represents a numeric literal.
type Float float64

// SQL renders the numeric literal.
func (f Float) SQL() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

// Bool represents a boolean literal.
type Bool bool

// SQL renders the boolean.
func (b Bool) SQL() string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Null represents SQL NULL.
type Null struct{}

// SQL renders NULL.
func (Null) SQL() string {
	return "NULL"
}

// Bind represents a positional bind parameter ($1, $2, ...).
// Values are always bound, never interpolated, so user-supplied filter
// values cannot inject SQL.
type Bind int

// SQL renders the placeholder.
func (b Bind) SQL() string {
	return "$" + strconv.Itoa(int(b))
}

// Func represents a SQL function call.
type Func struct {
	Name string
	Args []Expr
}

// SQL renders the function call.
func (f Func) SQL() string {
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		args[i] = arg.SQL()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

// Paren wraps an expression in parentheses.
type Paren struct {
	Expr Expr
}

// SQL renders the parenthesized expression.
func (p Paren) SQL() string {
	return "(" + p.Expr.SQL() + ")"
}

// Infix represents a binary operator expression rendered left op right.
type Infix struct {
	Left  Expr
	Op    string
	Right Expr
}

// SQL renders the infix expression.
func (i Infix) SQL() string {
	return i.Left.SQL() + " " + i.Op + " " + i.Right.SQL()
}

// Prefix represents a unary operator expression (e.g. -x, NOT x).
type Prefix struct {
	Op   string
	Expr Expr
}

// SQL renders the prefix expression.
func (p Prefix) SQL() string {
	if strings.HasSuffix(p.Op, "T") { // word operators (NOT) need a space
		return p.Op + " " + p.Expr.SQL()
	}
	return p.Op + p.Expr.SQL()
}

// Cast renders expr::type.
type Cast struct {
	Expr Expr
	Type string
}

// SQL renders the cast.
func (c Cast) SQL() string {
	return "(" + c.Expr.SQL() + ")::" + c.Type
}

// Alias wraps an expression with an alias (expr AS alias).
// The alias is quoted as an identifier.
type Alias struct {
	Expr Expr
	Name string
}

// SQL renders the aliased expression.
func (a Alias) SQL() string {
	return a.Expr.SQL() + " AS " + QuoteIdent(a.Name)
}

// Case represents CASE WHEN cond THEN value [...] ELSE else END.
type Case struct {
	Whens []When
	Else  Expr
}

// When is a single WHEN arm of a Case expression.
type When struct {
	Cond  Expr
	Value Expr
}

// SQL renders the case expression.
func (c Case) SQL() string {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, w := range c.Whens {
		fmt.Fprintf(&sb, " WHEN %s THEN %s", w.Cond.SQL(), w.Value.SQL())
	}
	if c.Else != nil {
		sb.WriteString(" ELSE " + c.Else.SQL())
	}
	sb.WriteString(" END")
	return sb.String()
}

// Concat represents SQL string concatenation (||), which propagates NULL.
type Concat struct {
	Parts []Expr
}

// SQL renders the concatenation.
func (c Concat) SQL() string {
	if len(c.Parts) == 0 {
		return "''"
	}
	parts := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		parts[i] = p.SQL()
	}
	return strings.Join(parts, " || ")
}

// And joins expressions with AND, parenthesizing the result.
// Nil expressions are skipped; an empty list renders TRUE.
func And(exprs ...Expr) Expr {
	return joinLogical("AND", exprs)
}

// Or joins expressions with OR, parenthesizing the result.
// Nil expressions are skipped; an empty list renders FALSE.
func Or(exprs ...Expr) Expr {
	return joinLogical("OR", exprs)
}

func joinLogical(op string, exprs []Expr) Expr {
	filtered := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	switch len(filtered) {
	case 0:
		return Bool(op == "AND")
	case 1:
		return filtered[0]
	}
	parts := make([]string, len(filtered))
	for i, e := range filtered {
		parts[i] = e.SQL()
	}
	return Raw("(" + strings.Join(parts, " "+op+" ") + ")")
}
