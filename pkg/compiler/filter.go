package compiler

import (
	"fmt"

	"github.com/gridbase/gridbase/internal/sqldsl"
	"github.com/gridbase/gridbase/pkg/schema"
)

// BindFunc turns a condition value into a SQL expression. The view
// compiler passes a collector that appends to the bound-parameter list and
// returns a placeholder; rollup/count filters, whose values come from the
// trusted schema document, use literal rendering.
type BindFunc func(value interface{}) sqldsl.Expr

// LiteralBind renders values as escaped SQL literals.
func LiteralBind(value interface{}) sqldsl.Expr {
	switch v := value.(type) {
	case nil:
		return sqldsl.Null{}
	case bool:
		return sqldsl.Bool(v)
	case int:
		return sqldsl.Int(v)
	case int64:
		return sqldsl.Int(v)
	case float64:
		return sqldsl.Float(v)
	case string:
		return sqldsl.Lit(v)
	default:
		return sqldsl.Lit(fmt.Sprintf("%v", v))
	}
}

// FieldResolver maps a filter condition's field name onto the SQL
// expression that reads it: a plain column for stored fields, the computed
// expression for query-time fields.
type FieldResolver func(field string) (sqldsl.Expr, error)

// RenderFilter compiles a filter expression tree into a SQL predicate over
// the given table alias. Group nodes become parenthesized AND/OR chains;
// condition leaves map onto fixed operator templates with values produced
// by bind, never interpolated raw.
func RenderFilter(alias string, node *schema.FilterNode, bind BindFunc) (sqldsl.Expr, error) {
	return RenderFilterExpr(func(field string) (sqldsl.Expr, error) {
		return sqldsl.Col{Table: alias, Column: field}, nil
	}, node, bind)
}

// RenderFilterExpr is RenderFilter with caller-controlled field resolution.
// The view compiler uses it to substitute computed-field expressions where
// no physical column exists.
func RenderFilterExpr(resolve FieldResolver, node *schema.FilterNode, bind BindFunc) (sqldsl.Expr, error) {
	if node.IsGroup() {
		children := make([]sqldsl.Expr, 0, len(node.Children))
		for _, child := range node.Children {
			expr, err := RenderFilterExpr(resolve, child, bind)
			if err != nil {
				return nil, err
			}
			children = append(children, expr)
		}
		if node.Operator == "or" {
			return sqldsl.Or(children...), nil
		}
		return sqldsl.And(children...), nil
	}
	return renderCondition(resolve, node, bind)
}

func renderCondition(resolve FieldResolver, node *schema.FilterNode, bind BindFunc) (sqldsl.Expr, error) {
	col, err := resolve(node.Field)
	if err != nil {
		return nil, err
	}

	// NULL comparisons use IS / IS NOT regardless of operator template.
	if node.Value == nil {
		switch node.Op {
		case "eq":
			return sqldsl.Raw(col.SQL() + " IS NULL"), nil
		case "neq":
			return sqldsl.Raw(col.SQL() + " IS NOT NULL"), nil
		}
	}

	switch node.Op {
	case "eq":
		return sqldsl.Infix{Left: col, Op: "=", Right: bind(node.Value)}, nil
	case "neq":
		return sqldsl.Infix{Left: col, Op: "<>", Right: bind(node.Value)}, nil
	case "gt":
		return sqldsl.Infix{Left: col, Op: ">", Right: bind(node.Value)}, nil
	case "gte":
		return sqldsl.Infix{Left: col, Op: ">=", Right: bind(node.Value)}, nil
	case "lt":
		return sqldsl.Infix{Left: col, Op: "<", Right: bind(node.Value)}, nil
	case "lte":
		return sqldsl.Infix{Left: col, Op: "<=", Right: bind(node.Value)}, nil
	case "in":
		values, ok := node.Value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: filter operator \"in\" on field %q requires a list value",
				schema.ErrInvalidFieldConfig, node.Field)
		}
		if len(values) == 0 {
			return sqldsl.Bool(false), nil
		}
		exprs := make([]sqldsl.Expr, len(values))
		for i, v := range values {
			exprs[i] = bind(v)
		}
		return sqldsl.Raw(col.SQL() + " IN (" + joinExprs(exprs) + ")"), nil
	case "contains":
		return sqldsl.Raw(col.SQL() + " ILIKE '%' || " + bind(node.Value).SQL() + " || '%'"), nil
	default:
		return nil, fmt.Errorf("%w: unknown filter operator %q on field %q",
			schema.ErrInvalidFieldConfig, node.Op, node.Field)
	}
}

func joinExprs(exprs []sqldsl.Expr) string {
	out := ""
	for i, e := range exprs {
		if i > 0 {
			out += ", "
		}
		out += e.SQL()
	}
	return out
}
