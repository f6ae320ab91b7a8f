// Package formula compiles formula field expressions into PostgreSQL.
//
// A formula is parsed into an AST with standard operator precedence,
// type-checked against a small four-type system (text, number, boolean,
// date) with a fixed implicit-coercion table, and emitted as a SQL
// expression. Bare identifiers resolve against the owning table's fields,
// including the implicit system fields; references to other formula fields
// are inlined by the compiler so generated columns never depend on other
// generated columns.
//
// Division by zero and NULL propagation follow SQL's native semantics:
// the emitted expression injects no guards, so NULL inputs yield NULL
// outputs exactly as the engine computes them.
package formula

import (
	"fmt"

	"github.com/gridbase/gridbase/internal/sqldsl"
	"github.com/gridbase/gridbase/pkg/schema"
)

// Env supplies identifier resolution for one table: the formula type of
// every referenceable field and, optionally, a SQL expression overriding
// the plain quoted column reference (used to inline other formulas and
// query-time computed fields).
type Env struct {
	Types map[string]Type
	SQL   map[string]sqldsl.Expr
}

// Compiled is the result of compiling one formula.
type Compiled struct {
	AST  Node
	Type Type
	SQL  string

	// Volatile marks formulas using NOW()/TODAY(); these are projected at
	// query time instead of being stored as generated columns.
	Volatile bool

	// Refs lists referenced field names, deduplicated, in first-use order.
	Refs []string
}

// Refs parses a formula and returns just its field references. Used by the
// compiler to build the dependency graph before full compilation.
func Refs(src string) ([]string, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return collectRefs(node), nil
}

func collectRefs(node Node) []string {
	seen := make(map[string]bool)
	var refs []string
	walkRefs(node, func(r *FieldRef) {
		if !seen[r.Name] {
			seen[r.Name] = true
			refs = append(refs, r.Name)
		}
	})
	return refs
}

// Compile parses, type-checks, and emits a formula. The declared result
// type must match the checked type or be reachable through the coercion
// table; a final cast is added when coercion is needed.
func Compile(src string, declared Type, env *Env) (*Compiled, error) {
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	c := &checker{env: env}
	typ, expr, err := c.check(node)
	if err != nil {
		return nil, err
	}
	if typ != declared {
		if !coercible(typ, declared) {
			return nil, typeErrorf(node.Pos(), "formula computes %s but declares %s", typ, declared)
		}
		expr = sqldsl.Cast{Expr: expr, Type: castSQLType(declared)}
	}
	return &Compiled{
		AST:      node,
		Type:     declared,
		SQL:      expr.SQL(),
		Volatile: c.volatile,
		Refs:     collectRefs(node),
	}, nil
}

type checker struct {
	env      *Env
	volatile bool
}

func (c *checker) check(node Node) (Type, sqldsl.Expr, error) {
	switch n := node.(type) {
	case *NumberLit:
		return TypeNumber, sqldsl.Raw(n.Value), nil
	case *StringLit:
		return TypeText, sqldsl.Lit(n.Value), nil
	case *BoolLit:
		return TypeBool, sqldsl.Bool(n.Value), nil
	case *FieldRef:
		typ, ok := c.env.Types[n.Name]
		if !ok {
			return TypeInvalid, nil, fmt.Errorf("%w: %q at offset %d", schema.ErrUnknownFieldReference, n.Name, n.Pos())
		}
		if expr, ok := c.env.SQL[n.Name]; ok {
			// Plain column substitutions (FK columns) need no grouping;
			// inlined expressions do.
			if col, isCol := expr.(sqldsl.Col); isCol {
				return typ, col, nil
			}
			return typ, sqldsl.Paren{Expr: expr}, nil
		}
		return typ, sqldsl.Col{Column: n.Name}, nil
	case *Unary:
		return c.checkUnary(n)
	case *Binary:
		return c.checkBinary(n)
	case *Call:
		return c.checkCall(n)
	default:
		return TypeInvalid, nil, typeErrorf(node.Pos(), "unsupported expression")
	}
}

func (c *checker) checkUnary(n *Unary) (Type, sqldsl.Expr, error) {
	typ, expr, err := c.check(n.X)
	if err != nil {
		return TypeInvalid, nil, err
	}
	switch n.Op {
	case "-":
		expr, err = c.coerce(expr, typ, TypeNumber, n.X.Pos())
		if err != nil {
			return TypeInvalid, nil, err
		}
		return TypeNumber, sqldsl.Paren{Expr: sqldsl.Prefix{Op: "-", Expr: expr}}, nil
	case "NOT":
		expr, err = c.coerce(expr, typ, TypeBool, n.X.Pos())
		if err != nil {
			return TypeInvalid, nil, err
		}
		return TypeBool, sqldsl.Paren{Expr: sqldsl.Prefix{Op: "NOT", Expr: expr}}, nil
	default:
		return TypeInvalid, nil, typeErrorf(n.Pos(), "unknown unary operator %q", n.Op)
	}
}

func (c *checker) checkBinary(n *Binary) (Type, sqldsl.Expr, error) {
	lt, lx, err := c.check(n.X)
	if err != nil {
		return TypeInvalid, nil, err
	}
	rt, rx, err := c.check(n.Y)
	if err != nil {
		return TypeInvalid, nil, err
	}

	switch n.Op {
	case "+", "-", "*", "/", "%":
		if lx, err = c.coerce(lx, lt, TypeNumber, n.X.Pos()); err != nil {
			return TypeInvalid, nil, err
		}
		if rx, err = c.coerce(rx, rt, TypeNumber, n.Y.Pos()); err != nil {
			return TypeInvalid, nil, err
		}
		return TypeNumber, sqldsl.Paren{Expr: sqldsl.Infix{Left: lx, Op: n.Op, Right: rx}}, nil

	case "AND", "OR":
		if lx, err = c.coerce(lx, lt, TypeBool, n.X.Pos()); err != nil {
			return TypeInvalid, nil, err
		}
		if rx, err = c.coerce(rx, rt, TypeBool, n.Y.Pos()); err != nil {
			return TypeInvalid, nil, err
		}
		return TypeBool, sqldsl.Paren{Expr: sqldsl.Infix{Left: lx, Op: n.Op, Right: rx}}, nil

	case "=", "!=", "<", "<=", ">", ">=":
		lx, rx, err = c.unify(lx, rx, lt, rt, n.Pos())
		if err != nil {
			return TypeInvalid, nil, err
		}
		op := n.Op
		if op == "!=" {
			op = "<>"
		}
		return TypeBool, sqldsl.Paren{Expr: sqldsl.Infix{Left: lx, Op: op, Right: rx}}, nil

	default:
		return TypeInvalid, nil, typeErrorf(n.Pos(), "unknown operator %q", n.Op)
	}
}

// unify brings two comparison operands to a common type, preferring to
// keep the left side and coerce the right.
func (c *checker) unify(lx, rx sqldsl.Expr, lt, rt Type, pos int) (sqldsl.Expr, sqldsl.Expr, error) {
	if lt == rt {
		return lx, rx, nil
	}
	if coercible(rt, lt) {
		return lx, sqldsl.Cast{Expr: rx, Type: castSQLType(lt)}, nil
	}
	if coercible(lt, rt) {
		return sqldsl.Cast{Expr: lx, Type: castSQLType(rt)}, rx, nil
	}
	return nil, nil, typeErrorf(pos, "cannot compare %s with %s", lt, rt)
}

func (c *checker) checkCall(n *Call) (Type, sqldsl.Expr, error) {
	// Generic built-ins whose types depend on their arguments.
	switch n.Name {
	case "IF":
		return c.checkIf(n)
	case "COALESCE":
		return c.checkCoalesce(n)
	case "TEXT":
		return c.checkTextCast(n)
	}

	spec, ok := functions[n.Name]
	if !ok {
		return TypeInvalid, nil, typeErrorf(n.Pos(), "unknown function %q", n.Name)
	}
	if len(n.Args) < spec.minArgs || (spec.maxArgs >= 0 && len(n.Args) > spec.maxArgs) {
		return TypeInvalid, nil, typeErrorf(n.Pos(), "%s expects %d-%d arguments, got %d", n.Name, spec.minArgs, spec.maxArgs, len(n.Args))
	}
	if spec.volatile {
		c.volatile = true
	}

	args := make([]sqldsl.Expr, len(n.Args))
	for i, argNode := range n.Args {
		want := spec.args[min(i, len(spec.args)-1)]
		typ, expr, err := c.check(argNode)
		if err != nil {
			return TypeInvalid, nil, err
		}
		if args[i], err = c.coerce(expr, typ, want, argNode.Pos()); err != nil {
			return TypeInvalid, nil, err
		}
	}
	return spec.result, spec.emit(args), nil
}

// checkIf handles IF(condition, then, else): the two value arms must unify.
func (c *checker) checkIf(n *Call) (Type, sqldsl.Expr, error) {
	if len(n.Args) != 3 {
		return TypeInvalid, nil, typeErrorf(n.Pos(), "IF expects 3 arguments, got %d", len(n.Args))
	}
	ct, cx, err := c.check(n.Args[0])
	if err != nil {
		return TypeInvalid, nil, err
	}
	if cx, err = c.coerce(cx, ct, TypeBool, n.Args[0].Pos()); err != nil {
		return TypeInvalid, nil, err
	}
	tt, tx, err := c.check(n.Args[1])
	if err != nil {
		return TypeInvalid, nil, err
	}
	et, ex, err := c.check(n.Args[2])
	if err != nil {
		return TypeInvalid, nil, err
	}
	tx, ex, err = c.unify(tx, ex, tt, et, n.Pos())
	if err != nil {
		return TypeInvalid, nil, err
	}
	return tt, sqldsl.Paren{Expr: sqldsl.Case{
		Whens: []sqldsl.When{{Cond: cx, Value: tx}},
		Else:  ex,
	}}, nil
}

// checkCoalesce handles COALESCE(a, b, ...): all arguments unify with the
// first.
func (c *checker) checkCoalesce(n *Call) (Type, sqldsl.Expr, error) {
	if len(n.Args) < 2 {
		return TypeInvalid, nil, typeErrorf(n.Pos(), "COALESCE expects at least 2 arguments")
	}
	first, fx, err := c.check(n.Args[0])
	if err != nil {
		return TypeInvalid, nil, err
	}
	args := []sqldsl.Expr{fx}
	for _, argNode := range n.Args[1:] {
		typ, expr, err := c.check(argNode)
		if err != nil {
			return TypeInvalid, nil, err
		}
		if expr, err = c.coerce(expr, typ, first, argNode.Pos()); err != nil {
			return TypeInvalid, nil, err
		}
		args = append(args, expr)
	}
	return first, fn("COALESCE", args...), nil
}

// checkTextCast handles TEXT(x), the explicit anything-to-text conversion.
func (c *checker) checkTextCast(n *Call) (Type, sqldsl.Expr, error) {
	if len(n.Args) != 1 {
		return TypeInvalid, nil, typeErrorf(n.Pos(), "TEXT expects 1 argument, got %d", len(n.Args))
	}
	_, expr, err := c.check(n.Args[0])
	if err != nil {
		return TypeInvalid, nil, err
	}
	return TypeText, sqldsl.Cast{Expr: expr, Type: "text"}, nil
}

func (c *checker) coerce(expr sqldsl.Expr, from, to Type, pos int) (sqldsl.Expr, error) {
	if from == to {
		return expr, nil
	}
	if !coercible(from, to) {
		return nil, typeErrorf(pos, "expected %s, got %s", to, from)
	}
	return sqldsl.Cast{Expr: expr, Type: castSQLType(to)}, nil
}

func typeErrorf(pos int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: at offset %d: %s", schema.ErrTypeMismatch, pos, fmt.Sprintf(format, args...))
}
