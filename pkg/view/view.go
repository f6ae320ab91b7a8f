// Package view compiles saved views into parameterized SELECT statements.
//
// A view combines a filter tree, sort order, field visibility, and an
// optional grouping key. Compilation is permission-aware: the SELECT list
// is the intersection of the view's visible fields and the caller's read
// mask, so a field the caller may not read never appears in emitted SQL,
// regardless of what the view declares. Filter values are always bound
// parameters; nothing user-supplied is interpolated into the statement.
package view

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gridbase/gridbase/internal/sqldsl"
	"github.com/gridbase/gridbase/pkg/compiler"
	"github.com/gridbase/gridbase/pkg/permission"
	"github.com/gridbase/gridbase/pkg/schema"
)

// ErrReadDenied is returned when the caller may not read the table at all,
// or when the permission mask leaves no visible field to project.
var ErrReadDenied = errors.New("read permission denied")

// Query is a compiled, parameterized view query.
type Query struct {
	// Table and View identify the source by id.
	Table string
	View  string

	SQL  string
	Args []interface{}

	// Fields lists the projected field names in output order.
	Fields []string
}

// Compile compiles one view of the table for the given caller. viewRef may
// be a view id or name; empty selects the table's default view. Rows
// soft-deleted via deleted_at are always excluded.
func Compile(cs *compiler.CompiledSchema, tableRef, viewRef string, ctx permission.Context) (*Query, error) {
	doc := cs.Document()
	t := doc.Table(tableRef)
	if t == nil {
		return nil, fmt.Errorf("%w: %q", schema.ErrUnknownTableReference, tableRef)
	}
	var v *schema.ViewDef
	if viewRef == "" {
		v = t.DefaultView()
	} else {
		v = t.View(viewRef)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: table %q has no view %q", schema.ErrUnknownFieldReference, t.Name, viewRef)
	}
	return compileView(cs, t, v, ctx)
}

// CompileAll compiles every view of every table the caller can read.
// Results are keyed by table id then view id; unreadable tables are
// skipped rather than failing the whole pass.
func CompileAll(cs *compiler.CompiledSchema, ctx permission.Context) (map[string]map[string]*Query, error) {
	out := make(map[string]map[string]*Query)
	for _, t := range cs.Document().Tables {
		if cs.Permissions().Decide(t.ID, permission.OpRead, ctx) != permission.Allow {
			continue
		}
		for _, v := range t.Views {
			q, err := compileView(cs, t, v, ctx)
			if err != nil {
				return nil, fmt.Errorf("table %q view %q: %w", t.Name, v.Name, err)
			}
			if out[t.ID] == nil {
				out[t.ID] = make(map[string]*Query)
			}
			out[t.ID][v.ID] = q
		}
	}
	return out, nil
}

func compileView(cs *compiler.CompiledSchema, t *schema.TableDef, v *schema.ViewDef, ctx permission.Context) (*Query, error) {
	if cs.Permissions().Decide(t.ID, permission.OpRead, ctx) != permission.Allow {
		return nil, fmt.Errorf("%w: table %q", ErrReadDenied, t.Name)
	}
	mask := cs.Permissions().FieldMask(t.ID, ctx)
	ct := cs.Table(t.ID)

	fields := v.Fields
	if len(fields) == 0 {
		for _, f := range t.Fields {
			fields = append(fields, f.Name)
		}
	}

	q := &Query{Table: t.ID, View: v.ID}
	var selects []string

	// The system id always leads the projection; it is the row handle
	// consumers page and mutate by.
	if mask.Read[schema.SystemFieldID] {
		selects = append(selects, sqldsl.Col{Table: t.Name, Column: schema.SystemFieldID}.SQL())
		q.Fields = append(q.Fields, schema.SystemFieldID)
	}
	for _, name := range fields {
		if name == schema.SystemFieldID || !mask.Read[name] {
			continue
		}
		expr, err := fieldExpr(t, ct, name)
		if err != nil {
			return nil, err
		}
		selects = append(selects, sqldsl.Alias{Expr: expr, Name: name}.SQL())
		q.Fields = append(q.Fields, name)
	}
	if len(selects) == 0 {
		return nil, fmt.Errorf("%w: no readable fields on table %q", ErrReadDenied, t.Name)
	}

	bind := func(value interface{}) sqldsl.Expr {
		q.Args = append(q.Args, value)
		return sqldsl.Bind(len(q.Args))
	}

	notDeleted := sqldsl.Raw(sqldsl.Col{Table: t.Name, Column: schema.SystemFieldDeletedAt}.SQL() + " IS NULL")
	where := sqldsl.Expr(notDeleted)
	if v.Filter != nil {
		resolve := func(field string) (sqldsl.Expr, error) {
			return fieldExpr(t, ct, field)
		}
		pred, err := compiler.RenderFilterExpr(resolve, v.Filter, bind)
		if err != nil {
			return nil, err
		}
		where = sqldsl.And(notDeleted, pred)
	}

	orderBy, err := orderClause(t, ct, v)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(sqldsl.QuoteIdent(t.Name))
	sb.WriteString(" WHERE ")
	sb.WriteString(where.SQL())
	if orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}
	q.SQL = sb.String()
	return q, nil
}

// fieldExpr resolves a field name to the expression that reads it: the
// stored column (FK column for relationships), the computed expression for
// query-time fields, or the system column.
func fieldExpr(t *schema.TableDef, ct *compiler.CompiledTable, name string) (sqldsl.Expr, error) {
	if sql, ok := ct.FieldSQL[name]; ok {
		return sqldsl.Raw(sql), nil
	}
	if schema.IsSystemField(name) {
		return sqldsl.Col{Table: t.Name, Column: name}, nil
	}
	f := t.Field(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %q on table %q", schema.ErrUnknownFieldReference, name, t.Name)
	}
	if col := ct.Column(f.ID); col != nil {
		return sqldsl.Col{Table: t.Name, Column: col.Name}, nil
	}
	return nil, fmt.Errorf("%w: field %q on table %q has no readable expression",
		schema.ErrInvalidFieldConfig, name, t.Name)
}

// orderClause renders ORDER BY: the grouping key first (honoring an
// explicit literal order via CASE ranking), then the view's sort specs.
func orderClause(t *schema.TableDef, ct *compiler.CompiledTable, v *schema.ViewDef) (string, error) {
	var parts []string

	if v.GroupBy != nil {
		expr, err := fieldExpr(t, ct, v.GroupBy.Field)
		if err != nil {
			return "", err
		}
		if len(v.GroupBy.Order) > 0 {
			whens := make([]sqldsl.When, len(v.GroupBy.Order))
			for i, val := range v.GroupBy.Order {
				whens[i] = sqldsl.When{
					Cond:  sqldsl.Infix{Left: expr, Op: "=", Right: sqldsl.Lit(val)},
					Value: sqldsl.Int(i),
				}
			}
			rank := sqldsl.Case{Whens: whens, Else: sqldsl.Int(len(v.GroupBy.Order))}
			parts = append(parts, rank.SQL())
		}
		parts = append(parts, expr.SQL())
	}

	for _, s := range v.Sort {
		expr, err := fieldExpr(t, ct, s.Field)
		if err != nil {
			return "", err
		}
		dir := " ASC"
		if s.Descending {
			dir = " DESC"
		}
		parts = append(parts, expr.SQL()+dir)
	}
	return strings.Join(parts, ", "), nil
}
