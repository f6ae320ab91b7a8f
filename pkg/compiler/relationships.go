package compiler

import (
	"fmt"

	"github.com/gridbase/gridbase/internal/sqldsl"
	"github.com/gridbase/gridbase/pkg/schema"
)

// fkColumnName is the physical column backing a to-one relationship field.
func fkColumnName(f *schema.FieldDef) string {
	return f.Name + "_id"
}

// junctionName derives the junction table name from the two table names in
// lexicographic order, so both sides of a many-to-many declaration produce
// the same junction regardless of which table declared it.
func junctionName(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

// planJunction synthesizes the junction for a many-to-many relationship.
func planJunction(owner, related *schema.TableDef) JunctionPlan {
	left, right := owner.Name, related.Name
	if left > right {
		left, right = right, left
	}
	return JunctionPlan{
		Name:        junctionName(owner.Name, related.Name),
		LeftTable:   left,
		LeftColumn:  left + "_id",
		RightTable:  right,
		RightColumn: right + "_id",
	}
}

// relationLink renders the correlation predicate tying related-table alias
// r to the current row of the owning table, for lookup/rollup/count
// subqueries. Many-to-many relationships route through the junction.
func relationLink(t *schema.TableDef, rel *schema.FieldDef, related *schema.TableDef) sqldsl.Expr {
	switch rel.Relationship.Type {
	case schema.RelationManyToMany:
		j := planJunction(t, related)
		selfCol, relatedCol := j.LeftColumn, j.RightColumn
		if j.LeftTable != t.Name {
			selfCol, relatedCol = j.RightColumn, j.LeftColumn
		}
		sub := "SELECT j." + sqldsl.QuoteIdent(relatedCol) +
			" FROM " + sqldsl.QuoteIdent(j.Name) + " j" +
			" WHERE j." + sqldsl.QuoteIdent(selfCol) + " = " +
			sqldsl.Col{Table: t.Name, Column: schema.SystemFieldID}.SQL()
		return sqldsl.Raw("r." + sqldsl.QuoteIdent(schema.SystemFieldID) + " IN (" + sub + ")")
	default:
		return sqldsl.Infix{
			Left:  sqldsl.Col{Table: "r", Column: schema.SystemFieldID},
			Op:    "=",
			Right: sqldsl.Col{Table: t.Name, Column: fkColumnName(rel)},
		}
	}
}

// lookupSQL builds the single-row join projection for a lookup field.
// Lookups traverse to-one relationships only; a lookup through a
// many-to-many edge has no single row to project and is rejected.
func lookupSQL(t *schema.TableDef, f *schema.FieldDef, rel *schema.FieldDef, related *schema.TableDef) (string, error) {
	if rel.Relationship.Type == schema.RelationManyToMany {
		return "", fmt.Errorf("%w: lookup field %q cannot traverse many-to-many relationship %q",
			schema.ErrInvalidFieldConfig, f.Name, rel.Name)
	}
	target, err := storedTargetColumn(related, f.Lookup.TargetField, f.Name)
	if err != nil {
		return "", err
	}
	return "(SELECT r." + sqldsl.QuoteIdent(target) +
		" FROM " + sqldsl.QuoteIdent(related.Name) + " r" +
		" WHERE " + relationLink(t, rel, related).SQL() + ")", nil
}

// rollupSQL builds the aggregate subquery for a rollup field. Zero related
// rows yield whatever the aggregate yields over an empty set: NULL for
// SUM/AVG/MIN/MAX/CONCAT, 0 for COUNT.
func rollupSQL(t *schema.TableDef, f *schema.FieldDef, rel *schema.FieldDef, related *schema.TableDef) (string, error) {
	target, err := storedTargetColumn(related, f.Rollup.TargetField, f.Name)
	if err != nil {
		return "", err
	}
	col := sqldsl.Col{Table: "r", Column: target}

	var agg string
	switch f.Rollup.Func {
	case schema.RollupSum:
		agg = "SUM(" + col.SQL() + ")"
	case schema.RollupAvg:
		agg = "AVG(" + col.SQL() + ")"
	case schema.RollupMin:
		agg = "MIN(" + col.SQL() + ")"
	case schema.RollupMax:
		agg = "MAX(" + col.SQL() + ")"
	case schema.RollupCount:
		agg = "COUNT(" + col.SQL() + ")"
	case schema.RollupConcatDistinct:
		agg = "STRING_AGG(DISTINCT (" + col.SQL() + ")::text, ', ')"
	default:
		return "", fmt.Errorf("%w: rollup field %q has unknown func %q", schema.ErrInvalidFieldConfig, f.Name, f.Rollup.Func)
	}

	where, err := relationWhere(t, rel, related, f.Rollup.Filter)
	if err != nil {
		return "", err
	}
	return "(SELECT " + agg + " FROM " + sqldsl.QuoteIdent(related.Name) + " r WHERE " + where + ")", nil
}

// countSQL builds the COUNT subquery for a count field.
func countSQL(t *schema.TableDef, f *schema.FieldDef, rel *schema.FieldDef, related *schema.TableDef) (string, error) {
	where, err := relationWhere(t, rel, related, f.Count.Filter)
	if err != nil {
		return "", err
	}
	return "(SELECT COUNT(*) FROM " + sqldsl.QuoteIdent(related.Name) + " r WHERE " + where + ")", nil
}

func relationWhere(t *schema.TableDef, rel *schema.FieldDef, related *schema.TableDef, filter *schema.FilterNode) (string, error) {
	link := relationLink(t, rel, related)
	if filter == nil {
		return link.SQL(), nil
	}
	// Filter values come from the schema document, not request input, so
	// they render as escaped literals rather than bound parameters.
	pred, err := RenderFilter("r", filter, LiteralBind)
	if err != nil {
		return "", err
	}
	return sqldsl.And(link, pred).SQL(), nil
}

// reciprocalSQL builds the read-only computed expression for the related
// table's reciprocal field: the ids of the rows pointing back here.
func reciprocalSQL(owner, related *schema.TableDef, rel *schema.FieldDef) string {
	switch rel.Relationship.Type {
	case schema.RelationManyToMany:
		j := planJunction(owner, related)
		ownerCol, relatedCol := j.LeftColumn, j.RightColumn
		if j.LeftTable != owner.Name {
			ownerCol, relatedCol = j.RightColumn, j.LeftColumn
		}
		return "ARRAY(SELECT j." + sqldsl.QuoteIdent(ownerCol) +
			" FROM " + sqldsl.QuoteIdent(j.Name) + " j" +
			" WHERE j." + sqldsl.QuoteIdent(relatedCol) + " = " +
			sqldsl.Col{Table: related.Name, Column: schema.SystemFieldID}.SQL() + ")"
	default:
		return "ARRAY(SELECT c." + sqldsl.QuoteIdent(schema.SystemFieldID) +
			" FROM " + sqldsl.QuoteIdent(owner.Name) + " c" +
			" WHERE c." + sqldsl.QuoteIdent(fkColumnName(rel)) + " = " +
			sqldsl.Col{Table: related.Name, Column: schema.SystemFieldID}.SQL() + ")"
	}
}

// storedTargetColumn resolves the physical column a lookup/rollup target
// field reads. Targets must be stored (system fields included); computed
// targets would need recursive resolution across tables and are rejected.
func storedTargetColumn(related *schema.TableDef, target, forField string) (string, error) {
	if schema.IsSystemField(target) {
		return target, nil
	}
	tf := related.Field(target)
	if tf == nil {
		return "", fmt.Errorf("%w: field %q targets unknown field %q on table %q",
			schema.ErrUnknownFieldReference, forField, target, related.Name)
	}
	if tf.Kind == schema.KindRelationship {
		return fkColumnName(tf), nil
	}
	spec, err := schema.ResolveColumn(tf)
	if err != nil {
		return "", err
	}
	if spec.Virtual {
		return "", fmt.Errorf("%w: field %q targets computed field %q on table %q",
			schema.ErrInvalidFieldConfig, forField, target, related.Name)
	}
	return target, nil
}
