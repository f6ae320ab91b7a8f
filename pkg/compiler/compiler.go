package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gridbase/gridbase/internal/sqldsl"
	"github.com/gridbase/gridbase/pkg/formula"
	"github.com/gridbase/gridbase/pkg/permission"
	"github.com/gridbase/gridbase/pkg/schema"
)

// Compile validates the document and produces the compiled schema.
// previous, when non-nil, is the last compiled state; the emitted DDL then
// migrates from that state instead of creating everything from scratch,
// and unchanged field ids with new names become column renames.
func Compile(doc *schema.Document, previous *CompiledSchema) (*CompiledSchema, error) {
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}
	perms, err := permission.Resolve(doc)
	if err != nil {
		return nil, err
	}

	cs := &CompiledSchema{
		Tables: make(map[string]*CompiledTable, len(doc.Tables)),
		doc:    doc,
		perms:  perms,
	}

	junctions := make(map[string]JunctionPlan)
	for _, t := range doc.Tables {
		ct, err := compileTable(doc, t, junctions)
		if err != nil {
			return nil, err
		}
		cs.Tables[t.ID] = ct
	}

	// Junctions attach to their lexicographically-left table so both
	// declaration sides compile to the same plan.
	names := make([]string, 0, len(junctions))
	for name := range junctions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		j := junctions[name]
		owner := doc.Table(j.LeftTable)
		cs.Tables[owner.ID].Junctions = append(cs.Tables[owner.ID].Junctions, j)
	}

	// Reciprocal fields land on the related table, so they resolve after
	// every table has compiled.
	for _, t := range doc.Tables {
		for _, f := range t.Fields {
			if f.Kind != schema.KindRelationship || f.Relationship.ReciprocalField == "" {
				continue
			}
			related := relatedTableOf(doc, t, f)
			ct := cs.Tables[related.ID]
			if ct.FieldSQL == nil {
				ct.FieldSQL = make(map[string]string)
			}
			ct.FieldSQL[f.Relationship.ReciprocalField] = reciprocalSQL(t, related, f)
		}
	}

	cs.DDL = planDDL(cs, previous)
	return cs, nil
}

// relatedTableOf resolves the target table of a relationship field.
// Self-references resolve to the owning table itself.
func relatedTableOf(doc *schema.Document, t *schema.TableDef, f *schema.FieldDef) *schema.TableDef {
	if f.Relationship.Type == schema.RelationSelfReference {
		return t
	}
	return doc.Table(f.Relationship.RelatedTable)
}

func compileTable(doc *schema.Document, t *schema.TableDef, junctions map[string]JunctionPlan) (*CompiledTable, error) {
	ct := &CompiledTable{
		ID:       t.ID,
		Name:     t.Name,
		FieldSQL: make(map[string]string),
	}

	for _, sf := range schema.SystemFields() {
		ct.Columns = append(ct.Columns, ColumnPlan{
			FieldID: sf.Name,
			Name:    sf.Name,
			SQLType: sf.SQLType,
			NotNull: !sf.Nullable,
			Default: sf.DefaultSQL,
		})
	}

	env := buildEnv(doc, t)

	for _, f := range t.Fields {
		switch f.Kind {
		case schema.KindFormula:
			continue // compiled below in dependency order
		case schema.KindRelationship:
			if err := compileRelationship(doc, t, f, ct, junctions); err != nil {
				return nil, err
			}
			continue
		case schema.KindLookup:
			rel, related, err := resolveRelation(doc, t, f.Lookup.RelationshipField, f.Name)
			if err != nil {
				return nil, err
			}
			sql, err := lookupSQL(t, f, rel, related)
			if err != nil {
				return nil, err
			}
			ct.FieldSQL[f.Name] = sql
			env.SQL[f.Name] = sqldsl.Raw(sql)
			continue
		case schema.KindRollup:
			rel, related, err := resolveRelation(doc, t, f.Rollup.RelationshipField, f.Name)
			if err != nil {
				return nil, err
			}
			sql, err := rollupSQL(t, f, rel, related)
			if err != nil {
				return nil, err
			}
			ct.FieldSQL[f.Name] = sql
			env.SQL[f.Name] = sqldsl.Raw(sql)
			continue
		case schema.KindCount:
			rel, related, err := resolveRelation(doc, t, f.Count.RelationshipField, f.Name)
			if err != nil {
				return nil, err
			}
			sql, err := countSQL(t, f, rel, related)
			if err != nil {
				return nil, err
			}
			ct.FieldSQL[f.Name] = sql
			env.SQL[f.Name] = sqldsl.Raw(sql)
			continue
		}

		spec, err := schema.ResolveColumn(f)
		if err != nil {
			return nil, err
		}
		col := ColumnPlan{
			FieldID: f.ID,
			Name:    f.Name,
			SQLType: spec.SQLType,
			NotNull: !spec.Nullable,
			Default: spec.DefaultSQL,
		}
		if spec.CheckSQL != "" {
			col.Check = fmt.Sprintf(spec.CheckSQL, sqldsl.QuoteIdent(f.Name))
		}
		ct.Columns = append(ct.Columns, col)

		if f.Unique {
			ct.Constraints = append(ct.Constraints, uniqueConstraint(t.Name, f.Name))
		}
		if f.Indexed {
			ct.Indexes = append(ct.Indexes, IndexPlan{
				Name:   "idx_" + t.Name + "_" + f.Name,
				Column: f.Name,
			})
		}
	}

	if err := compileFormulas(t, ct, env); err != nil {
		return nil, err
	}

	ct.Constraints = append([]ConstraintPlan{primaryKeyConstraint(t)}, ct.Constraints...)

	for _, uc := range t.UniqueConstraints {
		cols := make([]string, len(uc.Fields))
		for i, ref := range uc.Fields {
			cols[i] = columnNameFor(t, ref)
		}
		name := uc.Name
		if name == "" {
			name = "uq_" + t.Name + "_" + strings.Join(cols, "_")
		}
		ct.Constraints = append(ct.Constraints, ConstraintPlan{
			Name: name,
			Body: "UNIQUE (" + quoteJoin(cols) + ")",
		})
	}

	return ct, nil
}

// buildEnv maps every referenceable field of the table onto the formula
// type system: declared fields, system fields, and computed fields with
// their derived types.
func buildEnv(doc *schema.Document, t *schema.TableDef) *formula.Env {
	env := &formula.Env{
		Types: make(map[string]formula.Type),
		SQL:   make(map[string]sqldsl.Expr),
	}
	for _, sf := range schema.SystemFields() {
		env.Types[sf.Name] = formula.TypeFromName(sf.FormulaType)
	}
	for _, f := range t.Fields {
		env.Types[f.Name] = fieldFormulaType(doc, t, f)
		// To-one relationship fields are stored under their FK column, not
		// the logical field name. Many-to-many fields have no column at all
		// and are rejected as formula inputs in compileFormulas.
		if f.Kind == schema.KindRelationship && f.Relationship.Type != schema.RelationManyToMany {
			env.SQL[f.Name] = sqldsl.Col{Column: fkColumnName(f)}
		}
	}
	return env
}

// fieldFormulaType derives the formula type of one field, following
// computed kinds to their sources. Unresolvable references fall back to
// text; validation has already rejected truly broken documents.
func fieldFormulaType(doc *schema.Document, t *schema.TableDef, f *schema.FieldDef) formula.Type {
	switch f.Kind {
	case schema.KindFormula:
		return formula.TypeFromName(f.Formula.ResultType)
	case schema.KindLookup:
		if _, related, err := resolveRelation(doc, t, f.Lookup.RelationshipField, f.Name); err == nil {
			if sf, ok := schema.SystemFieldByName(f.Lookup.TargetField); ok {
				return formula.TypeFromName(sf.FormulaType)
			}
			if tf := related.Field(f.Lookup.TargetField); tf != nil {
				return fieldFormulaType(doc, related, tf)
			}
		}
		return formula.TypeText
	case schema.KindRollup:
		switch f.Rollup.Func {
		case schema.RollupConcatDistinct:
			return formula.TypeText
		case schema.RollupMin, schema.RollupMax:
			if _, related, err := resolveRelation(doc, t, f.Rollup.RelationshipField, f.Name); err == nil {
				if tf := related.Field(f.Rollup.TargetField); tf != nil {
					return fieldFormulaType(doc, related, tf)
				}
			}
			return formula.TypeNumber
		default:
			return formula.TypeNumber
		}
	default:
		return formula.TypeOfKind(f.Kind)
	}
}

// compileFormulas compiles the table's formula fields in dependency order.
// Formula-to-formula references are inlined so no generated column ever
// references another generated column. A formula becomes a query-time
// projection instead of a stored column when it is volatile or when it
// references a field that itself resolves at query time.
func compileFormulas(t *schema.TableDef, ct *CompiledTable, env *formula.Env) error {
	deps := make(map[string][]string)
	fields := make(map[string]*schema.FieldDef)
	for _, f := range t.Fields {
		if f.Kind != schema.KindFormula {
			continue
		}
		refs, err := formula.Refs(f.Formula.Expression)
		if err != nil {
			return fmt.Errorf("formula field %q: %w", f.Name, err)
		}
		for _, ref := range refs {
			rf := t.Field(ref)
			if !schema.IsSystemField(ref) && rf == nil {
				return fmt.Errorf("%w: formula field %q references %q",
					schema.ErrUnknownFieldReference, f.Name, ref)
			}
			if rf != nil && rf.Kind == schema.KindRelationship && rf.Relationship.Type == schema.RelationManyToMany {
				return fmt.Errorf("%w: formula field %q references many-to-many relationship %q, which has no column",
					schema.ErrInvalidFieldConfig, f.Name, ref)
			}
		}
		deps[f.Name] = refs
		fields[f.Name] = f
	}
	if len(deps) == 0 {
		return nil
	}

	order, err := formula.SortDependencies(deps)
	if err != nil {
		return fmt.Errorf("table %q: %w", t.Name, err)
	}

	virtual := make(map[string]bool)
	for name := range ct.FieldSQL {
		virtual[name] = true
	}

	for _, name := range order {
		f := fields[name]
		compiled, err := formula.Compile(f.Formula.Expression, formula.TypeFromName(f.Formula.ResultType), env)
		if err != nil {
			return fmt.Errorf("formula field %q: %w", f.Name, err)
		}
		env.SQL[name] = sqldsl.Raw(compiled.SQL)

		isVirtual := compiled.Volatile
		for _, ref := range compiled.Refs {
			if virtual[ref] {
				isVirtual = true
			}
		}
		if isVirtual {
			virtual[name] = true
			ct.FieldSQL[name] = compiled.SQL
			continue
		}

		spec, err := schema.ResolveColumn(f)
		if err != nil {
			return err
		}
		ct.Columns = append(ct.Columns, ColumnPlan{
			FieldID:   f.ID,
			Name:      f.Name,
			SQLType:   spec.SQLType,
			Generated: compiled.SQL,
		})
	}
	return nil
}

func compileRelationship(doc *schema.Document, t *schema.TableDef, f *schema.FieldDef, ct *CompiledTable, junctions map[string]JunctionPlan) error {
	related := relatedTableOf(doc, t, f)
	if related == nil {
		return fmt.Errorf("%w: relationship field %q references unknown table %q",
			schema.ErrUnknownTableReference, f.Name, f.Relationship.RelatedTable)
	}

	if f.Relationship.Type == schema.RelationManyToMany {
		j := planJunction(t, related)
		if _, ok := junctions[j.Name]; !ok {
			junctions[j.Name] = j
		}
		ct.FieldSQL[f.Name] = reciprocalSQL(related, t, f)
		return nil
	}

	col := fkColumnName(f)
	ct.Columns = append(ct.Columns, ColumnPlan{
		FieldID: f.ID,
		Name:    col,
		SQLType: "BIGINT",
		NotNull: f.Required,
	})
	ct.Constraints = append(ct.Constraints, ConstraintPlan{
		Name: "fk_" + t.Name + "_" + f.Name,
		Body: "FOREIGN KEY (" + sqldsl.QuoteIdent(col) + ") REFERENCES " +
			sqldsl.QuoteIdent(related.Name) + " (" + sqldsl.QuoteIdent(schema.SystemFieldID) + ")" +
			" ON DELETE " + f.Relationship.OnDelete.SQL() +
			" ON UPDATE " + f.Relationship.OnUpdate.SQL(),
	})
	if f.Relationship.Type == schema.RelationOneToOne {
		ct.Constraints = append(ct.Constraints, uniqueConstraint(t.Name, col))
	}
	return nil
}

// resolveRelation resolves a relationshipField reference on the same table
// for lookup/rollup/count fields.
func resolveRelation(doc *schema.Document, t *schema.TableDef, relRef, forField string) (*schema.FieldDef, *schema.TableDef, error) {
	rel := t.Field(relRef)
	if rel == nil || rel.Kind != schema.KindRelationship {
		return nil, nil, fmt.Errorf("%w: field %q references %q, which is not a relationship field on table %q",
			schema.ErrUnknownFieldReference, forField, relRef, t.Name)
	}
	related := relatedTableOf(doc, t, rel)
	if related == nil {
		return nil, nil, fmt.Errorf("%w: relationship field %q references unknown table %q",
			schema.ErrUnknownTableReference, rel.Name, rel.Relationship.RelatedTable)
	}
	return rel, related, nil
}

// primaryKeyConstraint resolves the table's key: the declared composite key
// when present, the implicit system id otherwise.
func primaryKeyConstraint(t *schema.TableDef) ConstraintPlan {
	cols := []string{schema.SystemFieldID}
	if t.PrimaryKey != nil && len(t.PrimaryKey.Fields) > 0 {
		cols = make([]string, len(t.PrimaryKey.Fields))
		for i, ref := range t.PrimaryKey.Fields {
			cols[i] = columnNameFor(t, ref)
		}
	}
	return ConstraintPlan{
		Name: "pk_" + t.Name,
		Body: "PRIMARY KEY (" + quoteJoin(cols) + ")",
	}
}

// columnNameFor maps a field reference (id or name) to its physical column
// name. Relationship fields resolve to their FK column.
func columnNameFor(t *schema.TableDef, ref string) string {
	f := t.Field(ref)
	if f == nil {
		return ref // system field, already validated
	}
	if f.Kind == schema.KindRelationship {
		return fkColumnName(f)
	}
	return f.Name
}

func uniqueConstraint(table, col string) ConstraintPlan {
	return ConstraintPlan{
		Name: "uq_" + table + "_" + col,
		Body: "UNIQUE (" + sqldsl.QuoteIdent(col) + ")",
	}
}

func quoteJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sqldsl.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
