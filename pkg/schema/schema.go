// Package schema provides the data model and validation for gridbase schema
// documents.
//
// A schema document declares a relational application: tables, typed fields,
// relationships, saved views, and access-control rules. This package parses
// the document (YAML or JSON), assigns ids where missing, validates the
// structure, and resolves each field kind to a physical column specification.
// It sits between the CLI (which loads documents from disk) and the compiler
// (which turns validated documents into DDL plans and query fragments).
//
// # Package Responsibilities
//
//  1. Document representation (Document, TableDef, FieldDef, ViewDef) -
//     the declarative input vocabulary
//  2. Field type registry (ResolveColumn) - mapping each of the closed set
//     of field kinds to a ColumnSpec with SQL type, nullability, default,
//     and input normalizer
//  3. Structural validation (Validate) - duplicate ids/names, identifier
//     safety, constraint references, view invariants
//
// # Key Types
//
// TableDef represents one table of the document. Field ids and names must be
// unique within a table; table ids and names must be unique within the
// document. Fields whose kind is computed (formula, lookup, rollup, count)
// have no independently writable value.
//
// ColumnSpec is the physical resolution of a field: SQL type, nullability,
// default-value literal, optional CHECK predicate, and an input normalizer
// closure (email lowercasing, hex-color uppercasing, E.164 phone cleanup).
//
// # Validation
//
// Validate rejects documents before any compilation work:
//   - duplicate table/field/view ids or names (ErrDuplicateID, ErrDuplicateName)
//   - names that are not SQL-identifier-safe or collide with reserved
//     keywords (ErrInvalidName)
//   - constraints referencing missing fields, or composite primary keys over
//     optional fields (ErrInvalidConstraint)
//   - more than one default view, or a view without a name
//     (ErrMultipleDefaultViews, ErrEmptyViewName)
//
// A table either validates fully or is rejected; there is no partial apply.
//
// # Relationship to Other Packages
//
// The schema package is imported by pkg/formula (field reference resolution),
// pkg/compiler (DDL planning), pkg/view (view compilation), and
// pkg/permission (permission resolution). It depends only on sigs.k8s.io/yaml
// for parsing and google/uuid for id assignment.
package schema

// Document is a complete declarative schema: the unit of compilation.
// Documents are immutable once parsed; a new revision supersedes the old
// one wholesale.
type Document struct {
	Name   string      `json:"name,omitempty"`
	Tables []*TableDef `json:"tables"`
}

// Table returns the table with the given id or name, or nil.
func (d *Document) Table(idOrName string) *TableDef {
	for _, t := range d.Tables {
		if t.ID == idOrName || t.Name == idOrName {
			return t
		}
	}
	return nil
}

// ReciprocalFields lists the read-only computed relationship fields that
// other tables project onto t via reciprocalField declarations. These
// names are not declared on t itself but are projectable through views.
func (d *Document) ReciprocalFields(t *TableDef) []string {
	var names []string
	for _, owner := range d.Tables {
		for _, f := range owner.Fields {
			if f.Kind != KindRelationship || f.Relationship == nil || f.Relationship.ReciprocalField == "" {
				continue
			}
			related := owner
			if f.Relationship.Type != RelationSelfReference {
				related = d.Table(f.Relationship.RelatedTable)
			}
			if related == t {
				names = append(names, f.Relationship.ReciprocalField)
			}
		}
	}
	return names
}

// TableDef declares one table: its fields, key structure, saved views, and
// access rules.
type TableDef struct {
	ID                string             `json:"id,omitempty"`
	Name              string             `json:"name"`
	Fields            []*FieldDef        `json:"fields"`
	PrimaryKey        *PrimaryKey        `json:"primaryKey,omitempty"`
	UniqueConstraints []UniqueConstraint `json:"uniqueConstraints,omitempty"`
	Views             []*ViewDef         `json:"views,omitempty"`
	Permissions       *TablePermissions  `json:"permissions,omitempty"`
}

// Field returns the field with the given id or name, or nil. Implicit
// system fields are not returned here; see SystemField.
func (t *TableDef) Field(idOrName string) *FieldDef {
	for _, f := range t.Fields {
		if f.ID == idOrName || f.Name == idOrName {
			return f
		}
	}
	return nil
}

// View returns the view with the given id or name, or nil.
func (t *TableDef) View(idOrName string) *ViewDef {
	for _, v := range t.Views {
		if v.ID == idOrName || v.Name == idOrName {
			return v
		}
	}
	return nil
}

// DefaultView returns the view marked isDefault, falling back to the first
// view. Returns nil when the table declares no views.
func (t *TableDef) DefaultView() *ViewDef {
	for _, v := range t.Views {
		if v.IsDefault {
			return v
		}
	}
	if len(t.Views) > 0 {
		return t.Views[0]
	}
	return nil
}

// PrimaryKey declares the table's key. An empty Fields list (or a nil
// PrimaryKey on the table) means the implicit auto-increment system id
// column is the key. Composite keys list field ids in order.
type PrimaryKey struct {
	Fields []string `json:"fields,omitempty"`
}

// UniqueConstraint declares uniqueness over one or more fields. SQL-standard
// NULL semantics apply: a row with NULL in any constrained field never
// conflicts with another row.
type UniqueConstraint struct {
	Name   string   `json:"name,omitempty"`
	Fields []string `json:"fields"`
}

// FieldDef declares one field. Kind selects the variant; the matching
// kind-specific parameter block must be set for kinds that require one,
// and the registry rejects mismatched or missing blocks.
type FieldDef struct {
	ID       string    `json:"id,omitempty"`
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
	Indexed  bool      `json:"indexed,omitempty"`
	Default  *string   `json:"default,omitempty"`

	Text         *TextParams         `json:"text,omitempty"`
	Numeric      *NumericParams      `json:"numeric,omitempty"`
	Select       *SelectParams       `json:"select,omitempty"`
	Rating       *RatingParams       `json:"rating,omitempty"`
	Relationship *RelationshipParams `json:"relationship,omitempty"`
	Formula      *FormulaParams      `json:"formula,omitempty"`
	Lookup       *LookupParams       `json:"lookup,omitempty"`
	Rollup       *RollupParams       `json:"rollup,omitempty"`
	Count        *CountParams        `json:"count,omitempty"`
}

// Computed reports whether the field derives its value from other fields or
// related tables rather than direct writes.
func (f *FieldDef) Computed() bool {
	switch f.Kind {
	case KindFormula, KindLookup, KindRollup, KindCount,
		KindAutoNumber, KindCreatedTime, KindUpdatedTime,
		KindCreatedBy, KindUpdatedBy:
		return true
	}
	return false
}

// TextParams tunes text kinds.
type TextParams struct {
	MaxLength int `json:"maxLength,omitempty"`
}

// NumericParams tunes decimal precision and scale. Precision is mandatory
// for decimal fields.
type NumericParams struct {
	Precision int `json:"precision,omitempty"`
	Scale     int `json:"scale,omitempty"`
}

// SelectParams declares the option vocabulary of single- and multi-select
// fields. At least one option is required.
type SelectParams struct {
	Options []string `json:"options"`
}

// RatingParams bounds a rating field. Max defaults to 5 when zero.
type RatingParams struct {
	Max int `json:"max,omitempty"`
}

// RelationshipParams configures a relationship field.
type RelationshipParams struct {
	RelatedTable string       `json:"relatedTable"`
	Type         RelationType `json:"type"`
	OnDelete     RefAction    `json:"onDelete,omitempty"`
	OnUpdate     RefAction    `json:"onUpdate,omitempty"`
	// ReciprocalField, when set, names a read-only computed relationship
	// created on the related table pointing back at this one.
	ReciprocalField string `json:"reciprocalField,omitempty"`
}

// FormulaParams holds the formula source text and its declared result type
// ("text", "number", "boolean", or "date").
type FormulaParams struct {
	Expression string `json:"expression"`
	ResultType string `json:"resultType"`
}

// LookupParams projects a single field from the related row reached through
// a relationship field on the same table.
type LookupParams struct {
	RelationshipField string `json:"relationshipField"`
	TargetField       string `json:"targetField"`
}

// RollupParams aggregates a field of the related rows reached through a
// relationship field on the same table. Filter optionally restricts the
// aggregated rows with the same condition-tree vocabulary views use.
type RollupParams struct {
	RelationshipField string      `json:"relationshipField"`
	TargetField       string      `json:"targetField"`
	Func              RollupFunc  `json:"func"`
	Filter            *FilterNode `json:"filter,omitempty"`
}

// CountParams counts the related rows reached through a relationship field,
// optionally filtered.
type CountParams struct {
	RelationshipField string      `json:"relationshipField"`
	Filter            *FilterNode `json:"filter,omitempty"`
}

// ViewDef is a named, saved combination of filter, sort, field visibility,
// and grouping applied to a table's records.
type ViewDef struct {
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name"`
	Filter    *FilterNode `json:"filter,omitempty"`
	Sort      []SortSpec  `json:"sort,omitempty"`
	Fields    []string    `json:"fields,omitempty"` // visible fields in declared order; empty means all
	GroupBy   *GroupBy    `json:"groupBy,omitempty"`
	IsDefault bool        `json:"isDefault,omitempty"`
}

// SortSpec orders results by one field.
type SortSpec struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// GroupBy declares a post-processing grouping key. Order, when set, is a
// list of literal group-key values that takes precedence over alphabetic
// ordering of the keys.
type GroupBy struct {
	Field string   `json:"field"`
	Order []string `json:"order,omitempty"`
}

// FilterNode is one node of a boolean filter expression tree: either a
// Group (Operator + Children) or a Condition (Field + Op + Value).
// Groups nest recursively.
type FilterNode struct {
	Operator string        `json:"operator,omitempty"` // "and" | "or" for groups
	Children []*FilterNode `json:"children,omitempty"`

	Field string      `json:"field,omitempty"`
	Op    string      `json:"op,omitempty"` // eq, neq, gt, gte, lt, lte, in, contains
	Value interface{} `json:"value,omitempty"`
}

// IsGroup reports whether the node is a group rather than a condition leaf.
func (n *FilterNode) IsGroup() bool {
	return n.Operator != ""
}
