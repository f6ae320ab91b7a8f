// Package compiler turns a validated schema document into an immutable
// CompiledSchema: a DDL plan, per-field SQL expressions for computed
// fields, and a resolved permission matrix.
//
// Compilation is a single synchronous pass with no I/O. The output is a
// pure function of the input document plus (optionally) the previously
// compiled schema, which is consulted only for structural diffing so field
// renames become renames instead of drop-and-recreate. The artifact is
// read-only and safe to share across concurrent query-time consumers.
package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/gridbase/gridbase/pkg/permission"
	"github.com/gridbase/gridbase/pkg/schema"
)

// ColumnPlan is one physical column of a compiled table.
type ColumnPlan struct {
	FieldID string `json:"fieldId"`
	Name    string `json:"name"`
	SQLType string `json:"sqlType"`
	NotNull bool   `json:"notNull,omitempty"`
	Default string `json:"default,omitempty"`
	// Check is a rendered CHECK predicate over this column, empty when none.
	Check string `json:"check,omitempty"`
	// Generated holds the expression of a stored generated column.
	Generated string `json:"generated,omitempty"`
}

// ConstraintPlan is a named table constraint (primary key, unique, FK).
type ConstraintPlan struct {
	Name string `json:"name"`
	// Body is the constraint text after "CONSTRAINT <name>".
	Body string `json:"body"`
}

// IndexPlan is one non-constraint index.
type IndexPlan struct {
	Name   string `json:"name"`
	Column string `json:"column"`
}

// JunctionPlan is a synthesized many-to-many junction table. Left and
// Right are in lexicographic table-name order so the plan is identical no
// matter which side declared the relationship.
type JunctionPlan struct {
	Name        string `json:"name"`
	LeftTable   string `json:"leftTable"`
	LeftColumn  string `json:"leftColumn"`
	RightTable  string `json:"rightTable"`
	RightColumn string `json:"rightColumn"`
}

// CompiledTable is the compilation output for one table.
type CompiledTable struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Columns     []ColumnPlan     `json:"columns"`
	Constraints []ConstraintPlan `json:"constraints,omitempty"`
	Indexes     []IndexPlan      `json:"indexes,omitempty"`
	Junctions   []JunctionPlan   `json:"junctions,omitempty"`

	// FieldSQL maps computed field names resolved at query time (lookup,
	// rollup, count, volatile formulas, reciprocal relationships) to their
	// SQL expressions. Stored generated columns do not appear here.
	FieldSQL map[string]string `json:"fieldSql,omitempty"`
}

// Column returns the column plan for a field id, or nil.
func (ct *CompiledTable) Column(fieldID string) *ColumnPlan {
	for i := range ct.Columns {
		if ct.Columns[i].FieldID == fieldID {
			return &ct.Columns[i]
		}
	}
	return nil
}

// CompiledSchema is the immutable output of one compilation pass. It is
// superseded wholesale by the next pass, never mutated in place.
type CompiledSchema struct {
	Tables map[string]*CompiledTable `json:"tables"` // by table id
	// DDL is the ordered statement list bringing the physical schema from
	// the previous compiled state (or nothing) to this one.
	DDL []string `json:"ddl"`

	doc   *schema.Document
	perms *permission.Matrix
}

// Document returns the source document of the compilation.
func (cs *CompiledSchema) Document() *schema.Document { return cs.doc }

// Permissions returns the resolved permission matrix.
func (cs *CompiledSchema) Permissions() *permission.Matrix { return cs.perms }

// Table returns the compiled table by id or name, or nil.
func (cs *CompiledSchema) Table(idOrName string) *CompiledTable {
	if ct, ok := cs.Tables[idOrName]; ok {
		return ct
	}
	for _, ct := range cs.Tables {
		if ct.Name == idOrName {
			return ct
		}
	}
	return nil
}

// Snapshot serializes the structural portion of the schema for use as the
// "previous" input of a later compilation. The document and permission
// matrix are not part of the snapshot.
func (cs *CompiledSchema) Snapshot() ([]byte, error) {
	return json.MarshalIndent(cs, "", "  ")
}

// LoadSnapshot deserializes a snapshot produced by Snapshot.
func LoadSnapshot(data []byte) (*CompiledSchema, error) {
	var cs CompiledSchema
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("loading schema snapshot: %w", err)
	}
	return &cs, nil
}
