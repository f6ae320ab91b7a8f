// Package permission resolves and evaluates access-control rules.
//
// Table permissions are declared per operation as one of three variants:
// all (everyone), authenticated (any session), or an explicit role list.
// Field-level overrides refine the table level per direction, and a table
// may inherit another table's permissions with its own values shallow-
// merged on top. Inheritance chains are validated acyclic at resolve time.
//
// Resolution happens once per compilation pass and produces a Matrix: a
// read-only structure answering Authorize and FieldMask in constant-time
// lookups. Multiple roles combine most-permissive-wins: the effective
// grant is the union across the user's roles, which makes the combination
// commutative and idempotent by construction.
package permission

import (
	"fmt"

	"github.com/gridbase/gridbase/pkg/schema"
)

// Operation is one of the four table operations.
type Operation string

// Table operations.
const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Context is the resolved request identity: the caller's role set and
// whether a session exists. Produced by the external auth provider; this
// package never sees credentials.
type Context struct {
	Roles         []string
	Authenticated bool
}

// Decision classifies an authorization outcome so the HTTP layer can map
// denials to 401 (no session on a non-public operation) or 403
// (authenticated but unauthorized).
type Decision int

// Authorization outcomes.
const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyForbidden
)

// Mask is the per-request field visibility: which fields the caller may
// read and which it may write. Computed fields never appear in Write.
type Mask struct {
	Read  map[string]bool
	Write map[string]bool
}

// Matrix is the resolved permission structure for a whole document.
// It is immutable after Resolve and safe for concurrent use.
type Matrix struct {
	tables map[string]*tableEntry // by table id and name
}

type tableEntry struct {
	ops    map[Operation]*schema.Permission
	fields map[string]*fieldEntry // by field name
	// fieldNames lists declared fields, system fields, and reciprocal
	// fields projected from other tables, in order.
	fieldNames []string
	writable   map[string]bool
}

type fieldEntry struct {
	read  *schema.Permission
	write *schema.Permission
}

// defaultPermission applies when neither a table nor its inheritance chain
// declares an operation: everything is open. Locking down is an explicit
// act in the document, not a compiler guess.
var defaultPermission = schema.PermitAll()

// Resolve walks every table's permission declaration, applies inheritance,
// and precomputes the matrix. Inheritance cycles return
// schema.ErrCircularInheritance.
func Resolve(doc *schema.Document) (*Matrix, error) {
	effective := make(map[string]*schema.TablePermissions, len(doc.Tables))
	resolving := make(map[string]bool)

	var resolveTable func(t *schema.TableDef) (*schema.TablePermissions, error)
	resolveTable = func(t *schema.TableDef) (*schema.TablePermissions, error) {
		if p, ok := effective[t.ID]; ok {
			return p, nil
		}
		if resolving[t.ID] {
			return nil, fmt.Errorf("%w: via table %q", schema.ErrCircularInheritance, t.Name)
		}
		resolving[t.ID] = true
		defer delete(resolving, t.ID)

		own := t.Permissions
		if own == nil {
			own = &schema.TablePermissions{}
		}
		merged := *own
		if own.Inherit != "" {
			parent := doc.Table(own.Inherit)
			if parent == nil {
				return nil, fmt.Errorf("%w: table %q inherits from unknown table %q",
					schema.ErrUnknownTableReference, t.Name, own.Inherit)
			}
			base, err := resolveTable(parent)
			if err != nil {
				return nil, err
			}
			merged = shallowMerge(base, own)
		}
		effective[t.ID] = &merged
		return &merged, nil
	}

	m := &Matrix{tables: make(map[string]*tableEntry, len(doc.Tables)*2)}
	for _, t := range doc.Tables {
		perms, err := resolveTable(t)
		if err != nil {
			return nil, err
		}
		entry := buildEntry(t, perms, doc.ReciprocalFields(t))
		m.tables[t.ID] = entry
		m.tables[t.Name] = entry
	}
	return m, nil
}

// shallowMerge layers the child's explicitly set values over the base.
// Field overrides merge per field name; a child entry replaces the base
// entry for that field wholesale (field-level is the innermost override,
// with no finer-grained tie-break).
func shallowMerge(base, child *schema.TablePermissions) schema.TablePermissions {
	merged := *base
	merged.Inherit = ""
	if child.Read != nil {
		merged.Read = child.Read
	}
	if child.Create != nil {
		merged.Create = child.Create
	}
	if child.Update != nil {
		merged.Update = child.Update
	}
	if child.Delete != nil {
		merged.Delete = child.Delete
	}
	if len(child.Fields) > 0 {
		fields := make(map[string]*schema.FieldPermission, len(base.Fields)+len(child.Fields))
		for name, fp := range base.Fields {
			fields[name] = fp
		}
		for name, fp := range child.Fields {
			fields[name] = fp
		}
		merged.Fields = fields
	}
	return merged
}

func buildEntry(t *schema.TableDef, perms *schema.TablePermissions, reciprocals []string) *tableEntry {
	entry := &tableEntry{
		ops:      make(map[Operation]*schema.Permission, 4),
		fields:   make(map[string]*fieldEntry),
		writable: make(map[string]bool),
	}
	entry.ops[OpRead] = orDefault(perms.Read)
	entry.ops[OpCreate] = orDefault(perms.Create)
	entry.ops[OpUpdate] = orDefault(perms.Update)
	entry.ops[OpDelete] = orDefault(perms.Delete)

	for _, f := range t.Fields {
		entry.fieldNames = append(entry.fieldNames, f.Name)
		entry.writable[f.Name] = !f.Computed()
	}
	for _, sf := range schema.SystemFields() {
		entry.fieldNames = append(entry.fieldNames, sf.Name)
		entry.writable[sf.Name] = false
	}
	// Reciprocal relationship fields land here from other tables'
	// declarations. They are computed, so never writable.
	for _, name := range reciprocals {
		entry.fieldNames = append(entry.fieldNames, name)
		entry.writable[name] = false
	}
	for name, fp := range perms.Fields {
		if fp == nil {
			continue
		}
		entry.fields[name] = &fieldEntry{read: fp.Read, write: fp.Write}
	}
	return entry
}

func orDefault(p *schema.Permission) *schema.Permission {
	if p == nil {
		return defaultPermission
	}
	return p
}

// granted evaluates one permission variant against a request context.
// Role grants are a set-intersection check, so combining role sets is
// commutative and idempotent.
func granted(p *schema.Permission, ctx Context) bool {
	switch {
	case p.All:
		return true
	case p.Authenticated:
		return ctx.Authenticated
	default:
		for _, role := range ctx.Roles {
			for _, want := range p.Roles {
				if role == want {
					return true
				}
			}
		}
		return false
	}
}

// Authorize reports whether the context may perform op on the table.
// Unknown tables are never authorized.
func (m *Matrix) Authorize(tableID string, op Operation, ctx Context) bool {
	entry, ok := m.tables[tableID]
	if !ok {
		return false
	}
	p, ok := entry.ops[op]
	if !ok {
		return false
	}
	return granted(p, ctx)
}

// Decide classifies the outcome of an authorization check.
func (m *Matrix) Decide(tableID string, op Operation, ctx Context) Decision {
	if m.Authorize(tableID, op, ctx) {
		return Allow
	}
	if !ctx.Authenticated {
		return DenyUnauthenticated
	}
	return DenyForbidden
}

// FieldMask computes the readable and writable field sets for the context.
// Fields with no explicit override fall back to the table-level read
// permission for reads and create+update for writes (both must grant).
// Computed and system fields are never writable.
func (m *Matrix) FieldMask(tableID string, ctx Context) Mask {
	mask := Mask{Read: make(map[string]bool), Write: make(map[string]bool)}
	entry, ok := m.tables[tableID]
	if !ok {
		return mask
	}
	tableRead := granted(entry.ops[OpRead], ctx)
	tableWrite := granted(entry.ops[OpCreate], ctx) && granted(entry.ops[OpUpdate], ctx)

	for _, name := range entry.fieldNames {
		read, write := tableRead, tableWrite
		if fe, ok := entry.fields[name]; ok {
			if fe.read != nil {
				read = granted(fe.read, ctx)
			}
			if fe.write != nil {
				write = granted(fe.write, ctx)
			}
		}
		if read {
			mask.Read[name] = true
		}
		if write && entry.writable[name] {
			mask.Write[name] = true
		}
	}
	return mask
}
