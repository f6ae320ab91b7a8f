package permission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/permission"
	"github.com/gridbase/gridbase/pkg/schema"
)

func crmDoc() *schema.Document {
	return &schema.Document{
		Tables: []*schema.TableDef{
			{
				ID:   "t_contacts",
				Name: "contacts",
				Fields: []*schema.FieldDef{
					{ID: "f1", Name: "name", Kind: schema.KindSingleLineText},
					{ID: "f2", Name: "salary", Kind: schema.KindCurrency},
					{ID: "f3", Name: "display", Kind: schema.KindFormula,
						Formula: &schema.FormulaParams{Expression: `UPPER(name)`, ResultType: "text"}},
				},
				Permissions: &schema.TablePermissions{
					Read:   schema.PermitAuthenticated(),
					Create: schema.PermitRoles("admin", "editor"),
					Update: schema.PermitRoles("admin", "editor"),
					Delete: schema.PermitRoles("admin"),
					Fields: map[string]*schema.FieldPermission{
						"salary": {
							Read:  schema.PermitRoles("admin"),
							Write: schema.PermitRoles("admin"),
						},
					},
				},
			},
			{
				ID:   "t_deals",
				Name: "deals",
				Fields: []*schema.FieldDef{
					{ID: "f4", Name: "amount", Kind: schema.KindCurrency},
				},
				Permissions: &schema.TablePermissions{
					Inherit: "contacts",
					Delete:  schema.PermitRoles("admin", "editor"),
				},
			},
		},
	}
}

func TestAuthorize_Operations(t *testing.T) {
	m, err := permission.Resolve(crmDoc())
	require.NoError(t, err)

	anon := permission.Context{}
	viewer := permission.Context{Roles: []string{"viewer"}, Authenticated: true}
	editor := permission.Context{Roles: []string{"editor"}, Authenticated: true}
	admin := permission.Context{Roles: []string{"admin"}, Authenticated: true}

	assert.False(t, m.Authorize("t_contacts", permission.OpRead, anon))
	assert.True(t, m.Authorize("t_contacts", permission.OpRead, viewer))
	assert.False(t, m.Authorize("t_contacts", permission.OpCreate, viewer))
	assert.True(t, m.Authorize("t_contacts", permission.OpCreate, editor))
	assert.False(t, m.Authorize("t_contacts", permission.OpDelete, editor))
	assert.True(t, m.Authorize("t_contacts", permission.OpDelete, admin))

	// Lookup works by name as well as id.
	assert.True(t, m.Authorize("contacts", permission.OpRead, viewer))

	// Unknown tables are never authorized.
	assert.False(t, m.Authorize("nope", permission.OpRead, admin))
}

func TestAuthorize_DefaultIsOpen(t *testing.T) {
	doc := &schema.Document{Tables: []*schema.TableDef{{
		ID: "t1", Name: "notes",
		Fields: []*schema.FieldDef{{ID: "f1", Name: "body", Kind: schema.KindLongText}},
	}}}
	m, err := permission.Resolve(doc)
	require.NoError(t, err)
	assert.True(t, m.Authorize("t1", permission.OpDelete, permission.Context{}))
}

func TestDecide_Classification(t *testing.T) {
	m, err := permission.Resolve(crmDoc())
	require.NoError(t, err)

	assert.Equal(t, permission.DenyUnauthenticated,
		m.Decide("t_contacts", permission.OpRead, permission.Context{}))
	assert.Equal(t, permission.DenyForbidden,
		m.Decide("t_contacts", permission.OpDelete, permission.Context{Roles: []string{"editor"}, Authenticated: true}))
	assert.Equal(t, permission.Allow,
		m.Decide("t_contacts", permission.OpRead, permission.Context{Authenticated: true}))
}

func TestRoleCombination_CommutativeIdempotent(t *testing.T) {
	m, err := permission.Resolve(crmDoc())
	require.NoError(t, err)

	ab := permission.Context{Roles: []string{"admin", "viewer"}, Authenticated: true}
	ba := permission.Context{Roles: []string{"viewer", "admin"}, Authenticated: true}
	dup := permission.Context{Roles: []string{"admin", "admin", "viewer"}, Authenticated: true}

	for _, op := range []permission.Operation{permission.OpRead, permission.OpCreate, permission.OpUpdate, permission.OpDelete} {
		got := m.Authorize("t_contacts", op, ab)
		assert.Equal(t, got, m.Authorize("t_contacts", op, ba), op)
		assert.Equal(t, got, m.Authorize("t_contacts", op, dup), op)
	}
}

func TestFieldMask(t *testing.T) {
	m, err := permission.Resolve(crmDoc())
	require.NoError(t, err)

	editor := m.FieldMask("t_contacts", permission.Context{Roles: []string{"editor"}, Authenticated: true})
	assert.True(t, editor.Read["name"])
	assert.False(t, editor.Read["salary"], "salary read is admin-only")
	assert.True(t, editor.Write["name"])
	assert.False(t, editor.Write["salary"])
	// Computed and system fields are readable but never writable.
	assert.True(t, editor.Read["display"])
	assert.False(t, editor.Write["display"])
	assert.True(t, editor.Read["created_at"])
	assert.False(t, editor.Write["created_at"])
	assert.False(t, editor.Write["id"])

	admin := m.FieldMask("t_contacts", permission.Context{Roles: []string{"admin"}, Authenticated: true})
	assert.True(t, admin.Read["salary"])
	assert.True(t, admin.Write["salary"])
}

func TestInheritance_ShallowMerge(t *testing.T) {
	m, err := permission.Resolve(crmDoc())
	require.NoError(t, err)

	editor := permission.Context{Roles: []string{"editor"}, Authenticated: true}
	viewer := permission.Context{Roles: []string{"viewer"}, Authenticated: true}

	// Inherited from contacts.
	assert.True(t, m.Authorize("t_deals", permission.OpRead, viewer))
	assert.False(t, m.Authorize("t_deals", permission.OpCreate, viewer))
	// Overridden on deals.
	assert.True(t, m.Authorize("t_deals", permission.OpDelete, editor))

	// Field overrides carry through inheritance too.
	mask := m.FieldMask("t_deals", editor)
	assert.True(t, mask.Read["amount"])
}

func TestInheritance_Cycle(t *testing.T) {
	doc := &schema.Document{Tables: []*schema.TableDef{
		{ID: "t1", Name: "a",
			Fields:      []*schema.FieldDef{{ID: "f1", Name: "x", Kind: schema.KindInteger}},
			Permissions: &schema.TablePermissions{Inherit: "b"}},
		{ID: "t2", Name: "b",
			Fields:      []*schema.FieldDef{{ID: "f2", Name: "y", Kind: schema.KindInteger}},
			Permissions: &schema.TablePermissions{Inherit: "a"}},
	}}
	_, err := permission.Resolve(doc)
	require.Error(t, err)
	assert.True(t, schema.IsCircularInheritanceErr(err))
}

func TestInheritance_UnknownTable(t *testing.T) {
	doc := &schema.Document{Tables: []*schema.TableDef{{
		ID: "t1", Name: "a",
		Fields:      []*schema.FieldDef{{ID: "f1", Name: "x", Kind: schema.KindInteger}},
		Permissions: &schema.TablePermissions{Inherit: "ghost"},
	}}}
	_, err := permission.Resolve(doc)
	require.Error(t, err)
	assert.True(t, schema.IsUnknownTableReferenceErr(err))
}

func TestFieldMask_ReciprocalFieldReadOnly(t *testing.T) {
	doc := &schema.Document{
		Tables: []*schema.TableDef{
			{
				ID:   "t_projects",
				Name: "projects",
				Fields: []*schema.FieldDef{
					{ID: "f_pname", Name: "name", Kind: schema.KindSingleLineText},
				},
			},
			{
				ID:   "t_tasks",
				Name: "tasks",
				Fields: []*schema.FieldDef{
					{ID: "f_ttitle", Name: "title", Kind: schema.KindSingleLineText},
					{ID: "f_proj", Name: "project", Kind: schema.KindRelationship,
						Relationship: &schema.RelationshipParams{
							RelatedTable:    "projects",
							Type:            schema.RelationManyToOne,
							ReciprocalField: "tasks",
						}},
				},
			},
		},
	}
	m, err := permission.Resolve(doc)
	require.NoError(t, err)

	// The reciprocal lands on the related table: readable, never writable.
	mask := m.FieldMask("t_projects", permission.Context{})
	assert.True(t, mask.Read["tasks"])
	assert.False(t, mask.Write["tasks"])

	// It does not leak onto the declaring table.
	mask = m.FieldMask("t_tasks", permission.Context{})
	assert.False(t, mask.Read["tasks"])
}
