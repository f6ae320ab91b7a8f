package view_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/compiler"
	"github.com/gridbase/gridbase/pkg/permission"
	"github.com/gridbase/gridbase/pkg/schema"
	"github.com/gridbase/gridbase/pkg/view"
)

func compile(t *testing.T, doc *schema.Document) *compiler.CompiledSchema {
	t.Helper()
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)
	return cs
}

func taskDoc() *schema.Document {
	return &schema.Document{
		Tables: []*schema.TableDef{{
			ID:   "t_tasks",
			Name: "tasks",
			Fields: []*schema.FieldDef{
				{ID: "f_title", Name: "title", Kind: schema.KindSingleLineText, Required: true},
				{ID: "f_status", Name: "status", Kind: schema.KindSingleSelect,
					Select: &schema.SelectParams{Options: []string{"todo", "doing", "done"}}},
				{ID: "f_est", Name: "estimate", Kind: schema.KindInteger},
				{ID: "f_secret", Name: "budget", Kind: schema.KindCurrency},
			},
			Views: []*schema.ViewDef{
				{ID: "v_all", Name: "all", IsDefault: true},
				{ID: "v_open", Name: "open",
					Filter: &schema.FilterNode{Field: "status", Op: "neq", Value: "done"},
					Sort:   []schema.SortSpec{{Field: "estimate", Descending: true}}},
				{ID: "v_board", Name: "board",
					Fields:  []string{"title", "status"},
					GroupBy: &schema.GroupBy{Field: "status", Order: []string{"doing", "todo", "done"}}},
			},
			Permissions: &schema.TablePermissions{
				Read: schema.PermitAll(),
				Fields: map[string]*schema.FieldPermission{
					"budget": {Read: schema.PermitRoles("admin")},
				},
			},
		}},
	}
}

func TestCompile_DefaultView(t *testing.T) {
	cs := compile(t, taskDoc())
	q, err := view.Compile(cs, "tasks", "", permission.Context{})
	require.NoError(t, err)

	assert.Equal(t, "t_tasks", q.Table)
	assert.Equal(t, "v_all", q.View)
	// id leads; budget is masked out for anonymous callers.
	assert.Equal(t, []string{"id", "title", "status", "estimate"}, q.Fields)
	assert.True(t, strings.HasPrefix(q.SQL, `SELECT "tasks"."id", "tasks"."title" AS "title"`), q.SQL)
	assert.Contains(t, q.SQL, `WHERE "tasks"."deleted_at" IS NULL`)
	assert.Empty(t, q.Args)
}

func TestCompile_PermissionMaskWidensWithRole(t *testing.T) {
	cs := compile(t, taskDoc())
	q, err := view.Compile(cs, "tasks", "all", permission.Context{Roles: []string{"admin"}, Authenticated: true})
	require.NoError(t, err)
	assert.Contains(t, q.Fields, "budget")
	assert.Contains(t, q.SQL, `"tasks"."budget" AS "budget"`)
}

func TestCompile_FilterBindsValues(t *testing.T) {
	cs := compile(t, taskDoc())
	q, err := view.Compile(cs, "tasks", "open", permission.Context{})
	require.NoError(t, err)

	assert.Contains(t, q.SQL, `"tasks"."status" <> $1`)
	assert.Equal(t, []interface{}{"done"}, q.Args)
	assert.NotContains(t, q.SQL, "'done'", "filter values must be bound, not inlined")
	assert.Contains(t, q.SQL, `ORDER BY "tasks"."estimate" DESC`)
}

func TestCompile_GroupFilterCollectsBindsInOrder(t *testing.T) {
	doc := taskDoc()
	doc.Tables[0].Views = append(doc.Tables[0].Views, &schema.ViewDef{
		ID: "v_hot", Name: "hot",
		Filter: &schema.FilterNode{
			Operator: "and",
			Children: []*schema.FilterNode{
				{Field: "status", Op: "eq", Value: "doing"},
				{Operator: "or", Children: []*schema.FilterNode{
					{Field: "estimate", Op: "gt", Value: 8},
					{Field: "estimate", Op: "eq", Value: nil},
				}},
			},
		},
	})
	cs := compile(t, doc)
	q, err := view.Compile(cs, "tasks", "hot", permission.Context{})
	require.NoError(t, err)

	assert.Contains(t, q.SQL, `"tasks"."status" = $1`)
	assert.Contains(t, q.SQL, `"tasks"."estimate" > $2`)
	assert.Contains(t, q.SQL, `"tasks"."estimate" IS NULL`)
	assert.Equal(t, []interface{}{"doing", 8}, q.Args)
}

func TestCompile_GroupByLiteralOrder(t *testing.T) {
	cs := compile(t, taskDoc())
	q, err := view.Compile(cs, "tasks", "board", permission.Context{})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "title", "status"}, q.Fields)
	assert.Contains(t, q.SQL,
		`ORDER BY CASE WHEN "tasks"."status" = 'doing' THEN 0 WHEN "tasks"."status" = 'todo' THEN 1 WHEN "tasks"."status" = 'done' THEN 2 ELSE 3 END, "tasks"."status"`)
}

func TestCompile_ReadDenied(t *testing.T) {
	doc := taskDoc()
	doc.Tables[0].Permissions.Read = schema.PermitAuthenticated()
	cs := compile(t, doc)

	_, err := view.Compile(cs, "tasks", "all", permission.Context{})
	require.Error(t, err)
	assert.ErrorIs(t, err, view.ErrReadDenied)

	_, err = view.Compile(cs, "tasks", "all", permission.Context{Authenticated: true})
	require.NoError(t, err)
}

func TestCompile_UnknownTableAndView(t *testing.T) {
	cs := compile(t, taskDoc())

	_, err := view.Compile(cs, "nope", "", permission.Context{})
	require.Error(t, err)
	assert.True(t, schema.IsUnknownTableReferenceErr(err))

	_, err = view.Compile(cs, "tasks", "nope", permission.Context{})
	require.Error(t, err)
}

func TestCompile_ComputedFieldProjectionAndFilter(t *testing.T) {
	doc := taskDoc()
	doc.Tables[0].Fields = append(doc.Tables[0].Fields, &schema.FieldDef{
		ID: "f_age", Name: "age_days", Kind: schema.KindFormula,
		Formula: &schema.FormulaParams{Expression: "DATE_DIFF(NOW(), created_at)", ResultType: "number"},
	})
	doc.Tables[0].Views = append(doc.Tables[0].Views, &schema.ViewDef{
		ID: "v_stale", Name: "stale",
		Filter: &schema.FilterNode{Field: "age_days", Op: "gte", Value: 30},
	})
	cs := compile(t, doc)
	q, err := view.Compile(cs, "tasks", "stale", permission.Context{})
	require.NoError(t, err)

	// The volatile formula is projected and filtered by its expression, not
	// a column reference.
	assert.Contains(t, q.SQL, `((NOW())::date - ("created_at")::date) AS "age_days"`)
	assert.Contains(t, q.SQL, `((NOW())::date - ("created_at")::date) >= $1`)
	assert.Equal(t, []interface{}{30}, q.Args)
}

func TestCompile_RelationshipFieldReadsFKColumn(t *testing.T) {
	doc := taskDoc()
	doc.Tables = append(doc.Tables, &schema.TableDef{
		ID:   "t_projects",
		Name: "projects",
		Fields: []*schema.FieldDef{
			{ID: "f_pname", Name: "name", Kind: schema.KindSingleLineText},
		},
	})
	doc.Tables[0].Fields = append(doc.Tables[0].Fields, &schema.FieldDef{
		ID: "f_project", Name: "project", Kind: schema.KindRelationship,
		Relationship: &schema.RelationshipParams{RelatedTable: "projects", Type: schema.RelationManyToOne},
	})
	cs := compile(t, doc)
	q, err := view.Compile(cs, "tasks", "all", permission.Context{})
	require.NoError(t, err)

	// The FK column is projected under the field's declared name.
	assert.Contains(t, q.SQL, `"tasks"."project_id" AS "project"`)
	assert.Contains(t, q.Fields, "project")
}

func TestCompileAll_SkipsUnreadableTables(t *testing.T) {
	doc := taskDoc()
	doc.Tables = append(doc.Tables, &schema.TableDef{
		ID:   "t_audit",
		Name: "audit_log",
		Fields: []*schema.FieldDef{
			{ID: "f_entry", Name: "entry", Kind: schema.KindLongText},
		},
		Views:       []*schema.ViewDef{{ID: "v_log", Name: "log"}},
		Permissions: &schema.TablePermissions{Read: schema.PermitRoles("admin")},
	})
	cs := compile(t, doc)

	all, err := view.CompileAll(cs, permission.Context{Authenticated: true})
	require.NoError(t, err)
	assert.Len(t, all["t_tasks"], 3)
	assert.NotContains(t, all, "t_audit")

	all, err = view.CompileAll(cs, permission.Context{Roles: []string{"admin"}, Authenticated: true})
	require.NoError(t, err)
	assert.Contains(t, all, "t_audit")
	assert.NotNil(t, all["t_audit"]["v_log"])
}

func TestCompile_ReciprocalFieldProjectsThroughView(t *testing.T) {
	doc := &schema.Document{
		Tables: []*schema.TableDef{
			{
				ID:   "t_projects",
				Name: "projects",
				Fields: []*schema.FieldDef{
					{ID: "f_pname", Name: "name", Kind: schema.KindSingleLineText, Required: true},
				},
				Views: []*schema.ViewDef{
					{ID: "v_roster", Name: "roster", Fields: []string{"name", "tasks"}},
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
	cs := compile(t, doc)

	q, err := view.Compile(cs, "projects", "roster", permission.Context{})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "tasks"}, q.Fields)
	assert.Contains(t, q.SQL,
		`ARRAY(SELECT c."id" FROM "tasks" c WHERE c."project_id" = "projects"."id") AS "tasks"`)
}
