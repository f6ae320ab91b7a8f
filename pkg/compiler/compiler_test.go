package compiler_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/pkg/compiler"
	"github.com/gridbase/gridbase/pkg/schema"
)

// storeDoc is a small commerce document exercising stored columns, formula
// fields, a to-one relationship, and computed fields over it.
func storeDoc() *schema.Document {
	return &schema.Document{
		Tables: []*schema.TableDef{
			{
				ID:   "t_vendors",
				Name: "vendors",
				Fields: []*schema.FieldDef{
					{ID: "f_vname", Name: "name", Kind: schema.KindSingleLineText, Required: true},
				},
			},
			{
				ID:   "t_products",
				Name: "products",
				Fields: []*schema.FieldDef{
					{ID: "f_title", Name: "title", Kind: schema.KindSingleLineText, Required: true,
						Text: &schema.TextParams{MaxLength: 255}},
					{ID: "f_price", Name: "price", Kind: schema.KindDecimal,
						Numeric: &schema.NumericParams{Precision: 10, Scale: 2}},
					{ID: "f_qty", Name: "quantity", Kind: schema.KindInteger},
					{ID: "f_total", Name: "total", Kind: schema.KindFormula,
						Formula: &schema.FormulaParams{Expression: "price * quantity", ResultType: "number"}},
					{ID: "f_vendor", Name: "vendor", Kind: schema.KindRelationship,
						Relationship: &schema.RelationshipParams{RelatedTable: "vendors", Type: schema.RelationManyToOne}},
					{ID: "f_vendor_name", Name: "vendor_name", Kind: schema.KindLookup,
						Lookup: &schema.LookupParams{RelationshipField: "vendor", TargetField: "name"}},
				},
			},
		},
	}
}

func findColumn(ct *compiler.CompiledTable, name string) *compiler.ColumnPlan {
	for i := range ct.Columns {
		if ct.Columns[i].Name == name {
			return &ct.Columns[i]
		}
	}
	return nil
}

func TestCompile_GeneratedColumn(t *testing.T) {
	cs, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	ct := cs.Table("products")
	require.NotNil(t, ct)
	col := findColumn(ct, "total")
	require.NotNil(t, col)
	assert.Equal(t, "NUMERIC", col.SQLType)
	assert.Equal(t, `("price" * "quantity")`, col.Generated)
	assert.NotContains(t, ct.FieldSQL, "total")

	ddl := strings.Join(cs.DDL, "\n")
	assert.Contains(t, ddl, `"total" NUMERIC GENERATED ALWAYS AS (("price" * "quantity")) STORED`)
}

func TestCompile_SystemColumnsLeadEveryTable(t *testing.T) {
	cs, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	ct := cs.Table("vendors")
	require.NotNil(t, ct)
	require.True(t, len(ct.Columns) >= 4)
	assert.Equal(t, "id", ct.Columns[0].Name)
	assert.Equal(t, "created_at", ct.Columns[1].Name)
	assert.Equal(t, "updated_at", ct.Columns[2].Name)
	assert.Equal(t, "deleted_at", ct.Columns[3].Name)
	assert.False(t, ct.Columns[3].NotNull)
}

func TestCompile_VolatileFormulaBecomesProjection(t *testing.T) {
	doc := storeDoc()
	doc.Tables[1].Fields = append(doc.Tables[1].Fields, &schema.FieldDef{
		ID: "f_age", Name: "age_days", Kind: schema.KindFormula,
		Formula: &schema.FormulaParams{Expression: "DATE_DIFF(NOW(), created_at)", ResultType: "number"},
	})
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)

	ct := cs.Table("products")
	assert.Nil(t, findColumn(ct, "age_days"))
	assert.Equal(t, `((NOW())::date - ("created_at")::date)`, ct.FieldSQL["age_days"])
}

func TestCompile_FormulaReferencingComputedFieldBecomesProjection(t *testing.T) {
	doc := storeDoc()
	doc.Tables[1].Fields = append(doc.Tables[1].Fields, &schema.FieldDef{
		ID: "f_label", Name: "label", Kind: schema.KindFormula,
		Formula: &schema.FormulaParams{Expression: `CONCAT(vendor_name, ": ", title)`, ResultType: "text"},
	})
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)

	ct := cs.Table("products")
	assert.Nil(t, findColumn(ct, "label"))
	assert.Contains(t, ct.FieldSQL, "label")
	// The lookup subquery is inlined into the projection.
	assert.Contains(t, ct.FieldSQL["label"], `SELECT r."name" FROM "vendors" r`)
}

func TestCompile_FormulaChainInlined(t *testing.T) {
	doc := storeDoc()
	doc.Tables[1].Fields = append(doc.Tables[1].Fields, &schema.FieldDef{
		ID: "f_grand", Name: "grand_total", Kind: schema.KindFormula,
		Formula: &schema.FormulaParams{Expression: "total * 2", ResultType: "number"},
	})
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)

	col := findColumn(cs.Table("products"), "grand_total")
	require.NotNil(t, col)
	// No generated column references another generated column.
	assert.Equal(t, `((("price" * "quantity")) * 2)`, col.Generated)
}

func TestCompile_FormulaUnknownReference(t *testing.T) {
	doc := storeDoc()
	doc.Tables[1].Fields[3].Formula.Expression = "price * missing"
	_, err := compiler.Compile(doc, nil)
	require.Error(t, err)
	assert.True(t, schema.IsUnknownFieldReferenceErr(err))
}

func TestCompile_ForeignKey(t *testing.T) {
	cs, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	ct := cs.Table("products")
	col := findColumn(ct, "vendor_id")
	require.NotNil(t, col)
	assert.Equal(t, "BIGINT", col.SQLType)

	var fk *compiler.ConstraintPlan
	for i := range ct.Constraints {
		if ct.Constraints[i].Name == "fk_products_vendor" {
			fk = &ct.Constraints[i]
		}
	}
	require.NotNil(t, fk)
	assert.Equal(t, `FOREIGN KEY ("vendor_id") REFERENCES "vendors" ("id") ON DELETE RESTRICT ON UPDATE RESTRICT`, fk.Body)
}

func TestCompile_LookupSQL(t *testing.T) {
	cs, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	ct := cs.Table("products")
	assert.Equal(t,
		`(SELECT r."name" FROM "vendors" r WHERE "r"."id" = "products"."vendor_id")`,
		ct.FieldSQL["vendor_name"])
}

func TestCompile_DDLOrdering(t *testing.T) {
	cs, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	var lastCreate, firstConstraint = -1, -1
	for i, stmt := range cs.DDL {
		if strings.HasPrefix(stmt, "CREATE TABLE") {
			lastCreate = i
		}
		if firstConstraint == -1 && strings.Contains(stmt, "ADD CONSTRAINT") {
			firstConstraint = i
		}
	}
	require.GreaterOrEqual(t, lastCreate, 0)
	require.GreaterOrEqual(t, firstConstraint, 0)
	assert.Greater(t, firstConstraint, lastCreate, "constraints must follow all table creates")
}

func tagsDoc(declaredOnProducts bool) *schema.Document {
	products := &schema.TableDef{
		ID:   "t_products",
		Name: "products",
		Fields: []*schema.FieldDef{
			{ID: "f_title", Name: "title", Kind: schema.KindSingleLineText},
		},
	}
	tags := &schema.TableDef{
		ID:   "t_tags",
		Name: "tags",
		Fields: []*schema.FieldDef{
			{ID: "f_tname", Name: "name", Kind: schema.KindSingleLineText},
		},
	}
	if declaredOnProducts {
		products.Fields = append(products.Fields, &schema.FieldDef{
			ID: "f_tags", Name: "tags", Kind: schema.KindRelationship,
			Relationship: &schema.RelationshipParams{RelatedTable: "tags", Type: schema.RelationManyToMany},
		})
	} else {
		tags.Fields = append(tags.Fields, &schema.FieldDef{
			ID: "f_products", Name: "products", Kind: schema.KindRelationship,
			Relationship: &schema.RelationshipParams{RelatedTable: "products", Type: schema.RelationManyToMany},
		})
	}
	return &schema.Document{Tables: []*schema.TableDef{products, tags}}
}

func TestCompile_JunctionOrderIndependent(t *testing.T) {
	left, err := compiler.Compile(tagsDoc(true), nil)
	require.NoError(t, err)
	right, err := compiler.Compile(tagsDoc(false), nil)
	require.NoError(t, err)

	lj := left.Table("products").Junctions
	rj := right.Table("products").Junctions
	require.Len(t, lj, 1)
	assert.Equal(t, lj, rj, "junction plan must not depend on the declaring side")
	assert.Equal(t, "products_tags", lj[0].Name)
	assert.Equal(t, "products", lj[0].LeftTable)
	assert.Equal(t, "products_id", lj[0].LeftColumn)
	assert.Equal(t, "tags_id", lj[0].RightColumn)

	assert.Empty(t, left.Table("tags").Junctions)
}

func TestCompile_ManyToManyFieldIsArrayProjection(t *testing.T) {
	cs, err := compiler.Compile(tagsDoc(true), nil)
	require.NoError(t, err)

	ct := cs.Table("products")
	assert.Nil(t, findColumn(ct, "tags"))
	assert.Nil(t, findColumn(ct, "tags_id"))
	assert.Equal(t,
		`ARRAY(SELECT j."tags_id" FROM "products_tags" j WHERE j."products_id" = "products"."id")`,
		ct.FieldSQL["tags"])
}

func TestCompile_RollupThroughJunction(t *testing.T) {
	doc := tagsDoc(true)
	doc.Tables[0].Fields = append(doc.Tables[0].Fields, &schema.FieldDef{
		ID: "f_tag_names", Name: "tag_names", Kind: schema.KindRollup,
		Rollup: &schema.RollupParams{
			RelationshipField: "tags",
			TargetField:       "name",
			Func:              schema.RollupConcatDistinct,
		},
	})
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)

	assert.Equal(t,
		`(SELECT STRING_AGG(DISTINCT ("r"."name")::text, ', ') FROM "tags" r WHERE r."id" IN (SELECT j."tags_id" FROM "products_tags" j WHERE j."products_id" = "products"."id"))`,
		cs.Table("products").FieldSQL["tag_names"])
}

func TestCompile_CountWithFilterRendersLiterals(t *testing.T) {
	doc := tagsDoc(true)
	doc.Tables[0].Fields = append(doc.Tables[0].Fields, &schema.FieldDef{
		ID: "f_featured", Name: "featured_tags", Kind: schema.KindCount,
		Count: &schema.CountParams{
			RelationshipField: "tags",
			Filter:            &schema.FilterNode{Field: "name", Op: "eq", Value: "featured"},
		},
	})
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)

	sql := cs.Table("products").FieldSQL["featured_tags"]
	assert.Contains(t, sql, "SELECT COUNT(*) FROM \"tags\" r")
	assert.Contains(t, sql, `"r"."name" = 'featured'`)
	assert.NotContains(t, sql, "$1", "document filter values render as literals, not binds")
}

func TestCompile_LookupThroughManyToManyRejected(t *testing.T) {
	doc := tagsDoc(true)
	doc.Tables[0].Fields = append(doc.Tables[0].Fields, &schema.FieldDef{
		ID: "f_bad", Name: "tag_name", Kind: schema.KindLookup,
		Lookup: &schema.LookupParams{RelationshipField: "tags", TargetField: "name"},
	})
	_, err := compiler.Compile(doc, nil)
	require.Error(t, err)
	assert.True(t, schema.IsInvalidFieldConfigErr(err))
}

func TestCompile_RenameByFieldID(t *testing.T) {
	prev, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	doc := storeDoc()
	doc.Tables[1].Fields[0].Name = "heading" // same field id f_title
	cs, err := compiler.Compile(doc, prev)
	require.NoError(t, err)

	ddl := strings.Join(cs.DDL, "\n")
	assert.Contains(t, ddl, `ALTER TABLE "products" RENAME COLUMN "title" TO "heading";`)
	assert.NotContains(t, ddl, `DROP COLUMN IF EXISTS "title"`)
}

func TestCompile_TableRename(t *testing.T) {
	prev, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	doc := storeDoc()
	doc.Tables[0].Name = "suppliers"
	// Keep dependents pointing at the renamed table.
	doc.Tables[1].Fields[4].Relationship.RelatedTable = "suppliers"
	cs, err := compiler.Compile(doc, prev)
	require.NoError(t, err)

	ddl := strings.Join(cs.DDL, "\n")
	assert.Contains(t, ddl, `ALTER TABLE "vendors" RENAME TO "suppliers";`)
}

func TestCompile_UnchangedSchemaEmitsNoDDL(t *testing.T) {
	prev, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)
	cs, err := compiler.Compile(storeDoc(), prev)
	require.NoError(t, err)
	assert.Empty(t, cs.DDL)
}

func TestCompile_AddAndDropColumn(t *testing.T) {
	prev, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	doc := storeDoc()
	doc.Tables[1].Fields = append(doc.Tables[1].Fields[:2], doc.Tables[1].Fields[3:]...) // drop quantity
	doc.Tables[1].Fields[2].Formula.Expression = "price * 2"                             // total no longer uses it
	doc.Tables[1].Fields = append(doc.Tables[1].Fields, &schema.FieldDef{
		ID: "f_sku", Name: "sku", Kind: schema.KindSingleLineText, Unique: true,
	})
	cs, err := compiler.Compile(doc, prev)
	require.NoError(t, err)

	ddl := strings.Join(cs.DDL, "\n")
	assert.Contains(t, ddl, `ADD COLUMN "sku" TEXT`)
	assert.Contains(t, ddl, `ADD CONSTRAINT "uq_products_sku" UNIQUE ("sku")`)
	assert.Contains(t, ddl, `DROP COLUMN IF EXISTS "quantity";`)

	// Drops come after additive statements.
	dropAt := strings.Index(ddl, `DROP COLUMN IF EXISTS "quantity"`)
	addAt := strings.Index(ddl, `ADD COLUMN "sku"`)
	assert.Greater(t, dropAt, addAt)
}

func TestCompile_DroppedTableDDLRunsLast(t *testing.T) {
	prev, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	doc := storeDoc()
	doc.Tables = doc.Tables[1:]                           // drop vendors
	doc.Tables[0].Fields = doc.Tables[0].Fields[:4]       // drop vendor + vendor_name
	cs, err := compiler.Compile(doc, prev)
	require.NoError(t, err)

	require.NotEmpty(t, cs.DDL)
	assert.Equal(t, `DROP TABLE IF EXISTS "vendors";`, cs.DDL[len(cs.DDL)-1])
}

func TestCompile_SnapshotRoundTrip(t *testing.T) {
	cs, err := compiler.Compile(storeDoc(), nil)
	require.NoError(t, err)

	data, err := cs.Snapshot()
	require.NoError(t, err)
	loaded, err := compiler.LoadSnapshot(data)
	require.NoError(t, err)

	// Recompiling against the loaded snapshot sees no structural change.
	next, err := compiler.Compile(storeDoc(), loaded)
	require.NoError(t, err)
	assert.Empty(t, next.DDL)
}

func TestCompile_CompositePrimaryKey(t *testing.T) {
	doc := storeDoc()
	doc.Tables[1].Fields[0].Required = true
	doc.Tables[1].Fields[4].Required = true
	doc.Tables[1].PrimaryKey = &schema.PrimaryKey{Fields: []string{"title", "vendor"}}
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)

	var pk *compiler.ConstraintPlan
	ct := cs.Table("products")
	for i := range ct.Constraints {
		if ct.Constraints[i].Name == "pk_products" {
			pk = &ct.Constraints[i]
		}
	}
	require.NotNil(t, pk)
	// Relationship references resolve to the physical FK column.
	assert.Equal(t, `PRIMARY KEY ("title", "vendor_id")`, pk.Body)
}

func TestCompile_FormulaOverRelationshipUsesForeignKeyColumn(t *testing.T) {
	doc := storeDoc()
	doc.Tables[1].Fields = append(doc.Tables[1].Fields, &schema.FieldDef{
		ID: "f_vcode", Name: "vendor_code", Kind: schema.KindFormula,
		Formula: &schema.FormulaParams{Expression: "vendor + 0", ResultType: "number"},
	})
	cs, err := compiler.Compile(doc, nil)
	require.NoError(t, err)

	col := findColumn(cs.Table("products"), "vendor_code")
	require.NotNil(t, col)
	// The relationship is stored under its FK column, not the field name.
	assert.Equal(t, `("vendor_id" + 0)`, col.Generated)
}

func TestCompile_FormulaOverManyToManyRejected(t *testing.T) {
	doc := tagsDoc(true)
	doc.Tables[0].Fields = append(doc.Tables[0].Fields, &schema.FieldDef{
		ID: "f_tagmath", Name: "tag_math", Kind: schema.KindFormula,
		Formula: &schema.FormulaParams{Expression: "tags + 1", ResultType: "number"},
	})
	_, err := compiler.Compile(doc, nil)
	require.Error(t, err)
	assert.True(t, schema.IsInvalidFieldConfigErr(err))
	assert.Contains(t, err.Error(), "tag_math")
}
