package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/internal/sqldsl"
	"github.com/gridbase/gridbase/pkg/schema"
)

func testEnv() *Env {
	return &Env{Types: map[string]Type{
		"price":    TypeNumber,
		"quantity": TypeNumber,
		"stock":    TypeNumber,
		"title":    TypeText,
		"status":   TypeText,
		"nickname": TypeText,
		"name":     TypeText,
		"active":   TypeBool,
		"due":      TypeDate,
		"start":    TypeDate,
	}}
}

func TestCompile_Arithmetic(t *testing.T) {
	c, err := Compile("price * quantity", TypeNumber, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `("price" * "quantity")`, c.SQL)
	assert.False(t, c.Volatile)
	assert.Equal(t, []string{"price", "quantity"}, c.Refs)
}

func TestCompile_If(t *testing.T) {
	c, err := Compile(`IF(stock > 0, "in stock", "sold out")`, TypeText, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `(CASE WHEN ("stock" > 0) THEN 'in stock' ELSE 'sold out' END)`, c.SQL)
}

func TestCompile_NotEqualsEmitsAngleBrackets(t *testing.T) {
	c, err := Compile(`status != "done"`, TypeBool, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `("status" <> 'done')`, c.SQL)
}

func TestCompile_VolatileNow(t *testing.T) {
	c, err := Compile("NOW()", TypeDate, testEnv())
	require.NoError(t, err)
	assert.True(t, c.Volatile)
	assert.Equal(t, "NOW()", c.SQL)

	c, err = Compile("DATE_DIFF(due, start)", TypeNumber, testEnv())
	require.NoError(t, err)
	assert.False(t, c.Volatile)
	assert.Equal(t, `(("due")::date - ("start")::date)`, c.SQL)
}

func TestCompile_DeclaredTypeCoercion(t *testing.T) {
	c, err := Compile("quantity", TypeText, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `("quantity")::text`, c.SQL)

	_, err = Compile("price", TypeDate, testEnv())
	require.Error(t, err)
	assert.True(t, schema.IsTypeMismatchErr(err))
}

func TestCompile_UnknownField(t *testing.T) {
	_, err := Compile("missing + 1", TypeNumber, testEnv())
	require.Error(t, err)
	assert.True(t, schema.IsUnknownFieldReferenceErr(err))
}

func TestCompile_InlinesEnvSQL(t *testing.T) {
	env := testEnv()
	env.Types["total"] = TypeNumber
	env.SQL = map[string]sqldsl.Expr{
		"total": sqldsl.Raw(`("price" * "quantity")`),
	}
	c, err := Compile("total * 2", TypeNumber, env)
	require.NoError(t, err)
	assert.Equal(t, `((("price" * "quantity")) * 2)`, c.SQL)
}

func TestCompile_TypeMismatches(t *testing.T) {
	// Booleans do not coerce to numbers.
	_, err := Compile("active + 1", TypeNumber, testEnv())
	require.Error(t, err)
	assert.True(t, schema.IsTypeMismatchErr(err))

	// Dates and numbers never compare implicitly.
	_, err = Compile("due > 5", TypeBool, testEnv())
	require.Error(t, err)
	assert.True(t, schema.IsTypeMismatchErr(err))
}

func TestCompile_ConcatCoercesToText(t *testing.T) {
	c, err := Compile(`CONCAT(title, ": ", price)`, TypeText, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `("title" || ': ' || ("price")::text)`, c.SQL)
}

func TestCompile_Coalesce(t *testing.T) {
	c, err := Compile("COALESCE(nickname, name)", TypeText, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `COALESCE("nickname", "name")`, c.SQL)
}

func TestCompile_FunctionMapping(t *testing.T) {
	c, err := Compile("MIN(price, quantity)", TypeNumber, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `LEAST("price", "quantity")`, c.SQL)

	c, err = Compile("LEN(title)", TypeNumber, testEnv())
	require.NoError(t, err)
	assert.Equal(t, `LENGTH("title")`, c.SQL)
}

func TestCompile_CallErrors(t *testing.T) {
	_, err := Compile("ROUND(1, 2, 3)", TypeNumber, testEnv())
	require.Error(t, err)
	assert.True(t, schema.IsTypeMismatchErr(err))

	_, err = Compile("FROBNICATE(1)", TypeNumber, testEnv())
	require.Error(t, err)
	assert.True(t, schema.IsTypeMismatchErr(err))
}

func TestSortDependencies_Order(t *testing.T) {
	order, err := SortDependencies(map[string][]string{
		"total":       {"price", "quantity"},
		"grand_total": {"total", "tax"},
		"tax":         {"total"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"total", "tax", "grand_total"}, order)
}

func TestSortDependencies_Cycle(t *testing.T) {
	_, err := SortDependencies(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	require.Error(t, err)
	assert.True(t, schema.IsCircularDependencyErr(err))
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestCompile_ColumnSubstitutionStaysBare(t *testing.T) {
	// Column-valued substitutions (FK columns standing in for relationship
	// fields) render as plain references; inlined expressions keep their
	// grouping parentheses.
	env := testEnv()
	env.Types["vendor"] = TypeNumber
	env.SQL = map[string]sqldsl.Expr{"vendor": sqldsl.Col{Column: "vendor_id"}}

	c, err := Compile("vendor + 0", TypeNumber, env)
	require.NoError(t, err)
	assert.Equal(t, `("vendor_id" + 0)`, c.SQL)
}
