package formula

import (
	"github.com/gridbase/gridbase/internal/sqldsl"
	"github.com/gridbase/gridbase/pkg/schema"
)

// Type is a formula value type. The type system is deliberately small:
// every field kind projects onto one of these four.
type Type int

// Formula value types.
const (
	TypeInvalid Type = iota
	TypeText
	TypeNumber
	TypeBool
	TypeDate
)

// String returns the document spelling of the type.
func (t Type) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "boolean"
	case TypeDate:
		return "date"
	default:
		return "invalid"
	}
}

// TypeFromName parses the document spelling of a result type.
func TypeFromName(name string) Type {
	switch name {
	case "text":
		return TypeText
	case "number":
		return TypeNumber
	case "boolean":
		return TypeBool
	case "date":
		return TypeDate
	default:
		return TypeInvalid
	}
}

// castSQLType returns the PostgreSQL type used for explicit coercion casts.
func castSQLType(t Type) string {
	switch t {
	case TypeText:
		return "text"
	case TypeNumber:
		return "numeric"
	case TypeBool:
		return "boolean"
	case TypeDate:
		return "timestamptz"
	default:
		return "text"
	}
}

// coercible reports whether a value of type from may be implicitly cast to
// type to. The coercion table is fixed: number, boolean, and date all
// convert to and from text; date and number never convert to each other
// without an explicit function (UNIX_SECONDS).
func coercible(from, to Type) bool {
	if from == to {
		return true
	}
	switch {
	case from == TypeText && (to == TypeNumber || to == TypeBool || to == TypeDate):
		return true
	case to == TypeText && (from == TypeNumber || from == TypeBool || from == TypeDate):
		return true
	}
	return false
}

// TypeOfKind maps a field kind onto the formula type system. Relationship
// fields surface as the numeric FK value; attachment and structured kinds
// surface as text. Formula and lookup kinds need document context and are
// resolved by the compiler, which overrides this mapping.
func TypeOfKind(kind schema.FieldKind) Type {
	switch kind {
	case schema.KindInteger, schema.KindDecimal, schema.KindFloat,
		schema.KindCurrency, schema.KindPercent, schema.KindRating,
		schema.KindDuration, schema.KindAutoNumber, schema.KindYear,
		schema.KindRelationship, schema.KindCount, schema.KindCreatedBy,
		schema.KindUpdatedBy:
		return TypeNumber
	case schema.KindCheckbox:
		return TypeBool
	case schema.KindDate, schema.KindDateTime, schema.KindTime,
		schema.KindCreatedTime, schema.KindUpdatedTime:
		return TypeDate
	default:
		return TypeText
	}
}

// funcSpec declares one built-in function: its argument signature, result
// type, volatility, and SQL emission. Volatile functions keep a formula
// out of stored generated columns.
type funcSpec struct {
	minArgs  int
	maxArgs  int // -1 for variadic
	args     []Type
	result   Type
	volatile bool
	emit     func(args []sqldsl.Expr) sqldsl.Expr
}

func fn(name string, args ...sqldsl.Expr) sqldsl.Expr {
	return sqldsl.Func{Name: name, Args: args}
}

func extract(part string) func(args []sqldsl.Expr) sqldsl.Expr {
	return func(args []sqldsl.Expr) sqldsl.Expr {
		return sqldsl.Raw("EXTRACT(" + part + " FROM " + args[0].SQL() + ")")
	}
}

func mapFunc(name string) func(args []sqldsl.Expr) sqldsl.Expr {
	return func(args []sqldsl.Expr) sqldsl.Expr {
		return fn(name, args...)
	}
}

// functions is the fixed catalog of built-ins. IF and COALESCE are generic
// over their value arguments and get special-cased in the checker; they do
// not appear here.
var functions = map[string]funcSpec{
	// Numeric.
	"ROUND":   {minArgs: 1, maxArgs: 2, args: []Type{TypeNumber, TypeNumber}, result: TypeNumber, emit: mapFunc("ROUND")},
	"ABS":     {minArgs: 1, maxArgs: 1, args: []Type{TypeNumber}, result: TypeNumber, emit: mapFunc("ABS")},
	"CEILING": {minArgs: 1, maxArgs: 1, args: []Type{TypeNumber}, result: TypeNumber, emit: mapFunc("CEIL")},
	"FLOOR":   {minArgs: 1, maxArgs: 1, args: []Type{TypeNumber}, result: TypeNumber, emit: mapFunc("FLOOR")},
	"SQRT":    {minArgs: 1, maxArgs: 1, args: []Type{TypeNumber}, result: TypeNumber, emit: mapFunc("SQRT")},
	"POWER":   {minArgs: 2, maxArgs: 2, args: []Type{TypeNumber, TypeNumber}, result: TypeNumber, emit: mapFunc("POWER")},
	"MOD":     {minArgs: 2, maxArgs: 2, args: []Type{TypeNumber, TypeNumber}, result: TypeNumber, emit: mapFunc("MOD")},
	"MIN":     {minArgs: 2, maxArgs: -1, args: []Type{TypeNumber}, result: TypeNumber, emit: mapFunc("LEAST")},
	"MAX":     {minArgs: 2, maxArgs: -1, args: []Type{TypeNumber}, result: TypeNumber, emit: mapFunc("GREATEST")},

	// Text.
	"CONCAT": {minArgs: 1, maxArgs: -1, args: []Type{TypeText}, result: TypeText,
		emit: func(args []sqldsl.Expr) sqldsl.Expr { return sqldsl.Paren{Expr: sqldsl.Concat{Parts: args}} }},
	"UPPER":   {minArgs: 1, maxArgs: 1, args: []Type{TypeText}, result: TypeText, emit: mapFunc("UPPER")},
	"LOWER":   {minArgs: 1, maxArgs: 1, args: []Type{TypeText}, result: TypeText, emit: mapFunc("LOWER")},
	"TRIM":    {minArgs: 1, maxArgs: 1, args: []Type{TypeText}, result: TypeText, emit: mapFunc("TRIM")},
	"LEFT":    {minArgs: 2, maxArgs: 2, args: []Type{TypeText, TypeNumber}, result: TypeText, emit: mapFunc("LEFT")},
	"RIGHT":   {minArgs: 2, maxArgs: 2, args: []Type{TypeText, TypeNumber}, result: TypeText, emit: mapFunc("RIGHT")},
	"SUBSTR":  {minArgs: 2, maxArgs: 3, args: []Type{TypeText, TypeNumber, TypeNumber}, result: TypeText, emit: mapFunc("SUBSTR")},
	"LEN":     {minArgs: 1, maxArgs: 1, args: []Type{TypeText}, result: TypeNumber, emit: mapFunc("LENGTH")},
	"REPLACE": {minArgs: 3, maxArgs: 3, args: []Type{TypeText, TypeText, TypeText}, result: TypeText, emit: mapFunc("REPLACE")},
	"REGEX_MATCH": {minArgs: 2, maxArgs: 2, args: []Type{TypeText, TypeText}, result: TypeBool,
		emit: func(args []sqldsl.Expr) sqldsl.Expr {
			return sqldsl.Paren{Expr: sqldsl.Infix{Left: args[0], Op: "~", Right: args[1]}}
		}},
	"REGEX_REPLACE": {minArgs: 3, maxArgs: 3, args: []Type{TypeText, TypeText, TypeText}, result: TypeText, emit: mapFunc("REGEXP_REPLACE")},

	// Logical.
	"NOT": {minArgs: 1, maxArgs: 1, args: []Type{TypeBool}, result: TypeBool,
		emit: func(args []sqldsl.Expr) sqldsl.Expr {
			return sqldsl.Paren{Expr: sqldsl.Prefix{Op: "NOT", Expr: args[0]}}
		}},

	// Date and time. NOW and TODAY are volatile, which keeps formulas using
	// them out of stored generated columns.
	"NOW":     {minArgs: 0, maxArgs: 0, result: TypeDate, volatile: true, emit: func([]sqldsl.Expr) sqldsl.Expr { return sqldsl.Raw("NOW()") }},
	"TODAY":   {minArgs: 0, maxArgs: 0, result: TypeDate, volatile: true, emit: func([]sqldsl.Expr) sqldsl.Expr { return sqldsl.Raw("CURRENT_DATE") }},
	"YEAR":    {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("YEAR")},
	"MONTH":   {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("MONTH")},
	"DAY":     {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("DAY")},
	"HOUR":    {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("HOUR")},
	"MINUTE":  {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("MINUTE")},
	"SECOND":  {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("SECOND")},
	"WEEKDAY": {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("DOW")},
	"DATE_DIFF": {minArgs: 2, maxArgs: 2, args: []Type{TypeDate, TypeDate}, result: TypeNumber,
		emit: func(args []sqldsl.Expr) sqldsl.Expr {
			return sqldsl.Paren{Expr: sqldsl.Infix{
				Left:  sqldsl.Cast{Expr: args[0], Type: "date"},
				Op:    "-",
				Right: sqldsl.Cast{Expr: args[1], Type: "date"},
			}}
		}},

	// Explicit conversions. UNIX_SECONDS is the sanctioned date-to-number
	// bridge; the implicit coercion table refuses that pair.
	"UNIX_SECONDS": {minArgs: 1, maxArgs: 1, args: []Type{TypeDate}, result: TypeNumber, emit: extract("EPOCH")},
	"NUMBER": {minArgs: 1, maxArgs: 1, args: []Type{TypeText}, result: TypeNumber,
		emit: func(args []sqldsl.Expr) sqldsl.Expr { return sqldsl.Cast{Expr: args[0], Type: "numeric"} }},
	"DATE": {minArgs: 1, maxArgs: 1, args: []Type{TypeText}, result: TypeDate,
		emit: func(args []sqldsl.Expr) sqldsl.Expr { return sqldsl.Cast{Expr: args[0], Type: "timestamptz"} }},
}
