package schema

import "errors"

// Sentinel errors for schema compilation failures. Compilation is fail-fast:
// any of these aborts the whole table's compilation, never a partial apply.
// Wrapped errors carry the offending table/field/view identifiers; use
// errors.Is or the Is*Err helpers to classify.
var (
	// ErrInvalidFieldConfig is returned when a field kind is unknown or its
	// kind-specific parameters are missing or malformed (e.g. a single-select
	// without options, a decimal without precision).
	ErrInvalidFieldConfig = errors.New("schema: invalid field config")

	// ErrDuplicateID is returned when two tables, or two fields within a
	// table, share an id.
	ErrDuplicateID = errors.New("schema: duplicate id")

	// ErrDuplicateName is returned when two tables, or two fields within a
	// table, share a name. Names colliding with implicit system fields
	// (id, created_at, updated_at, deleted_at) count as duplicates.
	ErrDuplicateName = errors.New("schema: duplicate name")

	// ErrInvalidName is returned for names that are not SQL-identifier-safe:
	// bad charset, too long, or a reserved keyword.
	ErrInvalidName = errors.New("schema: invalid name")

	// ErrCircularDependency is returned when formula fields reference each
	// other in a cycle. The error message names the cycle.
	ErrCircularDependency = errors.New("schema: circular formula dependency")

	// ErrCircularInheritance is returned when table permission inheritance
	// chains form a cycle.
	ErrCircularInheritance = errors.New("schema: circular permission inheritance")

	// ErrTypeMismatch is returned when a formula subexpression does not
	// type-check against its operator or function signature.
	ErrTypeMismatch = errors.New("schema: type mismatch")

	// ErrUnknownFieldReference is returned when a formula, view, constraint,
	// or computed field references a field that does not exist.
	ErrUnknownFieldReference = errors.New("schema: unknown field reference")

	// ErrInvalidConstraint is returned when a unique constraint or primary
	// key references a non-existent field, or a composite primary key
	// includes a field that is not required.
	ErrInvalidConstraint = errors.New("schema: invalid constraint")

	// ErrMultipleDefaultViews is returned when more than one view on a table
	// declares isDefault.
	ErrMultipleDefaultViews = errors.New("schema: multiple default views")

	// ErrEmptyViewName is returned for a view with an empty name.
	ErrEmptyViewName = errors.New("schema: empty view name")

	// ErrUnknownTableReference is returned when a relationship or permission
	// inheritance names a table that does not exist in the document.
	ErrUnknownTableReference = errors.New("schema: unknown table reference")
)

// IsInvalidFieldConfigErr returns true if err is or wraps ErrInvalidFieldConfig.
func IsInvalidFieldConfigErr(err error) bool {
	return errors.Is(err, ErrInvalidFieldConfig)
}

// IsCircularDependencyErr returns true if err is or wraps ErrCircularDependency.
func IsCircularDependencyErr(err error) bool {
	return errors.Is(err, ErrCircularDependency)
}

// IsCircularInheritanceErr returns true if err is or wraps ErrCircularInheritance.
func IsCircularInheritanceErr(err error) bool {
	return errors.Is(err, ErrCircularInheritance)
}

// IsTypeMismatchErr returns true if err is or wraps ErrTypeMismatch.
func IsTypeMismatchErr(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsDuplicateIDErr returns true if err is or wraps ErrDuplicateID.
func IsDuplicateIDErr(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}

// IsDuplicateNameErr returns true if err is or wraps ErrDuplicateName.
func IsDuplicateNameErr(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsInvalidNameErr returns true if err is or wraps ErrInvalidName.
func IsInvalidNameErr(err error) bool {
	return errors.Is(err, ErrInvalidName)
}

// IsUnknownFieldReferenceErr returns true if err is or wraps ErrUnknownFieldReference.
func IsUnknownFieldReferenceErr(err error) bool {
	return errors.Is(err, ErrUnknownFieldReference)
}

// IsUnknownTableReferenceErr returns true if err is or wraps ErrUnknownTableReference.
func IsUnknownTableReferenceErr(err error) bool {
	return errors.Is(err, ErrUnknownTableReference)
}

// IsInvalidConstraintErr returns true if err is or wraps ErrInvalidConstraint.
func IsInvalidConstraintErr(err error) bool {
	return errors.Is(err, ErrInvalidConstraint)
}

// IsMultipleDefaultViewsErr returns true if err is or wraps ErrMultipleDefaultViews.
func IsMultipleDefaultViewsErr(err error) bool {
	return errors.Is(err, ErrMultipleDefaultViews)
}

// IsEmptyViewNameErr returns true if err is or wraps ErrEmptyViewName.
func IsEmptyViewNameErr(err error) bool {
	return errors.Is(err, ErrEmptyViewName)
}
