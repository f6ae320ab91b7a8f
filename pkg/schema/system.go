package schema

// System field names. Every table carries these implicitly; they exist
// without a FieldDef and participate in formula reference resolution and
// the field dependency graph like declared fields.
const (
	SystemFieldID        = "id"
	SystemFieldCreatedAt = "created_at"
	SystemFieldUpdatedAt = "updated_at"
	SystemFieldDeletedAt = "deleted_at"
)

// SystemField describes one implicit field.
type SystemField struct {
	Name    string
	SQLType string
	// FormulaType is the formula type system's view of the field:
	// "number" for id, "date" for the timestamps.
	FormulaType string
	Nullable    bool
	DefaultSQL  string
}

// SystemFields returns the implicit fields of every table, in column order.
func SystemFields() []SystemField {
	return []SystemField{
		{Name: SystemFieldID, SQLType: "BIGINT GENERATED ALWAYS AS IDENTITY", FormulaType: "number"},
		{Name: SystemFieldCreatedAt, SQLType: "TIMESTAMPTZ", FormulaType: "date", DefaultSQL: "now()"},
		{Name: SystemFieldUpdatedAt, SQLType: "TIMESTAMPTZ", FormulaType: "date", DefaultSQL: "now()"},
		{Name: SystemFieldDeletedAt, SQLType: "TIMESTAMPTZ", FormulaType: "date", Nullable: true},
	}
}

// IsSystemField reports whether name is one of the implicit field names.
func IsSystemField(name string) bool {
	switch name {
	case SystemFieldID, SystemFieldCreatedAt, SystemFieldUpdatedAt, SystemFieldDeletedAt:
		return true
	}
	return false
}

// SystemFieldByName returns the implicit field with the given name.
func SystemFieldByName(name string) (SystemField, bool) {
	for _, sf := range SystemFields() {
		if sf.Name == name {
			return sf, true
		}
	}
	return SystemField{}, false
}
