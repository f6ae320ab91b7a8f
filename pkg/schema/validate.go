package schema

import (
	"fmt"
	"regexp"
)

// maxIdentifierLength matches the PostgreSQL identifier limit.
const maxIdentifierLength = 63

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// reservedWords are SQL keywords that cannot name tables or fields.
// Quoting would make them legal to the engine, but reserved names are a
// reliable source of tooling grief downstream, so they are rejected.
var reservedWords = map[string]bool{
	"all": true, "and": true, "any": true, "array": true, "as": true,
	"asc": true, "between": true, "both": true, "case": true, "cast": true,
	"check": true, "collate": true, "column": true, "constraint": true,
	"create": true, "cross": true, "current_date": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "default": true,
	"desc": true, "distinct": true, "do": true, "else": true, "end": true,
	"except": true, "exists": true, "false": true, "for": true,
	"foreign": true, "from": true, "full": true, "grant": true, "group": true,
	"having": true, "in": true, "index": true, "inner": true,
	"intersect": true, "into": true, "is": true, "join": true,
	"leading": true, "left": true, "like": true, "limit": true,
	"localtime": true, "localtimestamp": true, "not": true, "null": true,
	"offset": true, "on": true, "only": true, "or": true, "order": true,
	"outer": true, "primary": true, "references": true, "returning": true,
	"right": true, "select": true, "session_user": true, "some": true,
	"table": true, "then": true, "to": true, "trailing": true, "true": true,
	"union": true, "unique": true, "user": true, "using": true, "when": true,
	"where": true, "window": true, "with": true,
}

// Validate checks the document's structure: identifier safety, uniqueness,
// constraint references, view invariants, and kind-specific field
// parameters. It does not parse formulas or resolve permissions; those run
// in pkg/formula and pkg/permission during compilation.
//
// Validation is fail-fast per table: the first violation found on a table
// is returned and the table is considered uncompilable.
func Validate(doc *Document) error {
	tableIDs := make(map[string]string, len(doc.Tables))
	tableNames := make(map[string]string, len(doc.Tables))

	for _, t := range doc.Tables {
		if err := validName(t.Name, "table"); err != nil {
			return err
		}
		if prev, ok := tableIDs[t.ID]; ok {
			return fmt.Errorf("%w: tables %q and %q share id %q", ErrDuplicateID, prev, t.Name, t.ID)
		}
		tableIDs[t.ID] = t.Name
		if _, ok := tableNames[t.Name]; ok {
			return fmt.Errorf("%w: table %q declared twice", ErrDuplicateName, t.Name)
		}
		tableNames[t.Name] = t.ID
	}

	for _, t := range doc.Tables {
		if err := validateTable(doc, t); err != nil {
			return err
		}
	}
	return nil
}

func validateTable(doc *Document, t *TableDef) error {
	fieldIDs := make(map[string]string, len(t.Fields))
	fieldNames := make(map[string]bool, len(t.Fields))

	for _, f := range t.Fields {
		if err := validName(f.Name, "field"); err != nil {
			return fmt.Errorf("table %q: %w", t.Name, err)
		}
		if IsSystemField(f.Name) {
			return fmt.Errorf("%w: table %q field %q collides with an implicit system field", ErrDuplicateName, t.Name, f.Name)
		}
		if prev, ok := fieldIDs[f.ID]; ok {
			return fmt.Errorf("%w: table %q fields %q and %q share id %q", ErrDuplicateID, t.Name, prev, f.Name, f.ID)
		}
		fieldIDs[f.ID] = f.Name
		if fieldNames[f.Name] {
			return fmt.Errorf("%w: table %q field %q declared twice", ErrDuplicateName, t.Name, f.Name)
		}
		fieldNames[f.Name] = true

		if _, err := ResolveColumn(f); err != nil {
			return fmt.Errorf("table %q: %w", t.Name, err)
		}
		if err := validateFieldRefs(doc, t, f); err != nil {
			return err
		}
	}

	if err := validatePrimaryKey(t); err != nil {
		return err
	}
	for _, uc := range t.UniqueConstraints {
		if err := validateUniqueConstraint(t, uc); err != nil {
			return err
		}
	}
	if err := validateViews(doc, t); err != nil {
		return err
	}
	return validatePermissionRefs(doc, t)
}

// validateFieldRefs checks cross-field and cross-table references of
// relationship and computed fields.
func validateFieldRefs(doc *Document, t *TableDef, f *FieldDef) error {
	switch f.Kind {
	case KindRelationship:
		related := doc.Table(f.Relationship.RelatedTable)
		if related == nil {
			return fmt.Errorf("%w: table %q field %q relates to unknown table %q",
				ErrUnknownTableReference, t.Name, f.Name, f.Relationship.RelatedTable)
		}
		if f.Relationship.Type == RelationSelfReference && related != t {
			return fmt.Errorf("%w: table %q field %q declares self-reference to a different table",
				ErrInvalidFieldConfig, t.Name, f.Name)
		}
		// A self many-to-many would synthesize a junction with two
		// identical columns; the document has to model it as two tables.
		if f.Relationship.Type == RelationManyToMany && related == t {
			return fmt.Errorf("%w: table %q field %q declares a many-to-many relationship with itself",
				ErrInvalidFieldConfig, t.Name, f.Name)
		}
	case KindLookup:
		return validateThroughRelationship(doc, t, f.Name, f.Lookup.RelationshipField, f.Lookup.TargetField)
	case KindRollup:
		return validateThroughRelationship(doc, t, f.Name, f.Rollup.RelationshipField, f.Rollup.TargetField)
	case KindCount:
		return validateThroughRelationship(doc, t, f.Name, f.Count.RelationshipField, "")
	}
	return nil
}

// validateThroughRelationship checks that a lookup/rollup/count field's
// relationship edge and target field both exist.
func validateThroughRelationship(doc *Document, t *TableDef, fieldName, relField, targetField string) error {
	rel := t.Field(relField)
	if rel == nil || rel.Kind != KindRelationship {
		return fmt.Errorf("%w: table %q field %q requires relationship field %q",
			ErrUnknownFieldReference, t.Name, fieldName, relField)
	}
	if targetField == "" {
		return nil
	}
	related := doc.Table(rel.Relationship.RelatedTable)
	if related == nil {
		return fmt.Errorf("%w: table %q field %q relates to unknown table %q",
			ErrUnknownTableReference, t.Name, fieldName, rel.Relationship.RelatedTable)
	}
	if related.Field(targetField) == nil && !IsSystemField(targetField) {
		return fmt.Errorf("%w: table %q field %q targets unknown field %q on table %q",
			ErrUnknownFieldReference, t.Name, fieldName, targetField, related.Name)
	}
	return nil
}

func validatePrimaryKey(t *TableDef) error {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Fields) == 0 {
		return nil // implicit system id key
	}
	for _, ref := range t.PrimaryKey.Fields {
		f := t.Field(ref)
		if f == nil {
			return fmt.Errorf("%w: table %q primary key references unknown field %q", ErrInvalidConstraint, t.Name, ref)
		}
		if len(t.PrimaryKey.Fields) > 1 && !f.Required {
			return fmt.Errorf("%w: table %q composite primary key includes optional field %q", ErrInvalidConstraint, t.Name, f.Name)
		}
	}
	return nil
}

func validateUniqueConstraint(t *TableDef, uc UniqueConstraint) error {
	if len(uc.Fields) == 0 {
		return fmt.Errorf("%w: table %q unique constraint %q has no fields", ErrInvalidConstraint, t.Name, uc.Name)
	}
	for _, ref := range uc.Fields {
		if t.Field(ref) == nil {
			return fmt.Errorf("%w: table %q unique constraint %q references unknown field %q",
				ErrInvalidConstraint, t.Name, uc.Name, ref)
		}
	}
	return nil
}

func validateViews(doc *Document, t *TableDef) error {
	reciprocals := make(map[string]bool)
	for _, name := range doc.ReciprocalFields(t) {
		reciprocals[name] = true
	}

	viewIDs := make(map[string]bool, len(t.Views))
	viewNames := make(map[string]bool, len(t.Views))
	defaults := 0
	for _, v := range t.Views {
		if v.Name == "" {
			return fmt.Errorf("%w: table %q", ErrEmptyViewName, t.Name)
		}
		if viewIDs[v.ID] {
			return fmt.Errorf("%w: table %q view id %q declared twice", ErrDuplicateID, t.Name, v.ID)
		}
		viewIDs[v.ID] = true
		if viewNames[v.Name] {
			return fmt.Errorf("%w: table %q view %q declared twice", ErrDuplicateName, t.Name, v.Name)
		}
		viewNames[v.Name] = true
		if v.IsDefault {
			defaults++
		}
		if err := validateViewRefs(t, v, reciprocals); err != nil {
			return err
		}
	}
	if defaults > 1 {
		return fmt.Errorf("%w: table %q", ErrMultipleDefaultViews, t.Name)
	}
	return nil
}

// validateViewRefs checks a view's field references. Reciprocal fields
// from other tables are projectable but carry no column identity here, so
// they are legal in the field list only, not in sort, grouping, or filters.
func validateViewRefs(t *TableDef, v *ViewDef, reciprocals map[string]bool) error {
	knows := func(ref string) bool {
		return t.Field(ref) != nil || IsSystemField(ref)
	}
	for _, ref := range v.Fields {
		if !knows(ref) && !reciprocals[ref] {
			return fmt.Errorf("%w: table %q view %q shows unknown field %q", ErrUnknownFieldReference, t.Name, v.Name, ref)
		}
	}
	for _, s := range v.Sort {
		if !knows(s.Field) {
			return fmt.Errorf("%w: table %q view %q sorts by unknown field %q", ErrUnknownFieldReference, t.Name, v.Name, s.Field)
		}
	}
	if v.GroupBy != nil && !knows(v.GroupBy.Field) {
		return fmt.Errorf("%w: table %q view %q groups by unknown field %q", ErrUnknownFieldReference, t.Name, v.Name, v.GroupBy.Field)
	}
	if v.Filter != nil {
		if err := validateFilterRefs(t, v.Name, v.Filter); err != nil {
			return err
		}
	}
	return nil
}

func validateFilterRefs(t *TableDef, viewName string, n *FilterNode) error {
	if n.IsGroup() {
		if n.Operator != "and" && n.Operator != "or" {
			return fmt.Errorf("%w: table %q view %q filter group operator %q", ErrInvalidFieldConfig, t.Name, viewName, n.Operator)
		}
		for _, child := range n.Children {
			if err := validateFilterRefs(t, viewName, child); err != nil {
				return err
			}
		}
		return nil
	}
	if t.Field(n.Field) == nil && !IsSystemField(n.Field) {
		return fmt.Errorf("%w: table %q view %q filters on unknown field %q", ErrUnknownFieldReference, t.Name, viewName, n.Field)
	}
	return nil
}

func validatePermissionRefs(doc *Document, t *TableDef) error {
	p := t.Permissions
	if p == nil {
		return nil
	}
	if p.Inherit != "" && doc.Table(p.Inherit) == nil {
		return fmt.Errorf("%w: table %q inherits permissions from unknown table %q", ErrUnknownTableReference, t.Name, p.Inherit)
	}
	reciprocals := make(map[string]bool)
	for _, name := range doc.ReciprocalFields(t) {
		reciprocals[name] = true
	}
	for ref := range p.Fields {
		if t.Field(ref) == nil && !IsSystemField(ref) && !reciprocals[ref] {
			return fmt.Errorf("%w: table %q permissions override unknown field %q", ErrUnknownFieldReference, t.Name, ref)
		}
	}
	return nil
}

func validName(name, what string) error {
	if name == "" {
		return fmt.Errorf("%w: empty %s name", ErrInvalidName, what)
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: %s name %q exceeds %d characters", ErrInvalidName, what, name, maxIdentifierLength)
	}
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: %s name %q (want lowercase letters, digits, underscores, starting with a letter)", ErrInvalidName, what, name)
	}
	if reservedWords[name] {
		return fmt.Errorf("%w: %s name %q is a reserved word", ErrInvalidName, what, name)
	}
	return nil
}
