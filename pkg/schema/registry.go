package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnSpec is the physical resolution of a field kind: what column (if
// any) backs it, how inputs are normalized, and which CHECK predicate
// guards it. Resolution is deterministic and side effect free.
type ColumnSpec struct {
	// SQLType is the PostgreSQL column type. Empty for virtual fields.
	SQLType string

	// Nullable is false when the field is required.
	Nullable bool

	// DefaultSQL is the default-value SQL literal, empty when none.
	DefaultSQL string

	// CheckSQL is an optional CHECK predicate template; %s is replaced by
	// the quoted column reference.
	CheckSQL string

	// Normalize coerces raw input before storage (email lowercasing,
	// hex-color uppercasing, E.164 phone cleanup). Nil when the kind has
	// no normalization.
	Normalize func(string) string

	// Virtual fields are resolved at query time and have no stored column
	// (lookup, rollup, count, many-to-many relationships).
	Virtual bool

	// Generated marks formula fields backed by a generated column; the
	// compiler supplies the expression.
	Generated bool
}

type columnResolver func(*FieldDef) (ColumnSpec, error)

// registry maps every known field kind to its resolver. The set is closed;
// kinds absent here are invalid.
var registry = map[FieldKind]columnResolver{
	KindSingleLineText: resolveSingleLineText,
	KindLongText:       fixedType("TEXT"),
	KindRichText:       fixedType("TEXT"),
	KindEmail:          normalizedType("VARCHAR(320)", normalizeEmail),
	KindURL:            normalizedType("TEXT", strings.TrimSpace),
	KindPhone:          normalizedType("VARCHAR(32)", normalizePhone),
	KindSlug:           normalizedType("TEXT", normalizeSlug),
	KindColor:          resolveColor,
	KindCountry:        normalizedType("VARCHAR(2)", strings.ToUpper),
	KindTimezone:       fixedType("TEXT"),
	KindLanguage:       fixedType("VARCHAR(35)"),
	KindBarcode:        fixedType("TEXT"),
	KindQRCode:         fixedType("TEXT"),
	KindMACAddress:     normalizedType("MACADDR", strings.ToLower),

	KindInteger:    fixedType("BIGINT"),
	KindDecimal:    resolveDecimal,
	KindFloat:      fixedType("DOUBLE PRECISION"),
	KindCurrency:   fixedType("NUMERIC(19,4)"),
	KindPercent:    fixedType("DOUBLE PRECISION"),
	KindRating:     resolveRating,
	KindDuration:   fixedType("BIGINT"),
	KindAutoNumber: resolveAutoNumber,
	KindYear:       resolveYear,

	KindDate:        fixedType("DATE"),
	KindDateTime:    fixedType("TIMESTAMPTZ"),
	KindTime:        fixedType("TIME"),
	KindCreatedTime: stampedType("now()"),
	KindUpdatedTime: stampedType("now()"),

	KindSingleSelect: resolveSingleSelect,
	KindMultiSelect:  resolveMultiSelect,
	KindCheckbox:     resolveCheckbox,

	KindRelationship: resolveRelationship,

	KindFormula: resolveFormula,
	KindLookup:  virtualKind(requireLookup),
	KindRollup:  virtualKind(requireRollup),
	KindCount:   virtualKind(requireCount),

	KindAttachment: fixedType("JSONB"),
	KindImage:      fixedType("JSONB"),
	KindSignature:  fixedType("JSONB"),

	KindJSON:      fixedType("JSONB"),
	KindGeometry:  fixedType("POINT"),
	KindIPAddress: fixedType("INET"),
	KindUUID:      fixedType("UUID"),
	KindCreatedBy: fixedType("BIGINT"),
	KindUpdatedBy: fixedType("BIGINT"),
}

// ResolveColumn resolves a field definition to its column specification.
// Unknown kinds and invalid kind-specific parameters return an error
// wrapping ErrInvalidFieldConfig.
func ResolveColumn(f *FieldDef) (ColumnSpec, error) {
	resolver, ok := registry[f.Kind]
	if !ok {
		return ColumnSpec{}, fmt.Errorf("%w: field %q has unknown kind %q", ErrInvalidFieldConfig, f.Name, f.Kind)
	}
	spec, err := resolver(f)
	if err != nil {
		return ColumnSpec{}, err
	}
	spec.Nullable = !f.Required
	if f.Default != nil && spec.DefaultSQL == "" {
		lit, err := defaultLiteral(f, *f.Default)
		if err != nil {
			return ColumnSpec{}, err
		}
		spec.DefaultSQL = lit
	}
	return spec, nil
}

// KnownKind reports whether kind is in the registry.
func KnownKind(kind FieldKind) bool {
	_, ok := registry[kind]
	return ok
}

func fixedType(sqlType string) columnResolver {
	return func(*FieldDef) (ColumnSpec, error) {
		return ColumnSpec{SQLType: sqlType}, nil
	}
}

func normalizedType(sqlType string, normalize func(string) string) columnResolver {
	return func(*FieldDef) (ColumnSpec, error) {
		return ColumnSpec{SQLType: sqlType, Normalize: normalize}, nil
	}
}

func stampedType(defaultSQL string) columnResolver {
	return func(*FieldDef) (ColumnSpec, error) {
		return ColumnSpec{SQLType: "TIMESTAMPTZ", DefaultSQL: defaultSQL}, nil
	}
}

func virtualKind(check func(*FieldDef) error) columnResolver {
	return func(f *FieldDef) (ColumnSpec, error) {
		if err := check(f); err != nil {
			return ColumnSpec{}, err
		}
		return ColumnSpec{Virtual: true}, nil
	}
}

func resolveSingleLineText(f *FieldDef) (ColumnSpec, error) {
	if f.Text != nil && f.Text.MaxLength > 0 {
		return ColumnSpec{SQLType: fmt.Sprintf("VARCHAR(%d)", f.Text.MaxLength)}, nil
	}
	return ColumnSpec{SQLType: "TEXT"}, nil
}

func resolveColor(*FieldDef) (ColumnSpec, error) {
	return ColumnSpec{
		SQLType:   "VARCHAR(7)",
		CheckSQL:  `%s ~ '^#[0-9A-F]{6}$'`,
		Normalize: normalizeColor,
	}, nil
}

func resolveDecimal(f *FieldDef) (ColumnSpec, error) {
	if f.Numeric == nil || f.Numeric.Precision <= 0 {
		return ColumnSpec{}, fmt.Errorf("%w: decimal field %q requires precision", ErrInvalidFieldConfig, f.Name)
	}
	if f.Numeric.Scale < 0 || f.Numeric.Scale > f.Numeric.Precision {
		return ColumnSpec{}, fmt.Errorf("%w: decimal field %q scale %d out of range for precision %d",
			ErrInvalidFieldConfig, f.Name, f.Numeric.Scale, f.Numeric.Precision)
	}
	return ColumnSpec{SQLType: fmt.Sprintf("NUMERIC(%d,%d)", f.Numeric.Precision, f.Numeric.Scale)}, nil
}

func resolveRating(f *FieldDef) (ColumnSpec, error) {
	max := 5
	if f.Rating != nil && f.Rating.Max > 0 {
		max = f.Rating.Max
	}
	return ColumnSpec{
		SQLType:  "SMALLINT",
		CheckSQL: fmt.Sprintf("%%s BETWEEN 0 AND %d", max),
	}, nil
}

func resolveAutoNumber(*FieldDef) (ColumnSpec, error) {
	return ColumnSpec{SQLType: "BIGINT GENERATED BY DEFAULT AS IDENTITY"}, nil
}

func resolveYear(*FieldDef) (ColumnSpec, error) {
	return ColumnSpec{SQLType: "SMALLINT", CheckSQL: "%s BETWEEN 1 AND 9999"}, nil
}

func resolveSingleSelect(f *FieldDef) (ColumnSpec, error) {
	if f.Select == nil || len(f.Select.Options) == 0 {
		return ColumnSpec{}, fmt.Errorf("%w: single-select field %q requires at least one option", ErrInvalidFieldConfig, f.Name)
	}
	quoted := make([]string, len(f.Select.Options))
	for i, opt := range f.Select.Options {
		quoted[i] = "'" + strings.ReplaceAll(opt, "'", "''") + "'"
	}
	return ColumnSpec{
		SQLType:  "TEXT",
		CheckSQL: "%s IN (" + strings.Join(quoted, ", ") + ")",
	}, nil
}

func resolveMultiSelect(f *FieldDef) (ColumnSpec, error) {
	if f.Select == nil || len(f.Select.Options) == 0 {
		return ColumnSpec{}, fmt.Errorf("%w: multi-select field %q requires at least one option", ErrInvalidFieldConfig, f.Name)
	}
	return ColumnSpec{SQLType: "TEXT[]"}, nil
}

func resolveCheckbox(*FieldDef) (ColumnSpec, error) {
	return ColumnSpec{SQLType: "BOOLEAN", DefaultSQL: "false"}, nil
}

func resolveRelationship(f *FieldDef) (ColumnSpec, error) {
	r := f.Relationship
	if r == nil || r.RelatedTable == "" {
		return ColumnSpec{}, fmt.Errorf("%w: relationship field %q requires relatedTable", ErrInvalidFieldConfig, f.Name)
	}
	switch r.Type {
	case RelationManyToOne, RelationOneToOne, RelationSelfReference:
		return ColumnSpec{SQLType: "BIGINT"}, nil
	case RelationManyToMany:
		// Backed by a junction table, not a column.
		return ColumnSpec{Virtual: true}, nil
	default:
		return ColumnSpec{}, fmt.Errorf("%w: relationship field %q has unknown type %q", ErrInvalidFieldConfig, f.Name, r.Type)
	}
}

func resolveFormula(f *FieldDef) (ColumnSpec, error) {
	p := f.Formula
	if p == nil || strings.TrimSpace(p.Expression) == "" {
		return ColumnSpec{}, fmt.Errorf("%w: formula field %q requires an expression", ErrInvalidFieldConfig, f.Name)
	}
	var sqlType string
	switch p.ResultType {
	case "text":
		sqlType = "TEXT"
	case "number":
		sqlType = "NUMERIC"
	case "boolean":
		sqlType = "BOOLEAN"
	case "date":
		sqlType = "TIMESTAMPTZ"
	default:
		return ColumnSpec{}, fmt.Errorf("%w: formula field %q has unknown result type %q", ErrInvalidFieldConfig, f.Name, p.ResultType)
	}
	return ColumnSpec{SQLType: sqlType, Generated: true}, nil
}

func requireLookup(f *FieldDef) error {
	if f.Lookup == nil || f.Lookup.RelationshipField == "" || f.Lookup.TargetField == "" {
		return fmt.Errorf("%w: lookup field %q requires relationshipField and targetField", ErrInvalidFieldConfig, f.Name)
	}
	return nil
}

func requireRollup(f *FieldDef) error {
	r := f.Rollup
	if r == nil || r.RelationshipField == "" || r.TargetField == "" {
		return fmt.Errorf("%w: rollup field %q requires relationshipField and targetField", ErrInvalidFieldConfig, f.Name)
	}
	switch r.Func {
	case RollupSum, RollupAvg, RollupMin, RollupMax, RollupCount, RollupConcatDistinct:
		return nil
	default:
		return fmt.Errorf("%w: rollup field %q has unknown func %q", ErrInvalidFieldConfig, f.Name, r.Func)
	}
}

func requireCount(f *FieldDef) error {
	if f.Count == nil || f.Count.RelationshipField == "" {
		return fmt.Errorf("%w: count field %q requires relationshipField", ErrInvalidFieldConfig, f.Name)
	}
	return nil
}

// defaultLiteral renders a declared default as a SQL literal appropriate
// for the field's family.
func defaultLiteral(f *FieldDef, raw string) (string, error) {
	switch f.Kind {
	case KindInteger, KindDecimal, KindFloat, KindCurrency, KindPercent,
		KindRating, KindDuration, KindYear:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return "", fmt.Errorf("%w: field %q default %q is not numeric", ErrInvalidFieldConfig, f.Name, raw)
		}
		return raw, nil
	case KindCheckbox:
		if raw != "true" && raw != "false" {
			return "", fmt.Errorf("%w: field %q default %q is not boolean", ErrInvalidFieldConfig, f.Name, raw)
		}
		return raw, nil
	default:
		return "'" + strings.ReplaceAll(raw, "'", "''") + "'", nil
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeColor(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s != "" && !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	return s
}

// normalizePhone reduces input to E.164 shape: an optional leading plus
// followed by digits only.
func normalizePhone(s string) string {
	var sb strings.Builder
	for i, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		} else if r == '+' && i == 0 {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func normalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "-")
}
