package schema

// FieldKind identifies one of the closed set of field kinds a schema
// document may declare. The vocabulary is versioned with the document
// format; unknown kinds are rejected by the field type registry.
type FieldKind string

// Text kinds.
const (
	KindSingleLineText FieldKind = "single-line-text"
	KindLongText       FieldKind = "long-text"
	KindRichText       FieldKind = "rich-text"
	KindEmail          FieldKind = "email"
	KindURL            FieldKind = "url"
	KindPhone          FieldKind = "phone"
	KindSlug           FieldKind = "slug"
	KindColor          FieldKind = "color"
	KindCountry        FieldKind = "country"
	KindTimezone       FieldKind = "timezone"
	KindLanguage       FieldKind = "language"
	KindBarcode        FieldKind = "barcode"
	KindQRCode         FieldKind = "qr-code"
	KindMACAddress     FieldKind = "mac-address"
)

// Numeric kinds.
const (
	KindInteger    FieldKind = "integer"
	KindDecimal    FieldKind = "decimal"
	KindFloat      FieldKind = "float"
	KindCurrency   FieldKind = "currency"
	KindPercent    FieldKind = "percent"
	KindRating     FieldKind = "rating"
	KindDuration   FieldKind = "duration"
	KindAutoNumber FieldKind = "auto-number"
	KindYear       FieldKind = "year"
)

// Temporal kinds.
const (
	KindDate        FieldKind = "date"
	KindDateTime    FieldKind = "datetime"
	KindTime        FieldKind = "time"
	KindCreatedTime FieldKind = "created-time"
	KindUpdatedTime FieldKind = "updated-time"
)

// Selection kinds.
const (
	KindSingleSelect FieldKind = "single-select"
	KindMultiSelect  FieldKind = "multi-select"
	KindCheckbox     FieldKind = "checkbox"
)

// Relationship kind. The relationship resolver decides the physical shape
// (FK column, unique FK, or junction table) from the relation type.
const (
	KindRelationship FieldKind = "relationship"
)

// Computed kinds. Formula fields compile to generated columns (or virtual
// projections when the formula is volatile); lookup, rollup, and count are
// resolved at query time and have no column identity of their own.
const (
	KindFormula FieldKind = "formula"
	KindLookup  FieldKind = "lookup"
	KindRollup  FieldKind = "rollup"
	KindCount   FieldKind = "count"
)

// Attachment kinds store file metadata; the bytes live in external storage.
const (
	KindAttachment FieldKind = "attachment"
	KindImage      FieldKind = "image"
	KindSignature  FieldKind = "signature"
)

// System and structured kinds.
const (
	KindJSON      FieldKind = "json"
	KindGeometry  FieldKind = "geometry"
	KindIPAddress FieldKind = "ip-address"
	KindUUID      FieldKind = "uuid"
	KindCreatedBy FieldKind = "created-by"
	KindUpdatedBy FieldKind = "updated-by"
)

// RelationType describes the cardinality of a relationship field.
type RelationType string

// Relationship cardinalities.
const (
	RelationManyToOne     RelationType = "many-to-one"
	RelationOneToOne      RelationType = "one-to-one"
	RelationManyToMany    RelationType = "many-to-many"
	RelationSelfReference RelationType = "self-reference"
)

// RefAction is a referential action for ON DELETE / ON UPDATE.
type RefAction string

// Referential actions.
const (
	ActionCascade  RefAction = "cascade"
	ActionRestrict RefAction = "restrict"
	ActionSetNull  RefAction = "set-null"
)

// SQL returns the PostgreSQL spelling of the action. An empty action
// defaults to RESTRICT, matching the engine default of NO ACTION in spirit.
func (a RefAction) SQL() string {
	switch a {
	case ActionCascade:
		return "CASCADE"
	case ActionSetNull:
		return "SET NULL"
	default:
		return "RESTRICT"
	}
}

// RollupFunc is one of the aggregations a rollup field may apply.
type RollupFunc string

// Rollup aggregations. Zero related rows yield NULL for all of these
// except COUNT-style aggregations, per SQL aggregate semantics.
const (
	RollupSum            RollupFunc = "sum"
	RollupAvg            RollupFunc = "avg"
	RollupMin            RollupFunc = "min"
	RollupMax            RollupFunc = "max"
	RollupCount          RollupFunc = "count"
	RollupConcatDistinct RollupFunc = "concat-distinct"
)
