// Package model defines the static metadata describing how a Go struct
// maps onto a table: fields, relationships, and the Record contract a
// mapped type must satisfy. Metadata is built once per type (via
// Register) and is immutable afterward.
package model

import (
	"fmt"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// ReferentialAction names the ON DELETE/ON UPDATE behaviour attached
// to a foreign key.
type ReferentialAction int

const (
	NoAction ReferentialAction = iota
	Restrict
	Cascade
	SetNull
	SetDefault
)

func (a ReferentialAction) String() string {
	switch a {
	case NoAction:
		return "NO ACTION"
	case Restrict:
		return "RESTRICT"
	case Cascade:
		return "CASCADE"
	case SetNull:
		return "SET NULL"
	case SetDefault:
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}

// ForeignKeyRef describes a field's reference to another table's column.
type ForeignKeyRef struct {
	Table      string
	Column     string
	OnDelete   ReferentialAction
	OnUpdate   ReferentialAction
}

// FieldInfo is the immutable, per-column metadata for one struct
// field.
type FieldInfo struct {
	Name          string // Go struct field name
	Column        string // database column name
	Type          sqlval.SQLType
	TypeOverride  string // dialect-opaque override string, empty if none
	Precision     int
	Scale         int
	Nullable      bool
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Default       string // default expression, empty if none
	ForeignKey    *ForeignKeyRef
	IndexName     string // empty if not indexed
	Skip          bool   // excluded from persistence entirely
}

// EffectiveSQLType resolves the type a column should actually be
// created/compared with: an explicit TypeOverride wins
// outright; otherwise a declared Precision overrides the inferred kind
// to DECIMAL(p,s); otherwise the declared semantic Type is used as-is.
func (f FieldInfo) EffectiveSQLType() sqlval.SQLType {
	if f.TypeOverride != "" {
		return sqlval.ParseOverride(f.TypeOverride)
	}
	if f.Precision > 0 {
		return sqlval.SQLType{Kind: sqlval.SQLDecimal, Precision: f.Precision, Scale: f.Scale}
	}
	return f.Type
}

// Validate enforces the per-field invariants that can be
// checked without the rest of the table's fields (skip-exclusivity and
// auto-increment-implies-PK). Cross-field invariants (exactly one PK,
// unique column names, FK target table named) are checked by
// TableInfo.Validate once the full field set is known; FK target
// existence and back_populates are checked by Registry.Validate.
func (f FieldInfo) Validate() error {
	if f.Skip && (f.Unique || f.ForeignKey != nil || f.IndexName != "") {
		return fmt.Errorf("model: field %q: skip is mutually exclusive with unique/foreign_key/index", f.Name)
	}
	if f.AutoIncrement && !f.PrimaryKey {
		return fmt.Errorf("model: field %q: auto_increment requires primary_key", f.Name)
	}
	return nil
}

// RelationshipKind names the cardinality of a RelationshipInfo.
type RelationshipKind int

const (
	OneToOne RelationshipKind = iota
	ManyToOne
	OneToMany
	ManyToMany
)

func (k RelationshipKind) String() string {
	switch k {
	case OneToOne:
		return "OneToOne"
	case ManyToOne:
		return "ManyToOne"
	case OneToMany:
		return "OneToMany"
	case ManyToMany:
		return "ManyToMany"
	default:
		return "Unknown"
	}
}

// LinkTable describes the join table used by a ManyToMany relationship.
type LinkTable struct {
	Table         string
	LocalColumn   string
	RemoteColumn  string
}

// RelationshipInfo describes one navigable relationship between two
// mapped records.
type RelationshipInfo struct {
	Name          string
	RelatedTable  string
	Kind          RelationshipKind
	LocalColumn   string
	RemoteColumn  string
	Link          *LinkTable // non-nil only for ManyToMany
	BackPopulates string     // name of the remote field, empty if one-directional
	Lazy          bool
	CascadeDelete bool
}
