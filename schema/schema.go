// Package schema models the live structure of a database; tables,
// columns, foreign keys, indexes, unique and check constraints; and
// the "expected" structure derived from a model.Registry; a schema
// model precise enough to diff.
package schema

import "github.com/sqlmodel/sqlmodel/model"

// Column is one column of an introspected or expected table.
type Column struct {
	Name          string
	SQLType       string // dialect-native type string, e.g. "VARCHAR(255)", "integer", "TEXT"
	Nullable      bool
	Default       string // raw default expression, empty if none
	PrimaryKey    bool
	AutoIncrement bool
}

// ForeignKey describes one FK constraint on a table.
type ForeignKey struct {
	Name         string // optional; empty when the dialect doesn't name it distinctly
	Column       string
	RemoteTable  string
	RemoteColumn string
	OnDelete     model.ReferentialAction
	OnUpdate     model.ReferentialAction
}

// Index describes one index, unique or not. A unique single-column
// index produced implicitly by a UNIQUE column constraint is folded
// into Unique rather than duplicated here by the introspectors.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Unique describes one UNIQUE constraint (which may be multi-column),
// kept separate from Index because Postgres/MySQL represent unique
// constraints and unique indexes as materially different catalog
// objects even though they constrain the same thing.
type Unique struct {
	Name    string
	Columns []string
}

// Check describes one CHECK constraint. Expression is normalised to
// the inner predicate text (paren-balanced, identifiers de-quoted) so
// that introspected and expected checks compare equal when they mean
// the same thing syntactically.
type Check struct {
	Name       string
	Expression string
}

// Table is the full structural description of one table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
	Indexes     []Index
	Uniques     []Unique
	Checks      []Check
}

// ColumnByName returns a table's column by name, if present.
func (t Table) ColumnByName(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// DatabaseSchema is the full set of tables, either introspected from a
// live connection or expected from a model.Registry.
type DatabaseSchema struct {
	Tables []Table
}

// TableByName returns a schema's table by name, if present.
func (s DatabaseSchema) TableByName(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns every table name in the schema, in declaration
// order.
func (s DatabaseSchema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}
