package model

import "github.com/sqlmodel/sqlmodel/sqlval"

// Record is the contract a mapped Go type must satisfy. A type
// implementing Record is eligible for Register, Session attach/load,
// and the query builder's table resolution.
//
// Implementations are typically a small amount of per-type
// boilerplate; registry_test.go's fakeUser shows the pattern the rest
// of this module's tests follow.
type Record interface {
	// TableName is the table this record maps onto.
	TableName() string

	// Serialise produces (column, Value) pairs for every non-skipped
	// field, in FieldInfo declaration order.
	Serialise() ([]ColumnValue, error)

	// Deserialise populates the receiver from a decoded Row.
	Deserialise(row sqlval.Row) error

	// PrimaryKeyValues extracts the current value of each PRIMARY_KEY
	// column, in the same order as TableInfo.PrimaryKey.
	PrimaryKeyValues() ([]sqlval.Value, error)

	// IsNew reports whether the record has no assigned primary key yet
	// (transient) as opposed to having
	// been loaded from or already flushed to storage.
	IsNew() bool
}

// ColumnValue pairs a column name with its current Value, as produced
// by Record.Serialise and consumed by the query builder's insert/update
// statement construction.
type ColumnValue struct {
	Column string
	Value  sqlval.Value
}

// AutoIncrementReceiver is an optional capability a Record implements
// when its primary key is server-assigned. Session.Flush calls
// SetAutoIncrementID with the driver-reported last-insert-id right
// after a successful INSERT.
type AutoIncrementReceiver interface {
	SetAutoIncrementID(id sqlval.Value) error
}
