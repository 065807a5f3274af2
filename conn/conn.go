// Package conn defines the driver-agnostic connection, transaction,
// and prepared-statement contracts every driver/* package implements.
// Operations take a cx.Cx and return a cx.Outcome.
package conn

import (
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// IsolationLevel names a transaction isolation level. Drivers map an
// unsupported level up to the strictest supported level at or above
// the one requested, and report the level actually granted.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// PreparedStatement is a statement prepared once and executed with
// varying parameters.
type PreparedStatement interface {
	Query(c cx.Cx, params []sqlval.Value) cx.Outcome[[]sqlval.Row]
	Exec(c cx.Cx, params []sqlval.Value) cx.Outcome[int64]
	Close() error
}

// Tx is an in-flight transaction, obtained from Connection.Begin.
type Tx interface {
	Connection
	IsolationLevel() IsolationLevel
	Commit(c cx.Cx) cx.Outcome[struct{}]
	Rollback(c cx.Cx) cx.Outcome[struct{}]
	Savepoint(c cx.Cx, name string) cx.Outcome[struct{}]
	ReleaseSavepoint(c cx.Cx, name string) cx.Outcome[struct{}]
	RollbackToSavepoint(c cx.Cx, name string) cx.Outcome[struct{}]
}

// Connection is the operation set every driver provides.
// A Connection is single-threaded with respect to its own in-flight
// request: concurrent callers are serialised via an internal mutex
// that holds only across one request/response pair.
type Connection interface {
	Query(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[[]sqlval.Row]
	QueryOne(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[*sqlval.Row]
	Execute(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64]
	Insert(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64]
	Prepare(c cx.Cx, sql string) cx.Outcome[PreparedStatement]
	Begin(c cx.Cx, isolation IsolationLevel) cx.Outcome[Tx]
	Ping(c cx.Cx) cx.Outcome[struct{}]
	Close() error
}
