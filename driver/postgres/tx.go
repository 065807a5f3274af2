package postgres

import (
	"fmt"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
)

// Tx is a PostgreSQL transaction: the same *Conn, issuing BEGIN/COMMIT/
// ROLLBACK and SAVEPOINT statements as ordinary queries, since
// PostgreSQL has no dedicated wire messages for transaction control
// beyond the ReadyForQuery status byte this driver already tracks.
type Tx struct {
	*Conn
	isolation conn.IsolationLevel
	done      bool
}

// Begin issues BEGIN at the requested isolation level and returns a
// Tx wrapping this same connection; PostgreSQL transactions are
// connection-scoped, so the wire protocol itself needs nothing beyond
// the SQL statements this sends.
func (pc *Conn) Begin(c cx.Cx, isolation conn.IsolationLevel) cx.Outcome[conn.Tx] {
	sql := fmt.Sprintf("BEGIN TRANSACTION ISOLATION LEVEL %s", isolation.String())
	out := pc.Execute(c, sql, nil)
	switch out.State() {
	case cx.StateOk:
		return cx.Ok[conn.Tx](&Tx{Conn: pc, isolation: isolation})
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[conn.Tx](reason)
	default:
		err, _ := out.Error()
		return cx.Err[conn.Tx](err)
	}
}

func (t *Tx) IsolationLevel() conn.IsolationLevel { return t.isolation }

// Commit commits the transaction. If the server-reported transaction
// status is 'E' (the current statement errored, aborting the
// transaction), a COMMIT would itself fail server-side with "current
// transaction is aborted"; so this path issues ROLLBACK
// instead and reports a Transaction error, since the caller's intent
// (persist the work) cannot be honoured.
func (t *Tx) Commit(c cx.Cx) cx.Outcome[struct{}] {
	if t.done {
		return cx.Err[struct{}](dberr.New(dberr.KindTransaction, "postgres: transaction already closed"))
	}
	t.done = true
	if t.txStatus == 'E' {
		t.Execute(c, "ROLLBACK", nil)
		return cx.Err[struct{}](dberr.New(dberr.KindTransaction, "postgres: commit attempted on an aborted transaction; rolled back instead"))
	}
	out := t.Execute(c, "COMMIT", nil)
	return structOutcome(out)
}

func (t *Tx) Rollback(c cx.Cx) cx.Outcome[struct{}] {
	if t.done {
		return cx.Err[struct{}](dberr.New(dberr.KindTransaction, "postgres: transaction already closed"))
	}
	t.done = true
	out := t.Execute(c, "ROLLBACK", nil)
	return structOutcome(out)
}

func (t *Tx) Savepoint(c cx.Cx, name string) cx.Outcome[struct{}] {
	out := t.Execute(c, fmt.Sprintf("SAVEPOINT %s", quoteSavepoint(name)), nil)
	return structOutcome(out)
}

func (t *Tx) ReleaseSavepoint(c cx.Cx, name string) cx.Outcome[struct{}] {
	out := t.Execute(c, fmt.Sprintf("RELEASE SAVEPOINT %s", quoteSavepoint(name)), nil)
	return structOutcome(out)
}

func (t *Tx) RollbackToSavepoint(c cx.Cx, name string) cx.Outcome[struct{}] {
	out := t.Execute(c, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", quoteSavepoint(name)), nil)
	return structOutcome(out)
}

func quoteSavepoint(name string) string {
	return `"` + name + `"`
}

func structOutcome(out cx.Outcome[int64]) cx.Outcome[struct{}] {
	switch out.State() {
	case cx.StateOk:
		return cx.Ok(struct{}{})
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[struct{}](reason)
	default:
		err, _ := out.Error()
		return cx.Err[struct{}](err)
	}
}

var _ conn.Tx = (*Tx)(nil)
