package mysql

import (
	"fmt"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
)

// Tx is a MySQL transaction: the same *Conn, issuing SET TRANSACTION/
// START TRANSACTION and COMMIT/ROLLBACK/SAVEPOINT as ordinary
// statements, since MySQL has no dedicated wire messages for
// transaction control. Isolation level is a session property set
// immediately before the transaction it applies to.
type Tx struct {
	*Conn
	isolation conn.IsolationLevel
	done      bool
}

// Begin sets the session isolation level for the next transaction, then
// starts it, and returns a Tx wrapping this same connection.
func (mc *Conn) Begin(c cx.Cx, isolation conn.IsolationLevel) cx.Outcome[conn.Tx] {
	if c.Cancelled() {
		return cx.Cancelled[conn.Tx](c.Err().Error())
	}
	setOut := mc.Execute(c, fmt.Sprintf("SET TRANSACTION ISOLATION LEVEL %s", isolation.String()), nil)
	if setOut.State() != cx.StateOk {
		return txErrOutcome(setOut)
	}
	startOut := mc.Execute(c, "START TRANSACTION", nil)
	if startOut.State() != cx.StateOk {
		return txErrOutcome(startOut)
	}
	return cx.Ok[conn.Tx](&Tx{Conn: mc, isolation: isolation})
}

func txErrOutcome(out cx.Outcome[int64]) cx.Outcome[conn.Tx] {
	switch out.State() {
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[conn.Tx](reason)
	default:
		err, _ := out.Error()
		return cx.Err[conn.Tx](err)
	}
}

func (t *Tx) IsolationLevel() conn.IsolationLevel { return t.isolation }

func (t *Tx) Commit(c cx.Cx) cx.Outcome[struct{}] {
	if t.done {
		return cx.Err[struct{}](dberr.New(dberr.KindTransaction, "mysql: transaction already closed"))
	}
	t.done = true
	out := t.Execute(c, "COMMIT", nil)
	return structOutcome(out)
}

func (t *Tx) Rollback(c cx.Cx) cx.Outcome[struct{}] {
	if t.done {
		return cx.Err[struct{}](dberr.New(dberr.KindTransaction, "mysql: transaction already closed"))
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
	return "`" + name + "`"
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
