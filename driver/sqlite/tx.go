package sqlite

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
)

// Tx is a SQLite transaction: the same *Conn, driven by BEGIN/COMMIT/
// ROLLBACK and SAVEPOINT text commands; SQLite has no out-of-band
// transaction API beyond SQL itself.
//
// SQLite serialises writers at the database level, so every isolation
// level maps up to Serializable (the strictest supported level at or
// above the request), and IsolationLevel reports what was actually
// granted.
type Tx struct {
	*Conn
	done bool
}

func (sc *Conn) Begin(c cx.Cx, isolation conn.IsolationLevel) cx.Outcome[conn.Tx] {
	if c.Cancelled() {
		return cx.Cancelled[conn.Tx](c.Err().Error())
	}
	out := sc.Execute(c, "BEGIN", nil)
	switch out.State() {
	case cx.StateOk:
		return cx.Ok[conn.Tx](&Tx{Conn: sc})
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[conn.Tx](reason)
	default:
		err, _ := out.Error()
		return cx.Err[conn.Tx](err)
	}
}

func (t *Tx) IsolationLevel() conn.IsolationLevel { return conn.Serializable }

func (t *Tx) Commit(c cx.Cx) cx.Outcome[struct{}] {
	if t.done {
		return cx.Err[struct{}](dberr.New(dberr.KindTransaction, "sqlite: transaction already closed"))
	}
	t.done = true
	return dropCount(t.Execute(c, "COMMIT", nil))
}

func (t *Tx) Rollback(c cx.Cx) cx.Outcome[struct{}] {
	if t.done {
		return cx.Err[struct{}](dberr.New(dberr.KindTransaction, "sqlite: transaction already closed"))
	}
	t.done = true
	return dropCount(t.Execute(c, "ROLLBACK", nil))
}

func (t *Tx) Savepoint(c cx.Cx, name string) cx.Outcome[struct{}] {
	return dropCount(t.Execute(c, fmt.Sprintf("SAVEPOINT %s", quoteIdent(name)), nil))
}

func (t *Tx) ReleaseSavepoint(c cx.Cx, name string) cx.Outcome[struct{}] {
	return dropCount(t.Execute(c, fmt.Sprintf("RELEASE SAVEPOINT %s", quoteIdent(name)), nil))
}

func (t *Tx) RollbackToSavepoint(c cx.Cx, name string) cx.Outcome[struct{}] {
	return dropCount(t.Execute(c, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", quoteIdent(name)), nil))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func dropCount(out cx.Outcome[int64]) cx.Outcome[struct{}] {
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
