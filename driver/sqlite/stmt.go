package sqlite

import (
	"context"
	"database/sql/driver"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Stmt wraps a go-sqlite3 prepared statement (sqlite3_prepare_v2
// under the cgo binding). The statement handle is finalized by Close,
// which must precede the owning Conn's Close; go-sqlite3 enforces the
// same ordering internally.
type Stmt struct {
	sc   *Conn
	raw  driver.Stmt
	sql  string
}

type stmtQuerier interface {
	QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error)
}

type stmtExecer interface {
	ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error)
}

func (sc *Conn) Prepare(c cx.Cx, sql string) cx.Outcome[conn.PreparedStatement] {
	if c.Cancelled() {
		return cx.Cancelled[conn.PreparedStatement](c.Err().Error())
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	raw, err := sc.raw.Prepare(sql)
	if err != nil {
		return cx.Err[conn.PreparedStatement](translateExecError(err))
	}
	return cx.Ok[conn.PreparedStatement](&Stmt{sc: sc, raw: raw, sql: sql})
}

func (s *Stmt) Query(c cx.Cx, params []sqlval.Value) cx.Outcome[[]sqlval.Row] {
	if c.Cancelled() {
		return cx.Cancelled[[]sqlval.Row](c.Err().Error())
	}
	s.sc.mu.Lock()
	defer s.sc.mu.Unlock()

	args, err := encodeArgs(params)
	if err != nil {
		return cx.Err[[]sqlval.Row](err)
	}
	q, ok := s.raw.(stmtQuerier)
	if !ok {
		return cx.Err[[]sqlval.Row](dberr.New(dberr.KindProtocol, "sqlite: prepared statement does not support QueryContext"))
	}
	rows, err := q.QueryContext(c.Context(), args)
	if err != nil {
		return cx.Err[[]sqlval.Row](translateExecError(err))
	}
	result, decodeErr := decodeRows(rows)
	rows.Close()
	if decodeErr != nil {
		return cx.Err[[]sqlval.Row](decodeErr)
	}
	return cx.Ok(result.rows)
}

func (s *Stmt) Exec(c cx.Cx, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	s.sc.mu.Lock()
	defer s.sc.mu.Unlock()

	args, err := encodeArgs(params)
	if err != nil {
		return cx.Err[int64](err)
	}
	e, ok := s.raw.(stmtExecer)
	if !ok {
		return cx.Err[int64](dberr.New(dberr.KindProtocol, "sqlite: prepared statement does not support ExecContext"))
	}
	res, err := e.ExecContext(c.Context(), args)
	if err != nil {
		return cx.Err[int64](translateExecError(err))
	}
	affected, _ := res.RowsAffected()
	return cx.Ok(affected)
}

// Close finalizes the underlying statement handle. Consuming the
// handle here (rather than on Conn close) prevents a double-finalize.
func (s *Stmt) Close() error {
	s.sc.mu.Lock()
	defer s.sc.mu.Unlock()
	if s.raw == nil {
		return nil
	}
	err := s.raw.Close()
	s.raw = nil
	return err
}

var _ conn.PreparedStatement = (*Stmt)(nil)
