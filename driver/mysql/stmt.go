package mysql

import (
	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Stmt is a server-side prepared statement obtained via COM_STMT_PREPARE.
// Unlike driver/postgres's named statements, MySQL identifies a prepared
// statement by a numeric id the server assigns at prepare time.
type Stmt struct {
	mc   *Conn
	info preparedInfo
}

// Prepare issues COM_STMT_PREPARE and keeps the returned statement id
// for subsequent COM_STMT_EXECUTE calls.
func (mc *Conn) Prepare(c cx.Cx, sql string) cx.Outcome[conn.PreparedStatement] {
	if c.Cancelled() {
		return cx.Cancelled[conn.PreparedStatement](c.Err().Error())
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	info, err := mc.prepareLocked(sql)
	if err != nil {
		return cx.Err[conn.PreparedStatement](err)
	}
	return cx.Ok[conn.PreparedStatement](&Stmt{mc: mc, info: info})
}

func (s *Stmt) Query(c cx.Cx, params []sqlval.Value) cx.Outcome[[]sqlval.Row] {
	if c.Cancelled() {
		return cx.Cancelled[[]sqlval.Row](c.Err().Error())
	}
	s.mc.mu.Lock()
	res, err := s.mc.executeStmtLocked(s.info, params)
	s.mc.mu.Unlock()
	if err != nil {
		return cx.Err[[]sqlval.Row](err)
	}
	return cx.Ok(res.rows)
}

func (s *Stmt) Exec(c cx.Cx, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	s.mc.mu.Lock()
	res, err := s.mc.executeStmtLocked(s.info, params)
	s.mc.mu.Unlock()
	if err != nil {
		return cx.Err[int64](err)
	}
	return cx.Ok(res.rowsAffected)
}

// Close issues COM_STMT_CLOSE, freeing the server-side statement handle.
func (s *Stmt) Close() error {
	s.mc.mu.Lock()
	defer s.mc.mu.Unlock()
	s.mc.closeStmtLocked(s.info.id)
	return nil
}

var _ conn.PreparedStatement = (*Stmt)(nil)
