package postgres

import (
	"fmt"
	"sync/atomic"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

var stmtCounter int64

// Stmt is a named PostgreSQL prepared statement: Parse is sent once at
// Prepare time, and each Query/Exec call runs Bind/Execute/Sync against
// that name instead of re-parsing the SQL text.
type Stmt struct {
	pc   *Conn
	name string
}

// Prepare sends a Parse message for a freshly-generated statement name
// and waits for ParseComplete.
func (pc *Conn) Prepare(c cx.Cx, sql string) cx.Outcome[conn.PreparedStatement] {
	if c.Cancelled() {
		return cx.Cancelled[conn.PreparedStatement](c.Err().Error())
	}
	name := fmt.Sprintf("stmt_%d", atomic.AddInt64(&stmtCounter, 1))

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if _, err := pc.netConn.Write(frontendParse(name, sql, nil)); err != nil {
		return cx.Err[conn.PreparedStatement](dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Parse", err))
	}
	if _, err := pc.netConn.Write(syncMessage()); err != nil {
		return cx.Err[conn.PreparedStatement](dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Sync", err))
	}

	var parseErr error
	for {
		msg, err := readBackendMessage(pc.r, pc.maxMsg)
		if err != nil {
			return cx.Err[conn.PreparedStatement](dberr.Wrap(dberr.KindProtocol, "postgres: read Parse response", err))
		}
		switch msg.tag {
		case backendParseComplete:
		case backendErrorResponse:
			fields := parseErrorFields(msg.body)
			parseErr = dberr.FromPostgresSQLSTATE(fields['C'], fields['M'])
		case backendReadyForQuery:
			if len(msg.body) > 0 {
				pc.txStatus = msg.body[0]
			}
			if parseErr != nil {
				return cx.Err[conn.PreparedStatement](parseErr)
			}
			return cx.Ok[conn.PreparedStatement](&Stmt{pc: pc, name: name})
		}
	}
}

func (s *Stmt) Query(c cx.Cx, params []sqlval.Value) cx.Outcome[[]sqlval.Row] {
	if c.Cancelled() {
		return cx.Cancelled[[]sqlval.Row](c.Err().Error())
	}
	s.pc.mu.Lock()
	res, err := s.pc.extendedQuery(s.name, false, "", params)
	s.pc.mu.Unlock()
	if err != nil {
		return cx.Err[[]sqlval.Row](err)
	}
	return cx.Ok(res.rows)
}

func (s *Stmt) Exec(c cx.Cx, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	s.pc.mu.Lock()
	res, err := s.pc.extendedQuery(s.name, false, "", params)
	s.pc.mu.Unlock()
	if err != nil {
		return cx.Err[int64](err)
	}
	return cx.Ok(res.rowsAffected)
}

// Close sends a Close(Statement) message, freeing the server-side
// parsed-statement slot.
func (s *Stmt) Close() error {
	s.pc.mu.Lock()
	defer s.pc.mu.Unlock()
	if _, err := s.pc.netConn.Write(frontendCloseStatement(s.name)); err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Close", err)
	}
	if _, err := s.pc.netConn.Write(syncMessage()); err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send Sync", err)
	}
	for {
		msg, err := readBackendMessage(s.pc.r, s.pc.maxMsg)
		if err != nil {
			return dberr.Wrap(dberr.KindProtocol, "postgres: read Close response", err)
		}
		if msg.tag == backendReadyForQuery {
			return nil
		}
	}
}

var _ conn.PreparedStatement = (*Stmt)(nil)
