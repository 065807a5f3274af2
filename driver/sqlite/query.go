package sqlite

import (
	"database/sql/driver"
	"io"

	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

type queryResult struct {
	rows         []sqlval.Row
	rowsAffected int64
	lastInsertID int64
}

func (sc *Conn) Query(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[[]sqlval.Row] {
	if c.Cancelled() {
		return cx.Cancelled[[]sqlval.Row](c.Err().Error())
	}
	res, err := sc.runQuery(c, sql, params)
	if err != nil {
		return cx.Err[[]sqlval.Row](err)
	}
	return cx.Ok(res.rows)
}

func (sc *Conn) QueryOne(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[*sqlval.Row] {
	out := sc.Query(c, sql, params)
	switch out.State() {
	case cx.StateOk:
		rows, _ := out.Value()
		if len(rows) == 0 {
			return cx.Ok[*sqlval.Row](nil)
		}
		row := rows[0]
		return cx.Ok(&row)
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[*sqlval.Row](reason)
	default:
		err, _ := out.Error()
		return cx.Err[*sqlval.Row](err)
	}
}

func (sc *Conn) Execute(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	res, err := sc.runExec(c, sql, params)
	if err != nil {
		return cx.Err[int64](err)
	}
	return cx.Ok(res.rowsAffected)
}

// Insert executes sql and returns sqlite3_last_insert_rowid(), the
// native mechanism behind an INTEGER PRIMARY KEY rowid-alias column.
func (sc *Conn) Insert(c cx.Cx, sql string, params []sqlval.Value) cx.Outcome[int64] {
	if c.Cancelled() {
		return cx.Cancelled[int64](c.Err().Error())
	}
	res, err := sc.runExec(c, sql, params)
	if err != nil {
		return cx.Err[int64](err)
	}
	return cx.Ok(res.lastInsertID)
}

// runQuery steps a row-returning statement through go-sqlite3's
// QueryContext. RETURNING statements go through here too, since their
// result arrives as ordinary rows.
func (sc *Conn) runQuery(c cx.Cx, sql string, params []sqlval.Value) (queryResult, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	args, err := encodeArgs(params)
	if err != nil {
		return queryResult{}, err
	}

	rows, err := sc.raw.QueryContext(c.Context(), sql, args)
	if err != nil {
		return queryResult{}, translateExecError(err)
	}
	result, decodeErr := decodeRows(rows)
	rows.Close()
	if decodeErr != nil {
		return queryResult{}, decodeErr
	}
	return result, nil
}

// runExec executes a statement through ExecContext so sqlite3_changes
// and sqlite3_last_insert_rowid reflect it; dispatching writes through
// the query path would step them without surfacing either counter.
func (sc *Conn) runExec(c cx.Cx, sql string, params []sqlval.Value) (queryResult, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	args, err := encodeArgs(params)
	if err != nil {
		return queryResult{}, err
	}

	res, err := sc.raw.ExecContext(c.Context(), sql, args)
	if err != nil {
		return queryResult{}, translateExecError(err)
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return queryResult{rowsAffected: affected, lastInsertID: lastID}, nil
}

func encodeArgs(params []sqlval.Value) ([]driver.NamedValue, error) {
	values := make([]driver.Value, len(params))
	for i, p := range params {
		dv, err := encodeParam(p)
		if err != nil {
			return nil, err
		}
		values[i] = dv
	}
	return namedValues(values), nil
}

func decodeRows(rows driver.Rows) (queryResult, error) {
	cols := rows.Columns()
	var declTypes []string
	if decl, ok := rows.(interface{ DeclTypes() []string }); ok {
		declTypes = decl.DeclTypes()
	}
	if declTypes == nil {
		declTypes = make([]string, len(cols))
	}

	var out []sqlval.Row
	dest := make([]driver.Value, len(cols))
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return queryResult{}, translateExecError(err)
		}
		values := make([]sqlval.Value, len(cols))
		for i, raw := range dest {
			v, err := decodeValue(declTypes[i], raw)
			if err != nil {
				return queryResult{}, dberr.Wrap(dberr.KindData, "sqlite: decode column", err)
			}
			values[i] = v
		}
		out = append(out, sqlval.NewRow(cols, values))
	}
	return queryResult{rows: out}, nil
}
