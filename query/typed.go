package query

import (
	"fmt"
	"reflect"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Select[T] pairs a SelectQuery with a record type, giving it typed
// execution helpers: All, First, One, CountRows, ExistsRows. T is
// normally a pointer type implementing model.Record (e.g. *User).
type Select[T model.Record] struct {
	*SelectQuery
	dialect Dialect
}

// Filter conjoins a predicate with AND and returns s, so a typed
// execution helper can follow it in the same chain.
func (s *Select[T]) Filter(e Expr) *Select[T] {
	s.SelectQuery.Filter(e)
	return s
}

// From starts a typed query against the table a Record type is
// registered under.
func From[T model.Record](dialect Dialect, table string) *Select[T] {
	return &Select[T]{SelectQuery: NewSelect(table), dialect: dialect}
}

func newRecord[T any]() T {
	var zero T
	t := reflect.TypeOf(zero)
	if t != nil && t.Kind() == reflect.Ptr {
		v := reflect.New(t.Elem())
		return v.Interface().(T)
	}
	return zero
}

func decodeRows[T model.Record](rows []sqlval.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		rec := newRecord[T]()
		if err := rec.Deserialise(row); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// All executes the query and decodes every returned row into T.
func (s *Select[T]) All(c cx.Cx, connection conn.Connection) cx.Outcome[[]T] {
	sql, params, err := s.Build(s.dialect)
	if err != nil {
		return cx.Err[[]T](err)
	}
	outcome := connection.Query(c, sql, params)
	switch outcome.State() {
	case cx.StateOk:
		rows, _ := outcome.Value()
		decoded, err := decodeRows[T](rows)
		if err != nil {
			return cx.Err[[]T](err)
		}
		return cx.Ok(decoded)
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[[]T](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[[]T](info)
	default:
		e, _ := outcome.Error()
		return cx.Err[[]T](e)
	}
}

// First executes the query with an implicit LIMIT 1 (adding one only
// if the caller hasn't already set a limit) and returns the first row,
// or nil if there were none.
func (s *Select[T]) First(c cx.Cx, connection conn.Connection) cx.Outcome[T] {
	q := s
	if !s.hasLimit {
		cp := s.SelectQuery.clone()
		cp.Limit(1)
		q = &Select[T]{SelectQuery: cp, dialect: s.dialect}
	}
	sql, params, err := q.Build(q.dialect)
	if err != nil {
		return cx.Err[T](err)
	}
	outcome := connection.Query(c, sql, params)
	switch outcome.State() {
	case cx.StateOk:
		rows, _ := outcome.Value()
		var zero T
		if len(rows) == 0 {
			return cx.Ok(zero)
		}
		rec := newRecord[T]()
		if err := rec.Deserialise(rows[0]); err != nil {
			return cx.Err[T](err)
		}
		return cx.Ok(rec)
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[T](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[T](info)
	default:
		e, _ := outcome.Error()
		return cx.Err[T](e)
	}
}

// One executes the query without forcing LIMIT 1 (fetching up to 2
// rows when the caller hasn't set a limit, exactly enough to
// distinguish "more than one") and requires exactly one row.
func (s *Select[T]) One(c cx.Cx, connection conn.Connection) cx.Outcome[T] {
	q := s
	if !s.hasLimit {
		cp2 := s.SelectQuery.clone()
		cp2.Limit(2)
		q = &Select[T]{SelectQuery: cp2, dialect: s.dialect}
	}
	sql, params, err := q.Build(q.dialect)
	if err != nil {
		return cx.Err[T](err)
	}
	outcome := connection.Query(c, sql, params)
	switch outcome.State() {
	case cx.StateOk:
		rows, _ := outcome.Value()
		switch len(rows) {
		case 0:
			return cx.Err[T](dberr.New(dberr.KindCustom, "Expected one row, found none"))
		case 1:
			rec := newRecord[T]()
			if err := rec.Deserialise(rows[0]); err != nil {
				return cx.Err[T](err)
			}
			return cx.Ok(rec)
		default:
			return cx.Err[T](dberr.New(dberr.KindCustom, fmt.Sprintf("Expected one row, found %d", len(rows))))
		}
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[T](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[T](info)
	default:
		e, _ := outcome.Error()
		return cx.Err[T](e)
	}
}

// CountRows executes Count() and returns the scalar result.
func (s *Select[T]) CountRows(c cx.Cx, connection conn.Connection) cx.Outcome[int64] {
	countQ := s.SelectQuery.Count()
	sql, params, err := countQ.Build(s.dialect)
	if err != nil {
		return cx.Err[int64](err)
	}
	outcome := connection.QueryOne(c, sql, params)
	switch outcome.State() {
	case cx.StateOk:
		row, _ := outcome.Value()
		if row == nil {
			return cx.Ok(int64(0))
		}
		v, err := row.GetNamed("count")
		if err != nil {
			v, err = row.Get(0)
			if err != nil {
				return cx.Err[int64](err)
			}
		}
		n, _ := v.AsInt64()
		return cx.Ok(n)
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[int64](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[int64](info)
	default:
		e, _ := outcome.Error()
		return cx.Err[int64](e)
	}
}

// ExistsRows executes ExistsQuery() and returns the scalar result.
func (s *Select[T]) ExistsRows(c cx.Cx, connection conn.Connection) cx.Outcome[bool] {
	eq := s.SelectQuery.ExistsQuery()
	sql, params, err := eq.Build(s.dialect)
	if err != nil {
		return cx.Err[bool](err)
	}
	outcome := connection.QueryOne(c, sql, params)
	switch outcome.State() {
	case cx.StateOk:
		row, _ := outcome.Value()
		if row == nil {
			return cx.Ok(false)
		}
		v, err := row.Get(0)
		if err != nil {
			return cx.Err[bool](err)
		}
		b, _ := v.AsBool()
		return cx.Ok(b)
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[bool](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[bool](info)
	default:
		e, _ := outcome.Error()
		return cx.Err[bool](e)
	}
}
