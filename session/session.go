// Package session implements the Unit of Work: an identity-mapped,
// change-tracked in-memory record cache with ordered flush to the
// database. Records of heterogeneous types are held behind
// capability-bounded handles carrying (type, serialise hook,
// deserialise hook, PK extractor), keyed by (type, PK-hash) rather
// than inheritance.
package session

import (
	"fmt"
	"time"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/events"
	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// N1Threshold is the default lazy-load count that trips the N+1
// detector when a Session is built with NewSession's zero value for
// threshold.
const N1Threshold = 10

// Session is the Unit of Work: it tracks attached/added/deleted
// records, computes dirty columns by snapshot diff, plans a
// dependency-ordered flush, and executes it against one borrowed
// conn.Connection inside a transaction.
type Session struct {
	registry *model.Registry
	base     conn.Connection
	tx       conn.Tx
	dialect  query.Dialect
	observer events.Observer

	identity *IdentityMap
	tracker  *ChangeTracker
	pending  *pendingSet
	n1       *N1Detector
}

// NewSession creates a Session bound to one connection. n1Threshold
// <= 0 uses N1Threshold; observer == nil uses events.NopObserver{}.
func NewSession(registry *model.Registry, connection conn.Connection, dialect query.Dialect, observer events.Observer, n1Threshold int) *Session {
	if observer == nil {
		observer = events.NopObserver{}
	}
	if n1Threshold <= 0 {
		n1Threshold = N1Threshold
	}
	return &Session{
		registry: registry,
		base:     connection,
		dialect:  dialect,
		observer: observer,
		identity: NewIdentityMap(),
		tracker:  NewChangeTracker(),
		pending:  newPendingSet(),
		n1:       NewN1Detector(n1Threshold),
	}
}

// Connection returns the active transaction if one is in flight,
// otherwise the Session's base connection; the target every query
// issued through this Session should run against.
func (s *Session) Connection() conn.Connection {
	if s.tx != nil {
		return s.tx
	}
	return s.base
}

// Registry returns the metadata registry this Session resolves table
// names and field lists from.
func (s *Session) Registry() *model.Registry { return s.registry }

// N1Detector exposes the lazy-load counter so relationship-loading
// code elsewhere in the module can report call sites and have the
// Session emit events.Observer.N1Detected on threshold crossing.
func (s *Session) N1Detector() *N1Detector { return s.n1 }

// Attach brings an already-persisted record under identity-map
// tracking. Re-attaching the same (type, PK) returns the
// existing Handle; callers should prefer its Record over the one they
// passed in when the bool return is true.
func (s *Session) Attach(rec model.Record) (*Handle, bool, error) {
	h, existed, err := s.identity.GetOrAttach(rec)
	if err != nil {
		return nil, false, err
	}
	if err := s.tracker.Track(h); err != nil {
		return nil, false, err
	}
	return h, existed, nil
}

// Add schedules a new, not-yet-persisted record for insertion on the
// next Flush. A new record is never identity-mapped
// until after it has a real primary key (see Flush), so Add does not
// consult the identity map.
func (s *Session) Add(rec model.Record) (*Handle, error) {
	info, ok := s.registry.Lookup(rec)
	if !ok {
		return nil, fmt.Errorf("session: %T is not registered", rec)
	}
	h := &Handle{typ: recordType(rec), Record: rec}
	s.pending.add(PendingOp{Kind: OpInsert, Handle: h, Table: info.Name})
	return h, nil
}

// Delete marks a tracked handle for deletion on the next Flush. The
// handle remains readable until the flush actually runs.
func (s *Session) Delete(h *Handle) error {
	var table string
	h.With(func(rec model.Record) {
		table = rec.TableName()
	})
	h.mu.Lock()
	h.deleted = true
	h.mu.Unlock()
	s.pending.add(PendingOp{Kind: OpDelete, Handle: h, Table: table})
	return nil
}

// Merge reconciles a detached record (e.g. one deserialised from a
// cache or an RPC payload) with whatever the identity map already
// holds for its (type, PK): a new record is scheduled for insertion
// exactly like Add; an existing one has its tracked handle's fields
// overwritten from rec's current serialisation and is scheduled for
// update on the next Flush.
func (s *Session) Merge(rec model.Record) (*Handle, error) {
	if rec.IsNew() {
		return s.Add(rec)
	}
	h, _, err := s.identity.GetOrAttach(rec)
	if err != nil {
		return nil, err
	}
	if h.Record != rec {
		cols, err := rec.Serialise()
		if err != nil {
			return nil, err
		}
		names := make([]string, len(cols))
		vals := make([]sqlval.Value, len(cols))
		for i, cv := range cols {
			names[i] = cv.Column
			vals[i] = cv.Value
		}
		row := sqlval.NewRow(names, vals)
		var derr error
		h.Mutate(func(existing model.Record) {
			derr = existing.Deserialise(row)
		})
		if derr != nil {
			return nil, derr
		}
	}
	if err := s.tracker.Track(h); err != nil {
		return nil, err
	}
	dirty, err := s.tracker.DirtyColumns(h)
	if err != nil {
		return nil, err
	}
	if len(dirty) > 0 {
		info, _ := s.registry.Lookup(rec)
		s.pending.add(PendingOp{Kind: OpUpdate, Handle: h, Table: info.Name, Columns: dirty})
	}
	return h, nil
}

// Load runs a typed select, attaches every row into the identity map,
// and returns the attached handles in row order. It is a package-level
// generic function (not a method) because Go methods cannot carry
// their own type parameters.
func Load[T model.Record](s *Session, c cx.Cx, q *query.Select[T]) cx.Outcome[[]*Handle] {
	outcome := q.All(c, s.Connection())
	switch outcome.State() {
	case cx.StateOk:
		rows, _ := outcome.Value()
		handles := make([]*Handle, 0, len(rows))
		for _, rec := range rows {
			h, _, err := s.Attach(rec)
			if err != nil {
				return cx.Err[[]*Handle](err)
			}
			handles = append(handles, h)
		}
		return cx.Ok(handles)
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[[]*Handle](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[[]*Handle](info)
	default:
		e, _ := outcome.Error()
		return cx.Err[[]*Handle](e)
	}
}

// pkExprAndValues builds `col1 = $1 AND col2 = $2 ...` over a handle's
// primary key columns, for the WHERE clause of its update/delete
// statement.
func pkExprAndValues(info model.TableInfo, pk []sqlval.Value) (query.Expr, error) {
	if len(info.PrimaryKey) != len(pk) {
		return query.Expr{}, fmt.Errorf("session: table %q has %d primary key columns, got %d values", info.Name, len(info.PrimaryKey), len(pk))
	}
	var e query.Expr
	for i, col := range info.PrimaryKey {
		cond := query.Column(col).EqValue(pk[i])
		if i == 0 {
			e = cond
		} else {
			e = e.And(cond)
		}
	}
	return e, nil
}

// Flush executes every pending op in dependency order inside a
// transaction (beginning one if none is active): inserts
// in FK order with cyclic-FK fix-up updates, then explicit updates and
// link ops, then deletes in reverse FK order. On any failure the
// transaction is rolled back and newly-inserted records are evicted
// from the identity map; on success every flushed handle's snapshot is
// refreshed and the pending set is cleared.
func (s *Session) Flush(c cx.Cx) cx.Outcome[struct{}] {
	if err := s.collectDirty(); err != nil {
		return cx.Err[struct{}](err)
	}
	ops := s.pending.all()
	s.observer.FlushStart(len(ops))
	start := time.Now()

	result := s.flush(c, ops)
	_, err := result.Unwrap()
	s.observer.FlushEnd(time.Since(start), err)
	return result
}

// collectDirty schedules an update for every identity-mapped handle
// whose serialisation drifted from its snapshot and that has no
// explicit pending op already, so plain field mutation between loads
// is flushed without a Merge call.
func (s *Session) collectDirty() error {
	for _, h := range s.identity.All() {
		if s.pending.has(h) {
			continue
		}
		h.mu.RLock()
		deleted := h.deleted
		h.mu.RUnlock()
		if deleted {
			continue
		}
		dirty, err := s.tracker.DirtyColumns(h)
		if err != nil {
			return err
		}
		if len(dirty) == 0 {
			continue
		}
		var table string
		h.With(func(rec model.Record) {
			table = rec.TableName()
		})
		s.pending.add(PendingOp{Kind: OpUpdate, Handle: h, Table: table, Columns: dirty})
	}
	return nil
}

func (s *Session) flush(c cx.Cx, ops []*PendingOp) cx.Outcome[struct{}] {
	if len(ops) == 0 {
		return cx.Ok(struct{}{})
	}

	steps, err := planFlush(s.registry, ops)
	if err != nil {
		return cx.Err[struct{}](err)
	}

	ownTx := s.tx == nil
	if ownTx {
		beginOutcome := s.base.Begin(c, conn.ReadCommitted)
		switch beginOutcome.State() {
		case cx.StateOk:
			tx, _ := beginOutcome.Value()
			s.tx = tx
			s.observer.TxBegin()
		case cx.StateCancelled:
			reason, _ := beginOutcome.Reason()
			return cx.Cancelled[struct{}](reason)
		case cx.StatePanicked:
			info, _ := beginOutcome.PanicInfo()
			return cx.Panicked[struct{}](info)
		default:
			e, _ := beginOutcome.Error()
			return cx.Err[struct{}](e)
		}
	}

	var inserted []*Handle
	if outcome := s.runSteps(c, steps, &inserted); !outcome.IsOk() {
		if ownTx {
			s.rollback(c)
			for _, h := range inserted {
				s.evictHandle(h)
			}
		}
		switch outcome.State() {
		case cx.StateCancelled:
			reason, _ := outcome.Reason()
			return cx.Cancelled[struct{}](reason)
		case cx.StatePanicked:
			info, _ := outcome.PanicInfo()
			return cx.Panicked[struct{}](info)
		default:
			e, _ := outcome.Error()
			return cx.Err[struct{}](e)
		}
	}

	if ownTx {
		commitOutcome := s.tx.Commit(c)
		s.tx = nil
		s.observer.TxCommit()
		switch commitOutcome.State() {
		case cx.StateOk:
		case cx.StateCancelled:
			reason, _ := commitOutcome.Reason()
			return cx.Cancelled[struct{}](reason)
		case cx.StatePanicked:
			info, _ := commitOutcome.PanicInfo()
			return cx.Panicked[struct{}](info)
		default:
			e, _ := commitOutcome.Error()
			return cx.Err[struct{}](e)
		}
	}

	s.pending.clear()
	return cx.Ok(struct{}{})
}

func (s *Session) rollback(c cx.Cx) {
	if s.tx == nil {
		return
	}
	s.tx.Rollback(c)
	s.observer.TxRollback()
	s.tx = nil
}

func (s *Session) evictHandle(h *Handle) {
	var pk []sqlval.Value
	h.With(func(rec model.Record) {
		pk, _ = rec.PrimaryKeyValues()
	})
	s.identity.Evict(h, pk)
	s.tracker.Forget(h)
}

// runSteps executes every planned step against the active connection,
// appending any freshly-inserted handle to *inserted so the caller can
// undo identity-map registration on rollback.
func (s *Session) runSteps(c cx.Cx, steps []PlannedStep, inserted *[]*Handle) cx.Outcome[struct{}] {
	for _, step := range steps {
		op := step.Op
		if op == nil {
			continue
		}
		switch op.Kind {
		case OpInsert:
			outcome := s.execInsert(c, op, step.DeferColumns)
			if !outcome.IsOk() {
				return outcome
			}
			if op.Handle != nil {
				*inserted = append(*inserted, op.Handle)
			}
		case OpUpdate:
			if outcome := s.execUpdate(c, op); !outcome.IsOk() {
				return outcome
			}
		case OpDelete:
			if outcome := s.execDelete(c, op); !outcome.IsOk() {
				return outcome
			}
		case OpLinkAdd:
			if outcome := s.execLinkAdd(c, op.Link); !outcome.IsOk() {
				return outcome
			}
		case OpLinkRemove:
			if outcome := s.execLinkRemove(c, op.Link); !outcome.IsOk() {
				return outcome
			}
		}
	}
	return cx.Ok(struct{}{})
}

func (s *Session) execInsert(c cx.Cx, op *PendingOp, deferColumns []string) cx.Outcome[struct{}] {
	info, ok := s.registry.TableInfoByName(op.Table)
	if !ok {
		return cx.Err[struct{}](fmt.Errorf("session: unknown table %q", op.Table))
	}

	deferSet := make(map[string]bool, len(deferColumns))
	for _, c := range deferColumns {
		deferSet[c] = true
	}

	var cols []string
	var vals []sqlval.Value
	var autoIncCol string
	op.Handle.With(func(rec model.Record) {
		cvs, err := rec.Serialise()
		if err != nil {
			return
		}
		for _, cv := range cvs {
			if deferSet[cv.Column] {
				cols = append(cols, cv.Column)
				vals = append(vals, sqlval.Null())
				continue
			}
			f, ok := info.FieldByColumn(cv.Column)
			if ok && f.AutoIncrement && cv.Value.IsNull() {
				autoIncCol = cv.Column
				continue
			}
			cols = append(cols, cv.Column)
			vals = append(vals, cv.Value)
		}
	})

	insertQ := query.NewInsert(info.Name, cols).Row(vals...)
	if autoIncCol != "" && s.dialect.SupportsReturning() {
		insertQ.Returning(autoIncCol)
	}
	sqlText, params, err := insertQ.Build(s.dialect)
	if err != nil {
		return cx.Err[struct{}](err)
	}

	s.observer.QueryStart(sqlText, valuesToAny(params))
	start := time.Now()

	var lastInsertID int64
	var returnedID sqlval.Value
	haveReturnedID := false

	if autoIncCol != "" && s.dialect.SupportsReturning() {
		outcome := s.Connection().QueryOne(c, sqlText, params)
		s.observer.QueryEnd(sqlText, time.Since(start), 1, nil)
		switch outcome.State() {
		case cx.StateOk:
			row, _ := outcome.Value()
			if row != nil {
				if v, err := row.GetNamed(autoIncCol); err == nil {
					returnedID = v
					haveReturnedID = true
				}
			}
		case cx.StateCancelled:
			reason, _ := outcome.Reason()
			return cx.Cancelled[struct{}](reason)
		case cx.StatePanicked:
			info, _ := outcome.PanicInfo()
			return cx.Panicked[struct{}](info)
		default:
			e, _ := outcome.Error()
			return cx.Err[struct{}](e)
		}
	} else {
		outcome := s.Connection().Insert(c, sqlText, params)
		switch outcome.State() {
		case cx.StateOk:
			id, _ := outcome.Value()
			lastInsertID = id
			s.observer.QueryEnd(sqlText, time.Since(start), 1, nil)
		case cx.StateCancelled:
			reason, _ := outcome.Reason()
			return cx.Cancelled[struct{}](reason)
		case cx.StatePanicked:
			info, _ := outcome.PanicInfo()
			return cx.Panicked[struct{}](info)
		default:
			e, _ := outcome.Error()
			s.observer.QueryEnd(sqlText, time.Since(start), 0, e)
			return cx.Err[struct{}](e)
		}
	}

	var oldPK []sqlval.Value
	op.Handle.With(func(rec model.Record) {
		oldPK, _ = rec.PrimaryKeyValues()
	})

	if autoIncCol != "" {
		var idValue sqlval.Value
		if haveReturnedID {
			idValue = returnedID
		} else {
			idValue = sqlval.BigInt(lastInsertID)
		}
		var setErr error
		op.Handle.Mutate(func(rec model.Record) {
			receiver, ok := rec.(model.AutoIncrementReceiver)
			if !ok {
				setErr = fmt.Errorf("session: table %q has an auto-increment column %q but %T does not implement AutoIncrementReceiver", info.Name, autoIncCol, rec)
				return
			}
			setErr = receiver.SetAutoIncrementID(idValue)
		})
		if setErr != nil {
			return cx.Err[struct{}](setErr)
		}
	}

	var newPK []sqlval.Value
	op.Handle.With(func(rec model.Record) {
		newPK, _ = rec.PrimaryKeyValues()
	})
	s.identity.Rekey(op.Handle, oldPK, newPK)
	if err := s.tracker.Track(op.Handle); err != nil {
		return cx.Err[struct{}](err)
	}
	return cx.Ok(struct{}{})
}

func (s *Session) execUpdate(c cx.Cx, op *PendingOp) cx.Outcome[struct{}] {
	info, ok := s.registry.TableInfoByName(op.Table)
	if !ok {
		return cx.Err[struct{}](fmt.Errorf("session: unknown table %q", op.Table))
	}
	if len(op.Columns) == 0 {
		return cx.Ok(struct{}{})
	}

	var pk []sqlval.Value
	colVals := make(map[string]sqlval.Value, len(op.Columns))
	op.Handle.With(func(rec model.Record) {
		pk, _ = rec.PrimaryKeyValues()
		cvs, err := rec.Serialise()
		if err != nil {
			return
		}
		for _, cv := range cvs {
			colVals[cv.Column] = cv.Value
		}
	})

	where, err := pkExprAndValues(info, pk)
	if err != nil {
		return cx.Err[struct{}](err)
	}

	updateQ := query.NewUpdate(info.Name).Filter(where)
	for _, col := range op.Columns {
		v, ok := colVals[col]
		if !ok {
			continue
		}
		updateQ.Set(col, v)
	}

	sqlText, params, err := updateQ.Build(s.dialect)
	if err != nil {
		return cx.Err[struct{}](err)
	}
	s.observer.QueryStart(sqlText, valuesToAny(params))
	start := time.Now()
	outcome := s.Connection().Execute(c, sqlText, params)
	switch outcome.State() {
	case cx.StateOk:
		n, _ := outcome.Value()
		s.observer.QueryEnd(sqlText, time.Since(start), n, nil)
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[struct{}](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[struct{}](info)
	default:
		e, _ := outcome.Error()
		s.observer.QueryEnd(sqlText, time.Since(start), 0, e)
		return cx.Err[struct{}](e)
	}

	if err := s.tracker.Track(op.Handle); err != nil {
		return cx.Err[struct{}](err)
	}
	return cx.Ok(struct{}{})
}

func (s *Session) execDelete(c cx.Cx, op *PendingOp) cx.Outcome[struct{}] {
	info, ok := s.registry.TableInfoByName(op.Table)
	if !ok {
		return cx.Err[struct{}](fmt.Errorf("session: unknown table %q", op.Table))
	}
	var pk []sqlval.Value
	op.Handle.With(func(rec model.Record) {
		pk, _ = rec.PrimaryKeyValues()
	})
	where, err := pkExprAndValues(info, pk)
	if err != nil {
		return cx.Err[struct{}](err)
	}
	sqlText, params, err := query.NewDelete(info.Name).Filter(where).Build(s.dialect)
	if err != nil {
		return cx.Err[struct{}](err)
	}
	s.observer.QueryStart(sqlText, valuesToAny(params))
	start := time.Now()
	outcome := s.Connection().Execute(c, sqlText, params)
	switch outcome.State() {
	case cx.StateOk:
		n, _ := outcome.Value()
		s.observer.QueryEnd(sqlText, time.Since(start), n, nil)
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[struct{}](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[struct{}](info)
	default:
		e, _ := outcome.Error()
		s.observer.QueryEnd(sqlText, time.Since(start), 0, e)
		return cx.Err[struct{}](e)
	}
	s.identity.Evict(op.Handle, pk)
	s.tracker.Forget(op.Handle)
	return cx.Ok(struct{}{})
}

func (s *Session) execLinkAdd(c cx.Cx, link *LinkOp) cx.Outcome[struct{}] {
	if link == nil {
		return cx.Ok(struct{}{})
	}
	insertQ := query.NewInsert(link.Table, []string{link.LocalColumn, link.RemoteColumn}).
		Row(sqlval.Text(link.LocalValue), sqlval.Text(link.RemoteValue))
	insertQ.OnConflictDoNothing(link.LocalColumn, link.RemoteColumn)
	sqlText, params, err := insertQ.Build(s.dialect)
	if err != nil {
		return cx.Err[struct{}](err)
	}
	outcome := s.Connection().Execute(c, sqlText, params)
	return dropRowCount(outcome)
}

func (s *Session) execLinkRemove(c cx.Cx, link *LinkOp) cx.Outcome[struct{}] {
	if link == nil {
		return cx.Ok(struct{}{})
	}
	where := query.Column(link.LocalColumn).EqValue(sqlval.Text(link.LocalValue)).
		And(query.Column(link.RemoteColumn).EqValue(sqlval.Text(link.RemoteValue)))
	sqlText, params, err := query.NewDelete(link.Table).Filter(where).Build(s.dialect)
	if err != nil {
		return cx.Err[struct{}](err)
	}
	outcome := s.Connection().Execute(c, sqlText, params)
	return dropRowCount(outcome)
}

func dropRowCount(outcome cx.Outcome[int64]) cx.Outcome[struct{}] {
	switch outcome.State() {
	case cx.StateOk:
		return cx.Ok(struct{}{})
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return cx.Cancelled[struct{}](reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return cx.Panicked[struct{}](info)
	default:
		e, _ := outcome.Error()
		return cx.Err[struct{}](e)
	}
}

func valuesToAny(params []sqlval.Value) []any {
	out := make([]any, len(params))
	for i, v := range params {
		out[i] = v.String()
	}
	return out
}

// LinkAdd schedules a ManyToMany link-table row insertion for the next
// Flush.
func (s *Session) LinkAdd(link LinkOp) {
	s.pending.add(PendingOp{Kind: OpLinkAdd, Link: &link})
}

// LinkRemove schedules a ManyToMany link-table row deletion for the
// next Flush.
func (s *Session) LinkRemove(link LinkOp) {
	s.pending.add(PendingOp{Kind: OpLinkRemove, Link: &link})
}

// Rollback discards every pending op and any in-flight transaction
// started by a failed or abandoned Flush. Tracked snapshots are left
// as captured, so
// persistent handles report dirty again on the next Flush only if
// their in-memory state still differs.
func (s *Session) Rollback(c cx.Cx) {
	s.pending.clear()
	s.rollback(c)
}
