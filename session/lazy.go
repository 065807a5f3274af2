package session

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Lazy is an explicit relationship handle: traversal before Load
// surfaces an error instead of issuing an implicit query. A Lazy is
// typically a field on a record type, populated by LoadRelated or
// LoadMany.
type Lazy struct {
	mu      sync.Mutex
	loaded  bool
	handles []*Handle
}

// IsLoaded reports whether Load has populated this handle.
func (l *Lazy) IsLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Handles returns the related handles, or an error if the
// relationship was never loaded.
func (l *Lazy) Handles() ([]*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return nil, dberr.New(dberr.KindCustom, "not loaded")
	}
	return l.handles, nil
}

func (l *Lazy) set(handles []*Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = true
	l.handles = handles
}

func findRelationship(info model.TableInfo, name string) (model.RelationshipInfo, bool) {
	for _, rel := range info.Relationships {
		if rel.Name == name {
			return rel, true
		}
	}
	return model.RelationshipInfo{}, false
}

func columnValue(rec model.Record, column string) (sqlval.Value, error) {
	cols, err := rec.Serialise()
	if err != nil {
		return sqlval.Value{}, err
	}
	for _, cv := range cols {
		if cv.Column == column {
			return cv.Value, nil
		}
	}
	return sqlval.Value{}, fmt.Errorf("session: record for table %q has no column %q", rec.TableName(), column)
}

// relatedQuery builds the select for one relationship, leaving the
// FK filter to the caller: a direct filter on RemoteColumn for
// One/Many relationships, or a join through the link table for M:N.
func relatedQuery[T model.Record](s *Session, rel model.RelationshipInfo) *query.Select[T] {
	q := query.From[T](s.dialect, rel.RelatedTable)
	if rel.Kind == model.ManyToMany && rel.Link != nil {
		on := query.TableColumn(rel.Link.Table, rel.Link.RemoteColumn).
			Eq(query.TableColumn(rel.RelatedTable, rel.RemoteColumn))
		q.JoinAs(query.JoinInner, rel.Link.Table, rel.Link.Table, on)
	}
	return q
}

// filterColumn is the column the FK predicate applies to: the link
// table's local column for M:N, the related table's remote column
// otherwise.
func filterColumn(rel model.RelationshipInfo) query.Expr {
	if rel.Kind == model.ManyToMany && rel.Link != nil {
		return query.TableColumn(rel.Link.Table, rel.Link.LocalColumn)
	}
	return query.TableColumn(rel.RelatedTable, rel.RemoteColumn)
}

// LoadRelated issues one query for one parent's relationship,
// attaches the results, populates into (when non-nil), and counts the
// call against the N+1 detector: repeated per-parent loads of the
// same relationship are exactly the access pattern LoadMany exists to
// replace, and crossing the threshold emits one N1Detected event.
func LoadRelated[T model.Record](s *Session, c cx.Cx, parent *Handle, relationship string, into *Lazy) cx.Outcome[[]*Handle] {
	info, ok := s.registry.LookupType(parent.Type())
	if !ok {
		return cx.Err[[]*Handle](fmt.Errorf("session: type %s is not registered", parent.Type()))
	}
	rel, ok := findRelationship(info, relationship)
	if !ok {
		return cx.Err[[]*Handle](fmt.Errorf("session: table %q has no relationship %q", info.Name, relationship))
	}

	var localVal sqlval.Value
	var serErr error
	parent.With(func(rec model.Record) {
		localVal, serErr = columnValue(rec, rel.LocalColumn)
	})
	if serErr != nil {
		return cx.Err[[]*Handle](serErr)
	}

	site := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		site = fmt.Sprintf("%s:%d", file, line)
	}
	if fire, count, _ := s.n1.Record(info.Name, relationship, site); fire {
		s.observer.N1Detected(info.Name, count)
	}

	q := relatedQuery[T](s, rel)
	q.Filter(filterColumn(rel).EqValue(localVal))

	out := Load(s, c, q)
	if handles, ok := out.Value(); ok && into != nil {
		into.set(handles)
	}
	return out
}

// LoadMany issues one query for one relationship across a whole batch
// of parent records, grouping the children back onto their parents by
// FK value. This is the batched alternative to calling LoadRelated in
// a loop.
func LoadMany[T model.Record](s *Session, c cx.Cx, parents []*Handle, relationship string) cx.Outcome[map[*Handle][]*Handle] {
	if len(parents) == 0 {
		return cx.Ok(map[*Handle][]*Handle{})
	}
	info, ok := s.registry.LookupType(parents[0].Type())
	if !ok {
		return cx.Err[map[*Handle][]*Handle](fmt.Errorf("session: type %s is not registered", parents[0].Type()))
	}
	rel, ok := findRelationship(info, relationship)
	if !ok {
		return cx.Err[map[*Handle][]*Handle](fmt.Errorf("session: table %q has no relationship %q", info.Name, relationship))
	}
	if rel.Kind == model.ManyToMany {
		// Grouping M:N children onto parents needs the link rows
		// themselves; batch loading is supported for the FK-backed
		// kinds only.
		return cx.Err[map[*Handle][]*Handle](fmt.Errorf("session: LoadMany does not support ManyToMany relationship %q", relationship))
	}

	parentByKey := make(map[string]*Handle, len(parents))
	values := make([]sqlval.Value, 0, len(parents))
	for _, p := range parents {
		var v sqlval.Value
		var err error
		p.With(func(rec model.Record) {
			v, err = columnValue(rec, rel.LocalColumn)
		})
		if err != nil {
			return cx.Err[map[*Handle][]*Handle](err)
		}
		if _, seen := parentByKey[v.String()]; !seen {
			values = append(values, v)
		}
		parentByKey[v.String()] = p
	}

	q := query.From[T](s.dialect, rel.RelatedTable)
	q.Filter(query.Column(rel.RemoteColumn).In(values...))

	out := Load(s, c, q)
	switch out.State() {
	case cx.StateOk:
		handles, _ := out.Value()
		grouped := make(map[*Handle][]*Handle, len(parents))
		for _, child := range handles {
			var key string
			var err error
			child.With(func(rec model.Record) {
				var v sqlval.Value
				v, err = columnValue(rec, rel.RemoteColumn)
				key = v.String()
			})
			if err != nil {
				return cx.Err[map[*Handle][]*Handle](err)
			}
			parent, ok := parentByKey[key]
			if !ok {
				continue
			}
			grouped[parent] = append(grouped[parent], child)
		}
		return cx.Ok(grouped)
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[map[*Handle][]*Handle](reason)
	case cx.StatePanicked:
		info, _ := out.PanicInfo()
		return cx.Panicked[map[*Handle][]*Handle](info)
	default:
		err, _ := out.Error()
		return cx.Err[map[*Handle][]*Handle](err)
	}
}
