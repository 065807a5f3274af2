package model

import (
	"fmt"
	"reflect"
	"sync"
)

// TableInfo is the full static metadata for one mapped table: its
// field list, primary key, relationships, and (for joined-table
// inheritance) the parent table it extends.
type TableInfo struct {
	Name          string
	Fields        []FieldInfo
	PrimaryKey    []string // ordered column names
	Relationships []RelationshipInfo

	// Parent is the Go field name embedding the parent record, for
	// joined-table inheritance. Empty when this table has no parent.
	Parent string
}

// FieldByColumn returns the FieldInfo for a column name, if present.
func (t TableInfo) FieldByColumn(column string) (FieldInfo, bool) {
	for _, f := range t.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// Validate checks the cross-field invariants that require seeing the
// whole table at once.
func (t TableInfo) Validate() error {
	if len(t.PrimaryKey) == 0 {
		return fmt.Errorf("model: table %q: exactly one primary key is required, got none", t.Name)
	}

	seenColumns := make(map[string]bool, len(t.Fields))
	seenPK := make(map[string]bool, len(t.PrimaryKey))
	parentCount := 0

	for _, f := range t.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if f.Skip {
			continue
		}
		if seenColumns[f.Column] {
			return fmt.Errorf("model: table %q: column %q declared more than once", t.Name, f.Column)
		}
		seenColumns[f.Column] = true
		if f.PrimaryKey {
			seenPK[f.Column] = true
		}
		if f.ForeignKey != nil && f.ForeignKey.Table == "" {
			return fmt.Errorf("model: table %q: field %q has a foreign key with no target table", t.Name, f.Name)
		}
	}

	for _, pk := range t.PrimaryKey {
		if !seenPK[pk] {
			return fmt.Errorf("model: table %q: declared primary key column %q is not marked primary_key on any field", t.Name, pk)
		}
	}

	for _, rel := range t.Relationships {
		if rel.BackPopulates == "" {
			continue
		}
		// Existence of the remote field is checked by Registry.Validate,
		// which has visibility into every registered table.
		_ = rel
	}

	if t.Parent != "" {
		parentCount++
	}
	if parentCount > 1 {
		return fmt.Errorf("model: table %q: joined-table inheritance allows exactly one parent field", t.Name)
	}

	return nil
}

// Registry holds the TableInfo for every Record type registered with
// it, keyed by the record's reflect.Type. A Session resolves a record's
// metadata through a Registry at attach/load/flush time.
type Registry struct {
	mu     sync.RWMutex
	tables map[reflect.Type]TableInfo
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[reflect.Type]TableInfo)}
}

// Register validates and stores the TableInfo for the concrete type of
// rec. A second registration of the same type under a different table
// name is rejected; one under the same table name is a no-op that keeps
// the first TableInfo, without comparing the field lists.
func (r *Registry) Register(rec Record, info TableInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	t := reflect.TypeOf(rec)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[t]; ok {
		if existing.Name != info.Name {
			return fmt.Errorf("model: type %s already registered under table %q, cannot re-register as %q", t, existing.Name, info.Name)
		}
		return nil
	}
	r.tables[t] = info
	return nil
}

// Lookup returns the TableInfo registered for rec's concrete type.
func (r *Registry) Lookup(rec Record) (TableInfo, bool) {
	t := reflect.TypeOf(rec)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tables[t]
	return info, ok
}

// LookupType returns the TableInfo registered for a reflect.Type
// directly, used by the session's identity map when it only has a
// type, not an instance, in hand.
func (r *Registry) LookupType(t reflect.Type) (TableInfo, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tables[t]
	return info, ok
}

// TableInfoByName returns the TableInfo registered under a table
// name, used by the eager-load planner and the flush planner's
// foreign-key graph, both of which only have a table name in hand
// (from a FieldInfo.ForeignKey or RelationshipInfo.RelatedTable), not
// a Go type.
func (r *Registry) TableInfoByName(table string) (TableInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, info := range r.tables {
		if info.Name == table {
			return info, true
		}
	}
	return TableInfo{}, false
}

// AllTables returns every registered TableInfo, in no particular
// order. Used by the schema package to build the expected
// DatabaseSchema without needing a Go instance of every mapped type.
func (r *Registry) AllTables() []TableInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TableInfo, 0, len(r.tables))
	for _, info := range r.tables {
		out = append(out, info)
	}
	return out
}

// Validate re-checks every registered table, this time resolving
// cross-table invariants: every foreign key references a table that is
// itself registered, and every back_populates name refers to an
// existing field on the remote table's relationship list.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := make(map[string]TableInfo, len(r.tables))
	for _, info := range r.tables {
		byName[info.Name] = info
	}

	for _, info := range r.tables {
		for _, f := range info.Fields {
			if f.Skip || f.ForeignKey == nil {
				continue
			}
			if _, ok := byName[f.ForeignKey.Table]; !ok {
				return fmt.Errorf("model: table %q: field %q references unknown table %q", info.Name, f.Name, f.ForeignKey.Table)
			}
		}
		for _, rel := range info.Relationships {
			if rel.BackPopulates == "" {
				continue
			}
			remote, ok := byName[rel.RelatedTable]
			if !ok {
				return fmt.Errorf("model: table %q: relationship %q targets unknown table %q", info.Name, rel.Name, rel.RelatedTable)
			}
			found := false
			for _, rr := range remote.Relationships {
				if rr.Name == rel.BackPopulates {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("model: table %q: relationship %q back_populates %q, which does not exist on table %q", info.Name, rel.Name, rel.BackPopulates, remote.Name)
			}
		}
	}
	return nil
}
