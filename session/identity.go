package session

import (
	"reflect"
	"sync"

	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Handle is the shared-ownership, lockable pointer to one persistent
// record instance stored in the identity map. First attach/load of a
// given PK wins; subsequent lookups return the same Handle, so
// mutation through either caller is visible through both.
type Handle struct {
	mu      sync.RWMutex
	typ     reflect.Type
	Record  model.Record
	deleted bool
}

// With locks the handle for the duration of fn, for reads.
func (h *Handle) With(fn func(model.Record)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn(h.Record)
}

// Mutate locks the handle for the duration of fn, for writes.
func (h *Handle) Mutate(fn func(model.Record)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.Record)
}

// Type returns the concrete Go type the handle's Record was
// registered under.
func (h *Handle) Type() reflect.Type { return h.typ }

type identityKey struct {
	typ reflect.Type
	pk  uint64
}

// IdentityMap maps (record type, PK-hash) to the unique in-memory
// Handle for that row. A weak-reference mode is not implemented
// natively (Go lacks first-class weak references usable across
// arbitrary heap types before the 1.24 weak package); callers needing
// one should periodically evict with a liveness predicate supplied
// externally.
type IdentityMap struct {
	mu    sync.RWMutex
	byKey map[identityKey]*Handle
}

func NewIdentityMap() *IdentityMap {
	return &IdentityMap{byKey: make(map[identityKey]*Handle)}
}

func pkHash(values []sqlval.Value) uint64 {
	h := uint64(14695981039346656037)
	for _, v := range values {
		h ^= v.Hash()
		h *= 1099511628211
	}
	return h
}

func recordType(rec model.Record) reflect.Type {
	t := reflect.TypeOf(rec)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// GetOrAttach returns the existing Handle for rec's (type, PK) if one
// is already tracked, or creates and stores one wrapping rec. The
// second return value is true when an existing handle was reused
// (rec is then NOT the live instance; callers should prefer the
// returned Handle's Record).
func (m *IdentityMap) GetOrAttach(rec model.Record) (*Handle, bool, error) {
	pk, err := rec.PrimaryKeyValues()
	if err != nil {
		return nil, false, err
	}
	key := identityKey{typ: recordType(rec), pk: pkHash(pk)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byKey[key]; ok {
		return existing, true, nil
	}
	h := &Handle{typ: key.typ, Record: rec}
	m.byKey[key] = h
	return h, false, nil
}

// Lookup returns the Handle for a known (type, PK), without creating
// one.
func (m *IdentityMap) Lookup(typ reflect.Type, pk []sqlval.Value) (*Handle, bool) {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	key := identityKey{typ: typ, pk: pkHash(pk)}
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.byKey[key]
	return h, ok
}

// Rekey moves a handle to a new PK-derived key, used after an INSERT
// assigns an auto-increment ID the record didn't have at Add time.
func (m *IdentityMap) Rekey(h *Handle, oldPK, newPK []sqlval.Value) {
	oldKey := identityKey{typ: h.typ, pk: pkHash(oldPK)}
	newKey := identityKey{typ: h.typ, pk: pkHash(newPK)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byKey[oldKey] == h {
		delete(m.byKey, oldKey)
	}
	m.byKey[newKey] = h
}

// Evict removes a handle from the map entirely (detached state).
func (m *IdentityMap) Evict(h *Handle, pk []sqlval.Value) {
	key := identityKey{typ: h.typ, pk: pkHash(pk)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byKey[key] == h {
		delete(m.byKey, key)
	}
}

// All returns every tracked handle, in no particular order; the flush
// path sorts the ops it derives from them, so map iteration order
// never leaks into statement order.
func (m *IdentityMap) All() []*Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Handle, 0, len(m.byKey))
	for _, h := range m.byKey {
		out = append(out, h)
	}
	return out
}

// Clear detaches every tracked record.
func (m *IdentityMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey = make(map[identityKey]*Handle)
}
