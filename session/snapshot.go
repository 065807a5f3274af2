package session

import (
	"sync"

	"github.com/sqlmodel/sqlmodel/model"
)

// Snapshot is the record's serialised column map captured at
// load/attach time. Dirty columns are computed by comparing a fresh
// serialisation against this snapshot, not by per-field mark-dirty
// calls.
type Snapshot map[string]string // column -> Value.String(), comparable without exposing sqlval internals

func snapshotOf(rec model.Record) (Snapshot, error) {
	cols, err := rec.Serialise()
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(cols))
	for _, cv := range cols {
		snap[cv.Column] = cv.Value.String()
	}
	return snap, nil
}

// ChangeTracker maintains a Snapshot per tracked Handle and answers
// IsDirty / DirtyColumns by diffing the current serialisation against
// it.
type ChangeTracker struct {
	mu        sync.Mutex
	snapshots map[*Handle]Snapshot
}

func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{snapshots: make(map[*Handle]Snapshot)}
}

// Track captures a fresh snapshot for h, overwriting any prior one.
// Called on attach, on load, and after a successful flush.
func (t *ChangeTracker) Track(h *Handle) error {
	var snap Snapshot
	var err error
	h.With(func(rec model.Record) {
		snap, err = snapshotOf(rec)
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[h] = snap
	return nil
}

// Forget drops the snapshot for h (on detach/evict).
func (t *ChangeTracker) Forget(h *Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.snapshots, h)
}

// IsDirty reports whether h's current serialisation differs from its
// tracked snapshot.
func (t *ChangeTracker) IsDirty(h *Handle) (bool, error) {
	cols, err := t.DirtyColumns(h)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

// DirtyColumns returns the set of column names whose serialised value
// differs from the snapshot. A handle with no snapshot (never
// tracked) reports every column dirty.
func (t *ChangeTracker) DirtyColumns(h *Handle) ([]string, error) {
	var current Snapshot
	var err error
	h.With(func(rec model.Record) {
		current, err = snapshotOf(rec)
	})
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	snap, ok := t.snapshots[h]
	t.mu.Unlock()

	var dirty []string
	for col, val := range current {
		old, existed := snap[col]
		if !ok || !existed || old != val {
			dirty = append(dirty, col)
		}
	}
	return dirty, nil
}
