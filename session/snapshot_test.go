package session

import (
	"testing"

	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

type snapRec struct {
	id   int64
	name string
	age  int64
}

func (r *snapRec) TableName() string { return "people" }
func (r *snapRec) Serialise() ([]model.ColumnValue, error) {
	return []model.ColumnValue{
		{Column: "id", Value: sqlval.BigInt(r.id)},
		{Column: "name", Value: sqlval.Text(r.name)},
		{Column: "age", Value: sqlval.BigInt(r.age)},
	}, nil
}
func (r *snapRec) Deserialise(row sqlval.Row) error { return nil }
func (r *snapRec) PrimaryKeyValues() ([]sqlval.Value, error) {
	return []sqlval.Value{sqlval.BigInt(r.id)}, nil
}
func (r *snapRec) IsNew() bool { return r.id == 0 }

func trackedHandle(t *testing.T, tr *ChangeTracker, rec *snapRec) *Handle {
	t.Helper()
	h := &Handle{typ: recordType(rec), Record: rec}
	if err := tr.Track(h); err != nil {
		t.Fatalf("track: %v", err)
	}
	return h
}

func TestCleanAfterTrack(t *testing.T) {
	tr := NewChangeTracker()
	h := trackedHandle(t, tr, &snapRec{id: 1, name: "Alice", age: 30})

	dirty, err := tr.IsDirty(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dirty {
		t.Fatal("a freshly tracked record must be clean")
	}
}

func TestDirtyColumnsAreTheChangedSet(t *testing.T) {
	tr := NewChangeTracker()
	rec := &snapRec{id: 1, name: "Alice", age: 30}
	h := trackedHandle(t, tr, rec)

	rec.name = "Alicia"
	rec.age = 31

	cols, err := tr.DirtyColumns(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected exactly the 2 changed columns, got %v", cols)
	}
	seen := map[string]bool{}
	for _, c := range cols {
		seen[c] = true
	}
	if !seen["name"] || !seen["age"] || seen["id"] {
		t.Fatalf("wrong dirty set: %v", cols)
	}
}

func TestRetrackRefreshesSnapshot(t *testing.T) {
	tr := NewChangeTracker()
	rec := &snapRec{id: 1, name: "Alice"}
	h := trackedHandle(t, tr, rec)

	rec.name = "Bob"
	if err := tr.Track(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dirty, _ := tr.IsDirty(h)
	if dirty {
		t.Fatal("re-tracking must baseline the current state")
	}
}

func TestUntrackedHandleReportsEverythingDirty(t *testing.T) {
	tr := NewChangeTracker()
	rec := &snapRec{id: 1, name: "Alice", age: 30}
	h := &Handle{typ: recordType(rec), Record: rec}

	cols, err := tr.DirtyColumns(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("a never-tracked handle must report every column dirty, got %v", cols)
	}
}

func TestForgetDropsSnapshot(t *testing.T) {
	tr := NewChangeTracker()
	rec := &snapRec{id: 1, name: "Alice"}
	h := trackedHandle(t, tr, rec)
	tr.Forget(h)

	cols, _ := tr.DirtyColumns(h)
	if len(cols) == 0 {
		t.Fatal("after Forget the handle must look untracked again")
	}
}

func TestRevertDetection(t *testing.T) {
	tr := NewChangeTracker()
	rec := &snapRec{id: 1, name: "Alice"}
	h := trackedHandle(t, tr, rec)

	rec.name = "Bob"
	rec.name = "Alice" // reverted before flush
	dirty, _ := tr.IsDirty(h)
	if dirty {
		t.Fatal("a value changed and changed back must not count as dirty")
	}
}
