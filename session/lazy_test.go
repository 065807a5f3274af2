package session

import (
	"testing"

	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/events"
	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

type post struct {
	ID       int64
	AuthorID int64
	Title    string
}

func (p *post) TableName() string { return "posts" }
func (p *post) Serialise() ([]model.ColumnValue, error) {
	idVal := sqlval.Null()
	if p.ID != 0 {
		idVal = sqlval.BigInt(p.ID)
	}
	return []model.ColumnValue{
		{Column: "id", Value: idVal},
		{Column: "author_id", Value: sqlval.BigInt(p.AuthorID)},
		{Column: "title", Value: sqlval.Text(p.Title)},
	}, nil
}
func (p *post) Deserialise(row sqlval.Row) error {
	if v, err := row.GetNamed("id"); err == nil {
		p.ID, _ = v.AsInt64()
	}
	if v, err := row.GetNamed("author_id"); err == nil {
		p.AuthorID, _ = v.AsInt64()
	}
	if v, err := row.GetNamed("title"); err == nil {
		p.Title, _ = v.AsString()
	}
	return nil
}
func (p *post) PrimaryKeyValues() ([]sqlval.Value, error) {
	return []sqlval.Value{sqlval.BigInt(p.ID)}, nil
}
func (p *post) IsNew() bool { return p.ID == 0 }
func (p *post) SetAutoIncrementID(id sqlval.Value) error {
	p.ID, _ = id.AsInt64()
	return nil
}

func postsInfo() model.TableInfo {
	return model.TableInfo{
		Name:       "posts",
		PrimaryKey: []string{"id"},
		Fields: []model.FieldInfo{
			{Name: "ID", Column: "id", PrimaryKey: true, AutoIncrement: true, Type: sqlval.SQLType{Kind: sqlval.SQLBigInt}},
			{Name: "AuthorID", Column: "author_id", Type: sqlval.SQLType{Kind: sqlval.SQLBigInt},
				ForeignKey: &model.ForeignKeyRef{Table: "users", Column: "id"}},
			{Name: "Title", Column: "title", Type: sqlval.SQLType{Kind: sqlval.SQLVarchar, Length: 255}},
		},
	}
}

const postsDDL = "CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER REFERENCES users(id), title TEXT)"

func lazyFixture(t *testing.T) *Session {
	t.Helper()
	s, db := liveSession(t, usersDDL, postsDDL)
	seedUsers(t, db)

	info := usersInfo()
	info.Relationships = []model.RelationshipInfo{
		{Name: "posts", RelatedTable: "posts", Kind: model.OneToMany, LocalColumn: "id", RemoteColumn: "author_id", Lazy: true},
	}
	// Re-register under a fresh registry carrying the relationship.
	reg := model.NewRegistry()
	if err := reg.Register(&user{}, info); err != nil {
		t.Fatalf("register users: %v", err)
	}
	if err := reg.Register(&post{}, postsInfo()); err != nil {
		t.Fatalf("register posts: %v", err)
	}
	s.registry = reg

	seed := []string{
		"INSERT INTO posts (author_id, title) VALUES (1, 'a1')",
		"INSERT INTO posts (author_id, title) VALUES (1, 'a2')",
		"INSERT INTO posts (author_id, title) VALUES (2, 'b1')",
	}
	for _, stmt := range seed {
		if _, err := db.Execute(cx.Background(), stmt, nil).Unwrap(); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return s
}

func TestLazyUnloadedTraversalErrors(t *testing.T) {
	var l Lazy
	if l.IsLoaded() {
		t.Fatal("fresh Lazy must not report loaded")
	}
	if _, err := l.Handles(); err == nil || err.Error() != "Custom: not loaded" {
		t.Fatalf("expected the not-loaded error, got %v", err)
	}
}

func TestLoadRelatedPopulatesLazy(t *testing.T) {
	s := lazyFixture(t)

	parent, _, err := s.Attach(&user{ID: 1, Name: "Alice"})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	var l Lazy
	handles, err := LoadRelated[*post](s, cx.Background(), parent, "posts", &l).Unwrap()
	if err != nil {
		t.Fatalf("load related: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected Alice's 2 posts, got %d", len(handles))
	}
	if !l.IsLoaded() {
		t.Fatal("Lazy must report loaded after LoadRelated")
	}
	got, err := l.Handles()
	if err != nil || len(got) != 2 {
		t.Fatalf("Handles after load: %v, %d", err, len(got))
	}
}

func TestLoadRelatedUnknownRelationship(t *testing.T) {
	s := lazyFixture(t)
	parent, _, _ := s.Attach(&user{ID: 1, Name: "Alice"})
	if _, err := LoadRelated[*post](s, cx.Background(), parent, "nope", nil).Unwrap(); err == nil {
		t.Fatal("unknown relationship must error")
	}
}

type n1Recorder struct {
	events.NopObserver
	fired []string
}

func (r *n1Recorder) N1Detected(table string, count int) {
	r.fired = append(r.fired, table)
}

func TestLoadRelatedTripsN1Detector(t *testing.T) {
	s := lazyFixture(t)
	rec := &n1Recorder{}
	s.observer = rec
	s.n1 = NewN1Detector(3)

	parent, _, _ := s.Attach(&user{ID: 1, Name: "Alice"})
	for i := 0; i < 5; i++ {
		if _, err := LoadRelated[*post](s, cx.Background(), parent, "posts", nil).Unwrap(); err != nil {
			t.Fatalf("load related: %v", err)
		}
	}
	if len(rec.fired) != 1 {
		t.Fatalf("N1Detected must fire exactly once at the threshold, fired %d times", len(rec.fired))
	}
	if rec.fired[0] != "users" {
		t.Fatalf("event keyed by parent table, got %q", rec.fired[0])
	}
}

func TestLoadManyGroupsChildrenByParent(t *testing.T) {
	s := lazyFixture(t)
	c := cx.Background()

	alice, _, _ := s.Attach(&user{ID: 1, Name: "Alice"})
	bob, _, _ := s.Attach(&user{ID: 2, Name: "Bob"})

	grouped, err := LoadMany[*post](s, c, []*Handle{alice, bob}, "posts").Unwrap()
	if err != nil {
		t.Fatalf("load many: %v", err)
	}
	if len(grouped[alice]) != 2 {
		t.Fatalf("Alice should have 2 posts, got %d", len(grouped[alice]))
	}
	if len(grouped[bob]) != 1 {
		t.Fatalf("Bob should have 1 post, got %d", len(grouped[bob]))
	}

	// One batched query must not trip the per-parent N+1 counter.
	if fire, _, _ := s.n1.Record("users", "posts", "x"); fire {
		t.Fatal("a single probe after LoadMany should not be at threshold")
	}
}
