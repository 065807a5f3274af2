package schema

import (
	"strings"
	"testing"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/driver/sqlite"
	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

func liveDB(t *testing.T, ddl ...string) *sqlite.Conn {
	t.Helper()
	db, err := sqlite.Open(cx.Background(), conn.SQLiteConfig{Path: ":memory:", ForeignKeys: true}).Unwrap()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range ddl {
		if _, err := db.Execute(cx.Background(), stmt, nil).Unwrap(); err != nil {
			t.Fatalf("ddl: %v", err)
		}
	}
	return db
}

func TestIntrospectSQLiteHeroesChecks(t *testing.T) {
	db := liveDB(t, `CREATE TABLE heroes(
		id INT PRIMARY KEY,
		age INT NOT NULL,
		kind TEXT,
		CONSTRAINT age_non_negative CHECK(age >= 0),
		CHECK(age <= 150),
		CHECK(kind IN ('A,B','C'))
	)`)

	s, err := IntrospectSQLite(cx.Background(), db)
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	heroes, ok := s.TableByName("heroes")
	if !ok {
		t.Fatal("heroes table not found")
	}
	if len(heroes.Checks) != 3 {
		t.Fatalf("expected exactly 3 checks, got %d: %+v", len(heroes.Checks), heroes.Checks)
	}

	var named bool
	var all []string
	for _, c := range heroes.Checks {
		all = append(all, squash(c.Expression))
		if c.Name == "age_non_negative" && c.Expression == "age >= 0" {
			named = true
		}
		if strings.HasPrefix(strings.ToUpper(c.Expression), "CHECK") {
			t.Fatalf("expression retains CHECK keyword: %q", c.Expression)
		}
	}
	if !named {
		t.Fatalf("missing named check age_non_negative: %+v", heroes.Checks)
	}
	joined := strings.Join(all, "|")
	if !strings.Contains(joined, "age<=150") || !strings.Contains(joined, "kindin('a,b','c')") {
		t.Fatalf("missing expected expressions: %v", all)
	}
}

func TestIntrospectSQLiteColumnsAndPK(t *testing.T) {
	db := liveDB(t, `CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		age INT DEFAULT 21
	)`)

	s, err := IntrospectSQLite(cx.Background(), db)
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	users, _ := s.TableByName("users")
	if len(users.PrimaryKey) != 1 || users.PrimaryKey[0] != "id" {
		t.Fatalf("primary key = %v", users.PrimaryKey)
	}

	id, _ := users.ColumnByName("id")
	if !id.PrimaryKey || !id.AutoIncrement {
		t.Fatalf("id column flags: %+v", id)
	}
	email, _ := users.ColumnByName("email")
	if email.Nullable {
		t.Fatal("email must be NOT NULL")
	}
	age, _ := users.ColumnByName("age")
	if age.Default != "21" {
		t.Fatalf("age default = %q", age.Default)
	}
}

func TestIntrospectSQLiteForeignKeys(t *testing.T) {
	db := liveDB(t,
		"CREATE TABLE authors (id INTEGER PRIMARY KEY)",
		`CREATE TABLE books (
			id INTEGER PRIMARY KEY,
			author_id INTEGER REFERENCES authors(id) ON DELETE CASCADE ON UPDATE SET NULL
		)`)

	s, err := IntrospectSQLite(cx.Background(), db)
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	books, _ := s.TableByName("books")
	if len(books.ForeignKeys) != 1 {
		t.Fatalf("foreign keys: %+v", books.ForeignKeys)
	}
	fk := books.ForeignKeys[0]
	if fk.Column != "author_id" || fk.RemoteTable != "authors" || fk.RemoteColumn != "id" {
		t.Fatalf("fk shape: %+v", fk)
	}
	if fk.OnDelete != model.Cascade || fk.OnUpdate != model.SetNull {
		t.Fatalf("fk actions: %+v", fk)
	}
}

func TestIntrospectSQLiteIndexes(t *testing.T) {
	db := liveDB(t,
		"CREATE TABLE t (a TEXT, b TEXT)",
		"CREATE INDEX ix_t_a ON t (a)",
		"CREATE UNIQUE INDEX uq_t_b ON t (b)")

	s, err := IntrospectSQLite(cx.Background(), db)
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	tt, _ := s.TableByName("t")
	if len(tt.Indexes) != 1 || tt.Indexes[0].Name != "ix_t_a" {
		t.Fatalf("indexes: %+v", tt.Indexes)
	}
	if len(tt.Uniques) != 1 || tt.Uniques[0].Name != "uq_t_b" {
		t.Fatalf("uniques: %+v", tt.Uniques)
	}
}

func TestExpectedSchemaFromRegistry(t *testing.T) {
	reg := model.NewRegistry()
	info := model.TableInfo{
		Name:       "widgets",
		PrimaryKey: []string{"id"},
		Fields: []model.FieldInfo{
			{Name: "ID", Column: "id", PrimaryKey: true, AutoIncrement: true, Type: sqlval.SQLType{Kind: sqlval.SQLBigInt}},
			{Name: "Price", Column: "price", Precision: 10, Scale: 2, Type: sqlval.SQLType{Kind: sqlval.SQLDouble}},
			{Name: "Label", Column: "label", TypeOverride: "VARCHAR(80)", Type: sqlval.SQLType{Kind: sqlval.SQLText}, Unique: true},
			{Name: "Internal", Column: "internal", Skip: true, Type: sqlval.SQLType{Kind: sqlval.SQLText}},
		},
	}
	if err := reg.Register(&widgetRec{}, info); err != nil {
		t.Fatalf("register: %v", err)
	}

	s := Expected(reg)
	w, ok := s.TableByName("widgets")
	if !ok {
		t.Fatal("widgets missing from expected schema")
	}
	if len(w.Columns) != 3 {
		t.Fatalf("skipped field leaked into the schema: %+v", w.Columns)
	}
	price, _ := w.ColumnByName("price")
	if price.SQLType != "NUMERIC(10,2)" {
		t.Fatalf("precision/scale must override the declared type, got %q", price.SQLType)
	}
	label, _ := w.ColumnByName("label")
	if label.SQLType != "VARCHAR(80)" {
		t.Fatalf("explicit override must win, got %q", label.SQLType)
	}
	if len(w.Uniques) != 1 {
		t.Fatalf("unique constraint missing: %+v", w.Uniques)
	}
}

type widgetRec struct{}

func (widgetRec) TableName() string                          { return "widgets" }
func (widgetRec) Serialise() ([]model.ColumnValue, error)    { return nil, nil }
func (widgetRec) Deserialise(row sqlval.Row) error           { return nil }
func (widgetRec) PrimaryKeyValues() ([]sqlval.Value, error)  { return nil, nil }
func (widgetRec) IsNew() bool                                { return true }
