package query

import (
	"strings"
	"testing"

	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

type eagerUser struct{}

func (eagerUser) TableName() string                         { return "users" }
func (eagerUser) Serialise() ([]model.ColumnValue, error)   { return nil, nil }
func (eagerUser) Deserialise(row sqlval.Row) error          { return nil }
func (eagerUser) PrimaryKeyValues() ([]sqlval.Value, error) { return nil, nil }
func (eagerUser) IsNew() bool                               { return true }

type eagerPost struct{}

func (eagerPost) TableName() string                         { return "posts" }
func (eagerPost) Serialise() ([]model.ColumnValue, error)   { return nil, nil }
func (eagerPost) Deserialise(row sqlval.Row) error          { return nil }
func (eagerPost) PrimaryKeyValues() ([]sqlval.Value, error) { return nil, nil }
func (eagerPost) IsNew() bool                               { return true }

type eagerTag struct{}

func (eagerTag) TableName() string                         { return "tags" }
func (eagerTag) Serialise() ([]model.ColumnValue, error)   { return nil, nil }
func (eagerTag) Deserialise(row sqlval.Row) error          { return nil }
func (eagerTag) PrimaryKeyValues() ([]sqlval.Value, error) { return nil, nil }
func (eagerTag) IsNew() bool                               { return true }

func eagerRegistry(t *testing.T) (*model.Registry, model.TableInfo) {
	t.Helper()
	reg := model.NewRegistry()

	users := model.TableInfo{
		Name:       "users",
		PrimaryKey: []string{"id"},
		Fields: []model.FieldInfo{
			{Name: "ID", Column: "id", PrimaryKey: true, Type: sqlval.SQLType{Kind: sqlval.SQLBigInt}},
			{Name: "Name", Column: "name", Type: sqlval.SQLType{Kind: sqlval.SQLVarchar, Length: 255}},
		},
		Relationships: []model.RelationshipInfo{
			{Name: "posts", RelatedTable: "posts", Kind: model.OneToMany, LocalColumn: "id", RemoteColumn: "author_id"},
			{Name: "tags", RelatedTable: "tags", Kind: model.ManyToMany, LocalColumn: "id", RemoteColumn: "id",
				Link: &model.LinkTable{Table: "user_tags", LocalColumn: "user_id", RemoteColumn: "tag_id"}},
		},
	}
	posts := model.TableInfo{
		Name:       "posts",
		PrimaryKey: []string{"id"},
		Fields: []model.FieldInfo{
			{Name: "ID", Column: "id", PrimaryKey: true, Type: sqlval.SQLType{Kind: sqlval.SQLBigInt}},
			{Name: "AuthorID", Column: "author_id", Type: sqlval.SQLType{Kind: sqlval.SQLBigInt}},
		},
	}
	tags := model.TableInfo{
		Name:       "tags",
		PrimaryKey: []string{"id"},
		Fields: []model.FieldInfo{
			{Name: "ID", Column: "id", PrimaryKey: true, Type: sqlval.SQLType{Kind: sqlval.SQLBigInt}},
		},
	}

	if err := reg.Register(eagerUser{}, users); err != nil {
		t.Fatalf("register users: %v", err)
	}
	if err := reg.Register(eagerPost{}, posts); err != nil {
		t.Fatalf("register posts: %v", err)
	}
	if err := reg.Register(eagerTag{}, tags); err != nil {
		t.Fatalf("register tags: %v", err)
	}
	return reg, users
}

func TestEagerLoadOneToManyAliasesColumns(t *testing.T) {
	reg, users := eagerRegistry(t)
	q := NewSelect("users")
	loader := NewEagerLoader(users, reg).Include("posts")
	if err := loader.Apply(q); err != nil {
		t.Fatalf("apply: %v", err)
	}
	sql, _ := mustBuild(t, q, Postgres)

	for _, alias := range []string{`"users__id"`, `"users__name"`, `"posts__id"`, `"posts__author_id"`} {
		if !strings.Contains(sql, alias) {
			t.Fatalf("missing alias %s in: %s", alias, sql)
		}
	}
	if !strings.Contains(sql, `LEFT JOIN "posts"`) {
		t.Fatalf("missing join: %s", sql)
	}
}

func TestEagerLoadManyToManyJoinsThroughLinkTable(t *testing.T) {
	reg, users := eagerRegistry(t)
	q := NewSelect("users")
	loader := NewEagerLoader(users, reg).Include("tags")
	if err := loader.Apply(q); err != nil {
		t.Fatalf("apply: %v", err)
	}
	sql, _ := mustBuild(t, q, Postgres)

	if !strings.Contains(sql, `LEFT JOIN "user_tags"`) || !strings.Contains(sql, `LEFT JOIN "tags"`) {
		t.Fatalf("m:n must join twice through the link table: %s", sql)
	}
	if strings.Index(sql, `"user_tags"`) > strings.Index(sql, `LEFT JOIN "tags"`) {
		t.Fatalf("link table join must precede the target join: %s", sql)
	}
}

func TestEagerLoadUnknownRelationship(t *testing.T) {
	reg, users := eagerRegistry(t)
	q := NewSelect("users")
	if err := NewEagerLoader(users, reg).Include("nope").Apply(q); err == nil {
		t.Fatal("unknown relationship must error")
	}
}
