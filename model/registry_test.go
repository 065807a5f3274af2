package model

import (
	"testing"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

type fakeUser struct {
	ID   int64
	Name string
}

func (u *fakeUser) TableName() string { return "users" }
func (u *fakeUser) Serialise() ([]ColumnValue, error) {
	return []ColumnValue{
		{Column: "id", Value: sqlval.BigInt(u.ID)},
		{Column: "name", Value: sqlval.Text(u.Name)},
	}, nil
}
func (u *fakeUser) Deserialise(row sqlval.Row) error { return nil }
func (u *fakeUser) PrimaryKeyValues() ([]sqlval.Value, error) {
	return []sqlval.Value{sqlval.BigInt(u.ID)}, nil
}
func (u *fakeUser) IsNew() bool { return u.ID == 0 }

func usersTable() TableInfo {
	return TableInfo{
		Name:       "users",
		PrimaryKey: []string{"id"},
		Fields: []FieldInfo{
			{Name: "ID", Column: "id", PrimaryKey: true, AutoIncrement: true, Type: sqlval.SQLType{Kind: sqlval.SQLBigInt}},
			{Name: "Name", Column: "name", Type: sqlval.SQLType{Kind: sqlval.SQLVarchar, Length: 255}},
		},
	}
}

func TestTableInfoValidateRequiresPrimaryKey(t *testing.T) {
	info := usersTable()
	info.PrimaryKey = nil
	if err := info.Validate(); err == nil {
		t.Fatal("expected an error for a table with no primary key")
	}
}

func TestTableInfoValidateRejectsDuplicateColumns(t *testing.T) {
	info := usersTable()
	info.Fields = append(info.Fields, FieldInfo{Name: "Name2", Column: "name", Type: sqlval.SQLType{Kind: sqlval.SQLText}})
	if err := info.Validate(); err == nil {
		t.Fatal("expected an error for a duplicated column name")
	}
}

func TestFieldInfoValidateAutoIncrementRequiresPrimaryKey(t *testing.T) {
	f := FieldInfo{Name: "X", Column: "x", AutoIncrement: true}
	if err := f.Validate(); err == nil {
		t.Fatal("expected an error for auto_increment without primary_key")
	}
}

func TestFieldInfoValidateSkipExclusivity(t *testing.T) {
	f := FieldInfo{Name: "X", Column: "x", Skip: true, Unique: true}
	if err := f.Validate(); err == nil {
		t.Fatal("expected an error for skip combined with unique")
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	u := &fakeUser{}
	if err := r.Register(u, usersTable()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, ok := r.Lookup(u)
	if !ok {
		t.Fatal("expected a registered TableInfo")
	}
	if info.Name != "users" {
		t.Fatalf("expected table name 'users', got %q", info.Name)
	}
}

func TestRegistryValidateRejectsUnknownForeignKeyTable(t *testing.T) {
	r := NewRegistry()
	info := usersTable()
	info.Fields = append(info.Fields, FieldInfo{
		Name:       "OrgID",
		Column:     "org_id",
		Type:       sqlval.SQLType{Kind: sqlval.SQLBigInt},
		ForeignKey: &ForeignKeyRef{Table: "organizations", Column: "id"},
	})
	if err := r.Register(&fakeUser{}, info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected an error for a foreign key referencing an unregistered table")
	}
}

func TestRegistryValidateRejectsDanglingBackPopulates(t *testing.T) {
	r := NewRegistry()
	info := usersTable()
	info.Relationships = []RelationshipInfo{
		{Name: "posts", RelatedTable: "posts", Kind: OneToMany, BackPopulates: "author"},
	}
	if err := r.Register(&fakeUser{}, info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Validate(); err == nil {
		t.Fatal("expected an error: relationship targets a table that isn't registered at all")
	}
}
