package diff

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/require"

	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/schema"
)

// The fixture file keeps the actual/expected schema pair out of the
// test body; the decoder below is the only place the test suite
// parses a schema from text.
type fixtureFile struct {
	Actual   fixtureSchema               `toml:"actual"`
	Expected fixtureSchema               `toml:"expected"`
	Renames  map[string][]fixtureRename  `toml:"renames"`
}

type fixtureSchema struct {
	Tables []fixtureTable `toml:"tables"`
}

type fixtureTable struct {
	Name        string             `toml:"name"`
	PrimaryKey  []string           `toml:"primary_key"`
	Columns     []fixtureColumn    `toml:"columns"`
	ForeignKeys []fixtureFK        `toml:"foreign_keys"`
	Indexes     []fixtureIndex     `toml:"indexes"`
}

type fixtureColumn struct {
	Name          string `toml:"name"`
	Type          string `toml:"type"`
	Nullable      bool   `toml:"nullable"`
	Default       string `toml:"default"`
	PrimaryKey    bool   `toml:"primary_key"`
	AutoIncrement bool   `toml:"auto_increment"`
}

type fixtureFK struct {
	Column       string `toml:"column"`
	RemoteTable  string `toml:"remote_table"`
	RemoteColumn string `toml:"remote_column"`
	OnDelete     string `toml:"on_delete"`
	OnUpdate     string `toml:"on_update"`
}

type fixtureIndex struct {
	Name    string   `toml:"name"`
	Columns []string `toml:"columns"`
	Unique  bool     `toml:"unique"`
}

type fixtureRename struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

func fixtureAction(s string) model.ReferentialAction {
	switch s {
	case "RESTRICT":
		return model.Restrict
	case "CASCADE":
		return model.Cascade
	case "SET NULL":
		return model.SetNull
	case "SET DEFAULT":
		return model.SetDefault
	default:
		return model.NoAction
	}
}

func (f fixtureSchema) toSchema() schema.DatabaseSchema {
	var out schema.DatabaseSchema
	for _, ft := range f.Tables {
		t := schema.Table{Name: ft.Name, PrimaryKey: ft.PrimaryKey}
		for _, c := range ft.Columns {
			t.Columns = append(t.Columns, schema.Column{
				Name:          c.Name,
				SQLType:       c.Type,
				Nullable:      c.Nullable,
				Default:       c.Default,
				PrimaryKey:    c.PrimaryKey,
				AutoIncrement: c.AutoIncrement,
			})
		}
		for _, fk := range ft.ForeignKeys {
			t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
				Column:       fk.Column,
				RemoteTable:  fk.RemoteTable,
				RemoteColumn: fk.RemoteColumn,
				OnDelete:     fixtureAction(fk.OnDelete),
				OnUpdate:     fixtureAction(fk.OnUpdate),
			})
		}
		for _, ix := range ft.Indexes {
			if ix.Unique {
				t.Uniques = append(t.Uniques, schema.Unique{Name: ix.Name, Columns: ix.Columns})
			} else {
				t.Indexes = append(t.Indexes, schema.Index{Name: ix.Name, Columns: ix.Columns})
			}
		}
		out.Tables = append(out.Tables, t)
	}
	return out
}

func TestBlogFixtureDiff(t *testing.T) {
	var f fixtureFile
	_, err := toml.DecodeFile("testdata/blog.toml", &f)
	require.NoError(t, err)

	actual := f.Actual.toSchema()
	expected := f.Expected.toSchema()

	hints := RenameHints{ColumnRenames: map[string][]Rename{}}
	for table, renames := range f.Renames {
		for _, r := range renames {
			hints.ColumnRenames[table] = append(hints.ColumnRenames[table], Rename{From: r.From, To: r.To})
		}
	}

	ops := Diff(actual, expected, hints)

	byKind := map[Kind]int{}
	for _, op := range ops {
		byKind[op.Kind]++
	}
	require.Equal(t, 1, byKind[CreateTable], "comments table must be created")
	require.Equal(t, 1, byKind[DropTable], "legacy_metrics must be dropped")
	require.Equal(t, 1, byKind[RenameColumn], "fullname rename must come from the hint")
	require.Equal(t, 1, byKind[AddForeignKey])
	require.Equal(t, 1, byKind[CreateIndex])
	require.Zero(t, byKind[AddColumn], "the rename hint must suppress the drop+add pair")
	require.Zero(t, byKind[DropColumn])

	got := apply(actual, ops)
	require.Equal(t, normalise(expected), normalise(got))
}
