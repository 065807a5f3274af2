package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/schema"
	"github.com/sqlmodel/sqlmodel/schema/diff"
)

func renderOne(t *testing.T, d query.Dialect, op diff.SchemaOperation) string {
	t.Helper()
	stmts, warn := NewGenerator(d).Render(op)
	require.Nil(t, warn)
	require.Len(t, stmts, 1)
	return stmts[0]
}

func TestPostgresAlterColumnSurface(t *testing.T) {
	typeOp := diff.SchemaOperation{Kind: diff.AlterColumnType, Table: "users", ColumnName: "age", Column: schema.Column{Name: "age", SQLType: "BIGINT"}}
	require.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" TYPE BIGINT`, renderOne(t, query.Postgres, typeOp))

	setNotNull := diff.SchemaOperation{Kind: diff.AlterColumnNullable, Table: "users", ColumnName: "age", Column: schema.Column{Name: "age", Nullable: false}}
	require.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" SET NOT NULL`, renderOne(t, query.Postgres, setNotNull))

	dropNotNull := diff.SchemaOperation{Kind: diff.AlterColumnNullable, Table: "users", ColumnName: "age", Column: schema.Column{Name: "age", Nullable: true}}
	require.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" DROP NOT NULL`, renderOne(t, query.Postgres, dropNotNull))

	setDefault := diff.SchemaOperation{Kind: diff.AlterColumnDefault, Table: "users", ColumnName: "age", Column: schema.Column{Name: "age", Default: "0"}}
	require.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" SET DEFAULT 0`, renderOne(t, query.Postgres, setDefault))

	dropDefault := diff.SchemaOperation{Kind: diff.AlterColumnDefault, Table: "users", ColumnName: "age", Column: schema.Column{Name: "age"}}
	require.Equal(t, `ALTER TABLE "users" ALTER COLUMN "age" DROP DEFAULT`, renderOne(t, query.Postgres, dropDefault))
}

func TestMySQLModifyColumn(t *testing.T) {
	op := diff.SchemaOperation{Kind: diff.AlterColumnType, Table: "users", ColumnName: "age", Column: schema.Column{Name: "age", SQLType: "BIGINT"}}
	got := renderOne(t, query.MySQL, op)
	require.Equal(t, "ALTER TABLE `users` MODIFY COLUMN `age` BIGINT NOT NULL", got)
}

func TestMySQLDropUniqueUsesDropIndex(t *testing.T) {
	op := diff.SchemaOperation{Kind: diff.DropUnique, Table: "users", ConstraintName: "uq_users_email"}
	got := renderOne(t, query.MySQL, op)
	require.Equal(t, "ALTER TABLE `users` DROP INDEX `uq_users_email`", got)
}

func TestForeignKeyRendersReferentialActions(t *testing.T) {
	op := diff.SchemaOperation{Kind: diff.AddForeignKey, Table: "posts", ForeignKey: schema.ForeignKey{
		Column: "author_id", RemoteTable: "users", RemoteColumn: "id",
		OnDelete: model.Cascade, OnUpdate: model.SetNull,
	}}
	got := renderOne(t, query.Postgres, op)
	require.Contains(t, got, "ON DELETE CASCADE")
	require.Contains(t, got, "ON UPDATE SET NULL")
	require.Contains(t, got, `ADD CONSTRAINT "fk_posts_author_id"`)
}

func TestSQLiteSupportedAlters(t *testing.T) {
	rename := diff.SchemaOperation{Kind: diff.RenameColumn, Table: "users", ColumnName: "fullname", NewColumnName: "display_name"}
	require.Equal(t, `ALTER TABLE "users" RENAME COLUMN "fullname" TO "display_name"`, renderOne(t, query.SQLite, rename))

	drop := diff.SchemaOperation{Kind: diff.DropColumn, Table: "users", ColumnName: "age"}
	require.Equal(t, `ALTER TABLE "users" DROP COLUMN "age"`, renderOne(t, query.SQLite, drop))
}

func TestSQLiteUnsupportedAlterWarns(t *testing.T) {
	op := diff.SchemaOperation{Kind: diff.AlterColumnType, Table: "users", ColumnName: "age", Column: schema.Column{Name: "age", SQLType: "BIGINT"}}
	stmts, warn := NewGenerator(query.SQLite).Render(op)
	require.NotNil(t, warn, "sqlite cannot alter a column type in place")
	require.Len(t, stmts, 1)
	require.True(t, strings.HasPrefix(stmts[0], "--"), "unsupported alter must degrade to a commented placeholder: %s", stmts[0])
	require.Contains(t, warn.Message, "table-rebuild")
}

func TestSQLiteCreateTableInlinesRowidPK(t *testing.T) {
	op := diff.SchemaOperation{Kind: diff.CreateTable, Table: "users", NewTable: schema.Table{
		Name:       "users",
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", SQLType: "INTEGER", PrimaryKey: true, AutoIncrement: true},
			{Name: "name", SQLType: "TEXT"},
		},
	}}
	got := renderOne(t, query.SQLite, op)
	require.Contains(t, got, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	require.NotContains(t, got, "PRIMARY KEY (", "inline rowid PK must suppress the table-level PK clause")
}

func TestPostgresCreateTableUsesIdentity(t *testing.T) {
	op := diff.SchemaOperation{Kind: diff.CreateTable, Table: "users", NewTable: schema.Table{
		Name:       "users",
		PrimaryKey: []string{"id"},
		Columns:    []schema.Column{{Name: "id", SQLType: "BIGINT", PrimaryKey: true, AutoIncrement: true}},
	}}
	got := renderOne(t, query.Postgres, op)
	require.Contains(t, got, "GENERATED ALWAYS AS IDENTITY")
	require.Contains(t, got, `PRIMARY KEY ("id")`)
}

func TestRenderAllCollectsWarnings(t *testing.T) {
	ops := []diff.SchemaOperation{
		{Kind: diff.AddColumn, Table: "users", Column: schema.Column{Name: "age", SQLType: "INTEGER", Nullable: true}},
		{Kind: diff.AddUnique, Table: "users", Unique: schema.Unique{Name: "uq", Columns: []string{"age"}}},
	}
	stmts, warnings := RenderAll(NewGenerator(query.SQLite), ops)
	require.Len(t, stmts, 2)
	require.Len(t, warnings, 1)
}

func TestSanitizeIdentifier(t *testing.T) {
	require.Equal(t, "users2", SanitizeIdentifier(`users2`))
	require.Equal(t, "usersx", SanitizeIdentifier(`users"x`))
	require.Equal(t, "my_table", SanitizeIdentifier("my_table; --"))
	require.Equal(t, "", SanitizeIdentifier(`--;()`))
}
