package ddl

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/schema"
	"github.com/sqlmodel/sqlmodel/schema/diff"
)

// sqliteGenerator renders SQLite DDL. The ALTER TABLE forms rendered
// directly are RENAME TO, ADD COLUMN, RENAME COLUMN and DROP COLUMN
// (3.35+); type, nullability and default changes, and primary-key,
// foreign-key and unique-constraint changes, have no in-place ALTER
// in SQLite and are emitted as a commented
// placeholder plus a Warning telling the caller a table-rebuild
// migration (CREATE new table, copy rows, DROP old, RENAME) is
// required.
type sqliteGenerator struct{}

func (sqliteGenerator) Dialect() query.Dialect { return query.SQLite }

func (g sqliteGenerator) Render(op diff.SchemaOperation) ([]string, *Warning) {
	d := query.SQLite
	table := quoteIdent(d, op.Table)

	switch op.Kind {
	case diff.CreateTable:
		return []string{renderSQLiteCreateTable(op.NewTable)}, nil

	case diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", table)}, nil

	case diff.RenameTable:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, quoteIdent(d, op.NewTableName))}, nil

	case diff.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnClause(d, op.Column))}, nil

	case diff.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, quoteIdent(d, op.ColumnName))}, nil

	case diff.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, quoteIdent(d, op.ColumnName), quoteIdent(d, op.NewColumnName))}, nil

	case diff.AlterColumnType, diff.AlterColumnNullable, diff.AlterColumnDefault,
		diff.AddPrimaryKey, diff.DropPrimaryKey, diff.AddForeignKey, diff.DropForeignKey,
		diff.AddUnique, diff.DropUnique:
		msg := fmt.Sprintf("sqlite: %s on %s has no in-place ALTER; requires a table-rebuild migration (CREATE new, copy rows, DROP old, RENAME)", op.Kind, op.Table)
		placeholder := fmt.Sprintf("-- TODO(sqlite rebuild): %s", msg)
		return []string{placeholder}, &Warning{Operation: op, Message: msg}

	case diff.CreateIndex:
		idx := op.Index
		kw := "INDEX"
		if idx.Unique {
			kw = "UNIQUE INDEX"
		}
		return []string{fmt.Sprintf("CREATE %s %s ON %s (%s)", kw, quoteIdent(d, idx.Name), table, quoteList(d, idx.Columns))}, nil

	case diff.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", quoteIdent(d, op.ConstraintName))}, nil

	default:
		return nil, &Warning{Operation: op, Message: fmt.Sprintf("sqlite: unsupported operation %s", op.Kind)}
	}
}

func renderSQLiteCreateTable(t schema.Table) string {
	d := query.SQLite
	var parts []string
	for _, col := range t.Columns {
		clause := columnClause(d, col)
		if col.AutoIncrement && col.PrimaryKey && len(t.PrimaryKey) == 1 {
			// SQLite auto-increments implicitly for a single-column
			// "INTEGER PRIMARY KEY"; declaring the PK inline here (rather
			// than as a separate table constraint below) is what triggers
			// that rowid-alias behaviour.
			clause = fmt.Sprintf("%s PRIMARY KEY AUTOINCREMENT", columnClause(d, withoutNotNull(col)))
		}
		parts = append(parts, "  "+clause)
	}
	hasInlinePK := false
	for _, col := range t.Columns {
		if col.AutoIncrement && col.PrimaryKey && len(t.PrimaryKey) == 1 {
			hasInlinePK = true
		}
	}
	if len(t.PrimaryKey) > 0 && !hasInlinePK {
		parts = append(parts, fmt.Sprintf("  PRIMARY KEY (%s)", quoteList(d, t.PrimaryKey)))
	}
	for _, u := range t.Uniques {
		parts = append(parts, fmt.Sprintf("  UNIQUE (%s)", quoteList(d, u.Columns)))
	}
	for _, fk := range t.ForeignKeys {
		parts = append(parts, fmt.Sprintf("  FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
			quoteIdent(d, fk.Column), quoteIdent(d, fk.RemoteTable), quoteIdent(d, fk.RemoteColumn),
			refAction(fk.OnDelete), refAction(fk.OnUpdate)))
	}
	for _, c := range t.Checks {
		parts = append(parts, fmt.Sprintf("  CHECK (%s)", c.Expression))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", quoteIdent(d, t.Name), strings.Join(parts, ",\n"))
}

// withoutNotNull clears the NOT NULL and DEFAULT clauses of the inline
// rowid primary-key column, so it renders as its name and type followed
// directly by "PRIMARY KEY AUTOINCREMENT". The column still never holds
// NULL: SQLite assigns a rowid when NULL is inserted into it.
func withoutNotNull(col schema.Column) schema.Column {
	col.Nullable = true
	col.Default = ""
	return col
}
