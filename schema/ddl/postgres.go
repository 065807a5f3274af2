package ddl

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/schema"
	"github.com/sqlmodel/sqlmodel/schema/diff"
)

type postgresGenerator struct{}

func (postgresGenerator) Dialect() query.Dialect { return query.Postgres }

func (g postgresGenerator) Render(op diff.SchemaOperation) ([]string, *Warning) {
	d := query.Postgres
	table := quoteIdent(d, op.Table)

	switch op.Kind {
	case diff.CreateTable:
		return []string{renderPostgresCreateTable(op.NewTable)}, nil

	case diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", table)}, nil

	case diff.RenameTable:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, quoteIdent(d, op.NewTableName))}, nil

	case diff.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnClause(d, op.Column))}, nil

	case diff.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, quoteIdent(d, op.ColumnName))}, nil

	case diff.AlterColumnType:
		return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", table, quoteIdent(d, op.ColumnName), op.Column.SQLType)}, nil

	case diff.AlterColumnNullable:
		if op.Column.Nullable {
			return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, quoteIdent(d, op.ColumnName))}, nil
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, quoteIdent(d, op.ColumnName))}, nil

	case diff.AlterColumnDefault:
		if op.Column.Default == "" {
			return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, quoteIdent(d, op.ColumnName))}, nil
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, quoteIdent(d, op.ColumnName), op.Column.Default)}, nil

	case diff.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, quoteIdent(d, op.ColumnName), quoteIdent(d, op.NewColumnName))}, nil

	case diff.AddPrimaryKey:
		cols := quoteList(d, op.PrimaryKey)
		return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", table, cols)}, nil

	case diff.DropPrimaryKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, quoteIdent(d, op.Table+"_pkey"))}, nil

	case diff.AddForeignKey:
		fk := op.ForeignKey
		name := fk.Name
		if name == "" {
			name = fmt.Sprintf("fk_%s_%s", op.Table, fk.Column)
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
			table, quoteIdent(d, name), quoteIdent(d, fk.Column), quoteIdent(d, fk.RemoteTable), quoteIdent(d, fk.RemoteColumn),
			refAction(fk.OnDelete), refAction(fk.OnUpdate))
		return []string{stmt}, nil

	case diff.DropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, quoteIdent(d, op.ConstraintName))}, nil

	case diff.AddUnique:
		u := op.Unique
		return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", table, quoteIdent(d, u.Name), quoteList(d, u.Columns))}, nil

	case diff.DropUnique:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", table, quoteIdent(d, op.ConstraintName))}, nil

	case diff.CreateIndex:
		idx := op.Index
		return []string{fmt.Sprintf("CREATE INDEX %s ON %s (%s)", quoteIdent(d, idx.Name), table, quoteList(d, idx.Columns))}, nil

	case diff.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s", quoteIdent(d, op.ConstraintName))}, nil

	default:
		return nil, &Warning{Operation: op, Message: fmt.Sprintf("postgres: unsupported operation %s", op.Kind)}
	}
}

func renderPostgresCreateTable(t schema.Table) string {
	d := query.Postgres
	var parts []string
	for _, col := range t.Columns {
		clause := columnClause(d, col)
		if col.AutoIncrement {
			clause = fmt.Sprintf("%s GENERATED ALWAYS AS IDENTITY", clause)
		}
		parts = append(parts, "  "+clause)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("  PRIMARY KEY (%s)", quoteList(d, t.PrimaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", quoteIdent(d, t.Name), strings.Join(parts, ",\n"))
}

func quoteList(d query.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(d, n)
	}
	return strings.Join(quoted, ", ")
}
