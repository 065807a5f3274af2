package ddl

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/schema"
	"github.com/sqlmodel/sqlmodel/schema/diff"
)

// mysqlGenerator renders MySQL DDL: MODIFY COLUMN for
// type/nullability changes, ADD CONSTRAINT for FKs/uniques, DROP
// FOREIGN KEY for FK removal, and DROP INDEX for unique removal.
type mysqlGenerator struct{}

func (mysqlGenerator) Dialect() query.Dialect { return query.MySQL }

func (g mysqlGenerator) Render(op diff.SchemaOperation) ([]string, *Warning) {
	d := query.MySQL
	table := quoteIdent(d, op.Table)

	switch op.Kind {
	case diff.CreateTable:
		return []string{renderMySQLCreateTable(op.NewTable)}, nil

	case diff.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", table)}, nil

	case diff.RenameTable:
		return []string{fmt.Sprintf("RENAME TABLE %s TO %s", table, quoteIdent(d, op.NewTableName))}, nil

	case diff.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnClause(d, op.Column))}, nil

	case diff.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, quoteIdent(d, op.ColumnName))}, nil

	case diff.AlterColumnType, diff.AlterColumnNullable, diff.AlterColumnDefault:
		// MySQL has no standalone "ALTER COLUMN TYPE"; MODIFY COLUMN
		// restates the full column definition, so type/nullable/default
		// changes all render the same way.
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, columnClause(d, op.Column))}, nil

	case diff.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, quoteIdent(d, op.ColumnName), quoteIdent(d, op.NewColumnName))}, nil

	case diff.AddPrimaryKey:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", table, quoteList(d, op.PrimaryKey))}, nil

	case diff.DropPrimaryKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", table)}, nil

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
		return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, quoteIdent(d, op.ConstraintName))}, nil

	case diff.AddUnique:
		u := op.Unique
		return []string{fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", table, quoteIdent(d, u.Name), quoteList(d, u.Columns))}, nil

	case diff.DropUnique:
		// A unique constraint is backed by an index of the same name in
		// MySQL's catalog; dropping the index removes the constraint.
		return []string{fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", table, quoteIdent(d, op.ConstraintName))}, nil

	case diff.CreateIndex:
		idx := op.Index
		kw := "INDEX"
		if idx.Unique {
			kw = "UNIQUE INDEX"
		}
		return []string{fmt.Sprintf("CREATE %s %s ON %s (%s)", kw, quoteIdent(d, idx.Name), table, quoteList(d, idx.Columns))}, nil

	case diff.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s ON %s", quoteIdent(d, op.ConstraintName), table)}, nil

	default:
		return nil, &Warning{Operation: op, Message: fmt.Sprintf("mysql: unsupported operation %s", op.Kind)}
	}
}

func renderMySQLCreateTable(t schema.Table) string {
	d := query.MySQL
	var parts []string
	for _, col := range t.Columns {
		parts = append(parts, "  "+columnClause(d, col))
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, fmt.Sprintf("  PRIMARY KEY (%s)", quoteList(d, t.PrimaryKey)))
	}
	for _, u := range t.Uniques {
		parts = append(parts, fmt.Sprintf("  UNIQUE KEY %s (%s)", quoteIdent(d, u.Name), quoteList(d, u.Columns)))
	}
	for _, fk := range t.ForeignKeys {
		name := fk.Name
		if name == "" {
			name = fmt.Sprintf("fk_%s_%s", t.Name, fk.Column)
		}
		parts = append(parts, fmt.Sprintf("  CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
			quoteIdent(d, name), quoteIdent(d, fk.Column), quoteIdent(d, fk.RemoteTable), quoteIdent(d, fk.RemoteColumn),
			refAction(fk.OnDelete), refAction(fk.OnUpdate)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", quoteIdent(d, t.Name), strings.Join(parts, ",\n"))
}
