// Package ddl renders schema/diff's SchemaOperations to dialect-native
// DDL statements, one generator per dialect, driven by operations a
// diff produced rather than hand-authored table definitions.
package ddl

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/schema"
	"github.com/sqlmodel/sqlmodel/schema/diff"
)

// Warning is emitted when a dialect can't express an
// operation directly and the caller must fall back to a table-rebuild
// migration; SQLite's limited ALTER TABLE surface, mainly.
type Warning struct {
	Operation diff.SchemaOperation
	Message   string
}

// Generator renders one dialect's DDL for a SchemaOperation.
type Generator interface {
	Dialect() query.Dialect
	Render(op diff.SchemaOperation) (statements []string, warning *Warning)
}

// NewGenerator returns the Generator for a dialect.
func NewGenerator(d query.Dialect) Generator {
	switch d {
	case query.Postgres:
		return postgresGenerator{}
	case query.MySQL:
		return mysqlGenerator{}
	default:
		return sqliteGenerator{}
	}
}

// RenderAll renders every operation in order, collecting warnings
// instead of failing the whole batch; an unsupported SQLite alter
// degrades to a commented placeholder plus a Warning, not an error.
func RenderAll(g Generator, ops []diff.SchemaOperation) (statements []string, warnings []Warning) {
	for _, op := range ops {
		stmts, warn := g.Render(op)
		statements = append(statements, stmts...)
		if warn != nil {
			warnings = append(warnings, *warn)
		}
	}
	return statements, warnings
}

func quoteIdent(d query.Dialect, name string) string { return d.QuoteIdent(name) }

func refAction(a model.ReferentialAction) string { return a.String() }

func columnClause(d query.Dialect, col schema.Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", quoteIdent(d, col.Name), col.SQLType)
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != "" {
		fmt.Fprintf(&b, " DEFAULT %s", col.Default)
	}
	if col.AutoIncrement {
		switch d {
		case query.Postgres:
			// handled via GENERATED ALWAYS AS IDENTITY at CREATE TABLE time by caller
		case query.MySQL:
			b.WriteString(" AUTO_INCREMENT")
		case query.SQLite:
			// INTEGER PRIMARY KEY columns auto-increment implicitly in SQLite
		}
	}
	return b.String()
}

// SanitizeIdentifier strips a raw identifier down to ASCII
// alphanumerics and underscore, for values interpolated into
// PRAGMA/SHOW statements (which don't accept bind parameters on every
// dialect).
func SanitizeIdentifier(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
