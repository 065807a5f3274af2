// Package query implements the composable, dialect-aware SQL builder:
// expression algebra, Select/Insert/Update/Delete, joins, CTEs, set
// operations, and window functions, rendered against any of the three
// dialects this module targets.
package query

import "fmt"

// Dialect controls placeholder style, identifier quoting, upsert
// syntax, RETURNING availability, and LIMIT/OFFSET spelling.
type Dialect int

const (
	Postgres Dialect = iota
	MySQL
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// Placeholder renders the nth (1-based) bind-parameter placeholder for
// this dialect. Postgres numbers positionally ($1, $2, ...); MySQL and
// SQLite both use a bare repeated `?`.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// QuoteIdent quotes a SQL identifier, doubling any embedded quote
// character. The builder and DDL layer share this quoting contract.
func (d Dialect) QuoteIdent(name string) string {
	switch d {
	case MySQL:
		return "`" + escapeQuote(name, '`') + "`"
	default:
		return `"` + escapeQuote(name, '"') + `"`
	}
}

func escapeQuote(s string, q byte) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == q {
			out = append(out, q, q)
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// SupportsReturning reports whether this dialect can render a
// RETURNING clause on INSERT/UPDATE/DELETE: Postgres always, and
// SQLite from 3.35 onward (assumed available; callers targeting older
// SQLite should not use RETURNING-dependent builder methods).
func (d Dialect) SupportsReturning() bool {
	return d == Postgres || d == SQLite
}

// UsesOnConflict reports whether the upsert clause is introduced by
// `ON CONFLICT` (Postgres/SQLite) rather than MySQL's `ON DUPLICATE KEY
// UPDATE` (which has no DO-NOTHING form; see renderOnConflict).
func (d Dialect) UsesOnConflict() bool {
	return d != MySQL
}

// EmulatesBoolean reports whether BOOLEAN values must be rendered as
// 0/1 integer literals because the dialect has no native boolean
// type.
func (d Dialect) EmulatesBoolean() bool {
	return d == MySQL || d == SQLite
}

// LimitOffset renders the LIMIT/OFFSET tail. MySQL additionally
// accepts `LIMIT offset, count` but this module always emits the
// portable `LIMIT count OFFSET offset` form, which all three dialects
// accept.
func (d Dialect) LimitOffset(limit, offset int, hasLimit, hasOffset bool) string {
	out := ""
	if hasLimit {
		out += fmt.Sprintf(" LIMIT %d", limit)
	}
	if hasOffset {
		out += fmt.Sprintf(" OFFSET %d", offset)
	}
	return out
}

// ILike renders a case-insensitive LIKE comparison. Postgres has
// native ILIKE; MySQL/SQLite emulate it by wrapping both sides in
// UPPER(...) since their LIKE collation is often case-sensitive
// (SQLite's default BINARY collation, MySQL's utf8mb4_bin, etc.; the
// portable way to guarantee case-insensitivity is explicit folding).
func (d Dialect) ILike(left, right string) string {
	if d == Postgres {
		return fmt.Sprintf("%s ILIKE %s", left, right)
	}
	return fmt.Sprintf("UPPER(%s) LIKE UPPER(%s)", left, right)
}
