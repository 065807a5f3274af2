package query

import (
	"testing"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

func TestStructuralHashIgnoresParameterValues(t *testing.T) {
	a := NewSelect("users").Filter(Column("age").GtValue(sqlval.BigInt(18)))
	b := NewSelect("users").Filter(Column("age").GtValue(sqlval.BigInt(99)))
	if a.StructuralHash(Postgres) != b.StructuralHash(Postgres) {
		t.Fatal("structurally identical queries with different bound values must hash identically")
	}
}

func TestStructuralHashDistinguishesShape(t *testing.T) {
	a := NewSelect("users").Filter(Column("age").GtValue(sqlval.BigInt(18)))
	b := NewSelect("users").Filter(Column("age").LtValue(sqlval.BigInt(18)))
	if a.StructuralHash(Postgres) == b.StructuralHash(Postgres) {
		t.Fatal("different operators should hash differently")
	}

	c := NewSelect("users").Filter(Column("name").GtValue(sqlval.Text("x")))
	if a.StructuralHash(Postgres) == c.StructuralHash(Postgres) {
		t.Fatal("different columns should hash differently")
	}
}

func TestStructuralHashDistinguishesDialect(t *testing.T) {
	q := NewSelect("users").Limit(1)
	if q.StructuralHash(Postgres) == q.StructuralHash(MySQL) {
		t.Fatal("the dialect is part of the cache key: placeholders differ per dialect")
	}
}

func TestStructuralHashDistinguishesLimitValue(t *testing.T) {
	a := NewSelect("users").Limit(1)
	b := NewSelect("users").Limit(2)
	if a.StructuralHash(SQLite) == b.StructuralHash(SQLite) {
		t.Fatal("limit is rendered as a literal, so its value must be part of the hash")
	}
}

func TestStructuralHashLiteralsAreStructural(t *testing.T) {
	// Literal (inline) values are rendered into the SQL text, unlike
	// Param, so they must affect the hash.
	a := NewSelect("t").Filter(Column("x").Eq(Literal(sqlval.BigInt(1))))
	b := NewSelect("t").Filter(Column("x").Eq(Literal(sqlval.BigInt(2))))
	if a.StructuralHash(SQLite) == b.StructuralHash(SQLite) {
		t.Fatal("literal values are part of the compiled SQL and must hash differently")
	}
}
