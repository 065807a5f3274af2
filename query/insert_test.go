package query

import (
	"strings"
	"testing"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

func TestInsertSingleRow(t *testing.T) {
	q := NewInsert("users", []string{"name", "age"}).
		Row(sqlval.Text("Alice"), sqlval.BigInt(30))
	sql, params, err := q.Build(Postgres)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != `INSERT INTO "users" ("name", "age") VALUES ($1, $2)` {
		t.Fatalf("unexpected sql: %s", sql)
	}
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
}

func TestInsertDefaultRendersKeyword(t *testing.T) {
	q := NewInsert("users", []string{"name", "created_at"}).
		Row(sqlval.Text("Alice"), sqlval.Default())
	sql, params, err := q.Build(SQLite)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, "(?, DEFAULT)") {
		t.Fatalf("Default value should render as DEFAULT keyword: %s", sql)
	}
	if len(params) != 1 {
		t.Fatalf("DEFAULT must not bind a parameter, got %d params", len(params))
	}
}

func TestInsertManyUniformColumns(t *testing.T) {
	q := NewInsert("users", []string{"name", "age"}).
		Row(sqlval.Text("Alice"), sqlval.BigInt(30)).
		Row(sqlval.Text("Bob"), sqlval.Default()).
		Row(sqlval.Text("Cara"), sqlval.BigInt(25))
	sql, params, err := q.Build(MySQL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Count(sql, "("); got != 4 { // column list + 3 row tuples
		t.Fatalf("expected 3 value tuples: %s", sql)
	}
	if len(params) != 5 {
		t.Fatalf("expected 5 bound params (DEFAULT cell skipped), got %d", len(params))
	}
	if !strings.Contains(sql, "(?, DEFAULT)") {
		t.Fatalf("bulk DEFAULT cell misrendered: %s", sql)
	}
}

func TestInsertRowArityMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a row with the wrong arity")
		}
	}()
	NewInsert("users", []string{"a", "b"}).Row(sqlval.BigInt(1))
}

func TestOnConflictDoNothingPerDialect(t *testing.T) {
	build := func(d Dialect) string {
		q := NewInsert("users", []string{"email"}).
			Row(sqlval.Text("a@example.com")).
			OnConflictDoNothing("email")
		sql, _, err := q.Build(d)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", d, err)
		}
		return sql
	}
	if sql := build(Postgres); !strings.Contains(sql, `ON CONFLICT ("email") DO NOTHING`) {
		t.Fatalf("postgres upsert misrendered: %s", sql)
	}
	if sql := build(SQLite); !strings.Contains(sql, `ON CONFLICT ("email") DO NOTHING`) {
		t.Fatalf("sqlite upsert misrendered: %s", sql)
	}
	if sql := build(MySQL); !strings.Contains(sql, "ON DUPLICATE KEY UPDATE `email` = `email`") {
		t.Fatalf("mysql do-nothing emulation misrendered: %s", sql)
	}
}

func TestOnConflictDoUpdate(t *testing.T) {
	q := NewInsert("users", []string{"email", "name"}).
		Row(sqlval.Text("a@example.com"), sqlval.Text("Alice")).
		OnConflictDoUpdate([]string{"email"}, []string{"name"}, nil)
	sql, _, err := q.Build(Postgres)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sql, `ON CONFLICT ("email") DO UPDATE SET "name" = EXCLUDED."name"`) {
		t.Fatalf("do-update misrendered: %s", sql)
	}

	sqlMy, _, err := NewInsert("users", []string{"email", "name"}).
		Row(sqlval.Text("a@example.com"), sqlval.Text("Alice")).
		OnConflictDoUpdate([]string{"email"}, []string{"name"}, nil).
		Build(MySQL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sqlMy, "ON DUPLICATE KEY UPDATE `name` = VALUES(`name`)") {
		t.Fatalf("mysql do-update misrendered: %s", sqlMy)
	}
}

func TestReturningRejectedOnMySQL(t *testing.T) {
	q := NewInsert("users", []string{"name"}).
		Row(sqlval.Text("Alice")).
		Returning("id")
	if _, _, err := q.Build(MySQL); err == nil {
		t.Fatal("expected RETURNING to be rejected on MySQL")
	}
	if _, _, err := NewInsert("users", []string{"name"}).Row(sqlval.Text("A")).Returning("id").Build(Postgres); err != nil {
		t.Fatalf("postgres should accept RETURNING: %v", err)
	}
}

func TestInsertWithNoRowsRejected(t *testing.T) {
	if _, _, err := NewInsert("users", []string{"a"}).Build(SQLite); err == nil {
		t.Fatal("expected an error for an insert with no rows")
	}
}
