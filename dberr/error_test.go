package dberr

import (
	"errors"
	"testing"
)

func TestFromPostgresSQLSTATEUniqueViolation(t *testing.T) {
	e := FromPostgresSQLSTATE("23505", "duplicate key value violates unique constraint")
	if e.Kind != KindConstraintUniqueViolation {
		t.Fatalf("expected KindConstraintUniqueViolation, got %v", e.Kind)
	}
	if e.NativeCode != "23505" {
		t.Fatalf("expected native code to be preserved, got %q", e.NativeCode)
	}
}

func TestFromPostgresSQLSTATEFallsBackToClass(t *testing.T) {
	e := FromPostgresSQLSTATE("42601", "syntax error")
	if e.Kind != KindQuerySyntax {
		t.Fatalf("expected KindQuerySyntax for class 42, got %v", e.Kind)
	}
}

func TestFromMySQLErrorNumberDuplicateEntry(t *testing.T) {
	e := FromMySQLErrorNumber(1062, "Duplicate entry '1' for key 'PRIMARY'")
	if e.Kind != KindConstraintUniqueViolation {
		t.Fatalf("expected KindConstraintUniqueViolation, got %v", e.Kind)
	}
}

func TestFromMySQLErrorNumberForeignKey(t *testing.T) {
	for _, n := range []int{1216, 1217, 1451, 1452} {
		e := FromMySQLErrorNumber(n, "fk violation")
		if e.Kind != KindConstraintForeignKeyViolation {
			t.Fatalf("error number %d: expected KindConstraintForeignKeyViolation, got %v", n, e.Kind)
		}
	}
}

func TestFromSQLiteExtendedCodeUnique(t *testing.T) {
	e := FromSQLiteExtendedCode(sqliteConstraintUnique, "UNIQUE constraint failed")
	if e.Kind != KindConstraintUniqueViolation {
		t.Fatalf("expected KindConstraintUniqueViolation, got %v", e.Kind)
	}
}

func TestErrorIsComparesKindOnly(t *testing.T) {
	a := New(KindConstraintUniqueViolation, "a")
	b := New(KindConstraintUniqueViolation, "b")
	c := New(KindConstraintForeignKeyViolation, "c")

	if !errors.Is(a, b) {
		t.Fatal("expected errors with the same Kind to match via errors.Is")
	}
	if errors.Is(a, c) {
		t.Fatal("expected errors with different Kinds not to match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(KindConnectionNetwork, "read failed", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected Unwrap to expose the original cause")
	}
}
