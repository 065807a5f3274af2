package schema

import (
	"strings"
	"testing"
)

const heroesDDL = `CREATE TABLE heroes(
	id INT PRIMARY KEY,
	age INT NOT NULL,
	kind TEXT,
	CONSTRAINT age_non_negative CHECK(age >= 0),
	CHECK(age <= 150),
	CHECK(kind IN ('A,B','C'))
)`

func squash(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func TestExtractChecksFindsAllThree(t *testing.T) {
	checks := extractChecks(heroesDDL)
	if len(checks) != 3 {
		t.Fatalf("expected exactly 3 check constraints, got %d: %+v", len(checks), checks)
	}
}

func TestExtractChecksCapturesConstraintName(t *testing.T) {
	checks := extractChecks(heroesDDL)
	var named *Check
	for i := range checks {
		if checks[i].Name == "age_non_negative" {
			named = &checks[i]
		}
	}
	if named == nil {
		t.Fatalf("no check named age_non_negative in %+v", checks)
	}
	if named.Expression != "age >= 0" {
		t.Fatalf("expected the inner expression, got %q", named.Expression)
	}
}

func TestExtractChecksStripsCheckKeyword(t *testing.T) {
	for _, c := range extractChecks(heroesDDL) {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(c.Expression)), "CHECK") {
			t.Fatalf("expression retains the CHECK keyword: %q", c.Expression)
		}
	}
}

func TestExtractChecksExpressionsWhitespaceInsensitive(t *testing.T) {
	var squashed []string
	for _, c := range extractChecks(heroesDDL) {
		squashed = append(squashed, squash(c.Expression))
	}
	joined := strings.Join(squashed, "|")
	if !strings.Contains(joined, "age<=150") {
		t.Fatalf("missing age<=150 in %v", squashed)
	}
	if !strings.Contains(joined, "kindin('a,b','c')") {
		t.Fatalf("missing kind IN check in %v", squashed)
	}
}

func TestExtractChecksBalancedNestedParens(t *testing.T) {
	checks := extractChecks(`CREATE TABLE t(x INT, CHECK((x + 1) * (x - 1) >= 0))`)
	if len(checks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(checks))
	}
	if squash(checks[0].Expression) != "(x+1)*(x-1)>=0" {
		t.Fatalf("nested parens mishandled: %q", checks[0].Expression)
	}
}

func TestExtractChecksDequotesIdentifiers(t *testing.T) {
	checks := extractChecks(`CREATE TABLE t(x INT, CHECK("x" >= 0))`)
	if len(checks) != 1 || strings.Contains(checks[0].Expression, `"`) {
		t.Fatalf("identifiers not de-quoted: %+v", checks)
	}
}

func TestExtractChecksIgnoresUnparenthesisedCheckWord(t *testing.T) {
	checks := extractChecks(`CREATE TABLE checkpoints(checked INT, CHECK(checked >= 0))`)
	if len(checks) != 1 {
		t.Fatalf("expected 1 check, got %d: %+v", len(checks), checks)
	}
}

func TestParseReferentialAction(t *testing.T) {
	cases := map[string]string{
		"CASCADE":     "CASCADE",
		"set null":    "SET NULL",
		"RESTRICT":    "RESTRICT",
		"SET DEFAULT": "SET DEFAULT",
		"NO ACTION":   "NO ACTION",
		"":            "NO ACTION",
	}
	for in, want := range cases {
		if got := parseReferentialAction(in).String(); got != want {
			t.Errorf("parseReferentialAction(%q) = %s, want %s", in, got, want)
		}
	}
}
