package query

import (
	"strings"
	"testing"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

func mustBuild(t *testing.T, q *SelectQuery, d Dialect) (string, []sqlval.Value) {
	t.Helper()
	sql, params, err := q.Build(d)
	if err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return sql, params
}

func TestSelectStarWhenNoColumns(t *testing.T) {
	sql, _ := mustBuild(t, NewSelect("users"), SQLite)
	if sql != `SELECT * FROM "users"` {
		t.Fatalf("unexpected sql: %s", sql)
	}
}

func TestBuildIsDeterministicAcrossDialects(t *testing.T) {
	build := func() *SelectQuery {
		return NewSelect("users").
			Filter(Column("age").GtValue(sqlval.BigInt(18))).
			OrderBy(OrderByAsc("name")).
			Limit(10)
	}
	for _, d := range []Dialect{Postgres, MySQL, SQLite} {
		sql1, params1 := mustBuild(t, build(), d)
		sql2, params2 := mustBuild(t, build(), d)
		if sql1 != sql2 {
			t.Fatalf("%s: same tree built different sql:\n%s\n%s", d, sql1, sql2)
		}
		if len(params1) != len(params2) || !params1[0].Equal(params2[0]) {
			t.Fatalf("%s: same tree bound different params", d)
		}
	}
}

func TestPlaceholderStylePerDialect(t *testing.T) {
	q := func() *SelectQuery {
		return NewSelect("users").
			Filter(Column("age").GtValue(sqlval.BigInt(18))).
			Filter(Column("name").EqValue(sqlval.Text("Alice")))
	}

	pgSQL, pgParams := mustBuild(t, q(), Postgres)
	if !strings.Contains(pgSQL, "$1") || !strings.Contains(pgSQL, "$2") {
		t.Fatalf("postgres sql missing numbered placeholders: %s", pgSQL)
	}
	if strings.Contains(pgSQL, "?") {
		t.Fatalf("postgres sql contains bare ?: %s", pgSQL)
	}
	if len(pgParams) != 2 {
		t.Fatalf("expected 2 params, got %d", len(pgParams))
	}

	for _, d := range []Dialect{MySQL, SQLite} {
		sql, params := mustBuild(t, q(), d)
		if got := strings.Count(sql, "?"); got != len(params) {
			t.Fatalf("%s: %d placeholders for %d params: %s", d, got, len(params), sql)
		}
	}
}

func TestPostgresPlaceholderNumberingIsGapless(t *testing.T) {
	q := NewSelect("users").
		Filter(Column("a").EqValue(sqlval.BigInt(1))).
		Filter(Column("b").In(sqlval.BigInt(2), sqlval.BigInt(3))).
		Filter(Column("c").Between(Param(sqlval.BigInt(4)), Param(sqlval.BigInt(5))))
	sql, params := mustBuild(t, q, Postgres)
	for i := 1; i <= len(params); i++ {
		if !strings.Contains(sql, Postgres.Placeholder(i)) {
			t.Fatalf("missing placeholder $%d in: %s", i, sql)
		}
	}
	if strings.Contains(sql, "$6") {
		t.Fatalf("placeholder past the parameter count in: %s", sql)
	}
}

func TestIdentifierQuotingPerDialect(t *testing.T) {
	sqlPg, _ := mustBuild(t, NewSelect("users").Select(Column("name")), Postgres)
	if !strings.Contains(sqlPg, `"users"`) || !strings.Contains(sqlPg, `"name"`) {
		t.Fatalf("postgres should double-quote identifiers: %s", sqlPg)
	}
	sqlMy, _ := mustBuild(t, NewSelect("users").Select(Column("name")), MySQL)
	if !strings.Contains(sqlMy, "`users`") || !strings.Contains(sqlMy, "`name`") {
		t.Fatalf("mysql should backtick identifiers: %s", sqlMy)
	}
}

func TestQuoteIdentDoublesEmbeddedDelimiter(t *testing.T) {
	if got := Postgres.QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("unexpected quoting: %s", got)
	}
	if got := MySQL.QuoteIdent("we`ird"); got != "`we``ird`" {
		t.Fatalf("unexpected quoting: %s", got)
	}
}

func TestCountClearsOrderLimitOffset(t *testing.T) {
	base := NewSelect("users").
		Filter(Column("age").GtValue(sqlval.BigInt(18))).
		OrderBy(OrderByDesc("name")).
		Limit(5).
		Offset(10)
	sql, _ := mustBuild(t, base.Count(), Postgres)
	if !strings.Contains(sql, "COUNT(*)") {
		t.Fatalf("count sql missing COUNT(*): %s", sql)
	}
	if strings.Contains(sql, "ORDER BY") || strings.Contains(sql, "LIMIT") || strings.Contains(sql, "OFFSET") {
		t.Fatalf("count sql kept order/limit/offset: %s", sql)
	}
	if !strings.Contains(sql, "WHERE") {
		t.Fatalf("count sql lost the WHERE clause: %s", sql)
	}

	// The original builder must be untouched.
	orig, _ := mustBuild(t, base, Postgres)
	if !strings.Contains(orig, "ORDER BY") || !strings.Contains(orig, "LIMIT 5") {
		t.Fatalf("Count() mutated the caller's builder: %s", orig)
	}
}

func TestExistsWrapsAndStrips(t *testing.T) {
	q := NewSelect("users").
		Filter(Column("age").GtValue(sqlval.BigInt(18))).
		OrderBy(OrderByAsc("name")).
		Limit(3).
		Offset(6)
	sql, params, err := q.ExistsQuery().Build(SQLite)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(sql, "SELECT EXISTS (SELECT 1 FROM ") {
		t.Fatalf("exists sql has wrong shape: %s", sql)
	}
	if strings.Contains(sql, "ORDER BY") || strings.Contains(sql, "LIMIT") || strings.Contains(sql, "OFFSET") {
		t.Fatalf("exists sql kept order/limit/offset: %s", sql)
	}
	if len(params) != 1 {
		t.Fatalf("expected the WHERE param to survive, got %d params", len(params))
	}
}

func TestOrFilterBranching(t *testing.T) {
	q := NewSelect("users").
		Filter(Column("age").GtValue(sqlval.BigInt(18))).
		OrFilter(Column("admin").EqValue(sqlval.Bool(true)))
	sql, _ := mustBuild(t, q, SQLite)
	if !strings.Contains(sql, " OR ") {
		t.Fatalf("or_filter did not render OR: %s", sql)
	}
}

func TestJoinRequiresOnExceptCross(t *testing.T) {
	q := NewSelect("users").
		Join(JoinLeft, "posts", TableColumn("users", "id").Eq(TableColumn("posts", "author_id")))
	sql, _ := mustBuild(t, q, Postgres)
	if !strings.Contains(sql, `LEFT JOIN "posts" ON `) {
		t.Fatalf("left join misrendered: %s", sql)
	}

	cross, _ := mustBuild(t, NewSelect("a").CrossJoin("b"), Postgres)
	if !strings.Contains(cross, `CROSS JOIN "b"`) || strings.Contains(cross, " ON ") {
		t.Fatalf("cross join misrendered: %s", cross)
	}
}

func TestLateralJoinKeyword(t *testing.T) {
	sub := NewSelect("orders").Filter(TableColumn("orders", "user_id").Eq(TableColumn("users", "id"))).Limit(1)
	q := NewSelect("users").JoinSubquery(JoinLeft, sub, "recent", true, Raw("TRUE"))
	sql, _ := mustBuild(t, q, Postgres)
	if !strings.Contains(sql, "LEFT JOIN LATERAL (") {
		t.Fatalf("lateral join misrendered: %s", sql)
	}
}

func TestOrderByNullsPosition(t *testing.T) {
	q := NewSelect("users").OrderBy(OrderBy{Expr: Column("name"), Direction: Desc, Nulls: NullsLast})
	sql, _ := mustBuild(t, q, Postgres)
	if !strings.Contains(sql, `"name" DESC NULLS LAST`) {
		t.Fatalf("nulls position misrendered: %s", sql)
	}
}

func TestSetOperationComposition(t *testing.T) {
	left := NewSelect("a").Filter(Column("x").EqValue(sqlval.BigInt(1)))
	right := NewSelect("b").Filter(Column("y").EqValue(sqlval.BigInt(2)))
	sql, params := mustBuild(t, left.UnionAll(right), Postgres)
	if !strings.Contains(sql, " UNION ALL ") {
		t.Fatalf("union all misrendered: %s", sql)
	}
	if len(params) != 2 {
		t.Fatalf("expected both sides' params, got %d", len(params))
	}
	if !strings.Contains(sql, "$1") || !strings.Contains(sql, "$2") {
		t.Fatalf("right side's placeholders were not renumbered: %s", sql)
	}
}

func TestIntersectAllRejectedOnMySQL(t *testing.T) {
	left := NewSelect("a")
	right := NewSelect("b")
	if _, _, err := left.IntersectAll(right).Build(MySQL); err == nil {
		t.Fatal("expected a build error for INTERSECT ALL on MySQL")
	}
	if _, _, err := NewSelect("a").IntersectAll(NewSelect("b")).Build(Postgres); err != nil {
		t.Fatalf("postgres should accept INTERSECT ALL: %v", err)
	}
}

func TestCteRendering(t *testing.T) {
	cte := Cte{Name: "recent", Query: NewSelect("orders").Filter(Column("total").GtValue(sqlval.BigInt(100)))}
	q := NewSelect("recent").With(NewWith(cte))
	sql, params := mustBuild(t, q, Postgres)
	if !strings.HasPrefix(sql, `WITH "recent" AS (`) {
		t.Fatalf("cte misrendered: %s", sql)
	}
	if len(params) != 1 {
		t.Fatalf("cte params lost: %d", len(params))
	}
}

func TestRecursiveCteKeyword(t *testing.T) {
	cte := Cte{Name: "tree", Recursive: true, Query: NewSelect("nodes")}
	q := NewSelect("tree").With(NewWith(cte))
	sql, _ := mustBuild(t, q, SQLite)
	if !strings.HasPrefix(sql, "WITH RECURSIVE ") {
		t.Fatalf("recursive cte misrendered: %s", sql)
	}
}

func TestDuplicateCteNameRejected(t *testing.T) {
	w := NewWith(
		Cte{Name: "x", Query: NewSelect("a")},
		Cte{Name: "x", Query: NewSelect("b")},
	)
	if _, _, err := NewSelect("x").With(w).Build(Postgres); err == nil {
		t.Fatal("expected duplicate CTE name to be rejected")
	}
}

func TestWindowFunctionRendering(t *testing.T) {
	w := NewWindow().
		PartitionBy(Column("dept")).
		OrderBy(OrderByDesc("salary")).
		Frame(FrameRows, FrameBound{Kind: UnboundedPreceding}, FrameBound{Kind: CurrentRow}).
		Build()
	q := NewSelect("employees").Select(Func("SUM", Column("salary")).AsWindow(w))
	sql, _ := mustBuild(t, q, Postgres)
	want := `SUM("salary") OVER (PARTITION BY "dept" ORDER BY "salary" DESC ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)`
	if !strings.Contains(sql, want) {
		t.Fatalf("window misrendered:\n got: %s\nwant fragment: %s", sql, want)
	}
}

func TestWindowFrameBounds(t *testing.T) {
	w := NewWindow().
		OrderBy(OrderByAsc("ts")).
		Frame(FrameRange, FrameBound{Kind: Preceding, Offset: 3}, FrameBound{Kind: Following, Offset: 2}).
		Build()
	q := NewSelect("t").Select(Func("AVG", Column("v")).AsWindow(w))
	sql, _ := mustBuild(t, q, Postgres)
	if !strings.Contains(sql, "RANGE BETWEEN 3 PRECEDING AND 2 FOLLOWING") {
		t.Fatalf("frame bounds misrendered: %s", sql)
	}
}

func TestSubqueryPlaceholderReindexing(t *testing.T) {
	inner := NewSelect("orders").
		Select(Column("user_id")).
		Filter(Column("total").GtValue(sqlval.BigInt(100)))
	q := NewSelect("users").
		Filter(Column("active").EqValue(sqlval.Bool(true))).
		Filter(Column("id").InSubquery(inner))
	sql, params := mustBuild(t, q, Postgres)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if !strings.Contains(sql, "$2") {
		t.Fatalf("inner subquery placeholder not renumbered: %s", sql)
	}
}

func TestEmptyInList(t *testing.T) {
	sql, _ := mustBuild(t, NewSelect("t").Filter(Column("x").In()), SQLite)
	if !strings.Contains(sql, "1 = 0") {
		t.Fatalf("empty IN should render an always-false predicate: %s", sql)
	}
	sql, _ = mustBuild(t, NewSelect("t").Filter(Column("x").NotIn()), SQLite)
	if !strings.Contains(sql, "1 = 1") {
		t.Fatalf("empty NOT IN should render an always-true predicate: %s", sql)
	}
}

func TestCaseExpression(t *testing.T) {
	e := Case([]CaseBranch{
		{When: Column("age").LtValue(sqlval.BigInt(18)), Then: Literal(sqlval.Text("minor"))},
	}, exprPtr(Literal(sqlval.Text("adult"))))
	sql, _ := mustBuild(t, NewSelect("users").Select(e), SQLite)
	if !strings.Contains(sql, "CASE WHEN ") || !strings.Contains(sql, " ELSE ") || !strings.Contains(sql, " END") {
		t.Fatalf("case misrendered: %s", sql)
	}
}

func TestILikeEmulation(t *testing.T) {
	if got := Postgres.ILike("a", "b"); got != "a ILIKE b" {
		t.Fatalf("postgres ilike: %s", got)
	}
	if got := SQLite.ILike("a", "b"); got != "UPPER(a) LIKE UPPER(b)" {
		t.Fatalf("sqlite ilike emulation: %s", got)
	}
}

func TestForUpdateClause(t *testing.T) {
	sql, _ := mustBuild(t, NewSelect("jobs").ForUpdate(), Postgres)
	if !strings.HasSuffix(sql, " FOR UPDATE") {
		t.Fatalf("missing FOR UPDATE: %s", sql)
	}
}

func TestBooleanLiteralEmulation(t *testing.T) {
	q := func() *SelectQuery { return NewSelect("t").Filter(Column("flag").Eq(Literal(sqlval.Bool(true)))) }
	sqlMy, _ := mustBuild(t, q(), MySQL)
	if !strings.Contains(sqlMy, "= 1") {
		t.Fatalf("mysql should emulate TRUE as 1: %s", sqlMy)
	}
	sqlPg, _ := mustBuild(t, q(), Postgres)
	if !strings.Contains(sqlPg, "= true") {
		t.Fatalf("postgres should keep boolean literals: %s", sqlPg)
	}
}
