package query

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

type whereItem struct {
	expr Expr
	or   bool
}

// SelectQuery is the dialect-agnostic SELECT builder core, rendered
// to SQL only when Build(dialect) is called. Kept non-generic (unlike
// Select[T]) so it
// can be embedded as a subquery, CTE body, or set-operation operand
// without requiring a record type.
type SelectQuery struct {
	table     string
	alias     string
	columns   []Expr
	colAlias  []string
	distinct  bool
	joins     []Join
	where     []whereItem
	groupBy   []Expr
	having    []whereItem
	order     []OrderBy
	limit     int
	hasLimit  bool
	offset    int
	hasOffset bool
	forUpdate bool
	with      *WithQuery
	setOps    []setOperation
}

type setOpKind int

const (
	setUnion setOpKind = iota
	setUnionAll
	setIntersect
	setIntersectAll
	setExcept
	setExceptAll
)

type setOperation struct {
	kind  setOpKind
	query *SelectQuery
}

// NewSelect starts a builder reading from table.
func NewSelect(table string) *SelectQuery {
	return &SelectQuery{table: table}
}

func (q *SelectQuery) As(alias string) *SelectQuery { q.alias = alias; return q }

// Select sets the projected columns; an empty call (no columns ever
// added) means `*`.
func (q *SelectQuery) Select(exprs ...Expr) *SelectQuery {
	q.columns = append(q.columns, exprs...)
	q.colAlias = append(q.colAlias, make([]string, len(exprs))...)
	return q
}

// SelectAs adds one projected column with an explicit output alias,
// used by the eager-loader for `<table>__<column>` aliasing.
func (q *SelectQuery) SelectAs(e Expr, alias string) *SelectQuery {
	q.columns = append(q.columns, e)
	q.colAlias = append(q.colAlias, alias)
	return q
}

func (q *SelectQuery) Distinct() *SelectQuery { q.distinct = true; return q }

func (q *SelectQuery) Join(kind JoinKind, table string, on Expr) *SelectQuery {
	q.joins = append(q.joins, Join{Kind: kind, Table: table, On: &on})
	return q
}

func (q *SelectQuery) JoinAs(kind JoinKind, table, alias string, on Expr) *SelectQuery {
	q.joins = append(q.joins, Join{Kind: kind, Table: table, Alias: alias, On: &on})
	return q
}

func (q *SelectQuery) JoinSubquery(kind JoinKind, sub *SelectQuery, alias string, lateral bool, on Expr) *SelectQuery {
	q.joins = append(q.joins, Join{Kind: kind, Subquery: sub, Alias: alias, Lateral: lateral, On: &on})
	return q
}

func (q *SelectQuery) CrossJoin(table string) *SelectQuery {
	q.joins = append(q.joins, Join{Kind: JoinCross, Table: table})
	return q
}

// Filter conjoins a predicate with AND (spec's default conjunctive
// WHERE).
func (q *SelectQuery) Filter(e Expr) *SelectQuery {
	q.where = append(q.where, whereItem{expr: e})
	return q
}

// OrFilter disjoins a predicate with OR.
func (q *SelectQuery) OrFilter(e Expr) *SelectQuery {
	q.where = append(q.where, whereItem{expr: e, or: true})
	return q
}

func (q *SelectQuery) GroupBy(exprs ...Expr) *SelectQuery {
	q.groupBy = append(q.groupBy, exprs...)
	return q
}

func (q *SelectQuery) Having(e Expr) *SelectQuery {
	q.having = append(q.having, whereItem{expr: e})
	return q
}

func (q *SelectQuery) OrHaving(e Expr) *SelectQuery {
	q.having = append(q.having, whereItem{expr: e, or: true})
	return q
}

func (q *SelectQuery) OrderBy(items ...OrderBy) *SelectQuery {
	q.order = append(q.order, items...)
	return q
}

func (q *SelectQuery) Limit(n int) *SelectQuery {
	q.limit, q.hasLimit = n, true
	return q
}

func (q *SelectQuery) Offset(n int) *SelectQuery {
	q.offset, q.hasOffset = n, true
	return q
}

func (q *SelectQuery) ForUpdate() *SelectQuery { q.forUpdate = true; return q }

// With attaches a CTE list this query (as the main query) can
// reference.
func (q *SelectQuery) With(w *WithQuery) *SelectQuery { q.with = w; return q }

func (q *SelectQuery) Union(other *SelectQuery) *SelectQuery {
	q.setOps = append(q.setOps, setOperation{setUnion, other})
	return q
}
func (q *SelectQuery) UnionAll(other *SelectQuery) *SelectQuery {
	q.setOps = append(q.setOps, setOperation{setUnionAll, other})
	return q
}
func (q *SelectQuery) Intersect(other *SelectQuery) *SelectQuery {
	q.setOps = append(q.setOps, setOperation{setIntersect, other})
	return q
}
func (q *SelectQuery) IntersectAll(other *SelectQuery) *SelectQuery {
	q.setOps = append(q.setOps, setOperation{setIntersectAll, other})
	return q
}
func (q *SelectQuery) Except(other *SelectQuery) *SelectQuery {
	q.setOps = append(q.setOps, setOperation{setExcept, other})
	return q
}
func (q *SelectQuery) ExceptAll(other *SelectQuery) *SelectQuery {
	q.setOps = append(q.setOps, setOperation{setExceptAll, other})
	return q
}

func renderWhereItems(items []whereItem, c *renderCtx) (string, error) {
	var b strings.Builder
	for i, it := range items {
		r, err := it.expr.render(c)
		if err != nil {
			return "", err
		}
		if i == 0 {
			b.WriteString(r)
			continue
		}
		if it.or {
			fmt.Fprintf(&b, " OR %s", r)
		} else {
			fmt.Fprintf(&b, " AND %s", r)
		}
	}
	return b.String(), nil
}

// Build renders the query to (sql, params) for the given dialect.
// Rendering is deterministic: the same tree always yields the same
// text and parameter list.
func (q *SelectQuery) Build(d Dialect) (string, []sqlval.Value, error) {
	return q.build(d)
}

// clone produces a shallow-enough copy so that derived queries built
// for Count()/Exists() don't mutate the caller's builder.
func (q *SelectQuery) clone() *SelectQuery {
	cp := *q
	cp.columns = append([]Expr(nil), q.columns...)
	cp.colAlias = append([]string(nil), q.colAlias...)
	cp.joins = append([]Join(nil), q.joins...)
	cp.where = append([]whereItem(nil), q.where...)
	cp.groupBy = append([]Expr(nil), q.groupBy...)
	cp.having = append([]whereItem(nil), q.having...)
	cp.order = append([]OrderBy(nil), q.order...)
	cp.setOps = append([]setOperation(nil), q.setOps...)
	return &cp
}

// Count rewrites the projection to COUNT(*) AS count and strips
// order/limit/offset.
func (q *SelectQuery) Count() *SelectQuery {
	cp := q.clone()
	cp.columns = []Expr{Func("COUNT", Column("*"))}
	cp.colAlias = []string{"count"}
	cp.order = nil
	cp.hasLimit, cp.hasOffset = false, false
	return cp
}

// ExistsQuery wraps this query in SELECT EXISTS(SELECT 1 FROM ...),
// stripping order/limit/offset.
func (q *SelectQuery) ExistsQuery() *ExistsQueryBuilder {
	cp := q.clone()
	cp.columns = []Expr{Literal(oneLiteral)}
	cp.colAlias = []string{""}
	cp.order = nil
	cp.hasLimit, cp.hasOffset = false, false
	return &ExistsQueryBuilder{inner: cp}
}

type ExistsQueryBuilder struct{ inner *SelectQuery }

func (e *ExistsQueryBuilder) Build(d Dialect) (string, []sqlval.Value, error) {
	sql, params, err := e.inner.build(d)
	if err != nil {
		return "", nil, err
	}
	return "SELECT EXISTS (" + sql + ")", params, nil
}

func (q *SelectQuery) build(d Dialect) (string, []sqlval.Value, error) {
	c := &renderCtx{dialect: d}
	var b strings.Builder

	if q.with != nil {
		withSQL, err := q.with.render(c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(withSQL)
		b.WriteString(" ")
	}

	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.columns) == 0 {
		b.WriteString("*")
	} else {
		for i, col := range q.columns {
			if i > 0 {
				b.WriteString(", ")
			}
			r, err := col.render(c)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(r)
			if q.colAlias[i] != "" {
				b.WriteString(" AS ")
				b.WriteString(d.QuoteIdent(q.colAlias[i]))
			}
		}
	}

	fmt.Fprintf(&b, " FROM %s", d.QuoteIdent(q.table))
	if q.alias != "" {
		fmt.Fprintf(&b, " AS %s", d.QuoteIdent(q.alias))
	}

	for _, j := range q.joins {
		jsql, err := j.render(c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ")
		b.WriteString(jsql)
	}

	if len(q.where) > 0 {
		wsql, err := renderWhereItems(q.where, c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(wsql)
	}

	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, g := range q.groupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			r, err := g.render(c)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(r)
		}
	}

	if len(q.having) > 0 {
		hsql, err := renderWhereItems(q.having, c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" HAVING ")
		b.WriteString(hsql)
	}

	if len(q.order) > 0 {
		osql, err := renderOrderBy(q.order, c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(osql)
	}

	b.WriteString(d.LimitOffset(q.limit, q.offset, q.hasLimit, q.hasOffset))

	if q.forUpdate {
		b.WriteString(" FOR UPDATE")
	}

	sql := b.String()
	for _, so := range q.setOps {
		otherSQL, otherParams, err := so.query.build(d)
		if err != nil {
			return "", nil, err
		}
		if err := validateSetOp(d, so.kind); err != nil {
			return "", nil, err
		}
		sql = fmt.Sprintf("%s %s %s", sql, setOpKeyword(so.kind), reindexPlaceholders(otherSQL, d, len(c.params)))
		c.params = append(c.params, otherParams...)
	}

	return sql, c.params, nil
}

func setOpKeyword(k setOpKind) string {
	switch k {
	case setUnion:
		return "UNION"
	case setUnionAll:
		return "UNION ALL"
	case setIntersect:
		return "INTERSECT"
	case setIntersectAll:
		return "INTERSECT ALL"
	case setExcept:
		return "EXCEPT"
	case setExceptAll:
		return "EXCEPT ALL"
	default:
		return "UNION"
	}
}

// validateSetOp rejects dialect-unsupported set-operation/modifier
// combinations at build time rather than at the server.
func validateSetOp(d Dialect, k setOpKind) error {
	if d == MySQL && k == setIntersectAll {
		return fmt.Errorf("query: INTERSECT ALL is not supported on MySQL")
	}
	if d == MySQL && k == setExceptAll {
		return fmt.Errorf("query: EXCEPT ALL is not supported on MySQL")
	}
	return nil
}

var oneLiteral = sqlval.Int(1)
