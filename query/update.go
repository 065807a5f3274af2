package query

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// ErrNoWhereClause is returned by UpdateQuery/DeleteQuery.Build when
// no WHERE was set and AllowFullTable wasn't called.
var ErrNoWhereClause = fmt.Errorf("query: refusing to build a statement with no WHERE clause; call AllowFullTable() to override")

// SetClause is one column assignment of an UPDATE.
type SetClause struct {
	Column string
	Value  sqlval.Value
	Expr   *Expr // when non-nil, overrides Value with an arbitrary expression (e.g. col = col + 1)
}

// UpdateQuery builds UPDATE ... SET ... WHERE ....
type UpdateQuery struct {
	table          string
	sets           []SetClause
	where          []whereItem
	returning      []string
	allowFullTable bool
}

func NewUpdate(table string) *UpdateQuery { return &UpdateQuery{table: table} }

func (q *UpdateQuery) Set(column string, v sqlval.Value) *UpdateQuery {
	q.sets = append(q.sets, SetClause{Column: column, Value: v})
	return q
}

func (q *UpdateQuery) SetExpr(column string, e Expr) *UpdateQuery {
	q.sets = append(q.sets, SetClause{Column: column, Expr: &e})
	return q
}

func (q *UpdateQuery) Filter(e Expr) *UpdateQuery {
	q.where = append(q.where, whereItem{expr: e})
	return q
}

func (q *UpdateQuery) OrFilter(e Expr) *UpdateQuery {
	q.where = append(q.where, whereItem{expr: e, or: true})
	return q
}

func (q *UpdateQuery) Returning(columns ...string) *UpdateQuery {
	q.returning = append(q.returning, columns...)
	return q
}

// AllowFullTable opts into executing an UPDATE with no WHERE clause.
func (q *UpdateQuery) AllowFullTable() *UpdateQuery {
	q.allowFullTable = true
	return q
}

func (q *UpdateQuery) Build(d Dialect) (string, []sqlval.Value, error) {
	if len(q.sets) == 0 {
		return "", nil, fmt.Errorf("query: update has no SET clauses")
	}
	if len(q.where) == 0 && !q.allowFullTable {
		return "", nil, ErrNoWhereClause
	}
	if len(q.returning) > 0 && !d.SupportsReturning() {
		return "", nil, fmt.Errorf("query: RETURNING is not supported on %s", d)
	}

	c := &renderCtx{dialect: d}
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET ", d.QuoteIdent(q.table))
	for i, s := range q.sets {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = ", d.QuoteIdent(s.Column))
		if s.Expr != nil {
			r, err := s.Expr.render(c)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(r)
		} else if s.Value.Kind() == sqlval.KindDefault {
			b.WriteString("DEFAULT")
		} else {
			b.WriteString(c.bind(s.Value))
		}
	}

	if len(q.where) > 0 {
		wsql, err := renderWhereItems(q.where, c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(wsql)
	}

	if len(q.returning) > 0 {
		b.WriteString(" RETURNING ")
		for i, col := range q.returning {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.QuoteIdent(col))
		}
	}

	return b.String(), c.params, nil
}
