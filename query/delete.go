package query

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// DeleteQuery builds DELETE FROM ... WHERE .... It is typed by record
// at the session layer; this builder itself only needs a table name.
type DeleteQuery struct {
	table          string
	where          []whereItem
	returning      []string
	allowFullTable bool
}

func NewDelete(table string) *DeleteQuery { return &DeleteQuery{table: table} }

func (q *DeleteQuery) Filter(e Expr) *DeleteQuery {
	q.where = append(q.where, whereItem{expr: e})
	return q
}

func (q *DeleteQuery) OrFilter(e Expr) *DeleteQuery {
	q.where = append(q.where, whereItem{expr: e, or: true})
	return q
}

func (q *DeleteQuery) Returning(columns ...string) *DeleteQuery {
	q.returning = append(q.returning, columns...)
	return q
}

func (q *DeleteQuery) AllowFullTable() *DeleteQuery {
	q.allowFullTable = true
	return q
}

func (q *DeleteQuery) Build(d Dialect) (string, []sqlval.Value, error) {
	if len(q.where) == 0 && !q.allowFullTable {
		return "", nil, ErrNoWhereClause
	}
	if len(q.returning) > 0 && !d.SupportsReturning() {
		return "", nil, fmt.Errorf("query: RETURNING is not supported on %s", d)
	}

	c := &renderCtx{dialect: d}
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", d.QuoteIdent(q.table))

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
