package query

import (
	"fmt"
	"strings"
)

// Cte is one named binding inside a WithQuery.
type Cte struct {
	Name      string
	Columns   []string // optional explicit column list
	Query     *SelectQuery
	Recursive bool
}

// WithQuery holds an ordered list of named CTE bindings and the main
// query that references them. A reference to a CTE is a table name
// equal to a Cte.Name; references are not resolved or checked.
type WithQuery struct {
	ctes []Cte
}

func NewWith(ctes ...Cte) *WithQuery { return &WithQuery{ctes: ctes} }

// Validate checks that every Cte name is unique. It does not check
// which tables or CTEs a Cte's query references, so a reference to a
// later or undeclared CTE is not caught here.
func (w *WithQuery) Validate() error {
	seen := make(map[string]bool, len(w.ctes))
	for _, c := range w.ctes {
		if seen[c.Name] {
			return fmt.Errorf("query: duplicate CTE name %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

func (w *WithQuery) render(c *renderCtx) (string, error) {
	if err := w.Validate(); err != nil {
		return "", err
	}
	recursive := false
	parts := make([]string, len(w.ctes))
	for i, cte := range w.ctes {
		if cte.Recursive {
			recursive = true
		}
		sql, params, err := cte.Query.build(c.dialect)
		if err != nil {
			return "", err
		}
		base := len(c.params)
		c.params = append(c.params, params...)
		sql = reindexPlaceholders(sql, c.dialect, base)

		colList := ""
		if len(cte.Columns) > 0 {
			quoted := make([]string, len(cte.Columns))
			for j, col := range cte.Columns {
				quoted[j] = c.dialect.QuoteIdent(col)
			}
			colList = fmt.Sprintf(" (%s)", strings.Join(quoted, ", "))
		}
		parts[i] = fmt.Sprintf("%s%s AS (%s)", c.dialect.QuoteIdent(cte.Name), colList, sql)
	}
	kw := "WITH"
	if recursive {
		kw = "WITH RECURSIVE"
	}
	return fmt.Sprintf("%s %s", kw, strings.Join(parts, ", ")), nil
}
