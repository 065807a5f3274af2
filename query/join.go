package query

import "fmt"

// JoinKind names the join variant.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
	JoinFull
	JoinCross
)

func (k JoinKind) keyword() string {
	switch k {
	case JoinLeft:
		return "LEFT JOIN"
	case JoinRight:
		return "RIGHT JOIN"
	case JoinFull:
		return "FULL JOIN"
	case JoinCross:
		return "CROSS JOIN"
	default:
		return "JOIN"
	}
}

// Join is one FROM-clause join item: a table (or a subquery, or a CTE
// reference), an ON predicate, and whether it is LATERAL.
type Join struct {
	Kind     JoinKind
	Table    string
	Alias    string
	Subquery *SelectQuery // non-nil for a derived-table join
	Lateral  bool
	On       *Expr // nil only for JoinCross
}

func (j Join) render(c *renderCtx) (string, error) {
	var source string
	if j.Subquery != nil {
		sql, params, err := j.Subquery.Build(c.dialect)
		if err != nil {
			return "", err
		}
		c.params = append(c.params, params...)
		source = "(" + reindexPlaceholders(sql, c.dialect, len(c.params)-len(params)) + ")"
	} else {
		source = c.dialect.QuoteIdent(j.Table)
	}
	if j.Alias != "" {
		source += " AS " + c.dialect.QuoteIdent(j.Alias)
	}
	lateral := ""
	if j.Lateral {
		lateral = "LATERAL "
	}
	if j.Kind == JoinCross || j.On == nil {
		return fmt.Sprintf("%s %s%s", j.Kind.keyword(), lateral, source), nil
	}
	onSQL, err := j.On.render(c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s%s ON %s", j.Kind.keyword(), lateral, source, onSQL), nil
}

// OrderDirection is ASC or DESC.
type OrderDirection int

const (
	Asc OrderDirection = iota
	Desc
)

// NullsPosition controls NULLS FIRST/LAST rendering.
type NullsPosition int

const (
	NullsDefault NullsPosition = iota
	NullsFirst
	NullsLast
)

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Expr      Expr
	Direction OrderDirection
	Nulls     NullsPosition
}

func OrderByAsc(col string) OrderBy  { return OrderBy{Expr: Column(col), Direction: Asc} }
func OrderByDesc(col string) OrderBy { return OrderBy{Expr: Column(col), Direction: Desc} }

func renderOrderBy(items []OrderBy, c *renderCtx) (string, error) {
	parts := make([]string, len(items))
	for i, o := range items {
		r, err := o.Expr.render(c)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Direction == Desc {
			dir = "DESC"
		}
		term := r + " " + dir
		switch o.Nulls {
		case NullsFirst:
			term += " NULLS FIRST"
		case NullsLast:
			term += " NULLS LAST"
		}
		parts[i] = term
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out, nil
}
