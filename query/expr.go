package query

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// ExprKind tags the variant of an Expr tree node.
type ExprKind int

const (
	ExprColumn ExprKind = iota
	ExprLiteral
	ExprParameter
	ExprBinary
	ExprUnary
	ExprFunction
	ExprCase
	ExprSubquery
	ExprExists
	ExprIn
	ExprBetween
	ExprCast
	ExprWindow
	ExprRaw
)

// CaseBranch is one WHEN/THEN pair of an Expr-Case node.
type CaseBranch struct {
	When Expr
	Then Expr
}

// Expr is a tagged expression tree: leaves Column/Literal/Parameter,
// and internal nodes Binary/Unary/Function/Case/Subquery/Exists/In/
// Between/Cast/Window/raw fragments.
type Expr struct {
	kind ExprKind

	// Column
	column string
	table  string // optional table qualifier

	// Literal
	literal sqlval.Value

	// Binary/Unary
	op    string
	left  *Expr
	right *Expr

	// Function
	fname string
	args  []Expr

	// Case
	branches []CaseBranch
	elseExpr *Expr

	// Subquery / Exists
	subquery *SelectQuery

	// In
	inList    []Expr
	inSubqry  *SelectQuery
	inNegated bool

	// Between
	betweenLow  *Expr
	betweenHigh *Expr
	notBetween  bool

	// Cast
	castType string

	// Window
	window *WindowSpec

	// Raw
	raw       string
	rawParams []Expr
}

// Column references a bare column name, unqualified by table.
func Column(name string) Expr { return Expr{kind: ExprColumn, column: name} }

// TableColumn references a column qualified by table or alias, used
// by joins and eager-loading to disambiguate same-named columns.
func TableColumn(table, name string) Expr {
	return Expr{kind: ExprColumn, column: name, table: table}
}

// Literal wraps a constant Value directly in the tree (as opposed to
// Param, which is bound out-of-band at render time).
func Literal(v sqlval.Value) Expr { return Expr{kind: ExprLiteral, literal: v} }

// Param inserts a bind parameter; its value is supplied at render time
// via the builder's parameter list, never interpolated into the SQL
// text.
func Param(v sqlval.Value) Expr { return Expr{kind: ExprParameter, literal: v} }

func binary(op string, l, r Expr) Expr {
	return Expr{kind: ExprBinary, op: op, left: &l, right: &r}
}

func (e Expr) Eq(rhs Expr) Expr          { return binary("=", e, rhs) }
func (e Expr) Neq(rhs Expr) Expr         { return binary("<>", e, rhs) }
func (e Expr) Gt(rhs Expr) Expr          { return binary(">", e, rhs) }
func (e Expr) Gte(rhs Expr) Expr         { return binary(">=", e, rhs) }
func (e Expr) Lt(rhs Expr) Expr          { return binary("<", e, rhs) }
func (e Expr) Lte(rhs Expr) Expr         { return binary("<=", e, rhs) }
func (e Expr) And(rhs Expr) Expr         { return binary("AND", e, rhs) }
func (e Expr) Or(rhs Expr) Expr          { return binary("OR", e, rhs) }
func (e Expr) Like(rhs Expr) Expr        { return binary("LIKE", e, rhs) }
func (e Expr) NotLike(rhs Expr) Expr     { return binary("NOT LIKE", e, rhs) }
func (e Expr) Concat(rhs Expr) Expr      { return binary("||", e, rhs) }
func (e Expr) Add(rhs Expr) Expr         { return binary("+", e, rhs) }
func (e Expr) Sub(rhs Expr) Expr         { return binary("-", e, rhs) }
func (e Expr) Mul(rhs Expr) Expr         { return binary("*", e, rhs) }
func (e Expr) Div(rhs Expr) Expr         { return binary("/", e, rhs) }

// EqValue, GtValue, etc. are convenience wrappers binding the RHS as a
// Param, the common case of "column op literal value".
func (e Expr) EqValue(v sqlval.Value) Expr  { return e.Eq(Param(v)) }
func (e Expr) NeqValue(v sqlval.Value) Expr { return e.Neq(Param(v)) }
func (e Expr) GtValue(v sqlval.Value) Expr  { return e.Gt(Param(v)) }
func (e Expr) GteValue(v sqlval.Value) Expr { return e.Gte(Param(v)) }
func (e Expr) LtValue(v sqlval.Value) Expr  { return e.Lt(Param(v)) }
func (e Expr) LteValue(v sqlval.Value) Expr { return e.Lte(Param(v)) }

// Not negates a boolean expression.
func Not(e Expr) Expr { return Expr{kind: ExprUnary, op: "NOT", left: &e} }

// IsNull/IsNotNull render IS [NOT] NULL.
func (e Expr) IsNull() Expr    { return Expr{kind: ExprUnary, op: "IS NULL", left: &e} }
func (e Expr) IsNotNull() Expr { return Expr{kind: ExprUnary, op: "IS NOT NULL", left: &e} }

// Func builds a Function(name, args) node, e.g. Func("COUNT", Column("*")).
func Func(name string, args ...Expr) Expr {
	return Expr{kind: ExprFunction, fname: name, args: args}
}

// Case builds a CASE WHEN ... THEN ... [ELSE ...] END node.
func Case(branches []CaseBranch, elseExpr *Expr) Expr {
	return Expr{kind: ExprCase, branches: branches, elseExpr: elseExpr}
}

// Subquery wraps a SelectQuery as a scalar/row expression, e.g. inside
// an IN or a SELECT list.
func Subquery(q *SelectQuery) Expr { return Expr{kind: ExprSubquery, subquery: q} }

// Exists wraps a SelectQuery in EXISTS(...).
func Exists(q *SelectQuery) Expr { return Expr{kind: ExprExists, subquery: q} }

// NotExists wraps a SelectQuery in NOT EXISTS(...).
func NotExists(q *SelectQuery) Expr {
	return Expr{kind: ExprUnary, op: "NOT", left: exprPtr(Expr{kind: ExprExists, subquery: q})}
}

func exprPtr(e Expr) *Expr { return &e }

// In builds `lhs IN (v1, v2, ...)` against a literal list of Values.
func (e Expr) In(values ...sqlval.Value) Expr {
	list := make([]Expr, len(values))
	for i, v := range values {
		list[i] = Param(v)
	}
	return Expr{kind: ExprIn, left: &e, inList: list}
}

// NotIn is the negated form of In.
func (e Expr) NotIn(values ...sqlval.Value) Expr {
	x := e.In(values...)
	x.inNegated = true
	return x
}

// InSubquery builds `lhs IN (SELECT ...)`.
func (e Expr) InSubquery(q *SelectQuery) Expr {
	return Expr{kind: ExprIn, left: &e, inSubqry: q}
}

// NotInSubquery builds `lhs NOT IN (SELECT ...)`.
func (e Expr) NotInSubquery(q *SelectQuery) Expr {
	x := e.InSubquery(q)
	x.inNegated = true
	return x
}

// Between builds `lhs BETWEEN low AND high`.
func (e Expr) Between(low, high Expr) Expr {
	return Expr{kind: ExprBetween, left: &e, betweenLow: &low, betweenHigh: &high}
}

// NotBetween builds `lhs NOT BETWEEN low AND high`.
func (e Expr) NotBetween(low, high Expr) Expr {
	x := e.Between(low, high)
	x.notBetween = true
	return x
}

// Cast builds `CAST(e AS sqlType)`. sqlType is dialect-opaque text
// (e.g. "INTEGER", "NUMERIC(10,2)") rendered verbatim.
func (e Expr) Cast(sqlType string) Expr {
	return Expr{kind: ExprCast, left: &e, castType: sqlType}
}

// AsWindow attaches a window frame/partition/order spec to an
// aggregate/ranking Expr, producing `fn(...) OVER (...)`.
func (e Expr) AsWindow(w WindowSpec) Expr {
	return Expr{kind: ExprWindow, left: &e, window: &w}
}

// Raw inserts a verbatim SQL fragment. paramExprs are rendered inline
// (each contributing its own parameters) wherever the fragment
// contains a `?` placeholder token, substituted in order; callers
// needing no interpolation should pass no paramExprs.
func Raw(fragment string, paramExprs ...Expr) Expr {
	return Expr{kind: ExprRaw, raw: fragment, rawParams: paramExprs}
}

// renderCtx accumulates parameters and the target dialect while a
// tree is rendered to SQL text.
type renderCtx struct {
	dialect Dialect
	params  []sqlval.Value
}

func (c *renderCtx) bind(v sqlval.Value) string {
	c.params = append(c.params, v)
	return c.dialect.Placeholder(len(c.params))
}

func (e Expr) render(c *renderCtx) (string, error) {
	switch e.kind {
	case ExprColumn:
		if e.column == "*" {
			if e.table != "" {
				return c.dialect.QuoteIdent(e.table) + ".*", nil
			}
			return "*", nil
		}
		if e.table != "" {
			return c.dialect.QuoteIdent(e.table) + "." + c.dialect.QuoteIdent(e.column), nil
		}
		return c.dialect.QuoteIdent(e.column), nil

	case ExprLiteral:
		return renderLiteral(e.literal, c.dialect)

	case ExprParameter:
		return c.bind(e.literal), nil

	case ExprBinary:
		l, err := e.left.render(c)
		if err != nil {
			return "", err
		}
		r, err := e.right.render(c)
		if err != nil {
			return "", err
		}
		if e.op == "AND" || e.op == "OR" {
			return fmt.Sprintf("(%s %s %s)", l, e.op, r), nil
		}
		return fmt.Sprintf("%s %s %s", l, e.op, r), nil

	case ExprUnary:
		l, err := e.left.render(c)
		if err != nil {
			return "", err
		}
		switch e.op {
		case "NOT":
			return fmt.Sprintf("NOT (%s)", l), nil
		case "IS NULL", "IS NOT NULL":
			return fmt.Sprintf("%s %s", l, e.op), nil
		default:
			return fmt.Sprintf("%s %s", e.op, l), nil
		}

	case ExprFunction:
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			r, err := a.render(c)
			if err != nil {
				return "", err
			}
			parts[i] = r
		}
		return fmt.Sprintf("%s(%s)", e.fname, strings.Join(parts, ", ")), nil

	case ExprCase:
		var b strings.Builder
		b.WriteString("CASE")
		for _, br := range e.branches {
			w, err := br.When.render(c)
			if err != nil {
				return "", err
			}
			t, err := br.Then.render(c)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, " WHEN %s THEN %s", w, t)
		}
		if e.elseExpr != nil {
			el, err := e.elseExpr.render(c)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, " ELSE %s", el)
		}
		b.WriteString(" END")
		return b.String(), nil

	case ExprSubquery:
		sql, params, err := e.subquery.Build(c.dialect)
		if err != nil {
			return "", err
		}
		c.params = append(c.params, params...)
		return "(" + reindexPlaceholders(sql, c.dialect, len(c.params)-len(params)) + ")", nil

	case ExprExists:
		sql, params, err := e.subquery.Build(c.dialect)
		if err != nil {
			return "", err
		}
		c.params = append(c.params, params...)
		return "EXISTS (" + reindexPlaceholders(sql, c.dialect, len(c.params)-len(params)) + ")", nil

	case ExprIn:
		l, err := e.left.render(c)
		if err != nil {
			return "", err
		}
		op := "IN"
		if e.inNegated {
			op = "NOT IN"
		}
		if e.inSubqry != nil {
			sql, params, err := e.inSubqry.Build(c.dialect)
			if err != nil {
				return "", err
			}
			c.params = append(c.params, params...)
			return fmt.Sprintf("%s %s (%s)", l, op, reindexPlaceholders(sql, c.dialect, len(c.params)-len(params))), nil
		}
		if len(e.inList) == 0 {
			// An empty IN list is always false; NOT IN is always true.
			if e.inNegated {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		parts := make([]string, len(e.inList))
		for i, item := range e.inList {
			r, err := item.render(c)
			if err != nil {
				return "", err
			}
			parts[i] = r
		}
		return fmt.Sprintf("%s %s (%s)", l, op, strings.Join(parts, ", ")), nil

	case ExprBetween:
		l, err := e.left.render(c)
		if err != nil {
			return "", err
		}
		lo, err := e.betweenLow.render(c)
		if err != nil {
			return "", err
		}
		hi, err := e.betweenHigh.render(c)
		if err != nil {
			return "", err
		}
		op := "BETWEEN"
		if e.notBetween {
			op = "NOT BETWEEN"
		}
		return fmt.Sprintf("%s %s %s AND %s", l, op, lo, hi), nil

	case ExprCast:
		l, err := e.left.render(c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CAST(%s AS %s)", l, e.castType), nil

	case ExprWindow:
		inner, err := e.left.render(c)
		if err != nil {
			return "", err
		}
		win, err := e.window.render(c)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s OVER (%s)", inner, win), nil

	case ExprRaw:
		return renderRaw(e, c)

	default:
		return "", fmt.Errorf("query: unknown expr kind %d", e.kind)
	}
}

func renderRaw(e Expr, c *renderCtx) (string, error) {
	var b strings.Builder
	argIdx := 0
	for i := 0; i < len(e.raw); i++ {
		if e.raw[i] == '?' && argIdx < len(e.rawParams) {
			r, err := e.rawParams[argIdx].render(c)
			if err != nil {
				return "", err
			}
			b.WriteString(r)
			argIdx++
			continue
		}
		b.WriteByte(e.raw[i])
	}
	return b.String(), nil
}

func renderLiteral(v sqlval.Value, d Dialect) (string, error) {
	if v.Kind() == sqlval.KindDefault {
		return "DEFAULT", nil
	}
	if v.IsNull() {
		return "NULL", nil
	}
	if d.EmulatesBoolean() {
		if b, ok := v.AsBool(); ok {
			if b {
				return "1", nil
			}
			return "0", nil
		}
	}
	return v.String(), nil
}

// reindexPlaceholders rewrites a subquery's own $1.. placeholders (it
// was built starting its own numbering from 1) to continue from the
// outer query's current parameter count, for Postgres only; MySQL and
// SQLite's bare `?` needs no rewriting.
func reindexPlaceholders(sql string, d Dialect, base int) string {
	if d != Postgres {
		return sql
	}
	var b strings.Builder
	for i := 0; i < len(sql); i++ {
		if sql[i] == '$' && i+1 < len(sql) && sql[i+1] >= '0' && sql[i+1] <= '9' {
			j := i + 1
			n := 0
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				n = n*10 + int(sql[j]-'0')
				j++
			}
			fmt.Fprintf(&b, "$%d", n+base)
			i = j - 1
			continue
		}
		b.WriteByte(sql[i])
	}
	return b.String()
}
