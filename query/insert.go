package query

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// ConflictActionKind names the ON CONFLICT / ON DUPLICATE KEY
// resolution: DoNothing or DoUpdate(columns, where?).
type ConflictActionKind int

const (
	ConflictNone ConflictActionKind = iota
	ConflictDoNothing
	ConflictDoUpdate
)

// OnConflict describes the upsert resolution clause.
type OnConflict struct {
	Kind          ConflictActionKind
	TargetColumns []string // conflict target, e.g. the unique/PK columns
	UpdateColumns []string // columns to re-set on DoUpdate
	Where         *Expr    // optional predicate guarding DoUpdate
}

// InsertQuery builds INSERT INTO ... for one or many rows.
type InsertQuery struct {
	table      string
	columns    []string
	rows       [][]sqlval.Value
	returning  []string
	onConflict *OnConflict
}

func NewInsert(table string, columns []string) *InsertQuery {
	return &InsertQuery{table: table, columns: columns}
}

// Row appends one row of values, in the same order as columns. A
// Default() value renders as the literal DEFAULT token.
func (q *InsertQuery) Row(values ...sqlval.Value) *InsertQuery {
	if len(values) != len(q.columns) {
		panic(fmt.Sprintf("query: insert row has %d values, want %d columns", len(values), len(q.columns)))
	}
	q.rows = append(q.rows, values)
	return q
}

func (q *InsertQuery) Returning(columns ...string) *InsertQuery {
	q.returning = append(q.returning, columns...)
	return q
}

func (q *InsertQuery) OnConflictDoNothing(targetColumns ...string) *InsertQuery {
	q.onConflict = &OnConflict{Kind: ConflictDoNothing, TargetColumns: targetColumns}
	return q
}

func (q *InsertQuery) OnConflictDoUpdate(targetColumns, updateColumns []string, where *Expr) *InsertQuery {
	q.onConflict = &OnConflict{Kind: ConflictDoUpdate, TargetColumns: targetColumns, UpdateColumns: updateColumns, Where: where}
	return q
}

// Build renders the INSERT to (sql, params) for the given dialect.
// All rows of a bulk insert share one column set.
func (q *InsertQuery) Build(d Dialect) (string, []sqlval.Value, error) {
	if len(q.rows) == 0 {
		return "", nil, fmt.Errorf("query: insert has no rows")
	}
	if q.returning != nil && !d.SupportsReturning() {
		return "", nil, fmt.Errorf("query: RETURNING is not supported on %s", d)
	}

	c := &renderCtx{dialect: d}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (", d.QuoteIdent(q.table))
	for i, col := range q.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(col))
	}
	b.WriteString(") VALUES ")

	for ri, row := range q.rows {
		if ri > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for ci, v := range row {
			if ci > 0 {
				b.WriteString(", ")
			}
			if v.Kind() == sqlval.KindDefault {
				b.WriteString("DEFAULT")
				continue
			}
			b.WriteString(c.bind(v))
		}
		b.WriteString(")")
	}

	if q.onConflict != nil {
		clause, err := renderOnConflict(d, *q.onConflict, c)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ")
		b.WriteString(clause)
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

func renderOnConflict(d Dialect, oc OnConflict, c *renderCtx) (string, error) {
	if d.UsesOnConflict() {
		target := ""
		if len(oc.TargetColumns) > 0 {
			quoted := make([]string, len(oc.TargetColumns))
			for i, t := range oc.TargetColumns {
				quoted[i] = d.QuoteIdent(t)
			}
			target = fmt.Sprintf("(%s) ", strings.Join(quoted, ", "))
		}
		switch oc.Kind {
		case ConflictDoNothing:
			return fmt.Sprintf("ON CONFLICT %sDO NOTHING", target), nil
		case ConflictDoUpdate:
			sets := make([]string, len(oc.UpdateColumns))
			for i, col := range oc.UpdateColumns {
				sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", d.QuoteIdent(col), d.QuoteIdent(col))
			}
			clause := fmt.Sprintf("ON CONFLICT %sDO UPDATE SET %s", target, strings.Join(sets, ", "))
			if oc.Where != nil {
				w, err := oc.Where.render(c)
				if err != nil {
					return "", err
				}
				clause += " WHERE " + w
			}
			return clause, nil
		}
		return "", nil
	}

	// MySQL: ON DUPLICATE KEY UPDATE has no DO-NOTHING form; emulate it
	// by setting the first column to itself (a no-op write).
	switch oc.Kind {
	case ConflictDoNothing:
		if len(oc.TargetColumns) == 0 {
			return "", fmt.Errorf("query: MySQL OnConflictDoNothing needs at least one column to no-op on")
		}
		col := d.QuoteIdent(oc.TargetColumns[0])
		return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = %s", col, col), nil
	case ConflictDoUpdate:
		if oc.Where != nil {
			return "", fmt.Errorf("query: MySQL ON DUPLICATE KEY UPDATE does not support a WHERE guard")
		}
		sets := make([]string, len(oc.UpdateColumns))
		for i, col := range oc.UpdateColumns {
			q := d.QuoteIdent(col)
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
		}
		return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s", strings.Join(sets, ", ")), nil
	}
	return "", nil
}
