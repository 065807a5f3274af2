package query


// StructuralHash computes a 64-bit hash of the builder tree excluding
// parameter values, used as the statement-cache key. Two
// structurally identical queries (same shape, different literal
// parameter values bound via Param) hash identically so the compiled
// SQL can be reused across calls with different arguments.
func (q *SelectQuery) StructuralHash(d Dialect) uint64 {
	h := fnvOffset64
	h = mix(h, uint64(d))
	h = mixString(h, q.table)
	h = mixString(h, q.alias)
	h = mixBool(h, q.distinct)
	h = mixBool(h, q.forUpdate)
	for i, col := range q.columns {
		h = mixExpr(h, col)
		h = mixString(h, q.colAlias[i])
	}
	for _, j := range q.joins {
		h = mix(h, uint64(j.Kind))
		h = mixString(h, j.Table)
		h = mixString(h, j.Alias)
		h = mixBool(h, j.Lateral)
		if j.On != nil {
			h = mixExpr(h, *j.On)
		}
		if j.Subquery != nil {
			h = mix(h, j.Subquery.StructuralHash(d))
		}
	}
	for _, w := range q.where {
		h = mixBool(h, w.or)
		h = mixExpr(h, w.expr)
	}
	for _, g := range q.groupBy {
		h = mixExpr(h, g)
	}
	for _, hv := range q.having {
		h = mixBool(h, hv.or)
		h = mixExpr(h, hv.expr)
	}
	for _, o := range q.order {
		h = mixExpr(h, o.Expr)
		h = mix(h, uint64(o.Direction))
		h = mix(h, uint64(o.Nulls))
	}
	h = mixBool(h, q.hasLimit)
	h = mixBool(h, q.hasOffset)
	// limit/offset values themselves are bind-able quantities in spirit
	// but this module renders them as literals; excluding their numeric
	// value from the hash (only whether they're present) would collide
	// distinct queries, so they're mixed in too.
	h = mix(h, uint64(q.limit))
	h = mix(h, uint64(q.offset))
	for _, so := range q.setOps {
		h = mix(h, uint64(so.kind))
		h = mix(h, so.query.StructuralHash(d))
	}
	return h
}

func mixExpr(h uint64, e Expr) uint64 {
	h = mix(h, uint64(e.kind))
	switch e.kind {
	case ExprColumn:
		h = mixString(h, e.table)
		h = mixString(h, e.column)
	case ExprLiteral:
		h = mix(h, e.literal.Hash())
	case ExprParameter:
		// Parameter values are excluded from the structural hash by
		// design: the cache key must not depend on bound data.
	case ExprBinary:
		h = mixString(h, e.op)
		h = mixExpr(h, *e.left)
		h = mixExpr(h, *e.right)
	case ExprUnary:
		h = mixString(h, e.op)
		h = mixExpr(h, *e.left)
	case ExprFunction:
		h = mixString(h, e.fname)
		for _, a := range e.args {
			h = mixExpr(h, a)
		}
	case ExprCase:
		for _, br := range e.branches {
			h = mixExpr(h, br.When)
			h = mixExpr(h, br.Then)
		}
		if e.elseExpr != nil {
			h = mixExpr(h, *e.elseExpr)
		}
	case ExprSubquery, ExprExists:
		h = mix(h, e.subquery.StructuralHash(Postgres))
	case ExprIn:
		h = mixExpr(h, *e.left)
		h = mixBool(h, e.inNegated)
		for _, item := range e.inList {
			h = mixExpr(h, item)
		}
		if e.inSubqry != nil {
			h = mix(h, e.inSubqry.StructuralHash(Postgres))
		}
	case ExprBetween:
		h = mixExpr(h, *e.left)
		h = mixExpr(h, *e.betweenLow)
		h = mixExpr(h, *e.betweenHigh)
		h = mixBool(h, e.notBetween)
	case ExprCast:
		h = mixExpr(h, *e.left)
		h = mixString(h, e.castType)
	case ExprWindow:
		h = mixExpr(h, *e.left)
		if e.window != nil {
			for _, p := range e.window.Partition {
				h = mixExpr(h, p)
			}
			for _, o := range e.window.Order {
				h = mixExpr(h, o.Expr)
			}
		}
	case ExprRaw:
		h = mixString(h, e.raw)
		for _, p := range e.rawParams {
			h = mixExpr(h, p)
		}
	}
	return h
}

const (
	fnvOffset64 = uint64(14695981039346656037)
	fnvPrime64  = uint64(1099511628211)
)

func mix(h, x uint64) uint64 {
	h ^= x
	h *= fnvPrime64
	return h
}

func mixBool(h uint64, b bool) uint64 {
	if b {
		return mix(h, 1)
	}
	return mix(h, 0)
}

func mixString(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return mix(h, uint64(len(s)))
}
