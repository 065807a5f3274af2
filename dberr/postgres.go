package dberr

// FromPostgresSQLSTATE maps a PostgreSQL SQLSTATE code to a Kind,
// following the standard class groupings (class 08 = connection
// exceptions, class 23 = integrity constraint violations, etc.).
func FromPostgresSQLSTATE(sqlstate, message string) *Error {
	e := &Error{Message: message, NativeCode: sqlstate}
	switch sqlstate {
	case "23505":
		e.Kind = KindConstraintUniqueViolation
	case "23503":
		e.Kind = KindConstraintForeignKeyViolation
	case "23502":
		e.Kind = KindConstraintNotNullViolation
	case "23514":
		e.Kind = KindConstraintCheckViolation
	case "28000", "28P01":
		e.Kind = KindConnectionAuthentication
	case "08000", "08003", "08006", "08001", "08004", "08007":
		e.Kind = KindConnectionNetwork
	case "57014":
		e.Kind = KindConnectionTimeout
	default:
		switch sqlstateClass(sqlstate) {
		case "42":
			e.Kind = KindQuerySyntax
		case "22":
			e.Kind = KindQueryTypeMismatch
		case "23":
			e.Kind = KindConstraintCheckViolation
		case "25", "40":
			e.Kind = KindTransaction
		case "53":
			e.Kind = KindPool
		default:
			e.Kind = KindCustom
		}
	}
	return e
}

func sqlstateClass(sqlstate string) string {
	if len(sqlstate) < 2 {
		return sqlstate
	}
	return sqlstate[:2]
}
