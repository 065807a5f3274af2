package dberr

import "strconv"

// SQLite extended result codes this module distinguishes, per spec
// §4.2 and §4.5. Primary result codes (e.g. SQLITE_CONSTRAINT = 19)
// are refined into extended codes by the low byte of these values
// shifted left 8, matching sqlite3.h's SQLITE_CONSTRAINT_* scheme.
const (
	sqliteConstraint           = 19
	sqliteConstraintUnique     = sqliteConstraint | (8 << 8)
	sqliteConstraintPrimaryKey = sqliteConstraint | (6 << 8)
	sqliteConstraintForeignKey = sqliteConstraint | (3 << 8)
	sqliteConstraintNotNull    = sqliteConstraint | (5 << 8)
	sqliteConstraintCheck      = sqliteConstraint | (1 << 8)
	sqliteBusy                 = 5
	sqliteLocked               = 6
	sqliteCantOpen             = 14
	sqliteAuth                 = 23
)

// FromSQLiteExtendedCode maps a SQLite extended result code to a Kind.
func FromSQLiteExtendedCode(code int, message string) *Error {
	e := &Error{Message: message, NativeCode: strconv.Itoa(code)}
	switch code {
	case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
		e.Kind = KindConstraintUniqueViolation
	case sqliteConstraintForeignKey:
		e.Kind = KindConstraintForeignKeyViolation
	case sqliteConstraintNotNull:
		e.Kind = KindConstraintNotNullViolation
	case sqliteConstraintCheck:
		e.Kind = KindConstraintCheckViolation
	case sqliteBusy, sqliteLocked:
		e.Kind = KindTransaction
	case sqliteCantOpen:
		e.Kind = KindConnectionNetwork
	case sqliteAuth:
		e.Kind = KindConnectionAuthentication
	default:
		switch code & 0xff {
		case sqliteConstraint:
			e.Kind = KindConstraintCheckViolation
		default:
			e.Kind = KindCustom
		}
	}
	return e
}
