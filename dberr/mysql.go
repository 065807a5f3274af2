package dberr

import "strconv"

// MySQL server error numbers this module distinguishes by name. The
// full list is documented at
// https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html;
// only the codes this module's Kind taxonomy cares about are named
// here, everything else falls through to KindCustom.
const (
	myErrDupEntry           = 1062
	myErrNoReferencedRow    = 1216
	myErrRowIsReferenced    = 1217
	myErrRowIsReferenced2   = 1451
	myErrNoReferencedRow2   = 1452
	myErrBadNullError       = 1048
	myErrParseError         = 1064
	myErrAccessDeniedError  = 1045
	myErrDbAccessDenied     = 1044
	myErrLockWaitTimeout    = 1205
	myErrLockDeadlock       = 1213
	myErrConCount           = 1040
	myErrTooManyConnections = 1203
)

// FromMySQLErrorNumber maps a MySQL error number (as sent in an ERR
// packet) to a Kind.
func FromMySQLErrorNumber(number int, message string) *Error {
	e := &Error{Message: message, NativeCode: strconv.Itoa(number)}
	switch number {
	case myErrDupEntry:
		e.Kind = KindConstraintUniqueViolation
	case myErrNoReferencedRow, myErrRowIsReferenced, myErrRowIsReferenced2, myErrNoReferencedRow2:
		e.Kind = KindConstraintForeignKeyViolation
	case myErrBadNullError:
		e.Kind = KindConstraintNotNullViolation
	case myErrParseError:
		e.Kind = KindQuerySyntax
	case myErrAccessDeniedError, myErrDbAccessDenied:
		e.Kind = KindConnectionAuthentication
	case myErrLockWaitTimeout, myErrLockDeadlock:
		e.Kind = KindTransaction
	case myErrConCount, myErrTooManyConnections:
		e.Kind = KindPool
	default:
		e.Kind = KindCustom
	}
	return e
}
