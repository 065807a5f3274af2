// Package dberr defines the error taxonomy shared by every driver and
// the layers built on top of them.
package dberr

import "fmt"

// Kind classifies an Error.
type Kind int

const (
	KindConnectionAuthentication Kind = iota
	KindConnectionNetwork
	KindConnectionSsl
	KindConnectionTimeout
	KindProtocol
	KindQuerySyntax
	KindQueryTypeMismatch
	KindConstraintUniqueViolation
	KindConstraintForeignKeyViolation
	KindConstraintNotNullViolation
	KindConstraintCheckViolation
	KindTransaction
	KindData
	KindPool
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindConnectionAuthentication:
		return "Connection.Authentication"
	case KindConnectionNetwork:
		return "Connection.Network"
	case KindConnectionSsl:
		return "Connection.Ssl"
	case KindConnectionTimeout:
		return "Connection.Timeout"
	case KindProtocol:
		return "Protocol"
	case KindQuerySyntax:
		return "Query.Syntax"
	case KindQueryTypeMismatch:
		return "Query.TypeMismatch"
	case KindConstraintUniqueViolation:
		return "Constraint.UniqueViolation"
	case KindConstraintForeignKeyViolation:
		return "Constraint.ForeignKeyViolation"
	case KindConstraintNotNullViolation:
		return "Constraint.NotNullViolation"
	case KindConstraintCheckViolation:
		return "Constraint.CheckViolation"
	case KindTransaction:
		return "Transaction"
	case KindData:
		return "Data"
	case KindPool:
		return "Pool"
	default:
		return "Custom"
	}
}

// Error is the module's single error type. NativeCode carries the
// driver-reported code verbatim (SQLSTATE string, MySQL error number as
// a string, SQLite extended result code as a string) for callers that
// need it; it is empty when an Error wasn't produced from a driver
// response.
type Error struct {
	Kind       Kind
	Message    string
	NativeCode string
	Table      string  // populated when the server reports the offending table
	Column     string  // populated when the server reports the offending column
	Constraint string  // populated when the server reports the offending constraint
	cause      error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.NativeCode != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.NativeCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is against a Kind sentinel by comparing the Kind
// field, so callers can write errors.Is(err, dberr.New(dberr.KindConstraintUniqueViolation, "")).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
