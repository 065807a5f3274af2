package sqlval

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SQLTypeKind names the semantic SQL type a FieldInfo declares,
// independent of any dialect's concrete spelling.
type SQLTypeKind int

const (
	SQLBoolean SQLTypeKind = iota
	SQLTinyInt
	SQLSmallInt
	SQLInteger
	SQLBigInt
	SQLFloat
	SQLDouble
	SQLDecimal
	SQLVarchar
	SQLText
	SQLBinary
	SQLDate
	SQLTime
	SQLTimestamp
	SQLTimestampTz
	SQLUUID
	SQLJSON
	// SQLCustom carries a dialect-opaque override string verbatim,
	// used when an override doesn't parse into a structured variant.
	SQLCustom
)

// SQLType is the structured, dialect-independent rendering of a
// column's declared type, as produced by inference from a Go field
// type or by parsing an explicit override string.
type SQLType struct {
	Kind      SQLTypeKind
	Length    int    // Varchar/Binary length, 0 = unspecified
	Precision int    // Decimal precision
	Scale     int    // Decimal scale
	Raw       string // verbatim text for SQLCustom
}

func (t SQLType) String() string {
	switch t.Kind {
	case SQLVarchar:
		if t.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", t.Length)
		}
		return "VARCHAR"
	case SQLDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case SQLCustom:
		return t.Raw
	default:
		return kindNames[t.Kind]
	}
}

var kindNames = map[SQLTypeKind]string{
	SQLBoolean:     "BOOLEAN",
	SQLTinyInt:     "TINYINT",
	SQLSmallInt:    "SMALLINT",
	SQLInteger:     "INTEGER",
	SQLBigInt:      "BIGINT",
	SQLFloat:       "FLOAT",
	SQLDouble:      "DOUBLE",
	SQLText:        "TEXT",
	SQLBinary:      "BLOB",
	SQLDate:        "DATE",
	SQLTime:        "TIME",
	SQLTimestamp:   "TIMESTAMP",
	SQLTimestampTz: "TIMESTAMPTZ",
	SQLUUID:        "UUID",
	SQLJSON:        "JSON",
}

var (
	timeType = reflect.TypeOf(time.Time{})
)

// InferSQLType infers the narrowest semantic SQL type for a declared
// Go field type, preferring the narrowest match; unknown types fall
// back to Text.
func InferSQLType(t reflect.Type) SQLType {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return SQLType{Kind: SQLBoolean}
	case reflect.Int8, reflect.Uint8:
		return SQLType{Kind: SQLTinyInt}
	case reflect.Int16, reflect.Uint16:
		return SQLType{Kind: SQLSmallInt}
	case reflect.Int32, reflect.Uint32:
		return SQLType{Kind: SQLInteger}
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		return SQLType{Kind: SQLBigInt}
	case reflect.Float32:
		return SQLType{Kind: SQLFloat}
	case reflect.Float64:
		return SQLType{Kind: SQLDouble}
	case reflect.String:
		return SQLType{Kind: SQLVarchar, Length: 255}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return SQLType{Kind: SQLBinary}
		}
		return SQLType{Kind: SQLText}
	case reflect.Struct:
		if t == timeType {
			return SQLType{Kind: SQLTimestampTz}
		}
		return SQLType{Kind: SQLText}
	default:
		return SQLType{Kind: SQLText}
	}
}

var (
	varcharRE = regexp.MustCompile(`(?i)^(?:VARCHAR|CHARACTER VARYING)\s*\(\s*(\d+)\s*\)$`)
	charRE    = regexp.MustCompile(`(?i)^CHAR\s*\(\s*(\d+)\s*\)$`)
	decimalRE = regexp.MustCompile(`(?i)^(?:NUMERIC|DECIMAL)\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)
	binaryRE  = regexp.MustCompile(`(?i)^(?:BLOB|BYTEA|VARBINARY|BINARY)\s*(?:\(\s*(\d+)\s*\))?$`)
)

// ParseOverride parses an explicit dialect-opaque override string
// (e.g. "VARCHAR(100)", "NUMERIC(10,2)") into a structured SQLType
// when well-formed, else falls back to SQLCustom carrying the raw
// text verbatim.
func ParseOverride(raw string) SQLType {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)

	switch {
	case upper == "BOOLEAN" || upper == "BOOL":
		return SQLType{Kind: SQLBoolean}
	case upper == "TINYINT":
		return SQLType{Kind: SQLTinyInt}
	case upper == "SMALLINT":
		return SQLType{Kind: SQLSmallInt}
	case upper == "INTEGER" || upper == "INT":
		return SQLType{Kind: SQLInteger}
	case upper == "BIGINT":
		return SQLType{Kind: SQLBigInt}
	case upper == "FLOAT" || upper == "REAL":
		return SQLType{Kind: SQLFloat}
	case upper == "DOUBLE" || upper == "DOUBLE PRECISION":
		return SQLType{Kind: SQLDouble}
	case upper == "TEXT":
		return SQLType{Kind: SQLText}
	case upper == "DATE":
		return SQLType{Kind: SQLDate}
	case upper == "TIME":
		return SQLType{Kind: SQLTime}
	case upper == "TIMESTAMP":
		return SQLType{Kind: SQLTimestamp}
	case upper == "TIMESTAMPTZ" || upper == "TIMESTAMP WITH TIME ZONE":
		return SQLType{Kind: SQLTimestampTz}
	case upper == "UUID":
		return SQLType{Kind: SQLUUID}
	case upper == "JSON" || upper == "JSONB":
		return SQLType{Kind: SQLJSON}
	}

	if m := varcharRE.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		return SQLType{Kind: SQLVarchar, Length: n}
	}
	if m := charRE.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		return SQLType{Kind: SQLVarchar, Length: n}
	}
	if m := decimalRE.FindStringSubmatch(trimmed); m != nil {
		p, _ := strconv.Atoi(m[1])
		s, _ := strconv.Atoi(m[2])
		return SQLType{Kind: SQLDecimal, Precision: p, Scale: s}
	}
	if binaryRE.MatchString(trimmed) {
		return SQLType{Kind: SQLBinary}
	}

	return SQLType{Kind: SQLCustom, Raw: raw}
}
