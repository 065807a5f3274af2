package sqlite

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// decodeValue converts one column of a go-sqlite3 result row into a
// Value. SQLite itself only knows five storage classes (NULL, INTEGER,
// REAL, TEXT, BLOB); go-sqlite3 additionally special-cases declared
// types "date"/"datetime"/"timestamp" (parsed into time.Time) and
// "boolean" (parsed into bool) when decoding a TEXT/INTEGER column.
// The declared-type string (the same one schema/ddl emits for CREATE
// TABLE) disambiguates the rest: TINYINT/SMALLINT/INTEGER/BIGINT
// width, NUMERIC vs TEXT, UUID, JSON.
func decodeValue(declType string, raw driver.Value) (sqlval.Value, error) {
	if raw == nil {
		return sqlval.Null(), nil
	}
	upper := strings.ToUpper(declType)

	switch v := raw.(type) {
	case int64:
		switch {
		case upper == "BOOLEAN":
			return sqlval.Bool(v != 0), nil
		case upper == "TINYINT":
			return sqlval.TinyInt(int8(v)), nil
		case upper == "SMALLINT":
			return sqlval.SmallInt(int16(v)), nil
		case upper == "INTEGER" || upper == "INT":
			return sqlval.Int(int32(v)), nil
		case strings.HasPrefix(upper, "NUMERIC") || strings.HasPrefix(upper, "DECIMAL"):
			return sqlval.Decimal(strconv.FormatInt(v, 10)), nil
		default:
			return sqlval.BigInt(v), nil
		}
	case bool:
		return sqlval.Bool(v), nil
	case float64:
		switch {
		case strings.HasPrefix(upper, "NUMERIC") || strings.HasPrefix(upper, "DECIMAL"):
			// NUMERIC affinity stores "12.34" as REAL; render it back as
			// a canonical decimal string.
			return sqlval.Decimal(strconv.FormatFloat(v, 'f', -1, 64)), nil
		case upper == "FLOAT":
			return sqlval.Float(float32(v)), nil
		default:
			return sqlval.Double(v), nil
		}
	case []byte:
		return decodeTextLike(upper, string(v), v)
	case string:
		return decodeTextLike(upper, v, nil)
	case time.Time:
		switch upper {
		case "DATE":
			return sqlval.FromTime(v, sqlval.KindDate)
		case "TIME":
			return sqlval.FromTime(v, sqlval.KindTime)
		case "TIMESTAMPTZ":
			return sqlval.FromTime(v.UTC(), sqlval.KindTimestampTz)
		default:
			return sqlval.FromTime(v, sqlval.KindTimestamp)
		}
	default:
		return sqlval.Value{}, fmt.Errorf("sqlite: unsupported driver value type %T", raw)
	}
}

// decodeTextLike handles the TEXT/BLOB storage classes shared by
// UUID, JSON, NUMERIC (decimal), and plain Text/Bytes columns. rawBytes
// is non-nil only when the source value was a []byte, preserved so
// BLOB columns round-trip as Bytes rather than Text.
func decodeTextLike(upper, s string, rawBytes []byte) (sqlval.Value, error) {
	switch {
	case upper == "UUID":
		if rawBytes != nil && len(rawBytes) == 16 {
			u, err := uuid.FromBytes(rawBytes)
			if err != nil {
				return sqlval.Value{}, fmt.Errorf("sqlite: decode uuid blob: %w", err)
			}
			return sqlval.Uuid(u), nil
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return sqlval.Value{}, fmt.Errorf("sqlite: decode uuid %q: %w", s, err)
		}
		return sqlval.Uuid(u), nil
	case upper == "JSON":
		return sqlval.RawJson([]byte(s)), nil
	case strings.HasPrefix(upper, "NUMERIC"):
		return sqlval.Decimal(s), nil
	case rawBytes != nil && upper != "TEXT" && !strings.HasPrefix(upper, "VARCHAR"):
		return sqlval.Bytes(rawBytes), nil
	default:
		return sqlval.Text(s), nil
	}
}

// encodeParam renders a bind parameter as the driver.Value go-sqlite3
// expects: SQLite has no native boolean/temporal/UUID storage, so
// those kinds are folded into the closest storage class (INTEGER 0/1,
// ISO-8601 text, and a 16-byte BLOB respectively), matching the
// declared-type conventions decodeValue reads back.
func encodeParam(v sqlval.Value) (driver.Value, error) {
	switch v.Kind() {
	case sqlval.KindNull, sqlval.KindDefault:
		return nil, nil
	case sqlval.KindBool:
		b, _ := v.AsBool()
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case sqlval.KindTinyInt, sqlval.KindSmallInt, sqlval.KindInt, sqlval.KindBigInt:
		n, _ := v.AsInt64()
		return n, nil
	case sqlval.KindFloat, sqlval.KindDouble:
		f, _ := v.AsFloat64()
		return f, nil
	case sqlval.KindText, sqlval.KindDecimal:
		s, _ := v.AsString()
		return s, nil
	case sqlval.KindBytes:
		b, _ := v.AsBytes()
		return b, nil
	case sqlval.KindJson:
		b, _ := v.AsBytes()
		return b, nil
	case sqlval.KindUuid:
		u, _ := v.AsUuid()
		return u[:], nil
	case sqlval.KindDate:
		t, _ := v.AsTime()
		return t.Format("2006-01-02"), nil
	case sqlval.KindTime:
		t, _ := v.AsTime()
		return t.Format("15:04:05.999999"), nil
	case sqlval.KindTimestamp, sqlval.KindTimestampTz:
		t, _ := v.AsTime()
		return t.UTC().Format("2006-01-02 15:04:05.999999"), nil
	case sqlval.KindArray:
		arr, _ := v.AsArray()
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = e.String()
		}
		return strings.Join(parts, ","), nil
	default:
		return nil, fmt.Errorf("sqlite: cannot encode value of kind %s", v.Kind())
	}
}
