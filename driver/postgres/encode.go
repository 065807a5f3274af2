package postgres

import (
	"fmt"
	"strconv"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// encodeParamText renders a bind parameter in PostgreSQL's text wire
// format. The driver always sends parameters as text (format code 0)
// and requests binary only for result columns whose OID supportsBinary
// allows; text round-trips every Value kind uniformly.
func encodeParamText(v sqlval.Value) (isNull bool, text string, err error) {
	switch v.Kind() {
	case sqlval.KindNull, sqlval.KindDefault:
		return true, "", nil
	case sqlval.KindBool:
		b, _ := v.AsBool()
		if b {
			return false, "t", nil
		}
		return false, "f", nil
	case sqlval.KindTinyInt, sqlval.KindSmallInt, sqlval.KindInt, sqlval.KindBigInt:
		n, _ := v.AsInt64()
		return false, strconv.FormatInt(n, 10), nil
	case sqlval.KindFloat, sqlval.KindDouble:
		f, _ := v.AsFloat64()
		return false, strconv.FormatFloat(f, 'g', -1, 64), nil
	case sqlval.KindDecimal:
		s, _ := v.AsString()
		return false, s, nil
	case sqlval.KindText:
		s, _ := v.AsString()
		return false, s, nil
	case sqlval.KindBytes:
		b, _ := v.AsBytes()
		return false, "\\x" + hexEncode(b), nil
	case sqlval.KindJson:
		b, _ := v.AsBytes()
		return false, string(b), nil
	case sqlval.KindUuid:
		u, _ := v.AsUuid()
		return false, u.String(), nil
	case sqlval.KindDate:
		t, _ := v.AsTime()
		return false, t.Format("2006-01-02"), nil
	case sqlval.KindTime:
		t, _ := v.AsTime()
		return false, t.Format("15:04:05.999999"), nil
	case sqlval.KindTimestamp:
		t, _ := v.AsTime()
		return false, t.Format("2006-01-02 15:04:05.999999"), nil
	case sqlval.KindTimestampTz:
		t, _ := v.AsTime()
		return false, t.UTC().Format("2006-01-02 15:04:05.999999") + "+00", nil
	case sqlval.KindArray:
		arr, _ := v.AsArray()
		return false, encodePGArrayLiteral(arr), nil
	default:
		return false, "", fmt.Errorf("postgres: cannot encode value of kind %s", v.Kind())
	}
}

func encodePGArrayLiteral(arr []sqlval.Value) string {
	out := "{"
	for i, e := range arr {
		if i > 0 {
			out += ","
		}
		if e.IsNull() {
			out += "NULL"
			continue
		}
		_, text, err := encodeParamText(e)
		if err != nil {
			text = ""
		}
		out += "\"" + escapePGArrayElement(text) + "\""
	}
	return out + "}"
}

func escapePGArrayElement(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func hexEncode(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = digits[c>>4]
		out[i*2+1] = digits[c&0xf]
	}
	return string(out)
}
