package sqlval

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestEqualityIsStructural(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same ints", BigInt(5), BigInt(5), true},
		{"different ints", BigInt(5), BigInt(6), false},
		{"different int widths", Int(5), BigInt(5), false},
		{"bool false vs int 0", Bool(false), Int(0), false},
		{"nulls", Null(), Null(), true},
		{"defaults", Default(), Default(), true},
		{"null vs default", Null(), Default(), false},
		{"same text", Text("a"), Text("a"), true},
		{"text vs decimal same string", Text("1.5"), Decimal("1.5"), false},
		{"decimal not canonicalised", Decimal("1.50"), Decimal("1.5"), false},
		{"bytes equal", Bytes([]byte{1, 2}), Bytes([]byte{1, 2}), true},
		{"bytes differ", Bytes([]byte{1, 2}), Bytes([]byte{1, 3}), false},
		{"arrays", Array([]Value{Int(1), Text("x")}), Array([]Value{Int(1), Text("x")}), true},
	}
	for _, tc := range cases {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Errorf("%s: Equal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHashEncodesTag(t *testing.T) {
	// Same bit pattern, different tags: the hash must not collide, so
	// identity-map keys for e.g. PK 0 of different column types differ.
	pairs := [][2]Value{
		{Int(0), Bool(false)},
		{Int(1), Bool(true)},
		{BigInt(42), Int(42)},
		{Text("42"), Decimal("42")},
		{Timestamp(1000), Time(1000)},
	}
	for _, p := range pairs {
		if p[0].Hash() == p[1].Hash() {
			t.Errorf("hash collision between %s and %s", p[0].Kind(), p[1].Kind())
		}
	}
}

func TestHashIsDeterministic(t *testing.T) {
	v := Array([]Value{BigInt(7), Text("x"), Bytes([]byte{9})})
	if v.Hash() != v.Hash() {
		t.Fatal("hash must be stable across calls")
	}
}

func TestNumericAccessorsWiden(t *testing.T) {
	for _, v := range []Value{TinyInt(5), SmallInt(5), Int(5), BigInt(5)} {
		n, ok := v.AsInt64()
		if !ok || n != 5 {
			t.Fatalf("%s: AsInt64 = %d, %v", v.Kind(), n, ok)
		}
	}
	if _, ok := Double(5).AsInt64(); ok {
		t.Fatal("AsInt64 must not implicitly narrow a float")
	}
	if _, ok := BigInt(5).AsFloat64(); ok {
		t.Fatal("AsFloat64 must not implicitly convert an int")
	}
}

func TestTemporalMeaning(t *testing.T) {
	d := Date(19723) // 2024-01-01
	got, ok := d.AsTime()
	if !ok {
		t.Fatal("AsTime failed for Date")
	}
	if got.Year() != 2024 || got.Month() != time.January || got.Day() != 1 {
		t.Fatalf("Date(19723) = %v, want 2024-01-01", got)
	}

	tm := Time(3*3600*1_000_000 + 30*60*1_000_000) // 03:30:00
	gotT, _ := tm.AsTime()
	if gotT.Hour() != 3 || gotT.Minute() != 30 {
		t.Fatalf("Time = %v, want 03:30", gotT)
	}

	ts := Timestamp(1_700_000_000_000_000)
	gotTs, _ := ts.AsTime()
	if gotTs.UnixMicro() != 1_700_000_000_000_000 {
		t.Fatalf("Timestamp round-trip lost precision: %v", gotTs)
	}
}

func TestTimestampTzNormalisedToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2024, 6, 1, 12, 0, 0, 0, loc)
	v, err := FromTime(local, KindTimestampTz)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := v.AsTime()
	if got.Location() != time.UTC {
		t.Fatalf("TimestampTz must come back in UTC, got %v", got.Location())
	}
	if !got.Equal(local) {
		t.Fatalf("instant changed during normalisation: %v vs %v", got, local)
	}
}

func TestFromTimeRejectsNonTemporalKind(t *testing.T) {
	if _, err := FromTime(time.Now(), KindText); err == nil {
		t.Fatal("expected an error for a non-temporal kind")
	}
}

func TestUuidRoundTrip(t *testing.T) {
	u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	v := Uuid(u)
	got, ok := v.AsUuid()
	if !ok || got != u {
		t.Fatalf("uuid round-trip failed: %v %v", got, ok)
	}
}

func TestJsonMarshalsDocument(t *testing.T) {
	v, err := Json(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, ok := v.AsBytes()
	if !ok || string(raw) != `{"a":1}` {
		t.Fatalf("unexpected json bytes: %s", raw)
	}
}

func TestBytesConstructorCopies(t *testing.T) {
	src := []byte{1, 2, 3}
	v := Bytes(src)
	src[0] = 99
	got, _ := v.AsBytes()
	if got[0] != 1 {
		t.Fatal("Bytes must copy its input")
	}
}

func TestRowNamedAndPositionalAccess(t *testing.T) {
	row := NewRow([]string{"id", "name"}, []Value{BigInt(1), Text("Alice")})

	byPos, err := row.Get(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, _ := byPos.AsString(); s != "Alice" {
		t.Fatalf("positional access returned %q", s)
	}

	byName, err := row.GetNamed("id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := byName.AsInt64(); n != 1 {
		t.Fatalf("named access returned %d", n)
	}
}

func TestRowMissingNameIsError(t *testing.T) {
	row := NewRow([]string{"id"}, []Value{BigInt(1)})
	if _, err := row.GetNamed("nope"); err == nil {
		t.Fatal("expected an error for a missing column name")
	}
	if _, err := row.Get(5); err == nil {
		t.Fatal("expected an error for an out-of-range index")
	}
}

func TestRowDuplicateNameFirstWins(t *testing.T) {
	row := NewRow([]string{"x", "x"}, []Value{Int(1), Int(2)})
	v, err := row.GetNamed("x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := v.AsInt64(); n != 1 {
		t.Fatalf("expected the first occurrence, got %d", n)
	}
}
