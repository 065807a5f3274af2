package mysql

import (
	"bytes"
	"testing"

	"github.com/sqlmodel/sqlmodel/internal/wire"
)

func pipePair(buf *bytes.Buffer) (*packetConn, *packetConn) {
	writer := newPacketConn(wire.NewReader(bytes.NewReader(nil)), buf)
	reader := newPacketConn(wire.NewReader(buf), &bytes.Buffer{})
	return writer, reader
}

func TestPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, r := pipePair(&buf)

	payload := []byte{0x03, 'S', 'E', 'L', 'E', 'C', 'T', ' ', '1'}
	if err := w.writePacket(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Header: 3-byte little-endian length, then sequence 0.
	raw := buf.Bytes()
	if raw[0] != byte(len(payload)) || raw[1] != 0 || raw[2] != 0 {
		t.Fatalf("length header mismatch: % x", raw[:3])
	}
	if raw[3] != 0 {
		t.Fatalf("first packet of a command must carry sequence 0, got %d", raw[3])
	}

	got, err := r.readPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got % x want % x", got, payload)
	}
}

func TestPacketSequenceIncrements(t *testing.T) {
	var buf bytes.Buffer
	w, _ := pipePair(&buf)
	w.writePacket([]byte{1})
	w.writePacket([]byte{2})
	raw := buf.Bytes()
	// Each frame is 4 header bytes + 1 payload byte.
	if raw[3] != 0 || raw[8] != 1 {
		t.Fatalf("sequence numbers wrong: %d then %d", raw[3], raw[8])
	}
}

func TestLargePayloadSplitsAndReassembles(t *testing.T) {
	var buf bytes.Buffer
	w, r := pipePair(&buf)

	payload := make([]byte, maxPacketPayload+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := w.writePacket(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw := buf.Bytes()
	if raw[0] != 0xff || raw[1] != 0xff || raw[2] != 0xff {
		t.Fatalf("first chunk must be 0xFFFFFF long: % x", raw[:3])
	}

	got, err := r.readPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled payload differs from the original")
	}
}

func TestExactBoundaryPayloadGetsEmptyTerminator(t *testing.T) {
	var buf bytes.Buffer
	w, r := pipePair(&buf)

	payload := make([]byte, maxPacketPayload)
	if err := w.writePacket(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw := buf.Bytes()
	// One full frame plus a 4-byte empty terminator frame.
	wantLen := 4 + maxPacketPayload + 4
	if len(raw) != wantLen {
		t.Fatalf("expected an empty terminator packet: wire length %d, want %d", len(raw), wantLen)
	}
	term := raw[len(raw)-4:]
	if term[0] != 0 || term[1] != 0 || term[2] != 0 {
		t.Fatalf("terminator must have zero length: % x", term)
	}
	if term[3] != 1 {
		t.Fatalf("terminator must continue the sequence: got %d", term[3])
	}

	got, err := r.readPacket()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != maxPacketPayload {
		t.Fatalf("reassembled length %d, want %d", len(got), maxPacketPayload)
	}
}

func TestParseOKPacket(t *testing.T) {
	// OK, 3 affected rows, last-insert-id 7, status 0x0002, 0 warnings.
	ok, err := parseOK([]byte{0x00, 0x03, 0x07, 0x02, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("parseOK: %v", err)
	}
	if ok.affectedRows != 3 || ok.lastInsertID != 7 {
		t.Fatalf("parsed %d affected / %d last-id", ok.affectedRows, ok.lastInsertID)
	}
	if ok.statusFlags != 0x0002 {
		t.Fatalf("status flags %04x", ok.statusFlags)
	}
}

func TestParseErrPacketWithSQLState(t *testing.T) {
	body := append([]byte{0xff, 0x26, 0x04, '#'}, []byte("23000Duplicate entry")...)
	e, err := parseErr(body)
	if err != nil {
		t.Fatalf("parseErr: %v", err)
	}
	if e.NativeCode != "1062" {
		t.Fatalf("expected errno 1062 preserved, got %q", e.NativeCode)
	}
}

func TestLenEncIntRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 250, 251, 0xffff, 0x10000, 0xffffff, 0x1000000, 1 << 40} {
		b := wire.NewBuilder()
		writeLenEncInt(b, v)
		r := newByteReader(b.Bytes())
		got, err := r.readLenEncInt()
		if err != nil {
			t.Fatalf("%d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round-trip %d -> %d", v, got)
		}
		if r.remaining() != 0 {
			t.Fatalf("%d: %d trailing bytes", v, r.remaining())
		}
	}
}
