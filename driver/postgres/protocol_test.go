package postgres

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sqlmodel/sqlmodel/internal/wire"
)

func TestFrontendMessageFraming(t *testing.T) {
	msg := queryMessage("SELECT 1")
	if msg[0] != 'Q' {
		t.Fatalf("tag = %c", msg[0])
	}
	length := binary.BigEndian.Uint32(msg[1:5])
	// Length covers itself plus the NUL-terminated SQL, not the tag.
	want := uint32(4 + len("SELECT 1") + 1)
	if length != want {
		t.Fatalf("length = %d, want %d", length, want)
	}
	if int(length)+1 != len(msg) {
		t.Fatalf("frame size %d inconsistent with length field %d", len(msg), length)
	}
	if msg[len(msg)-1] != 0 {
		t.Fatal("sql must be NUL-terminated")
	}
}

func TestFrontendMessageEmptyBody(t *testing.T) {
	msg := syncMessage()
	if len(msg) != 5 || msg[0] != 'S' {
		t.Fatalf("sync frame = % x", msg)
	}
	if binary.BigEndian.Uint32(msg[1:5]) != 4 {
		t.Fatal("empty body must still count the length field itself")
	}
}

func TestReadBackendMessageRoundTrip(t *testing.T) {
	frame := frontendMessage('Z', []byte{'I'})
	msg, err := readBackendMessage(wire.NewReader(bytes.NewReader(frame)), defaultMaxMessageSize)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.tag != 'Z' || !bytes.Equal(msg.body, []byte{'I'}) {
		t.Fatalf("decoded %c % x", msg.tag, msg.body)
	}
}

func TestReadBackendMessageRejectsOversize(t *testing.T) {
	frame := frontendMessage('D', make([]byte, 1024))
	_, err := readBackendMessage(wire.NewReader(bytes.NewReader(frame)), 512)
	if err == nil {
		t.Fatal("a message beyond the configured cap must be refused")
	}
}

func TestReadBackendMessageRejectsShortLength(t *testing.T) {
	frame := []byte{'Z', 0, 0, 0, 2}
	_, err := readBackendMessage(wire.NewReader(bytes.NewReader(frame)), 0)
	if err == nil {
		t.Fatal("a length below 4 is malformed")
	}
}

func TestStartupMessageHasNoTag(t *testing.T) {
	msg := startupMessage(map[string]string{"user": "u"})
	length := binary.BigEndian.Uint32(msg[0:4])
	if int(length) != len(msg) {
		t.Fatalf("startup length %d must cover the whole frame (%d)", length, len(msg))
	}
	if binary.BigEndian.Uint32(msg[4:8]) != 0x00030000 {
		t.Fatal("protocol version 3.0 missing")
	}
	if msg[len(msg)-1] != 0 {
		t.Fatal("startup parameter list must end with a terminating NUL")
	}
}

func TestSSLRequestMagic(t *testing.T) {
	msg := sslRequestMessage()
	if len(msg) != 8 {
		t.Fatalf("sslrequest must be 8 bytes, got %d", len(msg))
	}
	if binary.BigEndian.Uint32(msg[4:8]) != 80877103 {
		t.Fatal("sslrequest code mismatch")
	}
}

func TestMessageBuilderSharedWithMySQLFraming(t *testing.T) {
	// The wire.Builder length-prepend used here counts itself; a
	// regression toward MySQL's exclusive 3-byte length would break
	// every frontend message at once.
	b := wire.NewBuilder()
	b.WriteBytes([]byte("abcd"))
	b.PrependUint32BELen()
	out := b.Bytes()
	if binary.BigEndian.Uint32(out[0:4]) != 8 {
		t.Fatalf("length field = %d, want 8", binary.BigEndian.Uint32(out[0:4]))
	}
}
