// Package mysql is a hand-rolled MySQL client-server protocol
// implementation: packet framing, Protocol v10 handshake,
// mysql_native_password/caching_sha2_password/sha256_password
// authentication, the text (COM_QUERY) and binary
// (COM_STMT_PREPARE/COM_STMT_EXECUTE) query protocols, and TLS upgrade
// via the SSL capability flag.
//
// Like driver/postgres, this talks to the socket directly rather than
// going through database/sql, keeping the framing and auth payloads
// byte-exact and owned end to end.
package mysql

import (
	"fmt"

	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/internal/wire"
)

// maxPacketPayload is the threshold at which a logical packet must be
// split into multiple wire packets, per the protocol's 3-byte length
// field (max 0xFFFFFF per chunk).
const maxPacketPayload = 0xFFFFFF

// packetConn reads and writes length-prefixed MySQL packets: a 3-byte
// little-endian length, a 1-byte sequence number, then the payload.
// The sequence number increments per packet within one command and
// resets to 0 at the start of each new command, per the protocol.
type packetConn struct {
	r    *wire.Reader
	w    byteWriter
	seq  byte
}

type byteWriter interface {
	Write(p []byte) (int, error)
}

func newPacketConn(r *wire.Reader, w byteWriter) *packetConn {
	return &packetConn{r: r, w: w}
}

func (p *packetConn) resetSeq() { p.seq = 0 }

// readPacket reads one logical packet, transparently reassembling a
// payload split across multiple 0xFFFFFF-byte wire packets.
func (p *packetConn) readPacket() ([]byte, error) {
	var out []byte
	for {
		lenBytes, err := p.r.ReadN(3)
		if err != nil {
			return nil, dberr.Wrap(dberr.KindConnectionNetwork, "mysql: read packet length", err)
		}
		length := int(lenBytes[0]) | int(lenBytes[1])<<8 | int(lenBytes[2])<<16
		seqByte, err := p.r.ReadByte()
		if err != nil {
			return nil, dberr.Wrap(dberr.KindConnectionNetwork, "mysql: read packet sequence", err)
		}
		p.seq = seqByte + 1
		body, err := p.r.ReadN(length)
		if err != nil {
			return nil, dberr.Wrap(dberr.KindConnectionNetwork, "mysql: read packet body", err)
		}
		out = append(out, body...)
		if length < maxPacketPayload {
			return out, nil
		}
	}
}

// writePacket sends payload as one or more wire packets, splitting at
// maxPacketPayload and terminating an exact multiple with a trailing
// zero-length packet per the protocol's framing rule.
func (p *packetConn) writePacket(payload []byte) error {
	for {
		chunk := payload
		if len(chunk) > maxPacketPayload {
			chunk = chunk[:maxPacketPayload]
		}
		b := wire.NewBuilder()
		b.WriteByte(byte(len(chunk)))
		b.WriteByte(byte(len(chunk) >> 8))
		b.WriteByte(byte(len(chunk) >> 16))
		b.WriteByte(p.seq)
		b.WriteBytes(chunk)
		if _, err := p.w.Write(b.Bytes()); err != nil {
			return dberr.Wrap(dberr.KindConnectionNetwork, "mysql: write packet", err)
		}
		p.seq++
		payload = payload[len(chunk):]
		if len(chunk) < maxPacketPayload {
			return nil
		}
		if len(payload) == 0 {
			// exact multiple of maxPacketPayload: emit the empty terminator
			b := wire.NewBuilder()
			b.WriteByte(0)
			b.WriteByte(0)
			b.WriteByte(0)
			b.WriteByte(p.seq)
			if _, err := p.w.Write(b.Bytes()); err != nil {
				return dberr.Wrap(dberr.KindConnectionNetwork, "mysql: write terminator packet", err)
			}
			p.seq++
			return nil
		}
	}
}

// --- generic response packets ---

const (
	packetOK  = 0x00
	packetEOF = 0xfe
	packetErr = 0xff
)

type okPacket struct {
	affectedRows uint64
	lastInsertID uint64
	statusFlags  uint16
	warnings     uint16
}

func parseOK(body []byte) (okPacket, error) {
	if len(body) < 1 || body[0] != packetOK {
		return okPacket{}, fmt.Errorf("mysql: not an OK packet")
	}
	r := newByteReader(body[1:])
	affected, err := r.readLenEncInt()
	if err != nil {
		return okPacket{}, err
	}
	lastID, err := r.readLenEncInt()
	if err != nil {
		return okPacket{}, err
	}
	status, err := r.readUint16LE()
	if err != nil {
		return okPacket{}, err
	}
	warnings, _ := r.readUint16LE()
	return okPacket{affectedRows: affected, lastInsertID: lastID, statusFlags: status, warnings: warnings}, nil
}

// parseErr decodes an ERR packet's error number and message, skipping
// the optional SQL state marker ('#' + 5-byte state) CLIENT_PROTOCOL_41
// connections always include.
func parseErr(body []byte) (*dberr.Error, error) {
	if len(body) < 1 || body[0] != packetErr {
		return nil, fmt.Errorf("mysql: not an ERR packet")
	}
	if len(body) < 3 {
		return nil, fmt.Errorf("mysql: truncated ERR packet")
	}
	number := int(body[1]) | int(body[2])<<8
	rest := body[3:]
	if len(rest) > 0 && rest[0] == '#' {
		if len(rest) < 6 {
			return nil, fmt.Errorf("mysql: truncated ERR packet sqlstate")
		}
		rest = rest[6:]
	}
	return dberr.FromMySQLErrorNumber(number, string(rest)), nil
}

// byteReader is a small cursor over an already-buffered packet body,
// used for the length-encoded integer/string encodings MySQL's
// protocol uses pervasively (distinct from wire.Reader, which reads
// directly off the network).
type byteReader struct {
	b   []byte
	pos int
}

func newByteReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) remaining() int { return len(r.b) - r.pos }

func (r *byteReader) readByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, fmt.Errorf("mysql: short packet")
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, fmt.Errorf("mysql: short packet")
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *byteReader) readUint16LE() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (r *byteReader) readUint32LE() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (r *byteReader) readUint64LE() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (r *byteReader) readNulString() (string, error) {
	start := r.pos
	for r.pos < len(r.b) && r.b[r.pos] != 0 {
		r.pos++
	}
	if r.pos >= len(r.b) {
		return "", fmt.Errorf("mysql: unterminated string")
	}
	s := string(r.b[start:r.pos])
	r.pos++
	return s, nil
}

func (r *byteReader) readRestAsString() string {
	s := string(r.b[r.pos:])
	r.pos = len(r.b)
	return s
}

// readLenEncInt decodes a length-encoded integer per the protocol's
// variable-width scheme: < 0xfb is literal, 0xfb is NULL (returned as
// 0, callers distinguish NULL via readLenEncIntOrNull), 0xfc/0xfd/0xfe
// prefix a 2/3/8-byte little-endian value.
func (r *byteReader) readLenEncInt() (uint64, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch {
	case b < 0xfb:
		return uint64(b), nil
	case b == 0xfb:
		return 0, nil
	case b == 0xfc:
		v, err := r.readN(2)
		if err != nil {
			return 0, err
		}
		return uint64(v[0]) | uint64(v[1])<<8, nil
	case b == 0xfd:
		v, err := r.readN(3)
		if err != nil {
			return 0, err
		}
		return uint64(v[0]) | uint64(v[1])<<8 | uint64(v[2])<<16, nil
	case b == 0xfe:
		return r.readUint64LE()
	default:
		return 0, fmt.Errorf("mysql: unexpected length-encoded integer prefix 0x%x", b)
	}
}

// readLenEncIntOrNull is readLenEncInt's NULL-aware counterpart, used
// when decoding text-protocol result rows where 0xfb marks a NULL
// column rather than a literal length of 0.
func (r *byteReader) readLenEncIntOrNull() (uint64, bool, error) {
	if r.pos >= len(r.b) {
		return 0, false, fmt.Errorf("mysql: short packet")
	}
	if r.b[r.pos] == 0xfb {
		r.pos++
		return 0, true, nil
	}
	v, err := r.readLenEncInt()
	return v, false, err
}

func (r *byteReader) readLenEncString() (string, error) {
	n, isNull, err := r.readLenEncIntOrNull()
	if err != nil {
		return "", err
	}
	if isNull {
		return "", nil
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readLenEncStringOrNull is readLenEncString's NULL-aware counterpart,
// distinguishing a genuine NULL column from an empty string; both of
// which readLenEncString alone renders as "".
func (r *byteReader) readLenEncStringOrNull() (string, bool, error) {
	n, isNull, err := r.readLenEncIntOrNull()
	if err != nil {
		return "", false, err
	}
	if isNull {
		return "", true, nil
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", false, err
	}
	return string(b), false, nil
}

func writeLenEncInt(b *wire.Builder, v uint64) {
	switch {
	case v < 0xfb:
		b.WriteByte(byte(v))
	case v <= 0xffff:
		b.WriteByte(0xfc)
		b.WriteByte(byte(v))
		b.WriteByte(byte(v >> 8))
	case v <= 0xffffff:
		b.WriteByte(0xfd)
		b.WriteByte(byte(v))
		b.WriteByte(byte(v >> 8))
		b.WriteByte(byte(v >> 16))
	default:
		b.WriteByte(0xfe)
		for i := 0; i < 8; i++ {
			b.WriteByte(byte(v >> (8 * i)))
		}
	}
}

func writeLenEncString(b *wire.Builder, s string) {
	writeLenEncInt(b, uint64(len(s)))
	b.WriteBytes([]byte(s))
}
