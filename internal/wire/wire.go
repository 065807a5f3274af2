// Package wire holds the byte-level helpers shared by driver/postgres
// and driver/mysql: network-order integer framing and a small buffered
// reader that reports short reads as errors rather than as a 0-length
// success, which is the main source of byte-inexact framing bugs in a
// hand-rolled client.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reader wraps an io.Reader with fixed-size and length-prefixed reads
// used by both wire protocols' message framing.
type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// ReadFull reads exactly len(buf) bytes or returns an error; a short
// read from the network is never silently treated as EOF-with-partial-
// data, since both protocols are byte-exact about frame lengths.
func (rd *Reader) ReadFull(buf []byte) error {
	_, err := io.ReadFull(rd.r, buf)
	if err != nil {
		return fmt.Errorf("wire: short read: %w", err)
	}
	return nil
}

func (rd *Reader) ReadByte() (byte, error) {
	var b [1]byte
	if err := rd.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (rd *Reader) ReadUint16BE() (uint16, error) {
	var b [2]byte
	if err := rd.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (rd *Reader) ReadUint32BE() (uint32, error) {
	var b [4]byte
	if err := rd.ReadFull(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadCString reads a NUL-terminated string, as used by PostgreSQL's
// protocol and MySQL's handshake packets.
func (rd *Reader) ReadCString() (string, error) {
	var out []byte
	for {
		b, err := rd.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}

func (rd *Reader) ReadN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := rd.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Builder accumulates a message body with network-order integer and
// C-string helpers; callers prefix it with whatever type tag/length
// their protocol requires once the body length is known.
type Builder struct {
	buf []byte
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Bytes() []byte { return b.buf }
func (b *Builder) Len() int      { return len(b.buf) }

func (b *Builder) WriteByte(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *Builder) WriteBytes(v []byte) *Builder {
	b.buf = append(b.buf, v...)
	return b
}

func (b *Builder) WriteUint16BE(v uint16) *Builder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return b.WriteBytes(tmp[:])
}

func (b *Builder) WriteUint32BE(v uint32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return b.WriteBytes(tmp[:])
}

// WriteCString writes s followed by a terminating NUL.
func (b *Builder) WriteCString(s string) *Builder {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return b
}

// PrependUint32BELen writes the current buffer length (including the
// 4 bytes of the length field itself, matching PostgreSQL's framing)
// as a big-endian uint32 at the front of the buffer.
func (b *Builder) PrependUint32BELen() *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(b.buf)+4))
	b.buf = append(tmp[:], b.buf...)
	return b
}
