// Package postgres is a hand-rolled PostgreSQL v3 frontend/backend
// wire-protocol client: message framing, SCRAM-SHA-256 and MD5
// authentication, simple and extended query protocols, a built-in OID
// type registry, and TLS upgrade via SSLRequest.
//
// It implements conn.Connection directly against the socket rather
// than through database/sql, keeping framing and auth payloads
// byte-exact and owned end to end.
package postgres

import (
	"fmt"

	"github.com/sqlmodel/sqlmodel/internal/wire"
)

// Backend message type tags (first byte of every message after
// startup). Frontend messages carry their own tags written inline by
// each builder below.
const (
	backendAuthentication   = 'R'
	backendBackendKeyData   = 'K'
	backendBindComplete     = '2'
	backendCloseComplete    = '3'
	backendCommandComplete  = 'C'
	backendDataRow          = 'D'
	backendEmptyQueryResp   = 'I'
	backendErrorResponse    = 'E'
	backendNoData           = 'n'
	backendNoticeResponse   = 'N'
	backendParameterDesc    = 't'
	backendParameterStatus  = 'S'
	backendParseComplete    = '1'
	backendPortalSuspended  = 's'
	backendReadyForQuery    = 'Z'
	backendRowDescription   = 'T'
)

// Authentication sub-message codes carried in the int32 following the
// 'R' tag.
const (
	authOk                = 0
	authCleartextPassword = 3
	authMD5Password       = 5
	authSASL              = 10
	authSASLContinue      = 11
	authSASLFinal         = 12
)

// defaultMaxMessageSize bounds a single message body; anything beyond
// the configured cap is refused.
const defaultMaxMessageSize = 64 << 20

// backendMessage is one decoded backend message: its type tag and raw
// body (the length-prefixed payload minus the 4-byte length itself).
type backendMessage struct {
	tag  byte
	body []byte
}

// readBackendMessage reads one backend message off the wire: a 1-byte
// tag then a 4-byte big-endian length inclusive of itself.
func readBackendMessage(r *wire.Reader, maxSize int) (backendMessage, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return backendMessage{}, err
	}
	length, err := r.ReadUint32BE()
	if err != nil {
		return backendMessage{}, err
	}
	if length < 4 {
		return backendMessage{}, fmt.Errorf("postgres: invalid message length %d", length)
	}
	bodyLen := int(length) - 4
	if maxSize > 0 && bodyLen > maxSize {
		return backendMessage{}, fmt.Errorf("postgres: message body %d exceeds configured max %d", bodyLen, maxSize)
	}
	body, err := r.ReadN(bodyLen)
	if err != nil {
		return backendMessage{}, err
	}
	return backendMessage{tag: tag, body: body}, nil
}

// frontendMessage builds one frontend message: the 1-byte type tag,
// then a big-endian uint32 length covering itself and the body (the
// tag is outside the length).
func frontendMessage(tag byte, body []byte) []byte {
	b := wire.NewBuilder()
	b.WriteBytes(body)
	b.PrependUint32BELen()
	return append([]byte{tag}, b.Bytes()...)
}

func startupMessage(params map[string]string) []byte {
	b := wire.NewBuilder()
	b.WriteUint32BE(0x00030000) // protocol version 3.0
	for k, v := range params {
		b.WriteCString(k)
		b.WriteCString(v)
	}
	b.WriteByte(0)
	b.PrependUint32BELen()
	return b.Bytes()
}

func sslRequestMessage() []byte {
	b := wire.NewBuilder()
	b.WriteUint32BE(80877103)
	b.PrependUint32BELen()
	return b.Bytes()
}

// cancelRequestMessage is the tagless frame sent on a side connection
// to kill this backend's in-flight statement: the cancel
// code, then the BackendKeyData pair from startup.
func cancelRequestMessage(pid, key int32) []byte {
	b := wire.NewBuilder()
	b.WriteUint32BE(80877102)
	b.WriteUint32BE(uint32(pid))
	b.WriteUint32BE(uint32(key))
	b.PrependUint32BELen()
	return b.Bytes()
}

func passwordMessage(password string) []byte {
	b := wire.NewBuilder()
	b.WriteCString(password)
	return frontendMessage('p', b.Bytes())
}

func queryMessage(sql string) []byte {
	b := wire.NewBuilder()
	b.WriteCString(sql)
	return frontendMessage('Q', b.Bytes())
}

func terminateMessage() []byte {
	return frontendMessage('X', nil)
}

func syncMessage() []byte {
	return frontendMessage('S', nil)
}
