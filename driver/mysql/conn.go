package mysql

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/internal/wire"
)

// Capability flags this client advertises/understands, per the MySQL
// client-server protocol.
const (
	capLongPassword     = 0x00000001
	capFoundRows        = 0x00000002
	capLongFlag         = 0x00000004
	capConnectWithDB    = 0x00000008
	capProtocol41       = 0x00000200
	capSSL              = 0x00000800
	capTransactions     = 0x00002000
	capSecureConnection = 0x00008000
	capMultiStatements  = 0x00010000
	capMultiResults     = 0x00020000
	capPluginAuth       = 0x00080000
	capConnAttrs        = 0x00100000
	capPluginAuthLenEnc = 0x00200000
	capDeprecateEOF     = 0x01000000
)

const clientCapabilities = capLongPassword | capFoundRows | capLongFlag | capConnectWithDB |
	capProtocol41 | capTransactions | capSecureConnection | capMultiStatements | capMultiResults |
	capPluginAuth | capPluginAuthLenEnc | capDeprecateEOF

// statusInTrans is the SERVER_STATUS flag bit reporting an open
// transaction, read from OK-packet status flags to track tx state the
// way driver/postgres tracks ReadyForQuery's status byte.
const statusInTrans = 0x0001

// Conn is one MySQL connection, implementing conn.Connection directly
// over the wire protocol.
type Conn struct {
	mu sync.Mutex

	netConn net.Conn
	pc      *packetConn

	serverVersion string
	connectionID  uint32
	capabilities  uint32
	statusFlags   uint16

	cfg conn.MySQLConfig
}

// Open dials, performs the Protocol v10 handshake (optionally
// upgrading to TLS after reading the initial handshake packet, per
// capSSL negotiation), authenticates, and returns a ready Conn.
func Open(c cx.Cx, cfg conn.MySQLConfig) cx.Outcome[*Conn] {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(c.Context(), "tcp", addr)
	if err != nil {
		return cx.Err[*Conn](dberr.Wrap(dberr.KindConnectionNetwork, "mysql: dial", err))
	}

	mc := &Conn{netConn: raw, cfg: cfg}
	mc.pc = newPacketConn(wire.NewReader(raw), raw)

	if err := mc.handshake(cfg); err != nil {
		raw.Close()
		return cx.Err[*Conn](err)
	}
	return cx.Ok(mc)
}

type handshakeV10 struct {
	protocolVersion byte
	serverVersion   string
	threadID        uint32
	authPluginData  []byte
	capabilities    uint32
	charset         byte
	statusFlags     uint16
	authPluginName  string
}

func (mc *Conn) handshake(cfg conn.MySQLConfig) error {
	pkt, err := mc.pc.readPacket()
	if err != nil {
		return err
	}
	hs, err := parseHandshakeV10(pkt)
	if err != nil {
		return err
	}
	mc.serverVersion = hs.serverVersion
	mc.connectionID = hs.threadID
	mc.capabilities = hs.capabilities & clientCapabilities

	if cfg.TLSMode != conn.TLSDisable && hs.capabilities&capSSL != 0 {
		if err := mc.sendSSLRequest(cfg, hs); err != nil {
			return err
		}
		tlsConn, err := upgradeTLS(mc.netConn, cfg)
		if err != nil {
			return err
		}
		mc.netConn = tlsConn
		mc.pc = newPacketConn(wire.NewReader(tlsConn), tlsConn)
		mc.pc.seq = 2
	}

	authResponse, err := computeAuthResponse(hs.authPluginName, cfg.Password, hs.authPluginData)
	if err != nil {
		return err
	}

	if err := mc.sendHandshakeResponse(cfg, hs, authResponse); err != nil {
		return err
	}

	return mc.finishAuth(cfg, hs)
}

func parseHandshakeV10(pkt []byte) (handshakeV10, error) {
	r := newByteReader(pkt)
	proto, err := r.readByte()
	if err != nil {
		return handshakeV10{}, err
	}
	ver, err := r.readNulString()
	if err != nil {
		return handshakeV10{}, err
	}
	threadID, err := r.readUint32LE()
	if err != nil {
		return handshakeV10{}, err
	}
	authData1, err := r.readN(8)
	if err != nil {
		return handshakeV10{}, err
	}
	if _, err := r.readByte(); err != nil { // filler
		return handshakeV10{}, err
	}
	capLow, err := r.readUint16LE()
	if err != nil {
		return handshakeV10{}, err
	}
	var charset byte
	var statusFlags uint16
	var capHigh uint16
	var authDataLen byte
	if r.remaining() > 0 {
		charset, _ = r.readByte()
		statusFlags, _ = r.readUint16LE()
		capHigh, _ = r.readUint16LE()
		authDataLen, _ = r.readByte()
		r.readN(10) // reserved
	}
	capabilities := uint32(capLow) | uint32(capHigh)<<16

	authData := append([]byte{}, authData1...)
	pluginName := ""
	if capabilities&capSecureConnection != 0 {
		n := int(authDataLen) - 8
		if n < 13 {
			n = 13
		}
		rest, err := r.readN(n)
		if err == nil {
			// rest's final byte is the NUL terminator preceding plugin name
			if len(rest) > 0 {
				authData = append(authData, rest[:len(rest)-1]...)
			}
		}
	}
	if capabilities&capPluginAuth != 0 {
		pluginName = r.readRestAsString()
		for len(pluginName) > 0 && pluginName[len(pluginName)-1] == 0 {
			pluginName = pluginName[:len(pluginName)-1]
		}
	}

	return handshakeV10{
		protocolVersion: proto,
		serverVersion:   ver,
		threadID:        threadID,
		authPluginData:  authData,
		capabilities:    capabilities,
		charset:         charset,
		statusFlags:     statusFlags,
		authPluginName:  pluginName,
	}, nil
}

func (mc *Conn) sendSSLRequest(cfg conn.MySQLConfig, hs handshakeV10) error {
	b := wire.NewBuilder()
	sslCaps := uint32(clientCapabilities | capSSL)
	b.WriteByte(byte(sslCaps))
	b.WriteByte(byte(sslCaps >> 8))
	b.WriteByte(byte(sslCaps >> 16))
	b.WriteByte(byte(sslCaps >> 24))
	b.WriteByte(0)
	b.WriteByte(0)
	b.WriteByte(0)
	b.WriteByte(64) // max packet size 0x40000000 (1 GiB) as 4-byte LE
	b.WriteByte(45) // utf8mb4_general_ci
	for i := 0; i < 23; i++ {
		b.WriteByte(0)
	}
	return mc.pc.writePacket(b.Bytes())
}

func upgradeTLS(raw net.Conn, cfg conn.MySQLConfig) (net.Conn, error) {
	tlsCfg := &tls.Config{ServerName: cfg.Host}
	if cfg.TLSMode < conn.TLSVerifyCA {
		tlsCfg.InsecureSkipVerify = true
	} else if pool, err := x509.SystemCertPool(); err == nil {
		tlsCfg.RootCAs = pool
	}
	tlsConn := tls.Client(raw, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, dberr.Wrap(dberr.KindConnectionSsl, "mysql: TLS handshake", err)
	}
	return tlsConn, nil
}

// computeAuthResponse renders the initial auth-response bytes for the
// plugin the server named in its handshake. caching_sha2_password and
// mysql_native_password both compute a response from the seed up
// front; sha256_password sends an empty initial response (with or
// without TLS) and instead waits for the full-auth exchange driven by
// finishAuth.
func computeAuthResponse(plugin, password string, seed []byte) ([]byte, error) {
	switch plugin {
	case "mysql_native_password":
		return scrambleNative(password, seed), nil
	case "caching_sha2_password":
		return scrambleCachingSHA2(password, seed), nil
	case "sha256_password":
		return nil, nil
	default:
		return scrambleNative(password, seed), nil
	}
}

func (mc *Conn) sendHandshakeResponse(cfg conn.MySQLConfig, hs handshakeV10, authResponse []byte) error {
	caps := clientCapabilities
	if cfg.Database != "" {
		caps |= capConnectWithDB
	}
	b := wire.NewBuilder()
	b.WriteByte(byte(caps))
	b.WriteByte(byte(caps >> 8))
	b.WriteByte(byte(caps >> 16))
	b.WriteByte(byte(caps >> 24))
	maxPacket := cfg.MaxPacketSize
	if maxPacket <= 0 {
		maxPacket = 16 << 20
	}
	b.WriteByte(byte(maxPacket))
	b.WriteByte(byte(maxPacket >> 8))
	b.WriteByte(byte(maxPacket >> 16))
	b.WriteByte(byte(maxPacket >> 24))
	b.WriteByte(collationID(cfg.Collation))
	for i := 0; i < 23; i++ {
		b.WriteByte(0)
	}
	b.WriteCString(cfg.User)
	writeLenEncInt(b, uint64(len(authResponse)))
	b.WriteBytes(authResponse)
	if cfg.Database != "" {
		b.WriteCString(cfg.Database)
	}
	pluginName := hs.authPluginName
	if pluginName == "" {
		pluginName = "mysql_native_password"
	}
	// Sequence continues from the handshake read (1), or from the
	// SSLRequest (2); handshake() already positioned pc.seq for the
	// TLS case, so no reset here.
	b.WriteCString(pluginName)
	return mc.pc.writePacket(b.Bytes())
}

// finishAuth drives any follow-up exchange after the handshake
// response: AuthSwitchRequest (server wants a different plugin), or
// caching_sha2_password's 0x03/0x04 fast/full-auth signal.
func (mc *Conn) finishAuth(cfg conn.MySQLConfig, hs handshakeV10) error {
	pkt, err := mc.pc.readPacket()
	if err != nil {
		return err
	}
	return mc.handleAuthReply(cfg, hs, pkt)
}

func (mc *Conn) handleAuthReply(cfg conn.MySQLConfig, hs handshakeV10, pkt []byte) error {
	if len(pkt) == 0 {
		return dberr.New(dberr.KindProtocol, "mysql: empty auth reply")
	}
	switch pkt[0] {
	case packetOK:
		ok, err := parseOK(pkt)
		if err != nil {
			return err
		}
		mc.statusFlags = ok.statusFlags
		return nil
	case packetErr:
		e, err := parseErr(pkt)
		if err != nil {
			return err
		}
		return e
	case 0xfe: // AuthSwitchRequest
		r := newByteReader(pkt[1:])
		plugin, err := r.readNulString()
		if err != nil {
			return err
		}
		seed := r.readRestAsString()
		seedBytes := []byte(seed)
		for len(seedBytes) > 0 && seedBytes[len(seedBytes)-1] == 0 {
			seedBytes = seedBytes[:len(seedBytes)-1]
		}
		return mc.authSwitch(cfg, plugin, seedBytes)
	case 0x01: // AuthMoreData (caching_sha2_password fast/full-auth signal)
		if len(pkt) < 2 {
			return dberr.New(dberr.KindProtocol, "mysql: empty AuthMoreData")
		}
		switch pkt[1] {
		case 0x03: // fast auth success; OK packet follows
			return mc.finishAuth(cfg, hs)
		case 0x04: // full authentication required
			return mc.fullAuth(cfg, hs)
		default:
			return mc.finishAuth(cfg, hs)
		}
	default:
		return dberr.New(dberr.KindProtocol, "mysql: unexpected auth reply packet")
	}
}

func (mc *Conn) authSwitch(cfg conn.MySQLConfig, plugin string, seed []byte) error {
	var response []byte
	switch plugin {
	case "mysql_native_password":
		response = scrambleNative(cfg.Password, seed)
	case "caching_sha2_password":
		response = scrambleCachingSHA2(cfg.Password, seed)
	case "sha256_password":
		response = nil
	default:
		response = scrambleNative(cfg.Password, seed)
	}
	if err := mc.pc.writePacket(response); err != nil {
		return err
	}
	pkt, err := mc.pc.readPacket()
	if err != nil {
		return err
	}
	if plugin == "sha256_password" && len(pkt) >= 1 && pkt[0] == 0x01 {
		return mc.fullAuth(cfg, handshakeV10{authPluginData: seed})
	}
	return mc.handleAuthReply(cfg, handshakeV10{authPluginName: plugin, authPluginData: seed}, pkt)
}

// fullAuth drives caching_sha2_password/sha256_password's
// full-authentication path: over TLS the password travels as a
// NUL-terminated cleartext packet (the channel is already encrypted);
// otherwise the server's RSA public key is requested and the
// XOR-masked password is OAEP-encrypted against it, per those plugins'
// documented cleartext-avoidance scheme.
func (mc *Conn) fullAuth(cfg conn.MySQLConfig, hs handshakeV10) error {
	if _, isTLS := mc.netConn.(*tls.Conn); isTLS {
		pw := append([]byte(cfg.Password), 0)
		if err := mc.pc.writePacket(pw); err != nil {
			return err
		}
		return mc.finishAuth(cfg, hs)
	}

	if err := mc.pc.writePacket([]byte{0x02}); err != nil {
		return err
	}
	pkt, err := mc.pc.readPacket()
	if err != nil {
		return err
	}
	if len(pkt) == 0 {
		return dberr.New(dberr.KindProtocol, "mysql: empty public key response")
	}
	pemBlock := pkt[1:]
	pub, err := parseRSAPublicKeyPEM(pemBlock)
	if err != nil {
		return dberr.Wrap(dberr.KindConnectionAuthentication, "mysql: parse server RSA public key", err)
	}
	masked := xorWithSeed(cfg.Password, hs.authPluginData)
	encrypted, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, masked, nil)
	if err != nil {
		return dberr.Wrap(dberr.KindConnectionAuthentication, "mysql: rsa encrypt password", err)
	}
	if err := mc.pc.writePacket(encrypted); err != nil {
		return err
	}
	return mc.finishAuth(cfg, hs)
}

func parseRSAPublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("mysql: no PEM block in server public key response")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("mysql: server key is not RSA")
	}
	return pub, nil
}

func collationID(name string) byte {
	switch name {
	case "utf8mb4_general_ci", "":
		return 45
	case "utf8mb4_unicode_ci":
		return 224
	case "utf8_general_ci":
		return 33
	default:
		return 45
	}
}

func (mc *Conn) Ping(c cx.Cx) cx.Outcome[struct{}] {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.pc.resetSeq()
	if err := mc.pc.writePacket([]byte{comPing}); err != nil {
		return cx.Err[struct{}](err)
	}
	pkt, err := mc.pc.readPacket()
	if err != nil {
		return cx.Err[struct{}](err)
	}
	if len(pkt) > 0 && pkt[0] == packetErr {
		e, _ := parseErr(pkt)
		return cx.Err[struct{}](e)
	}
	return cx.Ok(struct{}{})
}

// Cancel best-effort kills this connection's in-flight statement by
// opening a short side connection and issuing KILL QUERY with the
// thread id from the handshake. It deliberately bypasses
// mc.mu: the whole point is to interrupt a request currently holding
// that lock.
func (mc *Conn) Cancel(c cx.Cx) error {
	side, err := Open(c, mc.cfg).Unwrap()
	if err != nil {
		return err
	}
	defer side.Close()
	_, err = side.Execute(c, fmt.Sprintf("KILL QUERY %d", mc.connectionID), nil).Unwrap()
	return err
}

func (mc *Conn) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.pc.resetSeq()
	mc.pc.writePacket([]byte{comQuit})
	return mc.netConn.Close()
}

var _ conn.Connection = (*Conn)(nil)
