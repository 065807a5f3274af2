package postgres

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/internal/wire"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Conn is one PostgreSQL backend connection, implementing
// conn.Connection directly over the wire protocol.
type Conn struct {
	mu sync.Mutex

	netConn net.Conn
	r       *wire.Reader
	maxMsg  int

	serverParams map[string]string
	backendPID   int32
	backendKey   int32
	txStatus     byte // 'I' idle, 'T' in-transaction, 'E' errored

	cfg conn.PostgresConfig
}

// Open dials, negotiates TLS if requested, performs StartupMessage and
// authentication, and waits for ReadyForQuery.
func Open(c cx.Cx, cfg conn.PostgresConfig) cx.Outcome[*Conn] {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(c.Context(), "tcp", addr)
	if err != nil {
		return cx.Err[*Conn](dberr.Wrap(dberr.KindConnectionNetwork, "postgres: dial", err))
	}

	netConn := raw
	if cfg.TLSMode != conn.TLSDisable {
		upgraded, err := negotiateTLS(raw, cfg)
		if err != nil {
			raw.Close()
			return cx.Err[*Conn](err)
		}
		netConn = upgraded
	}

	maxMsg := cfg.MaxMessageSize
	if maxMsg <= 0 {
		maxMsg = defaultMaxMessageSize
	}

	pc := &Conn{
		netConn:      netConn,
		r:            wire.NewReader(netConn),
		maxMsg:       maxMsg,
		serverParams: map[string]string{},
		cfg:          cfg,
	}

	if err := pc.startup(); err != nil {
		netConn.Close()
		return cx.Err[*Conn](err)
	}
	return cx.Ok(pc)
}

// negotiateTLS sends SSLRequest and, on an 'S' reply, upgrades the raw
// TCP connection to TLS. An 'N' reply means the server refuses TLS; a
// Require-or-stronger mode treats that as a connection failure.
func negotiateTLS(raw net.Conn, cfg conn.PostgresConfig) (net.Conn, error) {
	if _, err := raw.Write(sslRequestMessage()); err != nil {
		return nil, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send SSLRequest", err)
	}
	reply := make([]byte, 1)
	if _, err := raw.Read(reply); err != nil {
		return nil, dberr.Wrap(dberr.KindConnectionNetwork, "postgres: read SSLRequest reply", err)
	}
	if reply[0] == 'N' {
		if cfg.TLSMode >= conn.TLSRequire {
			return nil, dberr.New(dberr.KindConnectionSsl, "postgres: server refused TLS but TLSMode requires it")
		}
		return raw, nil
	}
	if reply[0] != 'S' {
		return nil, dberr.New(dberr.KindConnectionSsl, "postgres: unexpected SSLRequest reply byte")
	}

	tlsCfg := &tls.Config{ServerName: cfg.Host}
	if cfg.TLSMode < conn.TLSVerifyCA {
		tlsCfg.InsecureSkipVerify = true
	} else {
		pool, err := x509.SystemCertPool()
		if err == nil {
			tlsCfg.RootCAs = pool
		}
	}
	tlsConn := tls.Client(raw, tlsCfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, dberr.Wrap(dberr.KindConnectionSsl, "postgres: TLS handshake", err)
	}
	return tlsConn, nil
}

func (pc *Conn) startup() error {
	params := map[string]string{
		"user":            pc.cfg.User,
		"database":        pc.cfg.Database,
		"client_encoding": "UTF8",
	}
	if pc.cfg.ApplicationName != "" {
		params["application_name"] = pc.cfg.ApplicationName
	}
	for k, v := range pc.cfg.Options {
		params[k] = v
	}
	if _, err := pc.netConn.Write(startupMessage(params)); err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send StartupMessage", err)
	}

	for {
		msg, err := readBackendMessage(pc.r, pc.maxMsg)
		if err != nil {
			return dberr.Wrap(dberr.KindProtocol, "postgres: read startup response", err)
		}
		switch msg.tag {
		case backendAuthentication:
			done, err := pc.handleAuth(msg.body)
			if err != nil {
				return err
			}
			if done {
				// fall through to read ParameterStatus/BackendKeyData/ReadyForQuery
			}
		case backendParameterStatus:
			k, v := parseParameterStatus(msg.body)
			pc.serverParams[k] = v
		case backendBackendKeyData:
			if len(msg.body) >= 8 {
				pc.backendPID = int32(beUint32(msg.body[0:4]))
				pc.backendKey = int32(beUint32(msg.body[4:8]))
			}
		case backendErrorResponse:
			fields := parseErrorFields(msg.body)
			return dberr.FromPostgresSQLSTATE(fields['C'], fields['M'])
		case backendNoticeResponse:
			// ignored: no observer hook is wired for server notices
		case backendReadyForQuery:
			if len(msg.body) > 0 {
				pc.txStatus = msg.body[0]
			}
			return nil
		default:
			return fmt.Errorf("postgres: unexpected message %q during startup", msg.tag)
		}
	}
}

// handleAuth processes one Authentication message; returns true once
// AuthenticationOk is seen (the caller keeps reading regardless, since
// ParameterStatus/BackendKeyData/ReadyForQuery still follow).
func (pc *Conn) handleAuth(body []byte) (bool, error) {
	if len(body) < 4 {
		return false, dberr.New(dberr.KindProtocol, "postgres: short Authentication message")
	}
	code := beUint32(body[0:4])
	switch code {
	case authOk:
		return true, nil
	case authCleartextPassword:
		return false, pc.sendAndAwaitAuth(passwordMessage(pc.cfg.Password))
	case authMD5Password:
		if len(body) < 8 {
			return false, dberr.New(dberr.KindProtocol, "postgres: short MD5Password message")
		}
		var salt [4]byte
		copy(salt[:], body[4:8])
		hash := md5PasswordHash(pc.cfg.User, pc.cfg.Password, salt)
		return false, pc.sendAndAwaitAuth(passwordMessage(hash))
	case authSASL:
		return false, pc.doSASL(body[4:])
	default:
		return false, dberr.New(dberr.KindConnectionAuthentication, fmt.Sprintf("postgres: unsupported authentication method %d", code))
	}
}

// sendAndAwaitAuth writes a response message; the subsequent
// AuthenticationOk (or a further challenge, for multi-step methods) is
// picked up by startup's main read loop, so this only sends.
func (pc *Conn) sendAndAwaitAuth(msg []byte) error {
	if _, err := pc.netConn.Write(msg); err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send auth response", err)
	}
	return nil
}

// doSASL drives the full SCRAM-SHA-256 exchange: the
// mechanism list in body, then two SASL round trips read directly
// (rather than deferring to startup's loop) since each step's reply
// must be interpreted before the next message is sent.
func (pc *Conn) doSASL(mechanismList []byte) error {
	if !containsMechanism(mechanismList, "SCRAM-SHA-256") {
		return dberr.New(dberr.KindConnectionAuthentication, "postgres: server does not offer SCRAM-SHA-256")
	}
	client, err := newScramClient(pc.cfg.Password)
	if err != nil {
		return dberr.Wrap(dberr.KindConnectionAuthentication, "postgres: scram setup", err)
	}
	clientFirst := client.clientFirstMessage(pc.cfg.User)
	if _, err := pc.netConn.Write(saslInitialResponseMessage("SCRAM-SHA-256", []byte(clientFirst))); err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send SASLInitialResponse", err)
	}

	msg, err := readBackendMessage(pc.r, pc.maxMsg)
	if err != nil {
		return dberr.Wrap(dberr.KindProtocol, "postgres: read SASLContinue", err)
	}
	if msg.tag == backendErrorResponse {
		fields := parseErrorFields(msg.body)
		return dberr.FromPostgresSQLSTATE(fields['C'], fields['M'])
	}
	if msg.tag != backendAuthentication || len(msg.body) < 4 || beUint32(msg.body[0:4]) != authSASLContinue {
		return dberr.New(dberr.KindProtocol, "postgres: expected AuthenticationSASLContinue")
	}
	clientFinal, err := client.handleServerFirst(string(msg.body[4:]))
	if err != nil {
		return dberr.Wrap(dberr.KindConnectionAuthentication, "postgres: scram", err)
	}
	if _, err := pc.netConn.Write(saslResponseMessage([]byte(clientFinal))); err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send SASLResponse", err)
	}

	msg, err = readBackendMessage(pc.r, pc.maxMsg)
	if err != nil {
		return dberr.Wrap(dberr.KindProtocol, "postgres: read SASLFinal", err)
	}
	if msg.tag == backendErrorResponse {
		fields := parseErrorFields(msg.body)
		return dberr.FromPostgresSQLSTATE(fields['C'], fields['M'])
	}
	if msg.tag != backendAuthentication || len(msg.body) < 4 || beUint32(msg.body[0:4]) != authSASLFinal {
		return dberr.New(dberr.KindProtocol, "postgres: expected AuthenticationSASLFinal")
	}
	if err := client.verifyServerFinal(string(msg.body[4:])); err != nil {
		return dberr.Wrap(dberr.KindConnectionAuthentication, "postgres: scram", err)
	}
	return nil
}

// Ping issues a trivial query to confirm liveness (PostgreSQL has no
// dedicated ping message).
func (pc *Conn) Ping(c cx.Cx) cx.Outcome[struct{}] {
	out := pc.Query(c, "SELECT 1", nil)
	switch out.State() {
	case cx.StateOk:
		return cx.Ok(struct{}{})
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[struct{}](reason)
	case cx.StatePanicked:
		info, _ := out.PanicInfo()
		return cx.Panicked[struct{}](info)
	default:
		err, _ := out.Error()
		return cx.Err[struct{}](err)
	}
}

// ServerParams returns the ParameterStatus values the server reported
// at startup (server_version, client_encoding, TimeZone, ...).
func (pc *Conn) ServerParams() map[string]string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make(map[string]string, len(pc.serverParams))
	for k, v := range pc.serverParams {
		out[k] = v
	}
	return out
}

// Cancel best-effort cancels the in-flight statement by opening a
// side connection and sending CancelRequest with the BackendKeyData
// captured at startup. The server never replies on the
// cancel connection; it is closed immediately after the write.
func (pc *Conn) Cancel(c cx.Cx) error {
	addr := net.JoinHostPort(pc.cfg.Host, strconv.Itoa(pc.cfg.Port))
	dialer := net.Dialer{Timeout: pc.cfg.ConnectTimeout}
	side, err := dialer.DialContext(c.Context(), "tcp", addr)
	if err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: dial cancel connection", err)
	}
	defer side.Close()
	if _, err := side.Write(cancelRequestMessage(pc.backendPID, pc.backendKey)); err != nil {
		return dberr.Wrap(dberr.KindConnectionNetwork, "postgres: send CancelRequest", err)
	}
	return nil
}

func (pc *Conn) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.netConn.Write(terminateMessage())
	return pc.netConn.Close()
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func containsMechanism(list []byte, name string) bool {
	start := 0
	for i, b := range list {
		if b == 0 {
			if string(list[start:i]) == name {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func saslInitialResponseMessage(mechanism string, initial []byte) []byte {
	b := wire.NewBuilder()
	b.WriteCString(mechanism)
	b.WriteUint32BE(uint32(len(initial)))
	b.WriteBytes(initial)
	return frontendMessage('p', b.Bytes())
}

func saslResponseMessage(data []byte) []byte {
	return frontendMessage('p', data)
}

func parseParameterStatus(body []byte) (name, value string) {
	parts := splitCStrings(body, 2)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// parseErrorFields splits an ErrorResponse/NoticeResponse body into
// its field-code -> string map, per the PostgreSQL wire spec: a
// sequence of (1-byte code, cstring) pairs terminated by a NUL code.
func parseErrorFields(body []byte) map[byte]string {
	out := map[byte]string{}
	i := 0
	for i < len(body) {
		code := body[i]
		if code == 0 {
			break
		}
		i++
		start := i
		for i < len(body) && body[i] != 0 {
			i++
		}
		out[code] = string(body[start:i])
		i++
	}
	return out
}

func splitCStrings(body []byte, n int) []string {
	out := make([]string, 0, n)
	start := 0
	for i := 0; i < len(body) && len(out) < n; i++ {
		if body[i] == 0 {
			out = append(out, string(body[start:i]))
			start = i + 1
		}
	}
	return out
}

// rowsResult holds a decoded simple- or extended-query result set
// along with the server's reported affected-row count, used by both
// Query and Execute.
type rowsResult struct {
	rows         []sqlval.Row
	rowsAffected int64
}
