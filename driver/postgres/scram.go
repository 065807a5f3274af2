package postgres

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// scramClient implements the client side of SCRAM-SHA-256 (RFC 5802).
// PostgreSQL's SASL mechanism name is "SCRAM-SHA-256".
type scramClient struct {
	password string
	nonce    string

	clientFirstBare string
	serverFirst     string
	saltedPassword  []byte
	authMessage     string
}

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newScramClient picks a 24-character printable client nonce.
func newScramClient(password string) (*scramClient, error) {
	nonce, err := randomNonce(24)
	if err != nil {
		return nil, err
	}
	return &scramClient{password: password, nonce: nonce}, nil
}

func randomNonce(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("postgres: scram nonce: %w", err)
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(out), nil
}

// escapeSaslName escapes a SASL authzid/username per RFC 5802 §5.1:
// ',' -> '=2C' and '=' -> '=3D'.
func escapeSaslName(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

// clientFirstMessage builds "n,,n=<user>,r=<nonce>" and remembers the
// bare part (without the "n,," GS2 header) for the auth message later.
func (c *scramClient) clientFirstMessage(user string) string {
	c.clientFirstBare = "n=" + escapeSaslName(user) + ",r=" + c.nonce
	return "n,," + c.clientFirstBare
}

// handleServerFirst parses "r=<combined-nonce>,s=<salt-b64>,i=<iter>",
// verifies the combined nonce extends the client's own, and derives
// SaltedPassword via PBKDF2-HMAC-SHA-256.
func (c *scramClient) handleServerFirst(serverFirst string) (clientFinalMessage string, err error) {
	c.serverFirst = serverFirst
	fields := parseScramFields(serverFirst)
	combinedNonce, ok := fields["r"]
	if !ok || !strings.HasPrefix(combinedNonce, c.nonce) {
		return "", fmt.Errorf("postgres: scram server-first nonce does not extend client nonce")
	}
	saltB64, ok := fields["s"]
	if !ok {
		return "", fmt.Errorf("postgres: scram server-first missing salt")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("postgres: scram salt: %w", err)
	}
	iterStr, ok := fields["i"]
	if !ok {
		return "", fmt.Errorf("postgres: scram server-first missing iteration count")
	}
	iter, err := strconv.Atoi(iterStr)
	if err != nil || iter <= 0 {
		return "", fmt.Errorf("postgres: scram invalid iteration count %q", iterStr)
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iter, sha256.Size, sha256.New)

	clientFinalWithoutProof := "c=biws,r=" + combinedNonce
	c.authMessage = c.clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientKey := hmacSHA256(c.saltedPassword, "Client Key")
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], c.authMessage)
	clientProof := xorBytes(clientKey, clientSignature)

	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof), nil
}

// verifyServerFinal checks "v=<b64 ServerSignature>" against the
// expected ServerSignature derived from SaltedPassword and the
// recorded AuthMessage.
func (c *scramClient) verifyServerFinal(serverFinal string) error {
	fields := parseScramFields(serverFinal)
	if errMsg, ok := fields["e"]; ok {
		return fmt.Errorf("postgres: scram server reported error: %s", errMsg)
	}
	vB64, ok := fields["v"]
	if !ok {
		return fmt.Errorf("postgres: scram server-final missing verifier")
	}
	serverKey := hmacSHA256(c.saltedPassword, "Server Key")
	expected := hmacSHA256(serverKey, c.authMessage)
	got, err := base64.StdEncoding.DecodeString(vB64)
	if err != nil {
		return fmt.Errorf("postgres: scram server-final verifier: %w", err)
	}
	if !hmac.Equal(expected, got) {
		return fmt.Errorf("postgres: scram server signature mismatch")
	}
	return nil
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// parseScramFields splits a comma-separated "k=v,k=v" SCRAM message
// into a map; values may themselves contain '=' (e.g. base64), so only
// the first '=' splits key from value.
func parseScramFields(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		if i := strings.IndexByte(part, '='); i >= 0 {
			out[part[:i]] = part[i+1:]
		}
	}
	return out
}
