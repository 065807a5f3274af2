package mysql

import (
	"crypto/sha1"
	"crypto/sha256"
)

// scrambleNative implements mysql_native_password's challenge
// response: SHA1(password) XOR SHA1(seed + SHA1(SHA1(password))).
func scrambleNative(password string, seed []byte) []byte {
	if password == "" {
		return nil
	}
	stage1 := sha1Sum([]byte(password))
	stage2 := sha1Sum(stage1)
	combined := append(append([]byte{}, seed...), stage2...)
	stage3 := sha1Sum(combined)
	return xorBytes(stage1, stage3)
}

// scrambleCachingSHA2 implements caching_sha2_password's fast-auth
// challenge response: XOR(SHA256(password), SHA256(SHA256(SHA256(password)) + seed)).
func scrambleCachingSHA2(password string, seed []byte) []byte {
	if password == "" {
		return nil
	}
	stage1 := sha256Sum([]byte(password))
	stage2 := sha256Sum(stage1)
	combined := append(append([]byte{}, stage2...), seed...)
	stage3 := sha256Sum(combined)
	return xorBytes(stage1, stage3)
}

// xorWithSeed XORs password bytes (NUL-terminated) against a
// seed-derived keystream, used to mask the cleartext password before
// RSA-encrypting it in caching_sha2_password/sha256_password's
// full-authentication path.
func xorWithSeed(password string, seed []byte) []byte {
	pw := append([]byte(password), 0)
	out := make([]byte, len(pw))
	for i := range pw {
		out[i] = pw[i] ^ seed[i%len(seed)]
	}
	return out
}

func sha1Sum(b []byte) []byte {
	h := sha1.Sum(b)
	return h[:]
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return out
}
