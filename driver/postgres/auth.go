package postgres

import (
	"crypto/md5"
	"encoding/hex"
)

// md5PasswordHash computes md5(md5(password||user)||salt), hex-encoded
// and prefixed with "md5", the server's MD5Password challenge format.
func md5PasswordHash(user, password string, salt [4]byte) string {
	inner := md5Hex([]byte(password + user))
	outer := md5Hex(append([]byte(inner), salt[:]...))
	return "md5" + outer
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
