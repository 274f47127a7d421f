// Package password implements the salted-hash codec for stored credentials.
// A stored record is hex(salt) followed by the hex digest; the salt prefix
// is always 64 characters.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes  = 32
	saltChars  = saltBytes * 2 // hex-encoded salt prefix length
	iterations = 100_000
	keyLen     = 32
)

// DefaultPassword is the bootstrap password assigned to new accounts and to
// the administrative account.
const DefaultPassword = "pbi"

// Hash derives a storable record for password using a fresh random salt.
func Hash(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hexSalt := hex.EncodeToString(salt)
	return hexSalt + digest(hexSalt, password), nil
}

// Verify checks password against a stored record. Records too short to hold
// a salt fail closed.
func Verify(password, record string) bool {
	if len(record) < saltChars {
		return false
	}
	hexSalt, want := record[:saltChars], record[saltChars:]
	got := digest(hexSalt, password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// IsDefaultPassword reports whether password is the bootstrap sentinel.
func IsDefaultPassword(password string) bool {
	return strings.EqualFold(password, DefaultPassword)
}

// ValidateStrength applies the length bounds for new passwords. Intentionally
// permissive: the system's own bootstrap password is three characters.
func ValidateStrength(password string) (bool, string) {
	switch {
	case len(password) < 3:
		return false, "password must be at least 3 characters"
	case len(password) > 128:
		return false, "password must be at most 128 characters"
	}
	return true, ""
}

func digest(hexSalt, password string) string {
	key := pbkdf2.Key([]byte(password), []byte(hexSalt), iterations, keyLen, sha256.New)
	return hex.EncodeToString(key)
}
