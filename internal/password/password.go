// Package password hashes and verifies profile passwords.
package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmpty is returned when an empty password is hashed.
var ErrEmpty = errors.New("password cannot be empty")

// Cost is the bcrypt work factor used for new hashes.
var Cost = bcrypt.DefaultCost

// Hash returns a salted bcrypt hash of plain.
func Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmpty
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Verify reports whether plain matches hash. Besides bcrypt hashes it accepts
// the unsalted hex SHA-256 digests written by earlier versions of the app.
func Verify(hash, plain string) bool {
	if IsLegacy(hash) {
		sum := sha256.Sum256([]byte(plain))
		return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(hash)) == 1
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsLegacy reports whether hash is an unsalted SHA-256 digest. Such hashes
// arrive with restored backups and are replaced on the next password change.
func IsLegacy(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
