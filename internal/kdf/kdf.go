// Package kdf derives AES-256 master keys from user passwords using
// PBKDF2-HMAC-SHA256. Derivation is deterministic and pure; parameter
// validation is a hard policy gate, not a warning.
package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

const (
	// KeyLen is the derived key length in bytes (AES-256).
	KeyLen = 32

	// MinSaltLen is the minimum accepted salt length. New salts use
	// DefaultSaltLen.
	MinSaltLen     = 16
	DefaultSaltLen = 32

	// MinIterations is the minimum accepted PBKDF2 iteration count. New
	// keys use DefaultIterations.
	MinIterations     = 100000
	DefaultIterations = 500000
)

// Derive derives a 32-byte key from the password, salt, and iteration count.
// Same inputs always yield the same key. The caller owns the returned slice
// and must Zero it when done.
func Derive(password string, salt []byte, iterations int) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("empty password: %w", types.ErrInvalidParameter)
	}
	if len(salt) < MinSaltLen {
		return nil, fmt.Errorf("salt is %d bytes, need at least %d: %w",
			len(salt), MinSaltLen, types.ErrInvalidParameter)
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("iteration count %d is below minimum %d: %w",
			iterations, MinIterations, types.ErrInvalidParameter)
	}

	return pbkdf2.Key([]byte(password), salt, iterations, KeyLen, sha256.New), nil
}

// NewSalt returns a fresh random salt of DefaultSaltLen bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, DefaultSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// ValidationHash returns a one-way SHA-256 hash of the derived key. It is
// stored on the key record to detect KDF-parameter drift and must never be
// used to authenticate a login.
func ValidationHash(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// Zero wipes key material in place. Callers zero derived keys on every exit
// path, including error paths.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
