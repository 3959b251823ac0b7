package types

import "errors"

// Key lifecycle errors.
var (
	// ErrInvalidParameter reports a rejected input such as a short salt,
	// an iteration count below the floor, or an empty password.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrKeyValidationMismatch reports that the server-side derivation
	// could not open the caller's validation ciphertext. Caller and server
	// disagree on the password or the KDF parameters.
	ErrKeyValidationMismatch = errors.New("key validation mismatch")

	// ErrKeyConflict reports an attempt to create a second active key for
	// a user without asking for replacement.
	ErrKeyConflict = errors.New("user already has an active key")

	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyInactive reports a lifecycle operation on a key that is
	// already deactivated.
	ErrKeyInactive = errors.New("key is not active")
)

// Escrow errors.
var (
	ErrEscrowConflict = errors.New("key already has an escrow record")
	ErrEscrowNotFound = errors.New("escrow record not found")
)

// Document encryption errors.
var (
	// ErrAuthentication covers both a wrong password and tampered
	// ciphertext. The two cases are deliberately indistinguishable.
	ErrAuthentication = errors.New("decryption failed: invalid password")

	// ErrMalformedCiphertext reports a frame too short to contain an IV
	// and a tag, or an undecodable base64 payload.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrMissingEncryptionMaterial reports a legacy document whose
	// registry key is absent or carries no salt.
	ErrMissingEncryptionMaterial = errors.New("missing encryption material")

	// ErrEncryptionMetadataInconsistent reports a document flagged
	// encrypted that carries neither a complete zero-knowledge envelope
	// nor a complete legacy triple, or both at once.
	ErrEncryptionMetadataInconsistent = errors.New("inconsistent encryption metadata")
)
