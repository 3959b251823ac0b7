// Package aead implements the AES-256-GCM codec used by every other
// component of the subsystem.
//
// Wire framing for a sealed payload is:
//
//	[iv:12][ciphertext:n][tag:16]
//
// base64-encoded at rest. Open fails closed: a tag mismatch, truncated input,
// or wrong key yields ErrAuthentication, never partial plaintext.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

const (
	// KeyLen is the AES-256 key length.
	KeyLen = 32

	// IVLen is the GCM nonce length. A fresh random IV is generated per
	// Seal call and never reused for the same key.
	IVLen = 12

	// TagLen is the GCM authentication tag length.
	TagLen = 16

	// minPayloadLen is the shortest well-formed framed payload: an IV, a
	// tag, and an empty ciphertext.
	minPayloadLen = IVLen + TagLen
)

// Seal encrypts plaintext under key and returns the iv, ciphertext, and tag
// separately.
func Seal(key, plaintext, aad []byte) (iv, ciphertext, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, IVLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, aad)
	ciphertext = sealed[:len(sealed)-TagLen]
	tag = sealed[len(sealed)-TagLen:]
	return iv, ciphertext, tag, nil
}

// Open decrypts and authenticates. Any failure is reported as
// ErrAuthentication; the message never distinguishes a wrong key from
// tampered data.
func Open(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVLen {
		return nil, fmt.Errorf("iv is %d bytes, want %d: %w", len(iv), IVLen, types.ErrMalformedCiphertext)
	}
	if len(tag) != TagLen {
		return nil, fmt.Errorf("tag is %d bytes, want %d: %w", len(tag), TagLen, types.ErrMalformedCiphertext)
	}

	sealed := make([]byte, 0, len(ciphertext)+TagLen)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, types.ErrAuthentication
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Join assembles the iv/ciphertext/tag frame.
func Join(iv, ciphertext, tag []byte) []byte {
	payload := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	payload = append(payload, iv...)
	payload = append(payload, ciphertext...)
	payload = append(payload, tag...)
	return payload
}

// Split separates a framed payload into iv, ciphertext, and tag. A payload
// shorter than 28 bytes cannot contain the framing and fails fast.
func Split(payload []byte) (iv, ciphertext, tag []byte, err error) {
	if len(payload) < minPayloadLen {
		return nil, nil, nil, fmt.Errorf("payload is %d bytes, need at least %d: %w",
			len(payload), minPayloadLen, types.ErrMalformedCiphertext)
	}
	iv = payload[:IVLen]
	ciphertext = payload[IVLen : len(payload)-TagLen]
	tag = payload[len(payload)-TagLen:]
	return iv, ciphertext, tag, nil
}

// SealPayload seals plaintext and returns the joined frame.
func SealPayload(key, plaintext, aad []byte) ([]byte, error) {
	iv, ciphertext, tag, err := Seal(key, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return Join(iv, ciphertext, tag), nil
}

// OpenPayload splits a framed payload and opens it.
func OpenPayload(key, payload, aad []byte) ([]byte, error) {
	iv, ciphertext, tag, err := Split(payload)
	if err != nil {
		return nil, err
	}
	return Open(key, iv, ciphertext, tag, aad)
}

// EncodePayload base64-encodes a frame for at-rest storage.
func EncodePayload(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// DecodePayload decodes a base64 frame. Invalid base64 is malformed
// ciphertext, not an authentication failure.
func DecodePayload(encoded string) ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", types.ErrMalformedCiphertext)
	}
	return payload, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("key is %d bytes, want %d: %w", len(key), KeyLen, types.ErrInvalidParameter)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
