package aead

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameerarsath/publicdocsafe-sub000/pkg/types"
)

func newTestKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLen)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := newTestKey(t)
	plaintexts := [][]byte{
		[]byte("Hello World"),
		[]byte(""),
		bytes.Repeat([]byte{0x00}, 4096),
		{0xFF},
	}

	for _, plaintext := range plaintexts {
		iv, ciphertext, tag, err := Seal(key, plaintext, nil)
		require.NoError(t, err)
		assert.Len(t, iv, IVLen)
		assert.Len(t, tag, TagLen)

		got, err := Open(key, iv, ciphertext, tag, nil)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestSeal_FreshIVPerCall(t *testing.T) {
	key := newTestKey(t)

	iv1, _, _, err := Seal(key, []byte("same input"), nil)
	require.NoError(t, err)
	iv2, _, _, err := Seal(key, []byte("same input"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
}

func TestOpen_TamperDetection(t *testing.T) {
	key := newTestKey(t)
	iv, ciphertext, tag, err := Seal(key, []byte("sensitive document content"), nil)
	require.NoError(t, err)

	// Flipping any single bit of the ciphertext must fail authentication.
	for i := range ciphertext {
		mutated := append([]byte(nil), ciphertext...)
		mutated[i] ^= 0x01
		_, err := Open(key, iv, mutated, tag, nil)
		assert.ErrorIs(t, err, types.ErrAuthentication, "ciphertext byte %d", i)
	}

	// Same for the tag.
	for i := range tag {
		mutated := append([]byte(nil), tag...)
		mutated[i] ^= 0x80
		_, err := Open(key, iv, ciphertext, mutated, nil)
		assert.ErrorIs(t, err, types.ErrAuthentication, "tag byte %d", i)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	key := newTestKey(t)
	otherKey := newTestKey(t)

	iv, ciphertext, tag, err := Seal(key, []byte("payload"), nil)
	require.NoError(t, err)

	_, err = Open(otherKey, iv, ciphertext, tag, nil)
	assert.ErrorIs(t, err, types.ErrAuthentication)
}

func TestOpen_AADMismatch(t *testing.T) {
	key := newTestKey(t)

	iv, ciphertext, tag, err := Seal(key, []byte("payload"), []byte("doc-1"))
	require.NoError(t, err)

	got, err := Open(key, iv, ciphertext, tag, []byte("doc-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = Open(key, iv, ciphertext, tag, []byte("doc-2"))
	assert.ErrorIs(t, err, types.ErrAuthentication)
}

func TestSplit_TooShort(t *testing.T) {
	for _, n := range []int{0, 1, IVLen, minPayloadLen - 1} {
		_, _, _, err := Split(make([]byte, n))
		assert.ErrorIs(t, err, types.ErrMalformedCiphertext, "length %d", n)
	}

	// Exactly IV+tag is a valid frame for an empty plaintext.
	key := newTestKey(t)
	payload, err := SealPayload(key, nil, nil)
	require.NoError(t, err)
	require.Len(t, payload, minPayloadLen)

	got, err := OpenPayload(key, payload, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPayload_RoundTripThroughBase64(t *testing.T) {
	key := newTestKey(t)

	payload, err := SealPayload(key, []byte("Hello World"), nil)
	require.NoError(t, err)

	decoded, err := DecodePayload(EncodePayload(payload))
	require.NoError(t, err)

	got, err := OpenPayload(key, decoded, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hello World"), got)
}

func TestDecodePayload_InvalidBase64(t *testing.T) {
	_, err := DecodePayload("not--valid--base64!!!")
	assert.ErrorIs(t, err, types.ErrMalformedCiphertext)
}

func TestSeal_BadKeyLength(t *testing.T) {
	_, _, _, err := Seal(make([]byte, 16), []byte("x"), nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}
