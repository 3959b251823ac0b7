package classifier

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("failed to generate random bytes: %v", err)
	}
	return buf
}

func TestLooksEncrypted_ContainerSignatures(t *testing.T) {
	cases := []struct {
		name   string
		prefix []byte
	}{
		{"pdf", []byte("%PDF-1.4")},
		{"zip", []byte{0x50, 0x4B, 0x03, 0x04}},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
		{"gif87a", []byte("GIF87a")},
		{"gif89a", []byte("GIF89a")},
		{"bmp", []byte("BM")},
		{"riff", []byte("RIFF")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// A signature wins even when the body is pure noise and
			// encryption metadata claims otherwise.
			buf := append(append([]byte(nil), tc.prefix...), randomBytes(t, 2048)...)
			assert.False(t, LooksEncrypted(buf, true))
			assert.False(t, LooksEncrypted(buf, false))
		})
	}
}

func TestLooksEncrypted_UTF8Text(t *testing.T) {
	assert.False(t, LooksEncrypted([]byte("plain old document text"), true))
	assert.False(t, LooksEncrypted([]byte(strings.Repeat("a", 1024)), true))
	assert.False(t, LooksEncrypted([]byte("non-ASCII but valid: héllo wörld ☺"), true))
}

func TestLooksEncrypted_HighEntropyWithMetadata(t *testing.T) {
	// Every byte value equally often: entropy is exactly 8.0 bits/byte and
	// the buffer is not valid UTF-8.
	uniform := make([]byte, 0, 1024)
	for i := 0; i < 4; i++ {
		for b := 0; b < 256; b++ {
			uniform = append(uniform, byte(b))
		}
	}
	assert.True(t, LooksEncrypted(uniform, true))

	// Without encryption metadata the entropy test is skipped entirely.
	assert.False(t, LooksEncrypted(uniform, false))

	assert.True(t, LooksEncrypted(randomBytes(t, 1024), true))
}

func TestLooksEncrypted_LowEntropyBinary(t *testing.T) {
	// Invalid UTF-8 but nearly constant content: entropy stays far below
	// the threshold.
	buf := bytes.Repeat([]byte{0xFE, 0xFE, 0xFE, 0x00}, 256)
	assert.False(t, LooksEncrypted(buf, true))
}

func TestLooksEncrypted_CompressedArchiveWithoutMetadata(t *testing.T) {
	// xz output is high-entropy binary, but with no encryption metadata it
	// must never be flagged as ciphertext.
	var compressed bytes.Buffer
	w, err := xz.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = w.Write(randomBytes(t, 4096))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.False(t, LooksEncrypted(compressed.Bytes(), false))
}

func TestLooksEncrypted_Empty(t *testing.T) {
	assert.False(t, LooksEncrypted(nil, true))
	assert.False(t, LooksEncrypted([]byte{}, false))
}

func TestShannonEntropy(t *testing.T) {
	assert.Equal(t, 0.0, ShannonEntropy(nil))
	assert.Equal(t, 0.0, ShannonEntropy(bytes.Repeat([]byte{0x41}, 512)))

	// Two symbols, equal frequency: exactly 1 bit/byte.
	assert.InDelta(t, 1.0, ShannonEntropy(bytes.Repeat([]byte{0x00, 0x01}, 512)), 1e-9)

	// All 256 symbols, equal frequency: exactly 8 bits/byte.
	uniform := make([]byte, 256)
	for i := range uniform {
		uniform[i] = byte(i)
	}
	assert.InDelta(t, 8.0, ShannonEntropy(uniform), 1e-9)
}
