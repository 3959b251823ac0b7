// Package classifier decides heuristically whether an opaque byte blob is
// already-encrypted data or a known plaintext file format. The result is
// advisory: it resolves ambiguity when stored metadata is inconsistent with
// the actual bytes, and never overrides a self-consistent metadata record.
package classifier

import (
	"bytes"
	"math"
	"unicode/utf8"
)

// entropyThreshold is bits per byte out of a possible 8.0. High enough to
// flag ciphertext while tolerating compressed-but-plaintext-adjacent data
// when no encryption metadata exists.
const entropyThreshold = 7.5

// entropySampleLen bounds the entropy computation to the head of the buffer.
const entropySampleLen = 1024

// plaintextSignatures are container-format magic numbers that mark a buffer
// as not encrypted regardless of its entropy.
var plaintextSignatures = [][]byte{
	[]byte("%PDF"),
	{0x50, 0x4B, 0x03, 0x04}, // zip family: docx, xlsx, pptx
	{0xFF, 0xD8, 0xFF},       // JPEG
	{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, // PNG
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	[]byte("BM"),   // bitmap
	[]byte("RIFF"), // wav, webp
}

// LooksEncrypted reports whether data appears to be ciphertext. Decision
// order, first match wins:
//
//  1. known plaintext container signature -> false
//  2. buffer decodes fully as UTF-8 text  -> false
//  3. encryption metadata present and Shannon entropy of the first
//     min(1024, len) bytes exceeds 7.5 bits/byte -> true
//  4. default -> false
//
// Signatures and valid UTF-8 are strong, cheap signals that short-circuit
// before the statistical entropy test.
func LooksEncrypted(data []byte, hasEncryptionMetadata bool) bool {
	if len(data) == 0 {
		return false
	}

	for _, sig := range plaintextSignatures {
		if bytes.HasPrefix(data, sig) {
			return false
		}
	}

	if utf8.Valid(data) {
		return false
	}

	if hasEncryptionMetadata {
		sample := data
		if len(sample) > entropySampleLen {
			sample = sample[:entropySampleLen]
		}
		if ShannonEntropy(sample) > entropyThreshold {
			return true
		}
	}

	return false
}

// ShannonEntropy computes H = -sum(p_i * log2(p_i)) over the byte-value
// frequencies of data, in bits per byte.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	total := float64(len(data))
	var entropy float64
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
