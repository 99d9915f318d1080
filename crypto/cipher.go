// Package crypto implements the room message cipher: authenticated symmetric
// encryption of text payloads under per-room keys. Blobs are a random nonce
// followed by the secretbox ciphertext, base64-encoded as a single string, so
// the server can store and forward them without ever being able to read them.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/jmcleod/taskveil/internal/util"
)

const (
	// KeySize is the length of a room key in bytes.
	KeySize = 32
	// NonceSize is the length of the per-message nonce in bytes.
	NonceSize = 24
)

// ErrDecryptionFailed indicates a blob could not be decrypted. Wrong key,
// truncation, corruption and tampering are deliberately indistinguishable.
var ErrDecryptionFailed = errors.New("decryption failed")

// GenerateKey produces a new random room key. Keys are opaque random
// material; they are never derived from user input.
func GenerateKey() (*[KeySize]byte, error) {
	var key [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("generating room key: %w", err)
	}
	return &key, nil
}

// Encrypt seals the UTF-8 bytes of plaintext under key with a fresh random
// nonce and returns base64(nonce ‖ ciphertext).
func Encrypt(plaintext string, key *[KeySize]byte) (string, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return util.Base64Encode(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Every failure mode returns
// ErrDecryptionFailed so callers cannot learn whether the key was wrong or
// the blob was damaged.
func Decrypt(blob string, key *[KeySize]byte) (string, error) {
	raw, err := util.Base64Decode(blob)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < NonceSize {
		return "", ErrDecryptionFailed
	}
	var nonce [NonceSize]byte
	copy(nonce[:], raw[:NonceSize])
	plaintext, ok := secretbox.Open(nil, raw[NonceSize:], &nonce, key)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// EncodeKey renders a key as base64 for transport inside the room listing.
func EncodeKey(key *[KeySize]byte) string {
	return util.Base64Encode(key[:])
}

// DecodeKey parses a base64 key delivered with the room listing.
func DecodeKey(s string) (*[KeySize]byte, error) {
	raw, err := util.Base64Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decoding room key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("invalid room key size: got %d, want %d", len(raw), KeySize)
	}
	var key [KeySize]byte
	copy(key[:], raw)
	util.WipeBytes(raw)
	return &key, nil
}
