// Package cipher wraps an AEAD primitive with a self-contained,
// Fernet-equivalent token: a version byte, a big-endian Unix timestamp, a
// random nonce, and the sealed ciphertext (authentication tag bundled in by
// the AEAD itself). Grounded on the chunked-AEAD design used elsewhere in
// the retrieved corpus (XChaCha20-Poly1305 via golang.org/x/crypto), cut
// down to a single seal per upload since blobs here are capped at 1 MiB and
// read fully into memory rather than streamed in chunks.
package cipher

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	tokenVersion = 1

	// KeySize is the length in bytes of a generated encryption key.
	KeySize = chacha20poly1305.KeySize

	headerLen = 1 + 8 // version + timestamp
)

// ErrDecryptionFailure is returned by Decrypt on authentication failure,
// a malformed token, or (when ttl is set) an expired timestamp.
var ErrDecryptionFailure = fmt.Errorf("cipher: decryption failed")

// GenerateKey returns a fresh random key suitable for Encrypt/Decrypt.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cipher: generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key, returning a self-contained token:
// version || timestamp || nonce || ciphertext+tag.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: build aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cipher: generate nonce: %w", err)
	}

	header := make([]byte, headerLen)
	header[0] = tokenVersion
	binary.BigEndian.PutUint64(header[1:], uint64(time.Now().Unix()))

	out := make([]byte, 0, headerLen+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, header)
	return out, nil
}

// Decrypt opens a token produced by Encrypt. If ttl is non-zero, tokens
// whose embedded timestamp is older than ttl are rejected with
// ErrDecryptionFailure, mirroring Fernet's optional ttl parameter.
func Decrypt(token, key []byte, ttl time.Duration) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: build aead: %w", err)
	}
	if len(token) < headerLen+aead.NonceSize() {
		return nil, ErrDecryptionFailure
	}

	header := token[:headerLen]
	if header[0] != tokenVersion {
		return nil, ErrDecryptionFailure
	}

	if ttl > 0 {
		issued := time.Unix(int64(binary.BigEndian.Uint64(header[1:])), 0)
		if time.Since(issued) > ttl {
			return nil, ErrDecryptionFailure
		}
	}

	nonce := token[headerLen : headerLen+aead.NonceSize()]
	ciphertext := token[headerLen+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrDecryptionFailure
	}
	return plaintext, nil
}
