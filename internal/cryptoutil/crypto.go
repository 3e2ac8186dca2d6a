// Package cryptoutil implements the symmetric authenticated encryption used
// by the Transfer Engine (spec.md §4.5) and the key material format
// (spec.md §6): 32 raw bytes, AES-256-GCM, a random 96-bit nonce prefixed to
// the ciphertext.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	cryptorand "crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jelasin/gosync/internal/pathutil"
)

const KeySize = 32

var (
	ErrInvalidKeySize  = errors.New("cryptoutil: key must be 32 bytes")
	ErrCiphertextShort = errors.New("cryptoutil: ciphertext shorter than nonce")
)

// GenerateKey returns 32 cryptographically random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(cryptorand.Reader, key); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate key: %w", err)
	}
	return key, nil
}

// SaveKey writes key to path, base64-encoded, with file mode 0600.
func SaveKey(path string, key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKeySize
	}
	if err := pathutil.EnsureParent(path); err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	return os.WriteFile(path, []byte(encoded), 0o600)
}

// LoadKey reads and base64-decodes a key file written by SaveKey.
func LoadKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: read key file: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decode key file: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return key, nil
}

// Encrypt seals plaintext under key with a fresh random nonce, returning
// nonce||ciphertext||tag.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(cryptorand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt: it splits the leading nonce from sealed and
// verifies the AEAD tag.
func Decrypt(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, ErrCiphertextShort
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
