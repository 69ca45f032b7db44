package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var ErrNoEncryptionKey = errors.New("credentials: CREDENTIALS_ENCRYPTION_KEY is not set")

// CipherBox wraps AES-256-GCM for credential configs. The key comes from
// CREDENTIALS_ENCRYPTION_KEY: either 64 hex chars, base64, or a raw
// passphrase hashed to 32 bytes.
type CipherBox struct {
	aead cipher.AEAD
}

func NewCipherBoxFromEnv() (*CipherBox, error) {
	raw := strings.TrimSpace(os.Getenv("CREDENTIALS_ENCRYPTION_KEY"))
	if raw == "" {
		return nil, ErrNoEncryptionKey
	}
	return NewCipherBox(deriveKey(raw))
}

func NewCipherBox(key []byte) (*CipherBox, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credentials: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: init gcm: %w", err)
	}
	return &CipherBox{aead: aead}, nil
}

// deriveKey turns the env value into a 32-byte AES key.
func deriveKey(raw string) []byte {
	if len(raw) == 64 {
		if key, err := hex.DecodeString(raw); err == nil {
			return key
		}
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == 32 {
		return key
	}
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// Seal encrypts plaintext, prepending the random nonce to the ciphertext.
func (c *CipherBox) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("credentials: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (c *CipherBox) Open(sealed []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("credentials: ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("credentials: decrypt config: %w", err)
	}
	return plaintext, nil
}

// hashConfig fingerprints the plaintext config for change detection.
func hashConfig(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}
