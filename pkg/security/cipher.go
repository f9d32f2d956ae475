package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySalt = "cleandoc-objectstore"
	keyInfo = "aes-256-gcm at-rest key"
)

// Cipher encrypts objects at rest with AES-256-GCM
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a cipher from a 32 byte key
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: gcm}, nil
}

// NewCipherFromPassphrase derives the key with HKDF-SHA256
func NewCipherFromPassphrase(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(passphrase), []byte(keySalt), []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return NewCipher(key)
}

// Encrypt seals plaintext and returns nonce || ciphertext.
// The object key is bound as additional data so a blob cannot be
// replayed under another key.
func (c *Cipher) Encrypt(plaintext []byte, objectKey string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, []byte(objectKey)), nil
}

// Decrypt opens data produced by Encrypt for the same object key
func (c *Cipher) Decrypt(ciphertext []byte, objectKey string) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, []byte(objectKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
