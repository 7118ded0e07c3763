package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes
const KeySize = 32

// encryptionKeyInfo binds derived keys to their use
const encryptionKeyInfo = "crm-oauth token encryption v1"

var errCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor seals token values with AES-256-GCM. Sealed values are
// base64(nonce || ciphertext || tag). The zero value, and a nil *Encryptor,
// pass values through unchanged.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor returns an Encryptor for key. An empty key yields a disabled
// Encryptor; any other length than KeySize is an error.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) == 0 {
		return &Encryptor{}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// IsEnabled reports whether values are actually sealed (nil-safe)
func (e *Encryptor) IsEnabled() bool {
	return e != nil && e.gcm != nil
}

// Encrypt seals plaintext. Empty strings are returned unchanged so that an
// absent refresh token stays absent.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if !e.IsEnabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	if !e.IsEnabled() || encoded == "" {
		return encoded, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	n := e.gcm.NonceSize()
	if len(sealed) < n+e.gcm.Overhead() {
		return "", errCiphertextTooShort
	}

	plaintext, err := e.gcm.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a random KeySize key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// DeriveKey stretches an operator secret into a KeySize key with HKDF-SHA256.
// The same secret and salt always give the same key.
func DeriveKey(secret, salt string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secret must not be empty")
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(encryptionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a standard base64 key, as printed by
// `openssl rand -base64 32`
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
