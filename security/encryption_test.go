package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if len(key) != 32 {
		t.Errorf("GenerateKey() returned key of length %d, want 32", len(key))
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("GenerateKey() returned identical keys")
	}
}

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name       string
		key        []byte
		wantErr    bool
		wantEnable bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32), wantEnable: true},
		{name: "nil key (disabled)", key: nil},
		{name: "empty key (disabled)", key: []byte{}},
		{name: "short key", key: make([]byte, 16), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if enc.IsEnabled() != tt.wantEnable {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnable)
			}
		})
	}
}

func TestEncryptor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	plaintext := "1000.abcdef.access-token"
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == plaintext || strings.Contains(ciphertext, plaintext) {
		t.Fatal("Encrypt() returned plaintext")
	}
	if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
		t.Errorf("ciphertext is not base64: %v", err)
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptor_EmptyAndDisabled(t *testing.T) {
	var nilEnc *Encryptor
	if nilEnc.IsEnabled() {
		t.Error("nil encryptor reports enabled")
	}

	disabled, _ := NewEncryptor(nil)
	out, err := disabled.Encrypt("secret")
	if err != nil || out != "secret" {
		t.Errorf("disabled Encrypt() = %q, %v", out, err)
	}

	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)
	out, err = enc.Encrypt("")
	if err != nil || out != "" {
		t.Errorf("Encrypt(\"\") = %q, %v", out, err)
	}
}

func TestEncryptor_DecryptWithWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()
	enc1, _ := NewEncryptor(key1)
	enc2, _ := NewEncryptor(key2)

	ciphertext, err := enc1.Encrypt("refresh-token")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() with wrong key succeeded")
	}
	if _, err := enc1.Decrypt("not base64!"); err == nil {
		t.Error("Decrypt() of invalid base64 succeeded")
	}
	if _, err := enc1.Decrypt(base64.StdEncoding.EncodeToString([]byte("short"))); !errors.Is(err, errCiphertextTooShort) {
		t.Errorf("Decrypt() of short value error = %v, want %v", err, errCiphertextTooShort)
	}
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey("operator-secret", "tokens")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(k1) != 32 {
		t.Fatalf("DeriveKey() length = %d, want 32", len(k1))
	}

	k2, _ := DeriveKey("operator-secret", "tokens")
	if !bytes.Equal(k1, k2) {
		t.Error("DeriveKey() is not deterministic")
	}

	k3, _ := DeriveKey("operator-secret", "states")
	if bytes.Equal(k1, k3) {
		t.Error("DeriveKey() ignored the salt")
	}

	if _, err := DeriveKey("", "tokens"); err == nil {
		t.Error("DeriveKey() accepted an empty secret")
	}
}

func TestKeyFromBase64(t *testing.T) {
	key, _ := GenerateKey()
	decoded, err := KeyFromBase64(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Error("KeyFromBase64() returned a different key")
	}

	if _, err := KeyFromBase64(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("KeyFromBase64() accepted a short key")
	}
}
