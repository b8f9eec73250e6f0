package audit

import (
	"strings"
	"testing"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}
	if !enc.IsEnabled() {
		t.Fatal("encryptor with a key should be enabled")
	}

	plaintext := `{"client_email":"maria@example.com","device":"iPhone"}`

	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if ciphertext == plaintext {
		t.Error("ciphertext should differ from plaintext")
	}
	if strings.Contains(ciphertext, "maria") {
		t.Error("ciphertext should not leak plaintext content")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptor_UniqueNonces(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	c1, _ := enc.Encrypt("same input")
	c2, _ := enc.Encrypt("same input")
	if c1 == c2 {
		t.Error("encrypting the same plaintext twice should produce different ciphertexts")
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	enc, err := NewEncryptor(nil)
	if err != nil {
		t.Fatalf("NewEncryptor(nil) error = %v", err)
	}
	if enc.IsEnabled() {
		t.Fatal("encryptor without a key should be disabled")
	}

	out, err := enc.Encrypt("passthrough")
	if err != nil || out != "passthrough" {
		t.Errorf("disabled Encrypt() = %q, %v; want passthrough, nil", out, err)
	}
	out, err = enc.Decrypt("passthrough")
	if err != nil || out != "passthrough" {
		t.Errorf("disabled Decrypt() = %q, %v; want passthrough, nil", out, err)
	}
}

func TestEncryptor_InvalidKeySize(t *testing.T) {
	if _, err := NewEncryptor([]byte("too short")); err == nil {
		t.Error("NewEncryptor should reject keys that are not 32 bytes")
	}
}

func TestEncryptor_DecryptErrors(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	if _, err := enc.Decrypt("not base64!!!"); err == nil {
		t.Error("Decrypt should reject invalid base64")
	}
	if _, err := enc.Decrypt("c2hvcnQ="); err == nil {
		t.Error("Decrypt should reject ciphertext shorter than the nonce")
	}

	// Tampering must be detected.
	ciphertext, _ := enc.Encrypt("important details")
	otherKey, _ := GenerateKey()
	otherEnc, _ := NewEncryptor(otherKey)
	if _, err := otherEnc.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt with the wrong key should fail")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	key, err := DeriveKey("correct horse battery staple", salt)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("derived key length = %d, want 32", len(key))
	}

	// Deterministic for the same inputs, usable by the encryptor.
	again, _ := DeriveKey("correct horse battery staple", salt)
	if string(key) != string(again) {
		t.Error("the same passphrase and salt should derive the same key")
	}
	if _, err := NewEncryptor(key); err != nil {
		t.Errorf("NewEncryptor(derived key) error = %v", err)
	}

	other, _ := DeriveKey("another passphrase", salt)
	if string(key) == string(other) {
		t.Error("different passphrases should derive different keys")
	}

	if _, err := DeriveKey("", salt); err == nil {
		t.Error("DeriveKey should reject an empty passphrase")
	}
	if _, err := DeriveKey("pass", []byte("short")); err == nil {
		t.Error("DeriveKey should reject short salts")
	}
}

func TestKeyBase64RoundTrip(t *testing.T) {
	key, _ := GenerateKey()

	encoded := KeyToBase64(key)
	decoded, err := KeyFromBase64(encoded)
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if string(decoded) != string(key) {
		t.Error("key should survive a base64 round trip")
	}

	if _, err := KeyFromBase64("dG9vIHNob3J0"); err == nil {
		t.Error("KeyFromBase64 should reject keys that are not 32 bytes")
	}
}
