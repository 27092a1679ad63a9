package service

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := deriveKey("test-secret")

	plaintext := "APP_USR-1234567890-abcdef"
	envelope, err := encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if strings.Contains(envelope, plaintext) {
		t.Fatalf("envelope must not contain the plaintext")
	}

	decrypted, err := decrypt(key, envelope)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	envelope, err := encrypt(deriveKey("secret-a"), "token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := decrypt(deriveKey("secret-b"), envelope); err == nil {
		t.Fatalf("expected decryption failure with wrong key")
	}
}

func TestEncryptRequiresKey(t *testing.T) {
	if _, err := encrypt(nil, "token"); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestMaskTokenTruncates(t *testing.T) {
	masked := maskToken("APP_USR-1234567890")
	if masked != "APP_USR-..." {
		t.Fatalf("unexpected mask %q", masked)
	}
	if maskToken("short") != "********" {
		t.Fatalf("short tokens must be fully masked")
	}
}
