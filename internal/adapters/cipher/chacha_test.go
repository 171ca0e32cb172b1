package cipher

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/recordvault/internal/core/domain"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

func TestNewXChaChaRejectsShortKey(t *testing.T) {
	if _, err := NewXChaCha([]byte("too short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewXChaCha(testKey(1))
	if err != nil {
		t.Fatalf("construct cipher: %v", err)
	}

	plaintext := []byte(`{"password":"hunter2"}`)
	ct, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if ct == string(plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := c.Decrypt(ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	c, _ := NewXChaCha(testKey(1))

	a, err := c.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := c.Encrypt([]byte("same input"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestDecryptFailsWithWrongKey(t *testing.T) {
	c1, _ := NewXChaCha(testKey(1))
	c2, _ := NewXChaCha(testKey(2))

	ct, err := c1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := c2.Decrypt(ct); !errors.Is(err, domain.ErrEncryption) {
		t.Fatalf("expected encryption error, got %v", err)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	c, _ := NewXChaCha(testKey(1))

	ct, err := c.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(ct)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := c.Decrypt(tampered); !errors.Is(err, domain.ErrEncryption) {
		t.Fatalf("expected encryption error, got %v", err)
	}
}

func TestDecryptFailsOnGarbageInput(t *testing.T) {
	c, _ := NewXChaCha(testKey(1))

	for _, ct := range []string{"not base64 at all!", base64.StdEncoding.EncodeToString([]byte("short"))} {
		if _, err := c.Decrypt(ct); !errors.Is(err, domain.ErrEncryption) {
			t.Fatalf("expected encryption error for %q, got %v", ct, err)
		}
	}
}
