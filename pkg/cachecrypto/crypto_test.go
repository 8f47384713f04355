package cachecrypto

import (
	"bytes"
	"testing"
)

func TestAESGCMRoundTrip(t *testing.T) {
	p, err := NewAESGCMProviderFromPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewAESGCMProviderFromPassword: %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", nil},
		{"short", []byte("hi")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x20, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := p.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if len(tt.plaintext) == 0 && len(ciphertext) != 0 {
				t.Fatalf("expected empty passthrough, got %d bytes", len(ciphertext))
			}

			plaintext, err := p.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(plaintext, tt.plaintext) {
				t.Fatalf("round-trip mismatch: got %v, want %v", plaintext, tt.plaintext)
			}
		})
	}
}

func TestAESGCMRejectsShortKey(t *testing.T) {
	if _, err := NewAESGCMProvider([]byte("too-short")); err == nil {
		t.Fatal("expected error for non-32-byte key")
	}
}

func TestAESGCMDecryptTamperedCiphertext(t *testing.T) {
	p, _ := NewAESGCMProviderFromPassword("pw")
	ciphertext, _ := p.Encrypt([]byte("secret payload"))
	ciphertext[len(ciphertext)-1] ^= 0xFF

	if _, err := p.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decrypt to fail on tampered ciphertext")
	}
}

func TestNopProvider(t *testing.T) {
	var p NopProvider
	data := []byte("passthrough")
	got, err := p.Encrypt(data)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("NopProvider.Encrypt should pass through unchanged, got %v, err %v", got, err)
	}
	got, err = p.Decrypt(data)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("NopProvider.Decrypt should pass through unchanged, got %v, err %v", got, err)
	}
}
