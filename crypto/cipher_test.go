package crypto

import (
	"errors"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"Simple", "hello"},
		{"Empty", ""},
		{"Unicode", "héllo wörld — 你好"},
		{"Long", string(make([]byte, 64*1024))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			got, err := Decrypt(blob, key)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("round trip mismatch: got %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	k2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	blob, err := Encrypt("secret", k1)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = Decrypt(blob, k2)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	tests := []struct {
		name string
		blob string
	}{
		{"Empty", ""},
		{"NotBase64", "!!! not base64 !!!"},
		{"ShorterThanNonce", "AAAA"},
		{"TruncatedCiphertext", func() string {
			blob, _ := Encrypt("hello", key)
			return blob[:len(blob)-8]
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.blob, key)
			if !errors.Is(err, ErrDecryptionFailed) {
				t.Errorf("Decrypt(%q) expected ErrDecryptionFailed, got %v", tt.blob, err)
			}
		})
	}
}

func TestEncrypt_NonceUniqueness(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		blob, err := Encrypt("same plaintext", key)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if seen[blob] {
			t.Fatal("two encryptions of the same plaintext produced the same blob")
		}
		seen[blob] = true
	}
}

func TestKeyEncoding_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	decoded, err := DecodeKey(EncodeKey(key))
	if err != nil {
		t.Fatalf("DecodeKey failed: %v", err)
	}
	if *decoded != *key {
		t.Error("key encode/decode round trip mismatch")
	}
}

func TestDecodeKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"Empty", ""},
		{"NotBase64", "%%%"},
		{"WrongLength", "AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeKey(tt.in); err == nil {
				t.Errorf("DecodeKey(%q) expected error, got nil", tt.in)
			}
		})
	}
}
