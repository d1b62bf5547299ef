package security

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-accounts/core"
)

const testLocalKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("accounts-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("token-value-123")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to differ from plaintext")
	}
	if !IsSealed(encrypted) {
		t.Fatalf("expected envelope prefix")
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}

	metadata, err := ParseEnvelopeMetadata(encrypted)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if metadata.KeyID != "accounts-v1" || metadata.Version != 3 || metadata.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected metadata %#v", metadata)
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("accounts-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("accounts-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	_, err = receiver.Decrypt(context.Background(), encrypted)
	if !core.IsKind(err, core.ErrorInvalidCredentials) {
		t.Fatalf("expected invalid credentials for metadata mismatch, got %v", err)
	}
}

func TestAppKeySecretProvider_WrongKeyFailsAuthentication(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromHex(testLocalKey, WithKeyID("k1"))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	other, err := NewAppKeySecretProviderFromHex(strings.Repeat("ab", 32), WithKeyID("k1"))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	sealed, err := issuer.SealString(context.Background(), "password", "hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := other.OpenString(context.Background(), "password", sealed); !core.IsKind(err, core.ErrorInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestAppKeySecretProvider_PurposeIsBound(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromHex(testLocalKey, WithKeyID("k1"))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	sealed, err := provider.SealString(context.Background(), "password", "hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := provider.OpenString(context.Background(), "username", sealed); err == nil {
		t.Fatalf("expected purpose mismatch to fail")
	}
	opened, err := provider.OpenString(context.Background(), "password", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "hunter2" {
		t.Fatalf("expected hunter2, got %q", opened)
	}
}

func TestNewAppKeySecretProviderFromHex_RejectsMalformedKeys(t *testing.T) {
	for _, key := range []string{"", "zz", "0011", strings.Repeat("ab", 31)} {
		if _, err := NewAppKeySecretProviderFromHex(key); !core.IsKind(err, core.ErrorInvalidCredentials) {
			t.Fatalf("expected invalid credentials for %q, got %v", key, err)
		}
	}
}

func TestDecodeEnvelope_RejectsUnprefixedPayload(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromHex(testLocalKey)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Decrypt(context.Background(), []byte(`{"kid":"local-key"}`)); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
}
