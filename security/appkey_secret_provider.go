package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-accounts/core"
)

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals values with AES-256-GCM under one local key.
// Sealed values record the key id and version they were produced with, and
// Decrypt refuses values sealed under a different key.
type AppKeySecretProvider struct {
	key     []byte
	keyID   string
	version int
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, core.NewError(core.ErrorInvalidCredentials, "security: key material is required")
	}
	return newAppKeySecretProvider(normalizeKey(key), opts...), nil
}

func newAppKeySecretProvider(key []byte, opts ...Option) *AppKeySecretProvider {
	provider := &AppKeySecretProvider{
		key:     key,
		keyID:   "local-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

// NewAppKeySecretProviderFromHex builds a provider from a hex encoded
// 32-byte key, the form local encryption keys are handed over in.
func NewAppKeySecretProviderFromHex(hexKey string, opts ...Option) (*AppKeySecretProvider, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInvalidCredentials, "security: encryption key is not valid hex")
	}
	if len(raw) != 32 {
		return nil, core.NewError(core.ErrorInvalidCredentials, fmt.Sprintf("security: encryption key must be 32 bytes, got %d", len(raw)))
	}
	return newAppKeySecretProvider(raw, opts...), nil
}

func (p *AppKeySecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return p.Seal(ctx, "", plaintext)
}

func (p *AppKeySecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return p.Open(ctx, "", ciphertext)
}

// Seal encrypts plaintext for purpose. The purpose is authenticated but not
// encrypted, and Open must be given the same value.
func (p *AppKeySecretProvider) Seal(_ context.Context, purpose string, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, core.NewError(core.ErrorInternal, "security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, core.NewError(core.ErrorBadInput, "security: plaintext is required")
	}
	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "security: nonce generation failed")
	}

	purpose = strings.TrimSpace(purpose)
	sealed := gcm.Seal(nil, nonce, plaintext, p.additionalData(purpose))
	return encodeEnvelope(envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  envelopeAlgorithm,
		Purpose:    purpose,
		Nonce:      encodeCiphertextPayload(nonce),
		Ciphertext: encodeCiphertextPayload(sealed),
	})
}

func (p *AppKeySecretProvider) Open(_ context.Context, purpose string, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, core.NewError(core.ErrorInternal, "security: secret provider is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	if parsed.KeyID != "" && parsed.KeyID != p.keyID {
		return nil, core.NewError(core.ErrorInvalidCredentials,
			fmt.Sprintf("security: key id mismatch: got %q want %q", parsed.KeyID, p.keyID))
	}
	if parsed.Version > 0 && parsed.Version != p.version {
		return nil, core.NewError(core.ErrorInvalidCredentials,
			fmt.Sprintf("security: key version mismatch: got %d want %d", parsed.Version, p.version))
	}
	purpose = strings.TrimSpace(purpose)
	if parsed.Purpose != purpose {
		return nil, core.NewError(core.ErrorBadInput,
			fmt.Sprintf("security: sealed value purpose mismatch: got %q want %q", parsed.Purpose, purpose))
	}

	nonce, err := decodeCiphertextPayload(parsed.Nonce)
	if err != nil {
		return nil, err
	}
	payload, err := decodeCiphertextPayload(parsed.Ciphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, core.NewError(core.ErrorBadInput, "security: envelope nonce has the wrong size")
	}
	plaintext, err := gcm.Open(nil, nonce, payload, p.additionalData(purpose))
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInvalidCredentials, "security: decrypt payload")
	}
	return plaintext, nil
}

// SealString and OpenString are the column-friendly forms of Seal and Open.
func (p *AppKeySecretProvider) SealString(ctx context.Context, purpose, plaintext string) (string, error) {
	sealed, err := p.Seal(ctx, purpose, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

func (p *AppKeySecretProvider) OpenString(ctx context.Context, purpose, ciphertext string) (string, error) {
	plaintext, err := p.Open(ctx, purpose, []byte(ciphertext))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

func (p *AppKeySecretProvider) Metadata() (string, int) {
	return p.KeyID(), p.Version()
}

func (p *AppKeySecretProvider) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "security: create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "security: create gcm")
	}
	return gcm, nil
}

func (p *AppKeySecretProvider) additionalData(purpose string) []byte {
	return []byte(fmt.Sprintf("%s|%d|%s", p.keyID, p.version, purpose))
}

func normalizeKey(value []byte) []byte {
	if len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)

var _ core.FieldSealer = (*AppKeySecretProvider)(nil)

// KeyFingerprint names a local key without revealing it.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return "local-" + hex.EncodeToString(sum[:8])
}
