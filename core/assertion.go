package core

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	assertionKeyInfo = "identity.mozilla.com/picl/v1/assertion"
	assertionKeySize = 32
)

// SyncKeys is the key material a sync session is opened with.
type SyncKeys struct {
	SyncKey string `json:"sync_key"`
	XCS     string `json:"xcs"`
}

// GetSyncKeys derives sync key material from the oldsync scoped key.
func (a *AccountSession) GetSyncKeys(ctx context.Context) (keys SyncKeys, err error) {
	if err := a.check(); err != nil {
		return SyncKeys{}, err
	}
	startedAt := time.Now()
	defer func() {
		a.observeOperation(ctx, startedAt, "get_sync_keys", err, map[string]any{"client_id": a.clientID})
	}()

	key, ok := a.scopedKeys[ScopeOldSync]
	if !ok {
		key, ok = a.cache.FindKey(ScopeOldSync)
	}
	if !ok {
		return SyncKeys{}, NewError(ErrorUnauthorized, "core: no key material for the sync scope")
	}
	return SyncKeysFromScopedKey(key)
}

// SyncKeysFromScopedKey converts a base64url scoped key into hex sync key
// material. The client state is the suffix of the key id after its
// generation prefix.
func SyncKeysFromScopedKey(key ScopedKey) (SyncKeys, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(key.Key), "="))
	if err != nil {
		return SyncKeys{}, WrapError(err, ErrorBadInput, "core: scoped key is not valid base64url")
	}
	if len(raw) == 0 {
		return SyncKeys{}, NewError(ErrorBadInput, "core: scoped key is empty")
	}
	kid := strings.TrimSpace(key.KeyID)
	_, xcs, found := strings.Cut(kid, "-")
	if !found || xcs == "" {
		return SyncKeys{}, NewError(ErrorBadInput, "core: scoped key id has no client state")
	}
	return SyncKeys{
		SyncKey: hex.EncodeToString(raw),
		XCS:     xcs,
	}, nil
}

// GenerateAssertion signs a short-lived claim for audience with a key
// derived from the account's current key material.
func (a *AccountSession) GenerateAssertion(ctx context.Context, audience string) (assertion string, err error) {
	if err := a.check(); err != nil {
		return "", err
	}
	startedAt := time.Now()
	fields := map[string]any{"client_id": a.clientID, "audience": audience}
	defer func() {
		a.observeOperation(ctx, startedAt, "generate_assertion", err, fields)
	}()

	audience = strings.TrimSpace(audience)
	if audience == "" {
		return "", NewError(ErrorBadInput, "core: assertion audience is required")
	}
	secret, err := a.assertionSecret()
	if err != nil {
		return "", err
	}
	signingKey, err := deriveAssertionKey(secret)
	if err != nil {
		return "", err
	}
	jti, err := randomURLToken(16)
	if err != nil {
		return "", WrapError(err, ErrorInternal, "core: generate assertion id")
	}

	now := a.now()
	subject := a.uid
	if subject == "" {
		subject = a.clientID
	}
	claims := jwt.RegisteredClaims{
		Issuer:    a.endpoints.AuthURL,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.assertionTTL)),
		ID:        jti,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		return "", WrapError(err, ErrorInternal, "core: sign assertion")
	}
	return signed, nil
}

// VerifyAssertion checks an assertion produced for the same key material.
func (a *AccountSession) VerifyAssertion(token, audience string) (*jwt.RegisteredClaims, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	secret, err := a.assertionSecret()
	if err != nil {
		return nil, err
	}
	signingKey, err := deriveAssertionKey(secret)
	if err != nil {
		return nil, err
	}
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, WrapError(err, ErrorUnauthorized, "core: assertion rejected")
	}
	return claims, nil
}

func (a *AccountSession) assertionSecret() ([]byte, error) {
	if token := strings.TrimSpace(a.sessionToken); token != "" {
		if raw, err := hex.DecodeString(token); err == nil {
			return raw, nil
		}
		return []byte(token), nil
	}
	if key, ok := a.scopedKeys[ScopeOldSync]; ok {
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key.Key, "="))
		if err == nil && len(raw) > 0 {
			return raw, nil
		}
	}
	return nil, NewError(ErrorUnauthorized, "core: no key material available for assertions")
}

func deriveAssertionKey(secret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(assertionKeyInfo))
	key := make([]byte, assertionKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, WrapError(err, ErrorInternal, "core: derive assertion key")
	}
	return key, nil
}
