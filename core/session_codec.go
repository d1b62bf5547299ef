package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

const (
	SessionStateVersion = 1

	sessionPrefixPlainV1  = "accounts.session.v1:"
	sessionPrefixSealedV1 = "accounts.session.sealed.v1:"
)

// SessionState is everything needed to rebuild an AccountSession without
// new network calls.
type SessionState struct {
	Version            int                  `json:"version"`
	Endpoints          Endpoints            `json:"endpoints"`
	ClientID           string               `json:"client_id"`
	UID                string               `json:"uid,omitempty"`
	SessionToken       string               `json:"session_token,omitempty"`
	RefreshToken       string               `json:"refresh_token,omitempty"`
	RefreshTokenScopes []string             `json:"refresh_token_scopes,omitempty"`
	AccessTokens       []AccessTokenInfo    `json:"access_tokens,omitempty"`
	ScopedKeys         map[string]ScopedKey `json:"scoped_keys,omitempty"`
	FlowOwner          string               `json:"flow_owner,omitempty"`
	SavedAt            time.Time            `json:"saved_at"`
}

// SessionCodec turns session state into the opaque string handed to hosts.
type SessionCodec interface {
	Encode(ctx context.Context, state SessionState) (string, error)
	Decode(ctx context.Context, payload string) (SessionState, error)
}

type JSONSessionCodec struct{}

func (JSONSessionCodec) Encode(_ context.Context, state SessionState) (string, error) {
	raw, err := marshalSessionState(state)
	if err != nil {
		return "", err
	}
	return sessionPrefixPlainV1 + base64.RawURLEncoding.EncodeToString(raw), nil
}

func (JSONSessionCodec) Decode(_ context.Context, payload string) (SessionState, error) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, sessionPrefixPlainV1) {
		return SessionState{}, NewError(ErrorBadInput, "core: unsupported session state format")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(payload, sessionPrefixPlainV1))
	if err != nil {
		return SessionState{}, WrapError(err, ErrorBadInput, "core: session state is not valid base64")
	}
	return unmarshalSessionState(raw)
}

// SealedSessionCodec encrypts the state with a SecretProvider. It still reads
// plain states so hosts can migrate.
type SealedSessionCodec struct {
	Secrets SecretProvider
}

func (c SealedSessionCodec) Encode(ctx context.Context, state SessionState) (string, error) {
	if c.Secrets == nil {
		return "", NewError(ErrorInternal, "core: sealed session codec requires a secret provider")
	}
	raw, err := marshalSessionState(state)
	if err != nil {
		return "", err
	}
	sealed, err := c.Secrets.Encrypt(ctx, raw)
	if err != nil {
		return "", WrapError(err, ErrorInternal, "core: seal session state")
	}
	return sessionPrefixSealedV1 + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c SealedSessionCodec) Decode(ctx context.Context, payload string) (SessionState, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, sessionPrefixPlainV1) {
		return JSONSessionCodec{}.Decode(ctx, payload)
	}
	if !strings.HasPrefix(payload, sessionPrefixSealedV1) {
		return SessionState{}, NewError(ErrorBadInput, "core: unsupported session state format")
	}
	if c.Secrets == nil {
		return SessionState{}, NewError(ErrorInternal, "core: sealed session codec requires a secret provider")
	}
	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(payload, sessionPrefixSealedV1))
	if err != nil {
		return SessionState{}, WrapError(err, ErrorBadInput, "core: session state is not valid base64")
	}
	raw, err := c.Secrets.Decrypt(ctx, sealed)
	if err != nil {
		return SessionState{}, WrapError(err, ErrorBadInput, "core: unseal session state")
	}
	return unmarshalSessionState(raw)
}

func marshalSessionState(state SessionState) ([]byte, error) {
	if state.Version == 0 {
		state.Version = SessionStateVersion
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, WrapError(err, ErrorInternal, "core: encode session state")
	}
	return raw, nil
}

func unmarshalSessionState(raw []byte) (SessionState, error) {
	state := SessionState{}
	if err := json.Unmarshal(raw, &state); err != nil {
		return SessionState{}, WrapError(err, ErrorBadInput, "core: decode session state")
	}
	if state.Version != SessionStateVersion {
		return SessionState{}, NewError(ErrorBadInput, "core: unsupported session state version")
	}
	if strings.TrimSpace(state.ClientID) == "" {
		return SessionState{}, NewError(ErrorBadInput, "core: session state is missing the client id")
	}
	if err := state.Endpoints.Validate(); err != nil {
		return SessionState{}, err
	}
	if state.ScopedKeys == nil {
		state.ScopedKeys = map[string]ScopedKey{}
	}
	return state, nil
}
