package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testSessionState() SessionState {
	return SessionState{
		Endpoints:    ReleaseEndpoints(),
		ClientID:     "client-1",
		UID:          "uid-1",
		RefreshToken: "refresh-1",
		AccessTokens: []AccessTokenInfo{{
			Scopes:    []string{"profile"},
			Token:     "access-1",
			ExpiresAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		}},
		ScopedKeys: map[string]ScopedKey{ScopeOldSync: {Scope: ScopeOldSync, KeyID: "1-x", Key: "k"}},
	}
}

func TestJSONSessionCodec_RoundTrip(t *testing.T) {
	ctx := context.Background()
	codec := JSONSessionCodec{}
	encoded, err := codec.Encode(ctx, testSessionState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Contains(encoded, "refresh-1") {
		t.Fatalf("expected opaque encoding")
	}
	decoded, err := codec.Decode(ctx, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Version != SessionStateVersion || decoded.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected decoded state %+v", decoded)
	}
	if decoded.ScopedKeys[ScopeOldSync].KeyID != "1-x" {
		t.Fatalf("expected scoped keys roundtrip")
	}
}

func TestJSONSessionCodec_RejectsForeignPayloads(t *testing.T) {
	ctx := context.Background()
	codec := JSONSessionCodec{}
	for _, payload := range []string{"", "{}", "accounts.session.v1:!!!", "accounts.session.v1:e30"} {
		if _, err := codec.Decode(ctx, payload); !IsKind(err, ErrorBadInput) {
			t.Fatalf("expected bad input for %q, got %v", payload, err)
		}
	}
}

func TestSealedSessionCodec_RoundTripAndPlainFallback(t *testing.T) {
	ctx := context.Background()
	codec := SealedSessionCodec{Secrets: testSecretProvider{}}
	sealed, err := codec.Encode(ctx, testSessionState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(sealed, "accounts.session.sealed.v1:") {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}
	decoded, err := codec.Decode(ctx, sealed)
	if err != nil {
		t.Fatalf("decode sealed: %v", err)
	}
	if decoded.ClientID != "client-1" {
		t.Fatalf("unexpected client id %q", decoded.ClientID)
	}

	plain, _ := JSONSessionCodec{}.Encode(ctx, testSessionState())
	if _, err := codec.Decode(ctx, plain); err != nil {
		t.Fatalf("expected plain state accepted, got %v", err)
	}
	if _, err := (SealedSessionCodec{}).Encode(ctx, testSessionState()); !IsKind(err, ErrorInternal) {
		t.Fatalf("expected missing secrets to fail, got %v", err)
	}
}
