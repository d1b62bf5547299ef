package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultOAuthFlowTTL      = 15 * time.Minute
	defaultConsumedRetention = time.Hour
)

// OAuthFlowState is an in-flight authorization request, keyed by its nonce.
type OAuthFlowState struct {
	State        string    `json:"state"`
	RedirectURI  string    `json:"redirect_uri"`
	Scopes       []string  `json:"scopes"`
	WantsKeys    bool      `json:"wants_keys"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OAuthFlowStore records flows between begin and complete. Consume hands a
// flow out at most once: an unknown or expired nonce fails with
// ErrorOAuthStateMismatch, a nonce that was already consumed fails with
// ErrorFlowAlreadyConsumed. Lookup reports the same errors without consuming.
//
// Keys are opaque to the store. FlowController prefixes every nonce with the
// owning session so one store can serve many sessions.
type OAuthFlowStore interface {
	Save(ctx context.Context, flow OAuthFlowState) error
	Lookup(ctx context.Context, state string) (OAuthFlowState, error)
	Consume(ctx context.Context, state string) (OAuthFlowState, error)
}

type MemoryOAuthFlowStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	retention time.Duration
	now       Clock
	entries   map[string]OAuthFlowState
	consumed  map[string]time.Time
}

func NewMemoryOAuthFlowStore(ttl time.Duration) *MemoryOAuthFlowStore {
	return NewMemoryOAuthFlowStoreWithRetention(ttl, defaultConsumedRetention, nil)
}

func NewMemoryOAuthFlowStoreWithRetention(ttl, retention time.Duration, clock Clock) *MemoryOAuthFlowStore {
	if ttl <= 0 {
		ttl = defaultOAuthFlowTTL
	}
	if retention < 0 {
		retention = 0
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryOAuthFlowStore{
		ttl:       ttl,
		retention: retention,
		now:       clock,
		entries:   map[string]OAuthFlowState{},
		consumed:  map[string]time.Time{},
	}
}

func (s *MemoryOAuthFlowStore) Save(_ context.Context, flow OAuthFlowState) error {
	if s == nil {
		return NewError(ErrorInternal, "core: oauth flow store is not configured")
	}
	state := strings.TrimSpace(flow.State)
	if state == "" {
		return NewError(ErrorBadInput, "core: oauth state is required")
	}

	now := s.now()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	if flow.ExpiresAt.IsZero() {
		flow.ExpiresAt = flow.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	if _, used := s.consumed[state]; used {
		return NewError(ErrorFlowAlreadyConsumed, "core: oauth state was already used")
	}
	s.entries[state] = cloneOAuthFlowState(flow)
	return nil
}

func (s *MemoryOAuthFlowStore) Lookup(_ context.Context, state string) (OAuthFlowState, error) {
	if s == nil {
		return OAuthFlowState{}, NewError(ErrorInternal, "core: oauth flow store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return OAuthFlowState{}, NewError(ErrorOAuthStateMismatch, "core: oauth state is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.consumed[state]; used {
		return OAuthFlowState{}, NewError(ErrorFlowAlreadyConsumed, "core: oauth flow already completed")
	}
	flow, ok := s.entries[state]
	if !ok {
		return OAuthFlowState{}, NewError(ErrorOAuthStateMismatch, "core: oauth state does not match any pending flow")
	}
	if !flow.ExpiresAt.IsZero() && now.After(flow.ExpiresAt) {
		delete(s.entries, state)
		return OAuthFlowState{}, NewError(ErrorOAuthStateMismatch, "core: oauth state expired")
	}
	return cloneOAuthFlowState(flow), nil
}

func (s *MemoryOAuthFlowStore) Consume(_ context.Context, state string) (OAuthFlowState, error) {
	if s == nil {
		return OAuthFlowState{}, NewError(ErrorInternal, "core: oauth flow store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return OAuthFlowState{}, NewError(ErrorOAuthStateMismatch, "core: oauth state is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.consumed[state]; used {
		return OAuthFlowState{}, NewError(ErrorFlowAlreadyConsumed, "core: oauth flow already completed")
	}
	flow, ok := s.entries[state]
	if !ok {
		return OAuthFlowState{}, NewError(ErrorOAuthStateMismatch, "core: oauth state does not match any pending flow")
	}
	delete(s.entries, state)
	if !flow.ExpiresAt.IsZero() && now.After(flow.ExpiresAt) {
		return OAuthFlowState{}, NewError(ErrorOAuthStateMismatch, "core: oauth state expired")
	}
	if s.retention > 0 {
		s.consumed[state] = now
	}
	return cloneOAuthFlowState(flow), nil
}

// Pending reports the number of flows awaiting completion.
func (s *MemoryOAuthFlowStore) Pending() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.entries)
}

func (s *MemoryOAuthFlowStore) pruneLocked(now time.Time) {
	for state, flow := range s.entries {
		if !flow.ExpiresAt.IsZero() && now.After(flow.ExpiresAt) {
			delete(s.entries, state)
		}
	}
	for state, consumedAt := range s.consumed {
		if now.Sub(consumedAt) > s.retention {
			delete(s.consumed, state)
		}
	}
}

func generateOAuthState() (string, error) {
	return randomURLToken(24)
}

func randomURLToken(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func cloneOAuthFlowState(flow OAuthFlowState) OAuthFlowState {
	cloned := flow
	cloned.Scopes = append([]string(nil), flow.Scopes...)
	return cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
