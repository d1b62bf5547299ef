package core

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type FlowStatus int

const (
	FlowIdle FlowStatus = iota
	FlowAwaitingConsent
	FlowCompleted
)

func (s FlowStatus) String() string {
	switch s {
	case FlowAwaitingConsent:
		return "awaiting_user_consent"
	case FlowCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// OAuthInfo is what a completed flow hands back to the host.
type OAuthInfo struct {
	Scopes      []string             `json:"scopes"`
	AccessToken string               `json:"access_token"`
	Keys        map[string]ScopedKey `json:"keys,omitempty"`
	ExpiresAt   time.Time            `json:"expires_at"`
}

// GrantObserver receives the raw grant of a completed flow, including the
// refresh token the host never sees.
type GrantObserver func(flow OAuthFlowState, grant TokenGrant)

// FlowController drives the authorization code flow for one session. Flows
// are stored under the session's owner key, so a nonce issued to one session
// is unknown to every other session sharing the store.
type FlowController struct {
	endpoints Endpoints
	clientID  string
	owner     string
	store     OAuthFlowStore
	client    IdentityClient
	cache     *TokenCache
	now       Clock
	ttl       time.Duration
	onGrant   GrantObserver
	status    FlowStatus
}

type FlowControllerConfig struct {
	Endpoints Endpoints
	ClientID  string
	// Owner namespaces stored flows. A random owner is generated when empty.
	Owner   string
	Store   OAuthFlowStore
	Client  IdentityClient
	Cache   *TokenCache
	Clock   Clock
	FlowTTL time.Duration
	OnGrant GrantObserver
}

func NewFlowController(cfg FlowControllerConfig) *FlowController {
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	ttl := cfg.FlowTTL
	if ttl <= 0 {
		ttl = defaultOAuthFlowTTL
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryOAuthFlowStoreWithRetention(ttl, defaultConsumedRetention, clock)
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewTokenCache()
	}
	owner := strings.TrimSpace(cfg.Owner)
	if owner == "" {
		owner = uuid.NewString()
	}
	return &FlowController{
		endpoints: cfg.Endpoints,
		clientID:  strings.TrimSpace(cfg.ClientID),
		owner:     owner,
		store:     store,
		client:    cfg.Client,
		cache:     cache,
		now:       clock,
		ttl:       ttl,
		onGrant:   cfg.OnGrant,
	}
}

// Owner is the key prefix of this controller's stored flows.
func (c *FlowController) Owner() string {
	if c == nil {
		return ""
	}
	return c.owner
}

func (c *FlowController) Status() FlowStatus {
	if c == nil {
		return FlowIdle
	}
	return c.status
}

// BeginFlow records a new flow and returns the URL the host opens for consent.
func (c *FlowController) BeginFlow(ctx context.Context, redirectURI string, scopes []string, wantsKeys bool) (string, error) {
	redirectURI = strings.TrimSpace(redirectURI)
	if redirectURI == "" {
		return "", NewError(ErrorBadInput, "core: redirect uri is required")
	}
	normalized := NormalizeScopes(scopes)
	if len(normalized) == 0 {
		return "", NewError(ErrorBadInput, "core: at least one scope is required")
	}

	state, err := generateOAuthState()
	if err != nil {
		return "", WrapError(err, ErrorInternal, "core: generate oauth state")
	}
	verifier, err := randomURLToken(32)
	if err != nil {
		return "", WrapError(err, ErrorInternal, "core: generate code verifier")
	}

	now := c.now()
	if err := c.store.Save(ctx, OAuthFlowState{
		State:        c.flowKey(state),
		RedirectURI:  redirectURI,
		Scopes:       normalized,
		WantsKeys:    wantsKeys,
		CodeVerifier: verifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.ttl),
	}); err != nil {
		return "", err
	}

	values := url.Values{}
	values.Set("client_id", c.clientID)
	values.Set("response_type", "code")
	values.Set("scope", strings.Join(normalized, " "))
	values.Set("state", state)
	values.Set("redirect_uri", redirectURI)
	values.Set("code_challenge", pkceChallenge(verifier))
	values.Set("code_challenge_method", "S256")
	values.Set("access_type", "offline")
	if wantsKeys {
		values.Set("keys", "true")
	}

	c.status = FlowAwaitingConsent
	return c.endpoints.AuthorizationEndpoint() + "?" + values.Encode(), nil
}

// CompleteFlow exchanges code for tokens and consumes the flow named by
// state. A state issued to another session is a mismatch. The flow survives a
// transient exchange failure so the host can retry; any other failure
// consumes it. The cache is touched only after a successful exchange.
func (c *FlowController) CompleteFlow(ctx context.Context, code, state string) (OAuthInfo, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return OAuthInfo{}, NewError(ErrorBadInput, "core: authorization code is required")
	}
	if c.client == nil {
		return OAuthInfo{}, NewError(ErrorInternal, "core: identity client is not configured")
	}

	key := c.flowKey(state)
	flow, err := c.store.Lookup(ctx, key)
	if err != nil {
		return OAuthInfo{}, c.failFlow(err)
	}

	grant, err := c.client.Token(ctx, TokenRequest{
		Endpoints:    c.endpoints,
		ClientID:     c.clientID,
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		CodeVerifier: flow.CodeVerifier,
		Scopes:       flow.Scopes,
	})
	if err != nil {
		if IsTransient(err) {
			return OAuthInfo{}, err
		}
		_, _ = c.store.Consume(ctx, key)
		c.status = FlowIdle
		return OAuthInfo{}, err
	}
	if _, err := c.store.Consume(ctx, key); err != nil {
		return OAuthInfo{}, c.failFlow(err)
	}

	keys := map[string]ScopedKey{}
	if flow.WantsKeys {
		for _, key := range grant.Keys {
			keys[key.Scope] = key
		}
	}
	entry := AccessTokenInfo{
		Scopes: flow.Scopes,
		Token:  grant.AccessToken,
		Key:    keyForScopes(keys, flow.Scopes),
	}
	if grant.ExpiresIn > 0 {
		entry.ExpiresAt = c.now().Add(grant.ExpiresIn)
	}
	c.cache.Put(entry)
	if c.onGrant != nil {
		c.onGrant(flow, grant)
	}
	c.status = FlowCompleted

	return OAuthInfo{
		Scopes:      append([]string(nil), flow.Scopes...),
		AccessToken: grant.AccessToken,
		Keys:        keys,
		ExpiresAt:   entry.ExpiresAt,
	}, nil
}

func (c *FlowController) failFlow(err error) error {
	if IsKind(err, ErrorOAuthStateMismatch) {
		c.status = FlowIdle
	}
	return err
}

// flowKey returns "" for a blank nonce so the store reports a mismatch.
func (c *FlowController) flowKey(state string) string {
	state = strings.TrimSpace(state)
	if state == "" {
		return ""
	}
	return c.owner + ":" + state
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func keyForScopes(keys map[string]ScopedKey, scopes []string) *ScopedKey {
	for _, scope := range scopes {
		if key, ok := keys[scope]; ok {
			found := key
			return &found
		}
	}
	return nil
}
