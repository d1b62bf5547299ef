package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// AccountSession aggregates an endpoint set, a token cache and the account's
// long-lived credentials behind one owning handle.
//
// A session is not safe for concurrent mutation. Callers serialize access to
// one session; distinct sessions are independent.
type AccountSession struct {
	res Resource
	operationObserver

	endpoints    Endpoints
	clientID     string
	client       IdentityClient
	codec        SessionCodec
	cache        *TokenCache
	flows        *FlowController
	now          Clock
	leeway       time.Duration
	assertionTTL time.Duration

	uid           string
	sessionToken  string
	refreshToken  string
	refreshScopes []string
	scopedKeys    map[string]ScopedKey
}

type accountParams struct {
	endpoints    Endpoints
	clientID     string
	client       IdentityClient
	codec        SessionCodec
	flowStore    OAuthFlowStore
	flowTTL      time.Duration
	now          Clock
	leeway       time.Duration
	assertionTTL time.Duration
	observer     operationObserver
}

func newAccountSession(params accountParams) *AccountSession {
	account := &AccountSession{
		operationObserver: params.observer,
		endpoints:         params.endpoints,
		clientID:          strings.TrimSpace(params.clientID),
		client:            params.client,
		codec:             params.codec,
		cache:             NewTokenCache(),
		now:               params.now,
		leeway:            params.leeway,
		assertionTTL:      params.assertionTTL,
		scopedKeys:        map[string]ScopedKey{},
	}
	if account.codec == nil {
		account.codec = JSONSessionCodec{}
	}
	if account.now == nil {
		account.now = func() time.Time { return time.Now().UTC() }
	}
	if account.assertionTTL <= 0 {
		account.assertionTTL = 5 * time.Minute
	}
	account.flows = NewFlowController(FlowControllerConfig{
		Endpoints: params.endpoints,
		ClientID:  account.clientID,
		Store:     params.flowStore,
		Client:    params.client,
		Cache:     account.cache,
		Clock:     account.now,
		FlowTTL:   params.flowTTL,
		OnGrant:   account.recordGrant,
	})
	_ = account.res.Assign("account", account.wipeSecrets)
	return account
}

func (a *AccountSession) Release() error {
	if a == nil {
		return NewError(ErrorInvalidHandle, "core: account handle is nil")
	}
	return a.res.Release()
}

func (a *AccountSession) State() ResourceState {
	if a == nil {
		return ResourceUnassigned
	}
	return a.res.State()
}

func (a *AccountSession) check() error {
	if a == nil {
		return NewError(ErrorInvalidHandle, "core: account handle is nil")
	}
	return a.res.Check()
}

func (a *AccountSession) ClientID() string {
	if a == nil {
		return ""
	}
	return a.clientID
}

// UID is the account uid from credentials or the last fetched profile.
func (a *AccountSession) UID() (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	return a.uid, nil
}

func (a *AccountSession) Endpoints() (Endpoints, error) {
	if err := a.check(); err != nil {
		return Endpoints{}, err
	}
	return a.endpoints, nil
}

func (a *AccountSession) FlowStatus() FlowStatus {
	if a == nil || a.flows == nil {
		return FlowIdle
	}
	return a.flows.Status()
}

// GetToken returns a usable token for scopes. A None result means user
// consent is required.
func (a *AccountSession) GetToken(ctx context.Context, scopes []string) (result Result[AccessTokenInfo]) {
	if err := a.check(); err != nil {
		return Failed[AccessTokenInfo](err)
	}
	normalized := NormalizeScopes(scopes)
	if len(normalized) == 0 {
		return Failed[AccessTokenInfo](NewError(ErrorBadInput, "core: at least one scope is required"))
	}

	entry, lookup := a.cache.Lookup(normalized, a.now(), a.leeway)
	if lookup == CacheFresh {
		return Found(entry)
	}

	startedAt := time.Now()
	fields := map[string]any{
		"scope_key": ScopeKey(normalized),
		"client_id": a.clientID,
		"cache":     lookupLabel(lookup),
	}
	var err error
	defer func() {
		if result.Outcome() == OutcomeNone {
			fields["result"] = "not_found"
		}
		a.observeOperation(ctx, startedAt, "get_token", err, fields)
	}()

	req, ok := a.exchangeFor(normalized, lookup)
	if !ok {
		return None[AccessTokenInfo]()
	}
	fields["grant_type"] = string(req.GrantType)

	grant, exchangeErr := a.client.Token(ctx, req)
	if exchangeErr != nil {
		err = exchangeErr
		if IsTerminal(exchangeErr) {
			a.cache.Evict(normalized)
			err = markTerminal(exchangeErr)
		}
		return Failed[AccessTokenInfo](err)
	}

	a.mergeKeys(grant.Keys)
	fresh := AccessTokenInfo{
		Scopes: normalized,
		Token:  grant.AccessToken,
		Key:    keyForScopes(a.scopedKeys, normalized),
	}
	if grant.ExpiresIn > 0 {
		fresh.ExpiresAt = a.now().Add(grant.ExpiresIn)
	}
	if strings.TrimSpace(grant.RefreshToken) != "" {
		a.refreshToken = grant.RefreshToken
		a.refreshScopes = NormalizeScopes(append(append([]string(nil), a.refreshScopes...), normalized...))
	}
	a.cache.Put(fresh)
	return Found(fresh)
}

// exchangeFor picks the silent exchange for a missing or expired entry.
func (a *AccountSession) exchangeFor(scopes []string, lookup CacheLookup) (TokenRequest, bool) {
	if a.client == nil {
		return TokenRequest{}, false
	}
	req := TokenRequest{
		Endpoints: a.endpoints,
		ClientID:  a.clientID,
		Scopes:    scopes,
	}
	hasRefresh := strings.TrimSpace(a.refreshToken) != ""
	hasSession := strings.TrimSpace(a.sessionToken) != ""

	switch {
	case lookup == CacheExpired && hasRefresh:
		req.GrantType = GrantRefreshToken
		req.RefreshToken = a.refreshToken
	case hasRefresh && coversScopes(a.refreshScopes, scopes):
		req.GrantType = GrantRefreshToken
		req.RefreshToken = a.refreshToken
	case hasSession:
		req.GrantType = GrantSessionToken
		req.SessionToken = a.sessionToken
		req.AccessType = "offline"
	default:
		return TokenRequest{}, false
	}
	return req, true
}

// GetProfile fetches the profile with a cached profile-scoped token.
func (a *AccountSession) GetProfile(ctx context.Context) (profile Profile, err error) {
	if err := a.check(); err != nil {
		return Profile{}, err
	}
	startedAt := time.Now()
	fields := map[string]any{"client_id": a.clientID}
	defer func() {
		a.observeOperation(ctx, startedAt, "get_profile", err, fields)
	}()

	entry, ok := a.cache.FindByScope(ScopeProfile)
	if !ok {
		return Profile{}, NewError(ErrorUnauthorized, "core: no cached token grants the profile scope")
	}
	if entry.ExpiredAt(a.now(), a.leeway) {
		refreshed, found, tokenErr := a.GetToken(ctx, entry.Scopes).Get()
		if tokenErr != nil {
			return Profile{}, tokenErr
		}
		if !found {
			return Profile{}, NewError(ErrorUnauthorized, "core: profile token expired and cannot be refreshed")
		}
		entry = refreshed
	}
	if a.client == nil {
		return Profile{}, NewError(ErrorInternal, "core: identity client is not configured")
	}

	profile, err = a.client.Profile(ctx, a.endpoints, entry.Token)
	if err != nil {
		if IsKind(err, ErrorUnauthorized) {
			a.cache.Evict(entry.Scopes)
		}
		return Profile{}, err
	}
	if uid := strings.TrimSpace(profile.UID); uid != "" {
		a.uid = uid
	}
	return profile, nil
}

func (a *AccountSession) BeginOAuthFlow(ctx context.Context, redirectURI string, scopes []string, wantsKeys bool) (authURL string, err error) {
	if err := a.check(); err != nil {
		return "", err
	}
	startedAt := time.Now()
	fields := map[string]any{
		"client_id":  a.clientID,
		"scope_key":  ScopeKey(scopes),
		"wants_keys": wantsKeys,
	}
	defer func() {
		a.observeOperation(ctx, startedAt, "begin_oauth_flow", err, fields)
	}()
	return a.flows.BeginFlow(ctx, redirectURI, scopes, wantsKeys)
}

func (a *AccountSession) CompleteOAuthFlow(ctx context.Context, code, state string) (info OAuthInfo, err error) {
	if err := a.check(); err != nil {
		return OAuthInfo{}, err
	}
	startedAt := time.Now()
	fields := map[string]any{"client_id": a.clientID}
	defer func() {
		if err == nil {
			fields["scope_key"] = ScopeKey(info.Scopes)
		}
		a.observeOperation(ctx, startedAt, "complete_oauth_flow", err, fields)
	}()
	return a.flows.CompleteFlow(ctx, code, state)
}

func (a *AccountSession) recordGrant(flow OAuthFlowState, grant TokenGrant) {
	if flow.WantsKeys {
		a.mergeKeys(grant.Keys)
	}
	if strings.TrimSpace(grant.RefreshToken) != "" {
		a.refreshToken = grant.RefreshToken
		a.refreshScopes = NormalizeScopes(flow.Scopes)
	}
}

func (a *AccountSession) mergeKeys(keys []ScopedKey) {
	for _, key := range keys {
		if strings.TrimSpace(key.Scope) == "" {
			continue
		}
		a.scopedKeys[key.Scope] = key
	}
}

// ClearAccessTokenCache drops every cached access token. Long-lived
// credentials are kept.
func (a *AccountSession) ClearAccessTokenCache() error {
	if err := a.check(); err != nil {
		return err
	}
	a.cache.Clear()
	return nil
}

func (a *AccountSession) TokenServerEndpointURL() (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	return a.endpoints.TokenServerEndpointURL(), nil
}

func (a *AccountSession) ConnectionSuccessURL() (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	return a.endpoints.ConnectionSuccessURL(), nil
}

func (a *AccountSession) ManageAccountURL(entrypoint string) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	return a.endpoints.ManageAccountURL(entrypoint), nil
}

// Serialize captures the session as an opaque versioned string.
func (a *AccountSession) Serialize(ctx context.Context) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	keys := make(map[string]ScopedKey, len(a.scopedKeys))
	for scope, key := range a.scopedKeys {
		keys[scope] = key
	}
	return a.codec.Encode(ctx, SessionState{
		Version:            SessionStateVersion,
		Endpoints:          a.endpoints,
		ClientID:           a.clientID,
		UID:                a.uid,
		SessionToken:       a.sessionToken,
		RefreshToken:       a.refreshToken,
		RefreshTokenScopes: append([]string(nil), a.refreshScopes...),
		AccessTokens:       a.cache.Snapshot(),
		ScopedKeys:         keys,
		FlowOwner:          a.flows.Owner(),
		SavedAt:            a.now(),
	})
}

func (a *AccountSession) restoreState(state SessionState) {
	a.uid = state.UID
	a.sessionToken = state.SessionToken
	a.refreshToken = state.RefreshToken
	a.refreshScopes = NormalizeScopes(state.RefreshTokenScopes)
	for scope, key := range state.ScopedKeys {
		a.scopedKeys[scope] = key
	}
	for _, entry := range state.AccessTokens {
		a.cache.Put(entry)
	}
	// A restored session may complete a flow begun before Serialize when the
	// flow store outlives the process.
	if owner := strings.TrimSpace(state.FlowOwner); owner != "" {
		a.flows.owner = owner
	}
}

// WebChannelCredentials is the login response delivered over the web channel.
type WebChannelCredentials struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	SessionToken  string `json:"sessionToken"`
	Verified      bool   `json:"verified"`
	KeyFetchToken string `json:"keyFetchToken,omitempty"`
	UnwrapBKey    string `json:"unwrapBKey,omitempty"`
}

func ParseWebChannelCredentials(payload string) (WebChannelCredentials, error) {
	creds := WebChannelCredentials{}
	if err := json.Unmarshal([]byte(payload), &creds); err != nil {
		return WebChannelCredentials{}, WrapError(err, ErrorBadInput, "core: web channel response is not valid json")
	}
	if strings.TrimSpace(creds.UID) == "" {
		return WebChannelCredentials{}, NewError(ErrorBadInput, "core: web channel response is missing uid")
	}
	if strings.TrimSpace(creds.SessionToken) == "" {
		return WebChannelCredentials{}, NewError(ErrorBadInput, "core: web channel response is missing sessionToken")
	}
	return creds, nil
}

func (a *AccountSession) wipeSecrets() error {
	a.cache.Clear()
	a.sessionToken = ""
	a.refreshToken = ""
	a.refreshScopes = nil
	a.scopedKeys = map[string]ScopedKey{}
	return nil
}

func markTerminal(err error) error {
	mapped := defaultErrorMapper(err)
	if mapped == nil {
		return err
	}
	return MarkReauthRequired(mapped)
}

func coversScopes(granted, requested []string) bool {
	if len(granted) == 0 {
		return false
	}
	for _, scope := range requested {
		if !containsScope(granted, scope) {
			return false
		}
	}
	return true
}

func lookupLabel(lookup CacheLookup) string {
	switch lookup {
	case CacheFresh:
		return "fresh"
	case CacheExpired:
		return "expired"
	default:
		return "missing"
	}
}
