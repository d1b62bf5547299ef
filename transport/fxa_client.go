package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/security"
)

const contentTypeJSON = "application/json"

// FxAClient talks to the identity provider: discovery, token exchange and
// profile.
type FxAClient struct {
	Transport core.TransportAdapter
	Now       func() time.Time
}

func NewFxAClient(transport core.TransportAdapter) *FxAClient {
	if transport == nil {
		transport = NewRESTAdapter(nil)
	}
	return &FxAClient{
		Transport: transport,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

type discoveryDocument struct {
	AuthServerBaseURL    string `json:"auth_server_base_url"`
	OAuthServerBaseURL   string `json:"oauth_server_base_url"`
	ProfileServerBaseURL string `json:"profile_server_base_url"`
	SyncTokenServerURL   string `json:"sync_tokenserver_base_url"`
}

// Discover reads the well-known client configuration under contentBase.
func (c *FxAClient) Discover(ctx context.Context, contentBase string) (core.Endpoints, error) {
	target, err := core.DiscoveryURL(contentBase)
	if err != nil {
		return core.Endpoints{}, err
	}
	res, err := c.do(ctx, core.TransportRequest{Method: http.MethodGet, URL: target})
	if err != nil {
		return core.Endpoints{}, err
	}
	if !successful(res.StatusCode) {
		return core.Endpoints{}, statusError("discover_config", res)
	}
	doc := discoveryDocument{}
	if err := json.Unmarshal(res.Body, &doc); err != nil {
		return core.Endpoints{}, transportWrapError(err, core.ErrorServer, "transport: discovery document is not valid json", res.StatusCode, nil)
	}
	endpoints := core.Endpoints{
		ContentURL:     strings.TrimSpace(contentBase),
		AuthURL:        strings.TrimSpace(doc.AuthServerBaseURL),
		OAuthURL:       strings.TrimSpace(doc.OAuthServerBaseURL),
		ProfileURL:     strings.TrimSpace(doc.ProfileServerBaseURL),
		TokenServerURL: strings.TrimSpace(doc.SyncTokenServerURL),
	}
	if err := endpoints.Validate(); err != nil {
		return core.Endpoints{}, core.WrapError(err, core.ErrorServer, "transport: discovery document is incomplete")
	}
	return endpoints, nil
}

type tokenResponse struct {
	AccessToken  string                    `json:"access_token"`
	RefreshToken string                    `json:"refresh_token"`
	Scope        string                    `json:"scope"`
	ExpiresIn    int64                     `json:"expires_in"`
	TokenType    string                    `json:"token_type"`
	Keys         map[string]core.ScopedKey `json:"keys"`
}

// Token performs one grant against the token endpoint. Session token grants
// go to the auth server and are Hawk signed.
func (c *FxAClient) Token(ctx context.Context, req core.TokenRequest) (core.TokenGrant, error) {
	body := map[string]any{
		"client_id":  req.ClientID,
		"grant_type": string(req.GrantType),
	}
	if scope := strings.Join(core.NormalizeScopes(req.Scopes), " "); scope != "" {
		body["scope"] = scope
	}
	if req.AccessType != "" {
		body["access_type"] = req.AccessType
	}

	target := req.Endpoints.TokenEndpoint()
	var hawk *security.HawkCredentials
	switch req.GrantType {
	case core.GrantAuthorizationCode:
		body["code"] = req.Code
		if req.CodeVerifier != "" {
			body["code_verifier"] = req.CodeVerifier
		}
	case core.GrantRefreshToken:
		body["refresh_token"] = req.RefreshToken
	case core.GrantSessionToken:
		creds, err := security.DeriveHawkCredentials(req.SessionToken)
		if err != nil {
			return core.TokenGrant{}, err
		}
		hawk = &creds
		target = req.Endpoints.SessionTokenEndpoint()
	default:
		return core.TokenGrant{}, core.NewError(core.ErrorBadInput, "transport: unsupported grant type "+string(req.GrantType))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return core.TokenGrant{}, core.WrapError(err, core.ErrorInternal, "transport: encode token request")
	}
	headers := map[string]string{"Content-Type": contentTypeJSON}
	if hawk != nil {
		authorization, err := hawkAuthorization(*hawk, hawkRequest{
			Method:      http.MethodPost,
			URL:         target,
			ContentType: contentTypeJSON,
			Payload:     payload,
			Timestamp:   c.now(),
		})
		if err != nil {
			return core.TokenGrant{}, err
		}
		headers["Authorization"] = authorization
	}

	res, err := c.do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     target,
		Headers: headers,
		Body:    payload,
	})
	if err != nil {
		return core.TokenGrant{}, err
	}
	if !successful(res.StatusCode) {
		return core.TokenGrant{}, statusError("token_"+string(req.GrantType), res)
	}

	parsed := tokenResponse{}
	if err := json.Unmarshal(res.Body, &parsed); err != nil {
		return core.TokenGrant{}, transportWrapError(err, core.ErrorServer, "transport: token response is not valid json", res.StatusCode, nil)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return core.TokenGrant{}, transportError("transport: token response has no access token", core.ErrorServer, res.StatusCode, nil)
	}
	grant := core.TokenGrant{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		Scopes:       core.ParseScopes(parsed.Scope),
		ExpiresIn:    time.Duration(parsed.ExpiresIn) * time.Second,
	}
	if len(grant.Scopes) == 0 {
		grant.Scopes = core.NormalizeScopes(req.Scopes)
	}
	for scope, key := range parsed.Keys {
		if key.Scope == "" {
			key.Scope = scope
		}
		grant.Keys = append(grant.Keys, key)
	}
	return grant, nil
}

// Profile fetches the profile of the token's owner.
func (c *FxAClient) Profile(ctx context.Context, endpoints core.Endpoints, accessToken string) (core.Profile, error) {
	if strings.TrimSpace(accessToken) == "" {
		return core.Profile{}, core.NewError(core.ErrorUnauthorized, "transport: profile requires an access token")
	}
	res, err := c.do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     endpoints.ProfileEndpoint(),
		Headers: map[string]string{"Authorization": "Bearer " + accessToken},
	})
	if err != nil {
		return core.Profile{}, err
	}
	if !successful(res.StatusCode) {
		return core.Profile{}, statusError("get_profile", res)
	}
	profile := core.Profile{}
	if err := json.Unmarshal(res.Body, &profile); err != nil {
		return core.Profile{}, transportWrapError(err, core.ErrorServer, "transport: profile response is not valid json", res.StatusCode, nil)
	}
	return profile, nil
}

func (c *FxAClient) do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if c == nil || c.Transport == nil {
		return core.TransportResponse{}, transportError("transport: fxa client has no transport", core.ErrorInternal, http.StatusInternalServerError, nil)
	}
	return c.Transport.Do(ctx, req)
}

func (c *FxAClient) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

var (
	_ core.IdentityClient   = (*FxAClient)(nil)
	_ core.ConfigDiscoverer = (*FxAClient)(nil)
)
