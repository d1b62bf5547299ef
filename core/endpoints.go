package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	DiscoveryPath = "/.well-known/fxa-client-configuration"

	releaseContentURL     = "https://accounts.firefox.com"
	releaseAuthURL        = "https://api.accounts.firefox.com/v1"
	releaseOAuthURL       = "https://oauth.accounts.firefox.com/v1"
	releaseProfileURL     = "https://profile.accounts.firefox.com/v1"
	releaseTokenServerURL = "https://token.services.mozilla.com"

	tokenServerSyncPath = "/1.0/sync/1.5"
)

// Endpoints is the identity-provider endpoint set. It is immutable once
// built; hosts hold it through a ConfigHandle.
type Endpoints struct {
	ContentURL     string `json:"content_url"`
	AuthURL        string `json:"auth_url"`
	OAuthURL       string `json:"oauth_url"`
	ProfileURL     string `json:"profile_url"`
	TokenServerURL string `json:"token_server_url"`
}

// ReleaseEndpoints returns the canned production profile.
func ReleaseEndpoints() Endpoints {
	return Endpoints{
		ContentURL:     releaseContentURL,
		AuthURL:        releaseAuthURL,
		OAuthURL:       releaseOAuthURL,
		ProfileURL:     releaseProfileURL,
		TokenServerURL: releaseTokenServerURL,
	}
}

func (e Endpoints) Validate() error {
	for name, value := range map[string]string{
		"content_url":      e.ContentURL,
		"auth_url":         e.AuthURL,
		"oauth_url":        e.OAuthURL,
		"profile_url":      e.ProfileURL,
		"token_server_url": e.TokenServerURL,
	} {
		if strings.TrimSpace(value) == "" {
			return NewError(ErrorBadInput, fmt.Sprintf("core: endpoint %s is required", name))
		}
		if _, err := url.Parse(value); err != nil {
			return WrapError(err, ErrorBadInput, fmt.Sprintf("core: endpoint %s is invalid", name))
		}
	}
	return nil
}

func (e Endpoints) AuthorizationEndpoint() string {
	return strings.TrimRight(e.ContentURL, "/") + "/authorization"
}

func (e Endpoints) TokenEndpoint() string {
	return strings.TrimRight(e.OAuthURL, "/") + "/token"
}

func (e Endpoints) SessionTokenEndpoint() string {
	return strings.TrimRight(e.AuthURL, "/") + "/oauth/token"
}

func (e Endpoints) ProfileEndpoint() string {
	return strings.TrimRight(e.ProfileURL, "/") + "/profile"
}

func (e Endpoints) TokenServerEndpointURL() string {
	base := strings.TrimRight(e.TokenServerURL, "/")
	if strings.HasSuffix(base, tokenServerSyncPath) {
		return base
	}
	return base + tokenServerSyncPath
}

func (e Endpoints) ConnectionSuccessURL() string {
	return strings.TrimRight(e.ContentURL, "/") + "/connect_another_device?showSuccessMessage=true"
}

func (e Endpoints) ManageAccountURL(entrypoint string) string {
	values := url.Values{}
	if trimmed := strings.TrimSpace(entrypoint); trimmed != "" {
		values.Set("entrypoint", trimmed)
	}
	target := strings.TrimRight(e.ContentURL, "/") + "/settings"
	if encoded := values.Encode(); encoded != "" {
		target += "?" + encoded
	}
	return target
}

// DiscoveryURL returns the well-known document location for contentBase.
// contentBase must not carry a trailing slash.
func DiscoveryURL(contentBase string) (string, error) {
	trimmed := strings.TrimSpace(contentBase)
	if trimmed == "" {
		return "", NewError(ErrorBadInput, "core: content base url is required")
	}
	if strings.HasSuffix(trimmed, "/") {
		return "", NewError(ErrorBadInput, "core: content base url must not end with a slash")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", NewError(ErrorBadInput, fmt.Sprintf("core: content base url %q is invalid", trimmed))
	}
	return trimmed + DiscoveryPath, nil
}

// ConfigDiscoverer resolves an endpoint set from the discovery document.
type ConfigDiscoverer interface {
	Discover(ctx context.Context, contentBase string) (Endpoints, error)
}

// ConfigHandle owns an Endpoints value until a consuming constructor takes it.
type ConfigHandle = Handle[Endpoints]

func NewConfigHandle(endpoints Endpoints) *ConfigHandle {
	return NewHandle("config", endpoints, nil)
}

func ReleaseConfig() *ConfigHandle {
	return NewConfigHandle(ReleaseEndpoints())
}
