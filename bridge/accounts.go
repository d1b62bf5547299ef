package bridge

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-accounts/core"
)

// ConfigRelease returns a handle to the production endpoint set.
func ConfigRelease() (uint64, ExternError) {
	return call("config_release", func(_ context.Context, rt *runtime) (uint64, error) {
		return rt.configs.insert(core.ReleaseConfig()), nil
	})
}

// ConfigCustom discovers the endpoints published under contentBase, which
// must not end with a slash.
func ConfigCustom(contentBase string) (uint64, ExternError) {
	return call("config_custom", func(ctx context.Context, rt *runtime) (uint64, error) {
		cfg, err := rt.registry.Service().DiscoverConfig(ctx, contentBase)
		if err != nil {
			return 0, err
		}
		return rt.configs.insert(cfg), nil
	})
}

// ConfigFree releases a config handle. Freeing a config that an account
// constructor already consumed only forgets the handle.
func ConfigFree(handle uint64) ExternError {
	return callVoid("config_free", func(_ context.Context, rt *runtime) error {
		cfg, err := rt.configs.remove(handle)
		if err != nil {
			return err
		}
		return cfg.Release()
	})
}

// AccountNew consumes the config handle and returns an account handle.
func AccountNew(config uint64, clientID string) (uint64, ExternError) {
	return call("account_new", func(ctx context.Context, rt *runtime) (uint64, error) {
		cfg, err := rt.configs.get(config)
		if err != nil {
			return 0, err
		}
		id, err := rt.registry.NewAccount(ctx, cfg, clientID)
		if err != nil {
			return 0, err
		}
		return parseHandle(id)
	})
}

// AccountFromCredentials consumes the config handle and seeds the account
// from a web channel login response.
func AccountFromCredentials(config uint64, clientID, webChannelResponse string) (uint64, ExternError) {
	return call("account_from_credentials", func(ctx context.Context, rt *runtime) (uint64, error) {
		cfg, err := rt.configs.get(config)
		if err != nil {
			return 0, err
		}
		id, err := rt.registry.AccountFromCredentials(ctx, cfg, clientID, webChannelResponse)
		if err != nil {
			return 0, err
		}
		return parseHandle(id)
	})
}

// AccountFromJSON restores an account from AccountToJSON output.
func AccountFromJSON(state string) (uint64, ExternError) {
	return call("account_from_json", func(ctx context.Context, rt *runtime) (uint64, error) {
		id, err := rt.registry.RestoreAccount(ctx, state)
		if err != nil {
			return 0, err
		}
		return parseHandle(id)
	})
}

func AccountToJSON(account uint64) (string, ExternError) {
	return call("account_to_json", func(ctx context.Context, rt *runtime) (string, error) {
		return rt.registry.SerializeAccount(ctx, handleID(account))
	})
}

// AccountFree releases the account. A second call reports CodeInvalidHandle.
func AccountFree(account uint64) ExternError {
	return callVoid("account_free", func(ctx context.Context, rt *runtime) error {
		return rt.registry.ReleaseAccount(ctx, handleID(account))
	})
}

// AccountProfile returns the profile as JSON.
func AccountProfile(account uint64) (string, ExternError) {
	return call("account_profile", func(ctx context.Context, rt *runtime) (string, error) {
		profile, err := rt.registry.GetProfile(ctx, handleID(account))
		if err != nil {
			return "", err
		}
		return encodeJSON(profile)
	})
}

// AccountSyncKeys returns the oldsync key material as JSON.
func AccountSyncKeys(account uint64) (string, ExternError) {
	return call("account_sync_keys", func(ctx context.Context, rt *runtime) (string, error) {
		session, err := rt.registry.Account(handleID(account))
		if err != nil {
			return "", err
		}
		keys, err := session.GetSyncKeys(ctx)
		if err != nil {
			return "", err
		}
		return encodeJSON(keys)
	})
}

func AccountTokenServerEndpointURL(account uint64) (string, ExternError) {
	return call("account_token_server_endpoint_url", func(_ context.Context, rt *runtime) (string, error) {
		session, err := rt.registry.Account(handleID(account))
		if err != nil {
			return "", err
		}
		return session.TokenServerEndpointURL()
	})
}

func AccountConnectionSuccessURL(account uint64) (string, ExternError) {
	return call("account_connection_success_url", func(_ context.Context, rt *runtime) (string, error) {
		session, err := rt.registry.Account(handleID(account))
		if err != nil {
			return "", err
		}
		return session.ConnectionSuccessURL()
	})
}

func AccountManageAccountURL(account uint64, entrypoint string) (string, ExternError) {
	return call("account_manage_account_url", func(_ context.Context, rt *runtime) (string, error) {
		session, err := rt.registry.Account(handleID(account))
		if err != nil {
			return "", err
		}
		return session.ManageAccountURL(entrypoint)
	})
}

// AccountBeginOAuthFlow takes scopes as one space separated string and
// returns the authorization URL.
func AccountBeginOAuthFlow(account uint64, redirectURI, scope string, wantsKeys bool) (string, ExternError) {
	return call("account_begin_oauth_flow", func(ctx context.Context, rt *runtime) (string, error) {
		return rt.registry.BeginOAuthFlow(ctx, handleID(account), redirectURI, core.ParseScopes(scope), wantsKeys)
	})
}

// AccountCompleteOAuthFlow returns the OAuth info as JSON.
func AccountCompleteOAuthFlow(account uint64, code, state string) (string, ExternError) {
	return call("account_complete_oauth_flow", func(ctx context.Context, rt *runtime) (string, error) {
		info, err := rt.registry.CompleteOAuthFlow(ctx, handleID(account), code, state)
		if err != nil {
			return "", err
		}
		return encodeJSON(info)
	})
}

// AccountGetOAuthToken returns the token entry for the space separated
// scopes as JSON. CodeNotFound means no usable token is available and a new
// flow is needed.
func AccountGetOAuthToken(account uint64, scope string) (string, ExternError) {
	return call("account_get_oauth_token", func(ctx context.Context, rt *runtime) (string, error) {
		token, err := rt.registry.GetToken(ctx, handleID(account), core.ParseScopes(scope)).
			OrNotFound("bridge: no usable token for " + scope)
		if err != nil {
			return "", err
		}
		return encodeJSON(token)
	})
}

func AccountClearAccessTokenCache(account uint64) ExternError {
	return callVoid("account_clear_access_token_cache", func(ctx context.Context, rt *runtime) error {
		return rt.registry.ClearAccessTokenCache(ctx, handleID(account))
	})
}

func AccountGenerateAssertion(account uint64, audience string) (string, ExternError) {
	return call("account_generate_assertion", func(ctx context.Context, rt *runtime) (string, error) {
		session, err := rt.registry.Account(handleID(account))
		if err != nil {
			return "", err
		}
		return session.GenerateAssertion(ctx, audience)
	})
}

func encodeJSON(value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "bridge: encode response")
	}
	return string(raw), nil
}

func decodeJSON(raw string, target any) error {
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return core.WrapError(err, core.ErrorBadInput, "bridge: decode request")
	}
	return nil
}
