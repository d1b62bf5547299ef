package accounts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts/command"
	"github.com/goliatone/go-accounts/core"
	"github.com/goliatone/go-accounts/logins"
	"github.com/goliatone/go-accounts/query"
	"github.com/google/uuid"
)

type RegistryOption func(*Registry)

// WithIDGenerator replaces the uuid generator used for account and store ids.
func WithIDGenerator(newID func() string) RegistryOption {
	return func(r *Registry) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// WithLoginsOptions sets the options every OpenLogins call starts from.
func WithLoginsOptions(opts ...LoginsOption) RegistryOption {
	return func(r *Registry) {
		r.loginsOpts = append(r.loginsOpts, opts...)
	}
}

// Registry keeps live account and logins sessions behind string ids, so
// commands, queries and queued jobs can address them without holding the
// sessions themselves. Unknown or released ids fail with ErrorInvalidHandle.
type Registry struct {
	service    *Service
	newID      func() string
	loginsOpts []LoginsOption

	mu       sync.RWMutex
	accounts map[string]*core.AccountSession
	logins   map[string]*logins.Session
}

func NewRegistry(service *Service, opts ...RegistryOption) (*Registry, error) {
	if service == nil {
		return nil, core.NewError(core.ErrorInternal, "accounts: service is required")
	}
	r := &Registry{
		service:  service,
		newID:    uuid.NewString,
		accounts: map[string]*core.AccountSession{},
		logins:   map[string]*logins.Session{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *Registry) Service() *Service {
	if r == nil {
		return nil
	}
	return r.service
}

// NewAccount consumes cfg and registers the new session.
func (r *Registry) NewAccount(ctx context.Context, cfg *ConfigHandle, clientID string) (string, error) {
	account, err := r.service.NewAccount(ctx, cfg, clientID)
	if err != nil {
		return "", err
	}
	return r.addAccount(account), nil
}

func (r *Registry) AccountFromCredentials(ctx context.Context, cfg *ConfigHandle, clientID, webChannelResponse string) (string, error) {
	account, err := r.service.AccountFromCredentials(ctx, cfg, clientID, webChannelResponse)
	if err != nil {
		return "", err
	}
	return r.addAccount(account), nil
}

func (r *Registry) RestoreAccount(ctx context.Context, state string) (string, error) {
	account, err := r.service.RestoreAccount(ctx, state)
	if err != nil {
		return "", err
	}
	return r.addAccount(account), nil
}

// Account returns the live session registered under id.
func (r *Registry) Account(id string) (*core.AccountSession, error) {
	r.mu.RLock()
	account, ok := r.accounts[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.ErrorInvalidHandle, "accounts: unknown account id")
	}
	return account, nil
}

// OpenLogins opens a sync session with the registry's logins options plus
// opts and registers it.
func (r *Registry) OpenLogins(ctx context.Context, creds SyncCredentials, opts ...LoginsOption) (string, error) {
	merged := append(append([]LoginsOption{}, r.loginsOpts...), opts...)
	merged = append(merged, WithSessionOptions(logins.WithObserver(r.service.Observer())))
	session, err := OpenLogins(ctx, creds, merged...)
	if err != nil {
		return "", err
	}
	return r.addLogins(session), nil
}

// Logins returns the live sync session registered under id.
func (r *Registry) Logins(id string) (*logins.Session, error) {
	r.mu.RLock()
	session, ok := r.logins[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.ErrorInvalidHandle, "accounts: unknown logins store id")
	}
	return session, nil
}

func (r *Registry) AccountIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.accounts)
}

func (r *Registry) StoreIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.logins)
}

func (r *Registry) BeginOAuthFlow(ctx context.Context, accountID, redirectURI string, scopes []string, wantsKeys bool) (string, error) {
	account, err := r.Account(accountID)
	if err != nil {
		return "", err
	}
	return account.BeginOAuthFlow(ctx, redirectURI, scopes, wantsKeys)
}

func (r *Registry) CompleteOAuthFlow(ctx context.Context, accountID, code, state string) (core.OAuthInfo, error) {
	account, err := r.Account(accountID)
	if err != nil {
		return core.OAuthInfo{}, err
	}
	return account.CompleteOAuthFlow(ctx, code, state)
}

func (r *Registry) ClearAccessTokenCache(_ context.Context, accountID string) error {
	account, err := r.Account(accountID)
	if err != nil {
		return err
	}
	return account.ClearAccessTokenCache()
}

// ReleaseAccount releases the session and forgets its id. A second call
// fails with ErrorInvalidHandle.
func (r *Registry) ReleaseAccount(_ context.Context, accountID string) error {
	r.mu.Lock()
	id := strings.TrimSpace(accountID)
	account, ok := r.accounts[id]
	delete(r.accounts, id)
	r.mu.Unlock()
	if !ok {
		return core.NewError(core.ErrorInvalidHandle, "accounts: unknown account id")
	}
	return account.Release()
}

func (r *Registry) GetToken(ctx context.Context, accountID string, scopes []string) core.Result[core.AccessTokenInfo] {
	account, err := r.Account(accountID)
	if err != nil {
		return core.Failed[core.AccessTokenInfo](err)
	}
	return account.GetToken(ctx, scopes)
}

func (r *Registry) GetProfile(ctx context.Context, accountID string) (core.Profile, error) {
	account, err := r.Account(accountID)
	if err != nil {
		return core.Profile{}, err
	}
	return account.GetProfile(ctx)
}

func (r *Registry) SerializeAccount(ctx context.Context, accountID string) (string, error) {
	account, err := r.Account(accountID)
	if err != nil {
		return "", err
	}
	return account.Serialize(ctx)
}

func (r *Registry) AccountStatus(_ context.Context, accountID string) (query.AccountStatus, error) {
	account, err := r.Account(accountID)
	if err != nil {
		return query.AccountStatus{}, err
	}
	uid, err := account.UID()
	if err != nil {
		return query.AccountStatus{}, err
	}
	return query.AccountStatus{
		AccountID: strings.TrimSpace(accountID),
		ClientID:  account.ClientID(),
		UID:       uid,
		State:     account.State(),
		Flow:      account.FlowStatus(),
	}, nil
}

func (r *Registry) AddLogin(ctx context.Context, storeID string, login core.Login) (core.Login, error) {
	session, err := r.Logins(storeID)
	if err != nil {
		return core.Login{}, err
	}
	return session.Add(ctx, login)
}

func (r *Registry) UpdateLogin(ctx context.Context, storeID string, login core.Login) error {
	session, err := r.Logins(storeID)
	if err != nil {
		return err
	}
	return session.Update(ctx, login)
}

func (r *Registry) TouchLogin(ctx context.Context, storeID, id string) error {
	session, err := r.Logins(storeID)
	if err != nil {
		return err
	}
	return session.Touch(ctx, id)
}

func (r *Registry) DeleteLogin(ctx context.Context, storeID, id string) (bool, error) {
	session, err := r.Logins(storeID)
	if err != nil {
		return false, err
	}
	return session.Delete(ctx, id)
}

func (r *Registry) SyncLogins(ctx context.Context, storeID string) (logins.SyncResult, error) {
	session, err := r.Logins(storeID)
	if err != nil {
		return logins.SyncResult{}, err
	}
	return session.Sync(ctx)
}

func (r *Registry) WipeLogins(ctx context.Context, storeID string) error {
	session, err := r.Logins(storeID)
	if err != nil {
		return err
	}
	return session.Wipe(ctx)
}

func (r *Registry) ResetLogins(ctx context.Context, storeID string) error {
	session, err := r.Logins(storeID)
	if err != nil {
		return err
	}
	return session.Reset(ctx)
}

// CloseLogins closes the session and forgets its id.
func (r *Registry) CloseLogins(_ context.Context, storeID string) error {
	r.mu.Lock()
	id := strings.TrimSpace(storeID)
	session, ok := r.logins[id]
	delete(r.logins, id)
	r.mu.Unlock()
	if !ok {
		return core.NewError(core.ErrorInvalidHandle, "accounts: unknown logins store id")
	}
	return session.Close()
}

func (r *Registry) GetLogin(ctx context.Context, storeID, id string) core.Result[core.Login] {
	session, err := r.Logins(storeID)
	if err != nil {
		return core.Failed[core.Login](err)
	}
	return session.GetByID(ctx, id)
}

func (r *Registry) ListLogins(ctx context.Context, storeID string) ([]core.Login, error) {
	session, err := r.Logins(storeID)
	if err != nil {
		return nil, err
	}
	return session.GetAll(ctx)
}

func (r *Registry) LastSync(ctx context.Context, storeID string) (time.Time, error) {
	session, err := r.Logins(storeID)
	if err != nil {
		return time.Time{}, err
	}
	return session.LastSync(ctx)
}

// Close releases every registered session and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	accounts := r.accounts
	stores := r.logins
	r.accounts = map[string]*core.AccountSession{}
	r.logins = map[string]*logins.Session{}
	r.mu.Unlock()

	var errs []error
	for _, id := range sortedKeys(accounts) {
		if err := accounts[id].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range sortedKeys(stores) {
		if err := stores[id].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) addAccount(account *core.AccountSession) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	r.accounts[id] = account
	return id
}

func (r *Registry) addLogins(session *logins.Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID()
	r.logins[id] = session
	return id
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ command.AccountService = (*Registry)(nil)
	_ command.LoginsService  = (*Registry)(nil)
	_ query.AccountReader    = (*Registry)(nil)
	_ query.LoginsReader     = (*Registry)(nil)
)
