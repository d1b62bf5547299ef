package core

import (
	"sort"
	"time"
)

// ScopedKey is key material released for one scope.
type ScopedKey struct {
	Scope string `json:"scope"`
	KeyID string `json:"kid"`
	Key   string `json:"k"`
	Kty   string `json:"kty"`
}

// AccessTokenInfo is one token cache entry.
type AccessTokenInfo struct {
	Scopes    []string   `json:"scopes"`
	Token     string     `json:"token"`
	Key       *ScopedKey `json:"key,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func (t AccessTokenInfo) ScopeKey() string {
	return ScopeKey(t.Scopes)
}

// ExpiredAt reports whether the token is no longer usable at now, treating
// the last leeway before expiry as expired.
func (t AccessTokenInfo) ExpiredAt(now time.Time, leeway time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(t.ExpiresAt)
}

func cloneAccessTokenInfo(t AccessTokenInfo) AccessTokenInfo {
	cloned := t
	cloned.Scopes = append([]string(nil), t.Scopes...)
	if t.Key != nil {
		key := *t.Key
		cloned.Key = &key
	}
	return cloned
}

// CacheLookup is the state of a cache entry for a scope key.
type CacheLookup int

const (
	CacheMissing CacheLookup = iota
	CacheFresh
	CacheExpired
)

// TokenCache maps scope keys to token entries. Entries are replaced whole;
// Lookup never mutates. It assumes a single writer: the owning session
// serializes access.
type TokenCache struct {
	entries map[string]AccessTokenInfo
}

func NewTokenCache() *TokenCache {
	return &TokenCache{entries: map[string]AccessTokenInfo{}}
}

func (c *TokenCache) Lookup(scopes []string, now time.Time, leeway time.Duration) (AccessTokenInfo, CacheLookup) {
	if c == nil {
		return AccessTokenInfo{}, CacheMissing
	}
	entry, ok := c.entries[ScopeKey(scopes)]
	if !ok {
		return AccessTokenInfo{}, CacheMissing
	}
	if entry.ExpiredAt(now, leeway) {
		return cloneAccessTokenInfo(entry), CacheExpired
	}
	return cloneAccessTokenInfo(entry), CacheFresh
}

// Put replaces the entry keyed by the token's scope set.
func (c *TokenCache) Put(token AccessTokenInfo) {
	if c == nil {
		return
	}
	if c.entries == nil {
		c.entries = map[string]AccessTokenInfo{}
	}
	token.Scopes = NormalizeScopes(token.Scopes)
	c.entries[ScopeKey(token.Scopes)] = cloneAccessTokenInfo(token)
}

func (c *TokenCache) Evict(scopes []string) bool {
	if c == nil {
		return false
	}
	key := ScopeKey(scopes)
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

func (c *TokenCache) Clear() {
	if c == nil {
		return
	}
	c.entries = map[string]AccessTokenInfo{}
}

func (c *TokenCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Snapshot returns all entries ordered by scope key.
func (c *TokenCache) Snapshot() []AccessTokenInfo {
	if c == nil || len(c.entries) == 0 {
		return []AccessTokenInfo{}
	}
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]AccessTokenInfo, 0, len(keys))
	for _, key := range keys {
		out = append(out, cloneAccessTokenInfo(c.entries[key]))
	}
	return out
}

// FindByScope returns the first entry (by scope key order) that grants scope.
func (c *TokenCache) FindByScope(scope string) (AccessTokenInfo, bool) {
	for _, entry := range c.Snapshot() {
		if containsScope(entry.Scopes, scope) {
			return entry, true
		}
	}
	return AccessTokenInfo{}, false
}

// FindKey returns cached key material for scope.
func (c *TokenCache) FindKey(scope string) (ScopedKey, bool) {
	for _, entry := range c.Snapshot() {
		if entry.Key != nil && entry.Key.Scope == scope {
			return *entry.Key, true
		}
	}
	return ScopedKey{}, false
}
