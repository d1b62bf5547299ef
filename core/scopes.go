package core

import (
	"sort"
	"strings"
)

const (
	ScopeProfile = "profile"
	ScopeOldSync = "https://identity.mozilla.com/apps/oldsync"
)

// NormalizeScopes trims, deduplicates and sorts scopes.
func NormalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		for _, part := range strings.Fields(scope) {
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return out
}

// ScopeKey is the canonical, order-independent cache key for scopes.
func ScopeKey(scopes []string) string {
	return strings.Join(NormalizeScopes(scopes), " ")
}

// ParseScopes splits a space or comma separated scope string.
func ParseScopes(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	return NormalizeScopes(strings.Fields(strings.ReplaceAll(trimmed, ",", " ")))
}

func containsScope(scopes []string, scope string) bool {
	for _, candidate := range scopes {
		if candidate == scope {
			return true
		}
	}
	return false
}
