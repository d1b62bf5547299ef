package transport

import (
	"context"
	"net/url"
	"strings"

	"github.com/goliatone/go-accounts/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const discoveryCacheKeyPrefix = "go-accounts::discovery::v1"

// CachedDiscoverer memoizes discovery documents per content base.
type CachedDiscoverer struct {
	base  core.ConfigDiscoverer
	cache repositorycache.CacheService
}

func NewCachedDiscoverer(base core.ConfigDiscoverer, cacheService repositorycache.CacheService) (*CachedDiscoverer, error) {
	if base == nil {
		return nil, core.NewError(core.ErrorInternal, "transport: base config discoverer is required")
	}
	if cacheService == nil {
		return nil, core.NewError(core.ErrorInternal, "transport: discovery cache service is required")
	}
	return &CachedDiscoverer{base: base, cache: cacheService}, nil
}

// DiscoveryCacheKey is go-accounts::discovery::v1::<escaped content base>.
func DiscoveryCacheKey(contentBase string) string {
	return discoveryCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(contentBase))
}

func (d *CachedDiscoverer) Discover(ctx context.Context, contentBase string) (core.Endpoints, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return core.Endpoints{}, core.NewError(core.ErrorInternal, "transport: cached discoverer is not configured")
	}
	if _, err := core.DiscoveryURL(contentBase); err != nil {
		return core.Endpoints{}, err
	}
	return repositorycache.GetOrFetch(ctx, d.cache, DiscoveryCacheKey(contentBase), func(ctx context.Context) (core.Endpoints, error) {
		return d.base.Discover(ctx, contentBase)
	})
}

// Invalidate drops the cached document for contentBase.
func (d *CachedDiscoverer) Invalidate(ctx context.Context, contentBase string) error {
	if d == nil || d.cache == nil {
		return nil
	}
	return d.cache.Delete(ctx, DiscoveryCacheKey(contentBase))
}

var _ core.ConfigDiscoverer = (*CachedDiscoverer)(nil)
