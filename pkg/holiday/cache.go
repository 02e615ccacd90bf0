package holiday

import (
	"context"
	"fmt"
	"sync"
)

// CachedProvider memoizes another provider per (scope, year).
//
// The cache is owned by the provider collaborator, never a hidden
// process-wide singleton; construct one per wiring and inject it.
// Errors are not cached: a failed fetch is retried on the next call.
type CachedProvider struct {
	inner Provider

	mu   sync.RWMutex
	sets map[string]Set
}

// NewCachedProvider wraps a provider with an in-memory cache.
func NewCachedProvider(inner Provider) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		sets:  make(map[string]Set),
	}
}

func cacheKey(scope string, year int) string {
	return fmt.Sprintf("%s/%d", scope, year)
}

// Holidays returns the cached set or fetches it from the inner provider.
func (p *CachedProvider) Holidays(ctx context.Context, scope string, year int) (Set, error) {
	key := cacheKey(scope, year)

	p.mu.RLock()
	set, ok := p.sets[key]
	p.mu.RUnlock()
	if ok {
		return set, nil
	}

	set, err := p.inner.Holidays(ctx, scope, year)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.sets[key] = set
	p.mu.Unlock()
	return set, nil
}

// Invalidate drops every cached set, forcing fresh fetches.
func (p *CachedProvider) Invalidate() {
	p.mu.Lock()
	p.sets = make(map[string]Set)
	p.mu.Unlock()
}
