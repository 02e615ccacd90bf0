package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProvider layers a shared Redis cache over another provider so
// that multiple service instances fetch each (scope, year) set once.
//
// Redis being down degrades to the inner provider; it never masks an
// inner failure as an empty calendar.
type RedisProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisProvider wraps a provider with a Redis-backed cache.
// A zero ttl means entries never expire.
func NewRedisProvider(inner Provider, client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{
		inner:  inner,
		client: client,
		ttl:    ttl,
		prefix: "lexops:holidays",
	}
}

func (p *RedisProvider) key(scope string, year int) string {
	return fmt.Sprintf("%s:%s:%d", p.prefix, scope, year)
}

// Holidays consults Redis first, then the inner provider, writing back
// on a miss.
func (p *RedisProvider) Holidays(ctx context.Context, scope string, year int) (Set, error) {
	key := p.key(scope, year)

	raw, err := p.client.Get(ctx, key).Bytes()
	if err == nil {
		var entries []Holiday
		if err := json.Unmarshal(raw, &entries); err == nil {
			set := make(Set, len(entries))
			for _, h := range entries {
				set.Add(h)
			}
			return set, nil
		}
		// Corrupt entry: fall through to a fresh fetch and overwrite.
	} else if err != redis.Nil {
		// Redis unreachable is a cache miss, not a calendar failure.
	}

	set, err := p.inner.Holidays(ctx, scope, year)
	if err != nil {
		return nil, err
	}

	entries := make([]Holiday, 0, len(set))
	for _, h := range set {
		entries = append(entries, h)
	}
	if raw, err := json.Marshal(entries); err == nil {
		// Best effort write-back.
		_ = p.client.Set(ctx, key, raw, p.ttl).Err()
	}
	return set, nil
}
