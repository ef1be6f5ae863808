package resolver

import (
	"context"
	"net/netip"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedBackend remembers successful lookups of another Backend for a fixed
// TTL. Failures are never cached.
type CachedBackend struct {
	next  Backend
	cache *cache.Cache
}

func NewCachedBackend(next Backend, ttl time.Duration) *CachedBackend {
	return &CachedBackend{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (b *CachedBackend) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	key := network + "|" + host
	if v, ok := b.cache.Get(key); ok {
		return slices.Clone(v.([]netip.Addr)), nil
	}

	addrs, err := b.next.LookupNetIP(ctx, network, host)
	if err != nil {
		return nil, err
	}
	b.cache.SetDefault(key, slices.Clone(addrs))
	return addrs, nil
}

// Len returns the number of cached names, including expired ones not yet
// swept.
func (b *CachedBackend) Len() int {
	return b.cache.ItemCount()
}
