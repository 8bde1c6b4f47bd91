package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/sessiongate"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached wraps a Directory with an expiring LRU of identities. Only
// FindIdentityByID reads through the cache; writes through Cached evict the
// affected entry.
//
// Deletes made directly against the inner Directory stay visible to the
// verifier for up to ttl.
type Cached struct {
	Directory
	cache  *lru.LRU[string, sessiongate.Identity]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCached(inner Directory, size int, ttl time.Duration) *Cached {
	if size < 10 {
		size = 10
	}
	return &Cached{
		Directory: inner,
		cache:     lru.NewLRU[string, sessiongate.Identity](size, nil, ttl),
	}
}

func (c *Cached) FindIdentityByID(ctx context.Context, id string) (sessiongate.Identity, error) {
	if identity, ok := c.cache.Get(id); ok {
		c.hits.Add(1)
		return identity, nil
	}
	c.misses.Add(1)

	identity, err := c.Directory.FindIdentityByID(ctx, id)
	if err != nil {
		return sessiongate.Identity{}, err
	}
	c.cache.Add(id, identity)
	return identity, nil
}

func (c *Cached) Update(ctx context.Context, id string, update UserUpdate) (User, error) {
	u, err := c.Directory.Update(ctx, id, update)
	c.cache.Remove(id)
	return u, err
}

func (c *Cached) Delete(ctx context.Context, id string) error {
	err := c.Directory.Delete(ctx, id)
	c.cache.Remove(id)
	return err
}

// Stats returns cache hit and miss counts.
func (c *Cached) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
