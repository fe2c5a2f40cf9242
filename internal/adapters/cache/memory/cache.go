// Package memory provides an in-process TTL cache for trackable reads.
package memory

import (
	"context"
	"time"

	"github.com/hylla/worktally/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

// Cache keeps trackables in a go-cache store keyed by id.
type Cache struct {
	store *gocache.Cache
}

// New returns a cache whose entries live for ttl. A non-positive ttl never expires entries.
// Expired entries are swept every two ttl periods.
func New(ttl time.Duration) *Cache {
	expiry, sweep := gocache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiry, sweep = ttl, 2*ttl
	}
	return &Cache{store: gocache.New(expiry, sweep)}
}

// Get returns the cached trackable when present and fresh.
func (c *Cache) Get(_ context.Context, id string) (domain.Trackable, bool, error) {
	v, ok := c.store.Get(id)
	if !ok {
		return domain.Trackable{}, false, nil
	}
	t, ok := v.(domain.Trackable)
	return t, ok, nil
}

// Set stores t under the default expiry.
func (c *Cache) Set(_ context.Context, t domain.Trackable) error {
	c.store.SetDefault(t.ID, t)
	return nil
}

// Invalidate drops ids.
func (c *Cache) Invalidate(_ context.Context, ids ...string) error {
	for _, id := range ids {
		c.store.Delete(id)
	}
	return nil
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
