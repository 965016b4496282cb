// Package cache holds small in-process read-through caches with bounded size
// and a TTL. Entries are invalidated explicitly by the writer that changes
// the underlying row.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tbourn/legis-office-backend/internal/domain"
)

// Topics caches topic rows by ID.
type Topics struct {
	lru *expirable.LRU[string, domain.Topic]
}

// NewTopics returns a cache holding at most size topics for ttl each.
// A non-positive size falls back to 256 and a non-positive ttl to 5 minutes.
func NewTopics(size int, ttl time.Duration) *Topics {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Topics{lru: expirable.NewLRU[string, domain.Topic](size, nil, ttl)}
}

// Get returns the cached topic for id.
func (c *Topics) Get(id string) (domain.Topic, bool) {
	if c == nil {
		return domain.Topic{}, false
	}
	return c.lru.Get(id)
}

// Put stores t under its ID.
func (c *Topics) Put(t domain.Topic) {
	if c == nil {
		return
	}
	c.lru.Add(t.ID, t)
}

// Invalidate drops id so the next Get misses.
func (c *Topics) Invalidate(id string) {
	if c == nil {
		return
	}
	c.lru.Remove(id)
}

// Purge empties the cache.
func (c *Topics) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *Topics) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
