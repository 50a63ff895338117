package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// CacheTTL is how long a resolved key skips the bcrypt check.
	CacheTTL = 5 * time.Minute

	// CacheMaxEntries bounds the cache; the least recently used entry is
	// evicted first.
	CacheMaxEntries = 10_000
)

// Identity is the authenticated agent attached to a request.
type Identity struct {
	ID   string
	Name string
}

type cacheEntry struct {
	id        Identity
	expiresAt time.Time
}

// CredentialCache is a bounded expiring map from key digest to identity.
// Expired entries are never returned; Sweep reclaims their memory.
type CredentialCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries *simplelru.LRU[string, cacheEntry]

	Now func() time.Time
}

// NewCredentialCache holds at most maxEntries identities for ttl each.
// Non-positive arguments use CacheTTL and CacheMaxEntries.
func NewCredentialCache(ttl time.Duration, maxEntries int) *CredentialCache {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = CacheMaxEntries
	}
	entries, _ := simplelru.NewLRU[string, cacheEntry](maxEntries, nil)
	return &CredentialCache{
		ttl:     ttl,
		entries: entries,
		Now:     time.Now,
	}
}

func (c *CredentialCache) Get(digest string) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(digest)
	if !ok || !c.Now().Before(e.expiresAt) {
		return Identity{}, false
	}
	return e.id, true
}

func (c *CredentialCache) Put(digest string, id Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(digest, cacheEntry{id: id, expiresAt: c.Now().Add(c.ttl)})
}

// Sweep drops expired entries and returns how many were removed.
func (c *CredentialCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.Now()
	removed := 0
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && !now.Before(e.expiresAt) {
			c.entries.Remove(k)
			removed++
		}
	}
	return removed
}

func (c *CredentialCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (c *CredentialCache) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}
