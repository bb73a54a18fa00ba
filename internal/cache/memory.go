package cache

import (
	"context"
	"sync"
	"time"

	"tasksense/pkg/types"
)

// MemoryCache is an in-process suggestion cache with per-entry TTL. It
// serves single-node deployments and tests where Redis is not wired.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	suggestions []*types.Suggestion
	expiresAt   time.Time
}

// NewMemoryCache creates an in-process cache. A non-positive ttl means
// entries never expire.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetActive returns the cached list if present and unexpired.
func (c *MemoryCache) GetActive(_ context.Context, userID string) ([]*types.Suggestion, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.Invalidate(context.Background(), userID)
		return nil, false
	}
	out := make([]*types.Suggestion, len(entry.suggestions))
	copy(out, entry.suggestions)
	return out, true
}

// SetActive replaces the user's cached list.
func (c *MemoryCache) SetActive(_ context.Context, userID string, suggestions []*types.Suggestion) {
	entry := memoryEntry{suggestions: make([]*types.Suggestion, len(suggestions))}
	copy(entry.suggestions, suggestions)
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[userID] = entry
	c.mu.Unlock()
}

// Invalidate drops the user's entry.
func (c *MemoryCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
