package registry

import (
	"sync"
	"time"
)

// validationCache memoizes Validate outcomes for a bounded window. Entries
// store only the boolean result, not the record, to bound memory. A cached
// true is trusted until its TTL even if the underlying record is removed
// meanwhile: that staleness window is accepted, documented behavior, not a
// correctness bug. Revocation is therefore eventually consistent.
type validationCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	valid   bool
	expires time.Time
}

func newValidationCache(ttl time.Duration, now func() time.Time) *validationCache {
	if now == nil {
		now = time.Now
	}
	return &validationCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// get returns the cached outcome and whether a live entry existed.
func (c *validationCache) get(auditID string) (bool, bool) {
	if c.ttl <= 0 {
		return false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[auditID]
	if !ok {
		return false, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, auditID)
		return false, false
	}
	return entry.valid, true
}

func (c *validationCache) set(auditID string, valid bool) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[auditID] = cacheEntry{valid: valid, expires: c.now().Add(c.ttl)}
}
