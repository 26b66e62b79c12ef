// Package cache provides a TTL cache for device-type lookups so bulk scrapes
// do not re-issue the /shelly discovery call on every pass.
package cache

import (
	"sync"
	"time"
)

type cachedType struct {
	deviceType string
	cachedAt   time.Time
}

// TypeCache is a thread-safe map from target identity to its reported device
// type with per-entry TTL expiry.
type TypeCache struct {
	entries map[string]cachedType
	ttl     time.Duration
	mutex   sync.RWMutex
}

// NewTypeCache creates a cache whose entries expire after ttl.
func NewTypeCache(ttl time.Duration) *TypeCache {
	return &TypeCache{
		entries: make(map[string]cachedType),
		ttl:     ttl,
	}
}

// Get returns the cached device type for target, if present and fresh.
func (tc *TypeCache) Get(target string) (string, bool) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	entry, ok := tc.entries[target]
	if !ok || time.Since(entry.cachedAt) >= tc.ttl {
		return "", false
	}
	return entry.deviceType, true
}

// Put records the device type for target.
func (tc *TypeCache) Put(target, deviceType string) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.entries[target] = cachedType{deviceType: deviceType, cachedAt: time.Now()}
}

// Invalidate removes target from the cache, e.g. after a failed probe.
func (tc *TypeCache) Invalidate(target string) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	delete(tc.entries, target)
}

// CleanupStaleEntries removes expired entries and returns how many were
// dropped.
func (tc *TypeCache) CleanupStaleEntries() int {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	var cleaned int
	now := time.Now()
	for target, entry := range tc.entries {
		if now.Sub(entry.cachedAt) >= tc.ttl {
			delete(tc.entries, target)
			cleaned++
		}
	}
	return cleaned
}

// Len returns the number of entries currently held, including stale ones.
func (tc *TypeCache) Len() int {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return len(tc.entries)
}
