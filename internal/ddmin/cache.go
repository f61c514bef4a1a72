package ddmin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache memoizes oracle outcomes for one minimization run. Entries are
// never evicted and never overwritten: the first outcome stored for a key
// is the one every later lookup returns.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	invocations int
	hits        int
}

type cacheEntry struct {
	done    chan struct{}
	outcome Outcome
}

// CacheStats holds cache counters
type CacheStats struct {
	Entries     int
	Invocations int
	Hits        int
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// GetOrCompute returns the cached outcome for cfg, or invokes oracle
// exactly once and stores the result. Concurrent callers asking for the
// same key wait for the single in-flight evaluation. The second return
// value reports a cache hit.
func (c *Cache) GetOrCompute(ctx context.Context, cfg Configuration, oracle Oracle) (Outcome, bool) {
	fp := fingerprint(cfg.Key())

	c.mu.Lock()
	if entry, ok := c.entries[fp]; ok {
		c.hits++
		c.mu.Unlock()
		<-entry.done
		return entry.outcome, true
	}

	entry := &cacheEntry{done: make(chan struct{})}
	c.entries[fp] = entry
	c.invocations++
	c.mu.Unlock()

	// Waiters are released even if the oracle panics; they then see the
	// zero outcome, which is Unresolved
	defer close(entry.done)
	entry.outcome = oracle.Evaluate(ctx, cfg)

	return entry.outcome, false
}

// Lookup returns a completed cached outcome without invoking any oracle
func (c *Cache) Lookup(cfg Configuration) (Outcome, bool) {
	c.mu.Lock()
	entry, ok := c.entries[fingerprint(cfg.Key())]
	c.mu.Unlock()
	if !ok {
		return Outcome{}, false
	}

	select {
	case <-entry.done:
		return entry.outcome, true
	default:
		return Outcome{}, false
	}
}

// Stats returns cache counters
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Entries:     len(c.entries),
		Invocations: c.invocations,
		Hits:        c.hits,
	}
}

// fingerprint hashes a configuration key so map keys stay short for long
// inputs
func fingerprint(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
