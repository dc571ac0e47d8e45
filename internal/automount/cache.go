package automount

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nace/automount/internal/system"
)

// DefaultPassphraseTTL is how long a passphrase stays cached after its last
// use.
const DefaultPassphraseTTL = 10 * time.Minute

type cacheEntry struct {
	passphrase *system.SecureBytes
	expires    time.Time
}

// PassphraseCache keeps recently used LUKS passphrases in memory, keyed by
// outer container UUID. Expired entries are dropped on lookup.
type PassphraseCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[string]cacheEntry
}

// NewPassphraseCache creates an empty cache.
func NewPassphraseCache(clk clock.Clock, ttl time.Duration) *PassphraseCache {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultPassphraseTTL
	}

	return &PassphraseCache{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Put stores a copy of passphrase for outerUUID.
func (c *PassphraseCache) Put(outerUUID string, passphrase *system.SecureBytes) {
	if passphrase.Len() == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[outerUUID]; ok {
		old.passphrase.Zeroize()
	}

	c.entries[outerUUID] = cacheEntry{
		passphrase: passphrase.Clone(),
		expires:    c.clock.Now().Add(c.ttl),
	}
}

// Get returns a copy of the cached passphrase, or nil when there is none or
// it has expired. The caller owns the copy.
func (c *PassphraseCache) Get(outerUUID string) *system.SecureBytes {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lookup(outerUUID)
	if !ok {
		return nil
	}

	return entry.passphrase.Clone()
}

// Touch extends the lifetime of a live entry.
func (c *PassphraseCache) Touch(outerUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lookup(outerUUID); ok {
		entry.expires = c.clock.Now().Add(c.ttl)
		c.entries[outerUUID] = entry
	}
}

// Forget drops the entry for outerUUID.
func (c *PassphraseCache) Forget(outerUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[outerUUID]; ok {
		entry.passphrase.Zeroize()
		delete(c.entries, outerUUID)
	}
}

// Clear zeroes and drops every entry.
func (c *PassphraseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for uuid, entry := range c.entries {
		entry.passphrase.Zeroize()
		delete(c.entries, uuid)
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *PassphraseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// lookup must be called with c.mu held.
func (c *PassphraseCache) lookup(outerUUID string) (cacheEntry, bool) {
	entry, ok := c.entries[outerUUID]
	if !ok {
		return cacheEntry{}, false
	}

	if !c.clock.Now().Before(entry.expires) {
		entry.passphrase.Zeroize()
		delete(c.entries, outerUUID)
		return cacheEntry{}, false
	}

	return entry, true
}
