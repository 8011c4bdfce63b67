package handle

import (
	"sync"

	"github.com/hazyhaar/domlocator/locator/internal/rank"
)

type cacheKey struct {
	page string
	hash string
}

type cacheEntry struct {
	version     uint64
	fingerprint string
	result      rank.Result
}

// cache maps (page, locator hash) to the last resolution. Entries are
// valid for exactly one snapshot version; entries older than the highest
// version seen for their page are dropped when next touched.
type cache struct {
	mu      sync.Mutex
	max     int
	entries map[cacheKey]cacheEntry
	floor   map[string]uint64 // page -> highest observed version

	hits, misses, writes, rejected, evictions uint64
}

func newCache(max int) *cache {
	return &cache{
		max:     max,
		entries: make(map[cacheKey]cacheEntry),
		floor:   make(map[string]uint64),
	}
}

// observe raises the version floor of page. Nothing is evicted here.
func (c *cache) observe(page string, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version > c.floor[page] {
		c.floor[page] = version
	}
}

// next raises the floor of page by one and returns it.
func (c *cache) next(page string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floor[page]++
	return c.floor[page]
}

func (c *cache) get(k cacheKey, version uint64) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version > c.floor[k.page] {
		c.floor[k.page] = version
	}
	e, ok := c.entries[k]
	if ok && e.version < c.floor[k.page] {
		delete(c.entries, k)
		c.evictions++
		ok = false
	}
	if !ok || e.version != version {
		c.misses++
		return cacheEntry{}, false
	}
	c.hits++
	return e, true
}

// put stores e unless it is older than the page floor or an entry for the
// same or a newer version is already present. It reports whether e was
// stored.
func (c *cache) put(k cacheKey, e cacheEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.version < c.floor[k.page] {
		c.rejected++
		return false
	}
	if cur, ok := c.entries[k]; ok && cur.version >= e.version {
		c.rejected++
		return false
	}
	if _, ok := c.entries[k]; !ok && len(c.entries) >= c.max {
		c.makeRoomLocked()
	}
	c.entries[k] = e
	c.writes++
	return true
}

// drop removes k if it still holds version.
func (c *cache) drop(k cacheKey, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok && e.version == version {
		delete(c.entries, k)
		c.evictions++
	}
}

// makeRoomLocked evicts every outdated entry, or failing that the entry
// with the oldest version.
func (c *cache) makeRoomLocked() {
	freed := false
	for k, e := range c.entries {
		if e.version < c.floor[k.page] {
			delete(c.entries, k)
			c.evictions++
			freed = true
		}
	}
	if freed {
		return
	}
	var oldest cacheKey
	var oldestVersion uint64
	first := true
	for k, e := range c.entries {
		if first || e.version < oldestVersion || (e.version == oldestVersion && k.page+k.hash < oldest.page+oldest.hash) {
			oldest, oldestVersion, first = k, e.version, false
		}
	}
	if !first {
		delete(c.entries, oldest)
		c.evictions++
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type cacheStats struct {
	hits, misses, writes, rejected, evictions uint64
	size                                      int
}

func (c *cache) stats() cacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cacheStats{c.hits, c.misses, c.writes, c.rejected, c.evictions, len(c.entries)}
}
