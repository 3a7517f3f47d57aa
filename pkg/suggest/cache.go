package suggest

import (
	"container/list"
	"sync"

	"github.com/charmbracelet/log"
)

// Cache maps a normalized query to the remote names fetched for it.
// With maxEntries 0 it grows for the life of the process; otherwise the least recently
// used query is evicted once the bound is reached. Failures are never stored.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	recency    *list.List // front is most recently used
	hits       int64
	evictions  int64
	maxEntries int
}

type cacheEntry struct {
	query string
	names []string
}

// NewCache creates an empty cache. maxEntries <= 0 means unbounded.
func NewCache(maxEntries int) *Cache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		recency:    list.New(),
		maxEntries: maxEntries,
	}
}

// Get returns the cached names for normQuery. An empty slice is a valid hit.
func (c *Cache) Get(normQuery string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[normQuery]
	if !ok {
		return nil, false
	}
	c.hits++
	c.recency.MoveToFront(el)
	return el.Value.(*cacheEntry).names, true
}

// Put stores a copy of names under normQuery, replacing any previous entry.
func (c *Cache) Put(normQuery string, names []string) {
	stored := make([]string, len(names))
	copy(stored, names)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[normQuery]; ok {
		el.Value.(*cacheEntry).names = stored
		c.recency.MoveToFront(el)
		return
	}
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[normQuery] = c.recency.PushFront(&cacheEntry{query: normQuery, names: stored})
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]int{
		"cacheEntries":    len(c.entries),
		"maxCacheEntries": c.maxEntries,
		"cacheHits":       int(c.hits),
		"cacheEvictions":  int(c.evictions),
	}
}

func (c *Cache) evictOldest() {
	el := c.recency.Back()
	if el == nil {
		return
	}
	entry := c.recency.Remove(el).(*cacheEntry)
	delete(c.entries, entry.query)
	c.evictions++
	log.Debugf("Evicted query '%s' from suggestion cache", entry.query)
}
