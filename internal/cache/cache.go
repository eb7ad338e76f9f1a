// Package cache implements the cascade's QueryCache: a bounded LRU from a
// normalized query key to the cascade result it previously produced,
// guarded against concurrent identical queries with singleflight.
package cache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is the default number of cached entries (spec default:
// 512).
const DefaultCapacity = 512

// Entry is one cached cascade result. SectionIDs lets Get discard an
// entry whose underlying sections have since been deleted, rather than
// serving a stale result.
type Entry struct {
	SectionIDs []int64
	Value      any
}

// Cache is a bounded LRU of normalized query -> Entry, with a singleflight
// group to collapse concurrent identical-key lookups into one computation.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, Entry]
	group singleflight.Group
}

// New creates a Cache with the given capacity (DefaultCapacity when <= 0).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	backing, _ := lru.New[string, Entry](capacity)
	return &Cache{lru: backing}
}

// Key normalizes a query and optional document scope into a cache key:
// trim, lower-case, collapse internal whitespace, with the scope appended
// so the same text scoped to different documents misses independently.
func Key(query string, docName string) string {
	fields := strings.Fields(strings.ToLower(query))
	normalized := strings.Join(fields, " ")
	if docName == "" {
		return normalized
	}
	return normalized + "\x00" + docName
}

// Get returns the cached entry for key, if present and live is true for
// it (the caller determines liveness, e.g. checking the store still has
// every referenced section). A non-live entry is evicted.
func (c *Cache) Get(key string, live func(Entry) bool) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		return Entry{}, false
	}
	if !live(entry) {
		c.lru.Remove(key)
		return Entry{}, false
	}
	return entry, true
}

// Put stores value under key. A later Put for the same key wins; the cache
// lock is held only for the insert itself.
func (c *Cache) Put(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry)
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Do collapses concurrent calls for the same key into a single invocation
// of fn, so a cache-stampede of identical queries only computes once.
func (c *Cache) Do(key string, fn func() (any, error)) (any, error, bool) {
	return c.group.Do(key, fn)
}
