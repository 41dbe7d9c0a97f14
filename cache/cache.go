// Package cache implements the in-memory HTTP cache of the pipeline: an LRU
// store of responses keyed by normalized URL and bound by a byte budget.
package cache

import (
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog/log"

	cachekey "github.com/always-cache/fetchpipe/pkg/cache-key"
	"github.com/always-cache/fetchpipe/rfc9111"
)

const (
	DefaultMaxMemoryBytes = 50 << 20
	DefaultMaxEntries     = 1000
)

type Config struct {
	// MaxMemoryBytes bounds the summed body size of all entries.
	MaxMemoryBytes int64
	// MaxEntries bounds the number of entries.
	MaxEntries int
	// OnEvict is called (outside the cache lock) for every entry dropped to
	// make room. Replacing or invalidating an entry is not an eviction.
	OnEvict func(CacheEntry)
}

// HttpCache is safe for concurrent use. The LRU store and the size counter
// are guarded by the same mutex so that they always change together.
type HttpCache struct {
	mu             sync.Mutex
	store          *lru.LRU[string, *CacheEntry]
	currentSize    int64
	maxMemoryBytes int64
	maxEntries     int
	onEvict        func(CacheEntry)
}

// CreateCache creates a new cache with the given config.
func CreateCache(config Config) *HttpCache {
	if config.MaxMemoryBytes <= 0 {
		config.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultMaxEntries
	}
	c := &HttpCache{
		maxMemoryBytes: config.MaxMemoryBytes,
		maxEntries:     config.MaxEntries,
		onEvict:        config.OnEvict,
	}
	// the callback runs for every removal, so it is the one place where the
	// size counter shrinks
	store, err := lru.NewLRU[string, *CacheEntry](config.MaxEntries, func(_ string, entry *CacheEntry) {
		c.currentSize -= entry.SizeBytes
	})
	if err != nil {
		panic(err)
	}
	c.store = store
	return c
}

// Get returns a copy of the entry for url, touching its recency and
// incrementing its hit count. Callers must check CanUseWithoutRevalidation
// before serving the entry as is.
func (c *HttpCache) Get(url string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.store.Get(cachekey.GetKey(url))
	if !ok {
		return CacheEntry{}, false
	}
	entry.HitCount++
	return entry.clone(), true
}

// Peek returns a copy of the entry for url without touching it.
func (c *HttpCache) Peek(url string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.store.Peek(cachekey.GetKey(url))
	if !ok {
		return CacheEntry{}, false
	}
	return entry.clone(), true
}

// Put stores a response body and its header fields under url.
// Responses marked no-store are never written, and neither are bodies
// larger than the whole budget. Least recently used entries are evicted
// until the new entry fits. It reports whether the entry was stored.
func (c *HttpCache) Put(url string, body []byte, header http.Header) bool {
	entry := newEntry(url, append([]byte(nil), body...), header.Clone(), time.Now())
	if entry.CacheControl.NoStore {
		log.Trace().Str("url", url).Msg("Not caching no-store response")
		return false
	}
	if entry.SizeBytes > c.maxMemoryBytes {
		log.Debug().Str("url", url).Int64("size", entry.SizeBytes).Msg("Response larger than cache budget")
		return false
	}
	key := cachekey.GetKey(url)

	c.mu.Lock()
	// replacing is not an eviction; removing first keeps the size delta right
	c.store.Remove(key)
	evicted := make([]CacheEntry, 0)
	for c.currentSize+entry.SizeBytes > c.maxMemoryBytes || c.store.Len() >= c.maxEntries {
		_, oldest, ok := c.store.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, *oldest)
	}
	c.store.Add(key, &entry)
	c.currentSize += entry.SizeBytes
	c.mu.Unlock()

	for _, e := range evicted {
		log.Trace().Str("url", e.URL).Msg("Evicted cache entry")
		if c.onEvict != nil {
			c.onEvict(e)
		}
	}
	return true
}

// Invalidate removes the entry for url, if any.
func (c *HttpCache) Invalidate(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Remove(cachekey.GetKey(url))
}

// Clear drops all entries.
func (c *HttpCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Purge()
	c.currentSize = 0
}

// Size returns the summed size in bytes of all entries.
func (c *HttpCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Len returns the number of entries.
func (c *HttpCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Keys returns the cache keys from least to most recently used.
func (c *HttpCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Keys()
}

// MaxMemoryBytes returns the configured byte budget.
func (c *HttpCache) MaxMemoryBytes() int64 {
	return c.maxMemoryBytes
}

// IsCacheable reports whether a response may be stored at all: a 2xx or 304
// status and no Cache-Control forbidding storage.
func IsCacheable(statusCode int, header http.Header) bool {
	return rfc9111.IsCacheable(statusCode, header)
}
