package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultTTL = time.Hour

// Entry is one cached value. It is live while now - StoredAt <= TTL.
type Entry struct {
	Value    any
	StoredAt time.Time
	TTL      time.Duration
}

func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Store is the backing key-value storage of a Cache. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry)
	Delete(key string) bool
	Len() int
	Keys() []string
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]Entry)}
}

func (m *memoryStore) Get(key string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	return entry, ok
}

func (m *memoryStore) Set(key string, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry
}

func (m *memoryStore) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	return true
}

func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

func (m *memoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys
}

// Metrics is a point-in-time snapshot of cache accounting.
type Metrics struct {
	Requests  int64   `json:"requests"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Deletes   int64   `json:"deletes"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a TTL key-value cache with in-flight request deduplication.
// Expiry is lazy: entries are checked and evicted on read, so absence of a
// sweep never affects correctness.
type Cache struct {
	store      Store
	group      singleflight.Group
	now        func() time.Time
	defaultTTL time.Duration

	requests  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

type Option func(*Cache)

func WithStore(store Store) Option {
	return func(c *Cache) {
		c.store = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		store:      newMemoryStore(),
		now:        time.Now,
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key with a fresh timestamp, overwriting any existing
// entry. A non-positive ttl falls back to the cache default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.store.Set(key, Entry{
		Value:    value,
		StoredAt: c.now(),
		TTL:      ttl,
	})
	c.sets.Add(1)
}

// Get returns the live value under key. Absent and expired keys both report
// ok=false; an expired entry is evicted on the spot.
func (c *Cache) Get(key string) (any, bool) {
	c.requests.Add(1)

	entry, ok := c.store.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if entry.Expired(c.now()) {
		if c.store.Delete(key) {
			c.evictions.Add(1)
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.Value, true
}

// Invalidate removes entries matching pattern immediately, regardless of TTL.
// A pattern ending in '*' matches by prefix; anything else is an exact key.
// It returns the number of removed entries.
func (c *Cache) Invalidate(pattern string) int {
	removed := 0
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		for _, key := range c.store.Keys() {
			if strings.HasPrefix(key, prefix) && c.store.Delete(key) {
				removed++
			}
		}
	} else if c.store.Delete(pattern) {
		removed = 1
	}
	c.deletes.Add(int64(removed))
	return removed
}

// Do executes fn under key with in-flight deduplication: while one call is
// outstanding, concurrent callers for the same key wait for it and receive
// its value or error verbatim. Once settled the key is free again.
func (c *Cache) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	value, err, _ := c.group.Do(key, func() (any, error) {
		return fn(ctx)
	})
	return value, err
}

// Sweep evicts every expired entry and returns how many were removed. Purely
// a memory-bound measure; reads do not depend on it.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0
	for _, key := range c.store.Keys() {
		entry, ok := c.store.Get(key)
		if !ok || !entry.Expired(now) {
			continue
		}
		if c.store.Delete(key) {
			removed++
		}
	}
	c.evictions.Add(int64(removed))
	return removed
}

func (c *Cache) Metrics() Metrics {
	requests := c.requests.Load()
	hits := c.hits.Load()
	m := Metrics{
		Requests:  requests,
		Hits:      hits,
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Deletes:   c.deletes.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.store.Len(),
	}
	if requests > 0 {
		m.HitRate = float64(hits) / float64(requests)
	}
	return m
}
