package data

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/sessionguard/internal/clock"
)

// LocalLRU is a bounded in-process LRU with per-entry TTL. It is the first tier
// of the tenant cache and is safe for concurrent use.
type LocalLRU struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List // front = most recently used
	items map[string]*list.Element
	clock clock.Clock

	hits, misses, evicts atomic.Uint64
}

type lruEntry struct {
	key    string
	value  []byte
	expiry time.Time // zero means no expiry
}

// LocalLRUConfig groups constructor options.
type LocalLRUConfig struct {
	Capacity int // default 1024
	Clock    clock.Clock
}

// NewLocalLRU creates a LocalLRU.
func NewLocalLRU(cfg LocalLRUConfig) *LocalLRU {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &LocalLRU{
		cap:   cfg.Capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, cfg.Capacity),
		clock: cfg.Clock,
	}
}

// Get returns the live value for key and marks it recently used.
func (c *LocalLRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	ent := el.Value.(*lruEntry)
	if !ent.expiry.IsZero() && c.clock.Now().After(ent.expiry) {
		c.remove(el)
		c.misses.Add(1)
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return ent.value, true
}

// Set inserts or replaces key. ttl <= 0 means no expiry.
func (c *LocalLRU) Set(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*lruEntry)
		ent.value, ent.expiry = value, exp
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&lruEntry{key: key, value: value, expiry: exp})
	for c.ll.Len() > c.cap {
		c.remove(c.ll.Back())
		c.evicts.Add(1)
	}
}

// Delete removes key and reports whether it was present.
func (c *LocalLRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.remove(el)
	}
	return ok
}

// Len returns the number of entries, including expired ones not yet collected.
func (c *LocalLRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// LocalLRUStats are simple counters for observability.
type LocalLRUStats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (c *LocalLRU) Stats() LocalLRUStats {
	return LocalLRUStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Size:      c.Len(),
		Capacity:  c.cap,
	}
}

// remove requires c.mu.
func (c *LocalLRU) remove(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry).key)
}
