package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry[K comparable, V any] struct {
	key      K
	value    V
	lastUsed time.Time
}

// EvictReason tells an eviction callback why an entry left the cache.
type EvictReason int

const (
	EvictCapacity EvictReason = iota // pushed out by a newer entry
	EvictIdle                        // not used within the idle TTL
	EvictRemoved                     // removed explicitly or by Clear
)

// LRUCache is a thread-safe LRU cache with an optional idle TTL.
// Eviction callbacks run after the cache lock is released, so they may
// do slow cleanup such as stopping background workers.
type LRUCache[K comparable, V any] struct {
	capacity int
	idleTTL  time.Duration
	now      func() time.Time
	onEvict  func(key K, value V, reason EvictReason)

	items    map[K]*list.Element
	eviction *list.List
	mu       sync.Mutex
}

// Option configures an LRUCache.
type Option[K comparable, V any] func(*LRUCache[K, V])

// WithIdleTTL expires entries that have not been read or written for ttl.
// Zero disables idle expiry.
func WithIdleTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *LRUCache[K, V]) { c.idleTTL = ttl }
}

// WithEvictCallback registers fn to be called for every entry leaving the cache.
func WithEvictCallback[K comparable, V any](fn func(key K, value V, reason EvictReason)) Option[K, V] {
	return func(c *LRUCache[K, V]) { c.onEvict = fn }
}

// WithClock overrides time.Now.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRUCache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

// NewLRUCache creates a new LRU cache with the specified capacity.
// The capacity must be positive, otherwise it panics.
func NewLRUCache[K comparable, V any](capacity int, opts ...Option[K, V]) *LRUCache[K, V] {
	if capacity <= 0 {
		panic("LRU cache capacity must be positive")
	}
	c := &LRUCache[K, V]{
		capacity: capacity,
		now:      time.Now,
		items:    make(map[K]*list.Element),
		eviction: list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value and marks it as recently used.
// An idle-expired entry is evicted and reported as missing.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	var evicted []*lruEntry[K, V]
	defer func() { c.notify(evicted, EvictIdle) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		if c.expired(entry) {
			evicted = append(evicted, c.removeElement(elem))
			var zero V
			return zero, false
		}
		entry.lastUsed = c.now()
		c.eviction.MoveToFront(elem)
		return entry.value, true
	}

	var zero V
	return zero, false
}

// Put adds or updates a value.
// Returns the previous value and true if the key was present.
func (c *LRUCache[K, V]) Put(key K, value V) (V, bool) {
	var evicted []*lruEntry[K, V]
	defer func() { c.notify(evicted, EvictCapacity) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		old := entry.value
		entry.value = value
		entry.lastUsed = c.now()
		c.eviction.MoveToFront(elem)
		return old, true
	}

	evicted = c.insert(key, value)
	var zero V
	return zero, false
}

// GetOrCreate returns the live value for key, calling create to build one
// when the key is missing or idle-expired. create runs under the cache lock
// and must not call back into the cache.
func (c *LRUCache[K, V]) GetOrCreate(key K, create func() V) (V, bool) {
	var idle, pushed []*lruEntry[K, V]
	defer func() {
		c.notify(idle, EvictIdle)
		c.notify(pushed, EvictCapacity)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*lruEntry[K, V])
		if !c.expired(entry) {
			entry.lastUsed = c.now()
			c.eviction.MoveToFront(elem)
			return entry.value, true
		}
		idle = append(idle, c.removeElement(elem))
	}

	value := create()
	pushed = c.insert(key, value)
	return value, false
}

// Remove deletes an entry. Returns the removed value and true if it existed.
func (c *LRUCache[K, V]) Remove(key K) (V, bool) {
	var evicted []*lruEntry[K, V]
	defer func() { c.notify(evicted, EvictRemoved) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := c.removeElement(elem)
		evicted = append(evicted, entry)
		return entry.value, true
	}

	var zero V
	return zero, false
}

// PurgeIdle evicts every entry past its idle TTL and returns how many were dropped.
func (c *LRUCache[K, V]) PurgeIdle() int {
	if c.idleTTL <= 0 {
		return 0
	}

	var evicted []*lruEntry[K, V]
	defer func() { c.notify(evicted, EvictIdle) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Oldest entries sit at the back; stop at the first live one.
	for elem := c.eviction.Back(); elem != nil; {
		entry := elem.Value.(*lruEntry[K, V])
		if !c.expired(entry) {
			break
		}
		prev := elem.Prev()
		evicted = append(evicted, c.removeElement(elem))
		elem = prev
	}
	return len(evicted)
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Clear removes all entries, reporting each to the evict callback.
func (c *LRUCache[K, V]) Clear() {
	var evicted []*lruEntry[K, V]
	defer func() { c.notify(evicted, EvictRemoved) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		evicted = append(evicted, elem.Value.(*lruEntry[K, V]))
	}
	c.items = make(map[K]*list.Element)
	c.eviction.Init()
}

// Must be called with lock held.
func (c *LRUCache[K, V]) insert(key K, value V) []*lruEntry[K, V] {
	entry := &lruEntry[K, V]{key: key, value: value, lastUsed: c.now()}
	c.items[key] = c.eviction.PushFront(entry)

	var evicted []*lruEntry[K, V]
	for c.eviction.Len() > c.capacity {
		evicted = append(evicted, c.removeElement(c.eviction.Back()))
	}
	return evicted
}

// Must be called with lock held.
func (c *LRUCache[K, V]) removeElement(elem *list.Element) *lruEntry[K, V] {
	c.eviction.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)
	return entry
}

// Must be called with lock held.
func (c *LRUCache[K, V]) expired(entry *lruEntry[K, V]) bool {
	return c.idleTTL > 0 && c.now().Sub(entry.lastUsed) > c.idleTTL
}

func (c *LRUCache[K, V]) notify(entries []*lruEntry[K, V], reason EvictReason) {
	if c.onEvict == nil {
		return
	}
	for _, e := range entries {
		c.onEvict(e.key, e.value, reason)
	}
}
