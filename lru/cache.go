// Package lru implements a generic, thread-safe LRU cache with an eviction
// hook, used to bound the number of live per-user workspaces.
//
// Get, Put, GetOrAdd, Remove and Len are O(1); Values and Purge are O(n).
package lru

import "sync"

// EvictFunc is called with every entry that leaves the cache through
// capacity eviction, Remove or Purge. It runs after the cache lock is
// released, so it may call back into the cache.
type EvictFunc[K comparable, V any] func(key K, val V)

type entry[K comparable, V any] struct {
	key        K
	val        V
	prev, next *entry[K, V]
}

// Cache is a generic, thread-safe LRU cache.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	size    int
	items   map[K]*entry[K, V]
	root    entry[K, V] // sentinel; root.next is most recently used
	onEvict EvictFunc[K, V]
}

// New creates a cache holding at most size entries. onEvict may be nil.
// Panics if size < 1.
func New[K comparable, V any](size int, onEvict EvictFunc[K, V]) *Cache[K, V] {
	if size < 1 {
		panic("lru: size must be >= 1")
	}
	c := &Cache[K, V]{
		size:    size,
		items:   make(map[K]*entry[K, V], size),
		onEvict: onEvict,
	}
	c.root.next = &c.root
	c.root.prev = &c.root
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.val, true
}

// Put inserts or replaces the value for key. It reports whether an older
// entry was evicted to make room.
func (c *Cache[K, V]) Put(key K, val V) bool {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		e.val = val
		c.moveToFront(e)
		c.mu.Unlock()
		return false
	}
	victim := c.insert(key, val)
	c.mu.Unlock()

	c.evicted(victim)
	return victim != nil
}

// GetOrAdd returns the cached value for key, or stores and returns the
// result of create. create runs under the cache lock and must not call
// back into the cache. An error from create leaves the cache unchanged.
func (c *Cache[K, V]) GetOrAdd(key K, create func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		c.moveToFront(e)
		c.mu.Unlock()
		return e.val, true, nil
	}
	val, err := create()
	if err != nil {
		c.mu.Unlock()
		var zero V
		return zero, false, err
	}
	victim := c.insert(key, val)
	c.mu.Unlock()

	c.evicted(victim)
	return val, false, nil
}

// Remove deletes key, running the eviction hook. It reports whether the
// key was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	e, ok := c.items[key]
	if ok {
		c.unlink(e)
	}
	c.mu.Unlock()

	if ok {
		c.evicted(e)
	}
	return ok
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.items))
	for e := c.root.next; e != &c.root; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Values returns values from most to least recently used.
func (c *Cache[K, V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	vals := make([]V, 0, len(c.items))
	for e := c.root.next; e != &c.root; e = e.next {
		vals = append(vals, e.val)
	}
	return vals
}

// Purge empties the cache, running the eviction hook for every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	var gone []*entry[K, V]
	for e := c.root.next; e != &c.root; e = e.next {
		gone = append(gone, e)
	}
	c.items = make(map[K]*entry[K, V], c.size)
	c.root.next = &c.root
	c.root.prev = &c.root
	c.mu.Unlock()

	for _, e := range gone {
		c.evicted(e)
	}
}

// insert adds a new entry at the front and returns the entry evicted to
// make room, if any. Caller holds mu.
func (c *Cache[K, V]) insert(key K, val V) *entry[K, V] {
	var victim *entry[K, V]
	if len(c.items) >= c.size {
		victim = c.root.prev
		c.unlink(victim)
	}
	e := &entry[K, V]{key: key, val: val}
	c.items[key] = e
	c.pushFront(e)
	return victim
}

func (c *Cache[K, V]) evicted(e *entry[K, V]) {
	if e != nil && c.onEvict != nil {
		c.onEvict(e.key, e.val)
	}
}

func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
	delete(c.items, e.key)
}

func (c *Cache[K, V]) pushFront(e *entry[K, V]) {
	e.prev = &c.root
	e.next = c.root.next
	c.root.next.prev = e
	c.root.next = e
}

func (c *Cache[K, V]) moveToFront(e *entry[K, V]) {
	if c.root.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	c.pushFront(e)
}
