// Package cache provides a size-bounded LRU cache.
//
// Entries are weighed by a cost function, typically their size in bytes.
// When the total cost exceeds the budget, least recently used entries are
// evicted until it fits again. The most recently stored entry is never
// evicted, so a single entry larger than the budget is still cached.
//
//	c := cache.New[string, []byte](1<<20, func(b []byte) int { return len(b) })
//	c.Set("key", data)
//	data, ok := c.Get("key")
package cache

import "sync"

// Cache is a thread-safe LRU cache bounded by the total cost of its entries.
//
// Cache must not be copied after creation (has mutex).
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*lruNode[K, V]
	order   lruList[K, V]
	cost    func(V) int
	budget  int
	total   int

	hits, misses, evictions uint64
}

// New creates a cache holding entries up to a total cost of budget.
// A budget of 0 means unlimited. A nil cost counts every entry as 1.
func New[K comparable, V any](budget int, cost func(V) int) *Cache[K, V] {
	if cost == nil {
		cost = func(V) int { return 1 }
	}
	return &Cache[K, V]{
		entries: make(map[K]*lruNode[K, V]),
		cost:    cost,
		budget:  budget,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.moveToFront(node)
	return node.value, true
}

// Set stores a value, replacing any previous value for key, and evicts
// least recently used entries while the budget is exceeded.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

func (c *Cache[K, V]) set(key K, value V) {
	if old, ok := c.entries[key]; ok {
		c.order.remove(old)
		c.total -= old.cost
	}
	node := &lruNode[K, V]{key: key, value: value, cost: c.cost(value)}
	c.order.pushFront(node)
	c.entries[key] = node
	c.total += node.cost

	for c.budget > 0 && c.total > c.budget && c.order.tail != node {
		oldest := c.order.tail
		c.order.remove(oldest)
		delete(c.entries, oldest.key)
		c.total -= oldest.cost
		c.evictions++
	}
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. create runs under the cache lock; an error is returned
// without caching anything.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.entries[key]; ok {
		c.hits++
		c.order.moveToFront(node)
		return node.value, nil
	}
	c.misses++
	value, err := create()
	if err != nil {
		var zero V
		return zero, err
	}
	c.set(key, value)
	return value, nil
}

// Delete removes an entry. Returns true if the entry was found.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.remove(node)
	delete(c.entries, key)
	c.total -= node.cost
	return true
}

// Clear removes all entries. Statistics are kept.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*lruNode[K, V])
	c.order = lruList[K, V]{}
	c.total = 0
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Cost:      c.total,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if n := c.hits + c.misses; n > 0 {
		s.HitRate = float64(c.hits) / float64(n)
	}
	return s
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Cost is the total cost of the entries.
	Cost int
	// Budget is the cost limit, 0 for unlimited.
	Budget int

	Hits      uint64
	Misses    uint64
	Evictions uint64
	// HitRate is the cache hit rate 0.0 to 1.0.
	HitRate float64
}
