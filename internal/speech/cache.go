package speech

import "sync"

type cacheKey struct {
	text  string
	voice string
}

// cache is a bounded map that evicts its oldest insertion when full.
type cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[cacheKey][]byte
	order    []cacheKey
}

func newCache(capacity int) *cache {
	return &cache{
		capacity: capacity,
		entries:  make(map[cacheKey][]byte, capacity),
	}
}

func (c *cache) get(k cacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[k]
	return data, ok
}

func (c *cache) put(k cacheKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[k]; ok {
		c.entries[k] = data
		return
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[k] = data
	c.order = append(c.order, k)
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
