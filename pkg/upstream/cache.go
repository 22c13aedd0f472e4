package upstream

import "sync"

// Cache holds the single current Client. A lookup with a different key
// replaces it; the previous client is discarded, never mutated.
type Cache struct {
	mu      sync.Mutex
	current *Client
	opts    Options
}

// NewCache returns an empty Cache whose clients are built with opts.
func NewCache(opts *Options) *Cache {
	return &Cache{opts: opts.withDefaults()}
}

// Get returns the cached client when its key equals apiKey and otherwise
// builds and caches a new one. Callers must use the returned client for the
// rest of their operation instead of reading the cache again.
func (c *Cache) Get(apiKey string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.apiKey == apiKey {
		return c.current
	}
	opts := c.opts
	c.current = NewClient(apiKey, &opts)
	return c.current
}

// Current returns the cached client, or nil.
func (c *Cache) Current() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Len reports the number of cached clients, which is always 0 or 1.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return 1
}
