package aria2

import "sync"

// Cache hands out one Client per Config. Asking for a different Config
// replaces the cached client and closes the old one, so at most one socket
// stays open.
type Cache struct {
	opts []Option

	mu     sync.Mutex
	client *Client
}

// NewCache returns an empty cache; opts are applied to every client it builds.
func NewCache(opts ...Option) *Cache {
	return &Cache{opts: opts}
}

// Get returns the cached client when cfg is unchanged, otherwise a new one.
func (c *Cache) Get(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	c.mu.Lock()
	if c.client != nil && c.client.cfg == cfg {
		client := c.client
		c.mu.Unlock()
		return client, nil
	}
	client, err := NewClient(cfg, c.opts...)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	old := c.client
	c.client = client
	c.mu.Unlock()

	if old != nil {
		old.log.Debug("connection settings changed, replacing client")
		old.Close()
	}
	return client, nil
}

// Close closes the cached client, if any, and empties the cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}
