package calculations

import (
	"sync"
	"time"
)

// InMemoryTemplatesCache is an in-memory TemplatesCache, safe for concurrent access
type InMemoryTemplatesCache struct {
	templates []*Template
	cachedAt  time.Time
	config    CacheConfig
	now       func() time.Time
	mu        sync.RWMutex
	isValid   bool
}

// NewInMemoryTemplatesCache creates a new in-memory templates cache
func NewInMemoryTemplatesCache(config CacheConfig) *InMemoryTemplatesCache {
	return &InMemoryTemplatesCache{
		config: config,
		now:    time.Now,
	}
}

// Get returns copies of the cached templates, or nil when invalid or expired
func (c *InMemoryTemplatesCache) Get() []*Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.fresh() {
		return nil
	}

	out := make([]*Template, len(c.templates))
	for i, t := range c.templates {
		out[i] = cloneTemplate(t)
	}
	return out
}

// Set stores copies of templates in cache
func (c *InMemoryTemplatesCache) Set(templates []*Template) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates = make([]*Template, len(templates))
	for i, t := range templates {
		c.templates[i] = cloneTemplate(t)
	}
	c.cachedAt = c.now()
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemoryTemplatesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.templates = nil
}

// IsValid returns true if cache contains unexpired data
func (c *InMemoryTemplatesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fresh()
}

// fresh must be called with the lock held
func (c *InMemoryTemplatesCache) fresh() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return c.now().Sub(c.cachedAt) <= c.config.TTL
	}
	return true
}
