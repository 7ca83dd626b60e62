package calculations

import "time"

// TemplatesCache caches the active template list so listings and recommendations
// do not hit the store on every request
type TemplatesCache interface {
	// Get retrieves cached templates, returns nil on a miss or after expiry
	Get() []*Template

	// Set stores templates in cache
	Set(templates []*Template)

	// Invalidate clears the cache, forcing a refresh on next Get
	Invalidate()

	// IsValid returns true if cache has valid data
	IsValid() bool
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// 0 means no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns the cache settings used when none are configured
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 5 * time.Minute,
	}
}
