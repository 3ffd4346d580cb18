package cache

import (
	"github.com/smingko/taxinomitis/internal/models"
)

// EvictCallback is called when an entry is evicted from the cache.
// Not all providers support eviction callbacks (e.g., Redis relies on server-side expiry).
type EvictCallback func(url string, info *models.ImageInfo)

// Logger receives error reports from cache operations without coupling the
// package to a concrete logging library. If nil, errors are silently ignored.
type Logger interface {
	Error(msg string, err error)
}

// Cache defines the interface for storing probe results keyed by image URL.
// Implementations may use in-memory storage or external backends like Redis/Valkey.
type Cache interface {
	// Get retrieves a probe result by URL. Returns the result and true if found, or nil and false if not.
	Get(url string) (*models.ImageInfo, bool)

	// Set stores a probe result for the given URL. If the URL is already cached, it is overwritten.
	Set(url string, info *models.ImageInfo)

	// Contains checks whether a URL is cached without affecting LRU ordering.
	Contains(url string) bool

	// Len returns the number of entries currently in the cache.
	// For external backends like Redis, this counts the keys under the probe namespace.
	Len() int

	// Close releases any resources held by the cache (e.g., network connections).
	// For in-memory caches, this is a no-op.
	Close() error
}
