package cache

import (
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/smingko/taxinomitis/internal/models"
)

func init() {
	Register("memory", newMemoryCache)
}

// memoryCache wraps hashicorp/golang-lru/v2/expirable to implement the Cache interface.
type memoryCache struct {
	inner *lru.LRU[string, *models.ImageInfo]
}

func newMemoryCache(cfg ProviderConfig) (Cache, error) {
	var onEvict func(string, *models.ImageInfo)
	if cfg.OnEvict != nil {
		onEvict = func(url string, info *models.ImageInfo) {
			cfg.OnEvict(url, info)
		}
	}
	return &memoryCache{
		inner: lru.NewLRU[string, *models.ImageInfo](cfg.Size, onEvict, cfg.TTL),
	}, nil
}

func (m *memoryCache) Get(url string) (*models.ImageInfo, bool) {
	return m.inner.Get(url)
}

func (m *memoryCache) Set(url string, info *models.ImageInfo) {
	m.inner.Add(url, info)
}

func (m *memoryCache) Contains(url string) bool {
	return m.inner.Contains(url)
}

func (m *memoryCache) Len() int {
	return m.inner.Len()
}

func (m *memoryCache) Close() error {
	return nil
}
