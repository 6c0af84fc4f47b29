package extraction

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

// Cache is the two-tier extraction result cache: an in-memory LRU front and
// a persistent badger tier behind it. Entries are content-addressed, so
// concurrent writes of the same key are idempotent.
type Cache struct {
	memory  *lru.Cache[string, *models.CacheEntry]
	storage interfaces.CacheStorage
	ttl     time.Duration
	logger  arbor.ILogger
}

// NewCache creates the extraction cache. A nil storage disables the
// persistent tier, which the tests use.
func NewCache(size int, ttl time.Duration, storage interfaces.CacheStorage, logger arbor.ILogger) (*Cache, error) {
	if size <= 0 {
		size = 512
	}
	memory, err := lru.New[string, *models.CacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		memory:  memory,
		storage: storage,
		ttl:     ttl,
		logger:  logger,
	}, nil
}

// Get returns the cached document for a key, or nil on miss. Stale entries
// are treated as misses and evicted.
func (c *Cache) Get(ctx context.Context, key string) map[string]interface{} {
	if entry, ok := c.memory.Get(key); ok {
		if c.ttl > 0 && entry.IsStale(c.ttl) {
			c.memory.Remove(key)
		} else {
			return entry.Fields
		}
	}

	if c.storage == nil {
		return nil
	}

	entry, err := c.storage.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cache storage read failed")
		return nil
	}
	if entry == nil {
		return nil
	}
	if c.ttl > 0 && entry.IsStale(c.ttl) {
		if err := c.storage.Delete(ctx, key); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to evict stale cache entry")
		}
		return nil
	}

	c.memory.Add(key, entry)
	return entry.Fields
}

// Put stores a document under its content key in both tiers
func (c *Cache) Put(ctx context.Context, key string, fields map[string]interface{}) {
	entry := &models.CacheEntry{
		Key:      key,
		Fields:   fields,
		StoredAt: time.Now(),
	}
	c.memory.Add(key, entry)

	if c.storage == nil {
		return
	}
	if err := c.storage.Set(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Cache storage write failed")
	}
}
