package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CacheStorage is the persistent tier of the extraction cache
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CacheStorage) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := s.db.Store().Get("cache:"+key, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &entry, nil
}

func (s *CacheStorage) Set(ctx context.Context, entry *models.CacheEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	// Upsert keeps writes idempotent under concurrent extraction of the
	// same chunk.
	if err := s.db.Store().Upsert("cache:"+entry.Key, entry); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (s *CacheStorage) Delete(ctx context.Context, key string) error {
	if err := s.db.Store().Delete("cache:"+key, &models.CacheEntry{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *CacheStorage) PurgeOlderThan(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := time.Now().Add(-ttl)
	var stale []models.CacheEntry
	if err := s.db.Store().Find(&stale, badgerhold.Where("StoredAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to query stale cache entries: %w", err)
	}
	purged := 0
	for i := range stale {
		if err := s.db.Store().Delete("cache:"+stale[i].Key, &models.CacheEntry{}); err != nil && err != badgerhold.ErrNotFound {
			return purged, fmt.Errorf("failed to purge cache entry: %w", err)
		}
		purged++
	}
	if purged > 0 {
		s.logger.Debug().Int("purged", purged).Msg("Purged stale extraction cache entries")
	}
	return purged, nil
}
