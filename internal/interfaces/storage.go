package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/merx/internal/models"
)

// DocumentStorage persists crawled site documents: categories, products and
// search result sets. Keys are derived from the document kind plus a stable
// identifier (product ID, category slug, search query slug).
type DocumentStorage interface {
	// Category operations
	SaveCategory(ctx context.Context, doc *models.CategoryDocument) error
	GetCategory(ctx context.Context, slug string) (*models.CategoryDocument, error)
	ListCategories(ctx context.Context) ([]*models.CategoryDocument, error)

	// Product operations
	SaveProduct(ctx context.Context, doc *models.ProductDocument) error
	SaveProducts(ctx context.Context, docs []*models.ProductDocument) error
	GetProduct(ctx context.Context, id string) (*models.ProductDocument, error)
	ListProducts(ctx context.Context) ([]*models.ProductDocument, error)
	GetStaleProducts(ctx context.Context, olderThan time.Duration, limit int) ([]*models.ProductDocument, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]*models.ProductDocument, error)
	DeleteProduct(ctx context.Context, id string) error
	CountProducts(ctx context.Context) (int, error)

	// Search result operations
	SaveSearchResults(ctx context.Context, doc *models.SearchDocument) error
	GetSearchResults(ctx context.Context, querySlug string) (*models.SearchDocument, error)

	// Bulk operations
	ClearAll(ctx context.Context) error
}

// CheckoutStorage persists checkout process descriptors and mirrors live
// sessions for restart recovery. The checkout engine remains the only writer
// of session records.
type CheckoutStorage interface {
	// Descriptor operations
	SaveProcess(ctx context.Context, descriptor *models.CheckoutProcessDescriptor) error
	GetProcessByProduct(ctx context.Context, productID string) (*models.CheckoutProcessDescriptor, error)
	GetProcessByCategory(ctx context.Context, categorySlug string) (*models.CheckoutProcessDescriptor, error)

	// Session mirror operations
	SaveSession(ctx context.Context, session *models.CheckoutSession) error
	GetSession(ctx context.Context, id string) (*models.CheckoutSession, error)
	ListSessions(ctx context.Context) ([]*models.CheckoutSession, error)
	DeleteSession(ctx context.Context, id string) error
}

// CacheStorage is the persistent tier of the extraction cache. Entries are
// content-addressed and carry a stored-at timestamp; staleness is the
// reader's concern.
type CacheStorage interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Set(ctx context.Context, entry *models.CacheEntry) error
	Delete(ctx context.Context, key string) error
	PurgeOlderThan(ctx context.Context, ttl time.Duration) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	DocumentStorage() DocumentStorage
	CheckoutStorage() CheckoutStorage
	CacheStorage() CacheStorage
	Close() error
}
