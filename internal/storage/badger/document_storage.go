package badger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStorage) SaveCategory(ctx context.Context, doc *models.CategoryDocument) error {
	if doc.Slug == "" {
		return fmt.Errorf("category slug is required")
	}
	if doc.CrawledAt.IsZero() {
		doc.CrawledAt = time.Now()
	}
	if err := s.db.Store().Upsert("category:"+doc.Slug, doc); err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (s *DocumentStorage) GetCategory(ctx context.Context, slug string) (*models.CategoryDocument, error) {
	var doc models.CategoryDocument
	if err := s.db.Store().Get("category:"+slug, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("category not found: %s", slug)
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) ListCategories(ctx context.Context) ([]*models.CategoryDocument, error) {
	var docs []models.CategoryDocument
	if err := s.db.Store().Find(&docs, nil); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	result := make([]*models.CategoryDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) SaveProduct(ctx context.Context, doc *models.ProductDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("product ID is required")
	}
	if doc.CrawledAt.IsZero() {
		doc.CrawledAt = time.Now()
	}
	if err := s.db.Store().Upsert("product:"+doc.ID, doc); err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *DocumentStorage) SaveProducts(ctx context.Context, docs []*models.ProductDocument) error {
	for _, doc := range docs {
		if err := s.SaveProduct(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *DocumentStorage) GetProduct(ctx context.Context, id string) (*models.ProductDocument, error) {
	var doc models.ProductDocument
	if err := s.db.Store().Get("product:"+id, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("product not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) ListProducts(ctx context.Context) ([]*models.ProductDocument, error) {
	var docs []models.ProductDocument
	if err := s.db.Store().Find(&docs, nil); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	result := make([]*models.ProductDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) GetStaleProducts(ctx context.Context, olderThan time.Duration, limit int) ([]*models.ProductDocument, error) {
	cutoff := time.Now().Add(-olderThan)
	var docs []models.ProductDocument
	query := badgerhold.Where("CrawledAt").Lt(cutoff)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&docs, query); err != nil {
		return nil, fmt.Errorf("failed to query stale products: %w", err)
	}
	result := make([]*models.ProductDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) SearchProducts(ctx context.Context, query string, limit int) ([]*models.ProductDocument, error) {
	// BadgerHold only offers regex matching, so this is a literal
	// case-insensitive substring search over name and category.
	escaped := regexp.QuoteMeta(query)
	regex, err := regexp.Compile("(?i)" + escaped)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	var docs []models.ProductDocument
	q := badgerhold.Where("Name").RegExp(regex).Or(badgerhold.Where("Category").RegExp(regex))
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := s.db.Store().Find(&docs, q); err != nil {
		return nil, fmt.Errorf("product search failed: %w", err)
	}
	result := make([]*models.ProductDocument, len(docs))
	for i := range docs {
		result[i] = &docs[i]
	}
	return result, nil
}

func (s *DocumentStorage) DeleteProduct(ctx context.Context, id string) error {
	if err := s.db.Store().Delete("product:"+id, &models.ProductDocument{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

func (s *DocumentStorage) CountProducts(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ProductDocument{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return int(count), nil
}

func (s *DocumentStorage) SaveSearchResults(ctx context.Context, doc *models.SearchDocument) error {
	if doc.QuerySlug == "" {
		return fmt.Errorf("search query slug is required")
	}
	if doc.CrawledAt.IsZero() {
		doc.CrawledAt = time.Now()
	}
	if err := s.db.Store().Upsert("search:"+doc.QuerySlug, doc); err != nil {
		return fmt.Errorf("failed to save search results: %w", err)
	}
	return nil
}

func (s *DocumentStorage) GetSearchResults(ctx context.Context, querySlug string) (*models.SearchDocument, error) {
	var doc models.SearchDocument
	if err := s.db.Store().Get("search:"+querySlug, &doc); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("search results not found: %s", querySlug)
		}
		return nil, fmt.Errorf("failed to get search results: %w", err)
	}
	return &doc, nil
}

func (s *DocumentStorage) ClearAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.ProductDocument{}, nil); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.CategoryDocument{}, nil); err != nil {
		return fmt.Errorf("failed to clear categories: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.SearchDocument{}, nil); err != nil {
		return fmt.Errorf("failed to clear search results: %w", err)
	}
	return nil
}
