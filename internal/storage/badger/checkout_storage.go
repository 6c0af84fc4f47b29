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

// CheckoutStorage implements the CheckoutStorage interface for Badger
type CheckoutStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCheckoutStorage creates a new CheckoutStorage instance
func NewCheckoutStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CheckoutStorage {
	return &CheckoutStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CheckoutStorage) SaveProcess(ctx context.Context, descriptor *models.CheckoutProcessDescriptor) error {
	if descriptor.ProductID == "" && descriptor.CategorySlug == "" {
		return fmt.Errorf("checkout descriptor requires a product ID or category slug")
	}
	if descriptor.Key == "" {
		if descriptor.ProductID != "" {
			descriptor.Key = "checkout:" + descriptor.ProductID
		} else {
			descriptor.Key = "checkout:category:" + descriptor.CategorySlug
		}
	}
	if descriptor.CrawledAt.IsZero() {
		descriptor.CrawledAt = time.Now()
	}
	if err := s.db.Store().Upsert(descriptor.Key, descriptor); err != nil {
		return fmt.Errorf("failed to save checkout descriptor: %w", err)
	}
	return nil
}

func (s *CheckoutStorage) GetProcessByProduct(ctx context.Context, productID string) (*models.CheckoutProcessDescriptor, error) {
	var descriptor models.CheckoutProcessDescriptor
	if err := s.db.Store().Get("checkout:"+productID, &descriptor); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("checkout descriptor not found for product: %s", productID)
		}
		return nil, fmt.Errorf("failed to get checkout descriptor: %w", err)
	}
	return &descriptor, nil
}

func (s *CheckoutStorage) GetProcessByCategory(ctx context.Context, categorySlug string) (*models.CheckoutProcessDescriptor, error) {
	var descriptor models.CheckoutProcessDescriptor
	if err := s.db.Store().Get("checkout:category:"+categorySlug, &descriptor); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("checkout descriptor not found for category: %s", categorySlug)
		}
		return nil, fmt.Errorf("failed to get checkout descriptor: %w", err)
	}
	return &descriptor, nil
}

func (s *CheckoutStorage) SaveSession(ctx context.Context, session *models.CheckoutSession) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := s.db.Store().Upsert(session.ID, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *CheckoutStorage) GetSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := s.db.Store().Get(id, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *CheckoutStorage) ListSessions(ctx context.Context) ([]*models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	if err := s.db.Store().Find(&sessions, nil); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	result := make([]*models.CheckoutSession, len(sessions))
	for i := range sessions {
		result[i] = &sessions[i]
	}
	return result, nil
}

func (s *CheckoutStorage) DeleteSession(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.CheckoutSession{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
